package topic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

// RemoteModel delegates assignment to an external topic-model service that
// exposes JSON endpoints /assign, /refine and /describe.
type RemoteModel struct {
	endpoint string
	apiKey   string
	http     *http.Client
}

var _ Model = (*RemoteModel)(nil)

// NewRemoteModel creates a client for a topic-model service.
func NewRemoteModel(endpoint, apiKeyEnv string) *RemoteModel {
	return &RemoteModel{
		endpoint: endpoint,
		apiKey:   os.Getenv(apiKeyEnv),
		http:     &http.Client{Timeout: 5 * time.Minute},
	}
}

type assignmentsResponse struct {
	Assignments []Assignment `json:"assignments"`
}

func (m *RemoteModel) Assign(ctx context.Context, docs []string, embeddings [][]float64) ([]Assignment, error) {
	payload := map[string]any{
		"documents":  docs,
		"embeddings": embeddings,
	}
	var resp assignmentsResponse
	if err := m.post(ctx, "/assign", payload, &resp); err != nil {
		return nil, err
	}
	return resp.Assignments, nil
}

func (m *RemoteModel) Refine(ctx context.Context, docs []string, embeddings [][]float64, initial []Assignment) ([]Assignment, error) {
	payload := map[string]any{
		"documents":   docs,
		"embeddings":  embeddings,
		"assignments": initial,
	}
	var resp assignmentsResponse
	if err := m.post(ctx, "/refine", payload, &resp); err != nil {
		return nil, err
	}
	return resp.Assignments, nil
}

func (m *RemoteModel) Describe(ctx context.Context, docs []string, assignments []Assignment) ([]Info, error) {
	payload := map[string]any{
		"documents":   docs,
		"assignments": assignments,
	}
	var resp struct {
		Topics []Info `json:"topics"`
	}
	if err := m.post(ctx, "/describe", payload, &resp); err != nil {
		return nil, err
	}
	return resp.Topics, nil
}

func (m *RemoteModel) post(ctx context.Context, path string, payload any, v any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if m.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+m.apiKey)
	}

	resp, err := m.http.Do(req)
	if err != nil {
		return fmt.Errorf("do request %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s: unexpected status %s: %s", path, resp.Status, bytes.TrimSpace(msg))
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("%s: decode response: %w", path, err)
	}
	return nil
}
