// Package llm talks to the embedding and text-generation services used for
// topic modeling and labeling: a local Ollama server or the OpenAI API.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"
)

// Provider generates text from a prompt.
type Provider interface {
	Generate(ctx context.Context, prompt string, maxTokens int) (string, error)
	IsConfigured() bool
}

// Embedder maps texts to vectors, one per input, in input order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float64, error)
}

// embedBatchSize bounds how many texts go into one embedding request. A
// day of news for a handful of terms is a few thousand documents.
const embedBatchSize = 128

const requestTimeout = 120 * time.Second

var errNoAPIKey = errors.New("OpenAI API key not configured")

// StatusError is a non-200 reply from a model service.
type StatusError struct {
	Service string
	Code    int
	Body    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned %d: %s", e.Service, e.Code, e.Body)
}

// postJSON sends payload as JSON and decodes a 200 reply into v.
func postJSON(ctx context.Context, client *http.Client, service, url, bearer string, payload, v any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%s request: %w", service, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &StatusError{Service: service, Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decoding %s response: %w", service, err)
	}
	return nil
}

// embedInBatches splits texts into batches and concatenates the results.
func embedInBatches(ctx context.Context, texts []string, embed func(context.Context, []string) ([][]float64, error)) ([][]float64, error) {
	out := make([][]float64, 0, len(texts))
	for start := 0; start < len(texts); start += embedBatchSize {
		end := min(start+embedBatchSize, len(texts))
		vecs, err := embed(ctx, texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("embedding documents %d-%d: %w", start, end-1, err)
		}
		if len(vecs) != end-start {
			return nil, fmt.Errorf("expected %d embeddings, got %d", end-start, len(vecs))
		}
		out = append(out, vecs...)
	}
	return out, nil
}

// --- Ollama ---

// OllamaProvider generates text with a local Ollama model.
type OllamaProvider struct {
	Model   string
	BaseURL string
	client  *http.Client
}

func NewOllamaProvider(model, baseURL string) *OllamaProvider {
	return &OllamaProvider{Model: model, BaseURL: baseURL, client: &http.Client{Timeout: requestTimeout}}
}

// IsConfigured reports whether Ollama answers and has the model pulled.
func (o *OllamaProvider) IsConfigured() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.BaseURL+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := o.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false
	}

	var tags struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return false
	}
	base, _, _ := strings.Cut(o.Model, ":")
	for _, m := range tags.Models {
		if strings.HasPrefix(m.Name, base) {
			return true
		}
	}
	return false
}

func (o *OllamaProvider) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	payload := map[string]any{
		"model":    o.Model,
		"messages": []map[string]string{{"role": "user", "content": prompt}},
		"stream":   false,
		"options":  map[string]any{"num_predict": maxTokens, "temperature": 0.3},
	}
	var reply struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	}
	if err := postJSON(ctx, o.client, "ollama", o.BaseURL+"/api/chat", "", payload, &reply); err != nil {
		return "", err
	}
	return reply.Message.Content, nil
}

// OllamaEmbedder embeds with a local Ollama embedding model.
type OllamaEmbedder struct {
	Model   string
	BaseURL string
	client  *http.Client
}

func NewOllamaEmbedder(model, baseURL string) *OllamaEmbedder {
	return &OllamaEmbedder{Model: model, BaseURL: baseURL, client: &http.Client{Timeout: requestTimeout}}
}

func (e *OllamaEmbedder) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	return embedInBatches(ctx, texts, func(ctx context.Context, batch []string) ([][]float64, error) {
		var reply struct {
			Embeddings [][]float64 `json:"embeddings"`
		}
		payload := map[string]any{"model": e.Model, "input": batch}
		if err := postJSON(ctx, e.client, "ollama", e.BaseURL+"/api/embed", "", payload, &reply); err != nil {
			return nil, err
		}
		return reply.Embeddings, nil
	})
}

// --- OpenAI ---

const openAIBaseURL = "https://api.openai.com/v1"

// OpenAIProvider generates text with the OpenAI chat completions API.
type OpenAIProvider struct {
	Model   string
	APIKey  string
	BaseURL string
	client  *http.Client
}

// NewOpenAIProvider reads the API key from the named environment variable.
func NewOpenAIProvider(model, apiKeyEnv string) *OpenAIProvider {
	return &OpenAIProvider{
		Model:   model,
		APIKey:  os.Getenv(apiKeyEnv),
		BaseURL: openAIBaseURL,
		client:  &http.Client{Timeout: requestTimeout},
	}
}

func (o *OpenAIProvider) IsConfigured() bool { return o.APIKey != "" }

func (o *OpenAIProvider) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	if o.APIKey == "" {
		return "", errNoAPIKey
	}
	payload := map[string]any{
		"model":       o.Model,
		"messages":    []map[string]string{{"role": "user", "content": prompt}},
		"max_tokens":  maxTokens,
		"temperature": 0.3,
	}
	var reply struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := postJSON(ctx, o.client, "openai", o.BaseURL+"/chat/completions", o.APIKey, payload, &reply); err != nil {
		return "", err
	}
	if len(reply.Choices) == 0 {
		return "", errors.New("no choices in OpenAI response")
	}
	return reply.Choices[0].Message.Content, nil
}

// OpenAIEmbedder embeds with the OpenAI embeddings API.
type OpenAIEmbedder struct {
	Model   string
	APIKey  string
	BaseURL string
	client  *http.Client
}

func NewOpenAIEmbedder(model, apiKeyEnv string) *OpenAIEmbedder {
	return &OpenAIEmbedder{
		Model:   model,
		APIKey:  os.Getenv(apiKeyEnv),
		BaseURL: openAIBaseURL,
		client:  &http.Client{Timeout: requestTimeout},
	}
}

// Embed returns vectors in input order; the API may answer out of order.
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	if e.APIKey == "" {
		return nil, errNoAPIKey
	}
	return embedInBatches(ctx, texts, func(ctx context.Context, batch []string) ([][]float64, error) {
		var reply struct {
			Data []struct {
				Index     int       `json:"index"`
				Embedding []float64 `json:"embedding"`
			} `json:"data"`
		}
		payload := map[string]any{"model": e.Model, "input": batch}
		if err := postJSON(ctx, e.client, "openai", e.BaseURL+"/embeddings", e.APIKey, payload, &reply); err != nil {
			return nil, err
		}
		if len(reply.Data) != len(batch) {
			return nil, fmt.Errorf("expected %d embeddings, got %d", len(batch), len(reply.Data))
		}
		out := make([][]float64, len(batch))
		for _, d := range reply.Data {
			if d.Index < 0 || d.Index >= len(out) {
				return nil, fmt.Errorf("embedding index %d out of range", d.Index)
			}
			out[d.Index] = d.Embedding
		}
		return out, nil
	})
}

// CreateEmbedder returns the embedder named by provider ("ollama" or "openai").
func CreateEmbedder(provider, model, ollamaURL, apiKeyEnv string) Embedder {
	if strings.EqualFold(provider, "openai") {
		return NewOpenAIEmbedder(model, apiKeyEnv)
	}
	return NewOllamaEmbedder(model, ollamaURL)
}

// CreateProvider prefers Ollama when asked for it and reachable, then
// OpenAI. It returns nil when neither is usable; callers treat that as
// "no labels".
func CreateProvider(provider, model, ollamaURL, openaiModel, apiKeyEnv string, logger *slog.Logger) Provider {
	if strings.EqualFold(provider, "ollama") {
		p := NewOllamaProvider(model, ollamaURL)
		if p.IsConfigured() {
			logger.Info("using Ollama", "model", model)
			return p
		}
		logger.Warn("Ollama not available, trying OpenAI", "model", model)
	}

	p := NewOpenAIProvider(openaiModel, apiKeyEnv)
	if p.IsConfigured() {
		logger.Info("using OpenAI", "model", openaiModel)
		return p
	}

	logger.Warn("no LLM provider available", "api_key_env", apiKeyEnv)
	return nil
}
