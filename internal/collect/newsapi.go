package collect

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

const newsAPIBaseURL = "https://newsapi.org/v2/everything"

// NewsAPIClient searches NewsAPI's everything endpoint.
type NewsAPIClient struct {
	baseURL  string
	apiKey   string
	language string
	client   *http.Client
}

// NewNewsAPIClient creates a new NewsAPI client.
func NewNewsAPIClient(baseURL, apiKeyEnv, language string) *NewsAPIClient {
	if baseURL == "" {
		baseURL = newsAPIBaseURL
	}
	return &NewsAPIClient{
		baseURL:  baseURL,
		apiKey:   os.Getenv(apiKeyEnv),
		language: language,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
}

// IsConfigured returns whether the API key is available.
func (c *NewsAPIClient) IsConfigured() bool {
	return c.apiKey != ""
}

func (c *NewsAPIClient) Name() string { return "newsapi" }

func (c *NewsAPIClient) ParsePublished(raw string) (time.Time, error) {
	return time.Parse(time.RFC3339, raw)
}

// Search fetches one page of matches, newest first.
func (c *NewsAPIClient) Search(ctx context.Context, term string, page, pageSize int) ([]Item, error) {
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 100
	}

	params := url.Values{
		"q":        {term},
		"page":     {strconv.Itoa(page)},
		"pageSize": {strconv.Itoa(pageSize)},
		"sortBy":   {"publishedAt"},
	}
	if c.language != "" {
		params.Set("language", c.language)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("X-Api-Key", c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("newsapi request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("newsapi HTTP %d", resp.StatusCode)
	}

	var result struct {
		Status   string `json:"status"`
		Message  string `json:"message"`
		Articles []struct {
			URL         string `json:"url"`
			Title       string `json:"title"`
			PublishedAt string `json:"publishedAt"`
			Content     string `json:"content"`
			Description string `json:"description"`
		} `json:"articles"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding newsapi response: %w", err)
	}
	if result.Status != "ok" {
		return nil, fmt.Errorf("newsapi status %s: %s", result.Status, result.Message)
	}

	items := make([]Item, 0, len(result.Articles))
	for _, a := range result.Articles {
		if a.URL == "" || a.Title == "" {
			continue
		}
		if a.Title == "[Removed]" || a.URL == "https://removed.com" {
			continue
		}
		desc := a.Description
		if desc == "" {
			desc = a.Content
		}
		items = append(items, Item{
			Title:       strings.TrimSpace(a.Title),
			Link:        a.URL,
			Description: desc,
			Published:   a.PublishedAt,
		})
	}
	return items, nil
}
