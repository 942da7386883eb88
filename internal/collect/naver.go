package collect

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"
)

const (
	naverBaseURL  = "https://openapi.naver.com/v1/search/news.json"
	naverMaxStart = 1000
	naverMaxPage  = 100
)

// NaverClient searches the Naver news search API.
type NaverClient struct {
	baseURL      string
	clientID     string
	clientSecret string
	client       *http.Client
}

// NewNaverClient creates a Naver client reading credentials from the named
// environment variables.
func NewNaverClient(baseURL, clientIDEnv, clientSecretEnv string) *NaverClient {
	if baseURL == "" {
		baseURL = naverBaseURL
	}
	return &NaverClient{
		baseURL:      baseURL,
		clientID:     os.Getenv(clientIDEnv),
		clientSecret: os.Getenv(clientSecretEnv),
		client:       &http.Client{Timeout: 30 * time.Second},
	}
}

// IsConfigured returns whether both credentials are available.
func (c *NaverClient) IsConfigured() bool {
	return c.clientID != "" && c.clientSecret != ""
}

func (c *NaverClient) Name() string { return "naver" }

// ParsePublished parses Naver's RFC 1123 pubDate with numeric zone.
func (c *NaverClient) ParsePublished(raw string) (time.Time, error) {
	return time.Parse(time.RFC1123Z, raw)
}

// Search fetches one page sorted by date. Pages beyond the API's start
// offset limit come back empty.
func (c *NaverClient) Search(ctx context.Context, term string, page, pageSize int) ([]Item, error) {
	if pageSize <= 0 || pageSize > naverMaxPage {
		pageSize = naverMaxPage
	}
	start := 1 + (page-1)*pageSize
	if start > naverMaxStart {
		return nil, nil
	}

	params := url.Values{
		"query":   {term},
		"display": {strconv.Itoa(pageSize)},
		"start":   {strconv.Itoa(start)},
		"sort":    {"date"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("X-Naver-Client-Id", c.clientID)
	req.Header.Set("X-Naver-Client-Secret", c.clientSecret)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("naver request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("naver HTTP %d: %s", resp.StatusCode, body)
	}

	var result struct {
		Items []struct {
			Title        string `json:"title"`
			OriginalLink string `json:"originallink"`
			Link         string `json:"link"`
			Description  string `json:"description"`
			PubDate      string `json:"pubDate"`
		} `json:"items"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding naver response: %w", err)
	}

	items := make([]Item, 0, len(result.Items))
	for _, it := range result.Items {
		link := it.OriginalLink
		if link == "" {
			link = it.Link
		}
		items = append(items, Item{
			Title:       it.Title,
			Link:        link,
			Description: it.Description,
			Published:   it.PubDate,
		})
	}
	return items, nil
}
