// Package fetch optionally replaces search snippets with full article text
// before preprocessing.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	readability "github.com/go-shiori/go-readability"
	"golang.org/x/sync/errgroup"

	"github.com/TobiSchelling/NewsTopics/internal/collect"
)

const (
	// minContentLength is the shortest extracted body, in runes, treated as
	// real article text.
	minContentLength = 100
	maxBodyBytes     = 4 << 20
	// domainWorkers bounds how many publishers are fetched from at once.
	domainWorkers = 4
)

var errNoContent = errors.New("no extractable content")

// Result counts what happened to each article during enrichment.
type Result struct {
	Fetched int
	Skipped int
	Failed  int
}

// StatusError is an HTTP error status from a publisher. It stops further
// requests to that domain for the rest of the run.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d %s", e.Code, http.StatusText(e.Code))
}

// ContentFetcher extracts article bodies with readability.
type ContentFetcher struct {
	client *http.Client
	logger *slog.Logger
}

func NewContentFetcher(timeout time.Duration, logger *slog.Logger) *ContentFetcher {
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ContentFetcher{
		logger: logger,
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
	}
}

// Enrich fetches full text for the articles in place. Articles whose page
// cannot be fetched keep their snippet. Different domains are fetched in
// parallel; one domain's articles go one at a time, and an HTTP error status
// skips the rest of that domain.
func (f *ContentFetcher) Enrich(ctx context.Context, articles []collect.Article) *Result {
	var (
		mu     sync.Mutex
		result = &Result{}
	)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(domainWorkers)
	for domain, idx := range groupByDomain(articles) {
		g.Go(func() error {
			r := f.enrichDomain(ctx, domain, articles, idx)
			mu.Lock()
			result.Fetched += r.Fetched
			result.Skipped += r.Skipped
			result.Failed += r.Failed
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	f.logger.Info("content fetch complete", "fetched", result.Fetched, "failed", result.Failed, "skipped", result.Skipped)
	return result
}

func (f *ContentFetcher) enrichDomain(ctx context.Context, domain string, articles []collect.Article, idx []int) Result {
	var r Result
	for n, i := range idx {
		if ctx.Err() != nil {
			r.Skipped += len(idx) - n
			break
		}

		a := &articles[i]
		content, err := f.fetchArticleContent(ctx, a.Link)
		var statusErr *StatusError
		switch {
		case errors.As(err, &statusErr):
			r.Failed++
			r.Skipped += len(idx) - n - 1
			f.logger.Warn("HTTP error, skipping remaining articles from domain", "url", a.Link, "domain", domain, "error", err)
			return r
		case err != nil:
			r.Failed++
			f.logger.Debug("content fetch failed", "url", a.Link, "error", err)
		default:
			a.RawText = content
			r.Fetched++
		}
	}
	return r
}

// groupByDomain maps each lower-cased host to its article indexes, in
// article order.
func groupByDomain(articles []collect.Article) map[string][]int {
	groups := make(map[string][]int)
	for i, a := range articles {
		domain := ""
		if u, err := url.Parse(a.Link); err == nil {
			domain = strings.ToLower(u.Host)
		}
		groups[domain] = append(groups[domain], i)
	}
	return groups
}

func (f *ContentFetcher) fetchArticleContent(ctx context.Context, articleURL string) (string, error) {
	pageURL, err := url.Parse(articleURL)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, articleURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", "NewsTopics/1.0 (news topic analysis)")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", &StatusError{Code: resp.StatusCode}
	}

	article, err := readability.FromReader(io.LimitReader(resp.Body, maxBodyBytes), pageURL)
	if err != nil {
		return "", fmt.Errorf("extracting content: %w", err)
	}

	text := strings.TrimSpace(article.TextContent)
	if len([]rune(text)) <= minContentLength {
		return "", errNoContent
	}
	return text, nil
}
