package collect

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// Item is one search hit as returned by an upstream search collaborator.
// Published is kept in the collaborator's native format.
type Item struct {
	Title       string
	Link        string
	Description string
	Published   string
}

// Article is a candidate article that passed the time window.
type Article struct {
	Title       string
	Link        string
	Description string
	Published   time.Time // in the collector's reference timezone
	RawText     string
	Term        string
	Source      string
}

// Searcher is a paginated, newest-first news search collaborator.
type Searcher interface {
	Name() string
	// Search returns one batch for a 1-based page, sorted newest first.
	Search(ctx context.Context, term string, page, pageSize int) ([]Item, error)
	// ParsePublished parses the collaborator's native timestamp format.
	ParsePublished(raw string) (time.Time, error)
}

// FetchError records a failed page fetch for one term of one source.
type FetchError struct {
	Source string
	Term   string
	Page   int
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetching %q page %d from %s: %v", e.Term, e.Page, e.Source, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Options tunes pagination, pacing and the time window.
type Options struct {
	Window      time.Duration
	Location    *time.Location
	PageSize    int
	MaxPages    int
	PageDelay   time.Duration
	Concurrency int
}

// Result holds the results of a collection run.
type Result struct {
	Articles    []Article
	Failures    []*FetchError
	TotalFound  int // in-window items before deduplication
	Duplicates  int
	Pages       int
	WindowStart time.Time
	Now         time.Time
}

// Collector gathers in-window articles for a set of terms across searchers.
type Collector struct {
	searchers []Searcher
	opts      Options
	logger    *slog.Logger
	now       func() time.Time
	sleep     func(ctx context.Context, d time.Duration) error
}

// NewCollector creates a new windowed collector.
func NewCollector(searchers []Searcher, opts Options, logger *slog.Logger) *Collector {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.PageSize <= 0 {
		opts.PageSize = 100
	}
	if opts.MaxPages <= 0 {
		opts.MaxPages = 10
	}
	if opts.Window <= 0 {
		opts.Window = 24 * time.Hour
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Collector{
		searchers: searchers,
		opts:      opts,
		logger:    logger,
		now:       time.Now,
		sleep:     sleepContext,
	}
}

// SetClock overrides the collector's notion of "now".
func (c *Collector) SetClock(now func() time.Time) {
	c.now = now
}

type unit struct {
	term     string
	searcher Searcher
}

type unitResult struct {
	articles []Article
	pages    int
	err      *FetchError
}

// Collect fetches every term from every searcher and returns the
// deduplicated in-window articles. A failing term never aborts the others;
// an empty result is a normal outcome.
func (c *Collector) Collect(ctx context.Context, terms []string) *Result {
	return c.CollectAt(ctx, terms, c.now())
}

// CollectAt is Collect with the window anchored at now.
func (c *Collector) CollectAt(ctx context.Context, terms []string, now time.Time) *Result {
	now = now.In(c.opts.Location)
	r := &Result{Now: now, WindowStart: now.Add(-c.opts.Window)}

	var units []unit
	for _, term := range terms {
		for _, s := range c.searchers {
			units = append(units, unit{term: term, searcher: s})
		}
	}

	results := make([]unitResult, len(units))
	var g errgroup.Group
	g.SetLimit(c.opts.Concurrency)
	for i, u := range units {
		g.Go(func() error {
			articles, pages, err := c.collectTerm(ctx, u.searcher, u.term, r.WindowStart)
			results[i] = unitResult{articles: articles, pages: pages, err: err}
			return nil
		})
	}
	_ = g.Wait()

	var combined []Article
	for i, res := range results {
		r.Pages += res.pages
		if res.err != nil {
			r.Failures = append(r.Failures, res.err)
			c.logger.Warn("term fetch failed, skipping",
				"term", units[i].term, "source", units[i].searcher.Name(), "page", res.err.Page, "error", res.err.Err)
		}
		combined = append(combined, res.articles...)
	}

	r.TotalFound = len(combined)
	r.Articles = Dedupe(combined)
	r.Duplicates = r.TotalFound - len(r.Articles)

	c.logger.Info("collection complete",
		"terms", len(terms), "found", r.TotalFound, "unique", len(r.Articles),
		"duplicates", r.Duplicates, "failures", len(r.Failures))
	return r
}

// collectTerm pages through one term until a batch has nothing in the window,
// the upstream runs dry, or the page cap is reached. Articles gathered before
// a failure are kept.
func (c *Collector) collectTerm(ctx context.Context, s Searcher, term string, windowStart time.Time) ([]Article, int, *FetchError) {
	var out []Article
	pages := 0

	for page := 1; page <= c.opts.MaxPages; page++ {
		if page > 1 {
			if err := c.sleep(ctx, c.opts.PageDelay); err != nil {
				return out, pages, &FetchError{Source: s.Name(), Term: term, Page: page, Err: err}
			}
		}

		items, err := s.Search(ctx, term, page, c.opts.PageSize)
		pages++
		if err != nil {
			return out, pages, &FetchError{Source: s.Name(), Term: term, Page: page, Err: err}
		}
		if len(items) == 0 {
			break
		}

		inWindow := 0
		for _, item := range items {
			a, ok := c.toArticle(s, term, item, windowStart)
			if !ok {
				continue
			}
			out = append(out, a)
			inWindow++
		}

		c.logger.Debug("fetched page", "term", term, "source", s.Name(), "page", page,
			"items", len(items), "in_window", inWindow)

		// Batches are newest first: nothing later can be in the window either.
		if inWindow == 0 {
			break
		}
		if len(items) < c.opts.PageSize {
			break
		}
	}

	return out, pages, nil
}

func (c *Collector) toArticle(s Searcher, term string, item Item, windowStart time.Time) (Article, bool) {
	if item.Link == "" || item.Published == "" {
		return Article{}, false
	}
	pub, err := s.ParsePublished(item.Published)
	if err != nil {
		c.logger.Debug("unparseable publication time", "source", s.Name(), "value", item.Published, "error", err)
		return Article{}, false
	}
	pub = pub.In(c.opts.Location)
	if pub.Before(windowStart) {
		return Article{}, false
	}

	description := CleanText(item.Description)
	return Article{
		Title:       CleanText(item.Title),
		Link:        item.Link,
		Description: description,
		Published:   pub,
		RawText:     description,
		Term:        term,
		Source:      s.Name(),
	}, true
}

// Dedupe removes articles with a repeated link, keeping the first occurrence.
func Dedupe(articles []Article) []Article {
	seen := make(map[string]struct{}, len(articles))
	out := make([]Article, 0, len(articles))
	for _, a := range articles {
		if _, ok := seen[a.Link]; ok {
			continue
		}
		seen[a.Link] = struct{}{}
		out = append(out, a)
	}
	return out
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
