package collect

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
)

// FeedSearcher turns a search-capable RSS/Atom endpoint into a Searcher.
// The URL template must contain {query}. Feeds are not paginated, so every
// page after the first is empty.
type FeedSearcher struct {
	template string
	parser   *gofeed.Parser
}

// NewFeedSearcher creates a feed searcher for a URL template.
func NewFeedSearcher(template string) *FeedSearcher {
	return &FeedSearcher{template: template, parser: gofeed.NewParser()}
}

func (f *FeedSearcher) Name() string {
	return "feed:" + extractSourceName(f.template)
}

// ParsePublished accepts the RFC 3339 form Search emits.
func (f *FeedSearcher) ParsePublished(raw string) (time.Time, error) {
	return time.Parse(time.RFC3339, raw)
}

func (f *FeedSearcher) Search(ctx context.Context, term string, page, pageSize int) ([]Item, error) {
	if page > 1 {
		return nil, nil
	}
	if !strings.Contains(f.template, "{query}") {
		return nil, fmt.Errorf("feed url template has no {query} placeholder: %s", f.template)
	}
	feedURL := strings.ReplaceAll(f.template, "{query}", url.QueryEscape(term))

	feed, err := f.parser.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		return nil, fmt.Errorf("parsing feed: %w", err)
	}

	var entries []feedEntry
	for _, item := range feed.Items {
		if e, ok := parseItem(item); ok {
			entries = append(entries, e)
		}
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].published.After(entries[j].published)
	})
	if pageSize > 0 && len(entries) > pageSize {
		entries = entries[:pageSize]
	}

	items := make([]Item, len(entries))
	for i, e := range entries {
		items[i] = e.item
	}
	return items, nil
}

type feedEntry struct {
	item      Item
	published time.Time
}

func parseItem(item *gofeed.Item) (feedEntry, bool) {
	link := item.Link
	if link == "" {
		link = item.GUID
	}
	if link == "" || strings.TrimSpace(item.Title) == "" {
		return feedEntry{}, false
	}

	var published *time.Time
	if item.PublishedParsed != nil {
		published = item.PublishedParsed
	} else if item.UpdatedParsed != nil {
		published = item.UpdatedParsed
	}
	// Undated entries cannot be placed in the window.
	if published == nil {
		return feedEntry{}, false
	}

	desc := item.Description
	if desc == "" {
		desc = item.Content
	}

	return feedEntry{
		item: Item{
			Title:       item.Title,
			Link:        link,
			Description: desc,
			Published:   published.Format(time.RFC3339),
		},
		published: *published,
	}, true
}

func extractSourceName(feedURL string) string {
	u, err := url.Parse(feedURL)
	if err != nil || u.Hostname() == "" {
		return feedURL
	}
	host := strings.ToLower(u.Hostname())

	for _, prefix := range []string{"www.", "blog.", "blogs.", "rss.", "feeds."} {
		host = strings.TrimPrefix(host, prefix)
	}

	parts := strings.Split(host, ".")
	if len(parts) >= 2 {
		return parts[len(parts)-2]
	}
	return host
}
