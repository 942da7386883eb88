package fetch

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/TobiSchelling/NewsTopics/internal/collect"
	"github.com/TobiSchelling/NewsTopics/internal/logging"
)

func articlePage() string {
	para := strings.Repeat("반도체 수출이 크게 늘었다는 분석이 나왔다. ", 20)
	return fmt.Sprintf(`<html><head><title>기사</title></head><body>
<nav>메뉴</nav>
<article><h1>반도체 수출 증가</h1><p>%s</p><p>%s</p></article>
</body></html>`, para, para)
}

func TestEnrichReplacesSnippet(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, articlePage())
	}))
	defer ts.Close()

	articles := []collect.Article{{Link: ts.URL + "/a", RawText: "snippet"}}
	f := NewContentFetcher(0, logging.Discard())
	result := f.Enrich(context.Background(), articles)

	if result.Fetched != 1 {
		t.Fatalf("expected 1 fetched, got %+v", result)
	}
	if !strings.Contains(articles[0].RawText, "반도체") || articles[0].RawText == "snippet" {
		t.Errorf("expected full text, got %q", articles[0].RawText)
	}
}

func TestEnrichSkipsFailedDomain(t *testing.T) {
	hits := 0
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer ts.Close()

	articles := []collect.Article{
		{Link: ts.URL + "/1", RawText: "one"},
		{Link: ts.URL + "/2", RawText: "two"},
	}
	f := NewContentFetcher(0, logging.Discard())
	result := f.Enrich(context.Background(), articles)

	if hits != 1 {
		t.Errorf("expected 1 request, got %d", hits)
	}
	if result.Failed != 1 || result.Skipped != 1 {
		t.Errorf("expected failed=1 skipped=1, got %+v", result)
	}
	if articles[0].RawText != "one" || articles[1].RawText != "two" {
		t.Error("expected snippets kept on failure")
	}
}

func TestEnrichKeepsSnippetForShortPages(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html><body><p>짧다</p></body></html>")
	}))
	defer ts.Close()

	articles := []collect.Article{{Link: ts.URL, RawText: "snippet"}}
	f := NewContentFetcher(0, logging.Discard())
	result := f.Enrich(context.Background(), articles)

	if result.Fetched != 0 || articles[0].RawText != "snippet" {
		t.Errorf("expected snippet kept, got %q (%+v)", articles[0].RawText, result)
	}
}

func TestEnrichFailedDomainDoesNotAffectOthers(t *testing.T) {
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	}))
	defer bad.Close()
	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, articlePage())
	}))
	defer good.Close()

	articles := []collect.Article{
		{Link: bad.URL + "/1", RawText: "one"},
		{Link: good.URL + "/2", RawText: "two"},
		{Link: bad.URL + "/3", RawText: "three"},
	}
	result := NewContentFetcher(0, logging.Discard()).Enrich(context.Background(), articles)

	if result.Fetched != 1 || result.Failed != 1 || result.Skipped != 1 {
		t.Errorf("expected fetched=1 failed=1 skipped=1, got %+v", result)
	}
	if articles[0].RawText != "one" || articles[2].RawText != "three" {
		t.Error("expected snippets kept for the failed domain")
	}
	if !strings.Contains(articles[1].RawText, "반도체") {
		t.Errorf("expected full text for the healthy domain, got %q", articles[1].RawText)
	}
}

func TestEnrichCancelledSkipsEverything(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	articles := []collect.Article{{Link: "http://example.invalid/a", RawText: "a"}, {Link: "http://example.invalid/b", RawText: "b"}}
	result := NewContentFetcher(0, logging.Discard()).Enrich(ctx, articles)
	if result.Skipped != 2 || result.Fetched != 0 {
		t.Errorf("expected both skipped, got %+v", result)
	}
}
