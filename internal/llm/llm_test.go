package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
)

func TestDecodeJSON(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{"plain", `{"label": "금리 인상"}`, "금리 인상"},
		{"json fence", "```json\n{\"label\": \"환율\"}\n```", "환율"},
		{"bare fence", "```\n{\"label\": \"환율\"}\n```", "환율"},
		{"surrounding prose", "Here you go:\n{\"label\": \"수출\"}\nHope that helps.", "수출"},
		{"whitespace", "  \n  {\"label\": \"x\"}  \n  ", "x"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var v struct {
				Label string `json:"label"`
			}
			if err := DecodeJSON(tt.text, &v); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if v.Label != tt.want {
				t.Errorf("expected %q, got %q", tt.want, v.Label)
			}
		})
	}
}

func TestDecodeJSONRejectsNonJSON(t *testing.T) {
	var v map[string]any
	for _, text := range []string{"", "not json at all", "} backwards {", "{broken"} {
		if err := DecodeJSON(text, &v); err == nil {
			t.Errorf("expected error for %q", text)
		}
	}
}

func TestOllamaEmbedder(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embed" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		fmt.Fprint(w, `{"embeddings":[[1,0],[0,1]]}`)
	}))
	defer ts.Close()

	e := NewOllamaEmbedder("nomic-embed-text", ts.URL)
	vecs, err := e.Embed(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("embed failed: %v", err)
	}
	if len(vecs) != 2 || vecs[1][1] != 1 {
		t.Errorf("unexpected embeddings: %v", vecs)
	}
}

func TestOpenAIEmbedderRestoresOrder(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			t.Errorf("missing auth header")
		}
		fmt.Fprint(w, `{"data":[{"index":1,"embedding":[0,1]},{"index":0,"embedding":[1,0]}]}`)
	}))
	defer ts.Close()

	t.Setenv("TEST_OPENAI_KEY", "sk-test")
	e := NewOpenAIEmbedder("text-embedding-3-small", "TEST_OPENAI_KEY")
	e.BaseURL = ts.URL
	vecs, err := e.Embed(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("embed failed: %v", err)
	}
	if vecs[0][0] != 1 || vecs[1][1] != 1 {
		t.Errorf("expected embeddings in input order, got %v", vecs)
	}
}

func TestOpenAIEmbedderCountMismatch(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":[{"index":0,"embedding":[1,0]}]}`)
	}))
	defer ts.Close()

	t.Setenv("TEST_OPENAI_KEY", "sk-test")
	e := NewOpenAIEmbedder("m", "TEST_OPENAI_KEY")
	e.BaseURL = ts.URL
	if _, err := e.Embed(context.Background(), []string{"a", "b"}); err == nil {
		t.Error("expected error on embedding count mismatch")
	}
}

func TestOpenAIProviderGenerate(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		fmt.Fprint(w, `{"choices":[{"message":{"content":"반도체 수출"}}]}`)
	}))
	defer ts.Close()

	t.Setenv("TEST_OPENAI_KEY", "sk-test")
	p := NewOpenAIProvider("gpt-4o-mini", "TEST_OPENAI_KEY")
	p.BaseURL = ts.URL
	out, err := p.Generate(context.Background(), "label", 16)
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	if out != "반도체 수출" {
		t.Errorf("unexpected output %q", out)
	}
}

func TestOllamaEmbedderBatches(t *testing.T) {
	var calls int
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Input []string `json:"input"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		calls++
		vecs := make([][]float64, len(req.Input))
		for i, s := range req.Input {
			n, _ := strconv.Atoi(s)
			vecs[i] = []float64{float64(n)}
		}
		json.NewEncoder(w).Encode(map[string]any{"embeddings": vecs})
	}))
	defer ts.Close()

	texts := make([]string, embedBatchSize+3)
	for i := range texts {
		texts[i] = strconv.Itoa(i)
	}
	vecs, err := NewOllamaEmbedder("m", ts.URL).Embed(context.Background(), texts)
	if err != nil {
		t.Fatalf("embed failed: %v", err)
	}
	if calls != 2 {
		t.Errorf("expected 2 requests, got %d", calls)
	}
	if len(vecs) != len(texts) || vecs[embedBatchSize+2][0] != float64(embedBatchSize+2) {
		t.Errorf("expected embeddings in input order across batches, got %d vectors", len(vecs))
	}
}

func TestStatusError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer ts.Close()

	_, err := NewOllamaProvider("m", ts.URL).Generate(context.Background(), "p", 8)
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if se.Code != http.StatusNotFound || se.Body != "model not found" {
		t.Errorf("unexpected status error: %+v", se)
	}
}

func TestOpenAIWithoutKey(t *testing.T) {
	t.Setenv("UNSET_OPENAI_KEY", "")
	if _, err := NewOpenAIProvider("m", "UNSET_OPENAI_KEY").Generate(context.Background(), "p", 8); err == nil {
		t.Error("expected error without API key")
	}
	if _, err := NewOpenAIEmbedder("m", "UNSET_OPENAI_KEY").Embed(context.Background(), []string{"a"}); err == nil {
		t.Error("expected error without API key")
	}
}
