package tools

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestGatewayWebSearchToolFormatsResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/search" {
			t.Fatalf("expected /search, got %s", r.URL.Path)
		}
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["query"] != "golang" {
			t.Fatalf("expected query golang, got %v", body["query"])
		}
		_ = json.NewEncoder(w).Encode(gatewaySearchResponse{Results: []gatewaySearchResult{
			{Title: "Go", URL: "https://go.dev", Description: "The Go language"},
		}})
	}))
	defer srv.Close()

	tool := NewGatewayWebSearchTool(srv.URL)
	if tool.Name() != "web_search" {
		t.Fatalf("expected name web_search, got %s", tool.Name())
	}
	out, err := tool.Execute(context.Background(), map[string]any{"query": "golang"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "https://go.dev") {
		t.Fatalf("expected formatted result to contain url, got %q", out)
	}
}

func TestGatewayKnowledgeSearchToolUsesKnowledgePath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/knowledge-search" {
			t.Fatalf("expected /knowledge-search, got %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(gatewaySearchResponse{})
	}))
	defer srv.Close()

	tool := NewGatewayKnowledgeSearchTool(srv.URL)
	if tool.Name() != "knowledge_search" {
		t.Fatalf("expected name knowledge_search, got %s", tool.Name())
	}
	out, err := tool.Execute(context.Background(), map[string]any{"query": "onboarding docs"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "No results found") {
		t.Fatalf("expected no-results message, got %q", out)
	}
}

func TestGatewaySearchToolRequiresQuery(t *testing.T) {
	tool := NewGatewayWebSearchTool("http://unused")
	if _, err := tool.Execute(context.Background(), map[string]any{}); err == nil {
		t.Fatal("expected error for missing query")
	}
}

func TestGatewaySearchToolSurfacesNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("boom"))
	}))
	defer srv.Close()

	tool := NewGatewayWebSearchTool(srv.URL)
	if _, err := tool.Execute(context.Background(), map[string]any{"query": "x"}); err == nil {
		t.Fatal("expected error for 500 response")
	}
}
