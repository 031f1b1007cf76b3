// web_search and knowledge_search are the remaining two of the four
// built-ins spec.md §2/§3 names. Unlike internal/tools/web_search.go's
// direct Brave/DuckDuckGo provider calls, spec.md §1 names "web-search
// provider implementations" as an out-of-scope external collaborator — so
// both tools here are thin HTTP clients against the gateway's own search
// endpoints (GATEWAY_ADDR), not a provider integration of their own. The
// query/count parameter shape and result formatting are kept
// from web_search.go's Parameters()/searchResult shape since that part of
// the contract is still the LLM-facing one, only the backend moved behind
// the gateway.
package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	searchTimeoutSeconds = 15
	defaultSearchCount   = 5
	maxSearchCount       = 10
	webSearchUserAgent   = "openclaw-runtime/1.0"
)

type gatewaySearchResult struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Description string `json:"description"`
}

type gatewaySearchResponse struct {
	Results []gatewaySearchResult `json:"results"`
}

// GatewaySearchTool implements web_search by delegating to the gateway's
// search endpoint rather than calling a search provider directly.
type GatewaySearchTool struct {
	gatewayAddr string
	path        string
	knowledge   bool
	httpClient  *http.Client
}

func newGatewaySearchTool(gatewayAddr, path string) *GatewaySearchTool {
	return &GatewaySearchTool{
		gatewayAddr: strings.TrimRight(gatewayAddr, "/"),
		path:        path,
		httpClient:  &http.Client{Timeout: searchTimeoutSeconds * time.Second},
	}
}

// NewGatewayWebSearchTool builds the web_search built-in.
func NewGatewayWebSearchTool(gatewayAddr string) *GatewaySearchTool {
	return newGatewaySearchTool(gatewayAddr, "/search")
}

// NewGatewayKnowledgeSearchTool builds the knowledge_search built-in,
// pointed at the gateway's workspace knowledge-base index rather than the
// open web.
func NewGatewayKnowledgeSearchTool(gatewayAddr string) *GatewaySearchTool {
	t := newGatewaySearchTool(gatewayAddr, "/knowledge-search")
	t.knowledge = true
	return t
}

func (t *GatewaySearchTool) PluginID() string { return "" }

func (t *GatewaySearchTool) Name() string {
	if t.knowledge {
		return "knowledge_search"
	}
	return "web_search"
}

func (t *GatewaySearchTool) Description() string {
	if t.knowledge {
		return "Search the workspace's knowledge base for relevant documents"
	}
	return "Search the web for current information via the gateway's search provider"
}

func (t *GatewaySearchTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{
				"type":        "string",
				"description": "Search query string",
			},
			"count": map[string]any{
				"type":        "number",
				"description": "Number of results to return (1-10)",
				"minimum":     1.0,
				"maximum":     float64(maxSearchCount),
			},
		},
		"required": []string{"query"},
	}
}

func (t *GatewaySearchTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	query, _ := args["query"].(string)
	if query == "" {
		return "", fmt.Errorf("query is required")
	}
	count := defaultSearchCount
	if c, ok := args["count"].(float64); ok && int(c) >= 1 && int(c) <= maxSearchCount {
		count = int(c)
	}

	body, err := json.Marshal(map[string]any{"query": query, "count": count})
	if err != nil {
		return "", fmt.Errorf("%s: encode request: %w", t.Name(), err)
	}

	url := t.gatewayAddr + t.path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%s: build request: %w", t.Name(), err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", webSearchUserAgent)

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%s: gateway request failed: %w", t.Name(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("%s: gateway returned %d: %s", t.Name(), resp.StatusCode, string(respBody))
	}

	var parsed gatewaySearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("%s: decode gateway response: %w", t.Name(), err)
	}
	return formatGatewayResults(query, parsed.Results), nil
}

func formatGatewayResults(query string, results []gatewaySearchResult) string {
	if len(results) == 0 {
		return fmt.Sprintf("No results found for %q", query)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Search results for %q:\n\n", query)
	for i, r := range results {
		fmt.Fprintf(&b, "%d. %s\n%s\n%s\n\n", i+1, r.Title, r.URL, r.Description)
	}
	return b.String()
}
