package tool

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/smallnest/agent101/config"
	"github.com/smallnest/agent101/log"
)

const (
	defaultSearchResults = 5
	maxSearchResults     = 20
	webUserAgent         = "Mozilla/5.0 (Macintosh; Intel Mac OS X 14_7_2) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

// SearchResult is one web search hit.
type SearchResult struct {
	Title string `json:"title"`
	Link  string `json:"link"`
}

// SearchProvider is a web search backend.
type SearchProvider interface {
	Name() string
	Search(ctx context.Context, query string, count int) ([]SearchResult, error)
}

// SearchProvidersFor returns the providers enabled by s in priority order:
// Brave when BRAVE_API_KEY is set, then DuckDuckGo.
func SearchProvidersFor(s config.Settings) []SearchProvider {
	var providers []SearchProvider
	if s.BraveAPIKey != "" {
		if b, err := NewBraveSearch(s.BraveAPIKey); err == nil {
			providers = append(providers, b)
		}
	}
	return append(providers, NewDuckDuckGo())
}

// WebSearch is the web_search tool. Providers are tried in order and the
// first one returning results wins.
type WebSearch struct {
	providers []SearchProvider
}

// NewWebSearch creates the tool. With no providers it uses DuckDuckGo.
func NewWebSearch(providers ...SearchProvider) *WebSearch {
	if len(providers) == 0 {
		providers = []SearchProvider{NewDuckDuckGo()}
	}
	return &WebSearch{providers: providers}
}

func (t *WebSearch) Name() string { return "web_search" }

func (t *WebSearch) Description() string {
	return "Simple web search. Returns the title and link of the top results."
}

func (t *WebSearch) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{
				"type":        "string",
				"description": "Search keywords",
			},
			"max_results": map[string]any{
				"type":        "integer",
				"description": "Number of results to return (default 5)",
			},
		},
		"required": []string{"query"},
	}
}

// Call takes {"query": "...", "max_results": n} and returns a JSON array of
// {title, link}.
func (t *WebSearch) Call(ctx context.Context, input string) (string, error) {
	var args struct {
		Query      string `json:"query"`
		MaxResults int    `json:"max_results"`
	}
	if err := decodeArgs(input, &args); err != nil {
		return "", err
	}
	results, err := t.Search(ctx, args.Query, args.MaxResults)
	if err != nil {
		return "", err
	}
	return encodeResult(results)
}

// Search runs the query against the providers.
func (t *WebSearch) Search(ctx context.Context, query string, maxResults int) ([]SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("query is required")
	}
	if maxResults <= 0 {
		maxResults = defaultSearchResults
	}
	if maxResults > maxSearchResults {
		maxResults = maxSearchResults
	}

	var (
		lastErr   error
		succeeded bool
	)
	for _, p := range t.providers {
		results, err := p.Search(ctx, query, maxResults)
		if err != nil {
			log.Warn("web_search provider %s failed: %v", p.Name(), err)
			lastErr = err
			continue
		}
		if len(results) == 0 {
			log.Debug("web_search provider %s returned no results", p.Name())
			succeeded = true
			continue
		}
		return results, nil
	}
	if succeeded {
		return []SearchResult{}, nil
	}
	return nil, fmt.Errorf("search failed: %w", lastErr)
}

// DuckDuckGo scrapes the DuckDuckGo HTML endpoint.
type DuckDuckGo struct {
	BaseURL string
	client  *http.Client
}

// NewDuckDuckGo creates the DuckDuckGo provider.
func NewDuckDuckGo() *DuckDuckGo {
	return &DuckDuckGo{
		BaseURL: "https://html.duckduckgo.com/html/",
		client:  &http.Client{Timeout: searchTimeout},
	}
}

func (d *DuckDuckGo) Name() string { return "duckduckgo" }

func (d *DuckDuckGo) Search(ctx context.Context, query string, count int) ([]SearchResult, error) {
	searchURL := d.BaseURL + "?q=" + url.QueryEscape(query)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", webUserAgent)

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("duckduckgo returned status: %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}

	results := []SearchResult{}
	doc.Find("a.result__a").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		href, _ := s.Attr("href")
		results = append(results, SearchResult{
			Title: strings.TrimSpace(s.Text()),
			Link:  unwrapDDGLink(href),
		})
		return len(results) < count
	})
	return results, nil
}

// unwrapDDGLink extracts the target of a DuckDuckGo redirect link
// ("//duckduckgo.com/l/?uddg=<escaped url>&rut=...").
func unwrapDDGLink(href string) string {
	if !strings.Contains(href, "uddg=") {
		return href
	}
	raw := href
	if strings.HasPrefix(raw, "//") {
		raw = "https:" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return href
	}
	if target := u.Query().Get("uddg"); target != "" {
		return target
	}
	return href
}
