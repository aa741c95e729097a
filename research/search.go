package research

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/smallnest/agent101/log"
)

var searchTimeout = 30 * time.Second

// Paper is an arXiv search result.
type Paper struct {
	Title   string `json:"title"`
	Summary string `json:"summary"`
	Link    string `json:"link"`
}

// ScholarPaper is a Semantic Scholar search result.
type ScholarPaper struct {
	Title    string `json:"title"`
	Abstract string `json:"abstract"`
	Link     string `json:"link"`
}

// ArxivClient queries the arXiv Atom API.
type ArxivClient struct {
	BaseURL string
	client  *http.Client
}

// NewArxivClient creates a client for export.arxiv.org.
func NewArxivClient() *ArxivClient {
	return &ArxivClient{
		BaseURL: "http://export.arxiv.org/api/query",
		client:  &http.Client{Timeout: searchTimeout},
	}
}

type atomFeed struct {
	Entries []struct {
		ID      string `xml:"id"`
		Title   string `xml:"title"`
		Summary string `xml:"summary"`
	} `xml:"entry"`
}

// Search returns up to max papers matching query. Failures are logged and
// yield an empty list.
func (a *ArxivClient) Search(ctx context.Context, query string, max int) []Paper {
	papers, err := a.search(ctx, query, max)
	if err != nil {
		log.Warn("arxiv search %q failed: %v", query, err)
		return []Paper{}
	}
	return papers
}

func (a *ArxivClient) search(ctx context.Context, query string, max int) ([]Paper, error) {
	params := url.Values{}
	params.Set("search_query", "all:"+query)
	params.Set("start", "0")
	params.Set("max_results", fmt.Sprintf("%d", max))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.BaseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("arxiv api returned status: %d", resp.StatusCode)
	}

	var feed atomFeed
	if err := xml.NewDecoder(resp.Body).Decode(&feed); err != nil {
		return nil, fmt.Errorf("failed to decode feed: %w", err)
	}

	papers := make([]Paper, 0, len(feed.Entries))
	for _, e := range feed.Entries {
		if len(papers) >= max {
			break
		}
		papers = append(papers, Paper{
			Title:   collapse(e.Title),
			Summary: collapse(e.Summary),
			Link:    strings.TrimSpace(e.ID),
		})
	}
	return papers, nil
}

// SemanticScholarClient queries the Semantic Scholar Graph API.
type SemanticScholarClient struct {
	APIKey  string
	BaseURL string
	client  *http.Client
}

// NewSemanticScholarClient creates a client; apiKey may be empty.
func NewSemanticScholarClient(apiKey string) *SemanticScholarClient {
	return &SemanticScholarClient{
		APIKey:  apiKey,
		BaseURL: "https://api.semanticscholar.org/graph/v1/paper/search",
		client:  &http.Client{Timeout: searchTimeout},
	}
}

// Search returns up to max papers matching query. Failures are logged and
// yield an empty list.
func (s *SemanticScholarClient) Search(ctx context.Context, query string, max int) []ScholarPaper {
	papers, err := s.search(ctx, query, max)
	if err != nil {
		log.Warn("semantic scholar search %q failed: %v", query, err)
		return []ScholarPaper{}
	}
	return papers
}

func (s *SemanticScholarClient) search(ctx context.Context, query string, max int) ([]ScholarPaper, error) {
	params := url.Values{}
	params.Set("query", query)
	params.Set("limit", fmt.Sprintf("%d", max))
	params.Set("fields", "title,abstract,url")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.BaseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if s.APIKey != "" {
		req.Header.Set("x-api-key", s.APIKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("semantic scholar api returned status: %d", resp.StatusCode)
	}

	var result struct {
		Data []struct {
			Title    string  `json:"title"`
			Abstract *string `json:"abstract"`
			URL      string  `json:"url"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	papers := make([]ScholarPaper, 0, len(result.Data))
	for _, d := range result.Data {
		if len(papers) >= max {
			break
		}
		p := ScholarPaper{Title: d.Title, Link: d.URL}
		if d.Abstract != nil {
			p.Abstract = *d.Abstract
		}
		papers = append(papers, p)
	}
	return papers, nil
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
