package tool

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

const defaultFetchChars = 1000

// WebFetch is the web_fetch tool: it downloads a page and returns its text.
type WebFetch struct {
	client *http.Client
}

// NewWebFetch creates the tool with a 12 second timeout.
func NewWebFetch() *WebFetch {
	return &WebFetch{client: &http.Client{Timeout: 12 * time.Second}}
}

func (t *WebFetch) Name() string { return "web_fetch" }

func (t *WebFetch) Description() string {
	return "Fetch a URL and return its plain text, truncated."
}

func (t *WebFetch) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{
				"type":        "string",
				"description": "Target URL",
			},
			"max_chars": map[string]any{
				"type":        "integer",
				"description": "Maximum number of characters, default 1000",
			},
		},
		"required": []string{"url"},
	}
}

// FetchResult is the web_fetch output.
type FetchResult struct {
	URL  string `json:"url"`
	Text string `json:"text"`
}

// Call takes {"url": "...", "max_chars": n} and returns {url, text}.
func (t *WebFetch) Call(ctx context.Context, input string) (string, error) {
	var args struct {
		URL      string `json:"url"`
		MaxChars int    `json:"max_chars"`
	}
	if err := decodeArgs(input, &args); err != nil {
		return "", err
	}
	res, err := t.Fetch(ctx, args.URL, args.MaxChars)
	if err != nil {
		return "", err
	}
	return encodeResult(res)
}

// Fetch downloads rawURL and returns at most maxChars characters of its text.
func (t *WebFetch) Fetch(ctx context.Context, rawURL string, maxChars int) (*FetchResult, error) {
	if maxChars <= 0 {
		maxChars = defaultFetchChars
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", webUserAgent)

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch URL: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("failed to fetch URL: status code %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	return &FetchResult{
		URL:  rawURL,
		Text: truncateRunes(PlainText(doc), maxChars),
	}, nil
}

// PlainText returns the visible text of doc with script, style and noscript
// removed and whitespace collapsed to single spaces.
func PlainText(doc *goquery.Document) string {
	doc.Find("script, style, noscript").Remove()

	var parts []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			parts = append(parts, n.Data)
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range doc.Nodes {
		walk(n)
	}
	return strings.Join(strings.Fields(strings.Join(parts, " ")), " ")
}

func truncateRunes(s string, n int) string {
	if n <= 0 {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
