// Package research implements the research-summary assistant: academic
// search on arXiv and Semantic Scholar, PDF summarization and literature
// review generation.
package research

import (
	"context"
	"fmt"

	"github.com/smallnest/agent101/config"
	"github.com/smallnest/agent101/llm"
	"github.com/smallnest/agent101/log"
	"github.com/smallnest/agent101/parallel"
)

const (
	DefaultMaxResults = 5
	MaxResultsLimit   = 20
)

// Request describes a review to produce.
type Request struct {
	Topic      string   `json:"topic"`
	MaxResults int      `json:"max_results"`
	PDFPaths   []string `json:"pdf_paths"`
	MaxPages   int      `json:"max_pages,omitempty"`
}

// Review is the assistant output.
type Review struct {
	Markdown        string         `json:"markdown"`
	ArxivResults    []Paper        `json:"arxiv_results"`
	SemanticResults []ScholarPaper `json:"semantic_results"`
	PDFSummaries    []string       `json:"pdf_summaries"`
}

// Assistant produces literature reviews.
type Assistant struct {
	llm        *llm.Client
	arxiv      *ArxivClient
	scholar    *SemanticScholarClient
	summarizer *Summarizer
}

// NewAssistant wires an assistant from its parts.
func NewAssistant(client *llm.Client, arxiv *ArxivClient, scholar *SemanticScholarClient) *Assistant {
	return &Assistant{
		llm:        client,
		arxiv:      arxiv,
		scholar:    scholar,
		summarizer: NewSummarizer(client, parallel.DefaultMaxConcurrency),
	}
}

// New creates an assistant using the public APIs configured in s.
func New(client *llm.Client, s config.Settings) *Assistant {
	return NewAssistant(client, NewArxivClient(), NewSemanticScholarClient(s.SemanticScholarAPIKey))
}

// Review searches both sources concurrently, summarizes each PDF and writes
// the review. Search and PDF failures are logged and do not abort the
// review.
func (a *Assistant) Review(ctx context.Context, req Request) (*Review, error) {
	if req.Topic == "" {
		return nil, fmt.Errorf("topic is required")
	}
	maxResults := req.MaxResults
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}
	maxResults = min(maxResults, MaxResultsLimit)

	out := &Review{}
	_, err := parallel.Run(ctx, map[string]parallel.Branch[struct{}]{
		"arxiv": func(ctx context.Context) (struct{}, error) {
			out.ArxivResults = a.arxiv.Search(ctx, req.Topic, maxResults)
			return struct{}{}, nil
		},
		"semantic": func(ctx context.Context) (struct{}, error) {
			out.SemanticResults = a.scholar.Search(ctx, req.Topic, maxResults)
			return struct{}{}, nil
		},
	}, 2)
	if err != nil {
		return nil, err
	}

	out.PDFSummaries = make([]string, 0, len(req.PDFPaths))
	for _, path := range req.PDFPaths {
		summary, err := a.SummarizePDF(ctx, path, req.MaxPages)
		if err != nil {
			log.Warn("pdf %s failed: %v", path, err)
			summary = fmt.Sprintf("[error] unable to parse or summarize: %s", path)
		}
		out.PDFSummaries = append(out.PDFSummaries, summary)
	}

	md, err := GenerateReview(ctx, a.llm, req.Topic, out.ArxivResults, out.SemanticResults, out.PDFSummaries)
	if err != nil {
		return nil, fmt.Errorf("generate review: %w", err)
	}
	out.Markdown = md
	return out, nil
}

// SummarizePDF extracts and summarizes the PDF at path.
func (a *Assistant) SummarizePDF(ctx context.Context, path string, maxPages int) (string, error) {
	text, err := ExtractPDFText(path, maxPages)
	if err != nil {
		return "", err
	}
	return a.summarizer.SummarizeChunks(ctx, ChunkText(text, DefaultChunkChars), "")
}
