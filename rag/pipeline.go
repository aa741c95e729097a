// Package rag answers questions from ingested documents: documents are split
// into overlapping chunks and stored in vector memory, then the chunks most
// similar to a question are passed to the model as context.
//
// Answering runs as a two-node graph:
//
//	retrieve -> generate -> END
package rag

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/smallnest/agent101/graph"
	"github.com/smallnest/agent101/llm"
	"github.com/smallnest/agent101/log"
	"github.com/smallnest/agent101/memory"
	"github.com/tmc/langchaingo/documentloaders"
	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/textsplitter"
)

const (
	DefaultChunkSize    = 800
	DefaultChunkOverlap = 120
	DefaultTopK         = 4

	systemPrompt = "You are a helpful assistant. Answer the question based on the provided context. If you cannot answer based on the context, say so."
)

// ErrNoContext is returned when retrieval finds nothing to answer from.
var ErrNoContext = errors.New("no relevant documents found")

// State flows through the answer graph.
type State struct {
	Question  string
	Documents []schema.Document
	Context   string
	Answer    string
}

// Config configures a Pipeline. Zero values select the defaults.
type Config struct {
	ChunkSize    int
	ChunkOverlap int
	TopK         int
}

// Pipeline ingests documents and answers questions about them.
type Pipeline struct {
	llm      *llm.Client
	vectors  memory.VectorMemory
	splitter textsplitter.TextSplitter
	topK     int
	runnable *graph.StateRunnable[State]
}

// New creates a pipeline storing chunks in vectors.
func New(client *llm.Client, vectors memory.VectorMemory, cfg Config) (*Pipeline, error) {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if cfg.ChunkOverlap <= 0 {
		cfg.ChunkOverlap = DefaultChunkOverlap
	}
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}

	p := &Pipeline{
		llm:     client,
		vectors: vectors,
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(cfg.ChunkSize),
			textsplitter.WithChunkOverlap(cfg.ChunkOverlap),
		),
		topK: cfg.TopK,
	}

	g := graph.NewStateGraph[State]()
	g.AddNode("retrieve", "Find the chunks most similar to the question", p.retrieve)
	g.AddNode("generate", "Answer from the retrieved context", p.generate)
	g.AddEdge("retrieve", "generate")
	g.AddEdge("generate", graph.END)
	g.SetEntryPoint("retrieve")
	g.SetRetryPolicy(&graph.RetryPolicy{
		MaxRetries:      2,
		BackoffStrategy: graph.ExponentialBackoff,
		InitialDelay:    500 * time.Millisecond,
		RetryableErrors: []string{"429", "rate limit", "timeout"},
	})

	runnable, err := g.Compile()
	if err != nil {
		return nil, fmt.Errorf("compile rag graph: %w", err)
	}
	p.runnable = runnable
	return p, nil
}

// Ingest loads the text file at path, splits it and stores the chunks with
// the path as source. It returns the number of chunks stored.
func (p *Pipeline) Ingest(ctx context.Context, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open file %s: %w", path, err)
	}
	defer f.Close()

	docs, err := documentloaders.NewText(f).LoadAndSplit(ctx, p.splitter)
	if err != nil {
		return 0, fmt.Errorf("failed to split %s: %w", path, err)
	}

	texts := make([]string, 0, len(docs))
	metadatas := make([]map[string]any, 0, len(docs))
	for i, d := range docs {
		if strings.TrimSpace(d.PageContent) == "" {
			continue
		}
		texts = append(texts, d.PageContent)
		metadatas = append(metadatas, map[string]any{"source": path, "chunk": i})
	}
	if len(texts) == 0 {
		return 0, nil
	}

	if err := p.vectors.Add(ctx, texts, metadatas); err != nil {
		return 0, fmt.Errorf("failed to store chunks: %w", err)
	}
	log.Info("ingested %s: %d chunks", path, len(texts))
	return len(texts), nil
}

// Answer retrieves context for question and asks the model.
func (p *Pipeline) Answer(ctx context.Context, question string) (*State, error) {
	final, err := p.runnable.Invoke(ctx, State{Question: question})
	if err != nil {
		return nil, err
	}
	return &final, nil
}

func (p *Pipeline) retrieve(ctx context.Context, s State) (State, error) {
	records, err := p.vectors.Search(ctx, s.Question, p.topK)
	if err != nil {
		return s, fmt.Errorf("retrieve: %w", err)
	}
	if len(records) == 0 {
		return s, ErrNoContext
	}

	s.Documents = make([]schema.Document, len(records))
	for i, r := range records {
		s.Documents[i] = schema.Document{
			PageContent: r.Text,
			Metadata:    r.Metadata,
			Score:       float32(r.Score),
		}
	}
	s.Context = FormatDocuments(s.Documents)
	return s, nil
}

func (p *Pipeline) generate(ctx context.Context, s State) (State, error) {
	prompt := fmt.Sprintf("Context:\n%s\n\nQuestion: %s", s.Context, s.Question)
	answer, err := p.llm.Prompt(ctx, systemPrompt, prompt)
	if err != nil {
		return s, err
	}
	s.Answer = strings.TrimSpace(answer)
	return s, nil
}

// FormatDocuments renders documents as "[source]\ncontent" blocks.
func FormatDocuments(docs []schema.Document) string {
	blocks := make([]string, len(docs))
	for i, d := range docs {
		source, _ := d.Metadata["source"].(string)
		if source == "" {
			source = "unknown"
		}
		blocks[i] = fmt.Sprintf("[%s]\n%s", source, d.PageContent)
	}
	return strings.Join(blocks, "\n\n")
}
