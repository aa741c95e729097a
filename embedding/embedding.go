// Package embedding turns text into vectors for the vector memory.
package embedding

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"unicode"

	"github.com/sashabaranov/go-openai"
	"github.com/smallnest/agent101/config"
	"github.com/tmc/langchaingo/embeddings"
)

// Embedder produces vectors for documents and queries. It has the same shape
// as langchaingo's embeddings.Embedder so either can be used for vector stores.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

var (
	_ Embedder            = (*OpenAI)(nil)
	_ embeddings.Embedder = (*OpenAI)(nil)
	_ embeddings.Embedder = (*Hashing)(nil)
)

// OpenAI calls the OpenAI embeddings endpoint.
type OpenAI struct {
	client *openai.Client
	model  string
}

// NewOpenAI creates an embedder from settings.
func NewOpenAI(s config.Settings) (*OpenAI, error) {
	if err := s.RequireAPIKey(); err != nil {
		return nil, err
	}
	cfg := openai.DefaultConfig(s.OpenAIAPIKey)
	if s.OpenAIBaseURL != "" {
		cfg.BaseURL = s.OpenAIBaseURL
	}
	return &OpenAI{
		client: openai.NewClientWithConfig(cfg),
		model:  s.EmbeddingModel,
	}, nil
}

func (e *OpenAI) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(e.model),
	})
	if err != nil {
		return nil, fmt.Errorf("create embeddings: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("create embeddings: got %d vectors for %d inputs", len(resp.Data), len(texts))
	}

	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(out) {
			return nil, fmt.Errorf("create embeddings: index %d out of range", d.Index)
		}
		out[d.Index] = d.Embedding
	}
	return out, nil
}

func (e *OpenAI) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// Hashing is an offline embedder that hashes lower-cased words into a fixed
// number of buckets and L2-normalises the result. Texts sharing words get a
// positive cosine similarity.
type Hashing struct {
	Dim int
}

// NewHashing returns a Hashing embedder with dim buckets.
func NewHashing(dim int) *Hashing {
	if dim <= 0 {
		dim = 256
	}
	return &Hashing{Dim: dim}
}

func (h *Hashing) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := h.EmbedQuery(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (h *Hashing) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, h.Dim)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	for _, w := range words {
		f := fnv.New32a()
		_, _ = f.Write([]byte(w))
		vec[int(f.Sum32()%uint32(h.Dim))]++
	}

	var norm float64
	for _, x := range vec {
		norm += float64(x * x)
	}
	if norm == 0 {
		return vec, nil
	}
	n := float32(math.Sqrt(norm))
	for i := range vec {
		vec[i] /= n
	}
	return vec, nil
}
