package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/smallnest/agent101/embedding"
)

// Record is one stored text with its metadata. Score is the similarity to the
// query when returned from Search.
type Record struct {
	ID       string         `json:"id"`
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Score    float64        `json:"score,omitempty"`
}

// VectorMemory is long-term memory searched by semantic similarity.
type VectorMemory interface {
	// Add stores texts; metadatas may be nil or must match texts in length.
	Add(ctx context.Context, texts []string, metadatas []map[string]any) error
	// Search returns up to k records most similar to query.
	Search(ctx context.Context, query string, k int) ([]Record, error)
}

func checkMetadatas(texts []string, metadatas []map[string]any) error {
	if metadatas != nil && len(metadatas) != len(texts) {
		return fmt.Errorf("memory: %d metadatas for %d texts", len(metadatas), len(texts))
	}
	return nil
}

func metadataAt(metadatas []map[string]any, i int) map[string]any {
	if metadatas == nil {
		return nil
	}
	return metadatas[i]
}

// InMemoryVector keeps records and embeddings in memory and ranks them by
// cosine similarity.
type InMemoryVector struct {
	mu         sync.RWMutex
	records    []Record
	embeddings [][]float32
	embedder   embedding.Embedder
}

// NewInMemoryVector creates an empty store using embedder.
func NewInMemoryVector(embedder embedding.Embedder) *InMemoryVector {
	return &InMemoryVector{embedder: embedder}
}

func (s *InMemoryVector) Add(ctx context.Context, texts []string, metadatas []map[string]any) error {
	if err := checkMetadatas(texts, metadatas); err != nil {
		return err
	}
	if len(texts) == 0 {
		return nil
	}
	vecs, err := embedDocuments(ctx, s.embedder, texts)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i, text := range texts {
		s.records = append(s.records, Record{
			ID:       uuid.NewString(),
			Text:     text,
			Metadata: metadataAt(metadatas, i),
		})
		s.embeddings = append(s.embeddings, vecs[i])
	}
	return nil
}

// embedDocuments embeds texts and checks that one vector came back per text.
func embedDocuments(ctx context.Context, e embedding.Embedder, texts []string) ([][]float32, error) {
	vecs, err := e.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to embed documents: %w", err)
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d documents", len(vecs), len(texts))
	}
	return vecs, nil
}

func (s *InMemoryVector) Search(ctx context.Context, query string, k int) ([]Record, error) {
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive")
	}
	q, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return topK(q, s.records, s.embeddings, k), nil
}

// Len returns the number of stored records.
func (s *InMemoryVector) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func topK(query []float32, records []Record, vecs [][]float32, k int) []Record {
	scored := make([]Record, len(records))
	for i, r := range records {
		r.Score = cosineSimilarity32(query, vecs[i])
		scored[i] = r
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})
	if k > len(scored) {
		k = len(scored)
	}
	return scored[:k]
}

func cosineSimilarity32(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
