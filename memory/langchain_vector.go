package memory

import (
	"context"
	"fmt"

	"github.com/smallnest/agent101/embedding"
	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/vectorstores"
	"github.com/tmc/langchaingo/vectorstores/chroma"
)

// LangChainVector adapts a langchaingo vectorstores.VectorStore.
type LangChainVector struct {
	store vectorstores.VectorStore
}

// NewLangChainVector wraps store.
func NewLangChainVector(store vectorstores.VectorStore) *LangChainVector {
	return &LangChainVector{store: store}
}

// NewChroma connects to a Chroma server and uses the agent101_memory
// namespace with cosine distance.
func NewChroma(url string, embedder embedding.Embedder) (*LangChainVector, error) {
	store, err := chroma.New(
		chroma.WithChromaURL(url),
		chroma.WithEmbedder(embedder),
		chroma.WithDistanceFunction("cosine"),
		chroma.WithNameSpace("agent101_memory"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create chroma store: %w", err)
	}
	return NewLangChainVector(store), nil
}

func (l *LangChainVector) Add(ctx context.Context, texts []string, metadatas []map[string]any) error {
	if err := checkMetadatas(texts, metadatas); err != nil {
		return err
	}
	docs := make([]schema.Document, len(texts))
	for i, text := range texts {
		docs[i] = schema.Document{
			PageContent: text,
			Metadata:    metadataAt(metadatas, i),
		}
	}
	_, err := l.store.AddDocuments(ctx, docs)
	return err
}

func (l *LangChainVector) Search(ctx context.Context, query string, k int) ([]Record, error) {
	docs, err := l.store.SimilaritySearch(ctx, query, k)
	if err != nil {
		return nil, err
	}
	out := make([]Record, len(docs))
	for i, d := range docs {
		out[i] = Record{
			Text:     d.PageContent,
			Metadata: d.Metadata,
			Score:    float64(d.Score),
		}
	}
	return out, nil
}
