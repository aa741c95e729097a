package memory

import (
	"context"

	"github.com/smallnest/agent101/config"
	"github.com/smallnest/agent101/embedding"
	"github.com/smallnest/agent101/log"
)

// Open returns the vector memory configured in s: Chroma when ChromaURL is
// set, otherwise a SQLite file under VectorPersistDir. The result logs and
// swallows failures, matching how the agents treat long-term memory as
// best effort.
func Open(s config.Settings, embedder embedding.Embedder) (VectorMemory, error) {
	if s.ChromaURL != "" {
		v, err := NewChroma(s.ChromaURL, embedder)
		if err != nil {
			return nil, err
		}
		return Logged(v), nil
	}
	v, err := OpenPersistent(s.VectorPersistDir, embedder)
	if err != nil {
		return nil, err
	}
	return Logged(v), nil
}

type loggedVector struct {
	inner VectorMemory
}

// Logged wraps v so Add and Search errors are logged instead of returned.
// Search then yields no records.
func Logged(v VectorMemory) VectorMemory {
	if _, ok := v.(loggedVector); ok {
		return v
	}
	return loggedVector{inner: v}
}

func (l loggedVector) Add(ctx context.Context, texts []string, metadatas []map[string]any) error {
	if err := l.inner.Add(ctx, texts, metadatas); err != nil {
		log.Error("vector memory write failed: %v", err)
	}
	return nil
}

func (l loggedVector) Search(ctx context.Context, query string, k int) ([]Record, error) {
	records, err := l.inner.Search(ctx, query, k)
	if err != nil {
		log.Error("vector memory search failed: %v", err)
		return []Record{}, nil
	}
	return records, nil
}
