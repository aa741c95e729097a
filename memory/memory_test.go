package memory

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/smallnest/agent101/config"
	"github.com/smallnest/agent101/embedding"
	"github.com/smallnest/agent101/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var wordCounter = TokenCounterFunc(func(s string) int { return len(strings.Fields(s)) })

func TestShortTermDropsOldest(t *testing.T) {
	m := NewShortTerm(5, wordCounter)
	m.AddText(llm.RoleSystem, "a b c")
	m.AddText(llm.RoleUser, "d e")
	assert.Equal(t, 2, m.Len())
	assert.Equal(t, 5, m.Tokens())

	m.AddText(llm.RoleAssistant, "f")
	msgs := m.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "d e", msgs[0].Content)
	assert.Equal(t, "f", msgs[1].Content)
	assert.LessOrEqual(t, m.Tokens(), 5)
}

func TestShortTermOversizedMessageEmptiesBuffer(t *testing.T) {
	m := NewShortTerm(2, wordCounter)
	m.AddText(llm.RoleUser, "one two three")
	assert.Equal(t, 0, m.Len())
}

func TestShortTermMessagesIsCopy(t *testing.T) {
	m := NewShortTerm(100, wordCounter)
	m.AddText(llm.RoleUser, "hello")
	msgs := m.Messages()
	msgs[0].Content = "changed"
	assert.Equal(t, "hello", m.Messages()[0].Content)

	m.Clear()
	assert.Equal(t, 0, m.Len())
}

func TestShortTermConcurrentAdd(t *testing.T) {
	m := NewShortTerm(0, wordCounter)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.AddText(llm.RoleUser, "x")
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, m.Len())
}

func TestApproxCounter(t *testing.T) {
	c := ApproxCounter{}
	assert.Equal(t, 0, c.Count(""))
	assert.Equal(t, 1, c.Count("a"))
	assert.Equal(t, 4, c.Count("sixteen bytes!!!"))
}

func TestInMemoryVectorSearch(t *testing.T) {
	ctx := context.Background()
	v := NewInMemoryVector(embedding.NewHashing(128))

	require.NoError(t, v.Add(ctx,
		[]string{"goroutines and channels", "python decorators", "channels in go"},
		[]map[string]any{{"source": "a"}, {"source": "b"}, {"source": "c"}},
	))
	assert.Equal(t, 3, v.Len())

	res, err := v.Search(ctx, "go channels", 2)
	require.NoError(t, err)
	require.Len(t, res, 2)
	for _, r := range res {
		assert.NotEqual(t, "python decorators", r.Text)
		assert.NotEmpty(t, r.ID)
	}
	assert.GreaterOrEqual(t, res[0].Score, res[1].Score)

	all, err := v.Search(ctx, "anything", 10)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	_, err = v.Search(ctx, "x", 0)
	assert.Error(t, err)
}

func TestVectorRejectsMismatchedMetadata(t *testing.T) {
	v := NewInMemoryVector(embedding.NewHashing(16))
	err := v.Add(context.Background(), []string{"a", "b"}, []map[string]any{{"k": 1}})
	assert.Error(t, err)
}

type shortEmbedder struct{ embedding.Embedder }

func (shortEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	return make([][]float32, len(texts)-1), nil
}

func TestVectorRejectsMissingEmbeddings(t *testing.T) {
	ctx := context.Background()
	emb := shortEmbedder{embedding.NewHashing(16)}

	mem := NewInMemoryVector(emb)
	assert.ErrorContains(t, mem.Add(ctx, []string{"a", "b"}, nil), "1 vectors for 2 documents")
	assert.Equal(t, 0, mem.Len())

	persistent, err := OpenPersistent(t.TempDir(), emb)
	require.NoError(t, err)
	defer persistent.Close()
	assert.ErrorContains(t, persistent.Add(ctx, []string{"a", "b"}, nil), "1 vectors for 2 documents")
}

func TestSQLiteVectorPersists(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	emb := embedding.NewHashing(64)

	v, err := OpenPersistent(dir, emb)
	require.NoError(t, err)
	require.NoError(t, v.Add(ctx, []string{"the capital of france is paris", "rust ownership"},
		[]map[string]any{{"source": "final_answer"}, nil}))
	require.NoError(t, v.Close())

	v, err = OpenPersistent(dir, emb)
	require.NoError(t, err)
	defer v.Close()

	res, err := v.Search(ctx, "capital of france", 1)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "the capital of france is paris", res[0].Text)
	assert.Equal(t, "final_answer", res[0].Metadata["source"])
}

type failingEmbedder struct{}

func (failingEmbedder) EmbedDocuments(context.Context, []string) ([][]float32, error) {
	return nil, errors.New("embed down")
}

func (failingEmbedder) EmbedQuery(context.Context, string) ([]float32, error) {
	return nil, errors.New("embed down")
}

func TestLoggedSwallowsErrors(t *testing.T) {
	v := Logged(NewInMemoryVector(failingEmbedder{}))
	assert.NoError(t, v.Add(context.Background(), []string{"x"}, nil))

	res, err := v.Search(context.Background(), "x", 3)
	require.NoError(t, err)
	assert.Empty(t, res)

	assert.Equal(t, v, Logged(v))
}

func TestOpenUsesPersistDir(t *testing.T) {
	s := config.Default()
	s.VectorPersistDir = t.TempDir()

	v, err := Open(s, embedding.NewHashing(32))
	require.NoError(t, err)
	require.NoError(t, v.Add(context.Background(), []string{"hello"}, nil))
	res, err := v.Search(context.Background(), "hello", 1)
	require.NoError(t, err)
	assert.Len(t, res, 1)
}

func TestSessions(t *testing.T) {
	s := NewSessions(100, wordCounter)
	a := s.Get("a")
	a.AddText(llm.RoleUser, "hi")
	assert.Same(t, a, s.Get("a"))
	assert.Equal(t, 0, s.Get("b").Len())
	assert.ElementsMatch(t, []string{"a", "b"}, s.IDs())

	s.Delete("a")
	assert.Equal(t, 0, s.Get("a").Len())
}
