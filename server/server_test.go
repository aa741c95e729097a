package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/smallnest/agent101/config"
	"github.com/smallnest/agent101/llm"
	"github.com/smallnest/agent101/llm/llmtest"
	"github.com/smallnest/agent101/memory"
	"github.com/smallnest/agent101/research"
	"github.com/smallnest/agent101/store"
	"github.com/smallnest/agent101/tool"
	"github.com/smallnest/agent101/web"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

type fakeBrowser struct {
	headless bool
	started  bool
	stopped  bool
}

func (f *fakeBrowser) Start(context.Context) error { f.started = true; return nil }

func (f *fakeBrowser) Stop(context.Context) error { f.stopped = true; return nil }

func (f *fakeBrowser) Goto(context.Context, string) error { return nil }

func (f *fakeBrowser) Click(context.Context, string) error { return errors.New("element not found") }

func (f *fakeBrowser) Fill(context.Context, string, string) error { return nil }

func (f *fakeBrowser) WaitForSelector(context.Context, string) error { return nil }

func (f *fakeBrowser) ExtractText(_ context.Context, sel string) (string, error) {
	return "text of " + sel, nil
}

func (f *fakeBrowser) Screenshot(_ context.Context, name string) (string, error) {
	return "artifacts/" + name + ".png", nil
}

func newTestServer(t *testing.T, mock *llmtest.MockLLM, mutate func(*Deps)) (*Server, *Deps) {
	t.Helper()
	deps := Deps{
		Settings:    config.Default(),
		LLM:         func() (*llm.Client, error) { return llm.NewClient(mock, 0), nil },
		Tools:       tool.NewRegistry(tool.NewCalculator()),
		Checkpoints: store.NewMemory(),
		Sessions:    memory.NewSessions(0, memory.ApproxCounter{}),
	}
	if mutate != nil {
		mutate(&deps)
	}
	return New(deps), &deps
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestHealthz(t *testing.T) {
	s, _ := newTestServer(t, llmtest.New(), nil)
	rec := do(t, s, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestValidationErrors(t *testing.T) {
	s, _ := newTestServer(t, llmtest.New(), nil)

	cases := []struct {
		path, body, detail string
	}{
		{"/v1/agent/plan-execute", `{`, "invalid request body"},
		{"/v1/agent/plan-execute", `{"question":"  "}`, "question is required"},
		{"/v1/research/review", `{"topic":"rag","max_results":0}`, "max_results must be between 1 and 20"},
		{"/v1/research/review", `{"topic":"rag","max_results":21}`, "max_results must be between 1 and 20"},
		{"/v1/research/review", `{}`, "topic is required"},
		{"/v1/web/execute", `{"headless":true}`, "steps is required"},
		{"/v1/file/analyze", `{"file_path":"a.txt","max_preview_rows":51}`, "max_preview_rows must be between 1 and 50"},
		{"/v1/file/analyze", `{}`, "file_path is required"},
		{"/v1/agent/base-qa", `{"question":""}`, "question is required"},
	}
	for _, c := range cases {
		rec := do(t, s, http.MethodPost, c.path, c.body)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, c.path+" "+c.body)
		assert.Contains(t, decode(t, rec)["detail"], c.detail)
	}
}

func TestPlanExecuteAndRuns(t *testing.T) {
	mock := llmtest.New(
		llmtest.Text(`[{"goal":"answer directly","action":"none"}]`),
		llmtest.Text("nothing to call"),
		llmtest.Text("The answer is 42."),
	)
	s, _ := newTestServer(t, mock, nil)

	rec := do(t, s, http.MethodPost, "/v1/agent/plan-execute", `{"question":"meaning of life?"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	out := decode(t, rec)
	assert.Equal(t, "The answer is 42.", out["final_answer"])
	assert.Len(t, out["plan"], 1)
	assert.NotContains(t, out, "error")

	runID, _ := out["run_id"].(string)
	require.NotEmpty(t, runID)

	rec = do(t, s, http.MethodGet, "/v1/agent/runs/"+runID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	run := decode(t, rec)
	assert.Equal(t, runID, run["run_id"])
	cps, _ := run["checkpoints"].([]any)
	assert.Len(t, cps, 4)

	rec = do(t, s, http.MethodGet, "/v1/agent/runs/unknown", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPlanExecuteRecordsPlanningFailure(t *testing.T) {
	s, _ := newTestServer(t, llmtest.New(llmtest.Text("no plan here")), nil)

	rec := do(t, s, http.MethodPost, "/v1/agent/plan-execute", `{"question":"q"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, decode(t, rec)["error"], "planning failed")
}

func TestLLMUnavailableIs500(t *testing.T) {
	s, _ := newTestServer(t, llmtest.New(), func(d *Deps) {
		d.LLM = func() (*llm.Client, error) { return nil, errors.New("OPENAI_API_KEY is not set") }
	})

	rec := do(t, s, http.MethodPost, "/v1/agent/base-qa", `{"question":"hi"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"detail":"OPENAI_API_KEY is not set"}`, rec.Body.String())
}

func TestBaseQA(t *testing.T) {
	mock := llmtest.New(llmtest.Text(" 42 "))
	s, deps := newTestServer(t, mock, nil)

	rec := do(t, s, http.MethodPost, "/v1/agent/base-qa", `{"question":"6*7?","session_id":"s1","enable_vector_memory":false}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"answer":"42"}`, rec.Body.String())
	assert.Contains(t, deps.Sessions.IDs(), "s1")
}

func TestBaseQAFailureIs500(t *testing.T) {
	mock := llmtest.New()
	mock.Err = errors.New("upstream down")
	s, _ := newTestServer(t, mock, nil)

	rec := do(t, s, http.MethodPost, "/v1/agent/base-qa", `{"question":"hi"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, decode(t, rec)["detail"], "upstream down")
}

func TestResearchReview(t *testing.T) {
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer down.Close()

	mock := llmtest.New(llmtest.Text("# Review\n\nNo sources were found."))
	s, _ := newTestServer(t, mock, func(d *Deps) {
		d.Research = func(client *llm.Client) *research.Assistant {
			arxiv := research.NewArxivClient()
			arxiv.BaseURL = down.URL
			scholar := research.NewSemanticScholarClient("")
			scholar.BaseURL = down.URL
			return research.NewAssistant(client, arxiv, scholar)
		}
	})

	rec := do(t, s, http.MethodPost, "/v1/research/review", `{"topic":"agents","render_html":true}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	out := decode(t, rec)
	assert.Equal(t, "# Review\n\nNo sources were found.", out["markdown"])
	assert.Empty(t, out["arxiv_results"])
	assert.Empty(t, out["semantic_results"])
	assert.Contains(t, out["html"], "Review</h1>")
}

func TestWebExecute(t *testing.T) {
	var browser *fakeBrowser
	s, _ := newTestServer(t, llmtest.New(), func(d *Deps) {
		d.Browser = func(headless bool) web.Browser {
			browser = &fakeBrowser{headless: headless}
			return browser
		}
	})

	body := `{"steps":[
		{"type":"goto","url":"https://example.com"},
		{"type":"click","selector":"#missing"},
		{"type":"extract_text","selector":"h1"}
	]}`
	rec := do(t, s, http.MethodPost, "/v1/web/execute", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var res web.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	require.Len(t, res.Results, 2)
	assert.Equal(t, "text of h1", res.Results[1].Output)
	assert.Equal(t, []string{"step 1 (click): element not found"}, res.Errors)

	require.NotNil(t, browser)
	assert.True(t, browser.headless)
	assert.True(t, browser.stopped)
}

func TestFileAnalyze(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("Ping admin@example.com before 2025-02-01."), 0o644))

	mock := &llmtest.MockLLM{}
	mock.Handler = func(msgs []llms.MessageContent) (*llms.ContentResponse, error) {
		r := llmtest.Text("# File report")
		return &r, nil
	}
	s, _ := newTestServer(t, mock, nil)

	rec := do(t, s, http.MethodPost, "/v1/file/analyze", `{"file_path":"`+path+`"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	out := decode(t, rec)
	assert.Equal(t, "text", out["file_type"])
	assert.Equal(t, "# File report", out["markdown"])
	assert.Empty(t, out["errors"])
	entities, _ := out["entities"].(map[string]any)
	assert.Equal(t, []any{"admin@example.com"}, entities["emails"])
}

func TestFileAnalyzeMissingFile(t *testing.T) {
	s, _ := newTestServer(t, llmtest.New(llmtest.Text("report")), nil)

	rec := do(t, s, http.MethodPost, "/v1/file/analyze", `{"file_path":"/does/not/exist.pdf","max_preview_rows":3}`)
	require.Equal(t, http.StatusOK, rec.Code)
	out := decode(t, rec)
	assert.Equal(t, []any{"file not found"}, out["errors"])
	assert.Equal(t, "report", out["markdown"])
}

func TestRateLimit(t *testing.T) {
	mock := &llmtest.MockLLM{}
	mock.Handler = func([]llms.MessageContent) (*llms.ContentResponse, error) {
		r := llmtest.Text("ok")
		return &r, nil
	}
	s, _ := newTestServer(t, mock, func(d *Deps) {
		d.Settings.RateLimitRPM = 1
	})

	rec := do(t, s, http.MethodPost, "/v1/agent/base-qa", `{"question":"one"}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, s, http.MethodPost, "/v1/agent/base-qa", `{"question":"two"}`)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.JSONEq(t, `{"detail":"rate limit exceeded"}`, rec.Body.String())

	rec = do(t, s, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestOpenCheckpointStore(t *testing.T) {
	ctx := context.Background()

	s := config.Default()
	st, closeFn, err := OpenCheckpointStore(ctx, s)
	require.NoError(t, err)
	assert.IsType(t, &store.Memory{}, st)
	closeFn()

	s.CheckpointStore = "sqlite"
	s.CheckpointDSN = filepath.Join(t.TempDir(), "cp.db")
	st, closeFn, err = OpenCheckpointStore(ctx, s)
	require.NoError(t, err)
	defer closeFn()

	cp, err := store.NewCheckpoint("run-1", 0, "plan", map[string]int{"step_index": 0})
	require.NoError(t, err)
	require.NoError(t, st.Save(ctx, cp))
	cps, err := st.List(ctx, "run-1")
	require.NoError(t, err)
	assert.Len(t, cps, 1)

	s.CheckpointStore = "etcd"
	_, _, err = OpenCheckpointStore(ctx, s)
	assert.Error(t, err)
}
