package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/smallnest/agent101/executor"
	"github.com/smallnest/agent101/file"
	"github.com/smallnest/agent101/log"
	"github.com/smallnest/agent101/qa"
	"github.com/smallnest/agent101/report"
	"github.com/smallnest/agent101/research"
	"github.com/smallnest/agent101/store"
	"github.com/smallnest/agent101/web"
)

const maxBodyBytes = 1 << 20

// errValidation marks request errors answered with 422.
var errValidation = errors.New("validation error")

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{errValidation}, args...)...)
}

type PlanExecuteRequest struct {
	Question string `json:"question"`
}

func (r *PlanExecuteRequest) validate() error {
	if strings.TrimSpace(r.Question) == "" {
		return invalid("question is required")
	}
	return nil
}

type ResearchReviewRequest struct {
	Topic      string   `json:"topic"`
	MaxResults *int     `json:"max_results"`
	PDFPaths   []string `json:"pdf_paths"`
	MaxPages   int      `json:"max_pages"`
	RenderHTML bool     `json:"render_html"`
}

func (r *ResearchReviewRequest) validate() error {
	if strings.TrimSpace(r.Topic) == "" {
		return invalid("topic is required")
	}
	if r.MaxResults == nil {
		n := research.DefaultMaxResults
		r.MaxResults = &n
	}
	if *r.MaxResults < 1 || *r.MaxResults > research.MaxResultsLimit {
		return invalid("max_results must be between 1 and %d", research.MaxResultsLimit)
	}
	if r.MaxPages < 0 {
		return invalid("max_pages must not be negative")
	}
	return nil
}

type ResearchReviewResponse struct {
	*research.Review
	HTML string `json:"html,omitempty"`
}

type WebExecuteRequest struct {
	Steps    []web.Action `json:"steps"`
	Headless *bool        `json:"headless"`
}

func (r *WebExecuteRequest) validate() error {
	if r.Steps == nil {
		return invalid("steps is required")
	}
	if r.Headless == nil {
		h := true
		r.Headless = &h
	}
	return nil
}

type FileAnalyzeRequest struct {
	FilePath       string `json:"file_path"`
	MaxPreviewRows *int   `json:"max_preview_rows"`
}

func (r *FileAnalyzeRequest) validate() error {
	if strings.TrimSpace(r.FilePath) == "" {
		return invalid("file_path is required")
	}
	if r.MaxPreviewRows == nil {
		n := file.DefaultPreviewRows
		r.MaxPreviewRows = &n
	}
	if *r.MaxPreviewRows < 1 || *r.MaxPreviewRows > 50 {
		return invalid("max_preview_rows must be between 1 and 50")
	}
	return nil
}

type FileAnalyzeResponse struct {
	*file.Analysis
	Markdown string `json:"markdown,omitempty"`
}

type BaseQARequest struct {
	Question           string `json:"question"`
	EnableVectorMemory *bool  `json:"enable_vector_memory"`
	SessionID          string `json:"session_id,omitempty"`
}

func (r *BaseQARequest) validate() error {
	if strings.TrimSpace(r.Question) == "" {
		return invalid("question is required")
	}
	if r.EnableVectorMemory == nil {
		on := true
		r.EnableVectorMemory = &on
	}
	return nil
}

type BaseQAResponse struct {
	Answer string `json:"answer"`
}

type RunResponse struct {
	RunID       string              `json:"run_id"`
	Checkpoints []*store.Checkpoint `json:"checkpoints"`
}

type validator interface {
	validate() error
}

// decodeRequest reads a JSON body into req and validates it. On failure it
// answers 422 and returns false.
func decodeRequest(w http.ResponseWriter, r *http.Request, req validator) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(req); err != nil {
		sendJSONError(w, fmt.Sprintf("invalid request body: %v", err), http.StatusUnprocessableEntity)
		return false
	}
	if err := req.validate(); err != nil {
		sendJSONError(w, err.Error(), http.StatusUnprocessableEntity)
		return false
	}
	return true
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	sendJSONResponse(w, map[string]string{"status": "ok"})
}

func (s *Server) handlePlanExecute(w http.ResponseWriter, r *http.Request) {
	var req PlanExecuteRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	client, err := s.deps.LLM()
	if err != nil {
		s.fail(w, "plan-execute", err)
		return
	}
	app, err := executor.New(client, s.deps.Tools, executor.WithCheckpointStore(s.deps.Checkpoints))
	if err != nil {
		s.fail(w, "plan-execute", err)
		return
	}
	res, err := app.Run(r.Context(), req.Question)
	if err != nil {
		s.fail(w, "plan-execute", err)
		return
	}
	sendJSONResponse(w, res)
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("run_id")
	cps, err := s.deps.Checkpoints.List(r.Context(), runID)
	if err != nil {
		s.fail(w, "runs", err)
		return
	}
	if len(cps) == 0 {
		sendJSONError(w, "run not found", http.StatusNotFound)
		return
	}
	sendJSONResponse(w, RunResponse{RunID: runID, Checkpoints: cps})
}

func (s *Server) handleResearchReview(w http.ResponseWriter, r *http.Request) {
	var req ResearchReviewRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	client, err := s.deps.LLM()
	if err != nil {
		s.fail(w, "research-review", err)
		return
	}
	review, err := s.deps.Research(client).Review(r.Context(), research.Request{
		Topic:      req.Topic,
		MaxResults: *req.MaxResults,
		PDFPaths:   req.PDFPaths,
		MaxPages:   req.MaxPages,
	})
	if err != nil {
		s.fail(w, "research-review", err)
		return
	}

	resp := ResearchReviewResponse{Review: review}
	if req.RenderHTML {
		resp.HTML = report.ToHTML(review.Markdown)
	}
	sendJSONResponse(w, resp)
}

func (s *Server) handleWebExecute(w http.ResponseWriter, r *http.Request) {
	var req WebExecuteRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	res, err := web.NewAgent(s.deps.Browser(*req.Headless)).Run(r.Context(), req.Steps)
	if err != nil {
		s.fail(w, "web-execute", err)
		return
	}
	sendJSONResponse(w, res)
}

func (s *Server) handleFileAnalyze(w http.ResponseWriter, r *http.Request) {
	var req FileAnalyzeRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	client, err := s.deps.LLM()
	if err != nil {
		s.fail(w, "file-analyze", err)
		return
	}
	agent := file.New(client)
	analysis := agent.Analyze(r.Context(), req.FilePath, *req.MaxPreviewRows)
	md, err := agent.Markdown(r.Context(), analysis)
	if err != nil {
		s.fail(w, "file-analyze", err)
		return
	}
	sendJSONResponse(w, FileAnalyzeResponse{Analysis: analysis, Markdown: md})
}

func (s *Server) handleBaseQA(w http.ResponseWriter, r *http.Request) {
	var req BaseQARequest
	if !decodeRequest(w, r, &req) {
		return
	}

	client, err := s.deps.LLM()
	if err != nil {
		s.fail(w, "base-qa", err)
		return
	}
	opts := []qa.Option{qa.WithSessions(s.deps.Sessions)}
	if *req.EnableVectorMemory && s.deps.Vectors != nil {
		opts = append(opts, qa.WithVectorMemory(s.deps.Vectors))
	}
	answer, err := qa.New(client, s.deps.Tools, opts...).AskSession(r.Context(), req.SessionID, req.Question)
	if err != nil {
		s.fail(w, "base-qa", err)
		return
	}
	sendJSONResponse(w, BaseQAResponse{Answer: answer})
}

func (s *Server) fail(w http.ResponseWriter, op string, err error) {
	log.Error("%s failed: %v", op, err)
	sendJSONError(w, err.Error(), http.StatusInternalServerError)
}
