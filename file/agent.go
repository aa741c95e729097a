// Package file classifies local files, extracts their content and entities,
// and writes analysis reports.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/smallnest/agent101/llm"
	"github.com/smallnest/agent101/log"
	"github.com/smallnest/agent101/parallel"
	"github.com/smallnest/agent101/research"
)

// ErrNotFound is recorded when the analyzed file does not exist.
var ErrNotFound = errors.New("file not found")

const (
	DefaultPreviewRows = 5
	excerptRunes       = 1000
	summaryInputRunes  = 8000

	summarizePrompt = "You are a rigorous document summarizer. Outline the key points, keeping structured items."
	reportPrompt    = "You are a senior data and document analyst. Based on the structured analysis provided, write a Markdown report with: " +
		"file type and basic information, summary or structure overview, detected URLs/emails/dates, " +
		"potential quality issues and error analysis, and suggested next steps."
)

// Overview is the type-specific part of an analysis.
type Overview struct {
	Type        FileType          `json:"type,omitempty"`
	TextExcerpt string            `json:"text_excerpt,omitempty"`
	Summary     string            `json:"summary,omitempty"`
	Structure   *WorkbookOverview `json:"structure,omitempty"`
}

// Analysis is the result of Agent.Analyze.
type Analysis struct {
	FilePath string   `json:"file_path"`
	FileType FileType `json:"file_type"`
	Overview Overview `json:"overview"`
	Entities Entities `json:"entities"`
	Errors   []string `json:"errors"`
}

// Agent analyzes files.
type Agent struct {
	llm        *llm.Client
	summarizer *research.Summarizer
}

// New creates an agent.
func New(client *llm.Client) *Agent {
	return &Agent{
		llm:        client,
		summarizer: research.NewSummarizer(client, parallel.DefaultMaxConcurrency),
	}
}

// Analyze classifies path and extracts an overview and entities. Problems
// are reported in Analysis.Errors.
func (a *Agent) Analyze(ctx context.Context, path string, maxPreviewRows int) *Analysis {
	if maxPreviewRows <= 0 {
		maxPreviewRows = DefaultPreviewRows
	}
	res := &Analysis{
		FilePath: path,
		FileType: TypeUnknown,
		Entities: emptyEntities(),
		Errors:   []string{},
	}

	if _, err := os.Stat(path); err != nil {
		res.Errors = append(res.Errors, ErrNotFound.Error())
		return res
	}

	res.FileType = Classify(path)
	var err error
	switch res.FileType {
	case TypePDF:
		err = a.analyzePDF(ctx, res)
	case TypeWord:
		err = a.analyzeWord(ctx, res)
	case TypeExcel:
		err = a.analyzeExcel(ctx, res, maxPreviewRows)
	case TypeText:
		err = a.analyzeText(ctx, res)
	default:
		res.Errors = append(res.Errors, "unsupported or unknown file type")
	}
	if err != nil {
		log.Error("file analysis failed (%s): %v", path, err)
		res.Errors = append(res.Errors, err.Error())
	}
	return res
}

func (a *Agent) analyzePDF(ctx context.Context, res *Analysis) error {
	text, err := research.ExtractPDFText(res.FilePath, 0)
	if err != nil {
		return err
	}
	summary, err := a.summarizer.SummarizeChunks(ctx, research.ChunkText(text, research.DefaultChunkChars), "")
	if err != nil {
		return err
	}
	excerpt := truncate(text, excerptRunes)
	res.Overview = Overview{Type: TypePDF, TextExcerpt: excerpt, Summary: summary}
	res.Entities = ExtractEntities(summary + "\n" + excerpt)
	return nil
}

func (a *Agent) analyzeWord(ctx context.Context, res *Analysis) error {
	text, err := ExtractWordText(res.FilePath)
	if err != nil {
		return err
	}
	summary, err := a.SummarizeText(ctx, text)
	if err != nil {
		return err
	}
	res.Overview = Overview{Type: TypeWord, TextExcerpt: truncate(text, excerptRunes), Summary: summary}
	res.Entities = ExtractEntities(text + "\n" + summary)
	return nil
}

func (a *Agent) analyzeExcel(ctx context.Context, res *Analysis, maxRows int) error {
	ov, err := ExcelOverview(res.FilePath, maxRows)
	if err != nil {
		return err
	}
	structure, _ := json.Marshal(ov)
	summary, err := a.SummarizeText(ctx, string(structure))
	if err != nil {
		return err
	}
	res.Overview = Overview{Type: TypeExcel, Structure: ov, Summary: summary}
	return nil
}

func (a *Agent) analyzeText(ctx context.Context, res *Analysis) error {
	data, err := os.ReadFile(res.FilePath)
	if err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("failed to read text: %v", err))
	}
	text := strings.ToValidUTF8(string(data), "")
	summary, err := a.SummarizeText(ctx, text)
	if err != nil {
		return err
	}
	res.Overview = Overview{Type: TypeText, TextExcerpt: truncate(text, excerptRunes), Summary: summary}
	res.Entities = ExtractEntities(text + "\n" + summary)
	return nil
}

// SummarizeText summarizes the first 8000 characters of text.
func (a *Agent) SummarizeText(ctx context.Context, text string) (string, error) {
	return a.llm.Prompt(ctx, summarizePrompt, truncate(text, summaryInputRunes))
}

// Markdown writes a report for an analysis.
func (a *Agent) Markdown(ctx context.Context, analysis *Analysis) (string, error) {
	data, err := json.Marshal(analysis)
	if err != nil {
		return "", fmt.Errorf("encode analysis: %w", err)
	}
	return a.llm.Prompt(ctx, reportPrompt, string(data))
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
