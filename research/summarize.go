package research

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/smallnest/agent101/llm"
	"github.com/smallnest/agent101/parallel"
)

// DefaultChunkChars is the chunk size used for PDF summaries.
const DefaultChunkChars = 3000

const (
	chunkPrompt  = "You are an academic assistant. Summarize the following paper content, highlighting contributions, methods and conclusions."
	mergePrompt  = "Merge the partial summaries into one structured summary covering background, method, results and limitations."
	reviewPrompt = "You are a senior academic writer. Based on the search results and PDF summaries provided, write a structured literature review. " +
		"Output Markdown with the sections: Introduction, Key Advances, Method Comparison (lists allowed), Typical Applications, " +
		"Limitations and Future Directions, Conclusion, References (links)."
)

// Summarizer condenses long documents with a map-reduce over chunks.
type Summarizer struct {
	llm         *llm.Client
	concurrency int
}

// NewSummarizer creates a summarizer that summarizes up to concurrency
// chunks at once.
func NewSummarizer(client *llm.Client, concurrency int) *Summarizer {
	return &Summarizer{llm: client, concurrency: concurrency}
}

// SummarizeChunks summarizes every chunk, then merges the partial summaries.
// instruction is appended to the per-chunk prompt when set.
func (s *Summarizer) SummarizeChunks(ctx context.Context, chunks []string, instruction string) (string, error) {
	if len(chunks) == 0 {
		return "", fmt.Errorf("nothing to summarize")
	}

	system := chunkPrompt
	if instruction != "" {
		system += " Instruction: " + instruction
	}

	branches := make(map[string]parallel.Branch[string], len(chunks))
	for i, c := range chunks {
		branches[chunkKey(i)] = func(ctx context.Context) (string, error) {
			return s.llm.Prompt(ctx, system, fmt.Sprintf("Part %d:\n%s", i+1, c))
		}
	}
	partial, err := parallel.Run(ctx, branches, s.concurrency)
	if err != nil {
		return "", err
	}

	summaries := make([]string, len(chunks))
	for i := range chunks {
		summaries[i] = partial[chunkKey(i)]
	}
	return s.llm.Prompt(ctx, mergePrompt, strings.Join(summaries, "\n\n"))
}

func chunkKey(i int) string {
	return fmt.Sprintf("chunk-%04d", i)
}

// GenerateReview writes a markdown literature review on topic from the
// search results and PDF summaries.
func GenerateReview(ctx context.Context, client *llm.Client, topic string, arxiv []Paper, semantic []ScholarPaper, pdfSummaries []string) (string, error) {
	if arxiv == nil {
		arxiv = []Paper{}
	}
	if semantic == nil {
		semantic = []ScholarPaper{}
	}
	if pdfSummaries == nil {
		pdfSummaries = []string{}
	}

	payload, err := json.Marshal(map[string]any{
		"topic":         topic,
		"arxiv":         arxiv,
		"semantic":      semantic,
		"pdf_summaries": pdfSummaries,
	})
	if err != nil {
		return "", fmt.Errorf("encode review context: %w", err)
	}
	return client.Prompt(ctx, reviewPrompt, string(payload))
}
