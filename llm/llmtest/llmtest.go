// Package llmtest provides a scripted llms.Model for tests.
package llmtest

import (
	"context"
	"sync"

	"github.com/tmc/langchaingo/llms"
)

// MockLLM implements llms.Model and replays scripted responses in order.
// When Handler is set it is consulted instead of the script.
type MockLLM struct {
	mu        sync.Mutex
	responses []llms.ContentResponse
	callCount int

	Handler func(messages []llms.MessageContent) (*llms.ContentResponse, error)
	Err     error

	// Calls records the messages of every GenerateContent call.
	Calls [][]llms.MessageContent
	// Options records the number of call options passed each time.
	Options []int
}

// New returns a MockLLM replaying responses.
func New(responses ...llms.ContentResponse) *MockLLM {
	return &MockLLM{responses: responses}
}

func (m *MockLLM) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls = append(m.Calls, messages)
	m.Options = append(m.Options, len(options))

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.Err != nil {
		return nil, m.Err
	}
	if m.Handler != nil {
		return m.Handler(messages)
	}
	if m.callCount >= len(m.responses) {
		return &llms.ContentResponse{
			Choices: []*llms.ContentChoice{
				{Content: "No more responses"},
			},
		}, nil
	}
	resp := m.responses[m.callCount]
	m.callCount++
	return &resp, nil
}

func (m *MockLLM) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

// CallCount returns how many times GenerateContent ran.
func (m *MockLLM) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

// Text is a response with plain content.
func Text(content string) llms.ContentResponse {
	return llms.ContentResponse{
		Choices: []*llms.ContentChoice{{Content: content}},
	}
}

// ToolCalls is a response requesting the given calls.
func ToolCalls(calls ...llms.ToolCall) llms.ContentResponse {
	return llms.ContentResponse{
		Choices: []*llms.ContentChoice{{ToolCalls: calls}},
	}
}

// Call builds a function tool call.
func Call(id, name, arguments string) llms.ToolCall {
	return llms.ToolCall{
		ID:   id,
		Type: "function",
		FunctionCall: &llms.FunctionCall{
			Name:      name,
			Arguments: arguments,
		},
	}
}

// LastText returns the concatenated text parts of the final message of the
// i-th call.
func (m *MockLLM) LastText(i int) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	msgs := m.Calls[i]
	return TextOf(msgs[len(msgs)-1])
}

// TextOf concatenates the text parts of a message.
func TextOf(mc llms.MessageContent) string {
	var s string
	for _, p := range mc.Parts {
		if tp, ok := p.(llms.TextContent); ok {
			s += tp.Text
		}
	}
	return s
}
