// Package qa implements the base question-answering agent: a ReAct loop over
// function calling with short-term history and optional long-term vector
// memory.
package qa

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/smallnest/agent101/llm"
	"github.com/smallnest/agent101/log"
	"github.com/smallnest/agent101/memory"
	"github.com/smallnest/agent101/tool"
)

const (
	systemPrompt = "You are an assistant with tool-use abilities. Use the functions for calculation and search."

	// Fallback is returned when the tool budget runs out without any text.
	Fallback = "Sorry, I was unable to complete the task."

	DefaultMaxToolSteps = 3
	memoryResults       = 3
)

// ErrNoAnswer is returned when the model ends the loop with empty content.
var ErrNoAnswer = errors.New("llm returned no valid answer")

// Agent answers questions, calling tools as the model requests.
type Agent struct {
	llm          *llm.Client
	tools        *tool.Registry
	vectors      memory.VectorMemory
	history      *memory.ShortTerm
	sessions     *memory.Sessions
	maxToolSteps int
}

// Option configures an Agent.
type Option func(*Agent)

// WithVectorMemory enables long-term memory retrieval and storage.
func WithVectorMemory(v memory.VectorMemory) Option {
	return func(a *Agent) {
		if v != nil {
			a.vectors = memory.Logged(v)
		}
	}
}

// WithHistory sets the short-term memory used by Ask.
func WithHistory(h *memory.ShortTerm) Option {
	return func(a *Agent) {
		a.history = h
	}
}

// WithSessions sets the store used by AskSession.
func WithSessions(s *memory.Sessions) Option {
	return func(a *Agent) {
		a.sessions = s
	}
}

// WithMaxToolSteps bounds the number of model turns per question.
func WithMaxToolSteps(n int) Option {
	return func(a *Agent) {
		if n > 0 {
			a.maxToolSteps = n
		}
	}
}

// New creates an agent.
func New(client *llm.Client, tools *tool.Registry, opts ...Option) *Agent {
	a := &Agent{
		llm:          client,
		tools:        tools,
		maxToolSteps: DefaultMaxToolSteps,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.history == nil {
		a.history = memory.NewShortTerm(0, memory.ApproxCounter{})
	}
	if a.sessions == nil {
		a.sessions = memory.NewSessions(0, memory.ApproxCounter{})
	}
	return a
}

// Ask answers question using the agent's own history.
func (a *Agent) Ask(ctx context.Context, question string) (string, error) {
	return a.ask(ctx, a.history, question)
}

// AskSession answers question within the history of sessionID.
func (a *Agent) AskSession(ctx context.Context, sessionID, question string) (string, error) {
	if sessionID == "" {
		return a.Ask(ctx, question)
	}
	return a.ask(ctx, a.sessions.Get(sessionID), question)
}

func (a *Agent) ask(ctx context.Context, history *memory.ShortTerm, question string) (string, error) {
	history.AddText(llm.RoleSystem, systemPrompt)
	history.AddText(llm.RoleUser, question)

	if a.vectors != nil {
		records, _ := a.vectors.Search(ctx, question, memoryResults)
		if len(records) > 0 {
			texts := make([]string, len(records))
			for i, r := range records {
				texts[i] = r.Text
			}
			history.AddText(llm.RoleSystem, "Related memories:\n"+strings.Join(texts, "\n"))
		}
	}

	messages := history.Messages()
	defs := a.tools.Definitions()

	var last *llm.Reply
	for step := 0; step < a.maxToolSteps; step++ {
		reply, err := a.llm.ChatWithTools(ctx, messages, defs)
		if err != nil {
			return "", err
		}
		last = reply

		if len(reply.ToolCalls) > 0 {
			messages = append(messages, llm.Assistant(reply.Content, reply.ToolCalls...))
			for _, call := range reply.ToolCalls {
				messages = append(messages, llm.ToolResult(call, a.runTool(ctx, call)))
			}
			continue
		}

		answer := strings.TrimSpace(reply.Content)
		if answer == "" {
			return "", ErrNoAnswer
		}
		history.AddText(llm.RoleAssistant, answer)

		if a.vectors != nil {
			_ = a.vectors.Add(ctx, []string{answer}, []map[string]any{{"source": "final_answer"}})
		}
		return answer, nil
	}

	log.Warn("qa: no answer after %d tool steps", a.maxToolSteps)
	if last != nil && strings.TrimSpace(last.Content) != "" {
		return last.Content, nil
	}
	return Fallback, nil
}

// runTool executes call and returns the tool message content. Failures are
// written back to the model instead of aborting the loop.
func (a *Agent) runTool(ctx context.Context, call llm.ToolCall) string {
	result, err := a.tools.Execute(ctx, call.Name, call.Arguments)
	if err != nil {
		log.Warn("qa: tool %s failed: %v", call.Name, err)
		return tool.ErrorResult(call.Name, err)
	}

	var value any = result
	if json.Valid([]byte(result)) {
		value = json.RawMessage(result)
	}
	b, _ := json.Marshal(map[string]any{"name": call.Name, "result": value})
	return string(b)
}
