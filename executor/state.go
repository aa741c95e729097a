package executor

import (
	"encoding/json"

	"github.com/smallnest/agent101/llm"
	"github.com/smallnest/agent101/planner"
)

// AgentState is the state carried through the planner/executor graph.
type AgentState struct {
	Question         string         `json:"question"`
	Plan             []planner.Step `json:"plan"`
	StepIndex        int            `json:"step_index"`
	Messages         []llm.Message  `json:"messages"`
	ToolOutputs      []ToolOutput   `json:"tool_outputs"`
	PendingToolCalls []llm.ToolCall `json:"pending_tool_calls"`
	FinalAnswer      string         `json:"final_answer,omitempty"`
	Completed        bool           `json:"completed"`
	Error            string         `json:"error,omitempty"`
}

// ToolOutput records one executed tool call.
type ToolOutput struct {
	Name   string          `json:"name"`
	Args   json.RawMessage `json:"args,omitempty"`
	Result json.RawMessage `json:"result"`
}

// Result is what a run returns to callers.
type Result struct {
	RunID       string         `json:"run_id"`
	FinalAnswer string         `json:"final_answer"`
	Plan        []planner.Step `json:"plan"`
	ToolOutputs []ToolOutput   `json:"tool_outputs"`
	Error       string         `json:"error,omitempty"`
}

func newState(question string) AgentState {
	return AgentState{
		Question:         question,
		Plan:             []planner.Step{},
		Messages:         []llm.Message{},
		ToolOutputs:      []ToolOutput{},
		PendingToolCalls: []llm.ToolCall{},
	}
}

func (s AgentState) result(runID string) *Result {
	return &Result{
		RunID:       runID,
		FinalAnswer: s.FinalAnswer,
		Plan:        s.Plan,
		ToolOutputs: s.ToolOutputs,
		Error:       s.Error,
	}
}

// fail ends the run with msg.
func (s AgentState) fail(msg string) AgentState {
	s.Error = msg
	s.Completed = true
	return s
}

// rawJSON returns s as a raw JSON value, quoting it when it is not valid JSON.
func rawJSON(s string) json.RawMessage {
	if s != "" && json.Valid([]byte(s)) {
		return json.RawMessage(s)
	}
	b, _ := json.Marshal(s)
	return b
}
