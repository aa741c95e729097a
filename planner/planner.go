// Package planner asks the model to break a question into a short list of
// executable steps.
package planner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/smallnest/agent101/llm"
	"github.com/smallnest/agent101/log"
)

// ErrInvalidPlan is returned when the model output is not a JSON array of steps.
var ErrInvalidPlan = errors.New("planner output is not a valid plan")

// SystemPrompt instructs the model to answer with a bare JSON array.
const SystemPrompt = "You are a planner who is good at breaking down tasks. Split the user's task into 3-5 executable steps, " +
	"preferring the available tools (calculator, web_search, web_fetch), and output a strict JSON array " +
	"where every element has: goal (the objective) and action (what to do). Output nothing but the JSON."

// Step is one entry of a plan.
type Step struct {
	Goal   string `json:"goal"`
	Action string `json:"action"`
}

// Planner generates plans with an LLM.
type Planner struct {
	llm *llm.Client
}

// New creates a planner.
func New(client *llm.Client) *Planner {
	return &Planner{llm: client}
}

// Plan returns the steps for question.
func (p *Planner) Plan(ctx context.Context, question string) ([]Step, error) {
	text, err := p.llm.Chat(ctx, []llm.Message{
		llm.System(SystemPrompt),
		llm.User(question),
	})
	if err != nil {
		return nil, err
	}

	steps, err := Parse(text)
	if err != nil {
		return nil, err
	}
	log.Debug("planner produced %d steps", len(steps))
	return steps, nil
}

var codeBlockRegex = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")

// Parse decodes a plan from model output, unwrapping a markdown code fence
// when present.
func Parse(text string) ([]Step, error) {
	body := strings.TrimSpace(text)
	if m := codeBlockRegex.FindStringSubmatch(body); len(m) > 1 {
		body = m[1]
	}

	var raw any
	if err := json.Unmarshal([]byte(body), &raw); err != nil {
		return nil, fmt.Errorf("%w: %v\nraw: %s", ErrInvalidPlan, err, text)
	}
	if _, ok := raw.([]any); !ok {
		return nil, fmt.Errorf("%w: not a JSON array\nraw: %s", ErrInvalidPlan, text)
	}

	var steps []Step
	if err := json.Unmarshal([]byte(body), &steps); err != nil {
		return nil, fmt.Errorf("%w: %v\nraw: %s", ErrInvalidPlan, err, text)
	}
	return steps, nil
}
