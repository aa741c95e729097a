package web

import (
	"context"
	"errors"
	"fmt"

	"github.com/smallnest/agent101/log"
)

var (
	// ErrUnknownAction is returned for an unsupported action type.
	ErrUnknownAction = errors.New("unknown action type")
	// ErrMissingField is returned when an action lacks a required field.
	ErrMissingField = errors.New("missing required field")
	// ErrInvalidName is returned for a screenshot name that is not a plain
	// file name.
	ErrInvalidName = errors.New("invalid screenshot name")
)

// Action types.
const (
	ActionGoto            = "goto"
	ActionWaitForSelector = "wait_for_selector"
	ActionFill            = "fill"
	ActionClick           = "click"
	ActionExtractText     = "extract_text"
	ActionScreenshot      = "screenshot"
)

// Action is one scripted browser step.
type Action struct {
	Type     string `json:"type"`
	URL      string `json:"url,omitempty"`
	Selector string `json:"selector,omitempty"`
	Text     string `json:"text,omitempty"`
	Name     string `json:"name,omitempty"`
}

// ExecuteAction performs a on b and returns its output: the extracted text,
// the screenshot path, or an empty string.
func ExecuteAction(ctx context.Context, b Browser, a Action) (string, error) {
	switch a.Type {
	case ActionGoto:
		if a.URL == "" {
			return "", fmt.Errorf("%w: goto needs url", ErrMissingField)
		}
		return "", b.Goto(ctx, a.URL)
	case ActionWaitForSelector:
		if a.Selector == "" {
			return "", fmt.Errorf("%w: wait_for_selector needs selector", ErrMissingField)
		}
		return "", b.WaitForSelector(ctx, a.Selector)
	case ActionFill:
		if a.Selector == "" {
			return "", fmt.Errorf("%w: fill needs selector", ErrMissingField)
		}
		return "", b.Fill(ctx, a.Selector, a.Text)
	case ActionClick:
		if a.Selector == "" {
			return "", fmt.Errorf("%w: click needs selector", ErrMissingField)
		}
		return "", b.Click(ctx, a.Selector)
	case ActionExtractText:
		if a.Selector == "" {
			return "", fmt.Errorf("%w: extract_text needs selector", ErrMissingField)
		}
		return b.ExtractText(ctx, a.Selector)
	case ActionScreenshot:
		name := a.Name
		if name == "" {
			name = "page"
		}
		if _, err := ScreenshotPath(".", name); err != nil {
			return "", err
		}
		return b.Screenshot(ctx, name)
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownAction, a.Type)
	}
}

// StepResult is the output of a successful step.
type StepResult struct {
	Step   int    `json:"step"`
	Type   string `json:"type"`
	Output string `json:"output"`
}

// Result collects the outcome of a script.
type Result struct {
	Results []StepResult `json:"results"`
	Errors  []string     `json:"errors"`
}

// Agent runs action scripts on a browser.
type Agent struct {
	browser Browser
}

// NewAgent creates an agent driving b.
func NewAgent(b Browser) *Agent {
	return &Agent{browser: b}
}

// Run starts the browser, executes steps in order and always stops the
// browser. A failing step is recorded and the script continues.
func (a *Agent) Run(ctx context.Context, steps []Action) (*Result, error) {
	if err := a.browser.Start(ctx); err != nil {
		return nil, err
	}
	defer func() {
		if err := a.browser.Stop(context.WithoutCancel(ctx)); err != nil {
			log.Warn("stop browser: %v", err)
		}
	}()

	res := &Result{Results: []StepResult{}, Errors: []string{}}
	for i, step := range steps {
		out, err := ExecuteAction(ctx, a.browser, step)
		if err != nil {
			log.Error("step failed (%s): %v", step.Type, err)
			res.Errors = append(res.Errors, fmt.Sprintf("step %d (%s): %v", i, step.Type, err))
			continue
		}
		res.Results = append(res.Results, StepResult{Step: i, Type: step.Type, Output: out})
	}
	return res, nil
}
