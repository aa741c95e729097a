// Package executor runs a plan produced by the planner as a state graph:
// plan, then alternate between choosing a tool for the current step and
// executing it, then summarize.
//
//	plan -> choose -> execute -> choose -> ... -> END
package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/smallnest/agent101/graph"
	"github.com/smallnest/agent101/llm"
	"github.com/smallnest/agent101/log"
	"github.com/smallnest/agent101/planner"
	"github.com/smallnest/agent101/store"
	"github.com/smallnest/agent101/tool"
)

const (
	executorPrompt  = "You are an executor. Complete the task step by step following the plan, calling tools when needed."
	summarizePrompt = "Summarize the information above and give the final answer."
)

// Node names.
const (
	NodePlan    = "plan"
	NodeChoose  = "choose"
	NodeExecute = "execute"
)

// App is the planner/executor application.
type App struct {
	llm         *llm.Client
	planner     *planner.Planner
	tools       *tool.Registry
	checkpoints store.CheckpointStore
	runnable    *graph.StateRunnable[AgentState]
	diagram     string
}

// Option configures an App.
type Option func(*options)

type options struct {
	checkpoints    store.CheckpointStore
	recursionLimit int
}

// WithCheckpointStore persists the state after every graph step.
func WithCheckpointStore(s store.CheckpointStore) Option {
	return func(o *options) {
		o.checkpoints = s
	}
}

// WithRecursionLimit caps the number of node executions per run.
func WithRecursionLimit(n int) Option {
	return func(o *options) {
		o.recursionLimit = n
	}
}

// New builds the graph. Without a checkpoint store runs are kept in memory.
func New(client *llm.Client, tools *tool.Registry, opts ...Option) (*App, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.checkpoints == nil {
		o.checkpoints = store.NewMemory()
	}

	app := &App{
		llm:         client,
		planner:     planner.New(client),
		tools:       tools,
		checkpoints: o.checkpoints,
	}

	g := graph.NewStateGraph[AgentState]()
	g.AddNode(NodePlan, "Break the question into steps", app.plan)
	g.AddNode(NodeChoose, "Pick a tool for the current step or summarize", app.choose)
	g.AddNode(NodeExecute, "Run the pending tool calls", app.execute)
	g.AddEdge(NodePlan, NodeChoose)
	g.AddConditionalEdge(NodeChoose, route)
	g.AddEdge(NodeExecute, NodeChoose)
	g.SetEntryPoint(NodePlan)
	g.SetRecursionLimit(o.recursionLimit)
	app.diagram = g.DrawMermaid()

	runnable, err := g.Compile()
	if err != nil {
		return nil, fmt.Errorf("compile executor graph: %w", err)
	}
	app.runnable = runnable
	return app, nil
}

// Run answers question and returns the outcome. Node failures are reported
// in Result.Error; the returned error is only set when ctx ends the run.
func (a *App) Run(ctx context.Context, question string) (*Result, error) {
	runID := uuid.NewString()
	log.Info("run %s started", runID)

	saver := graph.ListenerFunc[AgentState](func(ctx context.Context, step int, node string, state AgentState) {
		cp, err := store.NewCheckpoint(runID, step, node, state)
		if err != nil {
			log.Warn("run %s: encode checkpoint %d: %v", runID, step, err)
			return
		}
		if err := a.checkpoints.Save(ctx, cp); err != nil {
			log.Warn("run %s: save checkpoint %d: %v", runID, step, err)
		}
	})

	final, err := a.runnable.Invoke(ctx, newState(question), saver)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return final.result(runID), err
		}
		log.Error("run %s failed: %v", runID, err)
		if final.Error == "" {
			final.Error = err.Error()
		}
	}

	log.Info("run %s finished after %d tool calls", runID, len(final.ToolOutputs))
	return final.result(runID), nil
}

// Mermaid returns the executor graph as a Mermaid flowchart.
func (a *App) Mermaid() string {
	return a.diagram
}

// Checkpoints returns the saved steps of a run.
func (a *App) Checkpoints(ctx context.Context, runID string) ([]*store.Checkpoint, error) {
	return a.checkpoints.List(ctx, runID)
}

func (a *App) plan(ctx context.Context, s AgentState) (AgentState, error) {
	steps, err := a.planner.Plan(ctx, s.Question)
	if err != nil {
		return s.fail(fmt.Sprintf("planning failed: %v", err)), nil
	}
	if steps == nil {
		steps = []planner.Step{}
	}

	planJSON, _ := json.Marshal(steps)
	s.Plan = steps
	s.StepIndex = 0
	s.ToolOutputs = []ToolOutput{}
	s.Messages = []llm.Message{
		llm.System(executorPrompt),
		llm.User(s.Question),
		llm.System("Current plan: " + string(planJSON)),
	}
	return s, nil
}

func (a *App) choose(ctx context.Context, s AgentState) (AgentState, error) {
	if s.Completed {
		return s, nil
	}
	if s.StepIndex >= len(s.Plan) {
		msgs := append(append([]llm.Message{}, s.Messages...), llm.User(summarizePrompt))
		answer, err := a.llm.Chat(ctx, msgs)
		if err != nil {
			return s.fail(fmt.Sprintf("summarization failed: %v", err)), nil
		}
		s.FinalAnswer = answer
		s.Completed = true
		return s, nil
	}

	current, _ := json.Marshal(s.Plan[s.StepIndex])
	s.Messages = append(s.Messages, llm.System("Current step: "+string(current)))

	reply, err := a.llm.ChatWithTools(ctx, s.Messages, a.tools.Definitions())
	if err != nil {
		return s.fail(fmt.Sprintf("tool selection failed: %v", err)), nil
	}

	if len(reply.ToolCalls) > 0 {
		s.Messages = append(s.Messages, llm.Assistant(reply.Content, reply.ToolCalls...))
		s.PendingToolCalls = reply.ToolCalls
		return s, nil
	}

	s.Messages = append(s.Messages, llm.Assistant(reply.Content))
	s.StepIndex++
	return s, nil
}

func (a *App) execute(ctx context.Context, s AgentState) (AgentState, error) {
	for _, call := range s.PendingToolCalls {
		out := ToolOutput{Name: call.Name}
		if call.Arguments != "" && json.Valid([]byte(call.Arguments)) {
			out.Args = json.RawMessage(call.Arguments)
		}

		var content string
		result, err := a.tools.Execute(ctx, call.Name, call.Arguments)
		if err != nil {
			log.Warn("tool %s failed: %v", call.Name, err)
			out.Result, _ = json.Marshal(map[string]string{"error": err.Error()})
			content = tool.ErrorResult(call.Name, err)
		} else {
			out.Result = rawJSON(result)
			b, _ := json.Marshal(map[string]any{"name": call.Name, "result": out.Result})
			content = string(b)
		}

		s.Messages = append(s.Messages, llm.ToolResult(call, content))
		s.ToolOutputs = append(s.ToolOutputs, out)
	}
	s.PendingToolCalls = []llm.ToolCall{}
	return s, nil
}

// route leaves the graph once the run is completed. Otherwise it passes
// through execute, which is a no-op without pending calls, back to choose.
func route(_ context.Context, s AgentState) string {
	if s.Completed {
		return graph.END
	}
	return NodeExecute
}
