package executor

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/smallnest/agent101/llm"
	"github.com/smallnest/agent101/llm/llmtest"
	"github.com/smallnest/agent101/planner"
	"github.com/smallnest/agent101/store"
	"github.com/smallnest/agent101/tool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

func newApp(t *testing.T, mock *llmtest.MockLLM, opts ...Option) *App {
	t.Helper()
	app, err := New(llm.NewClient(mock, 0), tool.NewRegistry(tool.NewCalculator()), opts...)
	require.NoError(t, err)
	return app
}

func TestRunWithToolCall(t *testing.T) {
	mock := llmtest.New(
		llmtest.Text(`[{"goal":"compute","action":"calculate 2+3"}]`),
		llmtest.ToolCalls(llmtest.Call("c1", "evaluate_expression", `{"expression":"2+3"}`)),
		llmtest.Text("2+3 equals 5"),
		llmtest.Text("The answer is 5."),
	)
	checkpoints := store.NewMemory()
	app := newApp(t, mock, WithCheckpointStore(checkpoints))

	res, err := app.Run(context.Background(), "What is 2+3?")
	require.NoError(t, err)

	assert.NotEmpty(t, res.RunID)
	assert.Empty(t, res.Error)
	assert.Equal(t, "The answer is 5.", res.FinalAnswer)
	assert.Equal(t, []planner.Step{{Goal: "compute", Action: "calculate 2+3"}}, res.Plan)
	require.Len(t, res.ToolOutputs, 1)
	assert.Equal(t, "evaluate_expression", res.ToolOutputs[0].Name)
	assert.JSONEq(t, `{"expression":"2+3"}`, string(res.ToolOutputs[0].Args))
	assert.JSONEq(t, `5`, string(res.ToolOutputs[0].Result))
	assert.Equal(t, 4, mock.CallCount())

	// plan, choose, execute, choose, execute, choose
	cps, err := app.Checkpoints(context.Background(), res.RunID)
	require.NoError(t, err)
	require.Len(t, cps, 6)
	nodes := make([]string, len(cps))
	for i, cp := range cps {
		nodes[i] = cp.Node
		assert.Equal(t, i+1, cp.Step)
	}
	assert.Equal(t, []string{NodePlan, NodeChoose, NodeExecute, NodeChoose, NodeExecute, NodeChoose}, nodes)

	var last AgentState
	require.NoError(t, json.Unmarshal(cps[len(cps)-1].State, &last))
	assert.True(t, last.Completed)
	assert.Equal(t, 1, last.StepIndex)
}

func TestToolMessagesFollowAssistantCall(t *testing.T) {
	mock := llmtest.New(
		llmtest.Text(`[{"goal":"compute","action":"calc"}]`),
		llmtest.ToolCalls(llmtest.Call("c1", "evaluate_expression", `{"expression":"6*7"}`)),
		llmtest.Text("42"),
		llmtest.Text("42"),
	)
	app := newApp(t, mock)
	_, err := app.Run(context.Background(), "6*7?")
	require.NoError(t, err)

	// The third call sees the tool result.
	msgs := mock.Calls[2]
	tail := msgs[len(msgs)-1]
	require.Len(t, tail.Parts, 1)
	resp, ok := tail.Parts[0].(llms.ToolCallResponse)
	require.True(t, ok)
	assert.Equal(t, "c1", resp.ToolCallID)
	assert.JSONEq(t, `{"name":"evaluate_expression","result":42}`, resp.Content)

	// The assistant message carrying the call precedes it.
	call, ok := msgs[len(msgs)-2].Parts[0].(llms.ToolCall)
	require.True(t, ok)
	assert.Equal(t, "evaluate_expression", call.FunctionCall.Name)
}

func TestStepIndexNeverDecreases(t *testing.T) {
	mock := llmtest.New(
		llmtest.Text(`[{"goal":"a","action":"a"},{"goal":"b","action":"b"}]`),
		llmtest.Text("did a"),
		llmtest.ToolCalls(llmtest.Call("c1", "evaluate_expression", `{"expression":"1/0"}`)),
		llmtest.Text("did b"),
		llmtest.Text("done"),
	)
	checkpoints := store.NewMemory()
	app := newApp(t, mock, WithCheckpointStore(checkpoints))

	res, err := app.Run(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, "done", res.FinalAnswer)

	require.Len(t, res.ToolOutputs, 1)
	assert.Contains(t, string(res.ToolOutputs[0].Result), "division by zero")

	cps, err := checkpoints.List(context.Background(), res.RunID)
	require.NoError(t, err)
	prev := 0
	for _, cp := range cps {
		var s AgentState
		require.NoError(t, json.Unmarshal(cp.State, &s))
		assert.GreaterOrEqual(t, s.StepIndex, prev)
		assert.LessOrEqual(t, s.StepIndex, len(s.Plan))
		prev = s.StepIndex
	}
	assert.Equal(t, 2, prev)
}

func TestPlanningFailure(t *testing.T) {
	mock := llmtest.New(llmtest.Text("not json"))
	app := newApp(t, mock)

	res, err := app.Run(context.Background(), "q")
	require.NoError(t, err)
	assert.Contains(t, res.Error, "planning failed")
	assert.Contains(t, res.Error, "not json")
	assert.Empty(t, res.FinalAnswer)
	assert.Equal(t, 1, mock.CallCount())
}

func TestEmptyPlanSummarizesImmediately(t *testing.T) {
	mock := llmtest.New(llmtest.Text(`[]`), llmtest.Text("nothing to do"))
	app := newApp(t, mock)

	res, err := app.Run(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, "nothing to do", res.FinalAnswer)
	assert.Empty(t, res.Plan)
}

func TestToolSelectionFailure(t *testing.T) {
	calls := 0
	mock := &llmtest.MockLLM{}
	mock.Handler = func(_ []llms.MessageContent) (*llms.ContentResponse, error) {
		calls++
		if calls == 1 {
			r := llmtest.Text(`[{"goal":"a","action":"a"}]`)
			return &r, nil
		}
		return nil, errors.New("rate limited")
	}
	app := newApp(t, mock)

	res, err := app.Run(context.Background(), "q")
	require.NoError(t, err)
	assert.Contains(t, res.Error, "tool selection failed")
	assert.Contains(t, res.Error, "rate limited")
}

func TestUnknownToolIsRecorded(t *testing.T) {
	mock := llmtest.New(
		llmtest.Text(`[{"goal":"a","action":"a"}]`),
		llmtest.ToolCalls(llmtest.Call("c1", "teleport", `{}`)),
		llmtest.Text("ok"),
		llmtest.Text("final"),
	)
	app := newApp(t, mock)

	res, err := app.Run(context.Background(), "q")
	require.NoError(t, err)
	require.Len(t, res.ToolOutputs, 1)
	assert.Contains(t, string(res.ToolOutputs[0].Result), "unknown tool")
	assert.Equal(t, "final", res.FinalAnswer)
}

func TestRecursionLimitEndsRun(t *testing.T) {
	mock := &llmtest.MockLLM{}
	first := true
	mock.Handler = func(_ []llms.MessageContent) (*llms.ContentResponse, error) {
		if first {
			first = false
			r := llmtest.Text(`[{"goal":"a","action":"a"}]`)
			return &r, nil
		}
		r := llmtest.ToolCalls(llmtest.Call("c", "evaluate_expression", `{"expression":"1"}`))
		return &r, nil
	}
	app := newApp(t, mock, WithRecursionLimit(7))

	res, err := app.Run(context.Background(), "q")
	require.NoError(t, err)
	assert.Contains(t, res.Error, "recursion limit")
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	app := newApp(t, llmtest.New())
	res, err := app.Run(ctx, "q")
	require.ErrorIs(t, err, context.Canceled)
	assert.NotEmpty(t, res.RunID)
}

func TestMermaid(t *testing.T) {
	out := newApp(t, llmtest.New()).Mermaid()
	assert.Contains(t, out, "START --> plan")
	assert.Contains(t, out, "plan --> choose")
	assert.Contains(t, out, "execute --> choose")
	assert.Contains(t, out, "choose -.-> choose_condition((?))")
}
