package web

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-rod/rod/lib/launcher"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBrowser struct {
	calls    []string
	started  bool
	stopped  bool
	startErr error
	failOn   string
	pages    map[string]string
}

func (f *fakeBrowser) record(format string, args ...any) error {
	call := fmt.Sprintf(format, args...)
	f.calls = append(f.calls, call)
	if f.failOn != "" && call == f.failOn {
		return errors.New("element not found")
	}
	return nil
}

func (f *fakeBrowser) Start(context.Context) error {
	if f.startErr != nil {
		return f.startErr
	}
	f.started = true
	return nil
}

func (f *fakeBrowser) Stop(context.Context) error {
	f.stopped = true
	return nil
}

func (f *fakeBrowser) Goto(_ context.Context, url string) error { return f.record("goto %s", url) }
func (f *fakeBrowser) Click(_ context.Context, sel string) error {
	return f.record("click %s", sel)
}
func (f *fakeBrowser) Fill(_ context.Context, sel, text string) error {
	return f.record("fill %s %s", sel, text)
}
func (f *fakeBrowser) WaitForSelector(_ context.Context, sel string) error {
	return f.record("wait %s", sel)
}

func (f *fakeBrowser) ExtractText(_ context.Context, sel string) (string, error) {
	if err := f.record("extract %s", sel); err != nil {
		return "", err
	}
	return f.pages[sel], nil
}

func (f *fakeBrowser) Screenshot(_ context.Context, name string) (string, error) {
	if err := f.record("screenshot %s", name); err != nil {
		return "", err
	}
	return "artifacts/web/" + name + ".png", nil
}

func TestExecuteActionValidation(t *testing.T) {
	b := &fakeBrowser{}
	ctx := context.Background()

	for _, a := range []Action{
		{Type: ActionGoto},
		{Type: ActionWaitForSelector},
		{Type: ActionFill, Text: "x"},
		{Type: ActionClick},
		{Type: ActionExtractText},
	} {
		_, err := ExecuteAction(ctx, b, a)
		assert.ErrorIs(t, err, ErrMissingField, a.Type)
	}

	_, err := ExecuteAction(ctx, b, Action{Type: "hover"})
	assert.ErrorIs(t, err, ErrUnknownAction)
	assert.Empty(t, b.calls)
}

func TestExecuteActionScreenshotDefaultName(t *testing.T) {
	b := &fakeBrowser{}
	out, err := ExecuteAction(context.Background(), b, Action{Type: ActionScreenshot})
	require.NoError(t, err)
	assert.Equal(t, "artifacts/web/page.png", out)
}

func TestAgentRun(t *testing.T) {
	b := &fakeBrowser{
		failOn: "click #missing",
		pages:  map[string]string{"h1": "Example Domain"},
	}
	agent := NewAgent(b)

	res, err := agent.Run(context.Background(), []Action{
		{Type: ActionGoto, URL: "https://example.com"},
		{Type: ActionWaitForSelector, Selector: "h1"},
		{Type: ActionClick, Selector: "#missing"},
		{Type: ActionFill, Selector: "input[name=q]", Text: "golang"},
		{Type: ActionExtractText, Selector: "h1"},
		{Type: "scroll"},
		{Type: ActionScreenshot, Name: "home"},
	})
	require.NoError(t, err)

	assert.True(t, b.started)
	assert.True(t, b.stopped)
	assert.Equal(t, []StepResult{
		{Step: 0, Type: ActionGoto},
		{Step: 1, Type: ActionWaitForSelector},
		{Step: 3, Type: ActionFill},
		{Step: 4, Type: ActionExtractText, Output: "Example Domain"},
		{Step: 6, Type: ActionScreenshot, Output: "artifacts/web/home.png"},
	}, res.Results)
	require.Len(t, res.Errors, 2)
	assert.Equal(t, "step 2 (click): element not found", res.Errors[0])
	assert.Contains(t, res.Errors[1], "step 5 (scroll)")
}

func TestAgentRunStartFailure(t *testing.T) {
	b := &fakeBrowser{startErr: errors.New("chrome not found")}
	_, err := NewAgent(b).Run(context.Background(), []Action{{Type: ActionGoto, URL: "x"}})
	require.Error(t, err)
	assert.False(t, b.stopped)
}

func TestAgentRunEmptyScript(t *testing.T) {
	b := &fakeBrowser{}
	res, err := NewAgent(b).Run(context.Background(), nil)
	require.NoError(t, err)
	assert.NotNil(t, res.Results)
	assert.NotNil(t, res.Errors)
	assert.True(t, b.stopped)
}

func TestRodBrowserNotStarted(t *testing.T) {
	b := NewRodBrowser(WithArtifactsDir(t.TempDir()))
	assert.Error(t, b.Goto(context.Background(), "https://example.com"))
	_, err := b.Screenshot(context.Background(), "x")
	assert.Error(t, err)
	assert.NoError(t, b.Stop(context.Background()))
}

func TestScreenshotNameTraversal(t *testing.T) {
	b := &fakeBrowser{}
	ctx := context.Background()

	for _, name := range []string{
		"../../../tmp/pwn",
		"..",
		"shots/page",
		`..\evil`,
		"/etc/passwd",
	} {
		_, err := ExecuteAction(ctx, b, Action{Type: ActionScreenshot, Name: name})
		assert.ErrorIs(t, err, ErrInvalidName, name)
	}
	assert.Empty(t, b.calls)
}

func TestScreenshotPath(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		want    string
		wantErr bool
	}{
		{name: "example", want: filepath.Join(dir, "example.png")},
		{name: "step-3.final", want: filepath.Join(dir, "step-3.final.png")},
		{name: "../../../tmp/pwn", wantErr: true},
		{name: "..", wantErr: true},
		{name: "a/b", wantErr: true},
		{name: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ScreenshotPath(dir, tt.name)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidName)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRodBrowserRunsActionsInSequence(t *testing.T) {
	if testing.Short() {
		t.Skip("launches Chrome")
	}
	if _, ok := launcher.LookPath(); !ok {
		t.Skip("Chrome not installed")
	}

	dir := t.TempDir()
	b := NewRodBrowser(WithArtifactsDir(dir), WithTimeout(10*time.Second))
	res, err := NewAgent(b).Run(context.Background(), []Action{
		{Type: ActionGoto, URL: "data:text/html,<h1>hello</h1>"},
		{Type: ActionWaitForSelector, Selector: "h1"},
		{Type: ActionExtractText, Selector: "h1"},
		{Type: ActionScreenshot, Name: "hello"},
		{Type: ActionScreenshot, Name: "../escape"},
	})
	require.NoError(t, err)
	require.Len(t, res.Results, 4)
	assert.Equal(t, "hello", res.Results[2].Output)
	assert.Equal(t, filepath.Join(dir, "hello.png"), res.Results[3].Output)
	assert.FileExists(t, filepath.Join(dir, "hello.png"))
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "invalid screenshot name")
}
