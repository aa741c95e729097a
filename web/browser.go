// Package web automates a headless browser through scripted steps.
package web

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/smallnest/agent101/log"
)

// DefaultTimeout bounds every browser action.
const DefaultTimeout = 15 * time.Second

// Browser is the set of page operations the agent scripts.
type Browser interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Goto(ctx context.Context, url string) error
	Click(ctx context.Context, selector string) error
	Fill(ctx context.Context, selector, text string) error
	WaitForSelector(ctx context.Context, selector string) error
	// ExtractText joins the text of all elements matching selector.
	ExtractText(ctx context.Context, selector string) (string, error)
	// Screenshot saves a full-page PNG and returns its path.
	Screenshot(ctx context.Context, name string) (string, error)
}

// RodBrowser drives Chrome through the DevTools protocol.
type RodBrowser struct {
	mu       sync.Mutex
	browser  *rod.Browser
	page     *rod.Page
	launcher *launcher.Launcher
	headless bool
	dir      string
	timeout  time.Duration
}

// Option configures a RodBrowser.
type Option func(*RodBrowser)

// WithHeadless sets headless mode (default true).
func WithHeadless(h bool) Option {
	return func(b *RodBrowser) { b.headless = h }
}

// WithArtifactsDir sets where screenshots are written.
func WithArtifactsDir(dir string) Option {
	return func(b *RodBrowser) { b.dir = dir }
}

// WithTimeout sets the per-action timeout.
func WithTimeout(d time.Duration) Option {
	return func(b *RodBrowser) { b.timeout = d }
}

// NewRodBrowser creates a browser; Chrome is launched by Start.
func NewRodBrowser(opts ...Option) *RodBrowser {
	b := &RodBrowser{
		headless: true,
		dir:      "artifacts/web",
		timeout:  DefaultTimeout,
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Start launches Chrome and opens a blank page.
func (b *RodBrowser) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.browser != nil {
		return fmt.Errorf("browser already running")
	}

	l := launcher.New().
		Context(ctx).
		Headless(b.headless).
		Set("disable-gpu").
		Set("no-first-run").
		Set("no-default-browser-check")

	controlURL, err := l.Launch()
	if err != nil {
		return fmt.Errorf("launch Chrome: %w", err)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return fmt.Errorf("connect to Chrome: %w", err)
	}

	page, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		_ = browser.Close()
		l.Kill()
		return fmt.Errorf("open page: %w", err)
	}

	b.browser = browser
	b.page = page
	b.launcher = l
	log.Info("browser started (headless=%t)", b.headless)
	return nil
}

// Stop closes Chrome. It is safe to call when not started.
func (b *RodBrowser) Stop(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.browser == nil {
		return nil
	}

	err := b.browser.Close()
	b.launcher.Cleanup()
	b.browser = nil
	b.page = nil
	b.launcher = nil
	log.Info("browser stopped")
	return err
}

// current returns the page bound to ctx with the action timeout applied.
// Callers must call done once the action finishes to release the timer.
func (b *RodBrowser) current(ctx context.Context) (page *rod.Page, done func(), err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.page == nil {
		return nil, nil, fmt.Errorf("browser not started")
	}
	page = b.page.Context(ctx).Timeout(b.timeout)
	return page, func() { page.CancelTimeout() }, nil
}

func (b *RodBrowser) Goto(ctx context.Context, url string) error {
	page, done, err := b.current(ctx)
	if err != nil {
		return err
	}
	defer done()
	if err := page.Navigate(url); err != nil {
		return fmt.Errorf("navigate: %w", err)
	}
	if err := page.WaitLoad(); err != nil {
		return fmt.Errorf("wait load: %w", err)
	}
	return nil
}

func (b *RodBrowser) Click(ctx context.Context, selector string) error {
	page, done, err := b.current(ctx)
	if err != nil {
		return err
	}
	defer done()
	el, err := page.Element(selector)
	if err != nil {
		return fmt.Errorf("find %s: %w", selector, err)
	}
	return el.Click(proto.InputMouseButtonLeft, 1)
}

func (b *RodBrowser) Fill(ctx context.Context, selector, text string) error {
	page, done, err := b.current(ctx)
	if err != nil {
		return err
	}
	defer done()
	el, err := page.Element(selector)
	if err != nil {
		return fmt.Errorf("find %s: %w", selector, err)
	}
	if err := el.SelectAllText(); err != nil {
		return fmt.Errorf("select %s: %w", selector, err)
	}
	return el.Input(text)
}

func (b *RodBrowser) WaitForSelector(ctx context.Context, selector string) error {
	page, done, err := b.current(ctx)
	if err != nil {
		return err
	}
	defer done()
	if _, err := page.Element(selector); err != nil {
		return fmt.Errorf("wait for %s: %w", selector, err)
	}
	return nil
}

func (b *RodBrowser) ExtractText(ctx context.Context, selector string) (string, error) {
	page, done, err := b.current(ctx)
	if err != nil {
		return "", err
	}
	defer done()
	els, err := page.Elements(selector)
	if err != nil {
		return "", fmt.Errorf("query %s: %w", selector, err)
	}
	texts := make([]string, 0, len(els))
	for _, el := range els {
		t, err := el.Text()
		if err != nil {
			return "", err
		}
		texts = append(texts, t)
	}
	return strings.TrimSpace(strings.Join(texts, "\n")), nil
}

func (b *RodBrowser) Screenshot(ctx context.Context, name string) (string, error) {
	path, err := ScreenshotPath(b.dir, name)
	if err != nil {
		return "", err
	}
	page, done, err := b.current(ctx)
	if err != nil {
		return "", err
	}
	defer done()
	data, err := page.Screenshot(true, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
	if err != nil {
		return "", fmt.Errorf("screenshot: %w", err)
	}

	if err := os.MkdirAll(b.dir, 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// ScreenshotPath returns where the screenshot called name is stored under
// dir. Names must be plain file names; anything that would resolve outside
// dir is rejected with ErrInvalidName.
func ScreenshotPath(dir, name string) (string, error) {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) || name != filepath.Base(name) {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	root := filepath.Clean(dir)
	path := filepath.Join(root, name+".png")
	rel, err := filepath.Rel(root, path)
	if err != nil || rel != filepath.Base(path) {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return path, nil
}
