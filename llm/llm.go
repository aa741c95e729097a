// Package llm wraps a langchaingo chat model with a per-call timeout and the
// plain and tool-calling chat operations the agents use.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/smallnest/agent101/config"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// ErrEmptyResponse is returned when the model produced no usable output.
var ErrEmptyResponse = errors.New("llm: empty response")

// Reply is the result of a tool-calling chat turn.
type Reply struct {
	Content   string
	ToolCalls []ToolCall
}

// Client calls a chat model with a bounded timeout.
type Client struct {
	model   llms.Model
	timeout time.Duration
}

// NewClient wraps model. A zero timeout disables the deadline.
func NewClient(model llms.Model, timeout time.Duration) *Client {
	return &Client{model: model, timeout: timeout}
}

// New builds an OpenAI-backed client from settings.
func New(s config.Settings) (*Client, error) {
	if err := s.RequireAPIKey(); err != nil {
		return nil, err
	}
	opts := []openai.Option{
		openai.WithToken(s.OpenAIAPIKey),
		openai.WithModel(s.ChatModel),
	}
	if s.OpenAIBaseURL != "" {
		opts = append(opts, openai.WithBaseURL(s.OpenAIBaseURL))
	}
	model, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create chat model: %w", err)
	}
	return NewClient(model, s.Timeout()), nil
}

// Model returns the underlying langchaingo model.
func (c *Client) Model() llms.Model {
	return c.model
}

func (c *Client) generate(ctx context.Context, msgs []Message, opts ...llms.CallOption) (*llms.ContentChoice, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	resp, err := c.model.GenerateContent(ctx, ToMessageContent(msgs), opts...)
	if err != nil {
		return nil, fmt.Errorf("generate content: %w", err)
	}
	if resp == nil || len(resp.Choices) == 0 || resp.Choices[0] == nil {
		return nil, ErrEmptyResponse
	}
	return resp.Choices[0], nil
}

// Chat sends msgs and returns the text of the first choice.
func (c *Client) Chat(ctx context.Context, msgs []Message, opts ...llms.CallOption) (string, error) {
	choice, err := c.generate(ctx, msgs, opts...)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(choice.Content) == "" {
		return "", ErrEmptyResponse
	}
	return choice.Content, nil
}

// Prompt is Chat with a single system and user message.
func (c *Client) Prompt(ctx context.Context, system, user string) (string, error) {
	return c.Chat(ctx, []Message{System(system), User(user)})
}

// ChatWithTools offers tools to the model. The reply carries either tool calls
// or final content; both may be empty.
func (c *Client) ChatWithTools(ctx context.Context, msgs []Message, tools []llms.Tool) (*Reply, error) {
	var opts []llms.CallOption
	if len(tools) > 0 {
		opts = append(opts, llms.WithTools(tools))
	}
	choice, err := c.generate(ctx, msgs, opts...)
	if err != nil {
		return nil, err
	}
	return &Reply{
		Content:   choice.Content,
		ToolCalls: fromToolCalls(choice.ToolCalls),
	}, nil
}
