// Package memory provides the agents' short-term context window and their
// long-term vector memory.
//
// ShortTerm keeps the ordered chat messages of one conversation inside a
// token budget, dropping the oldest message until the budget is met.
// VectorMemory stores texts with metadata and returns the most similar ones
// for a query; InMemoryVector, SQLiteVector and LangChainVector implement it.
package memory

import (
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
	"github.com/smallnest/agent101/llm"
	"github.com/smallnest/agent101/log"
)

// TokenCounter counts the tokens of a text.
type TokenCounter interface {
	Count(text string) int
}

// TokenCounterFunc adapts a function to TokenCounter.
type TokenCounterFunc func(text string) int

func (f TokenCounterFunc) Count(text string) int { return f(text) }

// ApproxCounter estimates one token per four bytes of UTF-8, rounded up. It
// is used when no tiktoken encoding can be loaded.
type ApproxCounter struct{}

func (ApproxCounter) Count(text string) int {
	return (len(text) + 3) / 4
}

type tiktokenCounter struct {
	enc *tiktoken.Tiktoken
}

func (c tiktokenCounter) Count(text string) int {
	return len(c.enc.Encode(text, nil, nil))
}

// NewTokenCounter returns a tiktoken counter for model, falling back to the
// cl100k_base encoding and then to ApproxCounter.
func NewTokenCounter(model string) TokenCounter {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
	}
	if err != nil {
		log.Warn("tiktoken unavailable, using approximate token counts: %v", err)
		return ApproxCounter{}
	}
	return tiktokenCounter{enc: enc}
}

// ShortTerm is a token-bounded conversation buffer. It is safe for
// concurrent use.
type ShortTerm struct {
	mu        sync.Mutex
	maxTokens int
	counter   TokenCounter
	messages  []llm.Message
}

// NewShortTerm creates a buffer holding at most maxTokens of content.
func NewShortTerm(maxTokens int, counter TokenCounter) *ShortTerm {
	if counter == nil {
		counter = ApproxCounter{}
	}
	return &ShortTerm{maxTokens: maxTokens, counter: counter}
}

// Add appends a message and truncates the buffer if needed.
func (m *ShortTerm) Add(msg llm.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, msg)
	m.truncate()
}

// AddText appends a role/content message.
func (m *ShortTerm) AddText(role llm.Role, content string) {
	m.Add(llm.Message{Role: role, Content: content})
}

// Messages returns a copy of the current messages.
func (m *ShortTerm) Messages() []llm.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]llm.Message, len(m.messages))
	copy(out, m.messages)
	return out
}

// Len returns the number of messages held.
func (m *ShortTerm) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.messages)
}

// Tokens returns the token count of the current window.
func (m *ShortTerm) Tokens() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tokens()
}

// Clear drops every message.
func (m *ShortTerm) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = nil
}

func (m *ShortTerm) tokens() int {
	parts := make([]string, len(m.messages))
	for i, msg := range m.messages {
		parts[i] = msg.Content
	}
	return m.counter.Count(strings.Join(parts, "\n"))
}

func (m *ShortTerm) truncate() {
	if m.maxTokens <= 0 {
		return
	}
	for len(m.messages) > 0 && m.tokens() > m.maxTokens {
		dropped := m.messages[0]
		m.messages = m.messages[1:]
		log.Debug("short-term memory dropped %s message (%d chars)", dropped.Role, len(dropped.Content))
	}
}
