package memory

import (
	"sync"
)

// Sessions holds one ShortTerm buffer per session ID.
type Sessions struct {
	mu        sync.Mutex
	maxTokens int
	counter   TokenCounter
	buffers   map[string]*ShortTerm
}

// NewSessions creates an empty session store whose buffers share the token
// budget settings.
func NewSessions(maxTokens int, counter TokenCounter) *Sessions {
	return &Sessions{
		maxTokens: maxTokens,
		counter:   counter,
		buffers:   make(map[string]*ShortTerm),
	}
}

// Get returns the buffer for id, creating it on first use.
func (s *Sessions) Get(id string) *ShortTerm {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.buffers[id]
	if !ok {
		b = NewShortTerm(s.maxTokens, s.counter)
		s.buffers[id] = b
	}
	return b
}

// Delete forgets a session.
func (s *Sessions) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.buffers, id)
}

// IDs returns the known session IDs.
func (s *Sessions) IDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.buffers))
	for id := range s.buffers {
		ids = append(ids, id)
	}
	return ids
}
