// Package store persists per-step checkpoints of planner/executor runs.
//
// Implementations: Memory in this package, and the sqlite, redis and
// postgres subpackages.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// ErrNotFound is returned when a checkpoint does not exist.
var ErrNotFound = errors.New("checkpoint not found")

// Checkpoint represents the state of a run after one graph step.
type Checkpoint struct {
	ID        string          `json:"id"`
	RunID     string          `json:"run_id"`
	Step      int             `json:"step"`
	Node      string          `json:"node"`
	State     json.RawMessage `json:"state"`
	CreatedAt time.Time       `json:"created_at"`
}

// CheckpointStore defines the interface for checkpoint persistence
type CheckpointStore interface {
	// Save stores a checkpoint, replacing one with the same ID.
	Save(ctx context.Context, checkpoint *Checkpoint) error

	// Load retrieves a checkpoint by ID
	Load(ctx context.Context, checkpointID string) (*Checkpoint, error)

	// List returns the checkpoints of a run ordered by step.
	List(ctx context.Context, runID string) ([]*Checkpoint, error)

	// Delete removes a checkpoint
	Delete(ctx context.Context, checkpointID string) error

	// Clear removes all checkpoints of a run.
	Clear(ctx context.Context, runID string) error
}

// NewCheckpoint builds a checkpoint for step of runID, encoding state as JSON.
func NewCheckpoint(runID string, step int, node string, state any) (*Checkpoint, error) {
	data, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal state: %w", err)
	}
	return &Checkpoint{
		ID:        fmt.Sprintf("%s-%04d", runID, step),
		RunID:     runID,
		Step:      step,
		Node:      node,
		State:     data,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// SortByStep orders checkpoints by step.
func SortByStep(cps []*Checkpoint) {
	sort.SliceStable(cps, func(i, j int) bool { return cps[i].Step < cps[j].Step })
}

// Memory is an in-process CheckpointStore.
type Memory struct {
	mu          sync.RWMutex
	checkpoints map[string]*Checkpoint
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{checkpoints: make(map[string]*Checkpoint)}
}

func (m *Memory) Save(_ context.Context, cp *Checkpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *cp
	m.checkpoints[cp.ID] = &c
	return nil
}

func (m *Memory) Load(_ context.Context, id string) (*Checkpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cp, ok := m.checkpoints[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	c := *cp
	return &c, nil
}

func (m *Memory) List(_ context.Context, runID string) ([]*Checkpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []*Checkpoint{}
	for _, cp := range m.checkpoints {
		if cp.RunID == runID {
			c := *cp
			out = append(out, &c)
		}
	}
	SortByStep(out)
	return out, nil
}

func (m *Memory) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.checkpoints, id)
	return nil
}

func (m *Memory) Clear(_ context.Context, runID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, cp := range m.checkpoints {
		if cp.RunID == runID {
			delete(m.checkpoints, id)
		}
	}
	return nil
}
