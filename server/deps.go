package server

import (
	"context"
	"fmt"
	"time"

	"github.com/smallnest/agent101/config"
	"github.com/smallnest/agent101/embedding"
	"github.com/smallnest/agent101/llm"
	"github.com/smallnest/agent101/log"
	"github.com/smallnest/agent101/memory"
	"github.com/smallnest/agent101/research"
	"github.com/smallnest/agent101/store"
	"github.com/smallnest/agent101/store/postgres"
	"github.com/smallnest/agent101/store/redis"
	"github.com/smallnest/agent101/store/sqlite"
	"github.com/smallnest/agent101/tool"
	"github.com/smallnest/agent101/web"
)

const defaultSQLitePath = "checkpoints.db"

// Deps are the collaborators the handlers build agents from. Nil fields are
// filled with defaults derived from Settings.
type Deps struct {
	Settings config.Settings

	// LLM creates the chat client for one request.
	LLM func() (*llm.Client, error)
	// Browser creates the browser for one web script.
	Browser func(headless bool) web.Browser
	// Research creates the research assistant for one request.
	Research func(client *llm.Client) *research.Assistant

	Tools       *tool.Registry
	Checkpoints store.CheckpointStore
	Sessions    *memory.Sessions
	// Vectors is the long-term memory shared by QA requests; nil disables it.
	Vectors memory.VectorMemory
}

func (d Deps) withDefaults() Deps {
	s := d.Settings
	if d.LLM == nil {
		d.LLM = func() (*llm.Client, error) { return llm.New(s) }
	}
	if d.Browser == nil {
		d.Browser = func(headless bool) web.Browser {
			return web.NewRodBrowser(
				web.WithHeadless(headless),
				web.WithArtifactsDir(s.ArtifactsDir),
			)
		}
	}
	if d.Research == nil {
		d.Research = func(client *llm.Client) *research.Assistant { return research.New(client, s) }
	}
	if d.Tools == nil {
		d.Tools = tool.Default(s)
	}
	if d.Checkpoints == nil {
		d.Checkpoints = store.NewMemory()
	}
	if d.Sessions == nil {
		d.Sessions = memory.NewSessions(s.MaxContextTokens, memory.ApproxCounter{})
	}
	return d
}

// NewDeps opens the configured checkpoint store and vector memory. The
// returned function releases them.
func NewDeps(ctx context.Context, s config.Settings) (Deps, func(), error) {
	checkpoints, closeStore, err := OpenCheckpointStore(ctx, s)
	if err != nil {
		return Deps{}, nil, err
	}

	d := Deps{
		Settings:    s,
		Checkpoints: checkpoints,
		Sessions:    memory.NewSessions(s.MaxContextTokens, memory.NewTokenCounter(s.ChatModel)),
	}

	if embedder, err := embedding.NewOpenAI(s); err != nil {
		log.Warn("vector memory disabled: %v", err)
	} else if v, err := memory.Open(s, embedder); err != nil {
		log.Warn("vector memory disabled: %v", err)
	} else {
		d.Vectors = v
	}

	return d.withDefaults(), closeStore, nil
}

// OpenCheckpointStore returns the checkpoint store selected by
// s.CheckpointStore together with its close function.
func OpenCheckpointStore(ctx context.Context, s config.Settings) (store.CheckpointStore, func(), error) {
	switch s.CheckpointStore {
	case "", "memory":
		return store.NewMemory(), func() {}, nil

	case "sqlite":
		path := s.CheckpointDSN
		if path == "" {
			path = defaultSQLitePath
		}
		st, err := sqlite.New(sqlite.Options{Path: path})
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite checkpoint store: %w", err)
		}
		return st, closer(st.Close), nil

	case "redis":
		addr := s.RedisAddr
		if s.CheckpointDSN != "" {
			addr = s.CheckpointDSN
		}
		st := redis.New(redis.Options{Addr: addr, TTL: 24 * time.Hour})
		return st, closer(st.Close), nil

	case "postgres":
		st, err := postgres.New(ctx, postgres.Options{ConnString: s.CheckpointDSN})
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres checkpoint store: %w", err)
		}
		return st, st.Close, nil

	default:
		return nil, nil, fmt.Errorf("unknown checkpoint store %q", s.CheckpointStore)
	}
}

func closer(fn func() error) func() {
	return func() {
		if err := fn(); err != nil {
			log.Warn("close checkpoint store: %v", err)
		}
	}
}
