// Package config loads agent101 settings from defaults, an optional YAML file
// and environment variables, in that order.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Settings holds the application configuration.
type Settings struct {
	// LLM configuration
	OpenAIAPIKey   string `yaml:"openai_api_key"`
	OpenAIBaseURL  string `yaml:"openai_base_url"`
	ChatModel      string `yaml:"chat_model"`
	EmbeddingModel string `yaml:"embedding_model"`
	RequestTimeout int    `yaml:"request_timeout_seconds"`

	// Memory configuration
	VectorPersistDir string `yaml:"vector_persist_dir"`
	ChromaURL        string `yaml:"chroma_url"`
	MaxContextTokens int    `yaml:"max_context_tokens"`

	// External APIs
	SemanticScholarAPIKey string `yaml:"semantic_scholar_api_key"`
	BraveAPIKey           string `yaml:"brave_api_key"`

	// Checkpoint store: memory, sqlite, redis or postgres
	CheckpointStore string `yaml:"checkpoint_store"`
	CheckpointDSN   string `yaml:"checkpoint_dsn"`
	RedisAddr       string `yaml:"redis_addr"`

	ArtifactsDir string `yaml:"artifacts_dir"`
	LogLevel     string `yaml:"log_level"`

	// Server configuration
	ServerHost   string `yaml:"server_host"`
	ServerPort   int    `yaml:"server_port"`
	RateLimitRPM int    `yaml:"rate_limit_rpm"`
}

// Default returns the built-in settings.
func Default() Settings {
	return Settings{
		ChatModel:        "gpt-4o-mini",
		EmbeddingModel:   "text-embedding-3-small",
		RequestTimeout:   25,
		VectorPersistDir: ".chroma",
		MaxContextTokens: 4000,
		CheckpointStore:  "memory",
		RedisAddr:        "localhost:6379",
		ArtifactsDir:     "artifacts/web",
		LogLevel:         "info",
		ServerHost:       "0.0.0.0",
		ServerPort:       8000,
	}
}

// Load builds settings from defaults, then the YAML file at path (skipped when
// path is empty), then environment variables.
func Load(path string) (Settings, error) {
	s := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return s, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &s); err != nil {
			return s, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := s.applyEnv(os.LookupEnv); err != nil {
		return s, err
	}
	return s, s.Validate()
}

func (s *Settings) applyEnv(lookup func(string) (string, bool)) error {
	str := func(dst *string, keys ...string) {
		for _, k := range keys {
			if v, ok := lookup(k); ok && v != "" {
				*dst = v
				return
			}
		}
	}
	num := func(dst *int, key string) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s: %q is not an integer", key, v)
		}
		*dst = n
		return nil
	}

	str(&s.OpenAIAPIKey, "OPENAI_API_KEY")
	str(&s.OpenAIBaseURL, "OPENAI_BASE_URL")
	str(&s.ChatModel, "CHAT_MODEL")
	str(&s.EmbeddingModel, "EMBEDDING_MODEL")
	str(&s.VectorPersistDir, "VECTOR_PERSIST_DIR", "CHROMA_PERSIST_DIR")
	str(&s.ChromaURL, "CHROMA_URL")
	str(&s.SemanticScholarAPIKey, "SEMANTIC_SCHOLAR_API_KEY")
	str(&s.BraveAPIKey, "BRAVE_API_KEY")
	str(&s.CheckpointStore, "CHECKPOINT_STORE")
	str(&s.CheckpointDSN, "CHECKPOINT_DSN")
	str(&s.RedisAddr, "REDIS_ADDR")
	str(&s.ArtifactsDir, "ARTIFACTS_DIR")
	str(&s.LogLevel, "LOG_LEVEL")
	str(&s.ServerHost, "SERVER_HOST")

	for key, dst := range map[string]*int{
		"REQUEST_TIMEOUT_SECONDS": &s.RequestTimeout,
		"MAX_CONTEXT_TOKENS":      &s.MaxContextTokens,
		"SERVER_PORT":             &s.ServerPort,
		"RATE_LIMIT_RPM":          &s.RateLimitRPM,
	} {
		if err := num(dst, key); err != nil {
			return err
		}
	}
	return nil
}

// Validate returns an error naming the first invalid field.
func (s Settings) Validate() error {
	switch {
	case s.RequestTimeout <= 0:
		return fmt.Errorf("request_timeout_seconds must be positive, got %d", s.RequestTimeout)
	case s.MaxContextTokens <= 0:
		return fmt.Errorf("max_context_tokens must be positive, got %d", s.MaxContextTokens)
	case s.ServerPort <= 0 || s.ServerPort > 65535:
		return fmt.Errorf("server_port out of range: %d", s.ServerPort)
	case s.RateLimitRPM < 0:
		return fmt.Errorf("rate_limit_rpm must not be negative, got %d", s.RateLimitRPM)
	}

	switch s.CheckpointStore {
	case "memory", "sqlite", "redis", "postgres":
	default:
		return fmt.Errorf("checkpoint_store must be one of memory, sqlite, redis, postgres; got %q", s.CheckpointStore)
	}
	if s.CheckpointStore == "postgres" && s.CheckpointDSN == "" {
		return fmt.Errorf("checkpoint_dsn is required for the postgres checkpoint store")
	}
	return nil
}

// Timeout returns the per-request LLM timeout.
func (s Settings) Timeout() time.Duration {
	return time.Duration(s.RequestTimeout) * time.Second
}

// Addr returns host:port for the HTTP server.
func (s Settings) Addr() string {
	return fmt.Sprintf("%s:%d", s.ServerHost, s.ServerPort)
}

// RequireAPIKey reports a configuration error when no OpenAI key is set.
func (s Settings) RequireAPIKey() error {
	if s.OpenAIAPIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is not set")
	}
	return nil
}
