package config

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"time"
)

// Duration wraps time.Duration so config files can write "24h" or "60s"
// instead of a raw nanosecond count.
type Duration time.Duration

func (d Duration) Dur() time.Duration { return time.Duration(d) }

func (d *Duration) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case string:
		if v == "" {
			*d = 0
			return nil
		}
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse duration %q: %w", v, err)
		}
		*d = Duration(parsed)
	case float64:
		*d = Duration(time.Duration(v))
	default:
		return fmt.Errorf("duration must be a string or number")
	}
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// Config is the top-level configuration structure for the memory service.
type Config struct {
	Server    ServerConfig     `json:"server"`
	Providers []ProviderConfig `json:"providers"`
	Database  DatabaseConfig   `json:"database"`
	Embedding EmbeddingConfig  `json:"embedding"`
	Curator   CuratorConfig    `json:"curator"`
}

type ServerConfig struct {
	Port     int    `json:"port"`
	LogLevel string `json:"log_level"`
}

// ProviderConfig describes one AI backend (edge, openai, or gemini).
type ProviderConfig struct {
	ID       string            `json:"id"`
	Type     string            `json:"type"` // "edge" | "openai" | "gemini"
	Endpoint string            `json:"endpoint"`
	APIKey   string            `json:"api_key"`
	Models   map[string]string `json:"models,omitempty"` // role -> model name, e.g. "reasoning", "structuring", "embedding"
	Timeout  Duration          `json:"timeout,omitempty"`
}

type DatabaseConfig struct {
	Postgres PostgresConfig `json:"postgres"`
	Redis    RedisConfig    `json:"redis"`
	Qdrant   QdrantConfig   `json:"qdrant"`
}

type PostgresConfig struct {
	DSN string `json:"dsn"`
}

type RedisConfig struct {
	URL string `json:"url"`
}

type QdrantConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// EmbeddingConfig fixes the vector space for the lifetime of the index.
type EmbeddingConfig struct {
	Dimension           int     `json:"dimension"`
	SimilarityThreshold float64 `json:"similarity_threshold"`
}

// CuratorConfig controls the scheduled consolidation loop.
type CuratorConfig struct {
	Interval          Duration `json:"interval"`
	BatchSize         int      `json:"batch_size"`
	MaxConsolidations int      `json:"max_consolidations"`
	RunDeadline       Duration `json:"run_deadline"`
}

const (
	DefaultEmbeddingDimension    = 768
	DefaultSimilarityThreshold   = 0.92
	DefaultCuratorInterval       = 24 * time.Hour
	DefaultCuratorBatchSize      = 20
	DefaultCuratorMaxConsolidate = 10
	DefaultCuratorRunDeadline    = 60 * time.Second
	DefaultCallTimeout           = 30 * time.Second
)

// envVarRe matches ${VAR} and ${VAR:default} patterns.
var envVarRe = regexp.MustCompile(`\$\{(\w+)(?::([^}]*))?\}`)

// Load reads a JSON config file and substitutes environment variable
// references, then fills in the spec-mandated defaults for any zero field.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	resolved := envVarRe.ReplaceAllStringFunc(string(data), func(match string) string {
		parts := envVarRe.FindStringSubmatch(match)
		name := parts[1]
		defaultVal := parts[2]
		if v := os.Getenv(name); v != "" {
			return v
		}
		return defaultVal
	})

	var cfg Config
	if err := json.Unmarshal([]byte(resolved), &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Embedding.Dimension == 0 {
		cfg.Embedding.Dimension = DefaultEmbeddingDimension
	}
	if cfg.Embedding.SimilarityThreshold == 0 {
		cfg.Embedding.SimilarityThreshold = DefaultSimilarityThreshold
	}
	if cfg.Curator.Interval == 0 {
		cfg.Curator.Interval = Duration(DefaultCuratorInterval)
	}
	if cfg.Curator.BatchSize == 0 {
		cfg.Curator.BatchSize = DefaultCuratorBatchSize
	}
	if cfg.Curator.MaxConsolidations == 0 {
		cfg.Curator.MaxConsolidations = DefaultCuratorMaxConsolidate
	}
	if cfg.Curator.RunDeadline == 0 {
		cfg.Curator.RunDeadline = Duration(DefaultCuratorRunDeadline)
	}
	if cfg.Database.Qdrant.Host == "" {
		cfg.Database.Qdrant.Host = "localhost"
	}
	if cfg.Database.Qdrant.Port == 0 {
		cfg.Database.Qdrant.Port = 6334
	}
}
