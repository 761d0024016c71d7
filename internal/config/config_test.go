package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeTempConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

func TestLoadSubstitutesEnvWithDefault(t *testing.T) {
	os.Unsetenv("MEMORYD_TEST_DSN")
	path := writeTempConfig(t, `{
		"database": {"postgres": {"dsn": "${MEMORYD_TEST_DSN:postgres://localhost/default}"}}
	}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Database.Postgres.DSN != "postgres://localhost/default" {
		t.Fatalf("expected default DSN, got %q", cfg.Database.Postgres.DSN)
	}
}

func TestLoadSubstitutesEnvOverride(t *testing.T) {
	os.Setenv("MEMORYD_TEST_DSN", "postgres://override/db")
	defer os.Unsetenv("MEMORYD_TEST_DSN")

	path := writeTempConfig(t, `{
		"database": {"postgres": {"dsn": "${MEMORYD_TEST_DSN:postgres://localhost/default}"}}
	}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Database.Postgres.DSN != "postgres://override/db" {
		t.Fatalf("expected overridden DSN, got %q", cfg.Database.Postgres.DSN)
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeTempConfig(t, `{}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Embedding.Dimension != DefaultEmbeddingDimension {
		t.Errorf("dimension: got %d, want %d", cfg.Embedding.Dimension, DefaultEmbeddingDimension)
	}
	if cfg.Embedding.SimilarityThreshold != DefaultSimilarityThreshold {
		t.Errorf("threshold: got %f, want %f", cfg.Embedding.SimilarityThreshold, DefaultSimilarityThreshold)
	}
	if cfg.Curator.Interval.Dur() != DefaultCuratorInterval {
		t.Errorf("interval: got %v, want %v", cfg.Curator.Interval.Dur(), DefaultCuratorInterval)
	}
	if cfg.Curator.RunDeadline.Dur() != DefaultCuratorRunDeadline {
		t.Errorf("run deadline: got %v, want %v", cfg.Curator.RunDeadline.Dur(), DefaultCuratorRunDeadline)
	}
	if cfg.Database.Qdrant.Host != "localhost" || cfg.Database.Qdrant.Port != 6334 {
		t.Errorf("unexpected qdrant defaults: %+v", cfg.Database.Qdrant)
	}
}

func TestDurationUnmarshalsStringAndNumber(t *testing.T) {
	path := writeTempConfig(t, `{"curator": {"interval": "1h30m", "run_deadline": 5000000000}}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Curator.Interval.Dur() != 90*time.Minute {
		t.Errorf("interval: got %v, want 1h30m", cfg.Curator.Interval.Dur())
	}
	if cfg.Curator.RunDeadline.Dur() != 5*time.Second {
		t.Errorf("run deadline: got %v, want 5s", cfg.Curator.RunDeadline.Dur())
	}
}

func TestLoadRejectsMalformedDuration(t *testing.T) {
	path := writeTempConfig(t, `{"curator": {"interval": "not-a-duration"}}`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected an error for a malformed duration")
	}
}
