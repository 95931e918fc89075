package internal

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
)

func TestRunRequiresConfig(t *testing.T) {
	if err := Run(context.Background()); err == nil {
		t.Fatal("Run without config should fail")
	}
}

func TestMigrateLogsVersion(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.SQLite.Path = filepath.Join(t.TempDir(), "fiche.db")

	var buf bytes.Buffer
	if err := Migrate(context.Background(), WithConfig(cfg), WithLogOutput(&buf)); err != nil {
		t.Fatal(err)
	}

	var line struct {
		Msg     string `json:"msg"`
		Version uint64 `json:"version"`
	}
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("log output %q: %v", buf.String(), err)
	}
	if line.Msg != "Schema migrated" || line.Version == 0 {
		t.Errorf("log line = %+v", line)
	}

	// A second run finds nothing to apply.
	if err := Migrate(context.Background(), WithConfig(cfg), WithLogOutput(&bytes.Buffer{})); err != nil {
		t.Fatal(err)
	}
}

func TestBuildDepsMemoryBackend(t *testing.T) {
	dir := t.TempDir()
	cfg := NewDefaultConfig()
	cfg.SQLite.Path = filepath.Join(dir, "fiche.db")
	cfg.Files.Root = filepath.Join(dir, "files")

	deps, cleanup, err := buildDeps(context.Background(), cfg, newLogger(&bytes.Buffer{}, cfg.App.LogLevel))
	if err != nil {
		t.Fatal(err)
	}
	defer cleanup()
	if deps.DB == nil || deps.Files == nil || deps.Sessions == nil || deps.Composer == nil {
		t.Errorf("deps not wired: %+v", deps)
	}
	if deps.Lookup != nil {
		t.Error("lookup should be nil while the registry is disabled")
	}
}
