package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/user/myreplicate/pkg/config"
)

const validConfigYAML = `
sources:
  src1:
    host: 127.0.0.1
    user: repl
    database: app
    server_id: 1001
targets:
  tgt1:
    host: 127.0.0.1
    user: repl
    database: app_copy
mapping:
  users:
    source: src1
    source_table: users
    target: tgt1
    target_table: users
    primary_key: id
    column_mapping:
      id: id
      name: name
`

func TestValidateCommandAcceptsWellFormedConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(validConfigYAML), 0o600); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Sources) != 1 || len(cfg.Targets) != 1 || len(cfg.Mappings) != 1 {
		t.Fatalf("unexpected config shape: %+v", cfg)
	}
}

func TestValidateCommandRejectsMissingFile(t *testing.T) {
	if _, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected an error loading a nonexistent config file")
	}
}
