package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/vthunder/grass/internal/knowledge"
	"github.com/vthunder/grass/internal/store"
)

func TestFromEnvDefaults(t *testing.T) {
	for _, k := range []string{"GRASS_STATE_PATH", "GRASS_CATALOGUE", "GRASS_DB_DRIVER", "GRASS_PROFILE"} {
		t.Setenv(k, "")
	}

	c := FromEnv()
	if c.StatePath != "state" {
		t.Errorf("Expected default state path, got %q", c.StatePath)
	}
	if c.DBDriver != store.DriverPure {
		t.Errorf("Expected pure-Go driver by default, got %q", c.DBDriver)
	}
	if err := c.Validate(); err != nil {
		t.Errorf("Expected defaults to validate: %v", err)
	}
}

func TestValidateDriver(t *testing.T) {
	c := &Config{DBDriver: "postgres"}
	if err := c.Validate(); err == nil {
		t.Error("Expected unknown driver to be rejected")
	}
	c.DBDriver = store.DriverCgo
	if err := c.Validate(); err != nil {
		t.Errorf("Expected cgo driver to validate: %v", err)
	}
}

// TestLoadEnv tests that the first existing .env wins and never overrides
// variables already set
func TestLoadEnv(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "first.env")
	second := filepath.Join(dir, "second.env")
	os.WriteFile(first, []byte("GRASS_CATALOGUE=from-first\nGRASS_PROFILE=minimal\n"), 0644)
	os.WriteFile(second, []byte("GRASS_CATALOGUE=from-second\n"), 0644)

	t.Setenv("GRASS_CATALOGUE", "")
	os.Unsetenv("GRASS_CATALOGUE")
	t.Setenv("GRASS_PROFILE", "detailed")

	got := LoadEnv(filepath.Join(dir, "missing.env"), first, second)
	if got != first {
		t.Errorf("Expected %s to be loaded, got %q", first, got)
	}
	if v := os.Getenv("GRASS_CATALOGUE"); v != "from-first" {
		t.Errorf("Expected catalogue from first file, got %q", v)
	}
	if v := os.Getenv("GRASS_PROFILE"); v != "detailed" {
		t.Errorf("Expected existing variable to be kept, got %q", v)
	}

	if got := LoadEnv(filepath.Join(dir, "missing.env")); got != "" {
		t.Errorf("Expected no file loaded, got %q", got)
	}
}

// TestKnowledgeResolution tests catalogue, database and reference fallbacks
func TestKnowledgeResolution(t *testing.T) {
	dir := t.TempDir()
	c := &Config{StatePath: dir, DBDriver: store.DriverPure}

	b, source, err := c.Knowledge(nil)
	if err != nil {
		t.Fatalf("Knowledge failed: %v", err)
	}
	if source != "reference" || len(b.Patterns) != len(knowledge.Reference().Patterns) {
		t.Errorf("Expected reference bundle, got %s", source)
	}

	db, err := c.OpenStore()
	if err != nil {
		t.Fatalf("OpenStore failed: %v", err)
	}
	defer db.Close()

	if _, source, _ = c.Knowledge(db); source != "reference" {
		t.Errorf("Expected empty database to fall back to reference, got %s", source)
	}

	small := &knowledge.Bundle{Patterns: []knowledge.Pattern{{Name: "Kin", Slots: []string{"my", "brother"}}}}
	if err := db.Save(small); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	b, source, err = c.Knowledge(db)
	if err != nil {
		t.Fatalf("Knowledge failed: %v", err)
	}
	if source != store.Path(dir) || len(b.Patterns) != 1 {
		t.Errorf("Expected stored bundle, got %s with %d patterns", source, len(b.Patterns))
	}

	file := filepath.Join(dir, "catalogue.yaml")
	if err := knowledge.Reference().SaveFile(file); err != nil {
		t.Fatalf("SaveFile failed: %v", err)
	}
	c.Catalogue = file
	if _, source, err = c.Knowledge(db); err != nil || source != file {
		t.Errorf("Expected catalogue file to win, got %s, %v", source, err)
	}

	c.Catalogue = filepath.Join(dir, "missing.yaml")
	if _, _, err := c.Knowledge(db); err == nil {
		t.Error("Expected missing catalogue to fail")
	}
}
