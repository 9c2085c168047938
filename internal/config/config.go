package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"

	"github.com/vthunder/grass/internal/knowledge"
	"github.com/vthunder/grass/internal/logging"
	"github.com/vthunder/grass/internal/profiling"
	"github.com/vthunder/grass/internal/store"
)

// Config holds the process-wide settings read from the environment
type Config struct {
	StatePath string // GRASS_STATE_PATH
	Catalogue string // GRASS_CATALOGUE, a YAML bundle overriding the database
	DBDriver  string // GRASS_DB_DRIVER
	Profile   string // GRASS_PROFILE
	Debug     bool   // DEBUG
}

// EnvPaths returns the .env locations tried by LoadEnv: the repo root above
// the executable's bin/, the executable's dir, then the working directory.
func EnvPaths() []string {
	paths := []string{".env"}
	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		paths = append([]string{
			filepath.Join(filepath.Dir(exeDir), ".env"),
			filepath.Join(exeDir, ".env"),
		}, paths...)
	}
	return paths
}

// LoadEnv loads the first .env file found. It returns the path loaded, or
// "" when none exists. Variables already set are never overridden.
func LoadEnv(paths ...string) string {
	if len(paths) == 0 {
		paths = EnvPaths()
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			logging.Warn("config", "Failed to load %s: %v", p, err)
			continue
		}
		return p
	}
	return ""
}

// FromEnv reads the configuration from environment variables
func FromEnv() *Config {
	c := &Config{
		StatePath: os.Getenv("GRASS_STATE_PATH"),
		Catalogue: os.Getenv("GRASS_CATALOGUE"),
		DBDriver:  os.Getenv("GRASS_DB_DRIVER"),
		Profile:   os.Getenv("GRASS_PROFILE"),
		Debug:     os.Getenv("DEBUG") == "true",
	}
	if c.StatePath == "" {
		c.StatePath = "state"
	}
	if c.DBDriver == "" {
		c.DBDriver = store.DriverPure
	}
	return c
}

// Load loads .env, then reads the environment and applies the logging and
// profiling settings.
func Load() (*Config, error) {
	if p := LoadEnv(); p != "" {
		logging.Debug("config", "Loaded %s", p)
	}
	c := FromEnv()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	logging.SetDebug(c.Debug)
	return c, nil
}

// Validate checks the settings for values no component accepts
func (c *Config) Validate() error {
	switch c.DBDriver {
	case store.DriverPure, store.DriverCgo:
	default:
		return fmt.Errorf("GRASS_DB_DRIVER must be %q or %q, got %q", store.DriverPure, store.DriverCgo, c.DBDriver)
	}
	return nil
}

// InitProfiling starts the profiler when GRASS_PROFILE names a level. The
// timings file lives under the state path.
func (c *Config) InitProfiling() error {
	level := profiling.ParseLevel(c.Profile)
	if level == profiling.LevelOff {
		return nil
	}
	dir := filepath.Join(c.StatePath, "system")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create profiling dir: %w", err)
	}
	return profiling.Init(level, filepath.Join(dir, "profiling.jsonl"))
}

// OpenStore opens the knowledge database under the state path
func (c *Config) OpenStore() (*store.DB, error) {
	return store.Open(c.StatePath, c.DBDriver)
}

// Knowledge resolves the knowledge bundle: the catalogue file when set,
// then the database, then the built-in reference bundle. db may be nil.
func (c *Config) Knowledge(db *store.DB) (*knowledge.Bundle, string, error) {
	if c.Catalogue != "" {
		b, err := knowledge.LoadFile(c.Catalogue)
		if err != nil {
			return nil, "", fmt.Errorf("failed to load catalogue: %w", err)
		}
		return b, c.Catalogue, nil
	}
	if db != nil {
		b, err := db.Load()
		if err == nil {
			return b, store.Path(c.StatePath), nil
		}
		if !errors.Is(err, store.ErrEmpty) {
			return nil, "", err
		}
	}
	return knowledge.Reference(), "reference", nil
}
