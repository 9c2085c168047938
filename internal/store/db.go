package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"

	"github.com/vthunder/grass/internal/graph"
	"github.com/vthunder/grass/internal/knowledge"
	"github.com/vthunder/grass/internal/logging"
)

// Supported database/sql driver names.
const (
	DriverCgo  = "sqlite3" // github.com/mattn/go-sqlite3
	DriverPure = "sqlite"  // modernc.org/sqlite
)

// ErrEmpty is returned by Load when no knowledge has been saved yet.
var ErrEmpty = errors.New("store: no knowledge saved")

// Association is a learned edge with its weight.
type Association struct {
	Edge   graph.Edge
	Weight float64
}

// DB wraps the SQLite database holding a knowledge bundle and learned
// associations.
type DB struct {
	db     *sql.DB
	path   string
	driver string
}

// Path returns the database file used for statePath.
func Path(statePath string) string {
	return filepath.Join(statePath, "system", "knowledge.db")
}

// Open opens or creates the knowledge database under statePath.
func Open(statePath, driver string) (*DB, error) {
	dbPath := Path(statePath)

	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	var dsn string
	switch driver {
	case DriverCgo:
		dsn = dbPath + "?_journal_mode=WAL&_busy_timeout=5000"
	case DriverPure:
		dsn = dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	default:
		return nil, fmt.Errorf("unsupported sqlite driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &DB{db: db, path: dbPath, driver: driver}

	// Run migrations
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}

	logging.Debug("store", "Opened %s with %s", dbPath, driver)
	return s, nil
}

// Close closes the database connection
func (s *DB) Close() error {
	return s.db.Close()
}

// migrate runs database migrations
func (s *DB) migrate() error {
	schema := `
	-- Schema version tracking
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	-- Pattern definitions, in catalogue order
	CREATE TABLE IF NOT EXISTS patterns (
		position INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		slots TEXT NOT NULL
	);

	-- Word senses, in declaration order
	CREATE TABLE IF NOT EXISTS words (
		position INTEGER PRIMARY KEY,
		word TEXT NOT NULL,
		concepts TEXT NOT NULL
	);

	-- Hierarchy families, in declaration order
	CREATE TABLE IF NOT EXISTS hierarchy (
		position INTEGER PRIMARY KEY,
		parent TEXT NOT NULL,
		children TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_patterns_name ON patterns(name);

	-- Record schema version
	INSERT OR IGNORE INTO schema_version (version) VALUES (1);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return err
	}

	// Run incremental migrations
	return s.runMigrations()
}

// runMigrations applies incremental schema changes
func (s *DB) runMigrations() error {
	var version int
	err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&version)
	if err != nil {
		version = 1 // Assume v1 if can't read
	}

	// Migration v2: learned associations on top of the compiled knowledge
	if version < 2 {
		migrations := []string{
			`CREATE TABLE IF NOT EXISTS associations (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				start_concept TEXT NOT NULL,
				end_concept TEXT NOT NULL,
				edge_type TEXT NOT NULL,
				slot INTEGER NOT NULL DEFAULT -1,
				weight REAL NOT NULL DEFAULT 1.0,
				created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
				UNIQUE(start_concept, end_concept)
			)`,
			"CREATE INDEX IF NOT EXISTS idx_associations_start ON associations(start_concept)",
			"INSERT INTO schema_version (version) VALUES (2)",
		}
		for _, stmt := range migrations {
			if _, err := s.db.Exec(stmt); err != nil {
				return fmt.Errorf("migration v2: %w", err)
			}
		}
	}

	return nil
}

// Version returns the applied schema version.
func (s *DB) Version() (int, error) {
	var version int
	if err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&version); err != nil {
		return 0, err
	}
	return version, nil
}

// Save replaces the stored bundle with b.
func (s *DB) Save(b *knowledge.Bundle) error {
	if err := b.Validate(); err != nil {
		return fmt.Errorf("refusing to save invalid bundle: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"patterns", "words", "hierarchy"} {
		if _, err := tx.Exec(fmt.Sprintf("DELETE FROM %s", table)); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	for i, p := range b.Patterns {
		slots, err := json.Marshal(p.Slots)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(`INSERT INTO patterns (position, name, slots) VALUES (?, ?, ?)`, i, p.Name, string(slots)); err != nil {
			return fmt.Errorf("failed to insert pattern %s: %w", p.Name, err)
		}
	}
	for i, w := range b.Words {
		concepts, err := json.Marshal(w.Concepts)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(`INSERT INTO words (position, word, concepts) VALUES (?, ?, ?)`, i, w.Word, string(concepts)); err != nil {
			return fmt.Errorf("failed to insert word %s: %w", w.Word, err)
		}
	}
	for i, f := range b.Hierarchy {
		children, err := json.Marshal(f.Children)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(`INSERT INTO hierarchy (position, parent, children) VALUES (?, ?, ?)`, i, f.Parent, string(children)); err != nil {
			return fmt.Errorf("failed to insert hierarchy %s: %w", f.Parent, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	logging.Info("store", "Saved %d patterns, %d words, %d families", len(b.Patterns), len(b.Words), len(b.Hierarchy))
	return nil
}

// Load reads the stored bundle. It returns ErrEmpty when nothing was saved.
func (s *DB) Load() (*knowledge.Bundle, error) {
	b := &knowledge.Bundle{}

	rows, err := s.db.Query(`SELECT name, slots FROM patterns ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("failed to query patterns: %w", err)
	}
	for rows.Next() {
		var p knowledge.Pattern
		var slots string
		if err := rows.Scan(&p.Name, &slots); err != nil {
			rows.Close()
			return nil, err
		}
		if err := json.Unmarshal([]byte(slots), &p.Slots); err != nil {
			rows.Close()
			return nil, fmt.Errorf("corrupt slots for %s: %w", p.Name, err)
		}
		b.Patterns = append(b.Patterns, p)
	}
	rows.Close()

	rows, err = s.db.Query(`SELECT word, concepts FROM words ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("failed to query words: %w", err)
	}
	for rows.Next() {
		var w knowledge.WordSense
		var concepts string
		if err := rows.Scan(&w.Word, &concepts); err != nil {
			rows.Close()
			return nil, err
		}
		if err := json.Unmarshal([]byte(concepts), &w.Concepts); err != nil {
			rows.Close()
			return nil, fmt.Errorf("corrupt concepts for %s: %w", w.Word, err)
		}
		b.Words = append(b.Words, w)
	}
	rows.Close()

	rows, err = s.db.Query(`SELECT parent, children FROM hierarchy ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("failed to query hierarchy: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var f knowledge.Family
		var children string
		if err := rows.Scan(&f.Parent, &children); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(children), &f.Children); err != nil {
			return nil, fmt.Errorf("corrupt children for %s: %w", f.Parent, err)
		}
		b.Hierarchy = append(b.Hierarchy, f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(b.Patterns) == 0 && len(b.Words) == 0 && len(b.Hierarchy) == 0 {
		return nil, ErrEmpty
	}
	return b, nil
}

// AddAssociation records a learned edge. Re-recording the same start and end
// keeps the first type and replaces the weight.
func (s *DB) AddAssociation(e graph.Edge, weight float64) error {
	_, err := s.db.Exec(`
		INSERT INTO associations (start_concept, end_concept, edge_type, slot, weight)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(start_concept, end_concept) DO UPDATE SET weight = excluded.weight
	`, e.Start, e.End, string(e.Type), e.Index, weight)
	if err != nil {
		return fmt.Errorf("failed to store association %s: %w", e, err)
	}
	return nil
}

// Associations returns every learned edge in insertion order.
func (s *DB) Associations() ([]Association, error) {
	rows, err := s.db.Query(`SELECT start_concept, end_concept, edge_type, slot, weight FROM associations ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query associations: %w", err)
	}
	defer rows.Close()

	var out []Association
	for rows.Next() {
		var a Association
		var typ string
		if err := rows.Scan(&a.Edge.Start, &a.Edge.End, &typ, &a.Edge.Index, &a.Weight); err != nil {
			return nil, err
		}
		a.Edge.Type = graph.EdgeType(typ)
		out = append(out, a)
	}
	return out, rows.Err()
}

// Apply inserts every learned association into g and returns how many were
// new to it.
func (s *DB) Apply(g *graph.Graph) (int, error) {
	assocs, err := s.Associations()
	if err != nil {
		return 0, err
	}
	added := 0
	for _, a := range assocs {
		if g.UpdateEdge(a.Edge, a.Weight) {
			added++
		}
	}
	return added, nil
}

// Stats returns database statistics
func (s *DB) Stats() (map[string]int, error) {
	stats := make(map[string]int)

	tables := []string{"patterns", "words", "hierarchy", "associations"}
	for _, table := range tables {
		var count int
		err := s.db.QueryRow(fmt.Sprintf("SELECT COUNT(*) FROM %s", table)).Scan(&count)
		if err != nil {
			return nil, err
		}
		stats[table] = count
	}

	return stats, nil
}

// Clear removes all data (for testing/reset)
func (s *DB) Clear() error {
	for _, table := range []string{"associations", "hierarchy", "words", "patterns"} {
		if _, err := s.db.Exec(fmt.Sprintf("DELETE FROM %s", table)); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}
	return nil
}
