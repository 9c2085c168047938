package state

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/vthunder/grass/internal/reflex"
	"github.com/vthunder/grass/internal/store"
)

// Log files kept under the state path
const (
	DispatchLog  = reflex.LogFile
	ProfilingLog = "system/profiling.jsonl"
)

// Inspector provides state introspection capabilities
type Inspector struct {
	statePath string
	db        *store.DB
}

// NewInspector creates a new state inspector. db may be nil.
func NewInspector(statePath string, db *store.DB) *Inspector {
	return &Inspector{statePath: statePath, db: db}
}

// KnowledgeSummary holds the stored knowledge counts
type KnowledgeSummary struct {
	Patterns     int `json:"patterns"`
	Words        int `json:"words"`
	Hierarchy    int `json:"hierarchy"`
	Associations int `json:"associations"`
	Version      int `json:"schema_version"`
}

// StateSummary holds summary of all state
type StateSummary struct {
	Knowledge *KnowledgeSummary `json:"knowledge,omitempty"`
	Reactions int               `json:"reactions"`
	Dispatch  int               `json:"dispatch_entries"`
	Timings   int               `json:"profiling_entries"`
}

// HealthReport holds health check results
type HealthReport struct {
	Status          string   `json:"status"` // "healthy", "warnings"
	Warnings        []string `json:"warnings,omitempty"`
	Recommendations []string `json:"recommendations,omitempty"`
}

// Summary returns a summary of all state components
func (i *Inspector) Summary() (*StateSummary, error) {
	summary := &StateSummary{}

	if i.db != nil {
		stats, err := i.db.Stats()
		if err != nil {
			return nil, fmt.Errorf("failed to read knowledge stats: %w", err)
		}
		version, err := i.db.Version()
		if err != nil {
			return nil, fmt.Errorf("failed to read schema version: %w", err)
		}
		summary.Knowledge = &KnowledgeSummary{
			Patterns:     stats["patterns"],
			Words:        stats["words"],
			Hierarchy:    stats["hierarchy"],
			Associations: stats["associations"],
			Version:      version,
		}
	}

	summary.Reactions = i.countReactions()
	summary.Dispatch = i.countJSONL(DispatchLog)
	summary.Timings = i.countJSONL(ProfilingLog)

	return summary, nil
}

// Health runs health checks and returns a report
func (i *Inspector) Health() (*HealthReport, error) {
	report := &HealthReport{Status: "healthy"}

	summary, err := i.Summary()
	if err != nil {
		return nil, err
	}

	if summary.Knowledge == nil || summary.Knowledge.Patterns == 0 {
		report.Warnings = append(report.Warnings, "No stored knowledge, the built-in reference bundle is used")
		report.Recommendations = append(report.Recommendations, "Run grass-import to store a catalogue")
	}

	if summary.Reactions == 0 {
		report.Warnings = append(report.Warnings, "No reactions defined")
		report.Recommendations = append(report.Recommendations, "Add YAML reactions under reactions/")
	}

	if summary.Dispatch > 10000 {
		report.Warnings = append(report.Warnings, fmt.Sprintf("Large dispatch log: %d entries", summary.Dispatch))
		report.Recommendations = append(report.Recommendations, "Consider truncating old dispatch entries")
	}

	if summary.Timings > 100000 {
		report.Warnings = append(report.Warnings, fmt.Sprintf("Large profiling log: %d entries", summary.Timings))
		report.Recommendations = append(report.Recommendations, "Lower GRASS_PROFILE or truncate the profiling log")
	}

	if len(report.Warnings) > 0 {
		report.Status = "warnings"
	}

	return report, nil
}

// TailLogs returns the most recent entries of a JSONL log
func (i *Inspector) TailLogs(name string, count int) ([]map[string]any, error) {
	return i.tailJSONL(name, count), nil
}

// TruncateLogs keeps only the last N entries of the dispatch and profiling logs
func (i *Inspector) TruncateLogs(keep int) error {
	for _, name := range []string{DispatchLog, ProfilingLog} {
		if err := i.truncateJSONL(name, keep); err != nil {
			return fmt.Errorf("failed to truncate %s: %w", name, err)
		}
	}
	return nil
}

func (i *Inspector) countReactions() int {
	count := 0
	for _, pattern := range []string{"*.yaml", "*.yml"} {
		files, err := filepath.Glob(filepath.Join(i.statePath, "reactions", pattern))
		if err == nil {
			count += len(files)
		}
	}
	return count
}

func (i *Inspector) countJSONL(name string) int {
	path := filepath.Join(i.statePath, name)
	file, err := os.Open(path)
	if err != nil {
		return 0
	}
	defer file.Close()

	count := 0
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		if len(strings.TrimSpace(scanner.Text())) > 0 {
			count++
		}
	}
	return count
}

func (i *Inspector) readLines(name string) ([]string, error) {
	file, err := os.Open(filepath.Join(i.statePath, name))
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if len(line) > 0 {
			lines = append(lines, line)
		}
	}
	return lines, scanner.Err()
}

func (i *Inspector) tailJSONL(name string, count int) []map[string]any {
	lines, err := i.readLines(name)
	if err != nil {
		return nil
	}

	// Take last N
	if len(lines) > count {
		lines = lines[len(lines)-count:]
	}

	var result []map[string]any
	for _, line := range lines {
		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err == nil {
			result = append(result, entry)
		}
	}
	return result
}

func (i *Inspector) truncateJSONL(name string, keep int) error {
	lines, err := i.readLines(name)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	// Keep last N
	if len(lines) > keep {
		lines = lines[len(lines)-keep:]
	}

	path := filepath.Join(i.statePath, name)
	if len(lines) == 0 {
		return os.WriteFile(path, nil, 0644)
	}
	return os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0644)
}
