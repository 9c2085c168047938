package state

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/vthunder/grass/internal/knowledge"
	"github.com/vthunder/grass/internal/store"
)

func TestInspector_Summary(t *testing.T) {
	tmpDir := t.TempDir()
	setupTestState(t, tmpDir)

	db, err := store.Open(tmpDir, store.DriverPure)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer db.Close()
	if err := db.Save(knowledge.Reference()); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	inspector := NewInspector(tmpDir, db)
	summary, err := inspector.Summary()
	if err != nil {
		t.Fatalf("Summary failed: %v", err)
	}

	ref := knowledge.Reference()
	if summary.Knowledge == nil || summary.Knowledge.Patterns != len(ref.Patterns) || summary.Knowledge.Words != len(ref.Words) {
		t.Errorf("Unexpected knowledge summary %+v", summary.Knowledge)
	}
	if summary.Knowledge.Version != 2 {
		t.Errorf("Expected schema version 2, got %d", summary.Knowledge.Version)
	}
	if summary.Reactions != 2 {
		t.Errorf("Expected 2 reactions, got %d", summary.Reactions)
	}
	if summary.Dispatch != 3 || summary.Timings != 1 {
		t.Errorf("Expected 3 dispatch and 1 timing entries, got %d and %d", summary.Dispatch, summary.Timings)
	}

	health, err := inspector.Health()
	if err != nil {
		t.Fatalf("Health failed: %v", err)
	}
	if health.Status != "healthy" {
		t.Errorf("Expected healthy state, got %v", health.Warnings)
	}
}

func TestInspector_Health(t *testing.T) {
	tmpDir := t.TempDir()

	inspector := NewInspector(tmpDir, nil)
	health, err := inspector.Health()
	if err != nil {
		t.Fatalf("Health failed: %v", err)
	}

	if health.Status != "warnings" || len(health.Warnings) != 2 {
		t.Errorf("Expected knowledge and reaction warnings, got %v", health.Warnings)
	}
}

func TestInspector_Logs(t *testing.T) {
	tmpDir := t.TempDir()
	setupTestState(t, tmpDir)
	inspector := NewInspector(tmpDir, nil)

	entries, err := inspector.TailLogs(DispatchLog, 2)
	if err != nil {
		t.Fatalf("TailLogs failed: %v", err)
	}
	if len(entries) != 2 || entries[1]["reaction"] != "r2" {
		t.Errorf("Expected the two newest entries, got %v", entries)
	}

	if err := inspector.TruncateLogs(1); err != nil {
		t.Fatalf("TruncateLogs failed: %v", err)
	}
	data, _ := os.ReadFile(filepath.Join(tmpDir, DispatchLog))
	if strings.Count(string(data), "\n") != 1 || !strings.Contains(string(data), `"r2"`) {
		t.Errorf("Expected only the newest entry, got %q", data)
	}
}

func setupTestState(t *testing.T, dir string) {
	t.Helper()
	reactionsDir := filepath.Join(dir, "reactions")
	systemDir := filepath.Join(dir, "system")
	os.MkdirAll(reactionsDir, 0755)
	os.MkdirAll(systemDir, 0755)
	os.WriteFile(filepath.Join(reactionsDir, "greet.yaml"), []byte("task: SayHello\ntriggers: [Greeting]\n"), 0644)
	os.WriteFile(filepath.Join(reactionsDir, "call.yml"), []byte("task: Call\ntriggers: [CallAct]\n"), 0644)

	var lines []string
	for i := 0; i < 3; i++ {
		lines = append(lines, fmt.Sprintf(`{"reaction":"r%d","success":true}`, i))
	}
	os.WriteFile(filepath.Join(dir, DispatchLog), []byte(strings.Join(lines, "\n")+"\n"), 0644)
	os.WriteFile(filepath.Join(dir, ProfilingLog), []byte(`{"run_id":"x","stage":"parser.run"}`+"\n"), 0644)
}
