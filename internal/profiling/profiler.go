package profiling

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shirou/gopsutil/v3/process"
)

// ProfilingLevel determines how detailed the profiling is
type ProfilingLevel string

const (
	LevelOff      ProfilingLevel = "off"      // No profiling
	LevelMinimal  ProfilingLevel = "minimal"  // L1: whole parses and lookups
	LevelDetailed ProfilingLevel = "detailed" // L2: every match and validation step, process stats
	LevelTrace    ProfilingLevel = "trace"    // L3: everything
)

// ParseLevel maps a config string onto a level; unknown values mean off.
func ParseLevel(s string) ProfilingLevel {
	switch ProfilingLevel(s) {
	case LevelMinimal, LevelDetailed, LevelTrace:
		return ProfilingLevel(s)
	default:
		return LevelOff
	}
}

// Timing represents a single timing measurement
type Timing struct {
	RunID      string                 `json:"run_id"`
	Stage      string                 `json:"stage"`
	StartTime  time.Time              `json:"start_time"`
	DurationMs float64                `json:"duration_ms"`
	Process    *ProcessStats          `json:"process,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// ProcessStats is a sample of this process's resource usage
type ProcessStats struct {
	RSSBytes   uint64  `json:"rss_bytes"`
	CPUPercent float64 `json:"cpu_percent"`
	Threads    int32   `json:"threads"`
}

// Profiler writes stage timings as JSON lines
type Profiler struct {
	enabled bool
	level   ProfilingLevel
	logPath string
	mu      sync.Mutex
	logFile *os.File
	encoder *json.Encoder
	self    *process.Process
}

var globalProfiler *Profiler
var once sync.Once

// NewRunID returns a fresh identifier grouping the timings of one run
func NewRunID() string {
	return uuid.NewString()
}

// Init initializes the global profiler
func Init(level ProfilingLevel, logPath string) error {
	var err error
	once.Do(func() {
		globalProfiler, err = New(level, logPath)
	})
	return err
}

// New creates a standalone profiler
func New(level ProfilingLevel, logPath string) (*Profiler, error) {
	p := &Profiler{
		enabled: level != LevelOff,
		level:   level,
		logPath: logPath,
	}
	if p.enabled && logPath != "" {
		if err := p.openLogFile(); err != nil {
			return p, err
		}
	}
	return p, nil
}

// Get returns the global profiler instance
func Get() *Profiler {
	if globalProfiler == nil {
		// Default to off if not initialized
		_ = Init(LevelOff, "")
	}
	return globalProfiler
}

// openLogFile opens the log file for writing
func (p *Profiler) openLogFile() error {
	var err error
	p.logFile, err = os.OpenFile(p.logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open profiling log: %w", err)
	}
	p.encoder = json.NewEncoder(p.logFile)
	return nil
}

// Close closes the profiler and its log file
func (p *Profiler) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.logFile != nil {
		err := p.logFile.Close()
		p.logFile = nil
		p.encoder = nil
		return err
	}
	return nil
}

// Start begins timing a stage and returns a function to call when done
func (p *Profiler) Start(runID, stage string) func() {
	if !p.enabled {
		return func() {}
	}

	start := time.Now()
	return func() {
		p.Record(runID, stage, time.Since(start), nil)
	}
}

// StartWithMetadata begins timing a stage with additional metadata
func (p *Profiler) StartWithMetadata(runID, stage string, metadata map[string]interface{}) func() {
	if !p.enabled {
		return func() {}
	}

	start := time.Now()
	return func() {
		p.Record(runID, stage, time.Since(start), metadata)
	}
}

// Record records a timing measurement. At detailed level and above every
// record also carries a process sample.
func (p *Profiler) Record(runID, stage string, duration time.Duration, metadata map[string]interface{}) {
	if !p.enabled {
		return
	}

	timing := Timing{
		RunID:      runID,
		Stage:      stage,
		StartTime:  time.Now().Add(-duration),
		DurationMs: float64(duration.Nanoseconds()) / 1e6, // Convert nanoseconds to milliseconds
		Metadata:   metadata,
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ShouldProfile(LevelDetailed) {
		if stats, err := p.sampleLocked(); err == nil {
			timing.Process = stats
		}
	}

	if p.encoder != nil {
		_ = p.encoder.Encode(timing)
	}
}

// Sample reads the current resource usage of this process
func (p *Profiler) Sample() (*ProcessStats, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sampleLocked()
}

func (p *Profiler) sampleLocked() (*ProcessStats, error) {
	if p.self == nil {
		proc, err := process.NewProcess(int32(os.Getpid()))
		if err != nil {
			return nil, fmt.Errorf("failed to inspect own process: %w", err)
		}
		p.self = proc
	}

	mem, err := p.self.MemoryInfo()
	if err != nil {
		return nil, fmt.Errorf("failed to read memory info: %w", err)
	}
	cpu, err := p.self.CPUPercent()
	if err != nil {
		return nil, fmt.Errorf("failed to read cpu usage: %w", err)
	}
	threads, err := p.self.NumThreads()
	if err != nil {
		threads = 0
	}

	return &ProcessStats{RSSBytes: mem.RSS, CPUPercent: cpu, Threads: threads}, nil
}

// ShouldProfile returns true if the given level should be profiled
func (p *Profiler) ShouldProfile(level ProfilingLevel) bool {
	if !p.enabled {
		return false
	}

	switch p.level {
	case LevelTrace:
		return true // Profile everything
	case LevelDetailed:
		return level == LevelMinimal || level == LevelDetailed
	case LevelMinimal:
		return level == LevelMinimal
	default:
		return false
	}
}

// IsEnabled returns true if profiling is enabled
func (p *Profiler) IsEnabled() bool {
	return p.enabled
}

// GetLevel returns the current profiling level
func (p *Profiler) GetLevel() ProfilingLevel {
	return p.level
}
