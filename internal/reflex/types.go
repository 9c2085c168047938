package reflex

import (
	"time"
)

// Reaction binds trigger concepts to a task, defined in YAML
type Reaction struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description,omitempty"`
	Task        string   `yaml:"task"`     // concept dispatched when the reaction wins
	Triggers    []string `yaml:"triggers"` // concepts that suggest this task
	Weight      float64  `yaml:"weight,omitempty"`
	Priority    int      `yaml:"priority,omitempty"` // higher wins when two reactions share a task

	// Action names the handler run when the reaction fires; empty means "log"
	Action string         `yaml:"action,omitempty"`
	Params map[string]any `yaml:"params,omitempty"`

	// Runtime state
	LastFired time.Time `yaml:"-"`
	FireCount int       `yaml:"-"`
}

// weight returns the association strength of each trigger edge
func (r *Reaction) weight() float64 {
	if r.Weight <= 0 {
		return 1.0
	}
	return r.Weight
}

// Candidate is a ranked dispatch result
type Candidate struct {
	Reaction *Reaction
	Score    float64
}

// Outcome is the result of firing a reaction
type Outcome struct {
	Reaction string
	Task     string
	Score    float64
	Success  bool
	Output   string
	Error    error
	Duration time.Duration
}
