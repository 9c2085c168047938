package parser

import (
	"fmt"
	"strings"

	"github.com/vthunder/grass/internal/graph"
)

// BugKind classifies a structural invariant violation.
type BugKind string

const (
	// BugSpanExceedsInput: a matching task reaches past the last token.
	BugSpanExceedsInput BugKind = "span_exceeds_input"
	// BugTooFewSlots: the winning pattern has fewer slots than the matches
	// collected for it.
	BugTooFewSlots BugKind = "too_few_slots"
	// BugUnknownPattern: lookup returned a concept with no pattern definition.
	BugUnknownPattern BugKind = "unknown_pattern"
	// BugStepBudget: the run did not settle within Config.MaxSteps.
	BugStepBudget BugKind = "step_budget"
)

// Span is a contiguous range of layer-0 positions.
type Span struct {
	Start int `json:"start"`
	Size  int `json:"size"`
}

// ParseBug reports a structural invariant violation. It aborts the current
// Run only; the tree keeps whatever it had built.
type ParseBug struct {
	Kind       BugKind
	Span       Span
	Concepts   []string
	Candidates []graph.Candidate
	Detail     string
}

func (b *ParseBug) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "parse bug %s at %d+%d", b.Kind, b.Span.Start, b.Span.Size)
	if b.Detail != "" {
		sb.WriteString(": ")
		sb.WriteString(b.Detail)
	}
	if len(b.Concepts) > 0 {
		fmt.Fprintf(&sb, " (concepts %v)", b.Concepts)
	}
	if len(b.Candidates) > 0 {
		fmt.Fprintf(&sb, " (candidates %v)", b.Candidates)
	}
	return sb.String()
}
