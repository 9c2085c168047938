package parser

// Config tunes how a Tree primes and queries the graph.
type Config struct {
	// Lookahead is how many concepts past a span are appended as context.
	Lookahead int
	// ContextRadius is how many columns either side of a span are primed.
	ContextRadius int
	// ContextEnergy is injected at every primed concept.
	ContextEnergy float64
	// PatternPropagation and ParentPropagation are the forward propagation
	// factors used while priming.
	PatternPropagation float64
	ParentPropagation  float64
	// ReverseFactor scales reverse propagation after priming.
	ReverseFactor float64

	// LookupDepth is the number of lookup rounds.
	LookupDepth int
	// PatternDepthDecay and ParentDepthDecay are the weight lost per
	// transition of each type.
	PatternDepthDecay float64
	ParentDepthDecay  float64
	// IndexMismatchPenalty is the per-slot penalty for misplaced concepts.
	IndexMismatchPenalty float64

	// AmbiguityCapacity bounds the ambiguity queue.
	AmbiguityCapacity int
	// MaxSteps bounds the matching and validation steps of one Run.
	MaxSteps int
}

// DefaultConfig returns the tuning the reference knowledge base was built for.
func DefaultConfig() Config {
	return Config{
		Lookahead:            2,
		ContextRadius:        2,
		ContextEnergy:        0.3,
		PatternPropagation:   0.8,
		ParentPropagation:    1.0,
		ReverseFactor:        1.0,
		LookupDepth:          5,
		PatternDepthDecay:    0.5,
		ParentDepthDecay:     0.0,
		IndexMismatchPenalty: 0.5,
		AmbiguityCapacity:    10,
		MaxSteps:             10000,
	}
}
