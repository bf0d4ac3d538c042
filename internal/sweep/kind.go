package sweep

import "github.com/banshee-data/measureit/internal/param"

// ControlledMeta describes one controlled parameter for metadata export.
type ControlledMeta struct {
	Instrument string  `json:"instrument"`
	Start      float64 `json:"start"`
	Stop       float64 `json:"stop"`
	Step       float64 `json:"step"`
}

// Kind is the capability trait each sweep variant implements (spec.md §9:
// "tagged variant implementing {validate, run_step, on_flip,
// export_metadata}"). Base provides lifecycle orchestration and calls into
// Kind for everything that differs between time-only, one-axis, two-axis,
// multi-axis, listening, and the one-axis specializations.
type Kind interface {
	// validate checks kind-specific construction arguments.
	validate() error

	// kindName identifies the variant in exported metadata, e.g. "one_axis".
	kindName() string

	// rampToStart brings the controlled parameter(s) to their trajectory
	// start under Base's configured per-step delta/tolerance. Kinds with no
	// meaningful ramp (time-only, listening) return nil immediately.
	rampToStart(b *Base) error

	// step executes exactly one iteration. It may return more than one
	// Sample (e.g. a break marker followed by the first sample of a new
	// pass). complete=true means the sweep has reached its natural end and
	// Base should transition to DONE after emitting the returned samples.
	step(b *Base) (samples []Sample, complete bool, err error)

	// supportsFlip reports whether flip_direction is legal for this kind in
	// its current configuration (e.g. a one-shot one-axis sweep does not).
	supportsFlip() bool

	// flip swaps direction at a boundary. Returns ErrFlipUnsupported if
	// supportsFlip() is false.
	flip() error

	// totalPoints returns the number of points a full run will emit, or nil
	// if indeterminate (bidirectional, continual, listening, time-only, and
	// leakage-limiter sweeps).
	totalPoints() *int

	// attributes returns kind-specific metadata fields (back_multiplier,
	// max_time, trip limits, etc.) merged into the exported JSON record.
	attributes() map[string]interface{}

	// controlled returns the controlled parameters' metadata in declared
	// order. Listening sweeps report their observed (not set) parameter;
	// time-only returns an empty slice.
	controlled() []ControlledMeta

	// controlledParams returns the underlying Parameter objects in the same
	// order as controlled(), so Base can enforce "FollowSet must not
	// contain the controlled parameter(s)".
	controlledParams() []param.Parameter
}
