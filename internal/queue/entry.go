package queue

import (
	"github.com/google/uuid"

	"github.com/banshee-data/measureit/internal/sweep"
)

// Kind distinguishes the three entry shapes spec.md §4.6 names.
type Kind int

const (
	KindSweep Kind = iota
	KindCallable
	KindContextSwitch
)

// ContextTarget names a persistence context to open: a dataset file path
// plus the experiment/sample labels it's recorded under.
type ContextTarget struct {
	Path       string
	Experiment string
	Sample     string
}

// Entry is one unit of queued work. Exactly one of Sweep, Callable, Switch
// is meaningful, selected by Kind.
type Entry struct {
	ID          string
	Kind        Kind
	Sweep       *sweep.Base
	RampToStart bool
	Callable    func() error
	Switch      ContextTarget
}

// NewSweepEntry queues b to run with the queue's current persistence
// context (if any), started with ramp_to_start=rampToStart.
func NewSweepEntry(b *sweep.Base, rampToStart bool) Entry {
	return Entry{ID: uuid.NewString(), Kind: KindSweep, Sweep: b, RampToStart: rampToStart}
}

// NewCallableEntry queues fn to be invoked synchronously by the
// supervisor loop, between sweeps.
func NewCallableEntry(fn func() error) Entry {
	return Entry{ID: uuid.NewString(), Kind: KindCallable, Callable: fn}
}

// NewContextSwitchEntry queues a persistence context rotation: the
// currently open context (if any) is closed, and path/experiment/sample
// is opened in its place before the next sweep entry runs.
func NewContextSwitchEntry(path, experiment, sample string) Entry {
	return Entry{ID: uuid.NewString(), Kind: KindContextSwitch, Switch: ContextTarget{Path: path, Experiment: experiment, Sample: sample}}
}
