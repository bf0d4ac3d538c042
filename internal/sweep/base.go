package sweep

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/measureit/internal/param"
	"github.com/banshee-data/measureit/internal/registry"
)

const (
	minInterDelay        = 10 * time.Millisecond
	minOuterDelay        = 100 * time.Millisecond
	defaultRampTolerance = 0.5
	defaultRampTimeout   = 30 * time.Second
)

type subscriber struct {
	ch   chan Point
	mode SubscriberMode
}

// Base is the common sweep lifecycle orchestrator shared by every kind:
// follow-set management, the state machine, ramp-to-start, the Runner
// goroutine, fan-out to subscribers, persistence-column schema, and
// metadata export/import. Per-step semantics are delegated to Kind
// (spec.md §9).
type Base struct {
	id   string
	kind Kind

	progress *progressState

	interDelay    time.Duration
	outerDelay    time.Duration
	rampTolerance float64
	rampTimeout   time.Duration

	followSet FollowSet
	binding   *param.Binding

	subMu       sync.Mutex
	subscribers map[string]subscriber

	control chan controlMsg
	killSig chan struct{}

	registry *registry.Registry // nil for queue-driven / detached sweeps

	parent *Base // back-reference only, not ownership

	clock func() time.Time

	runMu   sync.Mutex
	running bool

	resumeContinuesCursor bool

	onTerminal []func(State)
}

// Option configures a Base at construction time.
type Option func(*Base)

func WithInterDelay(d time.Duration) Option { return func(b *Base) { b.interDelay = d } }
func WithOuterDelay(d time.Duration) Option { return func(b *Base) { b.outerDelay = d } }
func WithRampTolerance(e float64) Option    { return func(b *Base) { b.rampTolerance = e } }
func WithRampTimeout(d time.Duration) Option {
	return func(b *Base) { b.rampTimeout = d }
}

// WithRegistry attaches the Active-Sweep Registry this sweep's start()
// should consult. Queue-driven sweeps omit this (spec.md §4.6: "queue-driven
// sweeps bypass the registry's uniqueness check").
func WithRegistry(r *registry.Registry) Option { return func(b *Base) { b.registry = r } }

// WithParent marks b as a descendant of parent for relatedness purposes.
// No constructor in this package sets it: a two-axis sweep's inner axis is a
// OneAxis kind driven by the outer Base, with no Base of its own.
func WithParent(parent *Base) Option { return func(b *Base) { b.parent = parent } }

// WithClock overrides the time source, for deterministic tests.
func WithClock(clock func() time.Time) Option { return func(b *Base) { b.clock = clock } }

// WithResumeContinuesCursor records whether a resumed sweep continues the
// setpoint cursor from the last emitted point (true, the default) or
// restarts at the trajectory's start (false). The value is stored but no
// code path reads it: Resume only accepts a PAUSED sweep, which always
// continues where it paused, and a stopped sweep cannot be resumed.
func WithResumeContinuesCursor(v bool) Option {
	return func(b *Base) { b.resumeContinuesCursor = v }
}

// NewBase constructs a Base wrapping kind, applying opts, and validating
// both kind-specific and common construction arguments.
func NewBase(kind Kind, opts ...Option) (*Base, error) {
	b := &Base{
		id:                    uuid.NewString(),
		kind:                  kind,
		progress:              newProgressState(),
		interDelay:            100 * time.Millisecond,
		outerDelay:            200 * time.Millisecond,
		rampTolerance:         defaultRampTolerance,
		rampTimeout:           defaultRampTimeout,
		binding:               param.NewBinding(),
		subscribers:           make(map[string]subscriber),
		control:               make(chan controlMsg, controlQueueDepth),
		killSig:               make(chan struct{}),
		clock:                 time.Now,
		resumeContinuesCursor: true,
	}
	for _, opt := range opts {
		opt(b)
	}

	if err := kind.validate(); err != nil {
		return nil, err
	}
	if b.interDelay < minInterDelay {
		return nil, &ConfigError{Message: fmt.Sprintf("inter_delay must be >= %s, got %s", minInterDelay, b.interDelay)}
	}
	if b.outerDelay < minOuterDelay {
		return nil, &ConfigError{Message: fmt.Sprintf("outer_delay must be >= %s, got %s", minOuterDelay, b.outerDelay)}
	}
	return b, nil
}

// ID implements registry.Handle.
func (b *Base) ID() string { return b.id }

// KindName returns the kind name, e.g. "one_axis".
func (b *Base) KindName() string { return b.kind.kindName() }

// RelatedTo implements registry.Handle: equal, ancestor, descendant, or
// sharing an ancestor.
func (b *Base) RelatedTo(other registry.Handle) bool {
	o, ok := other.(*Base)
	if !ok {
		return false
	}
	if b == o {
		return true
	}
	for a := b.parent; a != nil; a = a.parent {
		if a == o {
			return true
		}
	}
	for a := o.parent; a != nil; a = a.parent {
		if a == b {
			return true
		}
	}
	seen := map[*Base]bool{}
	for a := b.parent; a != nil; a = a.parent {
		seen[a] = true
	}
	for a := o.parent; a != nil; a = a.parent {
		if seen[a] {
			return true
		}
	}
	return false
}

// FollowParam adds params to the follow set. It rejects any parameter that
// is also one of this sweep's controlled parameters.
func (b *Base) FollowParam(params ...param.Parameter) error {
	controlled := b.kind.controlledParams()
	for _, p := range params {
		for _, c := range controlled {
			if c.Name() == p.Name() {
				return &ConfigError{Message: fmt.Sprintf("follow parameter %q is also the controlled parameter", p.Name())}
			}
		}
		if b.followSet.Contains(p) {
			continue
		}
		b.followSet.Add(p)
	}
	return nil
}

// SetInterDelay updates the inter-step delay. Legal at any time; takes
// effect starting with the next step via a control message when RUNNING.
func (b *Base) SetInterDelay(d time.Duration) error {
	if d < minInterDelay {
		return &ConfigError{Message: fmt.Sprintf("inter_delay must be >= %s", minInterDelay)}
	}
	if b.progress.get().Terminal() || b.progress.get() == StateReady {
		b.interDelay = d
		return nil
	}
	b.sendControl(controlMsg{kind: ctrlSetDelay, delay: d})
	return nil
}

// SetOuterDelay updates the two-axis outer-step delay.
func (b *Base) SetOuterDelay(d time.Duration) error {
	if d < minOuterDelay {
		return &ConfigError{Message: fmt.Sprintf("outer_delay must be >= %s", minOuterDelay)}
	}
	b.outerDelay = d
	return nil
}

// Progress returns a snapshot of the current ProgressState.
func (b *Base) Progress() ProgressState {
	return b.progress.snapshot()
}

// State is shorthand for Progress().State, and implements the state probe
// needed by the queue and registry admin routes.
func (b *Base) State() State { return b.progress.get() }

// Subscribe implements Publisher. mode controls the Runner's backpressure
// policy toward this subscriber.
func (b *Base) Subscribe(mode SubscriberMode) (string, <-chan Point) {
	id := uuid.NewString()
	ch := make(chan Point, subscriberBufferDepth(mode))
	b.subMu.Lock()
	b.subscribers[id] = subscriber{ch: ch, mode: mode}
	b.subMu.Unlock()
	return id, ch
}

func subscriberBufferDepth(mode SubscriberMode) int {
	if mode == ModeDropping {
		return 1 // §4.5: "buffering upstream is bounded by one update queue depth"
	}
	return 64
}

// Unsubscribe removes and closes a subscriber channel.
func (b *Base) Unsubscribe(id string) {
	b.subMu.Lock()
	defer b.subMu.Unlock()
	if s, ok := b.subscribers[id]; ok {
		close(s.ch)
		delete(b.subscribers, id)
	}
}

func (b *Base) broadcast(pt Point) {
	b.subMu.Lock()
	subs := make([]subscriber, 0, len(b.subscribers))
	for _, s := range b.subscribers {
		subs = append(subs, s)
	}
	b.subMu.Unlock()

	for _, s := range subs {
		switch s.mode {
		case ModeBlocking:
			s.ch <- pt
		case ModeDropping:
			select {
			case s.ch <- pt:
			default:
			}
		}
	}
}

// ColumnSchema returns the fixed column order a persistence writer must
// register: controlled parameter name(s), then the follow-set, then
// "elapsed_time".
func (b *Base) ColumnSchema() []string {
	cols := make([]string, 0, len(b.kind.controlledParams())+len(b.followSet.params)+1)
	for _, p := range b.kind.controlledParams() {
		cols = append(cols, p.Name())
	}
	cols = append(cols, b.followSet.Names()...)
	cols = append(cols, "elapsed_time")
	return cols
}

// EstimatedDuration returns this sweep's estimated wall-clock run time and
// whether an estimate exists at all — continual and bidirectional-forever
// trajectories have no fixed point count and report false. Generalized from
// original_source/sweep.py's printed `(stop-start)/step * inter_delay`
// estimate at Sweep1D construction.
func (b *Base) EstimatedDuration() (time.Duration, bool) {
	total := b.kind.totalPoints()
	if total == nil {
		return 0, false
	}
	return time.Duration(*total) * b.interDelay, true
}

// Reconfigure re-parameterizes a READY sweep's trajectory in place, avoiding
// a full reconstruction for the common case of re-running the same kind
// over a new range. Mirrors original_source/sweep.py's Sweep1D.reset.
func (b *Base) Reconfigure(traj Trajectory) error {
	if b.progress.get() != StateReady {
		return &ConfigError{Message: "Reconfigure is only legal from READY"}
	}
	reconfigurable, ok := b.kind.(interface{ reconfigure(Trajectory) error })
	if !ok {
		return &ConfigError{Message: b.kind.kindName() + " does not support Reconfigure"}
	}
	return reconfigurable.reconfigure(traj)
}

// OnInnerComplete registers a per-inner-pass hook on a two-axis sweep. It is
// an error to call this on any other kind.
func (b *Base) OnInnerComplete(fn func(*OneAxis)) error {
	t, ok := b.kind.(*TwoAxis)
	if !ok {
		return &ConfigError{Message: "OnInnerComplete is only supported by two_axis sweeps"}
	}
	t.OnInnerComplete(fn)
	return nil
}

// OnTerminal registers a callback invoked (on the Runner's goroutine)
// whenever the sweep reaches a terminal state. Used by Queue and the
// Registry to react to completion/error without polling.
func (b *Base) OnTerminal(fn func(State)) {
	b.onTerminal = append(b.onTerminal, fn)
}

func (b *Base) notifyTerminal(s State) {
	if b.registry != nil {
		b.registry.Remove(b)
	}
	for _, fn := range b.onTerminal {
		fn(s)
	}
}

func (b *Base) sendControl(msg controlMsg) {
	select {
	case b.control <- msg:
	default:
		// Control queue is shallow by design (spec.md: processed between
		// points, never mid-point); a full queue means a burst of calls
		// arrived faster than the Runner drains them. Drop the message
		// rather than block the caller; a dropped message is lost. Kill
		// does not use this queue (it closes killSig), so it is never
		// dropped.
	}
}
