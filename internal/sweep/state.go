package sweep

import "sync"

// State is one node of the sweep state machine described in spec.md §3/§4.2.
type State int

const (
	StateReady State = iota
	StateRampingToStart
	StateRunning
	StatePaused
	StateStopping
	StateDone
	StateError
	StateKilled
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "READY"
	case StateRampingToStart:
		return "RAMPING_TO_START"
	case StateRunning:
		return "RUNNING"
	case StatePaused:
		return "PAUSED"
	case StateStopping:
		return "STOPPING"
	case StateDone:
		return "DONE"
	case StateError:
		return "ERROR"
	case StateKilled:
		return "KILLED"
	default:
		return "UNKNOWN"
	}
}

// Terminal reports whether s is one from which no further progress happens
// without an explicit clear_error/reset.
func (s State) Terminal() bool {
	return s == StateDone || s == StateError || s == StateKilled
}

// ProgressState is the snapshot a supervisor reads. It is mutated by the
// Runner, and by Stop (which sets STOPPING) and ClearError on the caller's
// goroutine, always under progressState.mu.
type ProgressState struct {
	State            State
	PointsEmitted    int
	TotalPoints      *int // nil if indeterminate/infinite
	CurrentSetpoints []float64
	Direction        int // +1 or -1
	ErrorMessage     string
	ErrorCount       int
}

// progressState is the mutex-guarded holder embedded in Base. The spec
// requires that (state, error_message, error_count) be updated as a single
// critical section so that readers never observe ERROR without a message.
type progressState struct {
	mu    sync.Mutex
	state ProgressState
}

func newProgressState() *progressState {
	return &progressState{state: ProgressState{State: StateReady, Direction: 1}}
}

// snapshot returns a copy of the current progress, safe to hand to callers.
func (p *progressState) snapshot() ProgressState {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := p.state
	out.CurrentSetpoints = append([]float64(nil), p.state.CurrentSetpoints...)
	return out
}

func (p *progressState) setState(s State) {
	p.mu.Lock()
	p.state.State = s
	p.mu.Unlock()
}

func (p *progressState) get() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state.State
}

func (p *progressState) recordPoint(setpoints []float64, totalPoints *int) {
	p.mu.Lock()
	p.state.PointsEmitted++
	p.state.CurrentSetpoints = append([]float64(nil), setpoints...)
	if totalPoints != nil {
		p.state.TotalPoints = totalPoints
	}
	p.mu.Unlock()
}

func (p *progressState) setDirection(d int) {
	p.mu.Lock()
	p.state.Direction = d
	p.mu.Unlock()
}

// markError is idempotent w.r.t. the message (only the first is retained)
// and monotonic w.r.t. the count (always incremented). It transitions the
// sweep to ERROR.
func (p *progressState) markError(msg string) {
	p.mu.Lock()
	if p.state.ErrorMessage == "" {
		p.state.ErrorMessage = msg
	}
	p.state.ErrorCount++
	p.state.State = StateError
	p.mu.Unlock()
}

// clearError resets the (state, error_message, error_count) triple to
// (READY, "", 0). It is the only legal way to re-run after a terminal error.
func (p *progressState) clearError() {
	p.mu.Lock()
	p.state.State = StateReady
	p.state.ErrorMessage = ""
	p.state.ErrorCount = 0
	p.state.PointsEmitted = 0
	p.mu.Unlock()
}
