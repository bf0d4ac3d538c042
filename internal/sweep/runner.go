package sweep

import (
	"time"

	"github.com/banshee-data/measureit/internal/monitoring"
)

// Start transitions a READY sweep through RAMPING_TO_START into RUNNING and
// launches the Runner goroutine. If a registry is attached, start consults
// it first and fails with a registry.ConcurrencyError if an unrelated
// sweep is active. rampToStart controls whether the ramp-to-start pass
// runs before sampling begins.
func (b *Base) Start(rampToStart bool) error {
	b.runMu.Lock()
	defer b.runMu.Unlock()

	if b.running || b.progress.get() != StateReady {
		return ErrNotReady
	}
	if b.registry != nil {
		if err := b.registry.Start(b); err != nil {
			return err
		}
	}

	b.logEstimatedDuration()
	b.running = true
	go b.runLoop(rampToStart)
	return nil
}

func (b *Base) logEstimatedDuration() {
	if d, ok := b.EstimatedDuration(); ok {
		monitoring.Logf("sweep %s (%s): estimated duration %s", b.id, b.kind.kindName(), d)
	}
}

// StartForce kills every unrelated active sweep in the registry (if one is
// attached) before starting.
func (b *Base) StartForce() error {
	b.runMu.Lock()
	defer b.runMu.Unlock()

	if b.running || b.progress.get() != StateReady {
		return ErrNotReady
	}
	if b.registry != nil {
		b.registry.StartForce(b)
	}

	b.logEstimatedDuration()
	b.running = true
	go b.runLoop(true)
	return nil
}

// Stop requests a graceful drain: the in-flight point finishes, a
// "complete" marker is posted, and the Runner exits into DONE. Idempotent —
// calling Stop twice (or after the sweep has already reached a terminal
// state) is a no-op.
func (b *Base) Stop() {
	if b.progress.get().Terminal() {
		return
	}
	b.progress.setState(StateStopping)
	b.sendControl(controlMsg{kind: ctrlStop})
}

// Kill abruptly terminates the Runner at the next control checkpoint,
// abandoning any in-flight point, and lands the sweep in KILLED. It does
// not ramp the controlled parameter back to anything. Implements
// registry.Handle. Idempotent: killing twice, or killing after Stop has
// already reached DONE, is a no-op — whichever terminal state was reached
// first stands, per spec.md §8.
func (b *Base) Kill() {
	if b.progress.get().Terminal() {
		return
	}
	select {
	case <-b.killSig:
		// already closed
	default:
		close(b.killSig)
	}
}

// Pause requests the Runner suspend instrument I/O at the next control
// checkpoint, landing in PAUSED. Legal only while RUNNING. The sweep resumes
// exactly where it left off via Resume.
func (b *Base) Pause() error {
	if b.progress.get() != StateRunning {
		return ErrPauseIllegal
	}
	b.sendControl(controlMsg{kind: ctrlPause})
	return nil
}

// Resume restarts a PAUSED sweep, continuing from where it paused. It is
// legal only from PAUSED: a stopped sweep ends in DONE and cannot be
// resumed, and the WithResumeContinuesCursor flag is not read here.
func (b *Base) Resume() error {
	if b.progress.get() != StatePaused {
		return ErrResumeIllegal
	}
	b.sendControl(controlMsg{kind: ctrlResume})
	return nil
}

// FlipDirection swaps (start,stop) and negates step at the next boundary.
// Legal only while RUNNING on a kind that supports it.
func (b *Base) FlipDirection() error {
	if b.progress.get() != StateRunning {
		return ErrFlipUnsupported
	}
	if !b.kind.supportsFlip() {
		return ErrFlipUnsupported
	}
	b.sendControl(controlMsg{kind: ctrlFlip})
	return nil
}

// ClearError resets (state, error_message, error_count) to (READY, "", 0).
// It is the only legal way to re-run after ERROR or KILLED. When no Runner
// is active it also installs a fresh kill signal, so a re-run after KILLED
// is not killed at once.
func (b *Base) ClearError() {
	b.runMu.Lock()
	if !b.running {
		b.killSig = make(chan struct{})
	}
	b.runMu.Unlock()
	b.progress.clearError()
}

// checkpointAction is what drainPendingControl found at a control
// checkpoint between points.
type checkpointAction int

const (
	actionContinue checkpointAction = iota
	actionStopGracefully
	actionKilled
)

// drainPendingControl applies any control messages queued since the last
// checkpoint, without blocking, and reports whether the Runner must exit.
// Control events are only ever processed here — between points, never in
// the middle of one.
func (b *Base) drainPendingControl() checkpointAction {
	select {
	case <-b.killSig:
		return actionKilled
	default:
	}

	for {
		select {
		case msg := <-b.control:
			switch msg.kind {
			case ctrlStop:
				return actionStopGracefully
			case ctrlPause:
				b.progress.setState(StatePaused)
			case ctrlResume:
				b.progress.setState(StateRunning)
			case ctrlFlip:
				_ = b.kind.flip()
			case ctrlSetDelay:
				b.interDelay = msg.delay
			case ctrlSetStep:
				// kind-specific; no kind in this engine supports a live
				// step edit today, but the control message exists so a
				// future kind can read b.interDelay-style fields here.
			}
		default:
			return actionContinue
		}
	}
}

// sleepInterDelay sleeps for the configured inter-delay, but wakes early
// (returning killed=true) if Kill() is called mid-sleep — this is the
// checkpoint that makes kill "abandon the current point" responsive
// instead of waiting out a long instrument-dependent delay.
func (b *Base) sleepInterDelay() (killed bool) {
	return b.interruptibleSleep(b.interDelay)
}

func (b *Base) interruptibleSleep(d time.Duration) (killed bool) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return false
	case <-b.killSig:
		return true
	}
}

// runLoop is the Runner goroutine body: ramp-to-start, then the step loop,
// emitting samples and updating ProgressState until a terminal condition.
func (b *Base) runLoop(rampToStart bool) {
	defer func() {
		b.runMu.Lock()
		b.running = false
		b.runMu.Unlock()
	}()

	if rampToStart {
		b.progress.setState(StateRampingToStart)
		if err := b.kind.rampToStart(b); err != nil {
			if b.killedDuringRamp() {
				b.finishKilled()
				return
			}
			b.fail(err)
			return
		}
		if b.killedDuringRamp() {
			b.finishKilled()
			return
		}
	}

	if b.progress.get() != StateRunning {
		b.progress.setState(StateRunning)
	}

	total := b.kind.totalPoints()

	for {
		switch b.drainPendingControl() {
		case actionKilled:
			b.finishKilled()
			return
		case actionStopGracefully:
			b.finishStopped()
			return
		}

		if b.progress.get() == StatePaused {
			// Busy-idle on control messages only; a paused sweep performs
			// no instrument I/O until Resume().
			if b.interruptibleSleep(50 * time.Millisecond) {
				b.finishKilled()
				return
			}
			continue
		}

		samples, complete, err := b.kind.step(b)
		if err != nil {
			if b.killedDuringRamp() {
				b.finishKilled()
				return
			}
			b.fail(err)
			return
		}
		if b.killedDuringRamp() {
			// step observed Kill() mid-delay and returned early without
			// completing its point; honor it rather than emit a partial
			// sample.
			b.finishKilled()
			return
		}
		for _, s := range samples {
			pt := Point{Timestamp: b.clock(), Sample: s}
			b.broadcast(pt)
			if !s.Break {
				b.progress.recordPoint(s.Setpoints, total)
			}
		}

		if complete {
			b.progress.setState(StateDone)
			b.notifyTerminal(StateDone)
			return
		}
	}
}

func (b *Base) killedDuringRamp() bool {
	select {
	case <-b.killSig:
		return true
	default:
		return false
	}
}

func (b *Base) fail(err error) {
	b.progress.markError(err.Error())
	b.notifyTerminal(StateError)
}

func (b *Base) finishStopped() {
	b.broadcast(Point{Timestamp: b.clock(), Sample: Sample{Break: true}})
	b.progress.setState(StateDone)
	b.notifyTerminal(StateDone)
}

func (b *Base) finishKilled() {
	b.progress.setState(StateKilled)
	b.notifyTerminal(StateKilled)
}
