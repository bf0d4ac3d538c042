// Package queue implements the ordered sweep/callable/context-switch
// supervisor of spec.md §4.6 — grounded on the teacher's
// internal/db.TransitWorker (ticker-driven background loop with a
// StopChan) and cmd/bg-sweep/main.go's sequential "set, run, collect"
// orchestration, generalized from a fixed parameter sweep to an arbitrary
// ordered plan of sweeps, hooks, and persistence-context switches.
package queue

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/banshee-data/measureit/internal/monitoring"
	"github.com/banshee-data/measureit/internal/persistence"
	"github.com/banshee-data/measureit/internal/sweep"
)

var (
	errNotReady    = errors.New("queue: not ready")
	errUnknownKind = errors.New("queue: unknown entry kind")
)

// Queue holds an ordered sequence of entries and runs them one at a time
// on its own supervisor goroutine. Queue-driven sweeps are started without
// a registry.Registry (spec.md §4.6: "queue-driven sweeps bypass the
// registry's uniqueness check").
type Queue struct {
	mu      sync.Mutex
	entries []Entry
	state   State
	errMsg  string

	current     *sweep.Base
	ctx         *persistence.Context
	lastSummary Summary

	stopSig chan struct{}
	killSig chan struct{}
	done    chan struct{}
}

// New returns an empty, READY queue.
func New() *Queue {
	return &Queue{}
}

// SetPersistence installs ctx as the queue's starting persistence context,
// used by sweep entries until a context-switch entry replaces it. Only
// legal before Start.
func (q *Queue) SetPersistence(ctx *persistence.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.ctx = ctx
}

// Append adds e to the back of the queue. This is the Go spelling of the
// original's `+=` operator.
func (q *Queue) Append(e Entry) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.entries = append(q.entries, e)
}

// Len returns the number of entries not yet processed.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Entries returns a snapshot of the remaining entries, in order, for
// iteration. Mutating the returned slice does not affect the queue.
func (q *Queue) Entries() []Entry {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Entry, len(q.entries))
	copy(out, q.entries)
	return out
}

// State returns the queue's current lifecycle state.
func (q *Queue) State() State {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.state
}

// ErrorMessage returns the message recorded when the queue transitioned
// to ERROR, or "" if it never did.
func (q *Queue) ErrorMessage() string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.errMsg
}

// Start launches the supervisor loop. It is only legal from READY.
func (q *Queue) Start() error {
	q.mu.Lock()
	if q.state != StateReady {
		q.mu.Unlock()
		return &QueueError{Cause: errNotReady}
	}
	q.state = StateRunning
	q.stopSig = make(chan struct{})
	q.killSig = make(chan struct{})
	q.done = make(chan struct{})
	q.mu.Unlock()

	go q.run()
	return nil
}

// Stop requests a cooperative halt: the in-flight entry finishes, then
// the loop exits without processing the remainder.
func (q *Queue) Stop() {
	q.mu.Lock()
	if q.stopSig == nil {
		q.mu.Unlock()
		return
	}
	select {
	case <-q.stopSig:
	default:
		close(q.stopSig)
	}
	q.mu.Unlock()
}

// Kill abruptly terminates the queue: if a sweep is currently running, it
// is killed too, abandoning its in-flight point.
func (q *Queue) Kill() {
	q.mu.Lock()
	cur := q.current
	if q.killSig != nil {
		select {
		case <-q.killSig:
		default:
			close(q.killSig)
		}
	}
	q.mu.Unlock()

	if cur != nil {
		cur.Kill()
	}
}

// Wait blocks until the supervisor loop has exited.
func (q *Queue) Wait() {
	q.mu.Lock()
	done := q.done
	q.mu.Unlock()
	if done != nil {
		<-done
	}
}

func (q *Queue) run() {
	defer close(q.done)
	for {
		q.mu.Lock()
		select {
		case <-q.killSig:
			q.state = StateKilled
			q.mu.Unlock()
			return
		case <-q.stopSig:
			q.state = StateDone
			q.mu.Unlock()
			return
		default:
		}
		if len(q.entries) == 0 {
			q.state = StateDone
			q.mu.Unlock()
			if q.ctx != nil {
				persistence.Close(q.ctx)
			}
			return
		}
		e := q.entries[0]
		q.entries = q.entries[1:]
		q.mu.Unlock()

		if err := q.process(e); err != nil {
			monitoring.Logf("queue: entry %s failed: %v", e.ID, err)
			q.mu.Lock()
			q.state = StateError
			q.errMsg = err.Error()
			q.mu.Unlock()
			return
		}
	}
}

func (q *Queue) process(e Entry) error {
	switch e.Kind {
	case KindContextSwitch:
		return q.processContextSwitch(e)
	case KindCallable:
		if err := e.Callable(); err != nil {
			return &QueueError{EntryID: e.ID, Cause: err}
		}
		return nil
	case KindSweep:
		return q.processSweep(e)
	default:
		return &QueueError{EntryID: e.ID, Cause: errUnknownKind}
	}
}

func (q *Queue) processContextSwitch(e Entry) error {
	q.mu.Lock()
	old := q.ctx
	q.mu.Unlock()
	if old != nil {
		if err := persistence.Close(old); err != nil {
			return &QueueError{EntryID: e.ID, Cause: err}
		}
	}
	ctx, err := persistence.Open(e.Switch.Path, e.Switch.Experiment, e.Switch.Sample)
	if err != nil {
		return &QueueError{EntryID: e.ID, Cause: err}
	}
	q.mu.Lock()
	q.ctx = ctx
	q.mu.Unlock()
	return nil
}

func (q *Queue) processSweep(e Entry) error {
	b := e.Sweep

	q.mu.Lock()
	q.current = b
	ctx := q.ctx
	q.mu.Unlock()
	defer func() {
		q.mu.Lock()
		q.current = nil
		q.mu.Unlock()
	}()

	var handle *persistence.Handle
	var appenderDone chan struct{}
	var subID string
	var acc *columnAccumulator

	if ctx != nil {
		columns := sanitizeColumns(b.ColumnSchema())
		h, err := persistence.BeginMeasurement(ctx, columns)
		if err != nil {
			return &QueueError{EntryID: e.ID, Cause: err}
		}
		handle = h
		acc = newColumnAccumulator(columns)

		var ch <-chan sweep.Point
		subID, ch = b.Subscribe(sweep.ModeBlocking)
		start := time.Now()
		appenderDone = make(chan struct{})
		go func() {
			defer close(appenderDone)
			for pt := range ch {
				row := toRow(pt, start, len(columns))
				if !row.Break {
					acc.add(row.Values)
				}
				if err := handle.Append(row); err != nil {
					monitoring.Logf("queue: append failed: %v", err)
				}
			}
		}()
	}

	terminal := make(chan sweep.State, 1)
	b.OnTerminal(func(s sweep.State) { terminal <- s })

	if err := b.Start(e.RampToStart); err != nil {
		if handle != nil {
			b.Unsubscribe(subID)
			<-appenderDone
			handle.Finish()
		}
		return &QueueError{EntryID: e.ID, Cause: err}
	}

	final := <-terminal

	if handle != nil {
		b.Unsubscribe(subID)
		<-appenderDone
		if err := handle.Finish(); err != nil {
			monitoring.Logf("queue: finish measurement failed: %v", err)
		}
		summary := acc.summary(e.ID)
		q.mu.Lock()
		q.lastSummary = summary
		q.mu.Unlock()
		monitoring.Logf("queue: entry %s summary: %+v", e.ID, summary)
	}

	if final == sweep.StateError {
		msg := b.Progress().ErrorMessage
		if msg == "" {
			msg = "sweep failed"
		}
		return &QueueError{EntryID: e.ID, Cause: errors.New(msg)}
	}
	return nil
}

// toRow assembles a persistence.Row from a sweep point, appending elapsed
// seconds since start as the final value, matching Base.ColumnSchema's
// "...followed, elapsed_time" column order.
func toRow(pt sweep.Point, start time.Time, numCols int) persistence.Row {
	if pt.Break {
		return persistence.Row{Timestamp: pt.Timestamp, Break: true}
	}
	values := make([]float64, 0, numCols)
	values = append(values, pt.Setpoints...)
	values = append(values, pt.Values...)
	values = append(values, pt.Timestamp.Sub(start).Seconds())
	return persistence.Row{Timestamp: pt.Timestamp, Values: values}
}

// sanitizeColumns maps sweep parameter names (which may contain dots,
// e.g. "instrument.parameter") onto valid sqlite identifiers.
func sanitizeColumns(names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = strings.Map(func(r rune) rune {
			if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' {
				return r
			}
			return '_'
		}, n)
	}
	return out
}
