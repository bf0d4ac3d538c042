// Package plotsink implements the bounded, dropping-mode consumers that
// attach to a running sweep's point stream purely for visualization —
// never for persistence. A plot sink must never slow a sweep down, so every
// sink in this package subscribes with sweep.ModeDropping and tolerates
// missed points.
package plotsink

import (
	"sync"

	"github.com/banshee-data/measureit/internal/sweep"
)

// Sink is the common contract every plot sink implements: attach to a
// Publisher's point stream, consume until Close, and expose whatever
// rendering surface is specific to that sink (HTTP handler, PNG file, …).
type Sink interface {
	Close()
}

// KeyCommand is an advisory keyboard control a plot sink's UI may post back
// toward the sweep it is watching — "advisory" because the sink has no
// authority of its own; it simply calls the matching Base method.
type KeyCommand int

const (
	// KeyEscape requests Stop.
	KeyEscape KeyCommand = iota
	// KeyEnter requests Resume.
	KeyEnter
	// KeySpace requests FlipDirection.
	KeySpace
)

// Controllable is the narrow surface a plot sink needs to forward advisory
// keyboard commands to the sweep it watches.
type Controllable interface {
	Stop()
	Resume() error
	FlipDirection() error
	State() sweep.State
}

// PostCommand applies an advisory keyboard command to target. It is a
// best-effort nudge: invalid transitions (e.g. KeyEnter while not paused)
// are silently ignored rather than surfaced as errors, since the caller is
// a human pressing a key in a browser, not a program that can act on an
// error return.
func PostCommand(target Controllable, cmd KeyCommand) {
	switch cmd {
	case KeyEscape:
		target.Stop()
	case KeyEnter:
		_ = target.Resume()
	case KeySpace:
		_ = target.FlipDirection()
	}
}

// ring is a fixed-capacity circular buffer of sweep.Point used by every
// sink in this package to bound memory regardless of run length, and to
// implement decimation (keep every Nth point once the buffer would
// otherwise grow past its cap).
type ring struct {
	mu       sync.Mutex
	cap      int
	points   []sweep.Point
	next     int
	full     bool
	decimate int // keep 1 of every decimate points once saturated
	seen     int
}

func newRing(capacity int) *ring {
	if capacity <= 0 {
		capacity = 1
	}
	return &ring{cap: capacity, points: make([]sweep.Point, 0, capacity), decimate: 1}
}

func (r *ring) add(pt sweep.Point) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.seen++
	if r.seen%r.decimate != 0 {
		return
	}

	if len(r.points) < r.cap {
		r.points = append(r.points, pt)
		return
	}

	r.points[r.next] = pt
	r.next = (r.next + 1) % r.cap
	if !r.full {
		r.full = true
		// On first saturation, halve the sample rate once. From then on
		// the oldest points are overwritten, so the buffer holds the
		// most recent tail of the run rather than the whole run.
		r.decimate *= 2
	}
}

// snapshot returns the buffered points in chronological order.
func (r *ring) snapshot() []sweep.Point {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.full {
		out := make([]sweep.Point, len(r.points))
		copy(out, r.points)
		return out
	}
	out := make([]sweep.Point, 0, r.cap)
	out = append(out, r.points[r.next:]...)
	out = append(out, r.points[:r.next]...)
	return out
}

// consume runs on its own goroutine, reading from ch until it closes
// (Unsubscribe) or stop fires, forwarding each point to onPoint.
func consume(ch <-chan sweep.Point, stop <-chan struct{}, onPoint func(sweep.Point)) {
	for {
		select {
		case pt, ok := <-ch:
			if !ok {
				return
			}
			onPoint(pt)
		case <-stop:
			return
		}
	}
}
