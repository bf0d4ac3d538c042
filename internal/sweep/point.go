package sweep

import "time"

// Sample is what a Kind's step produces: either a real data point
// (Setpoints/Values populated) or a break marker (Break=true, no values) —
// spec.md's "break marker" segmenting forward/backward sections or heatmap
// lines.
type Sample struct {
	Setpoints []float64
	Values    []float64
	Break     bool
}

// Point is the (timestamp, setpoints…, values…) tuple the Runner emits on
// the data channel, per spec.md §2.
type Point struct {
	Timestamp time.Time
	Sample
}

// SubscriberMode controls how a Publisher treats backpressure for a given
// subscriber.
type SubscriberMode int

const (
	// ModeBlocking subscribers (persistence) must never miss a point; the
	// Runner blocks on send until they drain.
	ModeBlocking SubscriberMode = iota
	// ModeDropping subscribers (plot sinks) may miss points under load; the
	// Runner never blocks on them.
	ModeDropping
)

// Publisher is the narrow interface a consumer (persistence writer, plot
// sink) needs to attach to a running sweep's point stream, without
// depending on the rest of Base.
type Publisher interface {
	Subscribe(mode SubscriberMode) (id string, ch <-chan Point)
	Unsubscribe(id string)
}
