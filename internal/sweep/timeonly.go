package sweep

import (
	"time"

	"github.com/banshee-data/measureit/internal/param"
)

// TimeOnly samples the follow set at a fixed cadence with no controlled
// parameter at all — spec.md's degenerate sweep kind, used for pure
// monitoring runs. It runs until maxTime has elapsed (wall-clock, measured
// from the first step) if maxTime > 0, otherwise until Stop()/Kill().
type TimeOnly struct {
	base *Base

	maxTime time.Duration
	started time.Time
	emitted int
}

// NewTimeOnly constructs a Base wrapping a TimeOnly kind. opts are the usual
// Base construction options; maxTime <= 0 means run indefinitely.
func NewTimeOnly(maxTime time.Duration, opts ...Option) (*Base, error) {
	k := &TimeOnly{maxTime: maxTime}
	b, err := NewBase(k, opts...)
	if err != nil {
		return nil, err
	}
	k.base = b
	return b, nil
}

func (k *TimeOnly) validate() error { return nil }

func (k *TimeOnly) kindName() string { return "time_only" }

func (k *TimeOnly) rampToStart(b *Base) error { return nil }

func (k *TimeOnly) step(b *Base) ([]Sample, bool, error) {
	if b.sleepInterDelay() {
		return nil, false, nil
	}
	if k.started.IsZero() {
		k.started = b.clock()
	}
	values, err := b.followSet.Read(b.binding)
	if err != nil {
		return nil, false, err
	}
	k.emitted++
	complete := k.maxTime > 0 && b.clock().Sub(k.started) >= k.maxTime
	return []Sample{{Setpoints: nil, Values: values}}, complete, nil
}

func (k *TimeOnly) supportsFlip() bool { return false }

func (k *TimeOnly) flip() error { return ErrFlipUnsupported }

func (k *TimeOnly) totalPoints() *int { return nil }

func (k *TimeOnly) attributes() map[string]interface{} {
	return map[string]interface{}{"max_time_ms": k.maxTime.Milliseconds()}
}

func (k *TimeOnly) controlled() []ControlledMeta { return nil }

func (k *TimeOnly) controlledParams() []param.Parameter { return nil }

func init() {
	RegisterKind("time_only", func(meta *Metadata, station Station) (*Base, error) {
		var maxTime time.Duration
		if v, ok := meta.Attributes["max_time_ms"].(float64); ok {
			maxTime = time.Duration(v) * time.Millisecond
		}
		return NewTimeOnly(maxTime)
	})
}
