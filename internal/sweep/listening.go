package sweep

import (
	"github.com/banshee-data/measureit/internal/param"
)

// Listening never writes to its "controlled" parameter; it polls it at
// interDelay. The first observed value sets the baseline and is not
// emitted; after that a sample is emitted once the observed value has moved
// by at least threshold since the baseline, and the emitted value becomes
// the new baseline, per spec.md's change-triggered variant. It runs
// indefinitely (totalPoints is nil). flip_direction is legal on a listening
// sweep too (spec.md: "bidirectional or listening"): it inverts the
// direction reported through ProgressState and discards the current
// baseline, so the next observed value becomes the new baseline. Direction
// does not change which excursions are emitted.
type Listening struct {
	base *Base

	observed  param.Parameter
	threshold float64

	have      bool
	last      float64
	direction int // +1 or -1; flipped by flip(), exported via ProgressState
}

// NewListening constructs a Base wrapping a Listening kind watching observed
// for excursions of at least threshold.
func NewListening(observed param.Parameter, threshold float64, opts ...Option) (*Base, error) {
	k := &Listening{observed: observed, threshold: threshold, direction: 1}
	b, err := NewBase(k, opts...)
	if err != nil {
		return nil, err
	}
	k.base = b
	return b, nil
}

func (k *Listening) validate() error {
	if k.observed == nil {
		return &ConfigError{Message: "listening requires an observed parameter"}
	}
	if k.threshold <= 0 {
		return &ConfigError{Message: "listening threshold must be positive"}
	}
	return nil
}

func (k *Listening) kindName() string { return "listening" }

func (k *Listening) rampToStart(b *Base) error { return nil }

func (k *Listening) step(b *Base) ([]Sample, bool, error) {
	if b.sleepInterDelay() {
		return nil, false, nil
	}

	v, err := b.binding.SafeGet(k.observed)
	if err != nil {
		return nil, false, err
	}
	if !k.have {
		k.have = true
		k.last = v
		return nil, false, nil
	}
	if absf(v-k.last) < k.threshold {
		return nil, false, nil
	}
	k.last = v

	values, err := b.followSet.Read(b.binding)
	if err != nil {
		return nil, false, err
	}
	return []Sample{{Setpoints: []float64{v}, Values: values}}, false, nil
}

func (k *Listening) supportsFlip() bool { return true }

// flip inverts the direction reported through ProgressState and discards
// the current excursion baseline, so the next observed value becomes the
// new baseline rather than being compared against a sample taken before
// the flip.
func (k *Listening) flip() error {
	k.direction = -k.direction
	k.base.progress.setDirection(k.direction)
	k.have = false
	return nil
}

func (k *Listening) totalPoints() *int { return nil }

func (k *Listening) attributes() map[string]interface{} {
	return map[string]interface{}{"threshold": k.threshold}
}

func (k *Listening) controlled() []ControlledMeta {
	return []ControlledMeta{{Instrument: k.observed.Name()}}
}

func (k *Listening) controlledParams() []param.Parameter { return []param.Parameter{k.observed} }

func init() {
	RegisterKind("listening", func(meta *Metadata, station Station) (*Base, error) {
		if len(meta.Controlled) != 1 {
			return nil, &ConfigError{Message: "listening metadata must name exactly one observed parameter"}
		}
		p, err := station.Resolve(meta.Controlled[0].Instrument)
		if err != nil {
			return nil, err
		}
		threshold := 0.0
		if v, ok := meta.Attributes["threshold"].(float64); ok {
			threshold = v
		}
		return NewListening(p, threshold)
	})
}
