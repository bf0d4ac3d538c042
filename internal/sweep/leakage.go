package sweep

import (
	"github.com/banshee-data/measureit/internal/param"
)

// LeakageLimiter wraps a OneAxis sweep with a gate-leakage trip: after each
// step it samples a leakage current parameter, and if the magnitude exceeds
// limit it flips direction early (instead of waiting for the trajectory's
// natural endpoint) and counts the flip. Once flipCount exceeds maxFlips the
// sweep trips and completes, rather than continuing to oscillate against a
// gate that keeps leaking. Grounded in the reference station's gate-leakage
// guard, which aborts a bias sweep once a leakage threshold is hit
// repeatedly instead of letting it run to the configured endpoint.
type LeakageLimiter struct {
	inner *OneAxis

	leakage  param.Parameter
	limit    float64
	maxFlips int

	flipCount int
	tripped   bool
}

// NewLeakageLimiter constructs a Base around a one-axis sweep that trips
// after maxFlips direction reversals caused by |leakage| exceeding limit.
func NewLeakageLimiter(setter param.Setter, traj Trajectory, leakage param.Parameter, limit float64, maxFlips int, opts ...Option) (*Base, error) {
	inner := &OneAxis{setter: setter, traj: traj, direction: 1}
	k := &LeakageLimiter{inner: inner, leakage: leakage, limit: limit, maxFlips: maxFlips}
	b, err := NewBase(k, opts...)
	if err != nil {
		return nil, err
	}
	inner.base = b
	return b, nil
}

func (k *LeakageLimiter) validate() error {
	if k.leakage == nil {
		return &ConfigError{Message: "leakage_limiter requires a leakage parameter"}
	}
	if k.limit <= 0 {
		return &ConfigError{Message: "leakage_limiter limit must be positive"}
	}
	if k.maxFlips <= 0 {
		return &ConfigError{Message: "leakage_limiter max_flips must be positive"}
	}
	return k.inner.validate()
}

func (k *LeakageLimiter) kindName() string { return "leakage_limiter" }

func (k *LeakageLimiter) rampToStart(b *Base) error { return k.inner.rampToStart(b) }

func (k *LeakageLimiter) step(b *Base) ([]Sample, bool, error) {
	samples, complete, err := k.inner.step(b)
	if err != nil || complete {
		return samples, complete, err
	}

	leak, err := b.binding.SafeGet(k.leakage)
	if err != nil {
		return samples, false, err
	}
	if absf(leak) <= k.limit {
		return samples, false, nil
	}

	k.flipCount++
	if k.flipCount > k.maxFlips {
		k.tripped = true
		return append(samples, Sample{Break: true}), true, nil
	}
	if err := k.inner.flip(); err != nil {
		return samples, false, nil
	}
	return append(samples, Sample{Break: true}), false, nil
}

func (k *LeakageLimiter) supportsFlip() bool { return true }

func (k *LeakageLimiter) flip() error { return k.inner.flip() }

func (k *LeakageLimiter) totalPoints() *int { return nil }

func (k *LeakageLimiter) attributes() map[string]interface{} {
	attrs := map[string]interface{}{
		"leakage_parameter": instrumentIdentity(k.leakage),
		"leakage_limit":     k.limit,
		"max_flips":         k.maxFlips,
		"flip_count":        k.flipCount,
		"tripped":           k.tripped,
	}
	for key, v := range k.inner.attributes() {
		attrs[key] = v
	}
	return attrs
}

func (k *LeakageLimiter) controlled() []ControlledMeta { return k.inner.controlled() }

func (k *LeakageLimiter) controlledParams() []param.Parameter { return k.inner.controlledParams() }

func init() {
	RegisterKind("leakage_limiter", func(meta *Metadata, station Station) (*Base, error) {
		if len(meta.Controlled) != 1 {
			return nil, &ConfigError{Message: "leakage_limiter metadata must name exactly one controlled parameter"}
		}
		p, err := station.Resolve(meta.Controlled[0].Instrument)
		if err != nil {
			return nil, err
		}
		setter, ok := p.(param.Setter)
		if !ok {
			return nil, &ConfigError{Message: "controlled parameter is not settable"}
		}
		leakageName, _ := meta.Attributes["leakage_parameter"].(string)
		leakage, err := station.Resolve(leakageName)
		if err != nil {
			return nil, err
		}
		limit, _ := meta.Attributes["leakage_limit"].(float64)
		maxFlips := 1
		if v, ok := meta.Attributes["max_flips"].(float64); ok {
			maxFlips = int(v)
		}
		mode := ModeBidirectional
		if v, ok := meta.Attributes["mode"].(string); ok {
			switch v {
			case "one_shot":
				mode = ModeOneShot
			case "continual":
				mode = ModeContinual
			}
		}
		traj := Trajectory{Start: meta.Controlled[0].Start, Stop: meta.Controlled[0].Stop, Step: meta.Controlled[0].Step, Mode: mode}
		return NewLeakageLimiter(setter, traj, leakage, limit, maxFlips)
	})
}
