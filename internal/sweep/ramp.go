package sweep

import (
	"math"
	"time"

	"github.com/banshee-data/measureit/internal/param"
)

// rampParam drives a single controlled parameter from its current reading to
// target in steps no larger than maxStep, sleeping delay between writes, and
// checking convergence within tolerance at the end. It is the shared
// implementation behind every kind's rampToStart: one-axis ramps its single
// controlled parameter; two-axis ramps both axes in turn; simultaneous
// multi-axis ramps each axis to its own start.
func rampParam(b *Base, p param.Setter, target, maxStep float64, delay time.Duration, tolerance float64, timeout time.Duration) error {
	if maxStep <= 0 {
		return &ConfigError{Message: "ramp max_step must be positive"}
	}

	deadline := b.clock().Add(timeout)
	for {
		actual, err := b.binding.SafeGet(p)
		if err != nil {
			return err
		}
		if math.Abs(actual-target) <= tolerance {
			return nil
		}
		if b.clock().After(deadline) {
			return &RampConvergenceError{Parameter: p.Name(), Actual: actual, Expected: target, Tolerance: tolerance}
		}

		step := maxStep
		if actual > target {
			step = -maxStep
		}
		next := actual + step
		if (step > 0 && next > target) || (step < 0 && next < target) {
			next = target
		}
		if err := b.binding.SafeSet(p, next); err != nil {
			return err
		}
		if b.sleepInterDelayFor(delay) {
			return &RampConvergenceError{Parameter: p.Name(), Actual: next, Expected: target, Tolerance: tolerance}
		}
	}
}

// sleepInterDelayFor is like interruptibleSleep but named for ramp call
// sites; it reports true if Kill() fired mid-sleep, letting the ramp give up
// promptly instead of finishing a convergence loop nobody will observe.
func (b *Base) sleepInterDelayFor(d time.Duration) (killed bool) {
	return b.interruptibleSleep(d)
}

// rampToleranceFor computes the absolute tolerance from Base's configured
// fractional rampTolerance and the trajectory step, per spec.md §5: "actual
// within tolerance = ramp_tolerance * |step|, or |step|/2, whichever is
// larger".
func (b *Base) rampToleranceFor(step float64) float64 {
	half := math.Abs(step) / 2
	frac := b.rampTolerance * math.Abs(step)
	if frac > half {
		return frac
	}
	return half
}
