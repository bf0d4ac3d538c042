package sweep

import (
	"github.com/banshee-data/measureit/internal/param"
)

// TwoAxis composes an outer Trajectory with an owned inner one-axis sweep.
// Each outer step runs: set the outer parameter, wait outerDelay, run the
// inner sweep to completion, emit a Break-marked sample so a heatmap sink
// can start a new row, then advance the outer setpoint. The inner sweep
// itself runs a forward (data-taking) pass and then, unless backMultiplier
// is 0, a single return pass at a step size scaled by backMultiplier —
// fewer, coarser samples on the non-data direction, not a repeat of the
// forward pass. This is spec.md's "two-axis composed" kind, built from an
// owned inner *OneAxis kind that has no Base of its own — it is driven
// directly by step(), never started as its own goroutine, so the whole
// composition shares one Runner and one ProgressState.
type TwoAxis struct {
	base *Base

	outerSetter param.Setter
	outerTraj   Trajectory

	inner            *OneAxis
	innerForwardTraj Trajectory
	backMultiplier   int

	outerCurrent      float64
	outerStarted      bool
	outerDelayPending bool
	innerReturning    bool

	innerCompleteHooks []func(*OneAxis)
}

// OnInnerComplete registers a hook invoked (on the Runner goroutine) once
// per outer step, after the inner axis's forward pass and its return pass
// (if any) have both completed, before TwoAxis advances to the next outer
// setpoint. This is for caller extensions such as auto-ranging. Mirrors
// original_source/sweep.py's Sweep2D `update_rule`, which defaults to a
// no-op.
func (k *TwoAxis) OnInnerComplete(fn func(*OneAxis)) {
	k.innerCompleteHooks = append(k.innerCompleteHooks, fn)
}

// NewTwoAxis constructs a Base wrapping a TwoAxis kind. innerTraj describes
// the fast (inner) axis; backMultiplier scales the inner axis's return-pass
// step size (0 means forward-only, no return pass at all; 1 means a return
// pass at the same step size as the forward pass).
func NewTwoAxis(outerSetter param.Setter, outerTraj Trajectory, innerSetter param.Setter, innerTraj Trajectory, backMultiplier int, opts ...Option) (*Base, error) {
	// The inner axis is always driven as a one-shot pass: TwoAxis itself
	// owns reversal (via back_multiplier), not OneAxis's own bidirectional
	// handling, so two independent flip mechanisms can't fight each other.
	innerTraj.Mode = ModeOneShot
	inner := &OneAxis{setter: innerSetter, traj: innerTraj, direction: 1}

	k := &TwoAxis{outerSetter: outerSetter, outerTraj: outerTraj, backMultiplier: backMultiplier, inner: inner, innerForwardTraj: innerTraj}

	b, err := NewBase(k, opts...)
	if err != nil {
		return nil, err
	}
	k.base = b
	return b, nil
}

func (k *TwoAxis) validate() error {
	if k.outerSetter == nil {
		return &ConfigError{Message: "two_axis requires an outer controlled parameter"}
	}
	if err := k.outerTraj.Validate(); err != nil {
		return err
	}
	if k.backMultiplier < 0 {
		return &ConfigError{Message: "back_multiplier must be >= 0"}
	}
	if k.inner == nil {
		return &ConfigError{Message: "two_axis requires an inner controlled parameter"}
	}
	return k.inner.validate()
}

func (k *TwoAxis) kindName() string { return "two_axis" }

func (k *TwoAxis) rampToStart(b *Base) error {
	tol := b.rampToleranceFor(k.outerTraj.Step)
	if err := rampParam(b, k.outerSetter, k.outerTraj.Start, absf(k.outerTraj.Step), b.interDelay, tol, b.rampTimeout); err != nil {
		return err
	}
	k.outerCurrent = k.outerTraj.Start
	k.outerStarted = true
	k.outerDelayPending = true
	if err := k.inner.rampToStart(b); err != nil {
		return err
	}
	return nil
}

func (k *TwoAxis) step(b *Base) ([]Sample, bool, error) {
	if !k.outerStarted {
		if err := b.binding.SafeSet(k.outerSetter, k.outerTraj.Start); err != nil {
			return nil, false, err
		}
		k.outerCurrent = k.outerTraj.Start
		k.outerStarted = true
		k.outerDelayPending = true
	}

	if k.outerDelayPending {
		k.outerDelayPending = false
		if b.interruptibleSleep(b.outerDelay) {
			return nil, false, nil
		}
	}

	innerSamples, innerComplete, err := k.inner.step(b)
	if err != nil {
		return nil, false, err
	}

	samples := make([]Sample, 0, len(innerSamples))
	for _, s := range innerSamples {
		if s.Break {
			samples = append(samples, s)
			continue
		}
		samples = append(samples, Sample{
			Setpoints: append([]float64{k.outerCurrent}, s.Setpoints...),
			Values:    s.Values,
		})
	}

	if !innerComplete {
		return samples, false, nil
	}

	if !k.innerReturning && k.backMultiplier > 0 {
		// Forward (data-taking) pass finished; turn around for the return
		// pass at the back_multiplier-scaled step size.
		k.innerReturning = true
		back := k.innerForwardTraj.Flipped()
		back.Step *= float64(k.backMultiplier)
		k.inner.traj = back
		k.inner.started = false
		return samples, false, nil
	}

	// Either the return pass also just finished, or backMultiplier is 0 and
	// there is no return pass at all: the inner axis is done for this outer
	// step.
	for _, fn := range k.innerCompleteHooks {
		fn(k.inner)
	}
	k.innerReturning = false
	k.inner.traj = k.innerForwardTraj
	k.inner.started = false

	atEnd := k.outerTraj.AtEnd(k.outerCurrent)
	if atEnd {
		samples = append(samples, Sample{Break: true})
		return samples, true, nil
	}

	next := k.outerCurrent + k.outerTraj.Step
	if err := b.binding.SafeSet(k.outerSetter, next); err != nil {
		return samples, false, err
	}
	k.outerCurrent = next
	k.outerDelayPending = true
	samples = append(samples, Sample{Break: true})
	return samples, false, nil
}

func (k *TwoAxis) supportsFlip() bool { return false }

func (k *TwoAxis) flip() error { return ErrFlipUnsupported }

func (k *TwoAxis) totalPoints() *int {
	outerN := k.outerTraj.Count()
	innerN := k.innerForwardTraj.Count()
	if k.backMultiplier > 0 {
		back := k.innerForwardTraj.Flipped()
		back.Step *= float64(k.backMultiplier)
		innerN += back.Count()
	}
	total := outerN * innerN
	return &total
}

func (k *TwoAxis) attributes() map[string]interface{} {
	return map[string]interface{}{
		"outer_start":     k.outerTraj.Start,
		"outer_stop":      k.outerTraj.Stop,
		"outer_step":      k.outerTraj.Step,
		"back_multiplier": k.backMultiplier,
	}
}

func (k *TwoAxis) controlled() []ControlledMeta {
	return []ControlledMeta{
		{Instrument: k.outerSetter.Name(), Start: k.outerTraj.Start, Stop: k.outerTraj.Stop, Step: k.outerTraj.Step},
		{Instrument: k.inner.setter.Name(), Start: k.inner.traj.Start, Stop: k.inner.traj.Stop, Step: k.inner.traj.Step},
	}
}

func (k *TwoAxis) controlledParams() []param.Parameter {
	return []param.Parameter{k.outerSetter, k.inner.setter}
}

func init() {
	RegisterKind("two_axis", func(meta *Metadata, station Station) (*Base, error) {
		if len(meta.Controlled) != 2 {
			return nil, &ConfigError{Message: "two_axis metadata must name exactly two controlled parameters"}
		}
		outerP, err := station.Resolve(meta.Controlled[0].Instrument)
		if err != nil {
			return nil, err
		}
		innerP, err := station.Resolve(meta.Controlled[1].Instrument)
		if err != nil {
			return nil, err
		}
		outerSetter, ok := outerP.(param.Setter)
		if !ok {
			return nil, &ConfigError{Message: "outer controlled parameter is not settable"}
		}
		innerSetter, ok := innerP.(param.Setter)
		if !ok {
			return nil, &ConfigError{Message: "inner controlled parameter is not settable"}
		}
		backMultiplier := 0
		if v, ok := meta.Attributes["back_multiplier"].(float64); ok {
			backMultiplier = int(v)
		}
		outerTraj := Trajectory{Start: meta.Controlled[0].Start, Stop: meta.Controlled[0].Stop, Step: meta.Controlled[0].Step, Mode: ModeOneShot}
		innerTraj := Trajectory{Start: meta.Controlled[1].Start, Stop: meta.Controlled[1].Stop, Step: meta.Controlled[1].Step, Mode: ModeOneShot}
		return NewTwoAxis(outerSetter, outerTraj, innerSetter, innerTraj, backMultiplier)
	})
}
