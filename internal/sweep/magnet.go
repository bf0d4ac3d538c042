package sweep

import (
	"time"

	"github.com/banshee-data/measureit/internal/param"
)

// AtSetpointParameter is implemented by instruments that perform their own
// internal ramp to a written setpoint (superconducting magnet power
// supplies, typically) rather than jumping instantaneously. Set() only
// requests the new target; AtSetpoint reports whether the instrument has
// actually arrived.
type AtSetpointParameter interface {
	param.Setter
	AtSetpoint(target float64) (bool, error)
}

// MagnetCoupled wraps a one-axis sweep over an AtSetpointParameter: instead
// of Base/OneAxis ramping the parameter itself step by step, it writes the
// target once per step and then polls AtSetpoint at pollInterval until the
// instrument reports arrival (or pollTimeout elapses), before sampling the
// follow set. Grounded in the reference station's magnet driver, which owns
// its own ramp rate and exposes a "still ramping" status bit rather than
// accepting externally-stepped setpoints.
type MagnetCoupled struct {
	setter       AtSetpointParameter
	traj         Trajectory
	pollInterval time.Duration
	pollTimeout  time.Duration

	current float64
	started bool
}

// NewMagnetCoupled constructs a Base wrapping a MagnetCoupled kind.
func NewMagnetCoupled(setter AtSetpointParameter, traj Trajectory, pollInterval, pollTimeout time.Duration, opts ...Option) (*Base, error) {
	k := &MagnetCoupled{setter: setter, traj: traj, pollInterval: pollInterval, pollTimeout: pollTimeout}
	return NewBase(k, opts...)
}

func (k *MagnetCoupled) validate() error {
	if k.setter == nil {
		return &ConfigError{Message: "magnet_coupled requires an at-setpoint controlled parameter"}
	}
	if k.pollInterval <= 0 {
		return &ConfigError{Message: "magnet_coupled poll_interval must be positive"}
	}
	return k.traj.Validate()
}

func (k *MagnetCoupled) kindName() string { return "magnet_coupled" }

func (k *MagnetCoupled) rampToStart(b *Base) error {
	return k.waitForSetpoint(b, k.traj.Start)
}

func (k *MagnetCoupled) waitForSetpoint(b *Base, target float64) error {
	if err := b.binding.SafeSet(k.setter, target); err != nil {
		return err
	}
	deadline := b.clock().Add(k.pollTimeout)
	for {
		at, err := k.setter.AtSetpoint(target)
		if err != nil {
			return err
		}
		if at {
			k.current = target
			k.started = true
			return nil
		}
		if b.clock().After(deadline) {
			actual, _ := b.binding.SafeGet(k.setter)
			return &RampConvergenceError{Parameter: k.setter.Name(), Actual: actual, Expected: target, Tolerance: 0}
		}
		if b.interruptibleSleep(k.pollInterval) {
			return nil
		}
	}
}

func (k *MagnetCoupled) step(b *Base) ([]Sample, bool, error) {
	if !k.started {
		if err := k.waitForSetpoint(b, k.traj.Start); err != nil {
			return nil, false, err
		}
	}

	values, err := b.followSet.Read(b.binding)
	if err != nil {
		return nil, false, err
	}
	sample := Sample{Setpoints: []float64{k.current}, Values: values}

	if k.traj.AtEnd(k.current) {
		return []Sample{sample}, true, nil
	}

	next := k.current + k.traj.Step
	if err := k.waitForSetpoint(b, next); err != nil {
		return []Sample{sample}, false, err
	}
	return []Sample{sample}, false, nil
}

func (k *MagnetCoupled) supportsFlip() bool { return false }

func (k *MagnetCoupled) flip() error { return ErrFlipUnsupported }

func (k *MagnetCoupled) totalPoints() *int {
	n := k.traj.Count()
	return &n
}

func (k *MagnetCoupled) attributes() map[string]interface{} {
	return map[string]interface{}{
		"poll_interval_ms": k.pollInterval.Milliseconds(),
		"poll_timeout_ms":  k.pollTimeout.Milliseconds(),
	}
}

func (k *MagnetCoupled) controlled() []ControlledMeta {
	return []ControlledMeta{{Instrument: k.setter.Name(), Start: k.traj.Start, Stop: k.traj.Stop, Step: k.traj.Step}}
}

func (k *MagnetCoupled) controlledParams() []param.Parameter { return []param.Parameter{k.setter} }
