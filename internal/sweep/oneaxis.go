package sweep

import (
	"github.com/banshee-data/measureit/internal/param"
)

// OneAxis steps a single controlled parameter along a Trajectory, sampling
// the follow set after each write and settling by interDelay between steps.
// Mode governs what happens at the trajectory's far end: one-shot completes,
// bidirectional flips and continues, continual ramps back to start and
// continues.
type OneAxis struct {
	base *Base

	setter param.Setter
	traj   Trajectory

	maxStep float64 // ramp-to-start step cap; defaults to |traj.Step| if zero

	current   float64
	started   bool
	direction int // +1 along traj.Start->traj.Stop, -1 reversed
}

// NewOneAxis constructs a Base wrapping a OneAxis kind that drives setter
// along traj.
func NewOneAxis(setter param.Setter, traj Trajectory, opts ...Option) (*Base, error) {
	k := &OneAxis{setter: setter, traj: traj, direction: 1}
	b, err := NewBase(k, opts...)
	if err != nil {
		return nil, err
	}
	k.base = b
	return b, nil
}

func (k *OneAxis) validate() error {
	if k.setter == nil {
		return &ConfigError{Message: "one_axis requires a controlled parameter"}
	}
	return k.traj.Validate()
}

func (k *OneAxis) kindName() string { return "one_axis" }

// reconfigure implements Base.Reconfigure: replaces the trajectory and
// resets the stepping cursor, as if freshly constructed.
func (k *OneAxis) reconfigure(traj Trajectory) error {
	if err := traj.Validate(); err != nil {
		return err
	}
	k.traj = traj
	k.current = 0
	k.started = false
	k.direction = 1
	return nil
}

func (k *OneAxis) rampStep() float64 {
	if k.maxStep != 0 {
		return k.maxStep
	}
	return k.traj.Step
}

func (k *OneAxis) rampToStart(b *Base) error {
	tol := b.rampToleranceFor(k.traj.Step)
	if err := rampParam(b, k.setter, k.traj.Start, absf(k.rampStep()), b.interDelay, tol, b.rampTimeout); err != nil {
		return err
	}
	k.current = k.traj.Start
	k.started = true
	return nil
}

func (k *OneAxis) step(b *Base) ([]Sample, bool, error) {
	if !k.started {
		k.current = k.traj.Start
		k.started = true
	}

	if err := b.binding.SafeSet(k.setter, k.current); err != nil {
		return nil, false, err
	}
	if b.sleepInterDelay() {
		return nil, false, nil
	}

	values, err := b.followSet.Read(b.binding)
	if err != nil {
		return nil, false, err
	}
	sample := Sample{Setpoints: []float64{k.current}, Values: values}

	atEnd := k.traj.AtEnd(k.current)
	next := k.current + k.traj.Step

	if !atEnd {
		k.current = next
		return []Sample{sample}, false, nil
	}

	switch k.traj.Mode {
	case ModeOneShot:
		return []Sample{sample}, true, nil
	case ModeBidirectional:
		k.traj = k.traj.Flipped()
		k.direction = -k.direction
		k.base.progress.setDirection(k.direction)
		k.current = k.traj.Start
		return []Sample{sample, {Break: true}}, false, nil
	case ModeContinual:
		if err := rampParam(b, k.setter, k.traj.Start, absf(k.rampStep()), b.interDelay, b.rampToleranceFor(k.traj.Step), b.rampTimeout); err != nil {
			return []Sample{sample}, false, err
		}
		k.current = k.traj.Start
		return []Sample{sample, {Break: true}}, false, nil
	default:
		return []Sample{sample}, true, nil
	}
}

func (k *OneAxis) supportsFlip() bool { return k.traj.Mode != ModeOneShot }

func (k *OneAxis) flip() error {
	if !k.supportsFlip() {
		return ErrFlipUnsupported
	}
	k.traj = k.traj.Flipped()
	k.direction = -k.direction
	k.base.progress.setDirection(k.direction)
	k.current = k.traj.Start
	return nil
}

func (k *OneAxis) totalPoints() *int {
	if k.traj.Mode != ModeOneShot {
		return nil
	}
	n := k.traj.Count()
	return &n
}

func (k *OneAxis) attributes() map[string]interface{} {
	return map[string]interface{}{
		"start": k.traj.Start,
		"stop":  k.traj.Stop,
		"step":  k.traj.Step,
		"mode":  k.traj.Mode.String(),
	}
}

func (k *OneAxis) controlled() []ControlledMeta {
	return []ControlledMeta{{Instrument: k.setter.Name(), Start: k.traj.Start, Stop: k.traj.Stop, Step: k.traj.Step}}
}

func (k *OneAxis) controlledParams() []param.Parameter { return []param.Parameter{k.setter} }

func absf(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func init() {
	RegisterKind("one_axis", func(meta *Metadata, station Station) (*Base, error) {
		if len(meta.Controlled) != 1 {
			return nil, &ConfigError{Message: "one_axis metadata must name exactly one controlled parameter"}
		}
		p, err := station.Resolve(meta.Controlled[0].Instrument)
		if err != nil {
			return nil, err
		}
		setter, ok := p.(param.Setter)
		if !ok {
			return nil, &ConfigError{Message: "controlled parameter " + meta.Controlled[0].Instrument + " is not settable"}
		}
		mode := ModeOneShot
		if v, ok := meta.Attributes["mode"].(string); ok {
			switch v {
			case "bidirectional":
				mode = ModeBidirectional
			case "continual":
				mode = ModeContinual
			}
		}
		traj := Trajectory{
			Start: meta.Controlled[0].Start,
			Stop:  meta.Controlled[0].Stop,
			Step:  meta.Controlled[0].Step,
			Mode:  mode,
		}
		return NewOneAxis(setter, traj)
	})
}
