package sweep

import (
	"github.com/banshee-data/measureit/internal/param"
)

// Simultaneous drives N controlled parameters together, one trajectory per
// parameter, all stepped in lockstep. Every trajectory must have the same
// Count() — spec.md's "equal-count validation" — since there is exactly one
// shared index into all N axes. All trajectories must also share one Mode:
// on reaching the shared endpoint, a bidirectional/continual run flips (or
// re-ramps) every axis together, mirroring OneAxis.step but applied to all
// N trajectories at once.
type Simultaneous struct {
	base *Base

	setters []param.Setter
	trajs   []Trajectory

	index     int
	started   bool
	direction int // +1 forward, -1 after a flip; alternates each bidirectional pass
}

// NewSimultaneous constructs a Base wrapping a Simultaneous kind. len(setters)
// must equal len(trajs), and every trajectory must produce the same number
// of points.
func NewSimultaneous(setters []param.Setter, trajs []Trajectory, opts ...Option) (*Base, error) {
	k := &Simultaneous{setters: setters, trajs: trajs, direction: 1}
	b, err := NewBase(k, opts...)
	if err != nil {
		return nil, err
	}
	k.base = b
	return b, nil
}

func (k *Simultaneous) validate() error {
	if len(k.setters) == 0 {
		return &ConfigError{Message: "simultaneous requires at least one controlled parameter"}
	}
	if len(k.setters) != len(k.trajs) {
		return &ConfigError{Message: "simultaneous requires one trajectory per controlled parameter"}
	}
	count := k.trajs[0].Count()
	mode := k.trajs[0].Mode
	for _, t := range k.trajs {
		if err := t.Validate(); err != nil {
			return err
		}
		if t.Count() != count {
			return &ConfigError{Message: "simultaneous trajectories must all have the same point count"}
		}
		if t.Mode != mode {
			return &ConfigError{Message: "simultaneous trajectories must all share the same mode"}
		}
	}
	return nil
}

func (k *Simultaneous) kindName() string { return "simultaneous" }

func (k *Simultaneous) rampToStart(b *Base) error {
	for i, setter := range k.setters {
		traj := k.trajs[i]
		tol := b.rampToleranceFor(traj.Step)
		if err := rampParam(b, setter, traj.Start, absf(traj.Step), b.interDelay, tol, b.rampTimeout); err != nil {
			return err
		}
	}
	k.index = 0
	k.started = true
	return nil
}

func (k *Simultaneous) setpointAt(i int) []float64 {
	sp := make([]float64, len(k.trajs))
	for j, t := range k.trajs {
		sp[j] = t.Start + float64(i)*t.Step
	}
	return sp
}

func (k *Simultaneous) step(b *Base) ([]Sample, bool, error) {
	if !k.started {
		k.started = true
	}

	setpoints := k.setpointAt(k.index)
	for i, setter := range k.setters {
		if err := b.binding.SafeSet(setter, setpoints[i]); err != nil {
			return nil, false, err
		}
	}
	if b.sleepInterDelay() {
		return nil, false, nil
	}

	values, err := b.followSet.Read(b.binding)
	if err != nil {
		return nil, false, err
	}
	sample := Sample{Setpoints: setpoints, Values: values}

	atEnd := k.index >= k.trajs[0].Count()-1
	if !atEnd {
		k.index++
		return []Sample{sample}, false, nil
	}

	switch k.trajs[0].Mode {
	case ModeOneShot:
		return []Sample{sample}, true, nil
	case ModeBidirectional:
		for i, t := range k.trajs {
			k.trajs[i] = t.Flipped()
		}
		k.direction = -k.direction
		k.base.progress.setDirection(k.direction)
		k.index = 0
		return []Sample{sample, {Break: true}}, false, nil
	case ModeContinual:
		for i, setter := range k.setters {
			t := k.trajs[i]
			tol := b.rampToleranceFor(t.Step)
			if err := rampParam(b, setter, t.Start, absf(t.Step), b.interDelay, tol, b.rampTimeout); err != nil {
				return []Sample{sample}, false, err
			}
		}
		k.index = 0
		return []Sample{sample, {Break: true}}, false, nil
	default:
		return []Sample{sample}, true, nil
	}
}

func (k *Simultaneous) supportsFlip() bool { return k.trajs[0].Mode != ModeOneShot }

func (k *Simultaneous) flip() error {
	if !k.supportsFlip() {
		return ErrFlipUnsupported
	}
	for i, t := range k.trajs {
		k.trajs[i] = t.Flipped()
	}
	k.direction = -k.direction
	k.base.progress.setDirection(k.direction)
	k.index = 0
	return nil
}

func (k *Simultaneous) totalPoints() *int {
	if k.trajs[0].Mode != ModeOneShot {
		return nil
	}
	n := k.trajs[0].Count()
	return &n
}

func (k *Simultaneous) attributes() map[string]interface{} {
	return map[string]interface{}{"axis_count": len(k.setters), "mode": k.trajs[0].Mode.String()}
}

func (k *Simultaneous) controlled() []ControlledMeta {
	out := make([]ControlledMeta, len(k.setters))
	for i, s := range k.setters {
		out[i] = ControlledMeta{Instrument: s.Name(), Start: k.trajs[i].Start, Stop: k.trajs[i].Stop, Step: k.trajs[i].Step}
	}
	return out
}

func (k *Simultaneous) controlledParams() []param.Parameter {
	out := make([]param.Parameter, len(k.setters))
	for i, s := range k.setters {
		out[i] = s
	}
	return out
}

func init() {
	RegisterKind("simultaneous", func(meta *Metadata, station Station) (*Base, error) {
		if len(meta.Controlled) == 0 {
			return nil, &ConfigError{Message: "simultaneous metadata must name at least one controlled parameter"}
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

		setters := make([]param.Setter, len(meta.Controlled))
		trajs := make([]Trajectory, len(meta.Controlled))
		for i, c := range meta.Controlled {
			p, err := station.Resolve(c.Instrument)
			if err != nil {
				return nil, err
			}
			setter, ok := p.(param.Setter)
			if !ok {
				return nil, &ConfigError{Message: "controlled parameter " + c.Instrument + " is not settable"}
			}
			setters[i] = setter
			trajs[i] = Trajectory{Start: c.Start, Stop: c.Stop, Step: c.Step, Mode: mode}
		}
		return NewSimultaneous(setters, trajs)
	})
}
