package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/banshee-data/measureit/internal/instrument"
	"github.com/banshee-data/measureit/internal/param"
	"github.com/banshee-data/measureit/internal/sweep"
)

// Plan is the YAML sweep-definition file format, analogous to
// Mulder90-maestro's workflow/steps document: one or more named sweep
// entries, plus where to persist and switch to.
type Plan struct {
	Persistence PersistenceTarget `yaml:"persistence"`
	Entries     []PlanEntry       `yaml:"entries"`
}

// PersistenceTarget names the initial dataset file and experiment/sample
// labels a Plan's sweeps are recorded under.
type PersistenceTarget struct {
	Path       string `yaml:"path"`
	Experiment string `yaml:"experiment"`
	Sample     string `yaml:"sample"`
}

// PlanEntry is one queued unit of work: exactly one of Sweep or
// ContextSwitch is set.
type PlanEntry struct {
	Sweep         *SweepSpec         `yaml:"sweep,omitempty"`
	ContextSwitch *PersistenceTarget `yaml:"context_switch,omitempty"`
}

// InstrumentSpec describes one serial-backed parameter: its wire protocol
// and, for a controllable one, its set command. Trajectories are given
// separately in SweepSpec.Trajectory.
type InstrumentSpec struct {
	Name       string  `yaml:"name"`
	Unit       string  `yaml:"unit"`
	Port       string  `yaml:"port"`
	BaudRate   int     `yaml:"baud_rate"`
	QueryCmd   string  `yaml:"query_cmd"`
	SetCmd     string  `yaml:"set_cmd,omitempty"`
	ArrivedCmd string  `yaml:"arrived_cmd,omitempty"`
	Tolerance  float64 `yaml:"tolerance,omitempty"`
}

// TrajectorySpec is the YAML spelling of sweep.Trajectory.
type TrajectorySpec struct {
	Start float64 `yaml:"start"`
	Stop  float64 `yaml:"stop"`
	Step  float64 `yaml:"step"`
	Mode  string  `yaml:"mode,omitempty"` // one_shot (default), bidirectional, continual
}

func (t TrajectorySpec) trajectory() sweep.Trajectory {
	mode := sweep.ModeOneShot
	switch t.Mode {
	case "bidirectional":
		mode = sweep.ModeBidirectional
	case "continual":
		mode = sweep.ModeContinual
	}
	return sweep.Trajectory{Start: t.Start, Stop: t.Stop, Step: t.Step, Mode: mode}
}

// SweepSpec names one sweep's kind and the instruments/trajectories it
// needs. Only the fields relevant to Kind are read.
type SweepSpec struct {
	Kind        string        `yaml:"kind"`
	RampToStart bool          `yaml:"ramp_to_start"`
	InterDelay  time.Duration `yaml:"inter_delay,omitempty"`
	OuterDelay  time.Duration `yaml:"outer_delay,omitempty"`

	Controlled []InstrumentSpec `yaml:"controlled,omitempty"`
	Trajectory []TrajectorySpec `yaml:"trajectory,omitempty"`
	Follow     []InstrumentSpec `yaml:"follow,omitempty"`

	// leakage_limiter
	Leakage  *InstrumentSpec `yaml:"leakage,omitempty"`
	Limit    float64         `yaml:"limit,omitempty"`
	MaxFlips int             `yaml:"max_flips,omitempty"`

	// listening
	Threshold float64 `yaml:"threshold,omitempty"`

	// magnet_coupled
	PollInterval time.Duration `yaml:"poll_interval,omitempty"`
	PollTimeout  time.Duration `yaml:"poll_timeout,omitempty"`

	// time_only
	MaxTime time.Duration `yaml:"max_time,omitempty"`

	// two_axis
	BackMultiplier int `yaml:"back_multiplier,omitempty"`
}

// LoadPlan reads and parses path.
func LoadPlan(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading plan file: %w", err)
	}
	var p Plan
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parsing plan file: %w", err)
	}
	return &p, nil
}

func openInstrument(spec InstrumentSpec) (*instrument.SerialParameter, error) {
	opts := instrument.DefaultPortOptions()
	if spec.BaudRate > 0 {
		opts.BaudRate = spec.BaudRate
	}
	return instrument.OpenSerialParameter(spec.Port, opts, spec.Name, spec.Unit, spec.QueryCmd, spec.SetCmd)
}

func openAtSetpointInstrument(spec InstrumentSpec) (*instrument.SerialAtSetpointParameter, error) {
	opts := instrument.DefaultPortOptions()
	if spec.BaudRate > 0 {
		opts.BaudRate = spec.BaudRate
	}
	return instrument.OpenSerialAtSetpointParameter(spec.Port, opts, spec.Name, spec.Unit, spec.QueryCmd, spec.SetCmd, spec.ArrivedCmd, spec.Tolerance)
}

// buildOptions assembles the sweep.Option list common to every kind.
func buildOptions(s *SweepSpec) []sweep.Option {
	var opts []sweep.Option
	if s.InterDelay > 0 {
		opts = append(opts, sweep.WithInterDelay(s.InterDelay))
	}
	if s.OuterDelay > 0 {
		opts = append(opts, sweep.WithOuterDelay(s.OuterDelay))
	}
	return opts
}

// Build constructs the *sweep.Base described by s, attaching follow
// parameters once the kind-specific Base exists.
func Build(s *SweepSpec) (*sweep.Base, error) {
	opts := buildOptions(s)

	var b *sweep.Base
	var err error

	switch s.Kind {
	case "one_axis":
		if len(s.Controlled) != 1 || len(s.Trajectory) != 1 {
			return nil, fmt.Errorf("one_axis requires exactly one controlled instrument and trajectory")
		}
		setter, e := openInstrument(s.Controlled[0])
		if e != nil {
			return nil, e
		}
		b, err = sweep.NewOneAxis(setter, s.Trajectory[0].trajectory(), opts...)

	case "two_axis":
		if len(s.Controlled) != 2 || len(s.Trajectory) != 2 {
			return nil, fmt.Errorf("two_axis requires exactly two controlled instruments and trajectories (outer, inner)")
		}
		outer, e := openInstrument(s.Controlled[0])
		if e != nil {
			return nil, e
		}
		inner, e := openInstrument(s.Controlled[1])
		if e != nil {
			return nil, e
		}
		b, err = sweep.NewTwoAxis(outer, s.Trajectory[0].trajectory(), inner, s.Trajectory[1].trajectory(), s.BackMultiplier, opts...)

	case "simultaneous":
		if len(s.Controlled) == 0 || len(s.Controlled) != len(s.Trajectory) {
			return nil, fmt.Errorf("simultaneous requires one trajectory per controlled instrument")
		}
		setters := make([]param.Setter, len(s.Controlled))
		trajs := make([]sweep.Trajectory, len(s.Trajectory))
		for i, c := range s.Controlled {
			p, e := openInstrument(c)
			if e != nil {
				return nil, e
			}
			setters[i] = p
			trajs[i] = s.Trajectory[i].trajectory()
		}
		b, err = sweep.NewSimultaneous(setters, trajs, opts...)

	case "time_only":
		b, err = sweep.NewTimeOnly(s.MaxTime, opts...)

	case "listening":
		if len(s.Controlled) != 1 {
			return nil, fmt.Errorf("listening requires exactly one observed instrument")
		}
		observed, e := openInstrument(s.Controlled[0])
		if e != nil {
			return nil, e
		}
		b, err = sweep.NewListening(observed, s.Threshold, opts...)

	case "leakage_limiter":
		if len(s.Controlled) != 1 || len(s.Trajectory) != 1 || s.Leakage == nil {
			return nil, fmt.Errorf("leakage_limiter requires one controlled instrument, one trajectory, and a leakage instrument")
		}
		setter, e := openInstrument(s.Controlled[0])
		if e != nil {
			return nil, e
		}
		leakage, e := openInstrument(*s.Leakage)
		if e != nil {
			return nil, e
		}
		b, err = sweep.NewLeakageLimiter(setter, s.Trajectory[0].trajectory(), leakage, s.Limit, s.MaxFlips, opts...)

	case "magnet_coupled":
		if len(s.Controlled) != 1 || len(s.Trajectory) != 1 {
			return nil, fmt.Errorf("magnet_coupled requires exactly one controlled instrument and trajectory")
		}
		setter, e := openAtSetpointInstrument(s.Controlled[0])
		if e != nil {
			return nil, e
		}
		b, err = sweep.NewMagnetCoupled(setter, s.Trajectory[0].trajectory(), s.PollInterval, s.PollTimeout, opts...)

	default:
		return nil, fmt.Errorf("unknown sweep kind %q", s.Kind)
	}

	if err != nil {
		return nil, err
	}

	for _, f := range s.Follow {
		p, e := openInstrument(f)
		if e != nil {
			return nil, e
		}
		if e := b.FollowParam(p); e != nil {
			return nil, e
		}
	}

	return b, nil
}
