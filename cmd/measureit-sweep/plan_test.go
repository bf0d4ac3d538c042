package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/measureit/internal/sweep"
)

const samplePlan = `
persistence:
  path: /tmp/measureit/gate_sweep.db
  experiment: gate_characterization
  sample: device_12

entries:
  - sweep:
      kind: one_axis
      ramp_to_start: true
      inter_delay: 10ms
      controlled:
        - name: gate_voltage
          unit: V
          port: /dev/ttyUSB0
          baud_rate: 19200
          query_cmd: "MEAS:VOLT?"
          set_cmd: "VOLT %g"
      trajectory:
        - start: 0
          stop: 1
          step: 0.1
          mode: bidirectional
      follow:
        - name: drain_current
          unit: A
          port: /dev/ttyUSB1
          query_cmd: "MEAS:CURR?"
  - context_switch:
      path: /tmp/measureit/gate_sweep_run2.db
      experiment: gate_characterization
      sample: device_13
`

func TestLoadPlan_ParsesYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plan.yaml")
	require.NoError(t, os.WriteFile(path, []byte(samplePlan), 0o644))

	plan, err := LoadPlan(path)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/measureit/gate_sweep.db", plan.Persistence.Path)
	assert.Equal(t, "gate_characterization", plan.Persistence.Experiment)
	require.Len(t, plan.Entries, 2)

	sw := plan.Entries[0].Sweep
	require.NotNil(t, sw)
	assert.Equal(t, "one_axis", sw.Kind)
	assert.True(t, sw.RampToStart)
	require.Len(t, sw.Controlled, 1)
	assert.Equal(t, "gate_voltage", sw.Controlled[0].Name)
	require.Len(t, sw.Trajectory, 1)
	assert.Equal(t, "bidirectional", sw.Trajectory[0].Mode)
	require.Len(t, sw.Follow, 1)
	assert.Equal(t, "drain_current", sw.Follow[0].Name)

	cs := plan.Entries[1].ContextSwitch
	require.NotNil(t, cs)
	assert.Equal(t, "device_13", cs.Sample)
}

func TestTrajectorySpec_Trajectory(t *testing.T) {
	cases := []struct {
		mode string
		want sweep.Mode
	}{
		{"", sweep.ModeOneShot},
		{"one_shot", sweep.ModeOneShot},
		{"bidirectional", sweep.ModeBidirectional},
		{"continual", sweep.ModeContinual},
	}
	for _, c := range cases {
		t.Run(c.mode, func(t *testing.T) {
			ts := TrajectorySpec{Start: 0, Stop: 1, Step: 0.5, Mode: c.mode}
			traj := ts.trajectory()
			assert.Equal(t, c.want, traj.Mode)
			assert.Equal(t, 0.0, traj.Start)
			assert.Equal(t, 1.0, traj.Stop)
			assert.Equal(t, 0.5, traj.Step)
		})
	}
}

func TestBuild_RejectsUnknownKind(t *testing.T) {
	_, err := Build(&SweepSpec{Kind: "nonexistent"})
	require.Error(t, err)
}

func TestBuild_OneAxisRequiresExactlyOneControlledAndTrajectory(t *testing.T) {
	_, err := Build(&SweepSpec{Kind: "one_axis"})
	require.Error(t, err)
}

func TestBuild_TwoAxisRequiresTwoControlledAndTrajectories(t *testing.T) {
	_, err := Build(&SweepSpec{
		Kind:       "two_axis",
		Controlled: []InstrumentSpec{{Name: "a"}},
		Trajectory: []TrajectorySpec{{Stop: 1, Step: 1}},
	})
	require.Error(t, err)
}

func TestBuild_SimultaneousRequiresMatchingCounts(t *testing.T) {
	_, err := Build(&SweepSpec{
		Kind:       "simultaneous",
		Controlled: []InstrumentSpec{{Name: "a"}, {Name: "b"}},
		Trajectory: []TrajectorySpec{{Stop: 1, Step: 1}},
	})
	require.Error(t, err)
}

func TestBuild_LeakageLimiterRequiresLeakageInstrument(t *testing.T) {
	_, err := Build(&SweepSpec{
		Kind:       "leakage_limiter",
		Controlled: []InstrumentSpec{{Name: "a"}},
		Trajectory: []TrajectorySpec{{Stop: 1, Step: 1}},
	})
	require.Error(t, err)
}

func TestBuild_ListeningRequiresExactlyOneObserved(t *testing.T) {
	_, err := Build(&SweepSpec{Kind: "listening"})
	require.Error(t, err)
}

func TestBuild_MagnetCoupledRequiresControlledAndTrajectory(t *testing.T) {
	_, err := Build(&SweepSpec{Kind: "magnet_coupled"})
	require.Error(t, err)
}

func TestBuild_TimeOnlyNeedsNoInstruments(t *testing.T) {
	b, err := Build(&SweepSpec{Kind: "time_only", MaxTime: 5 * time.Second})
	require.NoError(t, err)
	assert.Equal(t, sweep.StateReady, b.State())
}
