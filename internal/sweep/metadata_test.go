package sweep

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/measureit/internal/param"
)

// fakeStation resolves parameter identities against a fixed in-memory set,
// standing in for a real instrument rack during InitFromMetadata.
type fakeStation struct {
	params map[string]*fakeParam
}

func (s *fakeStation) Resolve(identity string) (param.Parameter, error) {
	p, ok := s.params[identity]
	if !ok {
		return nil, &ConfigError{Message: "unknown instrument " + identity}
	}
	return p, nil
}

func TestMetadata_OneAxisRoundTrip(t *testing.T) {
	setter := newFakeParam("gate_voltage", 0)
	b, err := NewOneAxis(setter, Trajectory{Start: 0, Stop: 1, Step: 0.25, Mode: ModeBidirectional})
	require.NoError(t, err)

	data, err := b.ExportMetadataJSON()
	require.NoError(t, err)

	station := &fakeStation{params: map[string]*fakeParam{"gate_voltage": setter}}
	rebuilt, err := InitFromMetadata(data, station)
	require.NoError(t, err)

	original, err := b.ExportMetadata()
	require.NoError(t, err)
	roundTripped, err := rebuilt.ExportMetadata()
	require.NoError(t, err)

	if diff := cmp.Diff(original.Kind, roundTripped.Kind); diff != "" {
		t.Errorf("kind mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(original.Module, roundTripped.Module); diff != "" {
		t.Errorf("module mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(original.Controlled, roundTripped.Controlled); diff != "" {
		t.Errorf("controlled metadata did not round-trip (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(original.Attributes["mode"], roundTripped.Attributes["mode"]); diff != "" {
		t.Errorf("trajectory mode did not round-trip (-want +got):\n%s", diff)
	}
}

func TestMetadata_InitFromMetadataRejectsUnknownKind(t *testing.T) {
	_, err := InitFromMetadata([]byte(`{"kind":"nonexistent","module":"x","attributes":{},"followed":{}}`), &fakeStation{})
	require.Error(t, err)
}

func TestMetadata_InitFromMetadataRejectsUnresolvableInstrument(t *testing.T) {
	data := []byte(`{"kind":"one_axis","module":"x","attributes":{"mode":"one_shot"},"controlled":[{"instrument":"missing","start":0,"stop":1,"step":0.5}],"followed":{}}`)
	_, err := InitFromMetadata(data, &fakeStation{params: map[string]*fakeParam{}})
	require.Error(t, err)
}
