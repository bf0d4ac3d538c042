package sweep

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/banshee-data/measureit/internal/param"
)

// Metadata is the self-describing JSON record every sweep can emit, per
// spec.md §6. Round-trip: Metadata serialized by one version of the engine
// must be deserializable by the same version without loss.
type Metadata struct {
	Kind       string                 `json:"kind"`
	Module     string                 `json:"module"`
	Attributes map[string]interface{} `json:"attributes"`
	Controlled []ControlledMeta       `json:"controlled,omitempty"`
	Followed   map[string]string      `json:"followed"`
}

// moduleName is stamped into every exported record, analogous to the
// teacher's internal/version package.
const moduleName = "github.com/banshee-data/measureit"

// ExportMetadata serializes the sweep's configuration: kind, attributes
// (delays, direction mode, etc, merged with kind-specific attributes),
// controlled parameters, and followed parameters.
func (b *Base) ExportMetadata() (*Metadata, error) {
	attrs := map[string]interface{}{
		"inter_delay_ms": b.interDelay.Milliseconds(),
		"outer_delay_ms": b.outerDelay.Milliseconds(),
		"ramp_tolerance": b.rampTolerance,
	}
	for k, v := range b.kind.attributes() {
		attrs[k] = v
	}

	followed := make(map[string]string, len(b.followSet.params))
	for _, p := range b.followSet.params {
		followed[p.Name()] = instrumentIdentity(p)
	}

	return &Metadata{
		Kind:       b.kind.kindName(),
		Module:     moduleName,
		Attributes: attrs,
		Controlled: b.kind.controlled(),
		Followed:   followed,
	}, nil
}

// ExportMetadataJSON returns the canonical JSON encoding of ExportMetadata.
func (b *Base) ExportMetadataJSON() ([]byte, error) {
	m, err := b.ExportMetadata()
	if err != nil {
		return nil, err
	}
	return json.Marshal(m)
}

// instrumentIdentity resolves a stable string identity for a parameter,
// used both for metadata export and for later re-resolving it against a
// Station. Labeled parameters may override this; the default is just the
// parameter's own Name(), which is assumed process-unique (mirrors QCoDeS
// convention of "instrument.parameter" naming left to the Parameter
// implementation itself).
func instrumentIdentity(p param.Parameter) string {
	return p.Name()
}

// Station resolves a parameter identity string (as produced by
// instrumentIdentity) back to a live Parameter, for init_from_metadata.
type Station interface {
	Resolve(identity string) (param.Parameter, error)
}

// KindBuilder constructs a Base of one kind from its exported metadata and
// a Station used to resolve parameter identities.
type KindBuilder func(meta *Metadata, station Station) (*Base, error)

var (
	buildersMu sync.Mutex
	builders   = map[string]KindBuilder{}
)

// RegisterKind makes a kind's builder available to InitFromMetadata. Each
// kind file's init() calls this for its own kind name, except magnet.go:
// magnet_coupled has no builder.
func RegisterKind(name string, builder KindBuilder) {
	buildersMu.Lock()
	defer buildersMu.Unlock()
	builders[name] = builder
}

// InitFromMetadata reverses ExportMetadata, resolving parameter identities
// against station.
func InitFromMetadata(data []byte, station Station) (*Base, error) {
	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("parse sweep metadata: %w", err)
	}

	buildersMu.Lock()
	builder, ok := builders[meta.Kind]
	buildersMu.Unlock()
	if !ok {
		return nil, fmt.Errorf("unknown sweep kind %q", meta.Kind)
	}
	return builder(&meta, station)
}
