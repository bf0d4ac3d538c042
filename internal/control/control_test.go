package control

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/banshee-data/measureit/internal/persistence"
	"github.com/banshee-data/measureit/internal/queue"
	"github.com/banshee-data/measureit/internal/registry"
)

type fakeHandle struct{ id string }

func (f *fakeHandle) ID() string                           { return f.id }
func (f *fakeHandle) RelatedTo(other registry.Handle) bool { return false }
func (f *fakeHandle) Kill()                                {}

func checkStatus(t *testing.T, s *Server, service string) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	resp, err := s.health.Check(context.Background(), &healthpb.HealthCheckRequest{Service: service})
	require.NoError(t, err)
	return resp.Status
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "localhost:50052", cfg.ListenAddr)
	assert.Equal(t, time.Second, cfg.PollInterval)
}

func TestNew_FillsInMissingPollInterval(t *testing.T) {
	s := New(Config{ListenAddr: "localhost:0"})
	assert.Equal(t, time.Second, s.cfg.PollInterval)
}

func TestRefresh_ReflectsRegistryOccupancy(t *testing.T) {
	registry.Default().Reset()
	defer registry.Default().Reset()

	s := New(DefaultConfig())
	s.refresh()
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, checkStatus(t, s, registryService))

	h := &fakeHandle{id: "sweep-1"}
	require.NoError(t, registry.Default().Start(h))
	s.refresh()
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, checkStatus(t, s, registryService))

	registry.Default().Remove(h)
	s.refresh()
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, checkStatus(t, s, registryService))
}

func TestRefresh_ReflectsQueueRunning(t *testing.T) {
	s := New(DefaultConfig())

	q := queue.New()
	started := make(chan struct{})
	proceed := make(chan struct{})
	q.Append(queue.NewCallableEntry(func() error {
		close(started)
		<-proceed
		return nil
	}))
	require.NoError(t, q.Start())
	s.WatchQueue(q)

	<-started
	s.refresh()
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, checkStatus(t, s, queueService))

	close(proceed)
	q.Wait()
	s.refresh()
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, checkStatus(t, s, queueService))
}

func TestRefresh_ReflectsPersistenceHealth(t *testing.T) {
	s := New(DefaultConfig())

	// No watched persistence contexts: nothing to fail, so SERVING.
	s.refresh()
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, checkStatus(t, s, persistenceService))

	path := filepath.Join(t.TempDir(), "dataset.db")
	pctx, err := persistence.Open(path, "exp1", "sample1")
	require.NoError(t, err)
	defer persistence.Close(pctx)

	s.WatchPersistence(pctx)
	s.refresh()
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, checkStatus(t, s, persistenceService))

	require.NoError(t, persistence.Close(pctx))
	s.refresh()
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, checkStatus(t, s, persistenceService))
}
