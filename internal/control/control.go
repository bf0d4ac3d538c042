// Package control exposes the sweep engine's liveness to external
// orchestrators over gRPC health checking, grounded on the teacher's
// internal/lidar/visualiser.Publisher (net.Listen + grpc.NewServer +
// background goroutine serving, GracefulStop on shutdown).
package control

import (
	"context"
	"fmt"
	"log"
	"net"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/banshee-data/measureit/internal/persistence"
	"github.com/banshee-data/measureit/internal/queue"
	"github.com/banshee-data/measureit/internal/registry"
)

// registryService is SERVING for as long as the Active-Sweep Registry
// holds at least one member.
const registryService = "measureit.sweep.registry"

// queueService is SERVING for as long as any watched Queue is RUNNING.
const queueService = "measureit.sweep.queue"

// persistenceService is SERVING as long as every watched persistence
// Context responds to Ping; NOT_SERVING on the first ping failure.
const persistenceService = "measureit.sweep.persistence"

// Server runs a gRPC health server whose per-service status tracks the
// registry's occupancy, a set of watched queues, and a set of watched
// persistence contexts.
type Server struct {
	cfg      Config
	health   *health.Server
	grpc     *grpc.Server
	listener net.Listener

	mu          sync.Mutex
	watched     []*queue.Queue
	watchedCtxs []*persistence.Context

	stopPoll chan struct{}
	wg       sync.WaitGroup
}

// Config configures the control server's listening address and poll
// cadence for reflecting registry/queue state into health status.
type Config struct {
	ListenAddr   string
	PollInterval time.Duration
}

// DefaultConfig returns sane defaults for local orchestration.
func DefaultConfig() Config {
	return Config{ListenAddr: "localhost:50052", PollInterval: time.Second}
}

// New builds a Server. Call Start to begin listening.
func New(cfg Config) *Server {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	return &Server{cfg: cfg, health: health.NewServer()}
}

// WatchQueue adds q to the set of queues whose RUNNING state is reflected
// as queueService's serving status.
func (s *Server) WatchQueue(q *queue.Queue) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.watched = append(s.watched, q)
}

// WatchPersistence adds ctx to the set of persistence contexts pinged each
// poll cycle to determine persistenceService's serving status.
func (s *Server) WatchPersistence(ctx *persistence.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.watchedCtxs = append(s.watchedCtxs, ctx)
}

// Start binds the listener, registers the health service, and begins
// serving in the background.
func (s *Server) Start() error {
	lis, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("control: listen: %w", err)
	}
	s.listener = lis

	s.grpc = grpc.NewServer()
	healthpb.RegisterHealthServer(s.grpc, s.health)
	s.refresh()

	s.stopPoll = make(chan struct{})
	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		if err := s.grpc.Serve(lis); err != nil {
			log.Printf("control: gRPC server error: %v", err)
		}
	}()
	go s.pollLoop()

	return nil
}

// Stop gracefully shuts down the gRPC server and the polling goroutine.
func (s *Server) Stop() {
	if s.stopPoll != nil {
		close(s.stopPoll)
	}
	s.health.Shutdown()
	if s.grpc != nil {
		s.grpc.GracefulStop()
	}
	s.wg.Wait()
}

func (s *Server) pollLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopPoll:
			return
		case <-ticker.C:
			s.refresh()
		}
	}
}

func (s *Server) refresh() {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if len(registry.Default().Members()) > 0 {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(registryService, status)

	qStatus := healthpb.HealthCheckResponse_NOT_SERVING
	s.mu.Lock()
	for _, q := range s.watched {
		if q.State() == queue.StateRunning {
			qStatus = healthpb.HealthCheckResponse_SERVING
			break
		}
	}
	s.mu.Unlock()
	s.health.SetServingStatus(queueService, qStatus)

	s.mu.Lock()
	ctxs := append([]*persistence.Context(nil), s.watchedCtxs...)
	s.mu.Unlock()

	pStatus := healthpb.HealthCheckResponse_SERVING
	if len(ctxs) > 0 {
		pingCtx, cancel := context.WithTimeout(context.Background(), s.cfg.PollInterval)
		defer cancel()
		for _, c := range ctxs {
			if err := c.Ping(pingCtx); err != nil {
				pStatus = healthpb.HealthCheckResponse_NOT_SERVING
				break
			}
		}
	}
	s.health.SetServingStatus(persistenceService, pStatus)
}
