// Command measureit-sweep loads a YAML sweep plan, runs it through a Queue,
// and serves admin/health routes until the queue finishes or it is asked
// to shut down — grounded on the teacher's cmd/bg-sweep/main.go (flag
// parsing, blocking orchestration loop) and cmd/lidar/lidar.go (signal
// handling, net/http server wiring with graceful shutdown).
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/measureit/internal/config"
	"github.com/banshee-data/measureit/internal/control"
	"github.com/banshee-data/measureit/internal/monitoring"
	"github.com/banshee-data/measureit/internal/persistence"
	"github.com/banshee-data/measureit/internal/queue"
)

var (
	planPath   = flag.String("plan", "", "Path to the YAML sweep plan")
	adminAddr  = flag.String("admin-listen", ":8090", "HTTP listen address for /debug admin routes")
	healthAddr = flag.String("health-listen", "localhost:50052", "gRPC listen address for the health service")
)

func main() {
	flag.Parse()
	if *planPath == "" {
		log.Fatal("-plan is required")
	}

	home, err := config.Default()
	if err != nil {
		log.Fatalf("resolve measureit home: %v", err)
	}
	logsDir, err := home.Logs()
	if err != nil {
		log.Fatalf("resolve logs dir: %v", err)
	}
	logFile, err := monitoring.OpenRunLog(logsDir, time.Now())
	if err != nil {
		log.Fatalf("open run log: %v", err)
	}
	defer logFile.Close()

	plan, err := LoadPlan(*planPath)
	if err != nil {
		log.Fatalf("load plan: %v", err)
	}

	ctx, err := persistence.Open(plan.Persistence.Path, plan.Persistence.Experiment, plan.Persistence.Sample)
	if err != nil {
		log.Fatalf("open persistence context: %v", err)
	}

	q := queue.New()
	q.SetPersistence(ctx)
	for _, e := range plan.Entries {
		switch {
		case e.Sweep != nil:
			b, err := Build(e.Sweep)
			if err != nil {
				log.Fatalf("build sweep: %v", err)
			}
			q.Append(queue.NewSweepEntry(b, e.Sweep.RampToStart))
		case e.ContextSwitch != nil:
			q.Append(queue.NewContextSwitchEntry(e.ContextSwitch.Path, e.ContextSwitch.Experiment, e.ContextSwitch.Sample))
		default:
			log.Fatal("plan entry has neither sweep nor context_switch")
		}
	}

	mux := http.NewServeMux()
	if err := ctx.AttachAdminRoutes(mux); err != nil {
		log.Fatalf("attach admin routes: %v", err)
	}
	httpSrv := &http.Server{Addr: *adminAddr, Handler: mux}

	healthSrv := control.New(control.Config{ListenAddr: *healthAddr, PollInterval: time.Second})
	healthSrv.WatchQueue(q)
	healthSrv.WatchPersistence(ctx)
	if err := healthSrv.Start(); err != nil {
		log.Fatalf("start health server: %v", err)
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Printf("admin routes listening on %s", *adminAddr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("admin HTTP server error: %v", err)
		}
	}()

	if err := q.Start(); err != nil {
		log.Fatalf("start queue: %v", err)
	}

	queueDone := make(chan struct{})
	go func() {
		q.Wait()
		close(queueDone)
	}()

	select {
	case <-queueDone:
		if q.State() == queue.StateError {
			log.Printf("queue finished with error: %s", q.ErrorMessage())
		} else {
			log.Printf("queue finished: %s", q.State())
		}
	case <-sigCtx.Done():
		log.Print("shutdown requested, stopping queue")
		q.Stop()
		q.Wait()
	}

	healthSrv.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Printf("admin HTTP server shutdown error: %v", err)
	}

	wg.Wait()
	fmt.Println("measureit-sweep exiting")
}
