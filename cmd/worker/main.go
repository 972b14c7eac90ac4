// Command worker runs the FluxForge worker core: poll, gate, admit,
// execute, and retire task claims against a remote queue, reporting
// capacity and honoring graceful/immediate shutdown signals. Wiring style
// grounded on legacy_agent_reference/main.go's signal-handling/backoff
// shape and control_plane/main.go's single-process component assembly.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/fluxforge/workercore/internal/adapters/devicesim"
	"github.com/fluxforge/workercore/internal/adapters/pgarchive"
	"github.com/fluxforge/workercore/internal/adapters/redisqueue"
	"github.com/fluxforge/workercore/internal/contracts"
	"github.com/fluxforge/workercore/internal/core"
	"github.com/fluxforge/workercore/internal/hostlocal"
	"github.com/fluxforge/workercore/internal/obslog"
	"github.com/fluxforge/workercore/internal/workerconfig"
)

func main() {
	cfg, err := workerconfig.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger := obslog.New(cfg.NodeID)
	monitor := obslog.NewMonitor(logger, "workercore")
	logger.Log("worker starting", map[string]any{"node_id": cfg.NodeID, "queue_addr": cfg.QueueAddr})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	shutdownMgr := hostlocal.NewShutdownManager(sigChan)
	host := hostlocal.NewHostController(func(ctx context.Context) error {
		cancel()
		return nil
	})

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.QueueAddr})
	queue, err := redisqueue.New(ctx, cfg.QueueAddr, "", 0)
	if err != nil {
		log.Fatalf("connect queue: %v", err)
	}
	cancelSource := redisqueue.NewCancellationSource(ctx, redisClient)

	devices := devicesim.New(map[string]int{"cpu": 8})
	disk := hostlocal.DiskProbe{}
	gc := hostlocal.GarbageCollector{Root: "/var/lib/workercore/work", StaleAfter: time.Hour}
	volumes := hostlocal.VolumeCache{Root: "/var/lib/workercore/cache"}

	registry := core.NewRegistry()
	configured := core.NewConfiguredCapacity(cfg.ConfiguredCapacity)
	counters := core.NewCounters(cfg.ConfiguredCapacity, 0)

	gate := core.NewCapacityGate(devices, disk, gc, cfg.DiskVolume, cfg.DiskThresholdBytes, logger, monitor)
	admitter := core.NewClaimAdmitter(queue, volumes, noopHandlerFactory{}, registry, counters, configured, cfg.RestrictCPU, logger, monitor)
	shutdownCtl := core.NewShutdownController(shutdownMgr, host, registry, configured, logger)
	reporter := core.NewCapacityReporter(registry, counters, configured, host, logger)
	cancelHandler := core.NewCancelHandler(registry, logger)

	if cfg.ArchiveDSN != "" {
		archiver, err := pgarchive.New(ctx, cfg.ArchiveDSN, cfg.NodeID)
		if err != nil {
			log.Fatalf("connect capacity archive: %v", err)
		}
		defer archiver.Close()
		reporter.SetArchiver(archiver)
	}

	w := core.NewWorker(registry, counters, configured, gate, admitter, shutdownCtl, reporter, devices, cfg.PollInterval, logger)

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
			logger.Log("metrics server stopped", map[string]any{"error": err.Error()})
		}
	}()

	w.Start(ctx, cancelHandler, cancelSource)

	select {
	case <-ctx.Done():
	case err := <-w.Fatal():
		logger.Log("fatal error, exiting", map[string]any{"error": err.Error()})
		w.Close()
		os.Exit(1)
	}
	w.Close()
}

// noopHandlerFactory is a placeholder contracts.HandlerFactory until a real
// task execution backend is wired in; it exists so cmd/worker compiles and
// demonstrates the wiring shape end to end.
type noopHandlerFactory struct{}

func (noopHandlerFactory) New(ctx context.Context, claim contracts.Claim, opts map[string]string) (contracts.TaskHandler, error) {
	return noopHandler{}, nil
}

type noopHandler struct{}

func (noopHandler) Start(ctx context.Context) error                { return nil }
func (noopHandler) Cancel(ctx context.Context, reason string) error { return nil }
func (noopHandler) Abort(ctx context.Context, reason string) error  { return nil }
func (noopHandler) Status() string                                  { return "noop" }
