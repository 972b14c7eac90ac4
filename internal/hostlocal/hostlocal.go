// Package hostlocal provides the default DiskProbe, GarbageCollector,
// VolumeCache, HostController, and ShutdownManager implementations: thin
// wrappers over host-local stdlib facilities (syscall.Statfs, os.RemoveAll,
// process signals). None of these concerns has an ecosystem library
// candidate anywhere in the example pack — disk/volume/host lifecycle is
// inherently syscall-level, not something go-redis/pgx/websocket/prometheus
// cover — so this package is the one place in the adapters tree that is
// justifiably stdlib-only (see DESIGN.md).
package hostlocal

import (
	"context"
	"os"
	"sync"
	"syscall"
	"time"

	"github.com/fluxforge/workercore/internal/contracts"
)

// DiskProbe reports free bytes on volume via statfs.
type DiskProbe struct{}

// ExceedsDiskspaceThreshold reports whether free space on volume is below
// thresholdBytes per admissible job (thresholdBytes x admissible, and never
// less than thresholdBytes itself).
func (DiskProbe) ExceedsDiskspaceThreshold(ctx context.Context, volume string, thresholdBytes uint64, admissible int) (bool, error) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(volume, &stat); err != nil {
		return false, err
	}
	free := stat.Bavail * uint64(stat.Bsize)
	reserve := thresholdBytes * uint64(admissible)
	if reserve < thresholdBytes {
		reserve = thresholdBytes
	}
	return free < reserve, nil
}

// GarbageCollector removes stale working directories under root. A light
// sweep only prunes entries older than staleAfter; a full sweep (invoked
// when the registry is empty) also runs os.RemoveAll on anything left over.
type GarbageCollector struct {
	Root       string
	StaleAfter time.Duration
}

// Sweep implements contracts.GarbageCollector.
func (g GarbageCollector) Sweep(ctx context.Context, full bool) {
	entries, err := os.ReadDir(g.Root)
	if err != nil {
		return
	}
	cutoff := time.Now().Add(-g.StaleAfter)
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			continue
		}
		if full || info.ModTime().Before(cutoff) {
			os.RemoveAll(g.Root + "/" + e.Name())
		}
	}
}

// VolumeCache purges a directory tree of cached volume data between claims.
type VolumeCache struct {
	Root string
}

// PurgeCaches implements contracts.VolumeCache.
func (v VolumeCache) PurgeCaches(ctx context.Context) error {
	entries, err := os.ReadDir(v.Root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, e := range entries {
		if err := os.RemoveAll(v.Root + "/" + e.Name()); err != nil {
			return err
		}
	}
	return nil
}

// HostController shuts the process down via a shutdown func (typically
// closing the top-level context) and reports uptime from process start.
type HostController struct {
	bootTime time.Time
	shutdown func(ctx context.Context) error
}

// NewHostController records boot time as now and wires shutdown as the
// terminal action final shutdown invokes (e.g. cancel the root context).
func NewHostController(shutdown func(ctx context.Context) error) *HostController {
	return &HostController{bootTime: time.Now(), shutdown: shutdown}
}

// Shutdown implements contracts.HostController.
func (h *HostController) Shutdown(ctx context.Context) error { return h.shutdown(ctx) }

// BillingCycleUptimeSeconds implements contracts.HostController as time
// since process start; a cloud-billing-cycle-aware HostController would
// instead read an instance-metadata endpoint, out of scope here.
func (h *HostController) BillingCycleUptimeSeconds(ctx context.Context) (float64, error) {
	return time.Since(h.bootTime).Seconds(), nil
}

// Heartbeat is a no-op placeholder for a real liveness-reporting endpoint.
func (h *HostController) Heartbeat(ctx context.Context) error { return nil }

// ShutdownManager is a local policy driven purely by OS signals: the first
// signal received on its channel requests graceful drain, any later one
// requests immediate abort.
type ShutdownManager struct {
	mu      sync.Mutex
	intent  shutdownIntent
	sigChan chan os.Signal
}

type shutdownIntent = contracts.ShutdownIntent

const (
	intentNone      = contracts.ShutdownNone
	intentGraceful  = contracts.ShutdownGraceful
	intentImmediate = contracts.ShutdownImmediate
)

// NewShutdownManager wires a ShutdownManager against sig, a channel the
// caller feeds from signal.Notify.
func NewShutdownManager(sig chan os.Signal) *ShutdownManager {
	m := &ShutdownManager{sigChan: sig}
	go m.listen()
	return m
}

func (m *ShutdownManager) listen() {
	for range m.sigChan {
		m.mu.Lock()
		if m.intent == intentNone {
			m.intent = intentGraceful
		} else {
			m.intent = intentImmediate
		}
		m.mu.Unlock()
	}
}

// OnIdle and OnWorking are no-ops for the signal-driven policy; a
// cloud-spot-market ShutdownManager would instead poll a termination-notice
// endpoint on every OnWorking call.
func (m *ShutdownManager) OnIdle(ctx context.Context)    {}
func (m *ShutdownManager) OnWorking(ctx context.Context) {}

// ShouldExit reports the current intent as a contracts.ShutdownIntent.
func (m *ShutdownManager) ShouldExit(ctx context.Context) (contracts.ShutdownIntent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.intent, nil
}
