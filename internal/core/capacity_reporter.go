package core

import (
	"context"
	"strconv"
	"time"

	"github.com/fluxforge/workercore/internal/contracts"
	"github.com/fluxforge/workercore/internal/metrics"
)

// reportedThresholds are the busy/idle levels CapacityReporter tracks
// occupancy against (spec.md §4.8).
var reportedThresholds = []int{0, 1, 2, 3, 4, 6, 8}

// CapacityArchiver persists capacity snapshots and efficiency samples to a
// durable history sink, fed by CapacityReporter (see internal/adapters/pgarchive).
// Optional: a CapacityReporter with no archiver attached just skips these calls.
type CapacityArchiver interface {
	RecordSnapshot(ctx context.Context, snap CapacitySnapshot) error
	RecordEfficiency(ctx context.Context, percent float64) error
}

// CapacityReporter emits lifecycle events on startup and, every tick, folds
// the last CapacitySnapshot into weighted busy/idle accumulators, threshold
// occupancy counters, and a billing-cycle efficiency gauge. Grounded on
// control_plane/main.go's runMetricsCollector (ticker loop computing gauges
// from aggregated state) and observability/metrics.go's promauto vecs.
type CapacityReporter struct {
	registry   *Registry
	counters   *Counters
	configured *ConfiguredCapacity
	host       contracts.HostController
	log        contracts.Logger
	archiver   CapacityArchiver

	interval time.Duration
	last     time.Time
}

// NewCapacityReporter wires a reporter against the shared registry/counters.
func NewCapacityReporter(registry *Registry, counters *Counters, configured *ConfiguredCapacity, host contracts.HostController, log contracts.Logger) *CapacityReporter {
	return &CapacityReporter{
		registry:   registry,
		counters:   counters,
		configured: configured,
		host:       host,
		log:        log,
		interval:   60 * time.Second,
	}
}

// SetArchiver attaches a CapacityArchiver the reporter feeds on every tick.
// Construction is deferred to the caller (cmd/worker) since it depends on an
// external connection string the core itself never sees.
func (r *CapacityReporter) SetArchiver(archiver CapacityArchiver) {
	r.archiver = archiver
}

// Boot emits the instanceBoot/workerReady pair, backdating instanceBoot to
// host uptime ago so dashboards can reconstruct true instance age even
// though the worker process itself started just now.
func (r *CapacityReporter) Boot(ctx context.Context) {
	now := time.Now()
	r.last = now

	uptime, err := r.host.BillingCycleUptimeSeconds(ctx)
	if err != nil {
		r.log.Log("billing cycle uptime probe failed, assuming 0", map[string]any{"error": err.Error()})
		uptime = 0
	}
	bootTime := now.Add(-time.Duration(uptime * float64(time.Second)))

	r.log.LogEvent("instanceBoot", map[string]any{"at": bootTime})
	r.log.LogEvent("workerReady", map[string]any{"at": now})
}

// Run ticks every interval until ctx is done, folding the current snapshot
// into the weighted accumulators and refreshing the efficiency gauge.
func (r *CapacityReporter) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}

// tick folds elapsed wall time since the last tick into the busy/idle
// weighted integrals and threshold counters at the last known snapshot's
// occupancy, resamples the snapshot from the current registry, sends a
// heartbeat, and recomputes the efficiency gauge.
func (r *CapacityReporter) tick(ctx context.Context) {
	now := time.Now()
	elapsed := now.Sub(r.last).Seconds()
	if elapsed < 0 {
		elapsed = 0
	}
	r.last = now

	snap := r.counters.lastSnapshot()

	metrics.CapacityBusySeconds.Add(elapsed * float64(snap.Busy))
	metrics.CapacityIdleSeconds.Add(elapsed * float64(snap.Idle))

	for _, k := range reportedThresholds {
		ks := strconv.Itoa(k)
		if snap.Busy == k {
			metrics.RunningThreshold.WithLabelValues("busy", "eq", ks).Add(elapsed)
		}
		if snap.Busy >= k {
			metrics.RunningThreshold.WithLabelValues("busy", "ge", ks).Add(elapsed)
		}
		if snap.Idle == k {
			metrics.RunningThreshold.WithLabelValues("idle", "eq", ks).Add(elapsed)
		}
		if snap.Idle >= k {
			metrics.RunningThreshold.WithLabelValues("idle", "ge", ks).Add(elapsed)
		}
	}

	r.counters.recordCapacity(r.configured.Get(), r.registry.Size())

	if err := r.host.Heartbeat(ctx); err != nil {
		r.log.Log("heartbeat failed", map[string]any{"error": err.Error()})
	}

	if r.archiver != nil {
		if err := r.archiver.RecordSnapshot(ctx, snap); err != nil {
			r.log.Log("capacity archive write failed", map[string]any{"error": err.Error()})
		}
	}

	r.refreshEfficiency(ctx)
}

// refreshEfficiency sets the billing-cycle efficiency gauge: accumulated run
// time (completed plus every still-running job's elapsed time), over
// configured capacity times billing uptime, as a percentage (spec.md §4.8).
func (r *CapacityReporter) refreshEfficiency(ctx context.Context) {
	uptime, err := r.host.BillingCycleUptimeSeconds(ctx)
	if err != nil {
		r.log.Log("billing cycle uptime probe failed, skipping efficiency refresh", map[string]any{"error": err.Error()})
		return
	}
	configured := r.configured.Get()
	if configured <= 0 || uptime <= 0 {
		return
	}

	runTime := r.counters.runTime().Seconds()
	now := time.Now()
	for _, st := range r.registry.Snapshot() {
		runTime += now.Sub(st.StartTime).Seconds()
	}

	efficiency := runTime / (float64(configured) * uptime) * 100
	metrics.TotalEfficiency.Set(efficiency)

	if r.archiver != nil {
		if err := r.archiver.RecordEfficiency(ctx, efficiency); err != nil {
			r.log.Log("efficiency archive write failed", map[string]any{"error": err.Error()})
		}
	}
}
