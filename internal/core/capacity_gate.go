package core

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/fluxforge/workercore/internal/contracts"
	"github.com/fluxforge/workercore/internal/metrics"
)

// CapacityGate computes admissible claim slots from configured capacity,
// the running set, device supply, and disk pressure (spec.md §4.2).
type CapacityGate struct {
	devices contracts.DeviceManager
	disk    contracts.DiskProbe
	gc      contracts.GarbageCollector
	log     contracts.Logger
	monitor contracts.Monitor

	volume          string
	diskThreshold   uint64
	deviceShortSeen bool

	// probeFailLog throttles the device-probe-failure log line so a
	// persistent outage doesn't spam one line per poll cycle, mirroring
	// TokenBucketLimiter.Reserve's steady-rate admission shape.
	probeFailLog *rate.Limiter
}

// NewCapacityGate builds a gate against the given device/disk/gc collaborators.
func NewCapacityGate(devices contracts.DeviceManager, disk contracts.DiskProbe, gc contracts.GarbageCollector, volume string, diskThresholdBytes uint64, log contracts.Logger, monitor contracts.Monitor) *CapacityGate {
	return &CapacityGate{
		devices:       devices,
		disk:          disk,
		gc:            gc,
		log:           log,
		monitor:       monitor,
		volume:        volume,
		diskThreshold: diskThresholdBytes,
		probeFailLog:  rate.NewLimiter(rate.Every(30*time.Second), 1),
	}
}

// gateResult carries the outcome of one cycle's admission computation.
type gateResult struct {
	admissible  int
	diskBlocked bool
}

// Evaluate computes admissible capacity for this cycle, running the device
// probe, the disk-pressure predicate (only if admissible > 0), and the GC
// sweep (every cycle, full only when the registry is empty).
func (g *CapacityGate) Evaluate(ctx context.Context, configured *ConfiguredCapacity, registrySize int, counters *Counters) gateResult {
	configuredCapacity := configured.Get()
	runningCapacity := configuredCapacity - registrySize
	if runningCapacity < 0 {
		runningCapacity = 0
	}

	deviceCapacity, err := g.devices.GetAvailableCapacity(ctx)
	if err != nil {
		if g.probeFailLog.Allow() {
			g.log.Log("[alert-operator] device capacity probe failed", map[string]any{"error": err.Error()})
		}
		deviceCapacity = 0
	}

	admissible := runningCapacity
	if deviceCapacity < admissible {
		admissible = deviceCapacity
	}
	if admissible < 0 {
		admissible = 0
	}

	if deviceCapacity < runningCapacity {
		if !g.deviceShortSeen {
			g.log.Log("device capacity below running capacity; admission reduced", map[string]any{
				"device_capacity":  deviceCapacity,
				"running_capacity": runningCapacity,
			})
			metrics.DeviceCapacityAdjusted.Inc()
		}
		g.deviceShortSeen = true
	} else {
		g.deviceShortSeen = false
	}

	counters.setCapacity(admissible)
	metrics.LastKnownCapacity.Set(float64(admissible))

	diskBlocked := false
	if admissible > 0 {
		exceeded, err := g.disk.ExceedsDiskspaceThreshold(ctx, g.volume, g.diskThreshold, admissible)
		if err != nil {
			g.log.Log("[alert-operator] disk pressure probe failed, treating as unavailable", map[string]any{"error": err.Error()})
			diskBlocked = true
		} else if exceeded {
			diskBlocked = true
		}
	}

	full := registrySize == 0
	g.gc.Sweep(ctx, full)

	if diskBlocked {
		metrics.AdmissionDecisions.WithLabelValues("disk_pressure").Inc()
		g.log.LogEvent("admissionDecision", map[string]any{
			"decision": "DISK_PRESSURE", "volume": g.volume, "registry_size": registrySize,
		})
		admissible = 0
	} else if admissible == 0 {
		if deviceCapacity < runningCapacity {
			metrics.AdmissionDecisions.WithLabelValues("device_shortfall").Inc()
			g.log.LogEvent("admissionDecision", map[string]any{
				"decision": "DEVICE_SHORTFALL", "device_capacity": deviceCapacity, "running_capacity": runningCapacity,
			})
		} else {
			metrics.AdmissionDecisions.WithLabelValues("no_capacity").Inc()
		}
	}

	return gateResult{admissible: admissible, diskBlocked: diskBlocked}
}
