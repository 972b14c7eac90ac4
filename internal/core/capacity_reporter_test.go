package core

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/fluxforge/workercore/internal/metrics"
)

func TestCapacityReporterBootEmitsLifecycleEvents(t *testing.T) {
	registry := NewRegistry()
	counters := NewCounters(4, 0)
	configured := NewConfiguredCapacity(4)
	host := &fakeHostController{uptime: 3600}
	log := &fakeLogger{}

	r := NewCapacityReporter(registry, counters, configured, host, log)
	r.Boot(context.Background())

	if !log.hasEvent("instanceBoot") {
		t.Fatal("expected an instanceBoot event")
	}
	if !log.hasEvent("workerReady") {
		t.Fatal("expected a workerReady event")
	}
}

func TestCapacityReporterEfficiencyReflectsRunTimeAndRunningJobs(t *testing.T) {
	registry := NewRegistry()
	counters := NewCounters(4, 0)
	counters.addRunTime(60 * time.Second)
	configured := NewConfiguredCapacity(2)
	host := &fakeHostController{uptime: 120}
	r := NewCapacityReporter(registry, counters, configured, host, &fakeLogger{})

	r.refreshEfficiency(context.Background())

	got := testutil.ToFloat64(metrics.TotalEfficiency)
	want := 60.0 / (2 * 120) * 100
	if got != want {
		t.Fatalf("TotalEfficiency = %v, want %v", got, want)
	}
}

func TestCapacityReporterTickAccumulatesWeightedBusyIdle(t *testing.T) {
	registry := NewRegistry()
	counters := NewCounters(4, 2)
	counters.recordCapacity(4, 2)
	configured := NewConfiguredCapacity(4)
	host := &fakeHostController{uptime: 100}
	r := NewCapacityReporter(registry, counters, configured, host, &fakeLogger{})
	r.last = time.Now().Add(-time.Second)

	busyBefore := testutil.ToFloat64(metrics.CapacityBusySeconds)
	idleBefore := testutil.ToFloat64(metrics.CapacityIdleSeconds)

	// tick must fold at least one second at Busy=2/Idle=2 into the weighted
	// counters and refresh the last-tick timestamp.
	r.tick(context.Background())
	if got := testutil.ToFloat64(metrics.CapacityBusySeconds) - busyBefore; got < 2 {
		t.Fatalf("busy seconds grew by %v, want at least 2 (2 busy x 1s)", got)
	}
	if got := testutil.ToFloat64(metrics.CapacityIdleSeconds) - idleBefore; got < 2 {
		t.Fatalf("idle seconds grew by %v, want at least 2 (2 idle x 1s)", got)
	}
	if time.Since(r.last) > time.Second {
		t.Fatal("tick did not refresh r.last")
	}
}

func TestCapacityReporterFeedsArchiverOnTick(t *testing.T) {
	registry := NewRegistry()
	counters := NewCounters(4, 2)
	counters.recordCapacity(4, 2)
	configured := NewConfiguredCapacity(4)
	host := &fakeHostController{uptime: 100}
	archiver := &fakeArchiver{}
	r := NewCapacityReporter(registry, counters, configured, host, &fakeLogger{})
	r.SetArchiver(archiver)
	r.last = time.Now().Add(-time.Second)

	r.tick(context.Background())

	archiver.mu.Lock()
	defer archiver.mu.Unlock()
	if len(archiver.snapshots) != 1 {
		t.Fatalf("expected one archived snapshot, got %d", len(archiver.snapshots))
	}
	if len(archiver.efficiencies) != 1 {
		t.Fatalf("expected one archived efficiency sample, got %d", len(archiver.efficiencies))
	}
}
