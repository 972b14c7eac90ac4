package core

import (
	"context"
	"testing"
	"time"

	"github.com/fluxforge/workercore/internal/contracts"
)

func newTestClaim(taskID string, runID int64, devices ...string) contracts.Claim {
	return contracts.Claim{
		RunID: runID,
		Task: contracts.Task{
			ID:           taskID,
			Created:      time.Now(),
			Capabilities: contracts.TaskCapabilities{Devices: devices},
		},
	}
}

func TestTaskRunnerInsertsThenRemovesOnCompletion(t *testing.T) {
	registry := NewRegistry()
	counters := NewCounters(4, 0)
	configured := NewConfiguredCapacity(4)
	devices := &fakeDeviceManager{capacity: 4}
	handler := newFakeHandler()

	runner := &TaskRunner{
		devices:    devices,
		handlers:   fakeHandlerFactory{handler: handler},
		registry:   registry,
		counters:   counters,
		configured: configured,
		log:        &fakeLogger{},
		monitor:    fakeMonitor{},
	}

	done := make(chan struct{})
	go func() {
		runner.Run(context.Background(), newTestClaim("t1", 1, "gpu"))
		close(done)
	}()

	// Wait until the run is registered.
	for registry.Size() == 0 {
		time.Sleep(time.Millisecond)
	}
	if registry.Find("t1", 1) == nil {
		t.Fatal("expected registry to contain the running task")
	}

	close(handler.release)
	<-done

	if registry.Size() != 0 {
		t.Fatalf("Size() after completion = %d, want 0", registry.Size())
	}
	if devices.released == 0 {
		t.Fatal("expected devices to be released on completion")
	}
}

func TestTaskRunnerRetiresFailedSetupWithoutRegistryEntry(t *testing.T) {
	registry := NewRegistry()
	counters := NewCounters(4, 0)
	configured := NewConfiguredCapacity(4)
	devices := &fakeDeviceManager{capacity: 4, failLease: true}
	handler := newFakeHandler()

	runner := &TaskRunner{
		devices:    devices,
		handlers:   fakeHandlerFactory{handler: handler},
		registry:   registry,
		counters:   counters,
		configured: configured,
		log:        &fakeLogger{},
		monitor:    fakeMonitor{},
	}

	runner.Run(context.Background(), newTestClaim("t1", 1, "gpu"))

	if registry.Size() != 0 {
		t.Fatalf("a lease failure must never leave a registry entry, got size %d", registry.Size())
	}
}

func TestTaskRunnerRecordsCapacityBeforeRegistryMutation(t *testing.T) {
	// recordCapacity must observe pre-mutation registry size: snapshot at
	// insertion time should show the state NOT yet counted, and at removal
	// time should still show it counted (about to be removed).
	registry := NewRegistry()
	counters := NewCounters(4, 0)
	configured := NewConfiguredCapacity(4)
	devices := &fakeDeviceManager{capacity: 4}
	handler := newFakeHandler()

	runner := &TaskRunner{
		devices:    devices,
		handlers:   fakeHandlerFactory{handler: handler},
		registry:   registry,
		counters:   counters,
		configured: configured,
		log:        &fakeLogger{},
		monitor:    fakeMonitor{},
	}

	done := make(chan struct{})
	go func() {
		runner.Run(context.Background(), newTestClaim("t1", 1))
		close(done)
	}()
	for registry.Size() == 0 {
		time.Sleep(time.Millisecond)
	}

	preInsertSnap := counters.lastSnapshot()
	if preInsertSnap.Busy != 0 {
		t.Fatalf("snapshot taken before insertion must reflect pre-insert busy count, got %d", preInsertSnap.Busy)
	}

	close(handler.release)
	<-done

	postSnap := counters.lastSnapshot()
	if postSnap.Busy != 1 {
		t.Fatalf("snapshot taken before removal must still reflect the about-to-be-removed entry, got Busy=%d", postSnap.Busy)
	}
}
