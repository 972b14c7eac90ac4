package core

import (
	"context"
	"sync"

	"github.com/fluxforge/workercore/internal/contracts"
)

// fakeLogger records log/event calls for assertions and never fails a test
// on unexpected output, matching the teacher's MockReconciler-style minimal
// fakes (scheduler_test.go).
type fakeLogger struct {
	mu         sync.Mutex
	lines      []string
	events     []string
	eventField []map[string]any
}

func (f *fakeLogger) Log(msg string, fields map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lines = append(f.lines, msg)
}

func (f *fakeLogger) LogEvent(eventType string, fields map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, eventType)
	f.eventField = append(f.eventField, fields)
}

func (f *fakeLogger) hasEvent(eventType string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.events {
		if e == eventType {
			return true
		}
	}
	return false
}

// hasEventWithField reports whether eventType was logged at least once with
// fields[key] == value, e.g. hasEventWithField("admissionDecision",
// "decision", "DISPATCH").
func (f *fakeLogger) hasEventWithField(eventType, key string, value any) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, e := range f.events {
		if e != eventType {
			continue
		}
		if f.eventField[i][key] == value {
			return true
		}
	}
	return false
}

type fakeMonitor struct{}

func (fakeMonitor) Count(name string, n int)         {}
func (fakeMonitor) Measure(name string, value float64) {}
func (f fakeMonitor) ChildMonitor(name string) contracts.Monitor { return f }

// fakeDeviceManager leases devices up to a fixed capacity and tracks
// release calls so tests can assert double-release tolerance.
type fakeDeviceManager struct {
	mu       sync.Mutex
	capacity int
	leased   int
	released int
	failLease bool
}

func (f *fakeDeviceManager) GetAvailableCapacity(ctx context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.capacity - f.leased, nil
}

func (f *fakeDeviceManager) GetDevice(ctx context.Context, kind string) (contracts.Device, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failLease {
		return contracts.Device{}, errLeaseFailed
	}
	f.leased++
	return contracts.Device{ID: kind + "-dev", Release: func() {
		f.mu.Lock()
		f.released++
		f.mu.Unlock()
	}}, nil
}

var errLeaseFailed = fakeErr("lease failed")

type fakeErr string

func (e fakeErr) Error() string { return string(e) }

type fakeDiskProbe struct {
	exceeds bool
	err     error
}

func (f fakeDiskProbe) ExceedsDiskspaceThreshold(ctx context.Context, volume string, thresholdBytes uint64, admissible int) (bool, error) {
	return f.exceeds, f.err
}

type fakeGC struct {
	mu        sync.Mutex
	sweeps    int
	fullSweep bool
}

func (f *fakeGC) Sweep(ctx context.Context, full bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sweeps++
	f.fullSweep = full
}

type fakeVolumeCache struct{ err error }

func (f fakeVolumeCache) PurgeCaches(ctx context.Context) error { return f.err }

// fakeQueue returns a fixed batch of claims once, then empty.
type fakeQueue struct {
	mu     sync.Mutex
	claims []contracts.Claim
	err    error
	calls  int
}

func (f *fakeQueue) ClaimWork(ctx context.Context, n int) ([]contracts.Claim, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := f.claims
	f.claims = nil
	return out, nil
}

// fakeHandler is a controllable TaskHandler: Start blocks until released,
// or fails immediately, depending on construction.
type fakeHandler struct {
	mu        sync.Mutex
	startErr  error
	release   chan struct{}
	canceled  bool
	aborted   bool
	cancelErr error
	abortErr  error
}

func newFakeHandler() *fakeHandler {
	return &fakeHandler{release: make(chan struct{})}
}

func (h *fakeHandler) Start(ctx context.Context) error {
	if h.startErr != nil {
		return h.startErr
	}
	<-h.release
	return nil
}

func (h *fakeHandler) Cancel(ctx context.Context, reason string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.canceled = true
	close(h.release)
	return h.cancelErr
}

func (h *fakeHandler) Abort(ctx context.Context, reason string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.aborted = true
	select {
	case <-h.release:
	default:
		close(h.release)
	}
	return h.abortErr
}

func (h *fakeHandler) Status() string { return "fake" }

type fakeHandlerFactory struct {
	handler *fakeHandler
	err     error
}

func (f fakeHandlerFactory) New(ctx context.Context, claim contracts.Claim, opts map[string]string) (contracts.TaskHandler, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.handler, nil
}

type fakeHostController struct {
	uptime      float64
	shutdownErr error
	shutdowns   int
}

func (f *fakeHostController) Shutdown(ctx context.Context) error {
	f.shutdowns++
	return f.shutdownErr
}

func (f *fakeHostController) BillingCycleUptimeSeconds(ctx context.Context) (float64, error) {
	return f.uptime, nil
}

func (f *fakeHostController) Heartbeat(ctx context.Context) error { return nil }

type fakeShutdownManager struct {
	mu      sync.Mutex
	intent  contracts.ShutdownIntent
	idleCalls, workingCalls int
}

func (f *fakeShutdownManager) OnIdle(ctx context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.idleCalls++
}

func (f *fakeShutdownManager) OnWorking(ctx context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.workingCalls++
}

func (f *fakeShutdownManager) ShouldExit(ctx context.Context) (contracts.ShutdownIntent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.intent, nil
}

func (f *fakeShutdownManager) setIntent(i contracts.ShutdownIntent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.intent = i
}

// fakeArchiver records CapacityArchiver calls so tests can assert
// CapacityReporter actually feeds it, without standing up Postgres.
type fakeArchiver struct {
	mu           sync.Mutex
	snapshots    []CapacitySnapshot
	efficiencies []float64
}

func (f *fakeArchiver) RecordSnapshot(ctx context.Context, snap CapacitySnapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshots = append(f.snapshots, snap)
	return nil
}

func (f *fakeArchiver) RecordEfficiency(ctx context.Context, percent float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.efficiencies = append(f.efficiencies, percent)
	return nil
}
