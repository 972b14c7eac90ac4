// Package contracts defines the external collaborators the worker core
// depends on. The core never imports a concrete implementation of any of
// these — only internal/adapters/... and cmd/worker wire one in.
package contracts

import (
	"context"
	"time"
)

// Claim is one queue grant of exclusive right to run one Run of one Task.
type Claim struct {
	RunID  int64
	Task   Task
	Status ClaimStatus
}

// Task is the payload metadata the worker needs to admit and execute a run.
// The payload body itself is opaque to the core; only Capabilities is read.
type Task struct {
	ID           string
	Created      time.Time
	Capabilities TaskCapabilities
}

// TaskCapabilities declares the devices a task needs leased before execution.
type TaskCapabilities struct {
	Devices []string
}

// ClaimStatus mirrors the queue's view of a task's run history.
type ClaimStatus struct {
	TaskID string
	Runs   []RunStatus
}

// RunStatus is one numbered attempt at a task.
type RunStatus struct {
	ReasonResolved string
}

// QueueClient is the remote queue collaborator (out of scope per spec.md §1).
type QueueClient interface {
	// ClaimWork requests up to n claims. May return fewer, or zero.
	ClaimWork(ctx context.Context, n int) ([]Claim, error)
}

// CancellationMessage is delivered by a CancellationSource to CancelHandler.
type CancellationMessage struct {
	RunID  int64
	TaskID string
	Reason string
}

// CancellationSource delivers cancellation messages asynchronously.
type CancellationSource interface {
	// Messages returns a channel of inbound cancellation messages. The
	// channel is closed when the source is permanently exhausted (e.g. the
	// underlying connection is torn down and will not reconnect).
	Messages() <-chan CancellationMessage
}

// Device is a leased, exclusive-use host resource.
type Device struct {
	ID      string
	Release func()
}

// DeviceManager leases devices of a given kind (cpu, gpu, loop, ...).
type DeviceManager interface {
	// GetAvailableCapacity returns the number of leasable slots currently
	// free across all kinds this worker is configured to gate on.
	GetAvailableCapacity(ctx context.Context) (int, error)
	// GetDevice leases one device of the given kind.
	GetDevice(ctx context.Context, kind string) (Device, error)
}

// DiskProbe reports whether admitting `admissible` more jobs on `volume`
// would push it past `thresholdBytes` of free space.
type DiskProbe interface {
	ExceedsDiskspaceThreshold(ctx context.Context, volume string, thresholdBytes uint64, admissible int) (bool, error)
}

// GarbageCollector reclaims container/volume resources. Out of scope for
// the core's own logic; the core only decides full vs. light and invokes it.
type GarbageCollector interface {
	Sweep(ctx context.Context, full bool)
}

// VolumeCache purges cached volume data ahead of admitting new claims.
type VolumeCache interface {
	PurgeCaches(ctx context.Context) error
}

// HostController owns the physical/virtual host's lifecycle.
type HostController interface {
	Shutdown(ctx context.Context) error
	BillingCycleUptimeSeconds(ctx context.Context) (float64, error)
	// Heartbeat reports worker liveness alongside the 60s capacity tick.
	// See SPEC_FULL.md Supplemented Features.
	Heartbeat(ctx context.Context) error
}

// ShutdownManager is the external signal source for shutdown intent.
type ShutdownManager interface {
	OnIdle(ctx context.Context)
	OnWorking(ctx context.Context)
	ShouldExit(ctx context.Context) (ShutdownIntent, error)
}

// ShutdownIntent is monotonic: none -> graceful -> immediate, never back.
type ShutdownIntent int

const (
	ShutdownNone ShutdownIntent = iota
	ShutdownGraceful
	ShutdownImmediate
)

func (s ShutdownIntent) String() string {
	switch s {
	case ShutdownGraceful:
		return "graceful"
	case ShutdownImmediate:
		return "immediate"
	default:
		return "none"
	}
}

// Severity orders intents so callers can enforce the monotonic transition.
func (s ShutdownIntent) Severity() int { return int(s) }

// TaskHandler is the opaque, per-claim execution controller.
type TaskHandler interface {
	Start(ctx context.Context) error
	Cancel(ctx context.Context, reason string) error
	Abort(ctx context.Context, reason string) error
	Status() string
}

// HandlerFactory constructs the opaque handler for one claim.
type HandlerFactory interface {
	New(ctx context.Context, claim Claim, opts map[string]string) (TaskHandler, error)
}

// Logger is the structured log sink (spec.md §6 "log(msg, fields)").
type Logger interface {
	Log(msg string, fields map[string]any)
	LogEvent(eventType string, fields map[string]any)
}

// Monitor is the metrics sink (spec.md §6 "monitor.count/measure").
type Monitor interface {
	Count(name string, n int)
	Measure(name string, value float64)
	ChildMonitor(name string) Monitor
}
