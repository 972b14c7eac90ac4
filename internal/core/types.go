// Package core implements the worker-side task execution loop: polling,
// capacity gating, claim admission, device leasing, cancellation, and
// shutdown coordination. It depends only on internal/contracts — every
// concrete queue/device/disk/GC/host collaborator is injected.
package core

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/fluxforge/workercore/internal/contracts"
)

// RunningState is one in-flight job, created just before admission and
// removed exactly once on normal completion, cancellation, or abort.
type RunningState struct {
	TaskID    string
	RunID     int64
	StartTime time.Time
	Devices   map[string]contracts.Device
	Handler   contracts.TaskHandler
}

// key identifies a RunningState by (taskId, runId).
type key struct {
	taskID string
	runID  int64
}

// CapacitySnapshot is an immutable (idle, busy, time) tuple, sampled at
// capacity transitions and on the 60s CapacityReporter timer.
type CapacitySnapshot struct {
	Idle int
	Busy int
	Time time.Time
}

// ConfiguredCapacity is the worker's total configured slot count. It is
// writable by ShutdownController's graceful path and read everywhere else
// (spec.md §5 "Shared resources").
type ConfiguredCapacity struct {
	v atomic.Int64
}

// NewConfiguredCapacity returns a ConfiguredCapacity initialized to n.
func NewConfiguredCapacity(n int) *ConfiguredCapacity {
	c := &ConfiguredCapacity{}
	c.v.Store(int64(n))
	return c
}

// Get returns the current configured capacity.
func (c *ConfiguredCapacity) Get() int { return int(c.v.Load()) }

// Set overwrites the configured capacity.
func (c *ConfiguredCapacity) Set(n int) { c.v.Store(int64(n)) }

// Counters tracks the worker's running-aggregate state: lastKnownCapacity,
// totalRunTime, lastTaskEvent, and the last CapacitySnapshot.
type Counters struct {
	mu                sync.Mutex
	lastKnownCapacity int
	totalRunTime      time.Duration
	lastTaskEvent     time.Time
	snapshot          CapacitySnapshot
}

// NewCounters returns a Counters with its initial snapshot stamped at now.
func NewCounters(configured, registrySize int) *Counters {
	c := &Counters{}
	c.recordCapacity(configured, registrySize)
	return c
}

// recordCapacity samples a CapacitySnapshot from the configured capacity and
// current registry size. TaskRunner invokes this immediately before mutating
// the Registry so the snapshot reflects pre-mutation state (spec.md §5
// ordering guarantee a, §8 invariant 3); CapacityReporter also resamples it
// on every tick.
func (c *Counters) recordCapacity(configured, registrySize int) CapacitySnapshot {
	idle := configured - registrySize
	if idle < 0 {
		idle = 0
	}
	snap := CapacitySnapshot{Idle: idle, Busy: registrySize, Time: time.Now()}
	c.mu.Lock()
	c.snapshot = snap
	c.mu.Unlock()
	return snap
}

func (c *Counters) lastSnapshot() CapacitySnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot
}

func (c *Counters) setCapacity(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastKnownCapacity = n
}

func (c *Counters) addCapacity(delta int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastKnownCapacity += delta
}

func (c *Counters) capacity() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastKnownCapacity
}

func (c *Counters) addRunTime(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalRunTime += d
}

func (c *Counters) runTime() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.totalRunTime
}

func (c *Counters) touch(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastTaskEvent = t
}
