package core

import (
	"context"
	"fmt"
	"time"

	"github.com/fluxforge/workercore/internal/contracts"
	"github.com/fluxforge/workercore/internal/metrics"
)

// ClaimAdmitter fetches claims from the queue and launches one TaskRunner
// per claim, fire-and-forget (spec.md §4.3).
type ClaimAdmitter struct {
	queue      contracts.QueueClient
	volumes    contracts.VolumeCache
	handlers   contracts.HandlerFactory
	registry   *Registry
	counters   *Counters
	configured *ConfiguredCapacity
	log        contracts.Logger
	monitor    contracts.Monitor

	restrictCPU bool
}

// NewClaimAdmitter wires the queue/volume-cache collaborators and the
// registry/counters the resulting TaskRunners will mutate.
func NewClaimAdmitter(queue contracts.QueueClient, volumes contracts.VolumeCache, handlers contracts.HandlerFactory, registry *Registry, counters *Counters, configured *ConfiguredCapacity, restrictCPU bool, log contracts.Logger, monitor contracts.Monitor) *ClaimAdmitter {
	return &ClaimAdmitter{
		queue:       queue,
		volumes:     volumes,
		handlers:    handlers,
		registry:    registry,
		counters:    counters,
		configured:  configured,
		log:         log,
		monitor:     monitor,
		restrictCPU: restrictCPU,
	}
}

// Admit runs one admission pass: given admissible slots, it claims work and
// spawns a TaskRunner per claim. It never blocks on the TaskRunners.
func (a *ClaimAdmitter) Admit(ctx context.Context, devices contracts.DeviceManager, admissible int) error {
	if admissible == 0 {
		return nil
	}

	claims, err := a.queue.ClaimWork(ctx, admissible)
	if err != nil {
		a.log.Log("[alert] claimWork failed", map[string]any{"error": err.Error()})
		return fmt.Errorf("claim work: %w", err)
	}
	if len(claims) == 0 {
		metrics.AdmissionDecisions.WithLabelValues("queue_empty").Inc()
		a.log.LogEvent("admissionDecision", map[string]any{"decision": "QUEUE_EMPTY", "admissible": admissible})
		return nil
	}

	if err := a.volumes.PurgeCaches(ctx); err != nil {
		a.log.Log("volume cache purge failed", map[string]any{"error": err.Error()})
	}

	metrics.AdmissionDecisions.WithLabelValues("dispatch").Inc()
	a.log.LogEvent("admissionDecision", map[string]any{"decision": "DISPATCH", "claims": len(claims), "admissible": admissible})
	for _, claim := range claims {
		runner := &TaskRunner{
			devices:     devices,
			handlers:    a.handlers,
			registry:    a.registry,
			counters:    a.counters,
			configured:  a.configured,
			log:         a.log,
			monitor:     a.monitor,
			restrictCPU: a.restrictCPU,
		}
		go runner.Run(ctx, claim)
	}
	return nil
}

// TaskRunner is the per-claim execution sequence described in spec.md §4.4.
type TaskRunner struct {
	devices     contracts.DeviceManager
	handlers    contracts.HandlerFactory
	registry    *Registry
	counters    *Counters
	configured  *ConfiguredCapacity
	log         contracts.Logger
	monitor     contracts.Monitor
	restrictCPU bool
}

// Run executes the stages of spec.md §4.4 for one claim. It never returns
// an error to its caller: every failure is retired and logged internally,
// matching the teacher's dispatch goroutines which only log, never
// propagate (control_plane/scheduler.go's processNextTask dispatch body).
func (t *TaskRunner) Run(ctx context.Context, claim contracts.Claim) {
	defer func() {
		if r := recover(); r != nil {
			t.log.Log("task runner panicked", map[string]any{"task_id": claim.Task.ID, "run_id": claim.RunID, "panic": fmt.Sprintf("%v", r)})
		}
	}()

	state := &RunningState{
		TaskID:    claim.Task.ID,
		RunID:     claim.RunID,
		StartTime: time.Now(),
		Devices:   make(map[string]contracts.Device),
	}

	if len(claim.Status.Runs) == 0 {
		t.monitor.Measure("timeToFirstClaim", time.Since(claim.Task.Created).Seconds())
		metrics.TimeToFirstClaimSeconds.Observe(time.Since(claim.Task.Created).Seconds())
	}

	opts := make(map[string]string)

	if err := t.leaseDevices(ctx, claim, state, opts); err != nil {
		t.retireFailed(state, err)
		return
	}

	handler, err := t.handlers.New(ctx, claim, opts)
	if err != nil {
		t.retireFailed(state, fmt.Errorf("construct handler: %w", err))
		return
	}
	state.Handler = handler

	// recordCapacity happens-before the insertion (spec.md §4.4 step 5, §5
	// ordering guarantee a): the snapshot must describe the pre-insert state.
	t.counters.recordCapacity(t.configured.Get(), t.registry.Size())
	t.counters.addCapacity(-1)
	t.registry.Add(state)
	metrics.RegistrySize.Set(float64(t.registry.Size()))

	t.log.LogEvent("taskQueue", map[string]any{"task_id": claim.Task.ID, "run_id": claim.RunID, "at": claim.Task.Created})
	t.log.LogEvent("taskStart", map[string]any{"task_id": claim.Task.ID, "run_id": claim.RunID})

	startErr := handler.Start(ctx)

	t.log.LogEvent("taskFinish", map[string]any{"task_id": claim.Task.ID, "run_id": claim.RunID, "error": errString(startErr)})

	if startErr != nil {
		metrics.TaskErrors.Inc()
		t.monitor.Count("task.error", 1)
		t.log.Log("task execution failed", map[string]any{"task_id": claim.Task.ID, "run_id": claim.RunID, "error": startErr.Error()})
	} else {
		metrics.TaskCompletions.Inc()
	}

	t.retireCompleted(claim.Task.ID, claim.RunID, state)
}

// leaseDevices acquires a cpu device (if restricted) and one device per
// capability the task declares, recording each in both the RunningState and
// the execution options map (spec.md §4.4 step 3).
func (t *TaskRunner) leaseDevices(ctx context.Context, claim contracts.Claim, state *RunningState, opts map[string]string) error {
	if t.restrictCPU {
		dev, err := t.devices.GetDevice(ctx, "cpu")
		if err != nil {
			return fmt.Errorf("lease cpu device: %w", err)
		}
		state.Devices["cpu"] = dev
		opts["cpu"] = dev.ID
	}
	for _, kind := range claim.Task.Capabilities.Devices {
		dev, err := t.devices.GetDevice(ctx, kind)
		if err != nil {
			return fmt.Errorf("lease %s device: %w", kind, err)
		}
		state.Devices[kind] = dev
		opts[kind] = dev.ID
	}
	return nil
}

// retireFailed handles a setup-stage failure (spec.md §4.4 step 8): release
// whatever devices were already leased, remove the entry if it somehow made
// it into the registry, log, and count the error.
func (t *TaskRunner) retireFailed(state *RunningState, cause error) {
	releaseAll(state.Devices)
	if existing := t.registry.Remove(state.TaskID, state.RunID); existing != nil {
		releaseAll(existing.Devices)
	}
	metrics.TaskErrors.Inc()
	t.monitor.Count("task.error", 1)
	t.log.Log("task setup failed", map[string]any{"task_id": state.TaskID, "run_id": state.RunID, "error": cause.Error()})
}

// retireCompleted handles the normal retirement path (spec.md §4.4 step 7):
// recordCapacity before splice, release devices, accumulate run time, remove
// from the registry, and bump lastKnownCapacity back up by one.
func (t *TaskRunner) retireCompleted(taskID string, runID int64, fallback *RunningState) {
	// recordCapacity happens-before the removal (pre-splice state).
	t.counters.recordCapacity(t.configured.Get(), t.registry.Size())

	entry := t.registry.Remove(taskID, runID)
	if entry == nil {
		t.log.Log("registry inconsistency: retirement target not found", map[string]any{"task_id": taskID, "run_id": runID})
		releaseAll(fallback.Devices)
		return
	}
	releaseAll(entry.Devices)
	t.counters.addRunTime(time.Since(entry.StartTime))
	t.counters.touch(time.Now())
	t.counters.addCapacity(1)
	metrics.RegistrySize.Set(float64(t.registry.Size()))
	metrics.TotalRunTimeSeconds.Set(t.counters.runTime().Seconds())
}

func releaseAll(devices map[string]contracts.Device) {
	for _, d := range devices {
		if d.Release != nil {
			d.Release()
		}
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
