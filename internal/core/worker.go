package core

import (
	"context"
	"errors"
	"time"

	"github.com/fluxforge/workercore/internal/contracts"
)

// Worker owns the shared Registry/Counters/ConfiguredCapacity and wires the
// per-cycle admission pipeline (CapacityGate -> ClaimAdmitter) behind
// ShutdownController's drain/abort gate, plus the background cancellation
// listener and capacity reporter.
type Worker struct {
	Registry   *Registry
	Counters   *Counters
	Configured *ConfiguredCapacity

	gate      *CapacityGate
	admitter  *ClaimAdmitter
	shutdown  *ShutdownController
	reporter  *CapacityReporter
	scheduler *PollScheduler

	devices contracts.DeviceManager
	log     contracts.Logger

	fatal chan error
}

// NewWorker assembles a Worker from its already-constructed components and
// binds the poll scheduler around its own cycle callback.
func NewWorker(
	registry *Registry,
	counters *Counters,
	configured *ConfiguredCapacity,
	gate *CapacityGate,
	admitter *ClaimAdmitter,
	shutdown *ShutdownController,
	reporter *CapacityReporter,
	devices contracts.DeviceManager,
	pollInterval time.Duration,
	log contracts.Logger,
) *Worker {
	w := &Worker{
		Registry:   registry,
		Counters:   counters,
		Configured: configured,
		gate:       gate,
		admitter:   admitter,
		shutdown:   shutdown,
		reporter:   reporter,
		devices:    devices,
		log:        log,
		fatal:      make(chan error, 1),
	}
	w.scheduler = NewPollScheduler(pollInterval, w.cycle, pollLogAdapter{log})
	shutdown.SetScheduler(w.scheduler)
	return w
}

// Fatal reports the one unrecoverable error the core can raise: a failed
// host shutdown during final shutdown (spec.md §7). cmd/worker selects on
// this alongside ctx.Done() to know when to exit with non-zero status.
func (w *Worker) Fatal() <-chan error { return w.fatal }

// pollLogAdapter satisfies the narrow Logger the PollScheduler needs from
// the richer contracts.Logger the rest of the worker uses.
type pollLogAdapter struct{ log contracts.Logger }

func (a pollLogAdapter) Log(msg string, fields map[string]any) { a.log.Log(msg, fields) }

// cycle is the PollScheduler's per-tick body: observe shutdown intent first
// (it may pause the scheduler and short-circuit admission), then evaluate
// capacity and admit claims (spec.md §4.1 step ordering).
func (w *Worker) cycle(ctx context.Context) error {
	triggered, err := w.shutdown.Observe(ctx)
	if err != nil {
		var fatal *FatalShutdownError
		if errors.As(err, &fatal) {
			select {
			case w.fatal <- err:
			default:
			}
			w.scheduler.Close()
			return nil
		}
		return err
	}
	if triggered || w.shutdown.Intent() == contracts.ShutdownImmediate {
		return nil
	}

	result := w.gate.Evaluate(ctx, w.Configured, w.Registry.Size(), w.Counters)
	if result.admissible == 0 {
		return nil
	}
	return w.admitter.Admit(ctx, w.devices, result.admissible)
}

// Start launches the background cancellation listener and capacity
// reporter, emits the boot lifecycle events, and starts the poll scheduler.
func (w *Worker) Start(ctx context.Context, cancelHandler *CancelHandler, cancelSource contracts.CancellationSource) {
	w.reporter.Boot(ctx)
	go cancelHandler.Run(ctx, cancelSource)
	go w.reporter.Run(ctx)
	w.scheduler.Start(ctx)
}

// Close stops the poll scheduler. Background goroutines started in Start
// exit on ctx cancellation.
func (w *Worker) Close() {
	w.scheduler.Close()
}
