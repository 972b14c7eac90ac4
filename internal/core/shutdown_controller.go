package core

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/fluxforge/workercore/internal/contracts"
	"github.com/fluxforge/workercore/internal/metrics"
)

// FatalShutdownError wraps a host controller shutdown failure: the one
// unrecoverable error the core can raise (spec.md §7). Callers that see
// errors.As match against this type, rather than treating every Observe
// error the same as a transient ShouldExit probe failure.
type FatalShutdownError struct{ Cause error }

func (e *FatalShutdownError) Error() string {
	return fmt.Sprintf("host shutdown failed: %s", e.Cause.Error())
}

func (e *FatalShutdownError) Unwrap() error { return e.Cause }

// ShutdownController owns ShutdownIntent and drives graceful drain or
// immediate abort (spec.md §4.7). Grounded on
// control_plane/coordination/leader.go's callback-on-transition wiring
// (main.go's elector.SetCallbacks "on elected"/"on lost" pair becomes "on
// graceful"/"on immediate" here) and scheduler.Scheduler.Stop()'s pattern
// of flipping an active flag and dropping the queue.
type ShutdownController struct {
	manager    contracts.ShutdownManager
	host       contracts.HostController
	registry   *Registry
	configured *ConfiguredCapacity
	scheduler  *PollScheduler
	log        contracts.Logger

	intent contracts.ShutdownIntent
}

// NewShutdownController wires a ShutdownController against the shared
// registry and configured-capacity cell. The poll scheduler it must pause
// on final shutdown is supplied afterward via SetScheduler, since the
// scheduler's own construction closes over the Worker's cycle callback,
// which in turn depends on this controller.
func NewShutdownController(manager contracts.ShutdownManager, host contracts.HostController, registry *Registry, configured *ConfiguredCapacity, log contracts.Logger) *ShutdownController {
	return &ShutdownController{
		manager:    manager,
		host:       host,
		registry:   registry,
		configured: configured,
		log:        log,
	}
}

// SetScheduler completes construction by supplying the poll scheduler this
// controller pauses during final shutdown.
func (s *ShutdownController) SetScheduler(scheduler *PollScheduler) {
	s.scheduler = scheduler
}

// Observe reports idle/working to the shutdown manager and inspects its
// intent, driving graceful drain or immediate abort as needed. It returns
// true if final shutdown was triggered this call.
func (s *ShutdownController) Observe(ctx context.Context) (bool, error) {
	if s.registry.Size() == 0 {
		s.manager.OnIdle(ctx)
	} else {
		s.manager.OnWorking(ctx)
	}

	next, err := s.manager.ShouldExit(ctx)
	if err != nil {
		return false, err
	}
	// ShutdownIntent is monotonic: never revert to a lower severity even if
	// the manager's view temporarily regresses.
	if next.Severity() > s.intent.Severity() {
		s.intent = next
	}

	switch s.intent {
	case contracts.ShutdownImmediate:
		return s.abortAndShutdown(ctx)
	case contracts.ShutdownGraceful:
		s.configured.Set(0)
		if s.registry.Size() == 0 {
			return s.finalShutdown(ctx)
		}
	}
	return false, nil
}

// abortAndShutdown implements the immediate path: abort every running
// handler concurrently, release leases, busy-wait for drain, then shut down.
func (s *ShutdownController) abortAndShutdown(ctx context.Context) (bool, error) {
	metrics.SpotTermination.Inc()

	states := s.registry.Snapshot()
	g, gctx := errgroup.WithContext(context.Background())
	for _, st := range states {
		st := st
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					s.log.Log("handler abort panicked", map[string]any{"task_id": st.TaskID, "run_id": st.RunID, "panic": fmt.Sprintf("%v", r)})
				}
			}()
			if err := st.Handler.Abort(gctx, "worker-shutdown"); err != nil {
				s.log.Log("handler abort failed, swallowing (queue will expire the claim)", map[string]any{
					"task_id": st.TaskID, "run_id": st.RunID, "error": err.Error(),
				})
			}
			releaseAll(st.Devices)
			return nil
		})
	}
	_ = g.Wait()

	for s.registry.Size() > 0 {
		time.Sleep(100 * time.Millisecond)
	}

	return s.finalShutdown(ctx)
}

// finalShutdown pauses the scheduler, zeroes capacity defensively, emits
// the terminal lifecycle events, and delegates to the host controller. A
// host shutdown failure is the one fatal error in the core (spec.md §7) and
// is returned rather than swallowed.
func (s *ShutdownController) finalShutdown(ctx context.Context) (bool, error) {
	s.scheduler.Pause()
	s.configured.Set(0)
	s.log.LogEvent("instanceShutdown", nil)
	s.log.LogEvent("exit", nil)
	if err := s.host.Shutdown(ctx); err != nil {
		return true, &FatalShutdownError{Cause: err}
	}
	return true, nil
}

// Intent returns the current shutdown intent (for tests/observability).
func (s *ShutdownController) Intent() contracts.ShutdownIntent { return s.intent }
