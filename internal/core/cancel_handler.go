package core

import (
	"context"

	"github.com/fluxforge/workercore/internal/contracts"
)

// CancelHandler consumes cancellation messages and signals the matching
// running job's handler (spec.md §4.6). Grounded on
// control_plane/coordination/agent_monitor.go's lookup-then-act pattern
// against a keyed map.
type CancelHandler struct {
	registry *Registry
	log      contracts.Logger
}

// NewCancelHandler wires a CancelHandler against the shared registry.
func NewCancelHandler(registry *Registry, log contracts.Logger) *CancelHandler {
	return &CancelHandler{registry: registry, log: log}
}

// Run drains messages from source until it is closed or ctx is done.
func (c *CancelHandler) Run(ctx context.Context, source contracts.CancellationSource) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-source.Messages():
			if !ok {
				return
			}
			c.handle(ctx, msg)
		}
	}
}

// handle processes one cancellation message: only "canceled" resolutions are
// actioned, everything else (including a still-pending resolution) is
// silently ignored per spec.md §4.6.
func (c *CancelHandler) handle(ctx context.Context, msg contracts.CancellationMessage) {
	if msg.Reason != "canceled" {
		return
	}

	state := c.registry.Find(msg.TaskID, msg.RunID)
	if state == nil {
		c.log.Log("cancel message for unknown run, ignoring", map[string]any{"task_id": msg.TaskID, "run_id": msg.RunID})
		return
	}

	if err := state.Handler.Cancel(ctx, "canceled"); err != nil {
		c.log.Log("handler cancel failed", map[string]any{"task_id": msg.TaskID, "run_id": msg.RunID, "error": err.Error()})
	}
	// The owning TaskRunner's retirement path removes the entry and
	// releases its leases once handler.Start() returns; release here too so
	// a slow-to-unwind handler does not hold devices longer than necessary.
	// Release is idempotent-safe, so the later retirement release is a
	// harmless no-op.
	releaseAll(state.Devices)
}
