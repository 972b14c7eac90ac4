package core

import (
	"context"
	"sync"
	"time"
)

// PollScheduler drives periodic poll ticks. It holds one pending timer at a
// time, supports pause/resume, and re-arms after each cycle completes or
// fails (spec.md §4.1). Grounded on control_plane/scheduler.go's worker()
// loop (ticker + select over ctx.Done, panic-recover around the body) and
// fluxforge/agent/main.go's capped-doubling backoff loop, reused here for
// the post-failure retry delay instead of the steady pollInterval.
type PollScheduler struct {
	cycle func(ctx context.Context) error
	log   Logger

	pollInterval time.Duration
	minBackoff   time.Duration
	maxBackoff   time.Duration

	mu      sync.Mutex
	paused  bool
	closed  bool
	timer   *time.Timer
	backoff time.Duration
}

// Logger is the minimal logging surface PollScheduler needs; satisfied by
// contracts.Logger through an adapter in the worker wiring.
type Logger interface {
	Log(msg string, fields map[string]any)
}

// NewPollScheduler builds a scheduler that invokes cycle on every tick.
func NewPollScheduler(pollInterval time.Duration, cycle func(ctx context.Context) error, log Logger) *PollScheduler {
	return &PollScheduler{
		cycle:        cycle,
		log:          log,
		pollInterval: pollInterval,
		minBackoff:   time.Second,
		maxBackoff:   30 * time.Second,
		backoff:      time.Second,
	}
}

// Start arms the first tick, which fires after 1ms so startup errors surface
// quickly (spec.md §4.1).
func (p *PollScheduler) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.arm(ctx, time.Millisecond)
}

// Pause clears the pending timer and prevents new ticks from being armed
// until Resume is called.
func (p *PollScheduler) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paused = true
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
}

// Resume clears the pause flag and re-arms the timer immediately.
func (p *PollScheduler) Resume(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.paused || p.closed {
		return
	}
	p.paused = false
	p.arm(ctx, time.Millisecond)
}

// Close stops the scheduler permanently.
func (p *PollScheduler) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
}

// IsPaused reports whether the scheduler is currently paused.
func (p *PollScheduler) IsPaused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.paused
}

// arm schedules the next tick after d. Caller must hold p.mu.
func (p *PollScheduler) arm(ctx context.Context, d time.Duration) {
	p.timer = time.AfterFunc(d, func() { p.tick(ctx) })
}

// tick runs one cycle and re-arms, absorbing any cycle error into a capped
// backoff instead of the steady pollInterval (spec.md §7 propagation
// policy: asynchronous failures are caught at the scheduler boundary and
// never prevent the next tick).
func (p *PollScheduler) tick(ctx context.Context) {
	p.mu.Lock()
	if p.closed || p.paused {
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				p.log.Log("poll cycle panicked", map[string]any{"panic": r})
			}
		}()
		return p.cycle(ctx)
	}()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed || p.paused {
		return
	}

	if err != nil {
		p.log.Log("poll cycle failed, backing off", map[string]any{"error": err.Error(), "backoff": p.backoff.String()})
		p.arm(ctx, p.backoff)
		p.backoff *= 2
		if p.backoff > p.maxBackoff {
			p.backoff = p.maxBackoff
		}
		return
	}

	p.backoff = p.minBackoff
	p.arm(ctx, p.pollInterval)
}
