// Package devicesim is a reference contracts.DeviceManager leasing
// synthetic devices from a bounded, kind-keyed pool. The teacher has no
// device-leasing concept to ground this on; its shape follows the
// vocabulary spec.md itself uses (kind, lease, release) kept intentionally
// minimal since it exists to exercise the core's device-gating path, not to
// model a real scheduler's device backend.
package devicesim

import (
	"context"
	"fmt"
	"sync"

	"github.com/fluxforge/workercore/internal/contracts"
)

// Manager leases devices out of fixed-size, kind-keyed pools.
type Manager struct {
	mu      sync.Mutex
	supply  map[string]int
	leased  map[string]int
	counter int
}

// New returns a Manager with the given per-kind supply, e.g.
// {"cpu": 8, "gpu": 2}.
func New(supply map[string]int) *Manager {
	cp := make(map[string]int, len(supply))
	for k, v := range supply {
		cp[k] = v
	}
	return &Manager{supply: cp, leased: make(map[string]int)}
}

// GetAvailableCapacity returns the minimum free slots across every kind in
// the pool, since a claim may need a device of any configured kind.
func (m *Manager) GetAvailableCapacity(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	min := -1
	for kind, total := range m.supply {
		free := total - m.leased[kind]
		if min == -1 || free < min {
			min = free
		}
	}
	if min < 0 {
		min = 0
	}
	return min, nil
}

// GetDevice leases one device of kind, or errors if the pool is exhausted.
// Release is idempotent: a second call is a harmless no-op, matching
// CancelHandler's documented early-release-then-retire double-call.
func (m *Manager) GetDevice(ctx context.Context, kind string) (contracts.Device, error) {
	m.mu.Lock()
	if m.leased[kind] >= m.supply[kind] {
		m.mu.Unlock()
		return contracts.Device{}, fmt.Errorf("no %s devices available", kind)
	}
	m.leased[kind]++
	m.counter++
	id := fmt.Sprintf("%s-%d", kind, m.counter)
	m.mu.Unlock()

	var once sync.Once
	release := func() {
		once.Do(func() {
			m.mu.Lock()
			m.leased[kind]--
			m.mu.Unlock()
		})
	}
	return contracts.Device{ID: id, Release: release}, nil
}
