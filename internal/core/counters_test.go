package core

import "testing"

func TestRecordCapacityComputesIdleFromConfiguredAndRegistrySize(t *testing.T) {
	c := NewCounters(4, 0)

	snap := c.recordCapacity(4, 1)
	if snap.Busy != 1 || snap.Idle != 3 {
		t.Fatalf("snapshot = %+v, want Busy=1 Idle=3", snap)
	}

	if got := c.lastSnapshot(); got != snap {
		t.Fatalf("lastSnapshot() = %+v, want %+v", got, snap)
	}
}

func TestRecordCapacityClampsIdleAtZero(t *testing.T) {
	c := NewCounters(2, 0)
	snap := c.recordCapacity(2, 5)
	if snap.Idle != 0 {
		t.Fatalf("Idle = %d, want 0 when registry exceeds configured capacity", snap.Idle)
	}
	if snap.Busy != 5 {
		t.Fatalf("Busy = %d, want 5 (raw registry size, not clamped)", snap.Busy)
	}
}

func TestCountersCapacityAccounting(t *testing.T) {
	c := NewCounters(4, 0)
	c.setCapacity(4)
	c.addCapacity(-1)
	if c.capacity() != 3 {
		t.Fatalf("capacity() = %d, want 3", c.capacity())
	}
	c.addCapacity(1)
	if c.capacity() != 4 {
		t.Fatalf("capacity() = %d, want 4", c.capacity())
	}
}

func TestConfiguredCapacityGetSet(t *testing.T) {
	cc := NewConfiguredCapacity(4)
	if cc.Get() != 4 {
		t.Fatalf("Get() = %d, want 4", cc.Get())
	}
	cc.Set(0)
	if cc.Get() != 0 {
		t.Fatalf("Get() after Set(0) = %d, want 0", cc.Get())
	}
}
