package core

import (
	"context"
	"testing"

	"github.com/fluxforge/workercore/internal/contracts"
)

func TestClaimAdmitterLogsQueueEmptyDecision(t *testing.T) {
	registry := NewRegistry()
	counters := NewCounters(4, 0)
	configured := NewConfiguredCapacity(4)
	devices := &fakeDeviceManager{capacity: 4}
	log := &fakeLogger{}

	admitter := NewClaimAdmitter(&fakeQueue{}, fakeVolumeCache{}, fakeHandlerFactory{handler: newFakeHandler()}, registry, counters, configured, false, log, fakeMonitor{})

	if err := admitter.Admit(context.Background(), devices, 3); err != nil {
		t.Fatalf("Admit returned error: %v", err)
	}
	if !log.hasEventWithField("admissionDecision", "decision", "QUEUE_EMPTY") {
		t.Fatal("expected an admissionDecision QUEUE_EMPTY event when claimWork returns nothing")
	}
}

func TestClaimAdmitterLogsDispatchDecision(t *testing.T) {
	registry := NewRegistry()
	counters := NewCounters(4, 0)
	configured := NewConfiguredCapacity(4)
	devices := &fakeDeviceManager{capacity: 4}
	log := &fakeLogger{}
	handler := newFakeHandler()
	queue := &fakeQueue{claims: []contracts.Claim{newTestClaim("t1", 1)}}

	admitter := NewClaimAdmitter(queue, fakeVolumeCache{}, fakeHandlerFactory{handler: handler}, registry, counters, configured, false, log, fakeMonitor{})

	if err := admitter.Admit(context.Background(), devices, 1); err != nil {
		t.Fatalf("Admit returned error: %v", err)
	}
	if !log.hasEventWithField("admissionDecision", "decision", "DISPATCH") {
		t.Fatal("expected an admissionDecision DISPATCH event when claims are returned")
	}

	close(handler.release)
}
