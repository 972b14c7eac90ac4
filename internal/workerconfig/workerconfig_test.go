package workerconfig

import (
	"os"
	"testing"
	"time"
)

func TestGetenvDurationFallsBackOnInvalidValue(t *testing.T) {
	os.Setenv("WC_TEST_DURATION", "not-a-duration")
	defer os.Unsetenv("WC_TEST_DURATION")

	got := getenvDuration("WC_TEST_DURATION", 5*time.Second)
	if got != 5*time.Second {
		t.Fatalf("getenvDuration() = %v, want fallback 5s", got)
	}
}

func TestGetenvDurationParsesValidValue(t *testing.T) {
	os.Setenv("WC_TEST_DURATION", "10s")
	defer os.Unsetenv("WC_TEST_DURATION")

	got := getenvDuration("WC_TEST_DURATION", 5*time.Second)
	if got != 10*time.Second {
		t.Fatalf("getenvDuration() = %v, want 10s", got)
	}
}

func TestGetOrCreateNodeIDPersistsAcrossCalls(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	first, err := getOrCreateNodeID()
	if err != nil {
		t.Fatalf("getOrCreateNodeID() error: %v", err)
	}
	second, err := getOrCreateNodeID()
	if err != nil {
		t.Fatalf("getOrCreateNodeID() error on second call: %v", err)
	}
	if first != second {
		t.Fatalf("node id changed across calls: %q != %q", first, second)
	}
}
