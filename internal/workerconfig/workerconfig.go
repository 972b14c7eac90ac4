// Package workerconfig loads worker configuration from the environment and
// persists a NodeID identity across restarts.
package workerconfig

import (
	"crypto/rand"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config is the worker's resolved runtime configuration.
type Config struct {
	NodeID             string
	QueueAddr          string
	PollInterval       time.Duration
	ConfiguredCapacity int
	RestrictCPU        bool
	DiskVolume         string
	DiskThresholdBytes uint64
	MetricsAddr        string
	ArchiveDSN         string
}

// Load reads configuration from the environment, falling back to the
// defaults a single-node deployment needs to start without any env set.
func Load() (*Config, error) {
	nodeID, err := getOrCreateNodeID()
	if err != nil {
		return nil, fmt.Errorf("initialize node id: %w", err)
	}

	return &Config{
		NodeID:             nodeID,
		QueueAddr:          getenv("WORKERCORE_QUEUE_ADDR", "localhost:6379"),
		PollInterval:       getenvDuration("WORKERCORE_POLL_INTERVAL", 5*time.Second),
		ConfiguredCapacity: getenvInt("WORKERCORE_CAPACITY", 4),
		RestrictCPU:        getenvBool("WORKERCORE_RESTRICT_CPU", true),
		DiskVolume:         getenv("WORKERCORE_DISK_VOLUME", "/"),
		DiskThresholdBytes: getenvUint64("WORKERCORE_DISK_THRESHOLD_BYTES", 1<<30),
		MetricsAddr:        getenv("WORKERCORE_METRICS_ADDR", ":9100"),
		ArchiveDSN:         getenv("WORKERCORE_ARCHIVE_DSN", ""),
	}, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func getenvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getenvUint64(key string, fallback uint64) uint64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return fallback
	}
	return n
}

func getenvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

// getOrCreateNodeID retrieves the persisted worker identity or generates and
// persists a new one under ~/.workercore/node_id.
func getOrCreateNodeID() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get user home directory: %w", err)
	}

	configDir := filepath.Join(homeDir, ".workercore")
	if err := os.MkdirAll(configDir, 0700); err != nil {
		return "", fmt.Errorf("create config directory %s: %w", configDir, err)
	}

	nodeIDPath := filepath.Join(configDir, "node_id")

	if data, err := os.ReadFile(nodeIDPath); err == nil {
		if id := strings.TrimSpace(string(data)); id != "" {
			return id, nil
		}
	}

	newID := generateUUID()
	if err := os.WriteFile(nodeIDPath, []byte(newID), 0600); err != nil {
		return "", fmt.Errorf("save node id to %s: %w", nodeIDPath, err)
	}
	return newID, nil
}

func generateUUID() string {
	b := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		panic(fmt.Sprintf("generate random uuid: %v", err))
	}
	b[8] = b[8]&0x3f | 0x80
	b[6] = b[6]&0x0f | 0x40
	return fmt.Sprintf("%x-%x-%x-%x-%x", b[0:4], b[4:6], b[6:8], b[8:10], b[10:])
}
