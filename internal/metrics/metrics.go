// Package metrics declares the worker core's prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// LastKnownCapacity tracks the most recently computed admissible slots.
	LastKnownCapacity = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "workercore_last_known_capacity",
		Help: "Most recently computed admissible capacity",
	})

	// RegistrySize tracks the current number of in-flight jobs.
	RegistrySize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "workercore_registry_size",
		Help: "Current number of running jobs tracked in the registry",
	})

	// TaskErrors counts failed task executions.
	TaskErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "workercore_task_errors_total",
		Help: "Total number of task executions that failed",
	})

	// TaskCompletions counts successful task executions.
	TaskCompletions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "workercore_task_completions_total",
		Help: "Total number of task executions that completed successfully",
	})

	// TotalRunTimeSeconds tracks accumulated run time of completed jobs.
	TotalRunTimeSeconds = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "workercore_total_run_time_seconds",
		Help: "Accumulated run time of completed jobs, in seconds",
	})

	// TimeToFirstClaimSeconds observes the delay between task creation and
	// its first claimed run.
	TimeToFirstClaimSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "workercore_time_to_first_claim_seconds",
		Help:    "Delay between task creation and its first claimed run",
		Buckets: prometheus.DefBuckets,
	})

	// SpotTermination counts immediate-shutdown events observed.
	SpotTermination = promauto.NewCounter(prometheus.CounterOpts{
		Name: "workercore_spot_termination_total",
		Help: "Total number of immediate shutdown intents observed",
	})

	// CapacityBusySeconds / CapacityIdleSeconds are the weighted integrals
	// from CapacityReporter (spec.md §4.8).
	CapacityBusySeconds = promauto.NewCounter(prometheus.CounterOpts{
		Name: "workercore_capacity_busy_seconds_total",
		Help: "Busy-slot-seconds accumulated across capacity snapshots",
	})
	CapacityIdleSeconds = promauto.NewCounter(prometheus.CounterOpts{
		Name: "workercore_capacity_idle_seconds_total",
		Help: "Idle-slot-seconds accumulated across capacity snapshots",
	})

	// RunningThreshold counts seconds spent at/above each busy/idle
	// threshold k in {0,1,2,3,4,6,8}, labeled by relation (eq|ge) and side
	// (busy|idle).
	RunningThreshold = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "workercore_running_threshold_seconds_total",
		Help: "Seconds spent at or above each busy/idle capacity threshold",
	}, []string{"side", "relation", "k"})

	// TotalEfficiency is the billing-cycle efficiency gauge (spec.md §4.8).
	TotalEfficiency = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "workercore_total_efficiency_percent",
		Help: "Accumulated run time over configured capacity x billing uptime",
	})

	// AdmissionDecisions counts each admission outcome by label: dispatch,
	// queue_empty, disk_pressure, device_shortfall, or no_capacity.
	AdmissionDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "workercore_admission_decisions_total",
		Help: "Total number of admission decisions made, by outcome",
	}, []string{"decision"})

	// DeviceCapacityAdjusted counts transitions into a state where
	// deviceCapacity clamps runningCapacity down; consecutive cycles in the
	// same shortfall count once (spec.md §4.2 informational record).
	DeviceCapacityAdjusted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "workercore_device_capacity_adjusted_total",
		Help: "Total number of transitions into device capacity reducing admissible slots",
	})
)
