package transfer

import "github.com/prometheus/client_golang/prometheus"

// metrics are the per-process counters and gauges a scrape endpoint exposes
// for the transfer engine; registered once at package init and updated by
// Engine.runTask as tasks complete.
var (
	tasksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "datalad",
			Subsystem: "transfer",
			Name:      "tasks_total",
			Help:      "Transfer tasks completed, by terminal status.",
		},
		[]string{"status"},
	)
	bytesTransferred = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "datalad",
			Subsystem: "transfer",
			Name:      "bytes_total",
			Help:      "Bytes moved across all completed transfer tasks.",
		},
	)
	workersInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "datalad",
			Subsystem: "transfer",
			Name:      "workers_in_flight",
			Help:      "Worker-pool slots currently held by a running task.",
		},
	)
)

func init() {
	prometheus.MustRegister(tasksTotal, bytesTransferred, workersInFlight)
}

// recordResult updates the status counter for a completed task.
func recordResult(status TaskStatus) {
	tasksTotal.WithLabelValues(string(status)).Inc()
}

// recordProgress adds newly-reported bytes to the running transfer total;
// callers pass only the delta since the previous report for the same task.
func recordProgress(deltaBytes int64) {
	if deltaBytes > 0 {
		bytesTransferred.Add(float64(deltaBytes))
	}
}

// Registry exposes the transfer engine's collectors for a caller that wants
// to serve them on its own /metrics endpoint rather than the default
// prometheus.DefaultRegisterer.
func Registry() []prometheus.Collector {
	return []prometheus.Collector{tasksTotal, bytesTransferred, workersInFlight}
}
