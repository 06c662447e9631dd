// Package metrics exposes the handful of Prometheus gauges/counters that
// matter for a host supervising one child process: restart counts, RPC
// call latency, and the live supervisor state. Served by httpapi on
// /metrics via promhttp.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ChildRestarts counts every time the supervisor respawns the child
// after an unexpected exit (not counting the initial Start()).
var ChildRestarts = promauto.NewCounter(prometheus.CounterOpts{
	Name: "pryx_child_restarts_total",
	Help: "Total number of times the supervisor has restarted the child process.",
})

// ChildCrashed is set to 1 when the supervisor has given up after
// exceeding MaxRestarts, 0 otherwise.
var ChildCrashed = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "pryx_child_crashed",
	Help: "1 if the supervisor has entered the Crashed state, 0 otherwise.",
})

// RPCCallDuration observes the latency of outbound host->child RPC
// calls, labeled by method and outcome.
var RPCCallDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "pryx_rpc_call_duration_seconds",
	Help:    "Latency of outbound JSON-RPC calls from the host to the child.",
	Buckets: prometheus.DefBuckets,
}, []string{"method", "outcome"})

// StateGauge reports the current supervisor state as a label-valued
// gauge (1 for the active state, 0 for the rest), so the state can be
// graphed without assigning an arbitrary numeric ordering to the enum.
var StateGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Name: "pryx_supervisor_state",
	Help: "1 for the supervisor's current state, 0 for all others.",
}, []string{"state"})

var knownStates = []string{"Stopped", "Starting", "Running", "Stopping", "Restarting", "Crashed"}

// SetState updates StateGauge so exactly one state label reads 1.
func SetState(current string) {
	for _, s := range knownStates {
		v := 0.0
		if s == current {
			v = 1.0
		}
		StateGauge.WithLabelValues(s).Set(v)
	}
}
