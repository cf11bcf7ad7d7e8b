// SPDX-License-Identifier: MIT
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	lifecycleTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "savesync_lifecycle_transitions_total",
		Help: "Lifecycle requests by source state, target state, action and result",
	}, []string{"from", "to", "action", "result"})

	watchdogTimeouts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "savesync_lifecycle_watchdog_timeouts_total",
		Help: "Watchdog-forced resets by the state that was stuck",
	}, []string{"state"})

	sessionState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "savesync_session_state",
		Help: "Current session state (1 for the active state, 0 otherwise)",
	}, []string{"state"})

	sessionFlows = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "savesync_session_flows_total",
		Help: "Coordinator flows by flow name and outcome",
	}, []string{"flow", "outcome"})

	engineCallDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "savesync_engine_call_duration_seconds",
		Help:    "Duration of serialized engine calls",
		Buckets: []float64{0.005, 0.025, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"call"})
)

// RecordTransition counts one lifecycle request.
func RecordTransition(from, to, action, result string) {
	lifecycleTransitions.WithLabelValues(from, to, action, result).Inc()
}

// RecordWatchdogTimeout counts a watchdog-forced reset.
func RecordWatchdogTimeout(state string) {
	watchdogTimeouts.WithLabelValues(state).Inc()
}

// SetSessionState flips the state gauge so exactly one label reads 1.
func SetSessionState(current string, all []string) {
	for _, s := range all {
		v := 0.0
		if s == current {
			v = 1
		}
		sessionState.WithLabelValues(s).Set(v)
	}
}

// RecordSessionFlow counts a coordinator flow outcome (success|failure|queued|rejected).
func RecordSessionFlow(flow, outcome string) {
	sessionFlows.WithLabelValues(flow, outcome).Inc()
}

// ObserveEngineCall records the duration of one engine call in seconds.
func ObserveEngineCall(call string, seconds float64) {
	engineCallDuration.WithLabelValues(call).Observe(seconds)
}
