// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	eventsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "savesync_events_dropped_total",
		Help: "Events a slow subscriber missed, by stream.",
	}, []string{"topic"})

	eventSubscribers = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "savesync_event_subscribers",
		Help: "Live subscriptions per event stream (SSE clients, coordinator, ...).",
	}, []string{"topic"})
)

func topicLabel(topic string) string {
	if topic == "" {
		return "unknown"
	}
	return topic
}

// RecordEventDrop counts one event not delivered to a full subscriber.
func RecordEventDrop(topic string) {
	eventsDropped.WithLabelValues(topicLabel(topic)).Inc()
}

// SetEventSubscribers reports the current subscription count of a stream.
func SetEventSubscribers(topic string, n int) {
	eventSubscribers.WithLabelValues(topicLabel(topic)).Set(float64(n))
}
