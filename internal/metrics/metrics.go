package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Pipeline counters and timings for the enhancement worker. Registered on the
// default registry and served by the API's /metrics endpoint.
var (
	MessagesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "enhancement_messages_processed_total",
		Help: "Queue messages handled to completion, by outcome.",
	}, []string{"outcome"})

	PhotosEnhanced = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "enhancement_photos_total",
		Help: "Photos processed by the worker, by tool and outcome.",
	}, []string{"tool", "outcome"})

	EnhanceDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "enhancement_duration_seconds",
		Help:    "Wall time for one photo enhancement including provider retries.",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
	}, []string{"tool"})

	QueueRedeliveries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "enhancement_queue_redeliveries_total",
		Help: "Messages delivered more than once.",
	})
)
