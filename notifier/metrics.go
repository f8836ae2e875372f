package notifier

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "emucam_frames_dispatched_total",
		Help: "Raw frames run through callback dispatch.",
	})

	metricNotifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "emucam_notifications_total",
		Help: "Client notifications delivered, by message kind.",
	}, []string{"kind"})

	metricAllocFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "emucam_allocation_failures_total",
		Help: "Delivery buffers the client allocator failed to produce.",
	})

	metricCompressFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "emucam_compression_failures_total",
		Help: "Still captures whose compression step failed.",
	})

	metricOutstanding = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "emucam_outstanding_recording_buffers",
		Help: "Recording buffers delivered to the client and not yet released.",
	})
)
