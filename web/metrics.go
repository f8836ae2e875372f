package web

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "emucam_preview_clients",
		Help: "Connected preview viewers.",
	})

	metricPublished = promauto.NewCounter(prometheus.CounterOpts{
		Name: "emucam_preview_frames_published_total",
		Help: "JPEG frames published to the preview server.",
	})

	metricDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "emucam_preview_frames_dropped_total",
		Help: "Frames dropped because a viewer could not keep up.",
	})
)
