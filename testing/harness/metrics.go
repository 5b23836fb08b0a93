package harness

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	acquisitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "testkit_acquisitions_total",
		Help: "The total number of container acquisitions by image and result",
	}, []string{
		"image",
		"result",
	})

	readyDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "testkit_ready_seconds",
		Help:    "Time from start request until the container was ready",
		Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
	}, []string{
		"image",
	})

	releases = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "testkit_releases_total",
		Help: "The total number of container releases by result",
	}, []string{
		"result",
	})
)
