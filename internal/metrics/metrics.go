package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Counters exposed on /metrics alongside the default collectors.
var (
	ScansTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "qrattend_scans_total",
		Help: "Scan attempts by outcome.",
	}, []string{"outcome"})

	FramesDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "qrattend_frames_dropped_total",
		Help: "Camera frames dropped while a scan was in flight.",
	})

	IssuedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "qrattend_qr_issued_total",
		Help: "QR codes issued.",
	})

	ExportsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "qrattend_exports_total",
		Help: "Exports served, by delivered format and fallback flag.",
	}, []string{"format", "fallback"})
)
