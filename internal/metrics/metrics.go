// internal/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	DownloadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vendora_downloads_total",
		Help: "Download authorization outcomes.",
	}, []string{"result"})

	DownloadRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vendora_download_rejections_total",
		Help: "Download rejections by error code.",
	}, []string{"code"})

	ActivationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vendora_license_activations_total",
		Help: "License activation outcomes.",
	}, []string{"result"})

	DeliveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vendora_deliveries_total",
		Help: "Digital delivery fulfillment outcomes.",
	}, []string{"result"})
)
