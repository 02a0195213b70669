package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	accessRecordsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "access_records_total",
		Help: "Access log records handed to the sink, by result.",
	}, []string{"result"})

	accessQueueOverflowTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "access_records_overflow_total",
		Help: "Access log records written outside the worker pool because the queue was full.",
	})

	redirectsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "redirects_total",
		Help: "Redirect decisions by entity kind and outcome.",
	}, []string{"kind", "outcome"})

	targetCacheTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "target_cache_requests_total",
		Help: "Redirect target cache lookups by result.",
	}, []string{"result"})

	qrImageCacheTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "qr_image_cache_requests_total",
		Help: "Rendered QR image cache lookups by result.",
	}, []string{"result"})
)
