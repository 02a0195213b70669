package broker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	publishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "access_log_published_total",
		Help: "Access records published to RabbitMQ by result.",
	}, []string{"result"})

	batchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "access_log_batches_total",
		Help: "Access record batches handled by the worker by result.",
	}, []string{"result"})

	rejectedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "access_log_rejected_total",
		Help: "Malformed or database-rejected access records dropped by the worker.",
	})
)
