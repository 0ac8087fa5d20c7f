package httpserver

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var (
	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "execgw_http_requests_total",
		Help: "HTTP requests served, by route pattern and status code",
	}, []string{"route", "code"})

	RequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "execgw_http_request_duration_seconds",
		Help:    "HTTP request latency by route pattern",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})

	OrdersAcceptedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "execgw_http_orders_accepted_total",
		Help: "Orders accepted by the intake endpoint, by lane",
	}, []string{"lane"})
)
