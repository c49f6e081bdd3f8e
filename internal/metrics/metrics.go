// Package metrics holds Prometheus instruments used across keel.  All
// collectors are registered with the global registry, so mounting
// promhttp.Handler() on /metrics is enough to expose them.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	QueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keel_queries_total",
			Help: "Statements executed by the query builder, by operation.",
		}, []string{"op"})

	QueryErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keel_query_errors_total",
			Help: "Statements that failed in the store, by operation.",
		}, []string{"op"})

	QueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "keel_query_duration_seconds",
			Help:    "Statement latency, by operation.",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"})

	QueueDispatchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keel_queue_dispatch_total",
			Help: "Payloads sent to a queue handle, by kind (job or event).",
		}, []string{"kind"})

	QueueMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keel_queue_messages_total",
			Help: "Delivered queue messages, by result (ack or retry).",
		}, []string{"result"})

	ActiveTenants = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "keel_active_tenants",
			Help: "Tenant contexts currently cached in memory.",
		})

	TenantLoadTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "keel_tenant_load_total",
			Help: "Cumulative number of tenant contexts built.",
		})

	TenantLoadErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "keel_tenant_load_errors_total",
			Help: "Cumulative number of tenant load errors.",
		})

	TenantEvictTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "keel_tenant_evict_total",
			Help: "Cumulative number of tenant contexts evicted from the cache.",
		})

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keel_http_requests_total",
			Help: "Requests served inside a context, by route pattern and status.",
		}, []string{"route", "status"})

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "keel_http_request_duration_seconds",
			Help:    "Request latency, by route pattern.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"})
)

func init() {
	prometheus.MustRegister(
		QueriesTotal,
		QueryErrorsTotal,
		QueryDuration,
		QueueDispatchTotal,
		QueueMessagesTotal,
		ActiveTenants,
		TenantLoadTotal,
		TenantLoadErrorsTotal,
		TenantEvictTotal,
		HTTPRequestsTotal,
		HTTPRequestDuration,
	)
}
