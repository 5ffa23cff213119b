package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type HandlerMetrics struct {
	RequestCount    *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	gatherer        prometheus.Gatherer
}

type ServiceMetrics struct {
	MethodCount    *prometheus.CounterVec
	MethodDuration *prometheus.HistogramVec
}

type RepositoryMetrics struct {
	QueryCount    *prometheus.CounterVec
	QueryDuration *prometheus.HistogramVec
}

// Registry bundles the three layers' collectors registered on one registry.
type Registry struct {
	Handler    *HandlerMetrics
	Service    *ServiceMetrics
	Repository *RepositoryMetrics
}

func NewRegistry(reg *prometheus.Registry) *Registry {
	return &Registry{
		Handler:    NewHandlerMetrics(reg, reg),
		Service:    NewServiceMetrics(reg),
		Repository: NewRepositoryMetrics(reg),
	}
}

func NewHandlerMetrics(reg prometheus.Registerer, gatherer prometheus.Gatherer) *HandlerMetrics {
	requestCount := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "handler_requests_total",
			Help: "Total number of HTTP requests handled by the handler layer.",
		},
		[]string{"method", "endpoint", "status"},
	)

	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "handler_request_duration_seconds",
			Help:    "Histogram of response latency for handler in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint", "status"},
	)

	reg.MustRegister(requestCount, requestDuration)

	return &HandlerMetrics{
		RequestCount:    requestCount,
		RequestDuration: requestDuration,
		gatherer:        gatherer,
	}
}

func NewServiceMetrics(reg prometheus.Registerer) *ServiceMetrics {
	methodCount := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "service_methods_total",
			Help: "Total number of service methods executed.",
		},
		[]string{"method", "status"},
	)

	methodDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "service_method_duration_seconds",
			Help:    "Histogram of service method execution duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "status"},
	)

	reg.MustRegister(methodCount, methodDuration)

	return &ServiceMetrics{
		MethodCount:    methodCount,
		MethodDuration: methodDuration,
	}
}

func NewRepositoryMetrics(reg prometheus.Registerer) *RepositoryMetrics {
	queryCount := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "repository_queries_total",
			Help: "Total number of database queries executed.",
		},
		[]string{"query", "status"},
	)

	queryDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "repository_query_duration_seconds",
			Help:    "Histogram of database query execution duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"query", "status"},
	)

	reg.MustRegister(queryCount, queryDuration)

	return &RepositoryMetrics{
		QueryCount:    queryCount,
		QueryDuration: queryDuration,
	}
}

// Observe is meant to be deferred: status is read when the call returns.
func (hm *HandlerMetrics) Observe(method, endpoint string, status *string, start time.Time) {
	duration := time.Since(start).Seconds()
	hm.RequestCount.WithLabelValues(method, endpoint, *status).Inc()
	hm.RequestDuration.WithLabelValues(method, endpoint, *status).Observe(duration)
}

func (sm *ServiceMetrics) Observe(method string, status *string, start time.Time) {
	duration := time.Since(start).Seconds()
	sm.MethodCount.WithLabelValues(method, *status).Inc()
	sm.MethodDuration.WithLabelValues(method, *status).Observe(duration)
}

func (rm *RepositoryMetrics) Observe(query string, status *string, start time.Time) {
	duration := time.Since(start).Seconds()
	rm.QueryCount.WithLabelValues(query, *status).Inc()
	rm.QueryDuration.WithLabelValues(query, *status).Observe(duration)
}

func (hm *HandlerMetrics) HTTPHandler() http.Handler {
	if hm.gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(hm.gatherer, promhttp.HandlerOpts{})
}
