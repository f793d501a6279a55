// Package metrics provides Prometheus metrics instrumentation for the
// reconciler, plus optional push delivery for batch runs.
package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector provides metrics recording interface.
// This allows components to record metrics without direct prometheus dependency.
type Collector interface {
	// Reconcile metrics
	RecordReconcileDuration(ctx context.Context, region, status string, duration time.Duration)
	RecordDesiredRoutes(ctx context.Context, region string, count int)
	RecordIngressRules(ctx context.Context, region string, count int)
	RecordDiffSize(ctx context.Context, region, action string, count int)
	RecordReconcileError(ctx context.Context, region, errorType string)

	// Cloudflare API metrics
	RecordAPICall(ctx context.Context, method, resource, status string, duration time.Duration)
	RecordAPIError(ctx context.Context, method, errorType string)
	RecordAPIRetry(ctx context.Context, method, resource string)

	// DNS metrics
	RecordDNSChange(ctx context.Context, region, action string)
}

// Diff action labels used with RecordDiffSize.
const (
	ActionCreate    = "create"
	ActionUpdate    = "update"
	ActionDelete    = "delete"
	ActionUnmanaged = "unmanaged"
)

// prometheusCollector implements Collector using Prometheus metrics.
type prometheusCollector struct {
	// Reconcile metrics
	reconcileDuration    *prometheus.HistogramVec
	desiredRoutes        *prometheus.GaugeVec
	ingressRulesTotal    *prometheus.GaugeVec
	diffSize             *prometheus.GaugeVec
	reconcileErrorsTotal *prometheus.CounterVec

	// Cloudflare API metrics
	apiDuration     *prometheus.HistogramVec
	apiCallsTotal   *prometheus.CounterVec
	apiErrorsTotal  *prometheus.CounterVec
	apiRetriesTotal *prometheus.CounterVec

	// DNS metrics
	dnsChangesTotal *prometheus.CounterVec
}

// NewCollector creates a new Prometheus metrics collector and registers metrics.
func NewCollector(reg prometheus.Registerer) Collector {
	c := &prometheusCollector{}
	c.initReconcileMetrics()
	c.initAPIMetrics()
	c.initDNSMetrics()
	c.register(reg)

	return c
}

// RecordReconcileDuration records the duration of one tunnel's reconcile pass.
func (c *prometheusCollector) RecordReconcileDuration(
	_ context.Context,
	region, status string,
	duration time.Duration,
) {
	c.reconcileDuration.WithLabelValues(region, status).Observe(duration.Seconds())
}

// RecordDesiredRoutes records the number of desired routes per region.
func (c *prometheusCollector) RecordDesiredRoutes(_ context.Context, region string, count int) {
	c.desiredRoutes.WithLabelValues(region).Set(float64(count))
}

// RecordIngressRules records the size of the rule list submitted per region.
func (c *prometheusCollector) RecordIngressRules(_ context.Context, region string, count int) {
	c.ingressRulesTotal.WithLabelValues(region).Set(float64(count))
}

// RecordDiffSize records how many hostnames one diff action touched.
func (c *prometheusCollector) RecordDiffSize(_ context.Context, region, action string, count int) {
	c.diffSize.WithLabelValues(region, action).Set(float64(count))
}

// RecordReconcileError records a reconcile failure by type.
func (c *prometheusCollector) RecordReconcileError(_ context.Context, region, errorType string) {
	c.reconcileErrorsTotal.WithLabelValues(region, errorType).Inc()
}

// RecordAPICall records a Cloudflare API call.
func (c *prometheusCollector) RecordAPICall(
	_ context.Context,
	method, resource, status string,
	duration time.Duration,
) {
	c.apiDuration.WithLabelValues(method, resource).Observe(duration.Seconds())
	c.apiCallsTotal.WithLabelValues(method, resource, status).Inc()
}

// RecordAPIError records a Cloudflare API error.
func (c *prometheusCollector) RecordAPIError(_ context.Context, method, errorType string) {
	c.apiErrorsTotal.WithLabelValues(method, errorType).Inc()
}

// RecordAPIRetry records one retried API attempt.
func (c *prometheusCollector) RecordAPIRetry(_ context.Context, method, resource string) {
	c.apiRetriesTotal.WithLabelValues(method, resource).Inc()
}

// RecordDNSChange records a committed DNS record change.
func (c *prometheusCollector) RecordDNSChange(_ context.Context, region, action string) {
	c.dnsChangesTotal.WithLabelValues(region, action).Inc()
}

func (c *prometheusCollector) initReconcileMetrics() {
	c.reconcileDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tunnelsync_reconcile_duration_seconds",
			Help:    "Duration of one tunnel's reconcile pass",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"region", "status"},
	)
	c.desiredRoutes = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tunnelsync_desired_routes",
			Help: "Number of desired routes per region",
		},
		[]string{"region"},
	)
	c.ingressRulesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tunnelsync_ingress_rules",
			Help: "Ingress rules submitted per region, catch-all included",
		},
		[]string{"region"},
	)
	c.diffSize = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tunnelsync_diff_hostnames",
			Help: "Hostnames touched by the last diff, per action",
		},
		[]string{"region", "action"},
	)
	c.reconcileErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tunnelsync_reconcile_errors_total",
			Help: "Total reconcile errors by type",
		},
		[]string{"region", "error_type"},
	)
}

func (c *prometheusCollector) initAPIMetrics() {
	c.apiDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tunnelsync_cloudflare_api_duration_seconds",
			Help:    "Duration of Cloudflare API calls",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "resource"},
	)
	c.apiCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tunnelsync_cloudflare_api_calls_total",
			Help: "Total Cloudflare API calls",
		},
		[]string{"method", "resource", "status"},
	)
	c.apiErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tunnelsync_cloudflare_api_errors_total",
			Help: "Total Cloudflare API errors by type",
		},
		[]string{"method", "error_type"},
	)
	c.apiRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tunnelsync_cloudflare_api_retries_total",
			Help: "Total retried Cloudflare API attempts",
		},
		[]string{"method", "resource"},
	)
}

func (c *prometheusCollector) initDNSMetrics() {
	c.dnsChangesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tunnelsync_dns_changes_total",
			Help: "Committed DNS record changes by action",
		},
		[]string{"region", "action"},
	)
}

func (c *prometheusCollector) register(reg prometheus.Registerer) {
	reg.MustRegister(
		c.reconcileDuration,
		c.desiredRoutes,
		c.ingressRulesTotal,
		c.diffSize,
		c.reconcileErrorsTotal,
		c.apiDuration,
		c.apiCallsTotal,
		c.apiErrorsTotal,
		c.apiRetriesTotal,
		c.dnsChangesTotal,
	)
}

// NoopCollector is a no-op implementation of Collector for testing.
type NoopCollector struct{}

// NewNoopCollector creates a new no-op collector.
func NewNoopCollector() *NoopCollector {
	return &NoopCollector{}
}

// RecordReconcileDuration is a no-op.
func (c *NoopCollector) RecordReconcileDuration(_ context.Context, _, _ string, _ time.Duration) {}

// RecordDesiredRoutes is a no-op.
func (c *NoopCollector) RecordDesiredRoutes(_ context.Context, _ string, _ int) {}

// RecordIngressRules is a no-op.
func (c *NoopCollector) RecordIngressRules(_ context.Context, _ string, _ int) {}

// RecordDiffSize is a no-op.
func (c *NoopCollector) RecordDiffSize(_ context.Context, _, _ string, _ int) {}

// RecordReconcileError is a no-op.
func (c *NoopCollector) RecordReconcileError(_ context.Context, _, _ string) {}

// RecordAPICall is a no-op.
func (c *NoopCollector) RecordAPICall(_ context.Context, _, _, _ string, _ time.Duration) {}

// RecordAPIError is a no-op.
func (c *NoopCollector) RecordAPIError(_ context.Context, _, _ string) {}

// RecordAPIRetry is a no-op.
func (c *NoopCollector) RecordAPIRetry(_ context.Context, _, _ string) {}

// RecordDNSChange is a no-op.
func (c *NoopCollector) RecordDNSChange(_ context.Context, _, _ string) {}
