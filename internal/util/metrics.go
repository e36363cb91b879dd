package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	QuotesCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quotes_created_total",
		Help: "Total number of quote drafts created",
	})

	QuotesSubmittedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quotes_submitted_total",
		Help: "Total number of quotes submitted by clients",
	})

	QuotesFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quotes_failed_total",
		Help: "Total number of failed quote creations",
	}, []string{"reason"})

	QuoteTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quote_transitions_total",
		Help: "Total number of successful status transitions",
	}, []string{"to_status"})

	QuoteTransitionsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quote_transitions_rejected_total",
		Help: "Total number of rejected status transitions",
	}, []string{"reason"})

	QuoteTransitionConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quote_transition_conflicts_total",
		Help: "Total number of compare-and-set conflicts on status writes",
	})

	QuotesExpiredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quotes_expired_total",
		Help: "Total number of quotes expired by the sweeper",
	})

	PricingResolveLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pricing_resolve_latency_seconds",
		Help:    "Latency of pricing a full selection set",
		Buckets: prometheus.DefBuckets,
	})

	CatalogCacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_cache_requests_total",
		Help: "Catalog snapshot cache requests",
	}, []string{"result"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
