package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SyncRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kaspi_sync_runs_total",
		Help: "Total number of sync runs by tier and result",
	}, []string{"tier", "result"})

	OrdersImportedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kaspi_orders_imported_total",
		Help: "Total number of orders upserted from the marketplace",
	}, []string{"result"})

	OrdersSkippedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kaspi_orders_skipped_total",
		Help: "Total number of payloads skipped by tier filters",
	}, []string{"reason"})

	ItemsEnrichedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kaspi_items_enriched_total",
		Help: "Total number of order items enriched with product detail",
	})

	EnrichmentSkippedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kaspi_enrichment_skipped_total",
		Help: "Total number of product fetches avoided by the presence check",
	})

	EnrichmentFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kaspi_enrichment_failures_total",
		Help: "Total number of product fetches that failed and were skipped",
	})

	StockDeductionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "warehouse_stock_deductions_total",
		Help: "Total number of stock deductions from order items",
	})

	SupplyOrdersCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "supply_orders_created_total",
		Help: "Total number of auto-created replenishment orders",
	})

	FinanceRecomputesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "order_finance_recomputes_total",
		Help: "Total number of finance snapshot recomputations",
	})

	KaspiRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "kaspi_request_duration_seconds",
		Help:    "Latency of marketplace API requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"endpoint"})

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
