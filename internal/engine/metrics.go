// Package engine — Prometheus collectors.
//
// Domain-level metrics for the distribution engine: crawl run outcomes,
// generated alerts by category, and the current catalog size. Label
// cardinality is fixed and small. All collectors are safe for concurrent use.
package engine

import "github.com/prometheus/client_golang/prometheus"

var (
	// crawlRuns counts crawl executions by outcome (ok, error, skipped).
	crawlRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fallcentalert_crawl_runs_total",
			Help: "Total number of crawl runs by outcome.",
		},
		[]string{"outcome"},
	)

	// alertsGenerated counts minted alerts by category.
	alertsGenerated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fallcentalert_alerts_generated_total",
			Help: "Total number of alerts generated, by category.",
		},
		[]string{"category"},
	)

	// catalogSize gauges the number of products currently retained.
	catalogSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "fallcentalert_catalog_products",
			Help: "Current number of products in the catalog.",
		},
	)
)

func init() {
	prometheus.MustRegister(crawlRuns, alertsGenerated, catalogSize)
}
