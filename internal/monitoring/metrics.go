// Package monitoring exposes Prometheus counters for the acquisition
// pipeline.
package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PagesLoaded counts result pages fetched through the browser.
	PagesLoaded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "listingscout_pages_loaded_total",
		Help: "Number of search result pages loaded.",
	})

	// ListingsExtracted counts listing records produced by the extractor.
	ListingsExtracted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "listingscout_listings_extracted_total",
		Help: "Number of listing records extracted from result pages.",
	})

	// ExtractionAnomalies counts non-fatal per-field extraction failures.
	ExtractionAnomalies = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "listingscout_extraction_anomalies_total",
		Help: "Number of fields that were missing or unparseable, by field.",
	}, []string{"field"})

	// RetryAttempts counts transport-failure retries performed by the
	// page-level policy.
	RetryAttempts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "listingscout_retry_attempts_total",
		Help: "Number of retry attempts after transport failures.",
	})

	// KeywordsProcessed counts keywords by terminal outcome of a run.
	KeywordsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "listingscout_keywords_processed_total",
		Help: "Number of keywords processed, by outcome.",
	}, []string{"outcome"})

	// RecordsInserted counts listing rows actually stored.
	RecordsInserted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "listingscout_records_inserted_total",
		Help: "Number of listing records inserted into storage.",
	})

	// DedupSkips counts records skipped by the (keyword, item) dedup check.
	DedupSkips = promauto.NewCounter(prometheus.CounterOpts{
		Name: "listingscout_dedup_skips_total",
		Help: "Number of records skipped because they were already stored.",
	})
)
