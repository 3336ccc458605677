// Package metrics exposes Prometheus collectors for the catalog crawler.
package metrics

import (
	"net/http"
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	pagesFetchedTotal      *prometheus.CounterVec
	sessionResetsTotal     prometheus.Counter
	productsExtractedTotal prometheus.Counter
	productsAcceptedTotal  prometheus.Counter
	productsRejectedTotal  prometheus.Counter
	productsDiscardedTotal prometheus.Counter
	nutritionCompleteness  *prometheus.CounterVec

	once sync.Once
)

// Init registers the collectors. Safe to call multiple times.
func Init() {
	once.Do(func() {
		pagesFetchedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catalog_pages_fetched_total",
				Help: "Total pages fetched, labeled by HTTP status class.",
			},
			[]string{"status_class"},
		)
		sessionResetsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "catalog_session_resets_total",
				Help: "Total session discards after transport failures.",
			},
		)
		productsExtractedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "catalog_products_extracted_total",
				Help: "Total detail pages that yielded a usable record.",
			},
		)
		productsAcceptedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "catalog_products_accepted_total",
				Help: "Total records accepted by the classifier.",
			},
		)
		productsRejectedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "catalog_products_rejected_total",
				Help: "Total records rejected by the classifier.",
			},
		)
		productsDiscardedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "catalog_products_discarded_total",
				Help: "Total detail pages discarded as unusable.",
			},
		)
		nutritionCompleteness = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catalog_nutrition_fields_filled_total",
				Help: "Accepted records by number of filled nutrition fields.",
			},
			[]string{"filled"},
		)
	})
}

// PageFetched records one fetched page by status class ("2xx", "4xx", ...).
func PageFetched(statusCode int) {
	if pagesFetchedTotal == nil {
		return
	}
	class := strconv.Itoa(statusCode/100) + "xx"
	pagesFetchedTotal.WithLabelValues(class).Inc()
}

// SessionReset records one session discard.
func SessionReset() {
	if sessionResetsTotal != nil {
		sessionResetsTotal.Inc()
	}
}

// ProductExtracted records one usable record.
func ProductExtracted() {
	if productsExtractedTotal != nil {
		productsExtractedTotal.Inc()
	}
}

// ProductAccepted records one classifier acceptance with its completeness.
func ProductAccepted(nutritionFields int) {
	if productsAcceptedTotal != nil {
		productsAcceptedTotal.Inc()
	}
	if nutritionCompleteness != nil {
		nutritionCompleteness.WithLabelValues(strconv.Itoa(nutritionFields)).Inc()
	}
}

// ProductRejected records one classifier rejection.
func ProductRejected() {
	if productsRejectedTotal != nil {
		productsRejectedTotal.Inc()
	}
}

// ProductDiscarded records one unusable detail page.
func ProductDiscarded() {
	if productsDiscardedTotal != nil {
		productsDiscardedTotal.Inc()
	}
}

// Handler returns the Prometheus exposition handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
