// Package metrics exposes Prometheus collectors for the harvester.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Phase labels.
const (
	PhaseDiscovery  = "discovery"
	PhaseExtraction = "extraction"
)

// Fault kinds, following the catch-and-continue taxonomy.
const (
	FaultPage     = "page"
	FaultLink     = "link"
	FaultCategory = "category"
	FaultEndpoint = "endpoint"
	FaultField    = "field"
)

var (
	pagesTotal         *prometheus.CounterVec
	linksDiscovered    prometheus.Counter
	productsTotal      *prometheus.CounterVec
	faultsTotal        *prometheus.CounterVec
	activeWorkers      *prometheus.GaugeVec
	phaseDuration      *prometheus.HistogramVec
	pacingDelaySeconds *prometheus.HistogramVec
	runsTotal          *prometheus.CounterVec
	httpRequests       *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		pagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_pages_total",
				Help: "Total number of pages loaded, labeled by phase and status.",
			},
			[]string{"phase", "status"},
		)

		linksDiscovered = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "harvester_links_discovered_total",
				Help: "Total number of product links appended to the link store.",
			},
		)

		productsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_products_total",
				Help: "Total number of product links processed, labeled by status.",
			},
			[]string{"status"},
		)

		faultsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_faults_total",
				Help: "Recovered faults, labeled by kind.",
			},
			[]string{"kind"},
		)

		activeWorkers = promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "harvester_active_workers",
				Help: "Number of workers currently running, labeled by phase.",
			},
			[]string{"phase"},
		)

		phaseDuration = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "harvester_phase_duration_seconds",
				Help:    "Histogram of phase durations.",
				Buckets: []float64{10, 30, 60, 300, 900, 1800, 3600, 7200},
			},
			[]string{"phase"},
		)

		pacingDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "harvester_pacing_delay_seconds",
				Help:    "Histogram of waits inserted between page loads, labeled by endpoint host.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"endpoint"},
		)

		runsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_runs_total",
				Help: "Total number of runs, labeled by outcome.",
			},
			[]string{"status"},
		)

		httpRequests = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "harvester_http_request_duration_seconds",
				Help:    "Histogram of API request latencies, labeled by method, route and status code.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route", "code"},
		)
	})
}

// SanitizeHost extracts a lowercase hostname from an endpoint address.
// It returns "unknown" if the address is invalid.
func SanitizeHost(raw string) string {
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObservePage counts one page load for a phase.
func ObservePage(phase string, ok bool) {
	Init()
	status := "ok"
	if !ok {
		status = "failed"
	}
	pagesTotal.WithLabelValues(phase, status).Inc()
}

// AddLinksDiscovered adds n freshly appended links.
func AddLinksDiscovered(n int) {
	Init()
	if n > 0 {
		linksDiscovered.Add(float64(n))
	}
}

// ObserveProduct counts one processed product link ("written" or "skipped").
func ObserveProduct(status string) {
	Init()
	productsTotal.WithLabelValues(status).Inc()
}

// ObserveFault counts a recovered fault of the given kind.
func ObserveFault(kind string) {
	Init()
	faultsTotal.WithLabelValues(kind).Inc()
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers(phase string) {
	Init()
	activeWorkers.WithLabelValues(phase).Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers(phase string) {
	Init()
	activeWorkers.WithLabelValues(phase).Dec()
}

// ObservePhase records how long a phase took.
func ObservePhase(phase string, d time.Duration) {
	Init()
	phaseDuration.WithLabelValues(phase).Observe(d.Seconds())
}

// ObservePacingDelay records a wait inserted before a page load.
func ObservePacingDelay(endpoint string, d time.Duration) {
	Init()
	pacingDelaySeconds.WithLabelValues(SanitizeHost(endpoint)).Observe(d.Seconds())
}

// ObserveRun counts a finished run.
func ObserveRun(status string) {
	Init()
	runsTotal.WithLabelValues(status).Inc()
}

// ObserveHTTPRequest records one served API request.
func ObserveHTTPRequest(method, route string, code int, d time.Duration) {
	Init()
	httpRequests.WithLabelValues(method, route, strconv.Itoa(code)).Observe(d.Seconds())
}
