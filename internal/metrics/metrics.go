package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "marketplace"

// Metrics groups the marketplace counters. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	programScans      prometheus.Counter
	listingsDiscarded *prometheus.CounterVec
	metadataFailures  prometheus.Counter
	transactions      *prometheus.CounterVec
	cacheHits         *prometheus.CounterVec
	confirmation      prometheus.Histogram
}

// New creates the marketplace metrics and registers them with reg
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		programScans: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "program_scans_total",
			Help:      "number of full program account scans",
		}),
		listingsDiscarded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "listings_discarded_total",
			Help:      "number of listing-sized accounts rejected during a scan",
		}, []string{"reason"}),
		metadataFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "metadata_failures_total",
			Help:      "number of NFTs served with placeholder metadata",
		}),
		transactions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transactions_total",
			Help:      "number of submitted write operations",
		}, []string{"kind", "status"}),
		cacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "number of read-model requests served from cache",
		}, []string{"cache"}),
		confirmation: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "confirmation_seconds",
			Help:      "time from blockhash fetch to confirmation",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 40, 90},
		}),
	}

	var errs []error
	for _, c := range []prometheus.Collector{
		m.programScans,
		m.listingsDiscarded,
		m.metadataFailures,
		m.transactions,
		m.cacheHits,
		m.confirmation,
	} {
		errs = append(errs, reg.Register(c))
	}
	return m, errors.Join(errs...)
}

func (m *Metrics) ProgramScan() {
	if m == nil {
		return
	}
	m.programScans.Inc()
}

func (m *Metrics) ListingDiscarded(reason string) {
	if m == nil {
		return
	}
	m.listingsDiscarded.WithLabelValues(reason).Inc()
}

func (m *Metrics) MetadataFailure() {
	if m == nil {
		return
	}
	m.metadataFailures.Inc()
}

func (m *Metrics) CacheHit(cache string) {
	if m == nil {
		return
	}
	m.cacheHits.WithLabelValues(cache).Inc()
}

// Transaction records the outcome of a write and, on success, its latency
func (m *Metrics) Transaction(kind string, err error, started time.Time) {
	if m == nil {
		return
	}
	status := "confirmed"
	if err != nil {
		status = "failed"
	} else {
		m.confirmation.Observe(time.Since(started).Seconds())
	}
	m.transactions.WithLabelValues(kind, status).Inc()
}
