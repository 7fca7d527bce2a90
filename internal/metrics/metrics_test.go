package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := New(reg)
	require.NoError(t, err)

	m.ProgramScan()
	m.ProgramScan()
	m.ListingDiscarded("address")
	m.MetadataFailure()
	m.CacheHit("listings")
	m.Transaction("LIST", nil, time.Now())
	m.Transaction("PURCHASE", errors.New("rejected"), time.Now())

	assert.Equal(t, float64(2), testutil.ToFloat64(m.programScans))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.listingsDiscarded.WithLabelValues("address")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.transactions.WithLabelValues("LIST", "confirmed")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.transactions.WithLabelValues("PURCHASE", "failed")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.confirmation))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ProgramScan()
		m.ListingDiscarded("size")
		m.MetadataFailure()
		m.CacheHit("nfts")
		m.Transaction("MINT", nil, time.Now())
	})
}

func TestDoubleRegistrationFails(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := New(reg)
	require.NoError(t, err)
	_, err = New(reg)
	assert.Error(t, err)
}
