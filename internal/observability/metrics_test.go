package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsForTesting_AreIndependent(t *testing.T) {
	a := NewMetricsForTesting()
	b := NewMetricsForTesting()

	a.RowsUpserted.WithLabelValues("tas", "585").Add(10)

	assert.Equal(t, 10.0, testutil.ToFloat64(a.RowsUpserted.WithLabelValues("tas", "585")))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.RowsUpserted.WithLabelValues("tas", "585")))
}

func TestMetrics_Register(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsForTesting()
	require.NoError(t, m.Register(reg))

	m.QueryCache.WithLabelValues("hit").Inc()
	m.ViewRows.WithLabelValues("infrastructure").Set(5)

	families, err := reg.Gather()
	require.NoError(t, err)

	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["climate_risk_query_cache_total"])
	assert.True(t, names["climate_risk_view_rows"])

	assert.Error(t, m.Register(reg), "double registration fails")
}
