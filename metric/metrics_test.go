package metric

import (
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_CollectsPipelineMetrics(t *testing.T) {
	r := NewRegistry()

	r.Metrics.WritesTotal.WithLabelValues("stored").Inc()
	r.Metrics.StoreOutcomes.WithLabelValues("kv", "success").Add(2)
	r.Metrics.RetrievalStatus.WithLabelValues("complete").Inc()
	r.Metrics.StoreAvailable.WithLabelValues("relational").Set(1)

	assert.Equal(t, 1.0, testutil.ToFloat64(r.Metrics.WritesTotal.WithLabelValues("stored")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.Metrics.StoreOutcomes.WithLabelValues("kv", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.Metrics.StoreAvailable.WithLabelValues("relational")))
}

func TestRegistry_Handler(t *testing.T) {
	r := NewRegistry()
	r.Metrics.SecretScanHits.Inc()

	rr := httptest.NewRecorder()
	r.Handler().ServeHTTP(rr, httptest.NewRequest("GET", "/metrics", nil))

	require.Equal(t, 200, rr.Code)
	assert.Contains(t, rr.Body.String(), "aquilog_redact_secret_scan_hits_total")
}
