package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	m := New()

	m.IncProduct(ResultSuccess)
	m.IncProduct(ResultSuccess)
	m.IncProduct(ResultSkipped)
	m.IncMedia("video", ResultReused)
	m.IncRemoteRetry("complete_task")
	m.IncCategory()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ProductsTotal.WithLabelValues(ResultSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ProductsTotal.WithLabelValues(ResultSkipped)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MediaTotal.WithLabelValues("video", ResultReused)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RemoteRetriesTotal.WithLabelValues("complete_task")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CategoriesTotal))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.IncPage(ResultFailed)
		m.IncProduct(ResultSuccess)
		m.IncMedia("image", ResultFailed)
		m.IncRemoteRetry("auth")
		m.IncCategory()
		m.ObserveFetch(0)
	})
}

func TestHandler(t *testing.T) {
	m := New()
	m.IncPage(ResultSuccess)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `payngo_listing_pages_total{result="success"} 1`)
}
