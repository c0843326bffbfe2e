// Package metrics bundles the Prometheus collectors of a scrape run.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

// Result labels.
const (
	ResultSuccess = "success"
	ResultFailed  = "failed"
	ResultSkipped = "skipped"
	ResultReused  = "reused"
)

// Metrics holds the collectors on a dedicated registry. A nil *Metrics is valid and records nothing.
type Metrics struct {
	Registry           *prometheus.Registry
	PagesTotal         *prometheus.CounterVec
	ProductsTotal      *prometheus.CounterVec
	MediaTotal         *prometheus.CounterVec
	RemoteRetriesTotal *prometheus.CounterVec
	CategoriesTotal    prometheus.Counter
	FetchDuration      prometheus.Histogram
}

func New() *Metrics {
	registry := prometheus.NewRegistry()

	pages := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payngo_listing_pages_total",
			Help: "Category listing pages fetched, labeled by result.",
		},
		[]string{"result"},
	)
	products := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payngo_products_total",
			Help: "Products processed, labeled by result.",
		},
		[]string{"result"},
	)
	media := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payngo_media_total",
			Help: "Media items processed, labeled by kind and result.",
		},
		[]string{"kind", "result"},
	)
	remoteRetries := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payngo_remote_retries_total",
			Help: "Retried calls to the remote task service, labeled by call.",
		},
		[]string{"call"},
	)
	categories := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "payngo_categories_total",
			Help: "Categories fully processed.",
		},
	)
	fetchDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "payngo_fetch_duration_seconds",
			Help:    "Latency of requests to the catalog site.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
	)

	registry.MustRegister(pages, products, media, remoteRetries, categories, fetchDuration)

	return &Metrics{
		Registry:           registry,
		PagesTotal:         pages,
		ProductsTotal:      products,
		MediaTotal:         media,
		RemoteRetriesTotal: remoteRetries,
		CategoriesTotal:    categories,
		FetchDuration:      fetchDuration,
	}
}

func (m *Metrics) IncPage(result string) {
	if m == nil {
		return
	}
	m.PagesTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) IncProduct(result string) {
	if m == nil {
		return
	}
	m.ProductsTotal.WithLabelValues(result).Inc()
}

// IncMedia counts one image or video by outcome.
func (m *Metrics) IncMedia(kind, result string) {
	if m == nil {
		return
	}
	m.MediaTotal.WithLabelValues(kind, result).Inc()
}

func (m *Metrics) IncRemoteRetry(call string) {
	if m == nil {
		return
	}
	m.RemoteRetriesTotal.WithLabelValues(call).Inc()
}

func (m *Metrics) IncCategory() {
	if m == nil {
		return
	}
	m.CategoriesTotal.Inc()
}

func (m *Metrics) ObserveFetch(d time.Duration) {
	if m == nil {
		return
	}
	m.FetchDuration.Observe(d.Seconds())
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("📈 Metrics listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
