package client

import (
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
	"go.uber.org/ratelimit"
	"golang.org/x/net/html/charset"
	"resty.dev/v3"

	"payngo/scraper/internal/apperrors"
	"payngo/scraper/internal/config"
	"payngo/scraper/internal/metrics"
	"payngo/scraper/internal/proxy"
)

// Fetcher performs single GET requests against the catalog site. It never retries.
type Fetcher interface {
	// Fetch returns the response body decoded to UTF-8.
	Fetch(ctx context.Context, url, referer string) (string, error)
	// Download streams the response body into w and returns the number of bytes written.
	Download(ctx context.Context, url, referer string, w io.Writer) (int64, error)
}

type FetcherOption func(*fetcher)

// WithTransport replaces the HTTP transport, mostly for tests.
func WithTransport(rt http.RoundTripper) FetcherOption {
	return func(f *fetcher) {
		f.httpClient.SetTransport(rt)
	}
}

func WithMetrics(m *metrics.Metrics) FetcherOption {
	return func(f *fetcher) {
		f.metrics = m
	}
}

type fetcher struct {
	rl            ratelimit.Limiter
	timeout       time.Duration
	userAgents    []string
	httpClient    *resty.Client
	proxySupplier proxy.ProxySupplier
	metrics       *metrics.Metrics
}

func NewFetcher(cfg config.PayngoConfig, userAgents []string, proxySupplier proxy.ProxySupplier, opts ...FetcherOption) Fetcher {
	timeout := cfg.Timeout()

	// Only connection setup and response headers are bounded here; Fetch adds a total deadline per request.
	client := resty.NewWithTransportSettings(&resty.TransportSettings{
		DialerTimeout:         timeout,
		TLSHandshakeTimeout:   timeout,
		ResponseHeaderTimeout: timeout,
	}).
		SetRetryCount(0).
		SetHeader("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8").
		SetHeader("Accept-Language", "he-IL,he;q=0.9,en-US;q=0.8,en;q=0.7")

	rl := ratelimit.NewUnlimited()
	if cfg.MaxRequestsPerSecond > 0 {
		rl = ratelimit.New(cfg.MaxRequestsPerSecond)
	}

	f := &fetcher{
		rl:            rl,
		timeout:       timeout,
		userAgents:    userAgents,
		httpClient:    client,
		proxySupplier: proxySupplier,
	}

	if proxySupplier != nil {
		if proxyURL := proxySupplier.Get(); proxyURL != "" {
			client.SetProxy(proxyURL)
			log.Infof("🔗 Using initial proxy: %s", proxyURL)
		}
	}

	for _, opt := range opts {
		opt(f)
	}

	return f
}

func (f *fetcher) request(ctx context.Context, referer string) *resty.Request {
	req := f.httpClient.R().SetContext(ctx)
	if len(f.userAgents) > 0 {
		req.SetHeader("User-Agent", f.userAgents[rand.IntN(len(f.userAgents))])
	}
	if referer != "" {
		req.SetHeader("Referer", referer)
	}
	return req
}

func (f *fetcher) Fetch(ctx context.Context, url, referer string) (string, error) {
	f.rl.Take()

	reqCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	resp, err := f.request(reqCtx, referer).Get(url)
	if err != nil {
		f.rotateProxy()
		if ctx.Err() != nil {
			return "", apperrors.NewFetch(url, 0, fmt.Errorf("request cancelled: %w", ctx.Err()))
		}
		return "", apperrors.NewFetch(url, 0, err)
	}
	f.metrics.ObserveFetch(resp.Duration())

	if !resp.IsSuccess() {
		f.rotateProxy()
		return "", apperrors.NewFetch(url, resp.StatusCode(), fmt.Errorf("unexpected status %s", resp.Status()))
	}

	body, err := toUTF8(resp.Bytes(), resp.Header().Get("Content-Type"))
	if err != nil {
		return "", apperrors.NewFetch(url, resp.StatusCode(), err)
	}

	return body, nil
}

func (f *fetcher) Download(ctx context.Context, url, referer string, w io.Writer) (int64, error) {
	f.rl.Take()

	resp, err := f.request(ctx, referer).
		SetDoNotParseResponse(true).
		Get(url)
	if resp != nil && resp.Body != nil {
		defer resp.Body.Close()
	}
	if err != nil {
		f.rotateProxy()
		return 0, apperrors.NewFetch(url, 0, err)
	}

	if !resp.IsSuccess() {
		f.rotateProxy()
		return 0, apperrors.NewFetch(url, resp.StatusCode(), fmt.Errorf("unexpected status %s", resp.Status()))
	}

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, apperrors.NewFetch(url, resp.StatusCode(), fmt.Errorf("failed to read body: %w", err))
	}

	return n, nil
}

func (f *fetcher) rotateProxy() {
	if f.proxySupplier == nil {
		return
	}
	if next := f.proxySupplier.Get(); next != "" {
		log.Infof("🔄 Switching to proxy: %s", next)
		f.httpClient.SetProxy(next)
	}
}

// toUTF8 converts body to UTF-8 using the Content-Type charset or sniffing when absent.
func toUTF8(body []byte, contentType string) (string, error) {
	enc, name, _ := charset.DetermineEncoding(body, contentType)
	if name == "utf-8" {
		return string(body), nil
	}

	decoded, err := enc.NewDecoder().Bytes(body)
	if err != nil {
		return "", fmt.Errorf("failed to decode %s body: %w", name, err)
	}
	return string(decoded), nil
}
