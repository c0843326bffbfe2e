package proxy

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"resty.dev/v3"
)

const checkTimeout = 5 * time.Second

// ProxySupplier hands out the working proxies of the pool in turn.
type ProxySupplier interface {
	// Get returns the next proxy URL, or "" when the pool is empty.
	Get() string
	Len() int
}

type proxySupplier struct {
	proxies []string
	current int
	mutex   sync.Mutex
}

// NewProxySupplier checks each proxy against testURL, one at a time, and keeps the working ones.
// Malformed entries are dropped without probing. An empty list yields a supplier that always returns "".
func NewProxySupplier(ctx context.Context, proxies []string, testURL string) ProxySupplier {
	if len(proxies) == 0 {
		return &proxySupplier{proxies: []string{}}
	}

	log.Infof("🔄 Testing %d proxies against %s...", len(proxies), testURL)

	validProxies := make([]string, 0, len(proxies))
	for i, raw := range proxies {
		if ctx.Err() != nil {
			log.Warnf("⚠️ Proxy probing interrupted after %d/%d", i, len(proxies))
			break
		}

		proxyURL, ok := parseProxy(raw)
		if !ok {
			log.Warnf("⚠️ Ignoring malformed proxy %q", raw)
			continue
		}

		log.Debugf("🔄 Testing proxy %d/%d: %s", i+1, len(proxies), proxyURL)
		if isProxyValid(ctx, proxyURL, testURL) {
			validProxies = append(validProxies, proxyURL)
			log.Infof("✅ Proxy %s is working", proxyURL)
		} else {
			log.Infof("❌ Proxy %s is not working, skipping", proxyURL)
		}
	}

	log.Infof("✅ ProxySupplier initialized with %d working proxies out of %d tested", len(validProxies), len(proxies))

	return &proxySupplier{proxies: validProxies}
}

// Get returns the next proxy URL in round-robin fashion
func (p *proxySupplier) Get() string {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if len(p.proxies) == 0 {
		return ""
	}

	proxy := p.proxies[p.current]
	p.current = (p.current + 1) % len(p.proxies)

	return proxy
}

// parseProxy trims raw and accepts http, https and socks5 proxy URLs with a host.
func parseProxy(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", false
	}
	switch u.Scheme {
	case "http", "https", "socks5":
		return raw, true
	}
	return "", false
}

func (p *proxySupplier) Len() int {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return len(p.proxies)
}

// isProxyValid reports whether a GET of testURL through proxyURL answers with a 2xx status.
func isProxyValid(ctx context.Context, proxyURL, testURL string) bool {
	client := resty.New().
		SetTimeout(checkTimeout).
		SetRetryCount(0).
		SetProxy(proxyURL)
	defer client.Close()

	resp, err := client.R().
		SetContext(ctx).
		Get(testURL)
	if err != nil {
		log.Infof("Proxy test failed for %s: %v", proxyURL, err)
		return false
	}

	if !resp.IsSuccess() {
		log.Infof("Proxy test failed for %s with status: %s", proxyURL, resp.Status())
		return false
	}

	return true
}
