package client

import (
	"context"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"payngo/scraper/internal/domain"
	"payngo/scraper/internal/metrics"
	"payngo/scraper/internal/retry"
)

type PayngoClient interface {
	// GetCategoryLinks walks the listing pages of a category until a page adds no new product link or a page
	// fails, returning every link collected so far. It never returns an error.
	GetCategoryLinks(ctx context.Context, categoryURL string) []string
	GetCategoryPage(ctx context.Context, categoryURL string, pageNumber int) (*domain.CatalogPage, error)
	// GetProductDetails fetches and parses a single product page. It does not retry.
	GetProductDetails(ctx context.Context, productURL string) (*domain.ProductRecord, error)
}

type payngoClient struct {
	domain  string
	fetcher Fetcher
	parser  *catalogParser
	waiter  retry.Waiter
	metrics *metrics.Metrics
}

func NewPayngoClient(domainURL string, fetcher Fetcher, waiter retry.Waiter, m *metrics.Metrics) PayngoClient {
	if waiter == nil {
		waiter = retry.NoWait
	}

	return &payngoClient{
		domain:  strings.TrimRight(domainURL, "/"),
		fetcher: fetcher,
		parser:  newCatalogParser(domainURL),
		waiter:  waiter,
		metrics: m,
	}
}

func pageURL(categoryURL string, pageNumber int) string {
	if pageNumber <= 1 {
		return categoryURL
	}
	return fmt.Sprintf("%s?p=%d", categoryURL, pageNumber)
}

func (c *payngoClient) GetCategoryPage(ctx context.Context, categoryURL string, pageNumber int) (*domain.CatalogPage, error) {
	url := pageURL(categoryURL, pageNumber)

	html, err := c.fetcher.Fetch(ctx, url, c.domain)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch listing page %d: %w", pageNumber, err)
	}

	page, err := c.parser.ParseProductLinks(html, url, pageNumber)
	if err != nil {
		return nil, fmt.Errorf("failed to parse listing page %d: %w", pageNumber, err)
	}

	return page, nil
}

func (c *payngoClient) GetCategoryLinks(ctx context.Context, categoryURL string) []string {
	log.Infof("🔍 Extracting product links from category: %s", categoryURL)

	seen := make(map[string]struct{})
	links := make([]string, 0)

	for pageNumber := 1; ; pageNumber++ {
		log.Infof("📄 [Page %d] GET %s", pageNumber, pageURL(categoryURL, pageNumber))

		page, err := c.GetCategoryPage(ctx, categoryURL, pageNumber)
		if err != nil {
			c.metrics.IncPage(metrics.ResultFailed)
			log.Errorf("❌ Page %d of %s failed, returning %d links collected so far: %v", pageNumber, categoryURL, len(links), err)
			return links
		}
		c.metrics.IncPage(metrics.ResultSuccess)

		newOnPage := 0
		for _, link := range page.Links {
			if _, ok := seen[link]; ok {
				continue
			}
			seen[link] = struct{}{}
			links = append(links, link)
			newOnPage++
		}
		log.Infof("  → Found %d new links on page %d", newOnPage, pageNumber)

		if err := c.waiter.Wait(ctx); err != nil {
			log.Warnf("⚠️ Link harvest interrupted: %v", err)
			return links
		}

		if newOnPage == 0 {
			break
		}
	}

	log.Infof("✅ Extracted %d unique product URLs", len(links))
	return links
}

func (c *payngoClient) GetProductDetails(ctx context.Context, productURL string) (*domain.ProductRecord, error) {
	log.Infof("🛒 Scraping details: %s", productURL)

	html, err := c.fetcher.Fetch(ctx, productURL, c.domain)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch product page: %w", err)
	}

	if err := c.waiter.Wait(ctx); err != nil {
		return nil, err
	}

	details, err := c.parser.ParseProductDetails(html, productURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse product page: %w", err)
	}

	log.Debugf("Successfully parsed product %s", details.ProductNumber)
	return details, nil
}
