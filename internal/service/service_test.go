package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"payngo/scraper/internal/apperrors"
	"payngo/scraper/internal/config"
	"payngo/scraper/internal/domain"
	"payngo/scraper/internal/domain/task"
	"payngo/scraper/internal/metrics"
	"payngo/scraper/internal/repository"
	"payngo/scraper/internal/retry"
)

type fakeClient struct {
	links   map[string][]string
	details map[string]*domain.ProductRecord
	calls   map[string]int
}

func (c *fakeClient) GetCategoryLinks(ctx context.Context, categoryURL string) []string {
	return c.links[categoryURL]
}

func (c *fakeClient) GetCategoryPage(ctx context.Context, categoryURL string, pageNumber int) (*domain.CatalogPage, error) {
	return nil, errors.New("not used")
}

func (c *fakeClient) GetProductDetails(ctx context.Context, productURL string) (*domain.ProductRecord, error) {
	c.calls[productURL]++
	d, ok := c.details[productURL]
	if !ok {
		return nil, apperrors.NewFetch(productURL, 503, errors.New("unavailable"))
	}
	return d, nil
}

type fakeDownloader struct {
	videoErr map[string]error
	prefixes []string
}

func (d *fakeDownloader) DownloadImages(ctx context.Context, productID, productURL string, urls []string, prefix string) []domain.ImageAsset {
	d.prefixes = append(d.prefixes, prefix)
	assets := make([]domain.ImageAsset, 0, len(urls))
	for i, u := range urls {
		assets = append(assets, domain.ImageAsset{Source: u, Served: fmt.Sprintf("/images/%s%s_%d.jpg", prefix, productID, i+1)})
	}
	return assets
}

func (d *fakeDownloader) DownloadVideos(ctx context.Context, productID, productURL string, urls []string) ([]domain.VideoAsset, error) {
	if err := d.videoErr[productURL]; err != nil {
		return nil, err
	}
	assets := make([]domain.VideoAsset, 0, len(urls))
	for _, u := range urls {
		assets = append(assets, domain.VideoAsset{Source: u, Served: "/videos/payngo_video_" + productID + "_1.mp4"})
	}
	return assets, nil
}

type fakeReporter struct {
	submissions []domain.TaskSubmission
	reports     []domain.TaskReport
	submitErr   error
	completeErr error
	// waitForCancel makes CompleteTask hold until its context ends, like a task service that never answers.
	waitForCancel bool
}

func (r *fakeReporter) SubmitProductTask(ctx context.Context, submission domain.TaskSubmission) (json.RawMessage, error) {
	r.submissions = append(r.submissions, submission)
	return json.RawMessage(`{}`), r.submitErr
}

func (r *fakeReporter) CompleteTask(ctx context.Context, report domain.TaskReport) (json.RawMessage, error) {
	r.reports = append(r.reports, report)
	if r.waitForCancel {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if r.completeErr != nil {
		return nil, r.completeErr
	}
	return json.RawMessage(`{"ok":true}`), nil
}

type countingWaiter struct{ calls int }

func (w *countingWaiter) Wait(ctx context.Context) error {
	w.calls++
	return ctx.Err()
}

const (
	tvLink    = "https://www.payngo.co.il/tv.html"
	emptyLink = "https://www.payngo.co.il/empty.html"

	goodURL     = "https://www.payngo.co.il/tv-55/100200.html"
	brokenURL   = "https://www.payngo.co.il/tv-65/100300.html"
	noNumberURL = "https://www.payngo.co.il/tv-accessory.html"
	badVideoURL = "https://www.payngo.co.il/tv-75/100400.html"
)

type fixture struct {
	svc        *Service
	client     *fakeClient
	downloader *fakeDownloader
	reporter   *fakeReporter
	waiter     *countingWaiter
	delays     *[]time.Duration
	metrics    *metrics.Metrics
	cfg        config.PayngoConfig
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	cfg := config.PayngoConfig{
		HomePage:               "https://www.payngo.co.il/",
		BaseDirectory:          filepath.Join(t.TempDir(), "base"),
		SaveNewServerTaskPath:  "/mnt/nfs",
		StoreName:              "payngo",
		ProductDetailsFileName: "products.json",
		ImageNamePrefix:        "payngo_",
		MoreImageNamePrefix:    "payngo_more_",
		DetailRetries:          3,
		RetryDelay:             5,
	}

	c := &fakeClient{
		links: map[string][]string{
			tvLink: {goodURL, brokenURL, noNumberURL, badVideoURL},
		},
		details: map[string]*domain.ProductRecord{
			goodURL: {
				ProductNumber:  "100200",
				URL:            goodURL,
				Title:          "טלוויזיה 55",
				Price:          "2499",
				Images:         []string{"https://cdn.payngo.co.il/a.jpg"},
				MoreImages:     []string{"https://cdn.payngo.co.il/b.jpg"},
				Videos:         []string{"https://cdn.payngo.co.il/v.mp4"},
				Specifications: []domain.Specification{{Key: "גודל מסך", Value: "55"}},
				Currency:       domain.CurrencyNIS,
			},
			noNumberURL: {URL: noNumberURL, Title: "אביזר"},
			badVideoURL: {ProductNumber: "100400", URL: badVideoURL, Videos: []string{"https://cdn.payngo.co.il/x.webm"}},
		},
		calls: map[string]int{},
	}
	d := &fakeDownloader{videoErr: map[string]error{
		badVideoURL: apperrors.NewMedia("transcode", "x.webm", errors.New("ffmpeg exited")),
	}}
	r := &fakeReporter{}
	w := &countingWaiter{}
	var delays []time.Duration
	sleeper := retry.SleeperFunc(func(ctx context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	})
	m := metrics.New()

	svc := NewService(cfg, c, d, repository.NewProductRepository(), r, w, sleeper, m)
	return &fixture{svc: svc, client: c, downloader: d, reporter: r, waiter: w, delays: &delays, metrics: m, cfg: cfg}
}

func scrapeTask() *task.ScrapeTask {
	return &task.ScrapeTask{
		ID: "task-42",
		Principle: task.ScrapePrinciple{Categories: []domain.Category{
			{Slug: "tv", Link: tvLink, Name: "טלוויזיות"},
			{Slug: "empty", Link: emptyLink, Name: "ריק"},
		}},
	}
}

func readOutput(t *testing.T, path string) []map[string]any {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var records []map[string]any
	require.NoError(t, json.Unmarshal(data, &records))
	return records
}

func TestRunProcessesCategoriesAndReports(t *testing.T) {
	f := newFixture(t)

	results, err := f.svc.Run(context.Background(), scrapeTask())
	require.NoError(t, err)
	require.Len(t, results, 2)

	tv := results[0]
	assert.Equal(t, 4, tv.Links)
	assert.Equal(t, 1, tv.Saved)
	assert.Equal(t, 2, tv.Failed)
	assert.Equal(t, 1, tv.Skipped)
	assert.Equal(t, filepath.Join(f.cfg.BaseDirectory, "payngo", "tv", "products.json"), tv.OutputFile)

	records := readOutput(t, tv.OutputFile)
	require.Len(t, records, 1)
	rec := records[0]
	assert.Equal(t, "100200", rec["productNumber"])
	assert.Equal(t, "/images/payngo_100200_1.jpg", rec["images"])
	assert.Equal(t, "https://cdn.payngo.co.il/b.jpg", rec["sourceMoreImages"])
	assert.Equal(t, "/videos/payngo_video_100200_1.mp4", rec["videos"])
	assert.Equal(t, "גודל מסך", rec["key1"])
	assert.Equal(t, "tv", rec["categorySlug"])
	assert.Equal(t, "טלוויזיות", rec["categoryName"])
	assert.Equal(t, tvLink, rec["categoryLink"])

	// Empty categories still get a reset output file and a submission.
	assert.Empty(t, readOutput(t, results[1].OutputFile))

	require.Len(t, f.reporter.submissions, 2)
	assert.Equal(t, domain.TaskSubmission{
		Requests: []domain.TaskRequest{{Path: "/mnt/nfs/payngo/tv/products.json", WebsiteAddress: "https://www.payngo.co.il/"}},
		Type:     "product",
	}, f.reporter.submissions[0])

	require.Len(t, f.reporter.reports, 1)
	assert.Equal(t, domain.NewTaskReport("task-42", 0, 2), f.reporter.reports[0])
}

func TestRunRetriesDetailsThenSkips(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Run(context.Background(), scrapeTask())
	require.NoError(t, err)

	assert.Equal(t, 3, f.client.calls[brokenURL])
	assert.Equal(t, 1, f.client.calls[goodURL])
	assert.Equal(t, 1, f.client.calls[badVideoURL], "media failures are not retried")
	assert.Equal(t, []time.Duration{5 * time.Second, 5 * time.Second}, *f.delays)
}

func TestRunWaitsAfterEveryProduct(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Run(context.Background(), scrapeTask())
	require.NoError(t, err)

	assert.Equal(t, 4, f.waiter.calls)
	assert.Equal(t, []string{"payngo_", "payngo_more_", "payngo_", "payngo_more_"}, f.downloader.prefixes)
}

func TestRunRecordsMetrics(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Run(context.Background(), scrapeTask())
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.ProductsTotal.WithLabelValues(metrics.ResultSuccess)))
	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.ProductsTotal.WithLabelValues(metrics.ResultFailed)))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.ProductsTotal.WithLabelValues(metrics.ResultSkipped)))
	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.CategoriesTotal))
}

func TestRunContinuesWhenSubmissionFails(t *testing.T) {
	f := newFixture(t)
	f.reporter.submitErr = apperrors.NewValidation("submit product task", "rejected")

	results, err := f.svc.Run(context.Background(), scrapeTask())
	require.NoError(t, err)
	assert.Len(t, results, 2)
	assert.Len(t, f.reporter.reports, 1)
}

func TestRunReturnsCompletionFailure(t *testing.T) {
	f := newFixture(t)
	f.reporter.completeErr = errors.New("task service down")

	_, err := f.svc.Run(context.Background(), scrapeTask())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "task-42")
}

func TestRunReportsCompletionAfterCancellation(t *testing.T) {
	f := newFixture(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, err := f.svc.Run(ctx, scrapeTask())
	require.NoError(t, err, "a reported task is done even when interrupted")
	assert.Empty(t, results)
	require.Len(t, f.reporter.reports, 1)
	assert.Equal(t, 2, f.reporter.reports[0].SuccessCount)
}

func TestRunBoundsCompletionAfterCancellation(t *testing.T) {
	f := newFixture(t)
	f.reporter.waitForCancel = true
	svc := NewService(f.cfg, f.client, f.downloader, repository.NewProductRepository(), f.reporter, f.waiter, nil, nil,
		WithCompletionGrace(20*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan error, 1)
	go func() {
		_, err := svc.Run(ctx, scrapeTask())
		done <- err
	}()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("completion report was not bounded after cancellation")
	}
}

func TestRunCompletionNotBoundedWithoutCancellation(t *testing.T) {
	f := newFixture(t)
	svc := NewService(f.cfg, f.client, f.downloader, repository.NewProductRepository(), f.reporter, f.waiter, nil, nil,
		WithCompletionGrace(time.Nanosecond))

	_, err := svc.Run(context.Background(), scrapeTask())
	require.NoError(t, err)
	assert.Len(t, f.reporter.reports, 1)
}

func TestSharedPath(t *testing.T) {
	svc := NewService(config.PayngoConfig{
		BaseDirectory:         `C:\scrape`,
		SaveNewServerTaskPath: `//nfs/share`,
	}, nil, nil, nil, nil, nil, nil, nil)

	assert.Equal(t, "//nfs/share/payngo/tv/products.json", svc.SharedPath(`C:\scrape\payngo\tv\products.json`))
	assert.Equal(t, "/srv/other/products.json", svc.SharedPath("/srv/other/products.json"))
}

func TestSharedPathRelativeBase(t *testing.T) {
	tests := []struct {
		base   string
		shared string
		want   string
	}{
		{"./data", "/mnt/nfs", "/mnt/nfs/payngo/tv/products.json"},
		{"data/", "/mnt/nfs/", "/mnt/nfs/payngo/tv/products.json"},
		{"/srv/scrape/../scrape", "//nfs/share", "//nfs/share/payngo/tv/products.json"},
	}

	for _, tt := range tests {
		svc := NewService(config.PayngoConfig{
			BaseDirectory:          tt.base,
			SaveNewServerTaskPath:  tt.shared,
			StoreName:              "payngo",
			ProductDetailsFileName: "products.json",
		}, nil, nil, nil, nil, nil, nil, nil)

		assert.Equal(t, tt.want, svc.SharedPath(svc.OutputFile("tv")), tt.base)
	}
}

func TestSharedPathLeavesSiblingDirectories(t *testing.T) {
	svc := NewService(config.PayngoConfig{BaseDirectory: "/srv/data", SaveNewServerTaskPath: "/mnt/nfs"},
		nil, nil, nil, nil, nil, nil, nil)

	assert.Equal(t, "/srv/database/products.json", svc.SharedPath("/srv/database/products.json"))
}
