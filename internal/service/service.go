// Package service drives a scrape task: categories, then products, then media, then the remote reports.
package service

import (
	"context"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"payngo/scraper/internal/client"
	"payngo/scraper/internal/config"
	"payngo/scraper/internal/domain"
	"payngo/scraper/internal/domain/task"
	"payngo/scraper/internal/media"
	"payngo/scraper/internal/metrics"
	"payngo/scraper/internal/remote"
	"payngo/scraper/internal/repository"
	"payngo/scraper/internal/retry"
)

// DefaultCompletionGrace bounds the completion report once the run has been cancelled.
const DefaultCompletionGrace = 10 * time.Minute

var errMissingProductNumber = errors.New("product number is missing")

type Service struct {
	cfg        config.PayngoConfig
	client     client.PayngoClient
	downloader media.Downloader
	repository repository.ProductRepository
	reporter   remote.TaskReporter
	waiter     retry.Waiter
	detail     retry.Policy
	metrics    *metrics.Metrics

	completionGrace time.Duration
}

type Option func(*Service)

// WithCompletionGrace sets how long the completion report may keep retrying after ctx is cancelled.
func WithCompletionGrace(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.completionGrace = d
		}
	}
}

func NewService(
	cfg config.PayngoConfig,
	client client.PayngoClient,
	downloader media.Downloader,
	repository repository.ProductRepository,
	reporter remote.TaskReporter,
	waiter retry.Waiter,
	sleeper retry.Sleeper,
	m *metrics.Metrics,
	opts ...Option,
) *Service {
	if waiter == nil {
		waiter = retry.NoWait
	}

	s := &Service{
		cfg:        cfg,
		client:     client,
		downloader: downloader,
		repository: repository,
		reporter:   reporter,
		waiter:     waiter,
		detail: retry.Policy{
			Name:        "product details",
			MaxAttempts: cfg.DetailRetries,
			Delay:       cfg.RetryDelayDuration(),
			Sleeper:     sleeper,
		},
		metrics:         m,
		completionGrace: DefaultCompletionGrace,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// CategoryResult summarizes one processed category.
type CategoryResult struct {
	Slug       string
	OutputFile string
	Links      int
	Saved      int
	Failed     int
	Skipped    int
}

// Run processes every category of t in order and then reports completion. Category and product failures are
// logged and never stop the run. The completion report is attempted even when ctx was cancelled midway, and
// a reported task returns no error: the only error is a failed completion report.
func (s *Service) Run(ctx context.Context, t *task.ScrapeTask) ([]CategoryResult, error) {
	logger := log.WithFields(log.Fields{
		"run_id": uuid.NewString(),
		"task":   t.ID,
	})

	categories := t.Categories()
	slugs := make([]string, 0, len(categories))
	for _, c := range categories {
		slugs = append(slugs, c.Slug)
	}
	logger.Infof("🚀 Starting task with %d categories: %v", len(categories), slugs)

	results := make([]CategoryResult, 0, len(categories))
	for _, category := range categories {
		if ctx.Err() != nil {
			logger.Warnf("🛑 Task interrupted before category %s: %v", category.Slug, ctx.Err())
			break
		}
		results = append(results, s.ProcessCategory(ctx, logger, category))
	}

	// successCount counts categories, not products.
	report := domain.NewTaskReport(t.ID, 0, len(categories))
	logger.Infof("📋 Reporting completion: failed=%d success=%d", report.FailedCount, report.SuccessCount)

	completeCtx, cancel := s.completionContext(ctx)
	defer cancel()

	resp, err := s.reporter.CompleteTask(completeCtx, report)
	if err != nil {
		logger.Errorf("❌ Failed to complete task: %v", err)
		return results, fmt.Errorf("failed to complete task %s: %w", t.ID, err)
	}
	logger.Infof("🎉 Task completion response: %s", resp)

	if ctx.Err() != nil {
		logger.Warnf("🛑 Task reported after interruption: %d of %d categories processed", len(results), len(categories))
	}
	return results, nil
}

// completionContext survives the cancellation of ctx for at most the completion grace period.
func (s *Service) completionContext(ctx context.Context) (context.Context, context.CancelFunc) {
	detached, cancel := context.WithCancel(context.WithoutCancel(ctx))

	go func() {
		select {
		case <-detached.Done():
			return
		case <-ctx.Done():
		}

		grace := time.NewTimer(s.completionGrace)
		defer grace.Stop()

		select {
		case <-detached.Done():
		case <-grace.C:
			log.Warnf("⏱️ Completion grace of %s expired", s.completionGrace)
			cancel()
		}
	}()

	return detached, cancel
}

// OutputFile returns the JSON file the products of a category are written to.
func (s *Service) OutputFile(slug string) string {
	return filepath.Join(s.cfg.BaseDirectory, s.cfg.StoreName, slug, s.cfg.ProductDetailsFileName)
}

// SharedPath maps a local output file to the path the task service reads it from: the base directory prefix
// is swapped for the shared path and separators become "/". Files outside the base directory keep their path.
func (s *Service) SharedPath(outputFile string) string {
	file := slashClean(outputFile)
	base := slashClean(s.cfg.BaseDirectory)

	rel, ok := strings.CutPrefix(file, base)
	if !ok || (rel != "" && !strings.HasPrefix(rel, "/")) {
		return file
	}

	shared := strings.TrimSuffix(strings.ReplaceAll(s.cfg.SaveNewServerTaskPath, "\\", "/"), "/")
	return shared + rel
}

func slashClean(p string) string {
	return path.Clean(strings.ReplaceAll(p, "\\", "/"))
}

// ProcessCategory clears the category output, scrapes every product link into it and submits the file to the
// task service.
func (s *Service) ProcessCategory(ctx context.Context, logger *log.Entry, category domain.Category) CategoryResult {
	logger = logger.WithField("category", category.Slug)
	logger.Infof("📂 Processing category '%s' -> %s -> %s", category.Slug, category.Link, category.Name)

	result := CategoryResult{
		Slug:       category.Slug,
		OutputFile: s.OutputFile(category.Slug),
	}

	if err := s.repository.Reset(ctx, result.OutputFile); err != nil {
		logger.Errorf("❌ Failed to clear output file %s: %v", result.OutputFile, err)
	} else {
		logger.Infof("🧹 Cleared old data in %s", result.OutputFile)
	}

	links := s.client.GetCategoryLinks(ctx, category.Link)
	result.Links = len(links)
	logger.Infof("🔗 Extracted %d product links from category '%s'", len(links), category.Slug)

	for i, url := range links {
		logger.Infof("=== [%d/%d] %s ===", i+1, len(links), url)

		err := s.processProduct(ctx, category, result.OutputFile, url)
		switch {
		case err == nil:
			result.Saved++
			s.metrics.IncProduct(metrics.ResultSuccess)
			logger.Infof("💾 Saved product to %s (product %d/%d)", result.OutputFile, i+1, len(links))
		case errors.Is(err, errMissingProductNumber):
			result.Skipped++
			s.metrics.IncProduct(metrics.ResultSkipped)
			logger.Warnf("⚠️ Skipping product at %s because productNumber is missing", url)
		default:
			result.Failed++
			s.metrics.IncProduct(metrics.ResultFailed)
			logger.Errorf("❌ Error processing %s: %v", url, err)
		}

		if err := s.waiter.Wait(ctx); err != nil {
			logger.Warnf("🛑 Category %s interrupted: %v", category.Slug, err)
			break
		}
	}

	logger.Infof("✅ All products saved to %s (%d saved, %d failed, %d skipped)",
		result.OutputFile, result.Saved, result.Failed, result.Skipped)

	s.submit(ctx, logger, result.OutputFile)
	s.metrics.IncCategory()

	return result
}

func (s *Service) processProduct(ctx context.Context, category domain.Category, outputFile, url string) error {
	details, err := retry.Value(ctx, s.detail, func(ctx context.Context) (*domain.ProductRecord, error) {
		return s.client.GetProductDetails(ctx, url)
	})
	if err != nil {
		return err
	}
	if !details.HasProductNumber() {
		return errMissingProductNumber
	}

	images := s.downloader.DownloadImages(ctx, details.ProductNumber, url, details.Images, s.cfg.ImageNamePrefix)
	moreImages := s.downloader.DownloadImages(ctx, details.ProductNumber, url, details.MoreImages, s.cfg.MoreImageNamePrefix)
	videos, err := s.downloader.DownloadVideos(ctx, details.ProductNumber, url, details.Videos)
	if err != nil {
		return fmt.Errorf("failed to download videos: %w", err)
	}

	record := domain.Flatten(details, images, moreImages, videos, category)
	if err := s.repository.Append(ctx, outputFile, record); err != nil {
		return fmt.Errorf("failed to append product to %s: %w", outputFile, err)
	}

	return nil
}

func (s *Service) submit(ctx context.Context, logger *log.Entry, outputFile string) {
	sharedPath := s.SharedPath(outputFile)
	submission := domain.TaskSubmission{
		Requests: []domain.TaskRequest{{
			Path:           sharedPath,
			WebsiteAddress: s.cfg.HomePage,
		}},
		Type: domain.TaskSubmissionTypeProduct,
	}
	logger.Infof("📦 Prepared task submission for %s", sharedPath)

	if _, err := s.reporter.SubmitProductTask(ctx, submission); err != nil {
		logger.Errorf("❌ Failed to add new server task request for %s: %v", sharedPath, err)
		return
	}
	logger.Infof("📨 New server task added for %s", sharedPath)
}
