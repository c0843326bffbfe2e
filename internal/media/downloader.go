// Package media stores product images and videos and maps them to their public paths.
package media

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"

	"payngo/scraper/internal/apperrors"
	"payngo/scraper/internal/client"
	"payngo/scraper/internal/domain"
	"payngo/scraper/internal/metrics"
	"payngo/scraper/internal/normalize"
	"payngo/scraper/internal/retry"
)

const (
	defaultImageExt = ".jpg"
	defaultVideoExt = ".mp4"

	kindImage = "image"
	kindVideo = "video"
)

// VideoLookup asks the video service whether a source video is already stored.
type VideoLookup interface {
	Token(ctx context.Context) (string, error)
	VideoExists(ctx context.Context, token, videoURL string) (*domain.VideoStatus, error)
}

type Config struct {
	ImageDir          string
	VideoDir          string
	ImagePublicPrefix string
	VideoPublicPrefix string
	VideoNamePrefix   string
}

type Downloader interface {
	// DownloadImages stores every image it can. Failed items are logged and left out.
	DownloadImages(ctx context.Context, productID, productURL string, urls []string, prefix string) []domain.ImageAsset
	// DownloadVideos stores or resolves every video. The first download or conversion failure aborts the batch.
	DownloadVideos(ctx context.Context, productID, productURL string, urls []string) ([]domain.VideoAsset, error)
}

type downloader struct {
	cfg        Config
	fetcher    client.Fetcher
	lookup     VideoLookup
	transcoder Transcoder
	waiter     retry.Waiter
	metrics    *metrics.Metrics
}

func NewDownloader(cfg Config, fetcher client.Fetcher, lookup VideoLookup, transcoder Transcoder, waiter retry.Waiter, m *metrics.Metrics) Downloader {
	if waiter == nil {
		waiter = retry.NoWait
	}

	return &downloader{
		cfg:        cfg,
		fetcher:    fetcher,
		lookup:     lookup,
		transcoder: transcoder,
		waiter:     waiter,
		metrics:    m,
	}
}

func (d *downloader) DownloadImages(ctx context.Context, productID, productURL string, urls []string, prefix string) []domain.ImageAsset {
	assets := make([]domain.ImageAsset, 0, len(urls))
	if len(urls) == 0 {
		return assets
	}

	if err := os.MkdirAll(d.cfg.ImageDir, 0o755); err != nil {
		log.Errorf("❌ Failed to create image directory %s: %v", d.cfg.ImageDir, err)
		return assets
	}

	for i, src := range urls {
		ext := normalize.Extension(src)
		if ext == "" {
			ext = defaultImageExt
		}
		name := fmt.Sprintf("%s%s_%d%s", prefix, productID, i+1, ext)

		log.Infof("🖼️ Download image %d/%d: %s", i+1, len(urls), name)
		if err := d.store(ctx, src, productURL, filepath.Join(d.cfg.ImageDir, name)); err != nil {
			d.metrics.IncMedia(kindImage, metrics.ResultFailed)
			log.Errorf("❌ Image failed: %v", err)
		} else {
			d.metrics.IncMedia(kindImage, metrics.ResultSuccess)
			assets = append(assets, domain.ImageAsset{
				Source: src,
				Served: d.cfg.ImagePublicPrefix + name,
			})
		}

		if err := d.waiter.Wait(ctx); err != nil {
			return assets
		}
	}

	return assets
}

func (d *downloader) DownloadVideos(ctx context.Context, productID, productURL string, urls []string) ([]domain.VideoAsset, error) {
	assets := make([]domain.VideoAsset, 0, len(urls))
	if len(urls) == 0 {
		return assets, nil
	}

	if err := os.MkdirAll(d.cfg.VideoDir, 0o755); err != nil {
		return nil, apperrors.NewMedia("create video directory", d.cfg.VideoDir, err)
	}

	token, err := d.lookup.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to authenticate for video lookup: %w", err)
	}

	for i, src := range urls {
		log.Infof("🎬 Processing video %d/%d: %s", i+1, len(urls), src)

		asset, err := d.processVideo(ctx, token, productID, productURL, src, i+1)
		if err != nil {
			d.metrics.IncMedia(kindVideo, metrics.ResultFailed)
			log.Errorf("❌ Video download/convert failed for %s: %v", src, err)
			_ = d.waiter.Wait(ctx)
			return nil, err
		}
		assets = append(assets, asset)

		if err := d.waiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	return assets, nil
}

func (d *downloader) processVideo(ctx context.Context, token, productID, productURL, src string, index int) (domain.VideoAsset, error) {
	status, err := d.lookup.VideoExists(ctx, token, src)
	if err != nil {
		return domain.VideoAsset{}, fmt.Errorf("failed to check video: %w", err)
	}
	if status != nil && status.Exists {
		log.Infof("♻️ Exists on server, using %s", status.SalezVideo)
		d.metrics.IncMedia(kindVideo, metrics.ResultReused)
		return domain.VideoAsset{Source: src, Served: status.SalezVideo}, nil
	}

	ext := strings.ToLower(normalize.Extension(src))
	if ext == "" {
		ext = defaultVideoExt
	}
	raw := fmt.Sprintf("%s%s_%d%s", d.cfg.VideoNamePrefix, productID, index, ext)
	rawPath := filepath.Join(d.cfg.VideoDir, raw)

	log.Infof("⬇️ Downloading %s → %s", src, raw)
	if err := d.store(ctx, src, productURL, rawPath); err != nil {
		return domain.VideoAsset{}, err
	}

	final := raw
	if ext == ".webm" {
		final = strings.TrimSuffix(raw, ext) + defaultVideoExt
		if err := d.transcoder.Transcode(ctx, rawPath, filepath.Join(d.cfg.VideoDir, final)); err != nil {
			return domain.VideoAsset{}, err
		}
		if err := os.Remove(rawPath); err != nil {
			return domain.VideoAsset{}, apperrors.NewMedia("remove raw video", rawPath, err)
		}
	}

	d.metrics.IncMedia(kindVideo, metrics.ResultSuccess)
	log.Infof("✔️ Video saved: %s", final)
	return domain.VideoAsset{Source: src, Served: d.cfg.VideoPublicPrefix + final}, nil
}

// store downloads src into path, removing the partial file on failure.
func (d *downloader) store(ctx context.Context, src, referer, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return apperrors.NewMedia("create file", path, err)
	}

	if _, err := d.fetcher.Download(ctx, src, referer, f); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}

	if err := f.Close(); err != nil {
		os.Remove(path)
		return apperrors.NewMedia("close file", path, err)
	}
	return nil
}
