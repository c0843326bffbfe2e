package container

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"payngo/scraper/internal/client"
	"payngo/scraper/internal/config"
	"payngo/scraper/internal/domain/task"
	"payngo/scraper/internal/media"
	"payngo/scraper/internal/metrics"
	"payngo/scraper/internal/proxy"
	"payngo/scraper/internal/queue"
	"payngo/scraper/internal/remote"
	"payngo/scraper/internal/repository"
	"payngo/scraper/internal/retry"
	"payngo/scraper/internal/service"
)

const ackTimeout = 5 * time.Second

// Container holds all initialized components
type Container struct {
	Config     *config.Config
	Metrics    *metrics.Metrics
	Client     client.PayngoClient
	Downloader media.Downloader
	Repository repository.ProductRepository
	Remote     *remote.Client

	Service *service.Service

	queue *queue.RedisQueue
}

// New creates a new container with all dependencies initialized. Redis is connected on first use.
func New(ctx context.Context, cfg *config.Config) (*Container, error) {
	if cfg == nil {
		return nil, errors.New("nil config")
	}

	c := &Container{
		Config:  cfg,
		Metrics: metrics.New(),
	}

	proxySupplier := proxy.NewProxySupplier(ctx, cfg.Payngo.Proxies, cfg.Payngo.Domain)
	fetcher := client.NewFetcher(cfg.Payngo, cfg.Common.UserAgents, proxySupplier, client.WithMetrics(c.Metrics))

	waiter := retry.Jitter{
		Min:     cfg.Payngo.WaitMinDuration(),
		Max:     cfg.Payngo.WaitMaxDuration(),
		Sleeper: retry.RealSleeper,
	}

	c.Client = client.NewPayngoClient(cfg.Payngo.Domain, fetcher, waiter, c.Metrics)

	c.Remote = remote.New(cfg.Common, cfg.Payngo.Timeout(), retry.Policy{
		MaxAttempts: cfg.Common.RemoteMaxAttempts,
		Delay:       cfg.Common.RemoteRetryDelayDuration(),
		Sleeper:     retry.RealSleeper,
	}, remote.WithMetrics(c.Metrics))

	c.Downloader = media.NewDownloader(media.Config{
		ImageDir:          cfg.Common.SaveImageDirectoryPath,
		VideoDir:          cfg.Common.SaveVideoDirectoryPath,
		ImagePublicPrefix: cfg.Common.SaveImageDirectoryPublicPathPrefix,
		VideoPublicPrefix: cfg.Common.SaveVideoDirectoryPublicPathPrefix,
		VideoNamePrefix:   cfg.Payngo.VideoNamePrefix,
	}, fetcher, c.Remote, media.NewFFmpegTranscoder(cfg.Common.FFmpegPath), waiter, c.Metrics)

	c.Repository = repository.NewProductRepository()

	c.Service = service.NewService(
		cfg.Payngo,
		c.Client,
		c.Downloader,
		c.Repository,
		c.Remote,
		waiter,
		retry.RealSleeper,
		c.Metrics,
		service.WithCompletionGrace(cfg.Common.CompletionGraceDuration()),
	)

	return c, nil
}

// ServeMetrics exposes /metrics in the background when a listen address is configured.
func (c *Container) ServeMetrics(ctx context.Context) {
	addr := c.Config.Metrics.ListenAddr
	if addr == "" {
		return
	}

	go func() {
		if err := c.Metrics.Serve(ctx, addr); err != nil {
			log.Errorf("❌ Metrics listener stopped: %v", err)
		}
	}()
}

// RunTask scrapes a single task synchronously.
func (c *Container) RunTask(ctx context.Context, t *task.ScrapeTask) error {
	results, err := c.Service.Run(ctx, t)
	for _, r := range results {
		log.Infof("📊 %s: %d links, %d saved, %d failed, %d skipped", r.Slug, r.Links, r.Saved, r.Failed, r.Skipped)
	}
	return err
}

// Queue connects to Redis and prepares the task streams on first call.
func (c *Container) Queue(ctx context.Context) (queue.Queue, error) {
	if c.queue != nil {
		return c.queue, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     c.Config.Redis.Addr(),
		Password: c.Config.Redis.Password,
		DB:       c.Config.Redis.Database,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	log.Info("✅ Connected to Redis successfully")

	q, err := queue.NewRedisQueue(ctx, rdb, c.Config.Redis)
	if err != nil {
		rdb.Close()
		return nil, err
	}

	c.queue = q
	return q, nil
}

// Enqueue publishes t to the scrape task stream.
func (c *Container) Enqueue(ctx context.Context, t *task.ScrapeTask) (string, error) {
	if err := t.Validate(); err != nil {
		return "", err
	}

	q, err := c.Queue(ctx)
	if err != nil {
		return "", err
	}

	id, err := q.AddTask(ctx, t)
	if err != nil {
		return "", err
	}

	log.Infof("📥 Enqueued task %s as message %s", t.ID, id)
	return id, nil
}

// Consume runs scrape tasks from the stream one at a time until ctx is done. Messages left pending by a dead
// consumer are claimed before new ones are read.
func (c *Container) Consume(ctx context.Context) error {
	q, err := c.Queue(ctx)
	if err != nil {
		return err
	}

	group := c.Config.Redis.ConsumerGroup
	consumer := c.Config.Redis.Consumer
	minIdle := c.Config.Redis.MinIdleDuration()

	log.Infof("🚀 Consuming %s as %s/%s", queue.ScrapeStream, group, consumer)

	for {
		if ctx.Err() != nil {
			log.Info("🛑 Consumer stopping")
			return nil
		}

		claimed, err := q.AutoClaim(ctx, group, consumer, queue.ScrapeStream, minIdle)
		if err != nil {
			log.Errorf("❌ Failed to auto-claim messages: %v", err)
		}
		if len(claimed) > 0 {
			log.Infof("🔄 Auto-claimed %d messages", len(claimed))
			for _, msg := range claimed {
				c.handleMessage(ctx, q, msg)
			}
			continue
		}

		msg, err := q.GetTask(ctx, group, consumer, queue.ScrapeStream)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			log.Errorf("❌ Failed to get task: %v", err)
			_ = retry.RealSleeper.Sleep(ctx, c.Config.Payngo.RetryDelayDuration())
			continue
		}
		if msg != nil {
			c.handleMessage(ctx, q, *msg)
		}
	}
}

// handleMessage runs the task carried by msg. Undecodable messages are acknowledged and dropped. A task is
// acknowledged once its completion was reported, even when ctx was cancelled during the run; only a task whose
// completion report was cut short by cancellation stays pending for another consumer to claim.
func (c *Container) handleMessage(ctx context.Context, q queue.Queue, msg redis.XMessage) {
	t, err := queue.DecodeScrapeTask(msg)
	if err != nil {
		log.Errorf("❌ Dropping message %s: %v", msg.ID, err)
		c.ack(ctx, q, msg.ID)
		return
	}

	if err := c.RunTask(ctx, t); err != nil {
		log.Errorf("❌ Task %s from message %s failed: %v", t.ID, msg.ID, err)
		if ctx.Err() != nil {
			log.Warnf("🛑 Leaving message %s pending", msg.ID)
			return
		}
	}

	c.ack(ctx, q, msg.ID)
}

// ack runs detached from ctx so a shutdown does not drop the acknowledgement of a finished task.
func (c *Container) ack(ctx context.Context, q queue.Queue, msgID string) {
	ackCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ackTimeout)
	defer cancel()

	if err := q.AckTask(ackCtx, queue.ScrapeStream, c.Config.Redis.ConsumerGroup, msgID); err != nil {
		log.Errorf("❌ Failed to ack message %s: %v", msgID, err)
	}
}

// Close performs cleanup when shutting down
func (c *Container) Close() error {
	log.Info("Shutting down container...")

	var errs []error
	if c.Remote != nil {
		errs = append(errs, c.Remote.Close())
	}
	if c.queue != nil {
		errs = append(errs, c.queue.Close())
	}

	log.Info("Container shut down successfully")
	return errors.Join(errs...)
}
