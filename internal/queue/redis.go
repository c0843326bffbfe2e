// Package queue hands scrape tasks between producers and scraper workers over Redis streams.
package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"payngo/scraper/internal/config"
	"payngo/scraper/internal/domain/task"
)

const (
	StreamPrefix = "payngo:stream:"

	// ScrapeStream is the stream scrape tasks are published to.
	ScrapeStream = StreamPrefix + task.ScrapeTaskType

	fieldTaskType = "task_type"
	fieldTaskData = "task_data"
)

type Queue interface {
	AddTask(ctx context.Context, task task.Task) (string, error) // Returns message ID
	GetTask(ctx context.Context, group, consumer, stream string) (*redis.XMessage, error)
	AckTask(ctx context.Context, stream, group, msgID string) error
	CreateGroup(ctx context.Context, stream, group string) error
	AutoClaim(ctx context.Context, group, consumer, stream string, minIdleTime time.Duration) ([]redis.XMessage, error)
	EnsureStreamsExist(ctx context.Context) error
	Close() error
}

type RedisQueue struct {
	redisClient *redis.Client
	groupName   string
	block       time.Duration
}

func NewRedisQueue(ctx context.Context, redisClient *redis.Client, cfg config.RedisConfig) (*RedisQueue, error) {
	q := &RedisQueue{
		redisClient: redisClient,
		groupName:   cfg.ConsumerGroup,
		block:       5 * time.Second,
	}

	if err := q.EnsureStreamsExist(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure streams exist: %w", err)
	}

	return q, nil
}

func (q *RedisQueue) CreateGroup(ctx context.Context, stream, group string) error {
	err := q.redisClient.XGroupCreateMkStream(ctx, stream, group, "0").Err()
	if err != nil && strings.HasPrefix(err.Error(), "BUSYGROUP") {
		log.Infof("Group %s already exists for stream %s", group, stream)
		return nil
	}
	return err
}

func (q *RedisQueue) AddTask(ctx context.Context, t task.Task) (string, error) {
	taskType := t.TaskType()
	streamName := StreamPrefix + taskType

	taskValue, err := t.TaskValue()
	if err != nil {
		return "", fmt.Errorf("failed to serialize task: %w", err)
	}

	messageID, err := q.redisClient.XAdd(ctx, &redis.XAddArgs{
		Stream: streamName,
		Values: map[string]interface{}{
			fieldTaskType: taskType,
			fieldTaskData: string(taskValue),
		},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("failed to add task to Redis stream %s: %w", streamName, err)
	}

	log.Debugf("Added task %s to stream %s with message ID: %s", taskType, streamName, messageID)
	return messageID, nil
}

// GetTask blocks for a few seconds waiting for a new message. A nil message means none arrived.
func (q *RedisQueue) GetTask(ctx context.Context, group, consumer, stream string) (*redis.XMessage, error) {
	result, err := q.redisClient.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    group,
		Consumer: consumer,
		Streams:  []string{stream, ">"},
		Count:    1,
		Block:    q.block,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read from Redis stream %s: %w", stream, err)
	}

	if len(result) == 0 || len(result[0].Messages) == 0 {
		return nil, nil
	}

	return &result[0].Messages[0], nil
}

func (q *RedisQueue) AckTask(ctx context.Context, stream, group, msgID string) error {
	return q.redisClient.XAck(ctx, stream, group, msgID).Err()
}

// AutoClaim takes over one message that another consumer left pending for longer than minIdleTime.
func (q *RedisQueue) AutoClaim(
	ctx context.Context,
	group,
	consumer,
	stream string,
	minIdleTime time.Duration,
) ([]redis.XMessage, error) {
	result, _, err := q.redisClient.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   stream,
		Group:    group,
		Consumer: consumer,
		MinIdle:  minIdleTime,
		Start:    "0-0",
		Count:    1,
	}).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to claim messages from Redis stream %s: %w", stream, err)
	}

	return result, nil
}

func (q *RedisQueue) Close() error {
	if q.redisClient != nil {
		return q.redisClient.Close()
	}
	return nil
}

// EnsureStreamsExist creates the task streams and the consumer group upfront.
func (q *RedisQueue) EnsureStreamsExist(ctx context.Context) error {
	streams := []string{ScrapeStream}

	for _, stream := range streams {
		if err := q.CreateGroup(ctx, stream, q.groupName); err != nil {
			return fmt.Errorf("failed to create consumer group for %s: %w", stream, err)
		}
		log.Infof("✅ Stream %s and consumer group %s ready", stream, q.groupName)
	}

	return nil
}

// DecodeScrapeTask extracts and validates the scrape task carried by msg.
func DecodeScrapeTask(msg redis.XMessage) (*task.ScrapeTask, error) {
	if taskType, _ := msg.Values[fieldTaskType].(string); taskType != task.ScrapeTaskType {
		return nil, fmt.Errorf("message %s carries unexpected task type %q", msg.ID, taskType)
	}

	data, ok := msg.Values[fieldTaskData].(string)
	if !ok {
		return nil, fmt.Errorf("message %s has no task data", msg.ID)
	}

	return task.ParseScrapeTask([]byte(data))
}

var _ Queue = (*RedisQueue)(nil)
