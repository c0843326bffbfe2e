package queue

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"payngo/scraper/internal/config"
	"payngo/scraper/internal/domain"
	"payngo/scraper/internal/domain/task"
)

func scrapeTask() *task.ScrapeTask {
	return &task.ScrapeTask{
		ID: "64f1c0ffee",
		Principle: task.ScrapePrinciple{Categories: []domain.Category{
			{Slug: "tv", Link: "https://www.payngo.co.il/tv.html", Name: "טלוויזיות"},
		}},
	}
}

func TestDecodeScrapeTask(t *testing.T) {
	data, err := scrapeTask().TaskValue()
	require.NoError(t, err)

	decoded, err := DecodeScrapeTask(redis.XMessage{
		ID:     "1-0",
		Values: map[string]interface{}{fieldTaskType: task.ScrapeTaskType, fieldTaskData: string(data)},
	})
	require.NoError(t, err)
	assert.Equal(t, scrapeTask(), decoded)
}

func TestDecodeScrapeTaskRejectsForeignMessages(t *testing.T) {
	_, err := DecodeScrapeTask(redis.XMessage{ID: "1-0", Values: map[string]interface{}{"init": "dummy"}})
	assert.Error(t, err)

	_, err = DecodeScrapeTask(redis.XMessage{ID: "2-0", Values: map[string]interface{}{fieldTaskType: task.ScrapeTaskType}})
	assert.Error(t, err)

	_, err = DecodeScrapeTask(redis.XMessage{
		ID:     "3-0",
		Values: map[string]interface{}{fieldTaskType: task.ScrapeTaskType, fieldTaskData: `{"scrapPrinciple":{}}`},
	})
	assert.Error(t, err, "a task without _id is invalid")
}

// redisClient connects to REDIS_ADDR (default localhost:6379) and skips the test when nothing listens there.
func redisClient(t *testing.T) *redis.Client {
	t.Helper()

	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr, DB: 15})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		t.Skipf("redis not available at %s: %v", addr, err)
	}
	return rdb
}

func TestRedisQueueRoundTrip(t *testing.T) {
	rdb := redisClient(t)
	ctx := context.Background()
	t.Cleanup(func() {
		rdb.Del(context.Background(), ScrapeStream)
		rdb.Close()
	})

	group := fmt.Sprintf("test-%s", uuid.NewString())
	q, err := NewRedisQueue(ctx, rdb, config.RedisConfig{ConsumerGroup: group})
	require.NoError(t, err)
	q.block = 100 * time.Millisecond

	// A second call finds the group already there.
	require.NoError(t, q.EnsureStreamsExist(ctx))

	id, err := q.AddTask(ctx, scrapeTask())
	require.NoError(t, err)
	require.NotEmpty(t, id)

	msg, err := q.GetTask(ctx, group, "worker-1", ScrapeStream)
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, id, msg.ID)

	decoded, err := DecodeScrapeTask(*msg)
	require.NoError(t, err)
	assert.Equal(t, "64f1c0ffee", decoded.ID)

	claimed, err := q.AutoClaim(ctx, group, "worker-2", ScrapeStream, 0)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, id, claimed[0].ID)

	require.NoError(t, q.AckTask(ctx, ScrapeStream, group, id))

	empty, err := q.GetTask(ctx, group, "worker-1", ScrapeStream)
	require.NoError(t, err)
	assert.Nil(t, empty)
}
