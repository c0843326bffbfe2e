package retry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSleeper struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *recordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays = append(s.delays, d)
	return ctx.Err()
}

func TestPolicyDoSucceedsAfterFailures(t *testing.T) {
	sleeper := &recordingSleeper{}
	policy := Policy{Name: "fetch", MaxAttempts: 5, Delay: 3 * time.Second, Sleeper: sleeper}

	calls := 0
	err := policy.Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("boom")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{3 * time.Second, 3 * time.Second}, sleeper.delays)
}

func TestPolicyExhaustedReturnsLastError(t *testing.T) {
	sleeper := &recordingSleeper{}
	var retried []int
	policy := Policy{
		Name:        "details",
		MaxAttempts: 3,
		Delay:       time.Second,
		Sleeper:     sleeper,
		OnRetry:     func(attempt int, err error) { retried = append(retried, attempt) },
	}

	calls := 0
	err := policy.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return errors.New("attempt failed")
	})

	require.EqualError(t, err, "attempt failed")
	assert.Equal(t, 3, calls)
	assert.Len(t, sleeper.delays, 2, "no sleep after the final attempt")
	assert.Equal(t, []int{1, 2}, retried)
}

func TestPolicyPermanentStopsImmediately(t *testing.T) {
	sleeper := &recordingSleeper{}
	policy := Policy{Name: "submit", MaxAttempts: 10, Delay: time.Minute, Sleeper: sleeper}
	cause := errors.New("requests must not be empty")

	calls := 0
	err := policy.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return Permanent(cause)
	})

	assert.Same(t, cause, err)
	assert.Equal(t, 1, calls)
	assert.Empty(t, sleeper.delays)
	assert.True(t, IsPermanent(Permanent(cause)))
	assert.Nil(t, Permanent(nil))
}

func TestPolicyStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	policy := Policy{
		Name:        "complete",
		MaxAttempts: 100,
		Delay:       time.Minute,
		Sleeper: SleeperFunc(func(ctx context.Context, d time.Duration) error {
			cancel()
			return ctx.Err()
		}),
	}

	calls := 0
	err := policy.Do(ctx, func(ctx context.Context) error {
		calls++
		return errors.New("unavailable")
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestValueReturnsResult(t *testing.T) {
	policy := Policy{Name: "token", MaxAttempts: 2, Sleeper: &recordingSleeper{}}

	calls := 0
	token, err := Value(context.Background(), policy, func(ctx context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", errors.New("401")
		}
		return "abc", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "abc", token)
}

func TestJitterStaysInRange(t *testing.T) {
	sleeper := &recordingSleeper{}
	j := Jitter{Min: 2 * time.Second, Max: 5 * time.Second, Sleeper: sleeper}

	for i := 0; i < 50; i++ {
		require.NoError(t, j.Wait(context.Background()))
	}

	require.Len(t, sleeper.delays, 50)
	for _, d := range sleeper.delays {
		assert.GreaterOrEqual(t, d, 2*time.Second)
		assert.LessOrEqual(t, d, 5*time.Second)
	}

	fixed := Jitter{Min: time.Second, Max: time.Second}
	assert.Equal(t, time.Second, fixed.Next())
}

func TestRealSleeperHonorsCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err := RealSleeper.Sleep(ctx, time.Hour)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
}
