package retry

import (
	"context"
	"math/rand/v2"
	"time"

	log "github.com/sirupsen/logrus"
)

// Waiter is a politeness pause between requests to the catalog site.
type Waiter interface {
	Wait(ctx context.Context) error
}

// WaiterFunc adapts a function to Waiter.
type WaiterFunc func(ctx context.Context) error

func (f WaiterFunc) Wait(ctx context.Context) error {
	return f(ctx)
}

// NoWait never pauses.
var NoWait Waiter = WaiterFunc(func(ctx context.Context) error { return ctx.Err() })

// Jitter waits a uniformly random duration in [Min, Max].
type Jitter struct {
	Min     time.Duration
	Max     time.Duration
	Sleeper Sleeper
}

// Next picks the next delay.
func (j Jitter) Next() time.Duration {
	if j.Max <= j.Min {
		return j.Min
	}
	return j.Min + rand.N(j.Max-j.Min+1)
}

func (j Jitter) Wait(ctx context.Context) error {
	delay := j.Next()
	log.Infof("⏳ Delaying for %.2fs", delay.Seconds())

	sleeper := j.Sleeper
	if sleeper == nil {
		sleeper = RealSleeper
	}
	return sleeper.Sleep(ctx, delay)
}
