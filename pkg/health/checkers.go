package health

import (
	"context"
	"runtime"

	"github.com/go-faster/errors"
)

// Pinger matches pgxpool.Pool and anything else that can report connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingCheck reports the dependency unhealthy when Ping fails.
func PingCheck(p Pinger) Check {
	return func(ctx context.Context) error {
		if err := p.Ping(ctx); err != nil {
			return errors.Wrap(err, "ping")
		}
		return nil
	}
}

// GoroutineCountCheck fails when the process leaks goroutines past limit.
func GoroutineCountCheck(limit int) Check {
	return func(_ context.Context) error {
		if n := runtime.NumGoroutine(); n > limit {
			return errors.Errorf("too many goroutines: %d > %d", n, limit)
		}
		return nil
	}
}
