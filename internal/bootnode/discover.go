package bootnode

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/dreamware/nodekeeper/internal/enode"
	"github.com/dreamware/nodekeeper/internal/metrics"
)

// Discovery defaults.
const (
	DefaultRetryLimit = 100
	DefaultRetryDelay = 5 * time.Second
)

// StaticEnodesFetcher is the registry read Discover retries.
type StaticEnodesFetcher interface {
	StaticEnodes(ctx context.Context) ([]enode.Address, error)
}

// FetcherFunc adapts a function to StaticEnodesFetcher.
type FetcherFunc func(ctx context.Context) ([]enode.Address, error)

// StaticEnodes calls f.
func (f FetcherFunc) StaticEnodes(ctx context.Context) ([]enode.Address, error) { return f(ctx) }

// DiscoverOption configures Discover.
type DiscoverOption func(*discovery)

type discovery struct {
	clock   clock.Clock
	sleep   func(ctx context.Context, d time.Duration) error
	logger  *zap.Logger
	metrics *metrics.Metrics
	delay   time.Duration
	limit   int
}

// WithRetryLimit sets how many times a failed or empty fetch is retried.
// Zero means a single attempt.
func WithRetryLimit(n int) DiscoverOption {
	return func(d *discovery) {
		if n >= 0 {
			d.limit = n
		}
	}
}

// WithRetryDelay sets the pause before each retry.
func WithRetryDelay(delay time.Duration) DiscoverOption {
	return func(d *discovery) {
		d.delay = delay
	}
}

// WithClock sets the clock the default sleep waits on.
func WithClock(c clock.Clock) DiscoverOption {
	return func(d *discovery) {
		d.clock = c
	}
}

// WithSleep replaces the function that pauses between attempts.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) DiscoverOption {
	return func(d *discovery) {
		d.sleep = sleep
	}
}

// WithLogger sets the logger for Discover.
func WithLogger(l *zap.Logger) DiscoverOption {
	return func(d *discovery) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithMetrics counts attempts by result.
func WithMetrics(m *metrics.Metrics) DiscoverOption {
	return func(d *discovery) {
		d.metrics = m
	}
}

// Discover fetches the static enodes, retrying while the registry fails or
// returns an empty list. It blocks: it is meant to run before anything
// else starts.
//
// Parameters:
//   - ctx: Cancels the wait between attempts and the attempts themselves
//   - f: Registry read, normally *Client
//   - opts: Retry ceiling (default 100), delay (default 5s), logging
//
// Returns:
//   - []enode.Address: The first non-empty list, or an empty list when the
//     retries ran out or ctx ended
func Discover(ctx context.Context, f StaticEnodesFetcher, opts ...DiscoverOption) []enode.Address {
	d := &discovery{
		clock:  clock.New(),
		logger: zap.NewNop(),
		delay:  DefaultRetryDelay,
		limit:  DefaultRetryLimit,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.sleep == nil {
		d.sleep = d.sleepContext
	}

	for attempt := 0; ; attempt++ {
		d.logger.Info("fetching static enodes",
			zap.Int("attempt", attempt),
			zap.Int("limit", d.limit))

		nodes, err := f.StaticEnodes(ctx)
		switch {
		case err != nil:
			d.metrics.Discovery(metrics.DiscoveryError)
			d.logger.Warn("fetch static enodes", zap.Error(err))
		case len(nodes) == 0:
			d.metrics.Discovery(metrics.DiscoveryEmpty)
			d.logger.Info("registry has no static enodes yet")
		default:
			d.metrics.Discovery(metrics.DiscoveryFound)
			d.logger.Info("static enodes found", zap.Int("count", len(nodes)))
			return nodes
		}

		if attempt >= d.limit {
			d.logger.Warn("static enode discovery gave up, starting without peers",
				zap.Int("attempts", attempt+1))
			return []enode.Address{}
		}
		if err := d.sleep(ctx, d.delay); err != nil {
			d.logger.Warn("static enode discovery cancelled", zap.Error(err))
			return []enode.Address{}
		}
	}
}

func (d *discovery) sleepContext(ctx context.Context, delay time.Duration) error {
	t := d.clock.Timer(delay)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
