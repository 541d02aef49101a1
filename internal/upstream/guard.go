package upstream

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/Additional-Code/fulfillment/internal/config"
)

var guardMeter = otel.Meter("github.com/Additional-Code/fulfillment/upstream")

// ErrUnavailable is returned once retries are exhausted, the call timed out or
// the circuit is open.
var ErrUnavailable = errors.New("upstream unavailable")

// Guard bounds every call to an external collaborator with a per-attempt
// timeout, a bounded exponential retry and a circuit breaker.
type Guard struct {
	name      string
	timeout   time.Duration
	retries   int
	initial   time.Duration
	max       time.Duration
	breaker   *gobreaker.CircuitBreaker
	permanent func(error) bool
	logger    *zap.Logger
	calls     metric.Float64Histogram
}

// Option customises a Guard.
type Option func(*Guard)

// WithPermanent marks errors that must neither be retried nor count as a
// breaker failure, such as a missing order.
func WithPermanent(fn func(error) bool) Option {
	return func(g *Guard) {
		g.permanent = fn
	}
}

// NewGuard builds a guard named after the collaborator it protects.
func NewGuard(name string, cfg config.Upstream, logger *zap.Logger, opts ...Option) *Guard {
	if logger == nil {
		logger = zap.NewNop()
	}
	g := &Guard{
		name:      name,
		timeout:   cfg.Timeout,
		retries:   cfg.MaxRetries,
		initial:   cfg.RetryInitial,
		max:       cfg.RetryMax,
		permanent: func(error) bool { return false },
		logger:    logger,
	}
	for _, opt := range opts {
		opt(g)
	}

	failures := uint32(cfg.BreakerFailures)
	g.calls, _ = guardMeter.Float64Histogram("fulfillment.upstream.duration",
		metric.WithDescription("Upstream call latency per attempt"),
		metric.WithUnit("s"))
	breakerState, err := guardMeter.Int64ObservableGauge("fulfillment.upstream.breaker_state",
		metric.WithDescription("Circuit breaker state: 0 closed, 1 half-open, 2 open"))
	if err == nil {
		attrs := metric.WithAttributes(attribute.String("upstream", name))
		_, _ = guardMeter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
			o.ObserveInt64(breakerState, int64(g.breaker.State()), attrs)
			return nil
		}, breakerState)
	}

	g.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     cfg.BreakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || g.permanent(err) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("upstream circuit breaker state changed",
				zap.String("upstream", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	return g
}

// Name returns the protected collaborator's name.
func (g *Guard) Name() string {
	return g.name
}

// State exposes the breaker state.
func (g *Guard) State() gobreaker.State {
	return g.breaker.State()
}

// Do runs fn until it succeeds, fails permanently, or the retry budget is
// spent. Transient failures surface as ErrUnavailable.
func (g *Guard) Do(ctx context.Context, fn func(context.Context) error) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = g.initial
	policy.MaxInterval = g.max
	policy.MaxElapsedTime = 0

	var b backoff.BackOff = backoff.WithMaxRetries(policy, uint64(g.retries))
	b = backoff.WithContext(b, ctx)

	attempt := 0
	operation := func() error {
		attempt++
		_, err := g.breaker.Execute(func() (interface{}, error) {
			attemptCtx, cancel := context.WithTimeout(ctx, g.timeout)
			defer cancel()
			start := time.Now()
			err := fn(attemptCtx)
			g.record(ctx, start, err)
			return nil, err
		})
		switch {
		case err == nil:
			return nil
		case g.permanent(err):
			return backoff.Permanent(err)
		case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
			return backoff.Permanent(err)
		case ctx.Err() != nil:
			return backoff.Permanent(ctx.Err())
		}
		return err
	}

	notify := func(err error, wait time.Duration) {
		g.logger.Warn("upstream call failed; retrying",
			zap.String("upstream", g.name),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", wait),
			zap.Error(err),
		)
	}

	err := backoff.RetryNotify(operation, b, notify)
	if err == nil || g.permanent(err) {
		return err
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%w: %s: %v", ErrUnavailable, g.name, err)
}

func (g *Guard) record(ctx context.Context, start time.Time, err error) {
	if g.calls == nil {
		return
	}
	outcome := "ok"
	switch {
	case err == nil:
	case g.permanent(err):
		outcome = "permanent"
	default:
		outcome = "error"
	}
	g.calls.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(
		attribute.String("upstream", g.name),
		attribute.String("outcome", outcome),
	))
}
