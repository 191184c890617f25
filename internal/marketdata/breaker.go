package marketdata

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"daytrader/internal/models"
)

// CircuitBreakerProvider wraps a Provider so a misbehaving market-data
// backend trips open instead of stalling every strategy loop.
type CircuitBreakerProvider struct {
	provider Provider
	breaker  *gobreaker.CircuitBreaker
}

var _ Provider = (*CircuitBreakerProvider)(nil)

// BreakerSettings configures trip behavior.
type BreakerSettings struct {
	MaxRequests  uint32        // max requests allowed half-open
	Interval     time.Duration // counts reset interval
	Timeout      time.Duration // how long the circuit stays open
	MinRequests  uint32        // min requests before tripping
	FailureRatio float64       // trip threshold
}

// NewCircuitBreakerProvider wraps provider with sensible defaults.
func NewCircuitBreakerProvider(provider Provider, logger *logrus.Logger) *CircuitBreakerProvider {
	return NewCircuitBreakerProviderWithSettings(provider, logger, BreakerSettings{
		MaxRequests:  3,
		Interval:     60 * time.Second,
		Timeout:      30 * time.Second,
		MinRequests:  5,
		FailureRatio: 0.6,
	})
}

// NewCircuitBreakerProviderWithSettings wraps provider with custom settings.
func NewCircuitBreakerProviderWithSettings(
	provider Provider,
	logger *logrus.Logger,
	settings BreakerSettings,
) *CircuitBreakerProvider {
	return &CircuitBreakerProvider{
		provider: provider,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "MarketDataCircuitBreaker",
			MaxRequests: settings.MaxRequests,
			Interval:    settings.Interval,
			Timeout:     settings.Timeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				if counts.Requests == 0 || counts.Requests < settings.MinRequests {
					return false
				}
				ratio := float64(counts.TotalFailures) / float64(counts.Requests)
				return ratio >= settings.FailureRatio
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.WithFields(logrus.Fields{
					"breaker": name,
					"from":    from.String(),
					"to":      to.String(),
				}).Warn("market-data circuit breaker state change")
			},
		}),
	}
}

// execBreaker is a generic helper for the wrapper methods.
func execBreaker[T any](
	breaker *gobreaker.CircuitBreaker,
	provider Provider,
	fn func(Provider) (T, error),
) (T, error) {
	var zero T
	res, err := breaker.Execute(func() (interface{}, error) { return fn(provider) })
	if err != nil {
		return zero, err
	}
	if res == nil {
		return zero, nil
	}
	v, ok := res.(T)
	if !ok {
		return zero, errors.New("circuit breaker: type assertion failed")
	}
	return v, nil
}

func (c *CircuitBreakerProvider) IsMarketOpen(ctx context.Context) (bool, error) {
	return execBreaker(c.breaker, c.provider, func(p Provider) (bool, error) {
		return p.IsMarketOpen(ctx)
	})
}

func (c *CircuitBreakerProvider) Clock(ctx context.Context) (*models.Clock, error) {
	return execBreaker(c.breaker, c.provider, func(p Provider) (*models.Clock, error) {
		return p.Clock(ctx)
	})
}

func (c *CircuitBreakerProvider) Quote(ctx context.Context, ticker string) (*models.Quote, error) {
	return execBreaker(c.breaker, c.provider, func(p Provider) (*models.Quote, error) {
		return p.Quote(ctx, ticker)
	})
}

func (c *CircuitBreakerProvider) Bars(ctx context.Context, ticker string, limit int) ([]models.Bar, error) {
	return execBreaker(c.breaker, c.provider, func(p Provider) ([]models.Bar, error) {
		return p.Bars(ctx, ticker, limit)
	})
}

func (c *CircuitBreakerProvider) Screener(ctx context.Context) (*Screener, error) {
	return execBreaker(c.breaker, c.provider, func(p Provider) (*Screener, error) {
		return p.Screener(ctx)
	})
}
