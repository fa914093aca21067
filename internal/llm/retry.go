package llm

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// Retrying wraps a Provider and repeats requests that failed with a
// retryable [ProviderError], backing off exponentially between attempts.
type Retrying struct {
	Provider   Provider
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Logger     *zap.Logger

	sleep func(ctx context.Context, d time.Duration) error
}

// WithRetry wraps provider. maxRetries of 0 returns provider unchanged.
func WithRetry(provider Provider, maxRetries int, logger *zap.Logger) Provider {
	if maxRetries <= 0 {
		return provider
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retrying{
		Provider:   provider,
		MaxRetries: maxRetries,
		BaseDelay:  500 * time.Millisecond,
		MaxDelay:   8 * time.Second,
		Logger:     logger,
	}
}

// Name returns the wrapped provider's name.
func (r *Retrying) Name() string { return r.Provider.Name() }

// Complete calls the wrapped provider, retrying rate-limit, overload and
// server errors up to MaxRetries times.
func (r *Retrying) Complete(ctx context.Context, request Request) (*Response, error) {
	delay := r.BaseDelay
	for attempt := 0; ; attempt++ {
		response, err := r.Provider.Complete(ctx, request)
		if err == nil {
			return response, nil
		}

		var providerErr *ProviderError
		if attempt >= r.MaxRetries || !errors.As(err, &providerErr) || !providerErr.Retryable() {
			return nil, err
		}

		r.Logger.Warn("llm request failed, retrying",
			zap.String("provider", r.Provider.Name()),
			zap.Int("attempt", attempt+1),
			zap.Int("status", providerErr.StatusCode),
			zap.Duration("delay", delay),
		)
		if err := r.wait(ctx, delay); err != nil {
			return nil, err
		}
		delay *= 2
		if r.MaxDelay > 0 && delay > r.MaxDelay {
			delay = r.MaxDelay
		}
	}
}

func (r *Retrying) wait(ctx context.Context, d time.Duration) error {
	if r.sleep != nil {
		return r.sleep(ctx, d)
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
