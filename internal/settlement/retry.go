package settlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"
)

// RetryPolicy bounds every settlement call.
type RetryPolicy struct {
	CallTimeout       time.Duration
	Attempts          int
	Interval          time.Duration
	BackoffMultiplier float64
}

// DefaultRetryPolicy is used for zero fields of a configured policy.
var DefaultRetryPolicy = RetryPolicy{
	CallTimeout:       5 * time.Second,
	Attempts:          3,
	Interval:          200 * time.Millisecond,
	BackoffMultiplier: 2,
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.CallTimeout <= 0 {
		p.CallTimeout = DefaultRetryPolicy.CallTimeout
	}
	if p.Attempts <= 0 {
		p.Attempts = DefaultRetryPolicy.Attempts
	}
	if p.Interval <= 0 {
		p.Interval = DefaultRetryPolicy.Interval
	}
	if p.BackoffMultiplier < 1 {
		p.BackoffMultiplier = DefaultRetryPolicy.BackoffMultiplier
	}
	return p
}

// RetryingClient wraps a Client with a per-call timeout and exponential
// backoff. Permanent errors are returned without retrying.
type RetryingClient struct {
	next   Client
	policy RetryPolicy
	logger *slog.Logger
}

func NewRetryingClient(next Client, policy RetryPolicy, logger *slog.Logger) *RetryingClient {
	return &RetryingClient{
		next:   next,
		policy: policy.withDefaults(),
		logger: logger,
	}
}

var _ Client = (*RetryingClient)(nil)

func (r *RetryingClient) Open(ctx context.Context, req OpenRequest) (string, error) {
	var ref string
	err := r.do(ctx, "open", func(ctx context.Context) error {
		var err error
		ref, err = r.next.Open(ctx, req)
		return err
	})
	return ref, err
}

func (r *RetryingClient) Fund(ctx context.Context, ref string, amount float64) error {
	return r.do(ctx, "fund", func(ctx context.Context) error {
		return r.next.Fund(ctx, ref, amount)
	})
}

func (r *RetryingClient) ConfirmDelivery(ctx context.Context, ref string) error {
	return r.do(ctx, "confirm", func(ctx context.Context) error {
		return r.next.ConfirmDelivery(ctx, ref)
	})
}

func (r *RetryingClient) Refund(ctx context.Context, ref string) error {
	return r.do(ctx, "refund", func(ctx context.Context) error {
		return r.next.Refund(ctx, ref)
	})
}

func (r *RetryingClient) GetState(ctx context.Context, ref string) (*ContractState, error) {
	var state *ContractState
	err := r.do(ctx, "get_state", func(ctx context.Context) error {
		var err error
		state, err = r.next.GetState(ctx, ref)
		return err
	})
	return state, err
}

func (r *RetryingClient) do(ctx context.Context, op string, call func(ctx context.Context) error) error {
	var lastErr error

	for attempt := 0; attempt < r.policy.Attempts; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(float64(r.policy.Interval) * math.Pow(r.policy.BackoffMultiplier, float64(attempt-1)))

			r.logger.Warn("Retrying settlement call",
				slog.String("op", op),
				slog.Int("attempt", attempt+1),
				slog.Duration("backoff", backoff),
				slog.Any("error", lastErr),
			)

			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return fmt.Errorf("settlement %s cancelled: %w", op, ctx.Err())
			}
		}

		callCtx, cancel := context.WithTimeout(ctx, r.policy.CallTimeout)
		err := call(callCtx)
		cancel()

		if err == nil {
			return nil
		}
		if IsPermanent(err) {
			return err
		}
		if errors.Is(ctx.Err(), context.Canceled) {
			return fmt.Errorf("settlement %s cancelled: %w", op, err)
		}
		lastErr = err
	}

	return fmt.Errorf("settlement %s failed after %d attempts: %w", op, r.policy.Attempts, lastErr)
}
