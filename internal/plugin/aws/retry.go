package aws

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog/log"

	"github.com/yairfalse/kartta/pkg/resource"
)

// call runs one API request. Throttled requests are retried with
// exponential backoff up to the provider's budget; every other failure
// is returned at once, classified.
func call[T any](ctx context.Context, p *Provider, op string, fn func(context.Context) (T, error)) (T, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.baseDelay
	b.MaxInterval = maxThrottleDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0.2

	attempt := func() (T, error) {
		out, err := fn(ctx)
		if err == nil {
			return out, nil
		}
		classified := classify(op, err)
		if classified.Kind != resource.ErrKindThrottled {
			return out, backoff.Permanent(classified)
		}
		return out, classified
	}

	out, err := backoff.Retry(ctx, attempt,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(p.retries)+1),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			log.Debug().Err(err).Str("op", op).Dur("backoff", next).Msg("throttled, retrying")
		}),
	)
	if err == nil {
		return out, nil
	}

	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		err = permanent.Unwrap()
	}
	return out, classify(op, err)
}
