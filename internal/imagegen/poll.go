package imagegen

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// PollPolicy is the client polling discipline: exponential backoff from
// Initial, capped at Max, giving up after MaxWait.
type PollPolicy struct {
	Initial time.Duration
	Max     time.Duration
	MaxWait time.Duration
}

var DefaultPollPolicy = PollPolicy{
	Initial: time.Second,
	Max:     8 * time.Second,
	MaxWait: 2 * time.Minute,
}

var errNotTerminal = errors.New("job not terminal")

func (p PollPolicy) backOff() backoff.BackOff {
	if p.MaxWait <= 0 {
		return &backoff.StopBackOff{}
	}
	if p.Initial <= 0 {
		p.Initial = DefaultPollPolicy.Initial
	}
	if p.Max < p.Initial {
		p.Max = p.Initial
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.Initial
	b.MaxInterval = p.Max
	b.MaxElapsedTime = p.MaxWait
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.Reset()
	return b
}

// Await polls status until the job is terminal. When MaxWait elapses first it
// returns the last view together with ErrStillWorking.
func Await(ctx context.Context, status func(context.Context) (*StatusView, error), p PollPolicy) (*StatusView, error) {
	var last *StatusView
	err := backoff.Retry(func() error {
		v, err := status(ctx)
		if err != nil {
			return backoff.Permanent(err)
		}
		last = v
		if !v.Status.Terminal() {
			return errNotTerminal
		}
		return nil
	}, backoff.WithContext(p.backOff(), ctx))

	switch {
	case err == nil:
		return last, nil
	case errors.Is(err, errNotTerminal):
		return last, ErrStillWorking
	case last != nil && ctx.Err() != nil:
		return last, err
	default:
		return nil, err
	}
}
