package retry

import (
	"context"
	"time"

	"github.com/jpillora/backoff"
	"github.com/sirupsen/logrus"
)

const (
	defaultRetryMinBackoff = 1 * time.Second
	defaultRetryMaxBackoff = 5 * time.Second
)

type RunValueFunc[T any] func(ctx context.Context) (T, error)
type CheckFunc func(tries int, err error) bool
type checkFuncWithPrevious func(tries int, err error, shouldRetry bool) bool

type Retry[T any] struct {
	run     RunValueFunc[T]
	check   CheckFunc
	backoff *backoff.Backoff
}

func NewWithValue[T any](run RunValueFunc[T]) *Retry[T] {
	return &Retry[T]{
		run: run,
		check: func(_ int, _ error) bool {
			return true
		},
		backoff: &backoff.Backoff{Min: defaultRetryMinBackoff, Max: defaultRetryMaxBackoff},
	}
}

func (r *Retry[T]) wrapCheck(newCheck checkFuncWithPrevious) *Retry[T] {
	originalCheck := r.check
	return r.WithCheck(func(tries int, err error) bool {
		shouldRetry := false
		if originalCheck != nil {
			shouldRetry = originalCheck(tries, err)
		}

		return newCheck(tries, err, shouldRetry)
	})
}

func (r *Retry[T]) WithCheck(check CheckFunc) *Retry[T] {
	r.check = check
	return r
}

func (r *Retry[T]) WithMaxTries(max int) *Retry[T] {
	return r.wrapCheck(func(tries int, err error, shouldRetry bool) bool {
		if tries >= max {
			return false
		}

		return shouldRetry
	})
}

func (r *Retry[T]) WithBackoff(min, max time.Duration) *Retry[T] {
	r.backoff = &backoff.Backoff{Min: min, Max: max}
	return r
}

// WithFixedInterval waits the same amount of time between every try.
func (r *Retry[T]) WithFixedInterval(interval time.Duration) *Retry[T] {
	r.backoff = &backoff.Backoff{Min: interval, Max: interval, Factor: 1}
	return r
}

func (r *Retry[T]) WithLogrus(log logrus.FieldLogger) *Retry[T] {
	return r.wrapCheck(func(tries int, err error, shouldRetry bool) bool {
		if shouldRetry {
			log.WithError(err).WithField("tries", tries).Warningln("Retrying...")
		}

		return shouldRetry
	})
}

// RunValue calls the run function until it succeeds, the check function
// refuses another try or ctx is done. When ctx ends the wait the last error
// of the run function is returned, or ctx.Err() if there was none.
func (r *Retry[T]) RunValue(ctx context.Context) (T, error) {
	var err error
	var tries int
	var value T
	for {
		tries++
		value, err = r.run(ctx)
		if err == nil || !r.check(tries, err) {
			break
		}

		timer := time.NewTimer(r.backoff.Duration())
		select {
		case <-ctx.Done():
			timer.Stop()
			if err == nil {
				err = ctx.Err()
			}
			return value, err
		case <-timer.C:
		}
	}

	return value, err
}
