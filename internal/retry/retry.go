package retry

import (
	"context"
	"errors"
	"time"
)

// Class is the retry classification of a failure.
type Class int

const (
	// Transient failures may succeed on a later attempt.
	Transient Class = iota
	// Permanent failures will not succeed without intervention.
	Permanent
)

func (c Class) String() string {
	if c == Permanent {
		return "permanent"
	}
	return "transient"
}

// Classifier maps an error to a Class.
type Classifier func(error) Class

// BackoffFunc returns the delay before the attempt that follows attempt
// (1-based).
type BackoffFunc func(attempt int) time.Duration

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Policy describes how an operation is retried.
type Policy struct {
	MaxAttempts int
	Backoff     BackoffFunc
	Classify    Classifier
	Sleep       SleepFunc
}

// Outcome reports how a Do call ended.
type Outcome struct {
	Attempts int
	Err      error
	// Class is the classification of Err; meaningless when Err is nil.
	Class Class
}

// Defaults used by DefaultPolicy.
const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = time.Second
	DefaultMaxDelay    = 30 * time.Second
)

// DefaultPolicy returns three attempts with exponential 1s to 30s backoff,
// treating every failure as transient.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: DefaultMaxAttempts,
		Backoff:     Exponential(DefaultBaseDelay, DefaultMaxDelay),
	}
}

// Fixed waits d between every attempt.
func Fixed(d time.Duration) BackoffFunc {
	return func(int) time.Duration {
		if d < 0 {
			return 0
		}
		return d
	}
}

// Exponential doubles base after every attempt, capped at maxDelay:
// attempt 1 -> base, attempt 2 -> base*2, attempt 3 -> base*4, ...
func Exponential(base, maxDelay time.Duration) BackoffFunc {
	return func(attempt int) time.Duration {
		if base <= 0 {
			return 0
		}
		if attempt <= 0 {
			attempt = 1
		}
		delay := base
		for i := 1; i < attempt; i++ {
			if maxDelay > 0 && delay > maxDelay/2 {
				delay = maxDelay
				break
			}
			delay *= 2
		}
		if maxDelay > 0 && delay > maxDelay {
			return maxDelay
		}
		return delay
	}
}

// Do runs op until it succeeds, fails permanently, exhausts the attempt
// budget, or ctx is done.
func (p Policy) Do(ctx context.Context, op func(ctx context.Context, attempt int) error) Outcome {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var out Outcome
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if out.Err == nil {
				out.Err = err
			}
			out.Class = Permanent
			return out
		}

		out.Attempts = attempt
		err := op(ctx, attempt)
		if err == nil {
			return Outcome{Attempts: attempt}
		}
		out.Err = err
		out.Class = p.classify(ctx, err)
		if out.Class == Permanent || attempt == attempts {
			return out
		}
		if err := p.sleep(ctx, p.delay(attempt)); err != nil {
			out.Class = Permanent
			return out
		}
	}
	return out
}

func (p Policy) classify(ctx context.Context, err error) Class {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return Permanent
	}
	if p.Classify == nil {
		return Transient
	}
	return p.Classify(err)
}

func (p Policy) delay(attempt int) time.Duration {
	if p.Backoff == nil {
		return 0
	}
	return p.Backoff(attempt)
}

func (p Policy) sleep(ctx context.Context, d time.Duration) error {
	if p.Sleep != nil {
		return p.Sleep(ctx, d)
	}
	return Sleep(ctx, d)
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
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
