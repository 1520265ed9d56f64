package llm

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/ganz677/wb/internal/domain"
)

var (
	retryInExpr    = regexp.MustCompile(`(?i)(retry in|retry_after|retry-after)\s*:?[\s=]*([0-9]+(?:\.[0-9]+)?)`)
	retryDelayExpr = regexp.MustCompile(`(?i)retry_delay\s*\{\s*seconds:\s*([0-9]+)`)
)

// RetryPolicy bounds backend retries: exponential from BaseDelay, each wait
// capped at MaxDelay, at most MaxRetries retries after the first attempt.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Sleep      func(ctx context.Context, d time.Duration) error
}

// DefaultRetryPolicy mirrors the backend's documented quota behaviour.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 6, BaseDelay: 600 * time.Millisecond, MaxDelay: 15 * time.Second}
}

// verdict tells the retry loop how to treat a failed attempt.
type verdict struct {
	retry bool
	quota bool
	hint  time.Duration
}

func (p RetryPolicy) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.BaseDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = p.MaxDelay
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// run calls the backend until it succeeds, a failure is judged final, or the
// retry budget is spent. A persistent quota failure surfaces as *domain.QuotaError.
func (p RetryPolicy) run(ctx context.Context, logger *slog.Logger, call func(context.Context) (string, error), judge func(error) verdict) (string, error) {
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepContext
	}
	b := p.newBackOff()

	var (
		lastErr     error
		lastVerdict verdict
	)
	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		text, err := call(ctx)
		if err == nil {
			return strings.TrimSpace(text), nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}

		v := judge(err)
		if !v.retry {
			return "", err
		}
		lastErr, lastVerdict = err, v
		if attempt == p.MaxRetries {
			break
		}

		wait := b.NextBackOff()
		if v.hint > 0 {
			wait = v.hint
		}
		wait = min(wait, p.MaxDelay)

		logger.Warn("generation backend failed, retrying",
			"attempt", attempt+1, "wait", wait, "quota", v.quota, "error", err)
		if err := sleep(ctx, wait); err != nil {
			return "", err
		}
	}

	if lastVerdict.quota {
		retryAfter := lastVerdict.hint
		if retryAfter <= 0 {
			retryAfter = p.MaxDelay
		}
		return "", &domain.QuotaError{RetryAfter: retryAfter, Err: lastErr}
	}
	return "", fmt.Errorf("giving up after %d attempts: %w", p.MaxRetries+1, lastErr)
}

// retryAfterFromMessage reads server hints such as "retry in 12.5s" or
// "retry_delay { seconds: 30 }".
func retryAfterFromMessage(msg string) time.Duration {
	if m := retryInExpr.FindStringSubmatch(msg); m != nil {
		if secs, err := strconv.ParseFloat(m[2], 64); err == nil {
			return time.Duration(secs * float64(time.Second))
		}
	}
	if m := retryDelayExpr.FindStringSubmatch(msg); m != nil {
		if secs, err := strconv.ParseFloat(m[1], 64); err == nil {
			return time.Duration(secs * float64(time.Second))
		}
	}
	return 0
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
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
