package vtm

import (
	"context"
	"errors"
	log "log/slog"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/sethvargo/go-retry"
)

// DefaultMaxRetries is the retry budget for RetryN/YieldRetryN, matching spec.md §5's
// "N=10 default" for the conflict-retry helpers.
const DefaultMaxRetries = 10

// RetryN repeatedly invokes f, retrying only on a transaction_concurrent_lock error, up to max
// attempts (DefaultMaxRetries when max<=0); any other error is returned immediately. This is
// spec.md §4.2's retry_n<N>, specialized with generics so callers get a typed result rather than
// an output parameter.
func RetryN[T any](ctx context.Context, max int, f func(ctx context.Context) (T, error)) (T, error) {
	return retryN(ctx, max, f, false)
}

// YieldRetryN behaves like RetryN but yields the goroutine between attempts (spec.md's
// yield_retry_n<N>), giving the lock holder a better chance to release before the next attempt.
func YieldRetryN[T any](ctx context.Context, max int, f func(ctx context.Context) (T, error)) (T, error) {
	return retryN(ctx, max, f, true)
}

func retryN[T any](ctx context.Context, max int, f func(ctx context.Context) (T, error), yield bool) (T, error) {
	if max <= 0 {
		max = DefaultMaxRetries
	}
	var result T
	// Conflict retries are bounded by count, not time (spec.md §5 specifies no time-based
	// deadline), so a short constant backoff is used here rather than the teacher's Fibonacci
	// backoff, which is tuned for slower, transient filesystem errors below.
	b := retry.NewConstant(time.Millisecond)
	err := retry.Do(ctx, retry.WithMaxRetries(uint64(max-1), b), func(ctx context.Context) error {
		v, err := f(ctx)
		if err == nil {
			result = v
			return nil
		}
		if IsKind(err, KindTransactionConcurrentLock) {
			if yield {
				yieldGoroutine()
			}
			return retry.RetryableError(err)
		}
		return err
	})
	return result, err
}

// Retry executes task with Fibonacci backoff up to 5 retries, matching the teacher's retry.go.
// Used for transient filesystem/mapping errors rather than transaction lock conflicts.
func Retry(ctx context.Context, task func(ctx context.Context) error, gaveUpTask func(ctx context.Context)) error {
	b := retry.NewFibonacci(1 * time.Second)
	if err := retry.Do(ctx, retry.WithMaxRetries(5, b), task); err != nil {
		log.Warn(err.Error() + ", gave up")
		if gaveUpTask != nil {
			gaveUpTask(ctx)
		}
		return err
	}
	return nil
}

// ShouldRetry reports whether err looks transient (worth a retry) as opposed to a permanent
// failure such as a lifecycle-misuse or data-corruption error.
func ShouldRetry(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, os.ErrNotExist) || errors.Is(err, os.ErrPermission) ||
		errors.Is(err, os.ErrClosed) || errors.Is(err, os.ErrExist) {
		return false
	}
	switch {
	case errors.Is(err, syscall.EROFS), errors.Is(err, syscall.ENOSPC), errors.Is(err, syscall.EDQUOT),
		errors.Is(err, syscall.EMFILE), errors.Is(err, syscall.ENFILE), errors.Is(err, syscall.EACCES),
		errors.Is(err, syscall.EPERM), errors.Is(err, syscall.ENAMETOOLONG), errors.Is(err, syscall.ENOTDIR),
		errors.Is(err, syscall.EISDIR), errors.Is(err, syscall.ENOTEMPTY), errors.Is(err, syscall.EMLINK),
		errors.Is(err, syscall.ELOOP), errors.Is(err, syscall.EXDEV), errors.Is(err, syscall.EEXIST),
		errors.Is(err, syscall.EINVAL):
		return false
	}
	if strings.Contains(err.Error(), "read-only file system") {
		return false
	}
	// Lifecycle-misuse and corruption errors are programmer/data errors, never transient.
	for _, k := range []Kind{KindTransactionNotStarted, KindTransactionGhostState,
		KindROTransactionStarted, KindCannotStartROTransaction, KindInvalidSignature, KindInvalidBlock} {
		if IsKind(err, k) {
			return false
		}
	}
	return true
}
