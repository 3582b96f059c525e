package gateway

import (
	"context"
	"time"

	"swapdesk/internal/exchange"
	"swapdesk/pkg/logger"
)

// withRetry 只对可重试分类（限频/网络超时）做指数退避重试，
// 其余错误第一次就原样返回。重试耗尽返回最后一次的错误
func withRetry(ctx context.Context, maxAttempts int, backoff time.Duration, fn func() (string, error)) (string, bool, error) {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		result, err := fn()
		if err == nil {
			return result, false, nil
		}
		if !exchange.IsRetryable(err) {
			return "", false, err
		}
		lastErr = err
		if attempt == maxAttempts {
			break
		}

		// 1x, 2x, 4x...
		wait := backoff << (attempt - 1)
		logger.Warn("submit retry",
			logger.Pair("attempt", attempt),
			logger.Pair("wait", wait.String()),
			logger.Pair("err", err))
		select {
		case <-ctx.Done():
			return "", true, ctx.Err()
		case <-time.After(wait):
		}
	}
	return "", true, lastErr
}
