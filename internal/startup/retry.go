// Package startup: подключение к внешним зависимостям при старте процесса.
package startup

import (
	"context"
	"fmt"
	"time"

	"github.com/edume/internal/logger"
)

const (
	initialBackoff = 2 * time.Second
	maxBackoff     = 30 * time.Second
)

// withRetry вызывает connect, пока он не вернёт nil-ошибку, истечёт maxWait или отменится ctx.
// Пауза между попытками растёт от 2s до 30s.
func withRetry[T any](ctx context.Context, what string, maxWait time.Duration, connect func(ctx context.Context) (T, error)) (T, error) {
	deadline := time.Now().Add(maxWait)
	backoff := initialBackoff
	for {
		v, err := connect(ctx)
		if err == nil {
			return v, nil
		}
		if time.Now().After(deadline) {
			var zero T
			return zero, fmt.Errorf("%s (gave up after %v): %w", what, maxWait, err)
		}
		logger.Errorf("%s failed, retry in %v: %v", what, backoff, err)
		t := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			t.Stop()
			var zero T
			return zero, ctx.Err()
		case <-t.C:
		}
		if backoff < maxBackoff {
			backoff *= 2
		}
	}
}
