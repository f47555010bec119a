package middleware

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/edume/internal/logger"
)

const rateLimitWindow = time.Minute

// Limiter считает запросы по ключу в окне. Реализации: LocalLimiter (память процесса)
// и redis.Client.Allow (общий счётчик для нескольких инстансов).
type Limiter interface {
	Allow(ctx context.Context, key string, max int, window time.Duration) (bool, error)
}

// LocalLimiter: скользящее окно в памяти процесса.
type LocalLimiter struct {
	mu    sync.Mutex
	times map[string][]time.Time
}

func NewLocalLimiter() *LocalLimiter {
	return &LocalLimiter{times: make(map[string][]time.Time)}
}

func (l *LocalLimiter) Allow(_ context.Context, key string, max int, window time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := time.Now()
	cutoff := now.Add(-window)
	slice := l.times[key]
	i := 0
	for _, t := range slice {
		if t.After(cutoff) {
			slice[i] = t
			i++
		}
	}
	slice = slice[:i]
	if len(slice) >= max {
		l.times[key] = slice
		return false, nil
	}
	l.times[key] = append(slice, now)
	return true, nil
}

// RateLimitAPI ограничивает запросы к /api/* по IP и по user_id (если он уже в контексте). 429 при превышении.
// Ошибка лимитера пропускает запрос.
func RateLimitAPI(l Limiter, perIP, perUser int) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !allow(r.Context(), l, "ip:"+clientIP(r), perIP) {
				http.Error(w, "too many requests", http.StatusTooManyRequests)
				return
			}
			if userID := GetUserID(r.Context()); userID != "" {
				if !allow(r.Context(), l, "u:"+userID, perUser) {
					http.Error(w, "too many requests", http.StatusTooManyRequests)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func allow(ctx context.Context, l Limiter, key string, max int) bool {
	if max <= 0 {
		return true
	}
	ok, err := l.Allow(ctx, key, max, rateLimitWindow)
	if err != nil {
		logger.Warnf("rate limit %s: %v", key, err)
		return true
	}
	return ok
}
