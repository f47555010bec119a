package storage

import (
	"context"
	"time"

	"github.com/edume/internal/logger"
)

const (
	pumpInitialBackoff = 500 * time.Millisecond
	pumpMaxBackoff     = 30 * time.Second
)

// Pump: цикл продюсера live-запроса: публикует результат query при старте и после каждого
// сигнала notify. Ошибка чтения не завершает подписку: повтор с backoff, и следующий
// успешный снимок уходит подписчику. Выходит при отмене ctx или закрытии notify.
func Pump[T any](ctx context.Context, sub *Subscription, notify <-chan T, query func(context.Context) ([]Document, error)) {
	backoff := pumpInitialBackoff
	for {
		docs, err := query(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Errorf("live query failed, retry in %v: %v", backoff, err)
			t := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				t.Stop()
				return
			case <-t.C:
			}
			backoff = min(backoff*2, pumpMaxBackoff)
			continue
		}
		backoff = pumpInitialBackoff
		if !sub.Publish(docs) {
			return
		}
		select {
		case <-ctx.Done():
			return
		case _, ok := <-notify:
			if !ok {
				return
			}
		}
		// Схлопываем накопившиеся сигналы: один перезапрос покрывает их все.
		for drained := false; !drained; {
			select {
			case _, ok := <-notify:
				if !ok {
					return
				}
			default:
				drained = true
			}
		}
	}
}
