// Package live: локальная проекция live-запроса: каждый снимок хранилища полностью
// заменяет кэш, документы с ошибкой декодирования пропускаются.
package live

import (
	"context"
	"fmt"
	"sync"

	"github.com/edume/internal/logger"
	"github.com/edume/internal/storage"
)

// Decoder превращает документ хранилища в значение проекции.
type Decoder[T any] func(id string, data map[string]any) (T, error)

// View владеет подпиской и её кэшем. Кэш отбрасывается вместе с подпиской при Cancel.
type View[T any] struct {
	name   string
	decode Decoder[T]
	sub    *storage.Subscription

	mu      sync.RWMutex
	items   []T
	seq     uint64
	skipped int

	changed   chan struct{}
	ready     chan struct{}
	readyOnce sync.Once
	done      chan struct{}
}

// Open подписывается на q и запускает применение снимков.
func Open[T any](ctx context.Context, store storage.Store, q storage.Query, decode Decoder[T]) (*View[T], error) {
	sub, err := store.Subscribe(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("live.Open %s: %w", q.Collection, err)
	}
	v := &View[T]{
		name:    q.Collection,
		decode:  decode,
		sub:     sub,
		changed: make(chan struct{}, 1),
		ready:   make(chan struct{}),
		done:    make(chan struct{}),
	}
	go v.run()
	return v, nil
}

func (v *View[T]) run() {
	defer close(v.done)
	for {
		select {
		case snap := <-v.sub.C():
			v.replace(snap)
		case <-v.sub.Done():
			return
		}
	}
}

func (v *View[T]) replace(snap storage.Snapshot) {
	items := make([]T, 0, len(snap.Docs))
	skipped := 0
	for _, d := range snap.Docs {
		item, err := v.decode(d.ID, d.Data)
		if err != nil {
			skipped++
			logger.Debugf("live %s: skip %s: %v", v.name, d.ID, err)
			continue
		}
		items = append(items, item)
	}
	v.mu.Lock()
	v.items = items
	v.seq = snap.Seq
	v.skipped = skipped
	v.mu.Unlock()

	v.readyOnce.Do(func() { close(v.ready) })
	select {
	case v.changed <- struct{}{}:
	default:
	}
}

// Items: копия текущего кэша в порядке хранилища.
func (v *View[T]) Items() []T {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make([]T, len(v.items))
	copy(out, v.items)
	return out
}

// Seq: номер последнего применённого снимка (0, снимков ещё не было).
func (v *View[T]) Seq() uint64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.seq
}

// Skipped: число документов последнего снимка, которые не удалось декодировать.
func (v *View[T]) Skipped() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.skipped
}

// Changed сигнализирует после каждой замены кэша; сигналы схлопываются.
func (v *View[T]) Changed() <-chan struct{} { return v.changed }

// Ready закрывается после первого применённого снимка.
func (v *View[T]) Ready() <-chan struct{} { return v.ready }

// Done закрывается, когда проекция больше не обновляется.
func (v *View[T]) Done() <-chan struct{} { return v.done }

// Cancel отменяет подписку и дожидается остановки. Повторный вызов безопасен.
func (v *View[T]) Cancel() {
	v.sub.Cancel()
	<-v.done
}
