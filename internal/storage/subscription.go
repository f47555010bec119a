package storage

import (
	"context"
	"sync"
	"time"
)

// Snapshot: полный результат live-запроса на момент изменения.
type Snapshot struct {
	Seq  uint64
	At   time.Time
	Docs []Document
}

// Subscription: явный дескриптор live-запроса.
// Lifecycle: NewSubscription -> Go(producer) -> [Publish...] -> Cancel.
// Канал C() хранит не больше одного снимка: неполученный устаревший снимок заменяется новым,
// так как каждый снимок полностью заменяет предыдущий.
type Subscription struct {
	ch     chan Snapshot
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu       sync.Mutex
	seq      uint64
	onCancel []func()

	once sync.Once
	wg   sync.WaitGroup
}

// NewSubscription создаёт дескриптор; контекст продюсера отменяется при Cancel или отмене parent.
func NewSubscription(parent context.Context) *Subscription {
	ctx, cancel := context.WithCancel(parent)
	return &Subscription{
		ch:     make(chan Snapshot, 1),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// C отдаёт снимки. Канал не закрывается, завершение сигнализирует Done().
func (s *Subscription) C() <-chan Snapshot { return s.ch }

// Done закрывается после Cancel или завершения продюсера.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// OnCancel регистрирует освобождение ресурсов бэкенда (отписка от канала, хаба).
func (s *Subscription) OnCancel(fn func()) {
	s.mu.Lock()
	s.onCancel = append(s.onCancel, fn)
	s.mu.Unlock()
}

// Go запускает продюсера; его выход завершает подписку.
func (s *Subscription) Go(fn func(ctx context.Context)) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.terminate()
		fn(s.ctx)
	}()
}

// Publish кладёт снимок, вытесняя неполученный предыдущий. false, подписка уже отменена.
func (s *Subscription) Publish(docs []Document) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	snap := Snapshot{Seq: s.seq, At: time.Now(), Docs: docs}
	select {
	case <-s.ch:
	default:
	}
	select {
	case s.ch <- snap:
	default:
	}
	return true
}

func (s *Subscription) terminate() {
	s.once.Do(func() {
		s.cancel()
		close(s.done)
		s.mu.Lock()
		hooks := s.onCancel
		s.onCancel = nil
		s.mu.Unlock()
		for _, fn := range hooks {
			fn()
		}
	})
}

// Cancel останавливает доставку и ждёт выхода продюсера. Безопасно вызывать многократно.
// Нельзя вызывать из самого продюсера.
func (s *Subscription) Cancel() {
	s.terminate()
	s.wg.Wait()
}
