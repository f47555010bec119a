package testutil

import (
	"context"
	"strings"
	"sync"

	"github.com/edume/internal/storage"
)

// FaultStore оборачивает Store: считает вызовы по коллекциям, может возвращать заданные
// ошибки записи и задерживать записи до Release.
type FaultStore struct {
	storage.Store

	mu        sync.Mutex
	putErr    map[string]error
	updateErr map[string]error
	calls     map[string]int
	gate      chan struct{}
}

func NewFaultStore(inner storage.Store) *FaultStore {
	return &FaultStore{
		Store:     inner,
		putErr:    make(map[string]error),
		updateErr: make(map[string]error),
		calls:     make(map[string]int),
	}
}

// FailPut: все Put в collection возвращают err (nil снимает ошибку).
func (s *FaultStore) FailPut(collection string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.putErr[collection] = err
}

func (s *FaultStore) FailUpdate(collection string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updateErr[collection] = err
}

// BlockWrites задерживает Put/Update/Delete до вызова возвращённой функции.
func (s *FaultStore) BlockWrites() (release func()) {
	gate := make(chan struct{})
	s.mu.Lock()
	s.gate = gate
	s.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			if s.gate == gate {
				s.gate = nil
			}
			s.mu.Unlock()
			close(gate)
		})
	}
}

// Calls: число вызовов op ("get", "put", "update", "delete", "subscribe") по коллекции.
func (s *FaultStore) Calls(op, collection string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op+":"+collection]
}

// Writes: суммарное число Put/Update/Delete по всем коллекциям.
func (s *FaultStore) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k, v := range s.calls {
		if strings.HasPrefix(k, "put:") || strings.HasPrefix(k, "update:") || strings.HasPrefix(k, "delete:") {
			n += v
		}
	}
	return n
}

func (s *FaultStore) record(op, collection string) chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[op+":"+collection]++
	return s.gate
}

func wait(ctx context.Context, gate chan struct{}) error {
	if gate == nil {
		return nil
	}
	select {
	case <-gate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *FaultStore) Get(ctx context.Context, q storage.Query) ([]storage.Document, error) {
	s.record("get", q.Collection)
	return s.Store.Get(ctx, q)
}

func (s *FaultStore) Put(ctx context.Context, collection, id string, data map[string]any) error {
	if err := wait(ctx, s.record("put", collection)); err != nil {
		return err
	}
	s.mu.Lock()
	err := s.putErr[collection]
	s.mu.Unlock()
	if err != nil {
		return err
	}
	return s.Store.Put(ctx, collection, id, data)
}

func (s *FaultStore) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	if err := wait(ctx, s.record("update", collection)); err != nil {
		return err
	}
	s.mu.Lock()
	err := s.updateErr[collection]
	s.mu.Unlock()
	if err != nil {
		return err
	}
	return s.Store.Update(ctx, collection, id, fields)
}

func (s *FaultStore) Delete(ctx context.Context, collection, id string) error {
	if err := wait(ctx, s.record("delete", collection)); err != nil {
		return err
	}
	return s.Store.Delete(ctx, collection, id)
}

func (s *FaultStore) Subscribe(ctx context.Context, q storage.Query) (*storage.Subscription, error) {
	s.record("subscribe", q.Collection)
	return s.Store.Subscribe(ctx, q)
}
