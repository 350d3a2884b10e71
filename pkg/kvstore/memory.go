package kvstore

import (
	"context"
	"sync"
)

type memoryStore struct {
	mu    sync.RWMutex
	data  map[string][]byte
	locks sync.Map
}

func NewMemoryStore() Store {
	return &memoryStore{data: make(map[string][]byte)}
}

func (s *memoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok := s.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), value...), nil
}

func (s *memoryStore) Put(ctx context.Context, key string, value []byte) error {
	lock := s.keyLock(key)
	lock.Lock()
	defer lock.Unlock()
	s.set(key, value)
	return nil
}

func (s *memoryStore) Delete(ctx context.Context, key string) error {
	lock := s.keyLock(key)
	lock.Lock()
	defer lock.Unlock()
	s.mu.Lock()
	delete(s.data, key)
	s.mu.Unlock()
	return nil
}

func (s *memoryStore) Update(ctx context.Context, key string, fn UpdateFunc) error {
	lock := s.keyLock(key)
	lock.Lock()
	defer lock.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	current, err := s.Get(ctx, key)
	if err != nil && err != ErrNotFound {
		return err
	}
	next, err := fn(current)
	if err != nil {
		return err
	}
	if next == nil {
		s.mu.Lock()
		delete(s.data, key)
		s.mu.Unlock()
		return nil
	}
	s.set(key, next)
	return nil
}

func (s *memoryStore) set(key string, value []byte) {
	s.mu.Lock()
	s.data[key] = append([]byte(nil), value...)
	s.mu.Unlock()
}

func (s *memoryStore) keyLock(key string) *sync.Mutex {
	lock, _ := s.locks.LoadOrStore(key, &sync.Mutex{})
	return lock.(*sync.Mutex)
}
