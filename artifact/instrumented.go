package artifact

import (
	"context"
	"time"
)

// OpObserver receives the latency and outcome of store operations.
type OpObserver interface {
	ObserveArtifactOp(backend, op string, d time.Duration, err error)
}

type instrumented struct {
	Store
	backend  string
	observer OpObserver
}

// Instrument reports every Put, Get, Delete and List of s to o.
func Instrument(s Store, backend string, o OpObserver) Store {
	if o == nil {
		return s
	}
	return &instrumented{Store: s, backend: backend, observer: o}
}

func (s *instrumented) observe(op string, start time.Time, err error) {
	s.observer.ObserveArtifactOp(s.backend, op, time.Since(start), err)
}

func (s *instrumented) Put(ctx context.Context, key string, data []byte) error {
	start := time.Now()
	err := s.Store.Put(ctx, key, data)
	s.observe("put", start, err)
	return err
}

func (s *instrumented) Get(ctx context.Context, key string) ([]byte, error) {
	start := time.Now()
	data, err := s.Store.Get(ctx, key)
	s.observe("get", start, err)
	return data, err
}

func (s *instrumented) Delete(ctx context.Context, key string) error {
	start := time.Now()
	err := s.Store.Delete(ctx, key)
	s.observe("delete", start, err)
	return err
}

func (s *instrumented) List(ctx context.Context, prefix string) ([]string, error) {
	start := time.Now()
	keys, err := s.Store.List(ctx, prefix)
	s.observe("list", start, err)
	return keys, err
}
