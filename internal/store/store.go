// Package store persists match records.
package store

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/benbeisheim/unionchess-backend/internal/model"
)

var ErrNotFound = errors.New("match not found in store")

// Store is where match records outlive the in-memory registry.
type Store interface {
	SaveMatch(ctx context.Context, rec model.Record) error
	LoadMatch(ctx context.Context, key string) (model.Record, error)
}

type MemoryStore struct {
	records map[string]model.Record
	mu      sync.RWMutex
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]model.Record)}
}

func (s *MemoryStore) SaveMatch(ctx context.Context, rec model.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.Key] = clone(rec)
	return nil
}

func (s *MemoryStore) LoadMatch(ctx context.Context, key string) (model.Record, error) {
	if err := ctx.Err(); err != nil {
		return model.Record{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[key]
	if !ok {
		return model.Record{}, ErrNotFound
	}
	return clone(rec), nil
}

func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func clone(rec model.Record) model.Record {
	rec.Actions = slices.Clone(rec.Actions)
	if rec.Settings.Timer != nil {
		timer := *rec.Settings.Timer
		rec.Settings.Timer = &timer
	}
	return rec
}
