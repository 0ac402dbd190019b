// Package memory is a process-local case store used in tests and single-node runs.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"trafficSOS/internal/domain"
	"trafficSOS/pkg/e"
)

type Store struct {
	mu    sync.RWMutex
	cases map[string]*domain.CaseRecord
}

func NewStore() *Store {
	return &Store{cases: make(map[string]*domain.CaseRecord)}
}

func (s *Store) Insert(_ context.Context, rec *domain.CaseRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.cases[rec.AccidentID]; ok {
		return fmt.Errorf("memory.Insert %s: %w", rec.AccidentID, e.ErrUniqueViolation)
	}
	s.cases[rec.AccidentID] = rec.Clone()
	return nil
}

func (s *Store) Get(_ context.Context, accidentID string) (*domain.CaseRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.cases[accidentID]
	if !ok {
		return nil, fmt.Errorf("memory.Get %s: %w", accidentID, e.ErrNotFound)
	}
	return rec.Clone(), nil
}

// List orders newest first, matching the postgres store.
func (s *Store) List(_ context.Context, filter domain.ListCasesRequest) ([]*domain.CaseRecord, int, error) {
	s.mu.RLock()
	matched := make([]*domain.CaseRecord, 0, len(s.cases))
	for _, rec := range s.cases {
		if filter.Status != "" && rec.Status != filter.Status {
			continue
		}
		matched = append(matched, rec.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].AccidentID < matched[j].AccidentID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := len(matched)
	if filter.Offset >= total {
		return []*domain.CaseRecord{}, total, nil
	}
	matched = matched[filter.Offset:]
	if filter.Limit > 0 && filter.Limit < len(matched) {
		matched = matched[:filter.Limit]
	}
	return matched, total, nil
}

func (s *Store) Update(_ context.Context, rec *domain.CaseRecord, expected domain.CaseStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.cases[rec.AccidentID]
	if !ok {
		return fmt.Errorf("memory.Update %s: %w", rec.AccidentID, e.ErrNotFound)
	}
	if cur.Status != expected {
		return fmt.Errorf("memory.Update %s: status is %s not %s: %w", rec.AccidentID, cur.Status, expected, e.ErrConflict)
	}
	s.cases[rec.AccidentID] = rec.Clone()
	return nil
}

func (s *Store) ListExpired(_ context.Context, cutoff time.Time) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []string
	for id, rec := range s.cases {
		if rec.Status.Terminal() && rec.CreatedAt.Before(cutoff) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *Store) Delete(_ context.Context, accidentID string, expected domain.CaseStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.cases[accidentID]
	if !ok {
		return fmt.Errorf("memory.Delete %s: %w", accidentID, e.ErrNotFound)
	}
	if cur.Status != expected {
		return fmt.Errorf("memory.Delete %s: %w", accidentID, e.ErrConflict)
	}
	delete(s.cases, accidentID)
	return nil
}

func (s *Store) CountByStatus(_ context.Context, since time.Time) (map[domain.CaseStatus]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[domain.CaseStatus]int64)
	for _, rec := range s.cases {
		if !rec.CreatedAt.Before(since) {
			out[rec.Status]++
		}
	}
	return out, nil
}

func (s *Store) CountUniqueVictims(_ context.Context, since time.Time) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{})
	for _, rec := range s.cases {
		if !rec.CreatedAt.Before(since) {
			seen[rec.VictimUserID] = struct{}{}
		}
	}
	return int64(len(seen)), nil
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.cases)
}
