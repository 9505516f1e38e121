package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/boilergroups/groups-server/internal/domain"
	"github.com/boilergroups/groups-server/internal/store"
)

// instrumentedStore times group mutations and counts conflict failures.
type instrumentedStore struct {
	store.Store
	m *Metrics
}

// InstrumentStore wraps s so MutateGroup is observed by m.
func InstrumentStore(s store.Store, m *Metrics) store.Store {
	if m == nil {
		return s
	}
	return &instrumentedStore{Store: s, m: m}
}

func (s *instrumentedStore) MutateGroup(ctx context.Context, id string, fn store.MutateFunc) (*domain.Group, error) {
	start := time.Now()
	g, err := s.Store.MutateGroup(ctx, id, fn)

	result := "ok"
	switch {
	case err == nil:
	case errors.Is(err, store.ErrConflict):
		result = "conflict"
		s.m.storeConflicts.Inc()
	case errors.Is(err, store.ErrNotFound):
		result = "not_found"
	default:
		result = "error"
	}
	s.m.mutationDuration.WithLabelValues(result).Observe(time.Since(start).Seconds())
	return g, err
}
