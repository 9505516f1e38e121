package store

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"github.com/boilergroups/groups-server/internal/domain"
)

// MaxMutateAttempts bounds how often a backend retries a mutation that lost an
// optimistic concurrency race.
const MaxMutateAttempts = 32

// ApplyMutation runs fn on g and, when it succeeds, stamps the new version and
// update time. It reports whether g must be written back.
func ApplyMutation(g *domain.Group, fn MutateFunc, now time.Time) (bool, error) {
	g.Normalize()
	if err := fn(g); err != nil {
		if errors.Is(err, ErrNoChange) {
			return false, nil
		}
		return false, err
	}
	g.Version++
	g.UpdatedAt = now
	return true, nil
}

// Backoff sleeps a jittered, growing delay before retry attempt n. It returns early
// with the context's error when ctx is cancelled.
func Backoff(ctx context.Context, attempt int) error {
	ceiling := min(attempt*attempt, 250)
	d := time.Duration(1+rand.IntN(ceiling+1)) * time.Millisecond
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// PrepareNewGroup fills the bookkeeping fields of a group about to be created.
func PrepareNewGroup(g *domain.Group, now time.Time) {
	g.Normalize()
	if g.CreatedAt.IsZero() {
		g.CreatedAt = now
	}
	g.UpdatedAt = now
	if g.Version == 0 {
		g.Version = 1
	}
}
