// Package service implements the study group operations on top of the store, the
// per-group lock, the search index and the SSE event stream.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/boilergroups/groups-server/internal/domain"
	domainerrors "github.com/boilergroups/groups-server/internal/errors"
	"github.com/boilergroups/groups-server/internal/lock"
	"github.com/boilergroups/groups-server/internal/search"
	"github.com/boilergroups/groups-server/internal/store"
)

// Recorder receives operational counters. *metrics.Metrics implements it.
type Recorder interface {
	MessageSent()
	MessageDeleted()
	Reaction(kind, action string)
	NotificationMarked(reason string, n int)
	MembershipChanged(event string)
	ObserveLockWait(d time.Duration, timedOut bool)
}

// NoopRecorder discards everything.
type NoopRecorder struct{}

func (NoopRecorder) MessageSent() {}
func (NoopRecorder) MessageDeleted() {}
func (NoopRecorder) Reaction(string, string) {}
func (NoopRecorder) NotificationMarked(string, int) {}
func (NoopRecorder) MembershipChanged(string) {}
func (NoopRecorder) ObserveLockWait(time.Duration, bool) {}

// MessageIndex keeps the search index in step with group threads. *search.Index
// implements it.
type MessageIndex interface {
	IndexMessage(groupID string, m *domain.Message) error
	DeleteMessage(groupID, messageID string) error
	DeleteGroup(ctx context.Context, groupID string) error
	Search(ctx context.Context, p search.Params) (*search.Result, error)
}

// translateError maps store and lock failures onto the domain error taxonomy.
func translateError(err error) error {
	if err == nil {
		return nil
	}
	var de *domainerrors.Error
	switch {
	case errors.As(err, &de):
		return de
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case errors.Is(err, store.ErrNotFound):
		return domainerrors.NotFound("study group not found").WithCause(err)
	case errors.Is(err, store.ErrAlreadyExists):
		return domainerrors.Conflict("already exists").WithCause(err)
	case errors.Is(err, store.ErrConflict), errors.Is(err, lock.ErrTimeout):
		return domainerrors.Conflict("study group is busy, try again").WithCause(err)
	default:
		return domainerrors.ServerError(err)
	}
}

// groupMutator serializes mutations of one group: it holds the group's lock while
// the store applies fn atomically.
type groupMutator struct {
	store    store.Store
	locker   lock.Locker
	recorder Recorder
	logger   *slog.Logger
}

func newGroupMutator(s store.Store, l lock.Locker, r Recorder, logger *slog.Logger) *groupMutator {
	if l == nil {
		l = lock.NewKeyedMutex(0)
	}
	if r == nil {
		r = NoopRecorder{}
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &groupMutator{store: s, locker: l, recorder: r, logger: logger}
}

// lock acquires the group's lock and records how long that took.
func (m *groupMutator) lock(ctx context.Context, groupID string) (lock.Unlock, error) {
	start := time.Now()
	unlock, err := m.locker.Lock(ctx, "group:"+groupID)
	m.recorder.ObserveLockWait(time.Since(start), errors.Is(err, lock.ErrTimeout))
	if err != nil {
		m.logger.Warn("group lock not acquired", "group_id", groupID, "error", err)
		return nil, translateError(err)
	}
	return unlock, nil
}

// mutate applies fn to the group under its lock and returns the stored result.
func (m *groupMutator) mutate(ctx context.Context, groupID string, fn store.MutateFunc) (*domain.Group, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	unlock, err := m.lock(ctx, groupID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	g, err := m.store.MutateGroup(ctx, groupID, fn)
	if err != nil {
		return nil, translateError(err)
	}
	return g, nil
}

// get loads a group, mapping a miss to NotFound.
func (m *groupMutator) get(ctx context.Context, groupID string) (*domain.Group, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	g, err := m.store.GetGroup(ctx, groupID)
	if err != nil {
		return nil, translateError(err)
	}
	return g, nil
}
