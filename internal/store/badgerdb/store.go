// Package badgerdb is the embedded Badger backend for the group store.
package badgerdb

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"slices"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/boilergroups/groups-server/internal/domain"
	"github.com/boilergroups/groups-server/internal/normalize"
	"github.com/boilergroups/groups-server/internal/store"
)

const (
	groupPrefix = "group:"
	userPrefix  = "user:"
)

// Store is a store.Store backed by a Badger database.
type Store struct {
	db     *badger.DB
	logger *slog.Logger
	now    func() time.Time

	groups *Entity[domain.Group]
	users  *Entity[domain.User]
}

var _ store.Store = (*Store)(nil)

// Open opens (or creates) the database in dir.
func Open(dir string, logger *slog.Logger) (*Store, error) {
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil
	opts.SyncWrites = true
	opts.CompactL0OnClose = true
	return open(opts, logger)
}

// OpenInMemory opens a database that lives only in memory.
func OpenInMemory(logger *slog.Logger) (*Store, error) {
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil
	return open(opts, logger)
}

func open(opts badger.Options, logger *slog.Logger) (*Store, error) {
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger db: %w", err)
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	s := &Store{db: db, logger: logger, now: time.Now}

	s.groups = NewEntity[domain.Group](db, groupPrefix).
		WithIndex("member", func(g *domain.Group) []string {
			return slices.Clone(g.Members)
		}, normalize.Email)

	s.users = NewEntity[domain.User](db, userPrefix).
		WithUniqueIndex("email", func(u *domain.User) []string {
			return []string{normalize.Email(u.Email)}
		}, normalize.Email).
		WithIndex("username", func(u *domain.User) []string {
			return []string{normalize.Username(u.Username)}
		}, normalize.Username)

	logger.Info("badger database opened", "path", opts.Dir, "in_memory", opts.InMemory)
	return s, nil
}

// Ping reports whether the database is usable.
func (s *Store) Ping(_ context.Context) error {
	if s.db.IsClosed() {
		return fmt.Errorf("badger db closed")
	}
	return nil
}

// Close flushes and closes the database.
func (s *Store) Close() error {
	s.logger.Info("closing badger database")
	return s.db.Close()
}

// CreateGroup stores a new group.
func (s *Store) CreateGroup(ctx context.Context, g *domain.Group) error {
	store.PrepareNewGroup(g, s.now())
	return s.groups.Create(ctx, g.ID, g)
}

// GetGroup loads a group by id.
func (s *Store) GetGroup(ctx context.Context, id string) (*domain.Group, error) {
	g, err := s.groups.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	g.Normalize()
	return g, nil
}

// ListGroups iterates every stored group.
func (s *Store) ListGroups(ctx context.Context) iter.Seq2[*domain.Group, error] {
	return func(yield func(*domain.Group, error) bool) {
		for g, err := range s.groups.List(ctx) {
			if err == nil {
				g.Normalize()
			}
			if !yield(g, err) {
				return
			}
		}
	}
}

// ListGroupsForMember returns the groups email belongs to.
func (s *Store) ListGroupsForMember(ctx context.Context, email string) ([]*domain.Group, error) {
	groups, err := s.groups.ListByIndex(ctx, "member", email)
	if err != nil {
		return nil, err
	}
	for _, g := range groups {
		g.Normalize()
	}
	return groups, nil
}

// MutateGroup applies fn to the group inside one Badger transaction.
func (s *Store) MutateGroup(ctx context.Context, id string, fn store.MutateFunc) (*domain.Group, error) {
	return s.groups.Mutate(ctx, id, func(g *domain.Group) (bool, error) {
		return store.ApplyMutation(g, fn, s.now())
	})
}

// DeleteGroup removes a group.
func (s *Store) DeleteGroup(ctx context.Context, id string) error {
	return s.groups.Delete(ctx, id)
}

// CreateUser stores a new account. Emails are unique ignoring case.
func (s *Store) CreateUser(ctx context.Context, u *domain.User) error {
	return s.users.Create(ctx, u.ID, u)
}

// GetUser loads a user by id.
func (s *Store) GetUser(ctx context.Context, id string) (*domain.User, error) {
	return s.users.Get(ctx, id)
}

// GetUserByEmail loads a user by email, ignoring case.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	return s.users.GetByIndex(ctx, "email", email)
}

// ListUsersByUsername returns every user whose username matches.
func (s *Store) ListUsersByUsername(ctx context.Context, username string) ([]*domain.User, error) {
	return s.users.ListByIndex(ctx, "username", username)
}
