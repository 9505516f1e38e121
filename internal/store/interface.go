// Package store defines persistence for study groups and user accounts. Backends
// live in subpackages: badgerdb (embedded, default), sqlite and mongodb.
package store

import (
	"context"
	"iter"

	"github.com/boilergroups/groups-server/internal/domain"
)

// MutateFunc changes a group in place. Returning an error aborts the mutation and
// nothing is written; returning ErrNoChange skips the write without failing.
type MutateFunc func(g *domain.Group) error

// Store is the persistence contract every backend implements.
//
// MutateGroup is the only way to change an existing group. Backends run the
// load, fn and save steps as one atomic unit so concurrent mutations of the same
// group never lose updates.
type Store interface {
	// Lifecycle
	Ping(ctx context.Context) error
	Close() error

	// Groups
	CreateGroup(ctx context.Context, g *domain.Group) error
	GetGroup(ctx context.Context, id string) (*domain.Group, error)
	ListGroups(ctx context.Context) iter.Seq2[*domain.Group, error]
	ListGroupsForMember(ctx context.Context, email string) ([]*domain.Group, error)
	MutateGroup(ctx context.Context, id string, fn MutateFunc) (*domain.Group, error)
	DeleteGroup(ctx context.Context, id string) error

	// Users
	CreateUser(ctx context.Context, u *domain.User) error
	GetUser(ctx context.Context, id string) (*domain.User, error)
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
	ListUsersByUsername(ctx context.Context, username string) ([]*domain.User, error)
}
