// Package mongodb is the MongoDB backend for the group store.
package mongodb

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/boilergroups/groups-server/internal/domain"
	"github.com/boilergroups/groups-server/internal/normalize"
	"github.com/boilergroups/groups-server/internal/store"
)

// Store is a store.Store backed by MongoDB. Group mutations use a compare-and-swap
// on the version field and retry when another writer got there first.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
	logger *slog.Logger
	now    func() time.Time
}

var _ store.Store = (*Store)(nil)

// Open connects to uri, selects database and ensures indexes exist.
func Open(ctx context.Context, uri, database string, logger *slog.Logger) (*Store, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	s := &Store{client: client, db: client.Database(database), logger: logger, now: time.Now}
	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	logger.Info("mongodb connected", "database", database)
	return s, nil
}

func (s *Store) groups() *mongo.Collection { return s.db.Collection("studygroups") }
func (s *Store) users() *mongo.Collection  { return s.db.Collection("users") }

func (s *Store) ensureIndexes(ctx context.Context) error {
	collections := map[*mongo.Collection][]mongo.IndexModel{
		s.groups(): {
			{Keys: bson.D{{Key: "members", Value: 1}}},
		},
		s.users(): {
			{Keys: bson.D{{Key: "email_lower", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "username_key", Value: 1}}},
		},
	}
	for coll, models := range collections {
		if _, err := coll.Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("create indexes on %s: %w", coll.Name(), err)
		}
	}
	return nil
}

// Ping checks the primary is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

// Close disconnects the client.
func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// Drop removes the database. Used by tests.
func (s *Store) Drop(ctx context.Context) error {
	return s.db.Drop(ctx)
}

func groupNotFound(id string) error {
	return store.ErrNotFound.Withf("group %s not found", id)
}

// CreateGroup inserts a group document.
func (s *Store) CreateGroup(ctx context.Context, g *domain.Group) error {
	store.PrepareNewGroup(g, s.now())
	_, err := s.groups().InsertOne(ctx, toGroupDoc(g))
	if mongo.IsDuplicateKeyError(err) {
		return store.ErrAlreadyExists.Withf("group %s already exists", g.ID)
	}
	return err
}

// GetGroup loads a group by id.
func (s *Store) GetGroup(ctx context.Context, id string) (*domain.Group, error) {
	var doc groupDoc
	err := s.groups().FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, groupNotFound(id)
	}
	if err != nil {
		return nil, err
	}
	return doc.toDomain(), nil
}

// ListGroups iterates every group in creation order.
func (s *Store) ListGroups(ctx context.Context) iter.Seq2[*domain.Group, error] {
	return func(yield func(*domain.Group, error) bool) {
		cur, err := s.groups().Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}}))
		if err != nil {
			yield(nil, err)
			return
		}
		defer cur.Close(ctx)

		for cur.Next(ctx) {
			var doc groupDoc
			if err := cur.Decode(&doc); err != nil {
				yield(nil, err)
				return
			}
			if !yield(doc.toDomain(), nil) {
				return
			}
		}
		if err := cur.Err(); err != nil {
			yield(nil, err)
		}
	}
}

// ListGroupsForMember returns the groups whose members array contains email.
func (s *Store) ListGroupsForMember(ctx context.Context, email string) ([]*domain.Group, error) {
	cur, err := s.groups().Find(ctx, bson.M{"members": normalize.Email(email)},
		options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}}))
	if err != nil {
		return nil, err
	}
	var docs []groupDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	groups := make([]*domain.Group, len(docs))
	for i, d := range docs {
		groups[i] = d.toDomain()
	}
	return groups, nil
}

var errVersionMismatch = errors.New("group version changed")

// MutateGroup loads the group, applies fn and replaces the document only if its
// version is still the one that was read.
func (s *Store) MutateGroup(ctx context.Context, id string, fn store.MutateFunc) (*domain.Group, error) {
	for attempt := 1; ; attempt++ {
		g, err := s.mutateOnce(ctx, id, fn)
		if !errors.Is(err, errVersionMismatch) {
			return g, err
		}
		if attempt >= store.MaxMutateAttempts {
			return nil, store.ErrConflict.WithCause(err)
		}
		if err := store.Backoff(ctx, attempt); err != nil {
			return nil, err
		}
	}
}

func (s *Store) mutateOnce(ctx context.Context, id string, fn store.MutateFunc) (*domain.Group, error) {
	g, err := s.GetGroup(ctx, id)
	if err != nil {
		return nil, err
	}
	prev := g.Version
	write, err := store.ApplyMutation(g, fn, s.now())
	if err != nil || !write {
		return g, err
	}

	res, err := s.groups().ReplaceOne(ctx, bson.M{"_id": id, "version": prev}, toGroupDoc(g))
	if err != nil {
		return nil, fmt.Errorf("replace group: %w", err)
	}
	if res.MatchedCount == 0 {
		return nil, errVersionMismatch
	}
	return g, nil
}

// DeleteGroup removes a group document.
func (s *Store) DeleteGroup(ctx context.Context, id string) error {
	res, err := s.groups().DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return groupNotFound(id)
	}
	return nil
}

// CreateUser inserts an account. Emails are unique ignoring case.
func (s *Store) CreateUser(ctx context.Context, u *domain.User) error {
	_, err := s.users().InsertOne(ctx, userDoc{
		ID:           u.ID,
		Email:        u.Email,
		EmailLower:   normalize.Email(u.Email),
		Username:     u.Username,
		UsernameKey:  normalize.Username(u.Username),
		PasswordHash: u.PasswordHash,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	})
	if mongo.IsDuplicateKeyError(err) {
		return store.ErrAlreadyExists.WithMessage("user already exists")
	}
	return err
}

func (s *Store) findUser(ctx context.Context, filter bson.M) (*domain.User, error) {
	var doc userDoc
	err := s.users().FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, store.ErrNotFound.WithMessage("user not found")
	}
	if err != nil {
		return nil, err
	}
	return doc.toDomain(), nil
}

// GetUser loads a user by id.
func (s *Store) GetUser(ctx context.Context, id string) (*domain.User, error) {
	return s.findUser(ctx, bson.M{"_id": id})
}

// GetUserByEmail loads a user by email, ignoring case.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	return s.findUser(ctx, bson.M{"email_lower": normalize.Email(email)})
}

// ListUsersByUsername returns every user with the given username.
func (s *Store) ListUsersByUsername(ctx context.Context, username string) ([]*domain.User, error) {
	cur, err := s.users().Find(ctx, bson.M{"username_key": normalize.Username(username)},
		options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, err
	}
	var docs []userDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	users := make([]*domain.User, len(docs))
	for i, d := range docs {
		users[i] = d.toDomain()
	}
	return users, nil
}
