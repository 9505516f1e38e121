// Package storetest is a conformance suite shared by every store backend.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boilergroups/groups-server/internal/domain"
	"github.com/boilergroups/groups-server/internal/store"
)

// Factory returns a fresh, empty store. The suite closes it.
type Factory func(t *testing.T) store.Store

// Run exercises the store.Store contract against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Helper()

	tests := []struct {
		name string
		fn   func(t *testing.T, s store.Store)
	}{
		{"CreateAndGetGroup", testCreateAndGetGroup},
		{"CreateGroupTwice", testCreateGroupTwice},
		{"GetMissingGroup", testGetMissingGroup},
		{"ListGroupsForMember", testListGroupsForMember},
		{"ListGroups", testListGroups},
		{"MutateGroup", testMutateGroup},
		{"MutateGroupAbort", testMutateGroupAbort},
		{"MutateGroupNoChange", testMutateGroupNoChange},
		{"MutateMissingGroup", testMutateMissingGroup},
		{"MutateReindexesMembers", testMutateReindexesMembers},
		{"ConcurrentMutations", testConcurrentMutations},
		{"DeleteGroup", testDeleteGroup},
		{"Users", testUsers},
		{"DuplicateUserEmail", testDuplicateUserEmail},
		{"Ping", testPing},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newStore(t)
			t.Cleanup(func() { _ = s.Close() })
			tt.fn(t, s)
		})
	}
}

func newGroup(id string, members ...string) *domain.Group {
	return &domain.Group{
		ID:      id,
		Name:    "Group " + id,
		Members: members,
	}
}

func testCreateAndGetGroup(t *testing.T, s store.Store) {
	ctx := context.Background()
	g := newGroup("grp-1", "a@x.com", "b@x.com")
	g.Edbot = domain.EdbotSettings{Enabled: true, Name: "Edbot"}
	require.NoError(t, s.CreateGroup(ctx, g))

	got, err := s.GetGroup(ctx, "grp-1")
	require.NoError(t, err)
	assert.Equal(t, "Group grp-1", got.Name)
	assert.Equal(t, []string{"a@x.com", "b@x.com"}, got.Members)
	assert.Empty(t, got.Messages)
	assert.NotNil(t, got.Messages)
	assert.True(t, got.Edbot.Enabled)
	assert.Equal(t, int64(1), got.Version)
	assert.False(t, got.CreatedAt.IsZero())
}

func testCreateGroupTwice(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.CreateGroup(ctx, newGroup("grp-1", "a@x.com")))

	err := s.CreateGroup(ctx, newGroup("grp-1", "a@x.com"))
	assert.ErrorIs(t, err, store.ErrAlreadyExists)
}

func testGetMissingGroup(t *testing.T, s store.Store) {
	_, err := s.GetGroup(context.Background(), "grp-missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testListGroupsForMember(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.CreateGroup(ctx, newGroup("grp-1", "a@x.com", "b@x.com")))
	require.NoError(t, s.CreateGroup(ctx, newGroup("grp-2", "b@x.com")))
	require.NoError(t, s.CreateGroup(ctx, newGroup("grp-3", "c@x.com")))

	groups, err := s.ListGroupsForMember(ctx, "B@X.com")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"grp-1", "grp-2"}, groupIDs(groups))

	groups, err = s.ListGroupsForMember(ctx, "nobody@x.com")
	require.NoError(t, err)
	assert.Empty(t, groups)
}

func testListGroups(t *testing.T, s store.Store) {
	ctx := context.Background()
	for i := range 3 {
		require.NoError(t, s.CreateGroup(ctx, newGroup(fmt.Sprintf("grp-%d", i), "a@x.com")))
	}

	var ids []string
	for g, err := range s.ListGroups(ctx) {
		require.NoError(t, err)
		ids = append(ids, g.ID)
	}
	assert.ElementsMatch(t, []string{"grp-0", "grp-1", "grp-2"}, ids)
}

func testMutateGroup(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.CreateGroup(ctx, newGroup("grp-1", "a@x.com")))

	updated, err := s.MutateGroup(ctx, "grp-1", func(g *domain.Group) error {
		g.NewMessage = true
		return g.AppendMessage(domain.Message{ID: "msg-1", Sender: "alice", Text: "hi"})
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), updated.Version)
	assert.True(t, updated.NewMessage)

	got, err := s.GetGroup(ctx, "grp-1")
	require.NoError(t, err)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "hi", got.Messages[0].Text)
	assert.Equal(t, int64(2), got.Version)
}

func testMutateGroupAbort(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.CreateGroup(ctx, newGroup("grp-1", "a@x.com")))
	boom := errors.New("boom")

	_, err := s.MutateGroup(ctx, "grp-1", func(g *domain.Group) error {
		g.Name = "changed"
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := s.GetGroup(ctx, "grp-1")
	require.NoError(t, err)
	assert.Equal(t, "Group grp-1", got.Name)
	assert.Equal(t, int64(1), got.Version)
}

func testMutateGroupNoChange(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.CreateGroup(ctx, newGroup("grp-1", "a@x.com")))

	got, err := s.MutateGroup(ctx, "grp-1", func(*domain.Group) error { return store.ErrNoChange })
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Version)
	assert.Equal(t, "grp-1", got.ID)
}

func testMutateMissingGroup(t *testing.T, s store.Store) {
	called := false
	_, err := s.MutateGroup(context.Background(), "grp-missing", func(*domain.Group) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.False(t, called)
}

func testMutateReindexesMembers(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.CreateGroup(ctx, newGroup("grp-1", "a@x.com", "b@x.com")))

	_, err := s.MutateGroup(ctx, "grp-1", func(g *domain.Group) error {
		g.RemoveMember("b@x.com")
		g.AddMember("c@x.com")
		return nil
	})
	require.NoError(t, err)

	groups, err := s.ListGroupsForMember(ctx, "b@x.com")
	require.NoError(t, err)
	assert.Empty(t, groups)

	groups, err = s.ListGroupsForMember(ctx, "c@x.com")
	require.NoError(t, err)
	assert.Equal(t, []string{"grp-1"}, groupIDs(groups))
}

func testConcurrentMutations(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.CreateGroup(ctx, newGroup("grp-1", "a@x.com")))

	const writers = 8
	const perWriter = 5
	var wg sync.WaitGroup
	errs := make(chan error, writers*perWriter)
	for w := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range perWriter {
				_, err := s.MutateGroup(ctx, "grp-1", func(g *domain.Group) error {
					return g.AppendMessage(domain.Message{ID: fmt.Sprintf("msg-%d-%d", w, i), Text: "x"})
				})
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	got, err := s.GetGroup(ctx, "grp-1")
	require.NoError(t, err)
	assert.Len(t, got.Messages, writers*perWriter)
	assert.Equal(t, int64(1+writers*perWriter), got.Version)
}

func testDeleteGroup(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.CreateGroup(ctx, newGroup("grp-1", "a@x.com")))

	require.NoError(t, s.DeleteGroup(ctx, "grp-1"))
	assert.ErrorIs(t, s.DeleteGroup(ctx, "grp-1"), store.ErrNotFound)

	_, err := s.GetGroup(ctx, "grp-1")
	assert.ErrorIs(t, err, store.ErrNotFound)

	groups, err := s.ListGroupsForMember(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Empty(t, groups)
}

func testUsers(t *testing.T, s store.Store) {
	ctx := context.Background()
	u := &domain.User{ID: "usr-1", Email: "alice@purdue.edu", Username: "alice", PasswordHash: "hash"}
	require.NoError(t, s.CreateUser(ctx, u))
	require.NoError(t, s.CreateUser(ctx, &domain.User{ID: "usr-2", Email: "al@purdue.edu", Username: "alice"}))

	got, err := s.GetUser(ctx, "usr-1")
	require.NoError(t, err)
	assert.Equal(t, "alice@purdue.edu", got.Email)
	assert.Equal(t, "hash", got.PasswordHash)

	got, err = s.GetUserByEmail(ctx, "ALICE@purdue.edu")
	require.NoError(t, err)
	assert.Equal(t, "usr-1", got.ID)

	users, err := s.ListUsersByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, users, 2)

	_, err = s.GetUser(ctx, "usr-missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = s.GetUserByEmail(ctx, "missing@purdue.edu")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testDuplicateUserEmail(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.CreateUser(ctx, &domain.User{ID: "usr-1", Email: "alice@purdue.edu", Username: "alice"}))

	err := s.CreateUser(ctx, &domain.User{ID: "usr-2", Email: "Alice@Purdue.edu", Username: "other"})
	assert.ErrorIs(t, err, store.ErrAlreadyExists)
}

func testPing(t *testing.T, s store.Store) {
	assert.NoError(t, s.Ping(context.Background()))
}

func groupIDs(groups []*domain.Group) []string {
	ids := make([]string, len(groups))
	for i, g := range groups {
		ids[i] = g.ID
	}
	return ids
}
