package badgerdb

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/boilergroups/groups-server/internal/domain"
	"github.com/boilergroups/groups-server/internal/store"
	"github.com/boilergroups/groups-server/internal/store/storetest"
)

func TestStoreConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		s, err := Open(t.TempDir(), nil)
		require.NoError(t, err)
		return s
	})
}

func TestStoreConformance_InMemory(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		s, err := OpenInMemory(nil)
		require.NoError(t, err)
		return s
	})
}

func TestStore_ReopenKeepsData(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, err := Open(dir, nil)
	require.NoError(t, err)
	require.NoError(t, s.CreateGroup(ctx, &domain.Group{ID: "grp-1", Name: "Persisted", Members: []string{"a@x.com"}}))
	require.NoError(t, s.Close())

	s, err = Open(dir, nil)
	require.NoError(t, err)
	defer s.Close()

	g, err := s.GetGroup(ctx, "grp-1")
	require.NoError(t, err)
	require.Equal(t, "Persisted", g.Name)

	groups, err := s.ListGroupsForMember(ctx, "a@x.com")
	require.NoError(t, err)
	require.Len(t, groups, 1)
}

func TestStore_LegacyTagsSurviveRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, err := OpenInMemory(nil)
	require.NoError(t, err)
	defer s.Close()

	g := &domain.Group{ID: "grp-1", Members: []string{"a@x.com"}}
	require.NoError(t, g.AppendMessage(domain.Message{ID: "m1", Reactions: domain.Reactions{domain.ParseReaction("usr-9")}}))
	require.NoError(t, s.CreateGroup(ctx, g))

	got, err := s.GetGroup(ctx, "grp-1")
	require.NoError(t, err)
	require.True(t, got.HasLegacyReactions())
	require.Equal(t, []string{"usr-9"}, got.Messages[0].Reactions.Tags())
}
