package search

import (
	"context"
	"maps"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boilergroups/groups-server/internal/domain"
)

func setupTestIndex(t *testing.T) *Index {
	t.Helper()
	idx, err := New(Options{DataPath: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func msg(id, sender, text string, at time.Time) *domain.Message {
	return &domain.Message{ID: id, Sender: sender, Text: text, Timestamp: at, Reactions: domain.Reactions{}}
}

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestNew_InMemory(t *testing.T) {
	idx, err := New(Options{})
	require.NoError(t, err)
	defer idx.Close()

	count, err := idx.DocumentCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(0), count)
}

func TestNew_ReopensExisting(t *testing.T) {
	dir := t.TempDir()
	idx, err := New(Options{DataPath: dir})
	require.NoError(t, err)
	require.NoError(t, idx.IndexMessage("grp-1", msg("m1", "alice", "midterm review", t0)))
	require.NoError(t, idx.Close())

	idx, err = New(Options{DataPath: dir})
	require.NoError(t, err)
	defer idx.Close()

	count, err := idx.DocumentCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), count)
}

func TestSearch_ScopedToGroup(t *testing.T) {
	idx := setupTestIndex(t)
	require.NoError(t, idx.IndexMessage("grp-1", msg("m1", "alice", "who has the lecture notes", t0)))
	require.NoError(t, idx.IndexMessage("grp-2", msg("m2", "bob", "lecture cancelled today", t0)))

	res, err := idx.Search(context.Background(), Params{GroupID: "grp-1", Query: "lecture"})
	require.NoError(t, err)

	require.Len(t, res.Hits, 1)
	assert.Equal(t, "m1", res.Hits[0].MessageID)
	assert.Equal(t, "alice", res.Hits[0].Sender)
	assert.True(t, t0.Equal(res.Hits[0].Timestamp))
}

func TestSearch_Stemming(t *testing.T) {
	idx := setupTestIndex(t)
	require.NoError(t, idx.IndexMessage("grp-1", msg("m1", "alice", "I am studying for the exam", t0)))

	res, err := idx.Search(context.Background(), Params{GroupID: "grp-1", Query: "study"})
	require.NoError(t, err)
	assert.Len(t, res.Hits, 1)
}

func TestSearch_EmptyQuery(t *testing.T) {
	idx := setupTestIndex(t)
	require.NoError(t, idx.IndexMessage("grp-1", msg("m1", "alice", "hello", t0)))

	res, err := idx.Search(context.Background(), Params{GroupID: "grp-1", Query: "   "})
	require.NoError(t, err)
	assert.Empty(t, res.Hits)
	assert.NotNil(t, res.Hits)
}

func TestSearch_Limit(t *testing.T) {
	idx := setupTestIndex(t)
	g := &domain.Group{ID: "grp-1"}
	for i := range 5 {
		g.Messages = append(g.Messages, *msg(string(rune('a'+i)), "alice", "homework question", t0.Add(time.Duration(i)*time.Minute)))
	}
	require.NoError(t, idx.IndexGroup(g))

	res, err := idx.Search(context.Background(), Params{GroupID: "grp-1", Query: "homework", Limit: 2})
	require.NoError(t, err)
	assert.Len(t, res.Hits, 2)
	assert.Equal(t, uint64(5), res.Total)
}

func TestDeleteMessage(t *testing.T) {
	idx := setupTestIndex(t)
	require.NoError(t, idx.IndexMessage("grp-1", msg("m1", "alice", "delete me", t0)))
	require.NoError(t, idx.DeleteMessage("grp-1", "m1"))

	res, err := idx.Search(context.Background(), Params{GroupID: "grp-1", Query: "delete"})
	require.NoError(t, err)
	assert.Empty(t, res.Hits)
}

func TestIndexGroup_SkipsStatusMessages(t *testing.T) {
	idx := setupTestIndex(t)
	g := &domain.Group{
		ID: "grp-1",
		Messages: []domain.Message{
			*msg("m1", "alice", "group chat", t0),
			domain.NewStatusMessage("m2", "bob@x.com", domain.StatusJoined, t0),
		},
	}
	require.NoError(t, idx.IndexGroup(g))

	count, err := idx.DocumentCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), count)
}

func TestDeleteGroup(t *testing.T) {
	idx := setupTestIndex(t)
	for _, gid := range []string{"grp-1", "grp-2"} {
		require.NoError(t, idx.IndexGroup(&domain.Group{
			ID:       gid,
			Messages: []domain.Message{*msg("m1", "a", "one", t0), *msg("m2", "b", "two", t0)},
		}))
	}

	require.NoError(t, idx.DeleteGroup(context.Background(), "grp-1"))

	count, err := idx.DocumentCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), count)
}

func TestReindex(t *testing.T) {
	idx := setupTestIndex(t)
	groups := map[string]*domain.Group{
		"grp-1": {ID: "grp-1", Messages: []domain.Message{*msg("m1", "a", "alpha", t0)}},
		"grp-2": {ID: "grp-2", Messages: []domain.Message{*msg("m1", "b", "beta", t0)}},
	}
	seq := func(yield func(*domain.Group, error) bool) {
		for _, id := range slices.Sorted(maps.Keys(groups)) {
			if !yield(groups[id], nil) {
				return
			}
		}
	}

	n, err := idx.Reindex(context.Background(), seq)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	count, err := idx.DocumentCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), count)
}
