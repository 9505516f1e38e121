package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boilergroups/groups-server/internal/domain"
	"github.com/boilergroups/groups-server/internal/store"
	"github.com/boilergroups/groups-server/internal/store/storetest"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "groups.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStoreConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store { return openTemp(t) })
}

func TestOpen_AppliesPragmasAndSchema(t *testing.T) {
	s := openTemp(t)

	pragmas := map[string]string{"journal_mode": "wal", "foreign_keys": "1", "busy_timeout": "5000"}
	for name, want := range pragmas {
		var got string
		require.NoError(t, s.db.QueryRow("PRAGMA "+name).Scan(&got), name)
		assert.Equal(t, want, got, name)
	}

	rows, err := s.db.Query(`SELECT name FROM sqlite_master WHERE type = 'table' ORDER BY name`)
	require.NoError(t, err)
	defer rows.Close()
	var tables []string
	for rows.Next() {
		var name string
		require.NoError(t, rows.Scan(&name))
		tables = append(tables, name)
	}
	require.NoError(t, rows.Err())
	assert.Subset(t, tables, []string{"users", "study_groups", "group_members"})
}

func TestOpen_ReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "groups.db")
	ctx := context.Background()

	s, err := Open(path, nil)
	require.NoError(t, err)
	require.NoError(t, s.CreateGroup(ctx, &domain.Group{ID: "grp-1", Name: "CS 251", Members: []string{"a@x.com"}}))
	require.NoError(t, s.Close())

	s, err = Open(path, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	g, err := s.GetGroup(ctx, "grp-1")
	require.NoError(t, err)
	assert.Equal(t, "CS 251", g.Name)
}

func TestDeleteGroup_CascadesMembers(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()

	require.NoError(t, s.CreateGroup(ctx, &domain.Group{ID: "grp-1", Name: "g", Members: []string{"a@x.com", "b@x.com"}}))
	require.NoError(t, s.DeleteGroup(ctx, "grp-1"))

	var n int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM group_members WHERE group_id = ?`, "grp-1").Scan(&n))
	assert.Zero(t, n)
}
