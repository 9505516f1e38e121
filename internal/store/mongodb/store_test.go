package mongodb

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boilergroups/groups-server/internal/domain"
	"github.com/boilergroups/groups-server/internal/id"
	"github.com/boilergroups/groups-server/internal/store"
	"github.com/boilergroups/groups-server/internal/store/storetest"
)

// Set MONGO_TEST_URI (e.g. mongodb://localhost:27017) to run against a live server.
func testURI(t *testing.T) string {
	t.Helper()
	uri := os.Getenv("MONGO_TEST_URI")
	if uri == "" {
		t.Skip("MONGO_TEST_URI not set")
	}
	return uri
}

func newTestStore(t *testing.T, uri string) *Store {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	dbName := "groups_test_" + strings.ReplaceAll(id.MustGenerate("db"), "-", "_")
	s, err := Open(ctx, uri, dbName, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Drop(context.Background()) })
	return s
}

func TestStoreConformance(t *testing.T) {
	uri := testURI(t)
	storetest.Run(t, func(t *testing.T) store.Store {
		return newTestStore(t, uri)
	})
}

func TestGroupDoc_RoundTrip(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	g := &domain.Group{
		ID:      "grp-1",
		Name:    "CS 180",
		Members: []string{"a@x.com"},
		Messages: []domain.Message{{
			ID:            "msg-1",
			Sender:        "alice",
			Text:          "hi",
			Timestamp:     at,
			Reactions:     domain.Reactions{domain.ParseReaction("u1-like"), domain.ParseReaction("u2")},
			ReplyToSender: "bob",
		}},
		Edbot:   domain.EdbotSettings{Enabled: true, SummaryWindow: 50},
		Version: 3,
	}

	doc := toGroupDoc(g)
	assert.Equal(t, []string{"u1-like", "u2"}, doc.Messages[0].Reactions)

	back := doc.toDomain()
	assert.Equal(t, g.Messages[0].Reactions, back.Messages[0].Reactions)
	assert.Equal(t, "bob", back.Messages[0].ReplyToSender)
	assert.Equal(t, 50, back.Edbot.SummaryWindow)
	assert.Equal(t, int64(3), back.Version)
	assert.NotNil(t, back.MembersTaggedOrReplied)
}
