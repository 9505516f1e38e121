package api

import (
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boilergroups/groups-server/internal/domain"
	"github.com/boilergroups/groups-server/internal/search"
)

func (ts *testServer) sendMessage(t *testing.T, from testUser, groupID string, body map[string]any) SendMessageResponse {
	t.Helper()
	resp := ts.api.Post("/studygroups/messages/"+groupID, from.bearer(), body)
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
	return decode[SendMessageResponse](t, resp)
}

func TestSendAndListMessages(t *testing.T) {
	ts := setupTestServer(t, nil)
	alice := ts.register(t, "alice@purdue.edu", "alice")
	bob := ts.register(t, "bob@purdue.edu", "bob")
	g := ts.createGroup(t, alice, "CS 180", bob.Email)

	first := ts.sendMessage(t, alice, g.ID, map[string]any{"text": "midterm review tonight @bob@purdue.edu"})
	assert.True(t, first.NewMessage)
	assert.Equal(t, "alice", first.Message.Sender)
	assert.NotEmpty(t, first.Message.ID)

	reply := ts.sendMessage(t, bob, g.ID, map[string]any{
		"text":          "I'll be there",
		"replyToId":     first.Message.ID,
		"replyToSender": "alice",
		"replyToText":   first.Message.Text,
	})
	assert.Equal(t, first.Message.ID, reply.Message.ReplyToID)

	resp := ts.api.Get("/studygroups/messages/"+g.ID, bob.bearer())
	require.Equal(t, http.StatusOK, resp.Code)
	msgs := decode[MessageListResponse](t, resp).Messages
	require.Len(t, msgs, 2)
	assert.Equal(t, first.Message.ID, msgs[0].ID)
	assert.Equal(t, reply.Message.ID, msgs[1].ID)

	// The mention marked bob, the reply marked alice.
	resp = ts.api.Get("/studygroups/"+g.ID, alice.bearer())
	require.Equal(t, http.StatusOK, resp.Code)
	assert.ElementsMatch(t, []string{alice.Email, bob.Email}, decode[domain.Group](t, resp).MembersTaggedOrReplied)
}

func TestSendMessageErrors(t *testing.T) {
	ts := setupTestServer(t, nil)
	alice := ts.register(t, "alice@purdue.edu", "alice")
	carol := ts.register(t, "carol@purdue.edu", "carol")
	g := ts.createGroup(t, alice, "CS 180")

	tests := []struct {
		name   string
		from   testUser
		group  string
		text   string
		status int
	}{
		{name: "blank text", from: alice, group: g.ID, text: "  \n ", status: http.StatusBadRequest},
		{name: "too long", from: alice, group: g.ID, text: strings.Repeat("a", 8001), status: http.StatusBadRequest},
		{name: "non-member sender", from: carol, group: g.ID, text: "hi", status: http.StatusBadRequest},
		{name: "unknown group", from: alice, group: "grp-missing", text: "hi", status: http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := ts.api.Post("/studygroups/messages/"+tt.group, tt.from.bearer(), map[string]any{"text": tt.text})
			assert.Equal(t, tt.status, resp.Code, resp.Body.String())
		})
	}
}

func TestReactions(t *testing.T) {
	ts := setupTestServer(t, nil)
	alice := ts.register(t, "alice@purdue.edu", "alice")
	bob := ts.register(t, "bob@purdue.edu", "bob")
	g := ts.createGroup(t, alice, "CS 180", bob.Email)
	msg := ts.sendMessage(t, alice, g.ID, map[string]any{"text": "practice exam posted"}).Message

	react := func(u testUser, isLike bool) *domain.Message {
		t.Helper()
		resp := ts.api.Patch("/studygroups/react/"+g.ID, u.bearer(), map[string]any{"messageId": msg.ID, "isLike": isLike})
		require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
		m := decode[domain.Message](t, resp)
		return &m
	}
	counts := func() domain.ReactionCounts {
		t.Helper()
		resp := ts.api.Get("/studygroups/reactions/"+g.ID+"/"+msg.ID, alice.bearer())
		require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
		return decode[domain.ReactionCounts](t, resp)
	}

	react(alice, true)
	react(bob, true)
	react(bob, false)
	assert.Equal(t, domain.ReactionCounts{Likes: 2, Dislikes: 1}, counts())

	// A second toggle of the same kind removes it.
	m := react(bob, true)
	likes, dislikes := m.Reactions.Count()
	assert.Equal(t, 1, likes)
	assert.Equal(t, 1, dislikes)

	// Legacy like endpoint only adds.
	resp := ts.api.Patch("/studygroups/like/"+g.ID, alice.bearer(), map[string]any{"messageId": msg.ID})
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, domain.ReactionCounts{Likes: 1, Dislikes: 1}, counts())

	resp = ts.api.Patch("/studygroups/react/"+g.ID, alice.bearer(), map[string]any{"messageId": "msg-missing", "isLike": true})
	assert.Equal(t, http.StatusNotFound, resp.Code)

	resp = ts.api.Get("/studygroups/reactions/"+g.ID+"/msg-missing", alice.bearer())
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestDeleteMessage(t *testing.T) {
	ts := setupTestServer(t, nil)
	alice := ts.register(t, "alice@purdue.edu", "alice")
	g := ts.createGroup(t, alice, "CS 180")
	msg := ts.sendMessage(t, alice, g.ID, map[string]any{"text": "oops wrong group"}).Message

	resp := ts.api.Patch("/studygroups/delete/"+g.ID, alice.bearer(), map[string]any{"messageId": msg.ID})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	assert.Empty(t, decode[domain.Group](t, resp).Messages)

	resp = ts.api.Patch("/studygroups/delete/"+g.ID, alice.bearer(), map[string]any{"messageId": msg.ID})
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestSearchMessages(t *testing.T) {
	ts := setupTestServer(t, nil)
	alice := ts.register(t, "alice@purdue.edu", "alice")
	g := ts.createGroup(t, alice, "CS 180")
	other := ts.createGroup(t, alice, "MA 261")

	ts.sendMessage(t, alice, g.ID, map[string]any{"text": "recursion worksheet is due friday"})
	ts.sendMessage(t, alice, g.ID, map[string]any{"text": "lunch at the union?"})
	ts.sendMessage(t, alice, other.ID, map[string]any{"text": "recursion in sequences"})

	resp := ts.api.Get("/studygroups/search/"+g.ID+"?q=recursion", alice.bearer())
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	res := decode[search.Result](t, resp)
	require.Len(t, res.Hits, 1)
	assert.Contains(t, res.Hits[0].Text, "worksheet")

	resp = ts.api.Get("/studygroups/search/"+g.ID+"?q=recursion&limit=1000", alice.bearer())
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}
