package sse

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boilergroups/groups-server/internal/domain"
)

func startManager(t *testing.T) *Manager {
	t.Helper()
	m := NewManager(nil)
	ctx, cancel := context.WithCancel(context.Background())
	go m.Start(ctx)
	t.Cleanup(cancel)
	return m
}

func receive(t *testing.T, c *Client) Event {
	t.Helper()
	select {
	case e := <-c.EventChan:
		return e
	case <-time.After(time.Second):
		t.Fatal("no event received")
		return Event{}
	}
}

func assertNothing(t *testing.T, c *Client) {
	t.Helper()
	select {
	case e := <-c.EventChan:
		t.Fatalf("unexpected event %s", e.Type)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestManager_DeliversToMembersOnly(t *testing.T) {
	m := startManager(t)

	member, err := m.Connect("usr-1", "Alice@X.com")
	require.NoError(t, err)
	outsider, err := m.Connect("usr-2", "bob@x.com")
	require.NoError(t, err)

	g := &domain.Group{ID: "grp-1", Members: []string{"alice@x.com"}}
	m.Emit(NewMessageSentEvent(g, domain.Message{ID: "m1", Text: "hi"}))

	e := receive(t, member)
	assert.Equal(t, EventMessageSent, e.Type)
	assert.Equal(t, "grp-1", e.GroupID)
	assert.Equal(t, "m1", e.Data.(MessageEventData).Message.ID)
	assertNothing(t, outsider)
}

func TestManager_MemberRemovedReachesRemovedMember(t *testing.T) {
	m := startManager(t)
	removed, err := m.Connect("usr-2", "bob@x.com")
	require.NoError(t, err)

	g := &domain.Group{ID: "grp-1", Members: []string{"alice@x.com"}}
	m.Emit(NewMemberRemovedEvent(g, "bob@x.com"))

	e := receive(t, removed)
	assert.Equal(t, EventMemberRemoved, e.Type)
}

func TestManager_EmptyGroupReachesNobody(t *testing.T) {
	m := startManager(t)
	outsider, err := m.Connect("usr-9", "eve@x.com")
	require.NoError(t, err)

	g := &domain.Group{ID: "grp-1"}
	m.Emit(NewMessageSentEvent(g, domain.NewStatusMessage("m1", "alice@x.com", domain.StatusLeft, time.Now())))
	m.Emit(NewMessageDeletedEvent(g, "m1"))
	m.Emit(NewGroupDeletedEvent(g))

	assertNothing(t, outsider)
}

func TestManager_HeartbeatReachesEveryStream(t *testing.T) {
	m := startManager(t)
	a, err := m.Connect("usr-1", "a@x.com")
	require.NoError(t, err)
	b, err := m.Connect("usr-2", "b@x.com", "grp-7")
	require.NoError(t, err)

	m.Emit(NewHeartbeatEvent())

	assert.Equal(t, EventHeartbeat, receive(t, a).Type)
	assert.Equal(t, EventHeartbeat, receive(t, b).Type)
}

func TestManager_SequenceIncreases(t *testing.T) {
	m := startManager(t)
	c, err := m.Connect("usr-1", "a@x.com")
	require.NoError(t, err)

	g := &domain.Group{ID: "grp-1", Members: []string{"a@x.com"}}
	m.Emit(NewMessageDeletedEvent(g, "m1"))
	m.Emit(NewMessageDeletedEvent(g, "m2"))

	first, second := receive(t, c), receive(t, c)
	assert.NotZero(t, first.Seq)
	assert.Equal(t, first.Seq+1, second.Seq)
}

func TestManager_GroupFilter(t *testing.T) {
	m := startManager(t)
	narrow, err := m.Connect("usr-1", "a@x.com", "grp-2", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"grp-2"}, narrow.Groups)
	wide, err := m.Connect("usr-1", "a@x.com")
	require.NoError(t, err)

	g1 := &domain.Group{ID: "grp-1", Members: []string{"a@x.com"}}
	g2 := &domain.Group{ID: "grp-2", Members: []string{"a@x.com"}}
	m.Emit(NewMessageDeletedEvent(g1, "m1"))
	m.Emit(NewMessageDeletedEvent(g2, "m2"))

	assert.Equal(t, "grp-2", receive(t, narrow).GroupID)
	assertNothing(t, narrow)
	assert.Equal(t, "grp-1", receive(t, wide).GroupID)
	assert.Equal(t, "grp-2", receive(t, wide).GroupID)
}

func TestManager_SameMemberSeveralStreams(t *testing.T) {
	m := startManager(t)
	c1, err := m.Connect("usr-1", "a@x.com")
	require.NoError(t, err)
	c2, err := m.Connect("usr-1", "A@x.com")
	require.NoError(t, err)

	m.Disconnect(c1.ID)
	g := &domain.Group{ID: "grp-1", Members: []string{"a@x.com"}}
	m.Emit(NewGroupDeletedEvent(g))

	assert.Equal(t, EventGroupDeleted, receive(t, c2).Type)
	assert.Equal(t, 1, m.ClientCount())
}

func TestParseGroups(t *testing.T) {
	assert.Nil(t, parseGroups(""))
	assert.Equal(t, []string{"a", "b"}, parseGroups(" a, ,b,"))
}

func TestManager_Disconnect(t *testing.T) {
	m := NewManager(nil)
	c, err := m.Connect("usr-1", "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, 1, m.ClientCount())

	m.Disconnect(c.ID)
	m.Disconnect(c.ID)
	assert.Equal(t, 0, m.ClientCount())

	_, open := <-c.Done
	assert.False(t, open)
}

func TestManager_EmitAfterShutdown(t *testing.T) {
	m := startManager(t)
	c, err := m.Connect("usr-1", "a@x.com")
	require.NoError(t, err)

	require.NoError(t, m.Shutdown(context.Background()))
	m.Emit(NewHeartbeatEvent())

	_, open := <-c.Done
	assert.False(t, open)
	assert.Equal(t, 0, m.ClientCount())
}

func TestNewMessageReactedEvent_Counts(t *testing.T) {
	g := &domain.Group{ID: "grp-1", Members: []string{"a@x.com"}}
	msg := &domain.Message{ID: "m1", Reactions: domain.Reactions{
		{UserID: "u1", Kind: domain.ReactionLike},
		{UserID: "u2", Kind: domain.ReactionDislike},
		{UserID: "u3", Kind: domain.ReactionLike},
	}}

	e := NewMessageReactedEvent(g, msg)
	data := e.Data.(MessageReactedEventData)
	assert.Equal(t, domain.ReactionCounts{Likes: 2, Dislikes: 1}, data.Counts)
	assert.Equal(t, []string{"a@x.com"}, e.Recipients)
}

func TestHandler_RequiresIdentity(t *testing.T) {
	h := NewHandler(NewManager(nil), func(*http.Request) (string, string, bool) { return "", "", false }, nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/events", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandler_Streams(t *testing.T) {
	m := startManager(t)
	h := NewHandler(m, func(*http.Request) (string, string, bool) { return "usr-1", "a@x.com", true }, nil)
	srv := httptest.NewServer(h)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	r := bufio.NewReader(resp.Body)
	line, err := r.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "event: connected\n", line)

	// Wait for the client to be registered before emitting.
	require.Eventually(t, func() bool { return m.ClientCount() == 1 }, time.Second, 5*time.Millisecond)
	g := &domain.Group{ID: "grp-1", Members: []string{"a@x.com"}}
	m.Emit(NewMessageDeletedEvent(g, "m1"))

	var prev string
	for {
		line, err = r.ReadString('\n')
		require.NoError(t, err)
		if strings.HasPrefix(line, "event: message.deleted") {
			break
		}
		prev = line
	}
	assert.True(t, strings.HasPrefix(prev, "id: "), "frame id precedes event, got %q", prev)
	line, err = r.ReadString('\n')
	require.NoError(t, err)
	assert.Contains(t, line, `"messageId":"m1"`)
	assert.Contains(t, line, `"groupId":"grp-1"`)
}
