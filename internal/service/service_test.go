package service

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/boilergroups/groups-server/internal/domain"
	"github.com/boilergroups/groups-server/internal/lock"
	"github.com/boilergroups/groups-server/internal/metrics"
	"github.com/boilergroups/groups-server/internal/search"
	"github.com/boilergroups/groups-server/internal/sse"
	"github.com/boilergroups/groups-server/internal/store"
	"github.com/boilergroups/groups-server/internal/store/badgerdb"
	"github.com/boilergroups/groups-server/internal/validation"
)

// recordingEmitter keeps every emitted event.
type recordingEmitter struct {
	mu     sync.Mutex
	events []sse.Event
}

func (r *recordingEmitter) Emit(e sse.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingEmitter) types() []sse.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]sse.EventType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

func (r *recordingEmitter) last(t sse.EventType) (sse.Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].Type == t {
			return r.events[i], true
		}
	}
	return sse.Event{}, false
}

type testEnv struct {
	store         store.Store
	index         *search.Index
	events        *recordingEmitter
	metrics       *metrics.Metrics
	groups        *GroupService
	messages      *MessageService
	notifications *NotificationService
}

var (
	alice = domain.Identity{UserID: "usr-alice", Email: "alice@purdue.edu", Username: "alice"}
	bob   = domain.Identity{UserID: "usr-bob", Email: "bob@purdue.edu", Username: "bob"}
	carol = domain.Identity{UserID: "usr-carol", Email: "carol@purdue.edu", Username: "carol"}
)

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()

	s, err := badgerdb.OpenInMemory(nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	idx, err := search.New(search.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })

	m := metrics.New(nil)
	st := metrics.InstrumentStore(s, m)
	events := &recordingEmitter{}
	locker := lock.NewKeyedMutex(0)
	v := validation.New()

	return &testEnv{
		store:         st,
		index:         idx,
		events:        events,
		metrics:       m,
		groups:        NewGroupService(st, locker, idx, events, m, v, nil),
		messages:      NewMessageService(st, locker, idx, events, m, nil, nil),
		notifications: NewNotificationService(st, locker, events, m, v, nil),
	}
}

// createGroup makes a group of alice plus members.
func (e *testEnv) createGroup(t *testing.T, members ...domain.Identity) *domain.Group {
	t.Helper()
	emails := make([]string, 0, len(members))
	for _, m := range members {
		emails = append(emails, m.Email)
	}
	g, err := e.groups.CreateGroup(context.Background(), alice, CreateGroupRequest{
		Name:    "CS 180",
		Members: emails,
	})
	require.NoError(t, err)
	return g
}

func (e *testEnv) registerUser(t *testing.T, u domain.Identity) {
	t.Helper()
	require.NoError(t, e.store.CreateUser(context.Background(), &domain.User{
		ID:       u.UserID,
		Email:    u.Email,
		Username: u.Username,
	}))
}

func (e *testEnv) send(t *testing.T, groupID string, from domain.Identity, text string) domain.Message {
	t.Helper()
	res, err := e.messages.SendMessage(context.Background(), groupID, from, SendMessageRequest{Text: text})
	require.NoError(t, err)
	return res.Message
}
