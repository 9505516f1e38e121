package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boilergroups/groups-server/internal/domain"
	domainerrors "github.com/boilergroups/groups-server/internal/errors"
	"github.com/boilergroups/groups-server/internal/ratelimit"
	"github.com/boilergroups/groups-server/internal/sse"
)

func TestSendMessage_Scenario(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	g := env.createGroup(t, bob)

	res, err := env.messages.SendMessage(ctx, g.ID, alice, SendMessageRequest{Text: "hi"})
	require.NoError(t, err)
	assert.True(t, res.NewMessage)
	assert.Equal(t, "alice", res.Message.Sender)
	assert.Equal(t, "hi", res.Message.Text)
	assert.True(t, strings.HasPrefix(res.Message.ID, "msg-"))

	msgs, err := env.messages.GetGroupMessages(ctx, g.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, res.Message.ID, msgs[0].ID)
	assert.Equal(t, "hi", msgs[0].Text)
	assert.Equal(t, "alice", msgs[0].Sender)
	assert.Empty(t, msgs[0].Reactions)

	stored, err := env.groups.GetGroup(ctx, g.ID)
	require.NoError(t, err)
	assert.True(t, stored.NewMessage)

	msg, err := env.messages.ToggleReaction(ctx, g.ID, res.Message.ID, bob.UserID, domain.ReactionLike)
	require.NoError(t, err)
	assert.Equal(t, []string{"usr-bob-like"}, msg.Reactions.Tags())

	msg, err = env.messages.ToggleReaction(ctx, g.ID, res.Message.ID, bob.UserID, domain.ReactionLike)
	require.NoError(t, err)
	assert.Empty(t, msg.Reactions)

	expected := `
# HELP boilergroups_messages_sent_total Messages appended to group threads, status messages excluded.
# TYPE boilergroups_messages_sent_total counter
boilergroups_messages_sent_total 1
`
	assert.NoError(t, testutil.GatherAndCompare(env.metrics.Registry(), strings.NewReader(expected), "boilergroups_messages_sent_total"))
}

func TestSendMessage_Validation(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	g := env.createGroup(t, bob)

	tests := []struct {
		name    string
		groupID string
		sender  domain.Identity
		text    string
		code    domainerrors.Code
	}{
		{"empty text", g.ID, alice, "", domainerrors.CodeInvalidArgument},
		{"whitespace text", g.ID, alice, " \n\t ", domainerrors.CodeInvalidArgument},
		{"too long", g.ID, alice, strings.Repeat("a", MaxMessageLength+1), domainerrors.CodeInvalidArgument},
		{"invalid utf-8", g.ID, alice, "bad \xff byte", domainerrors.CodeInvalidArgument},
		{"unknown group", "grp-missing", alice, "hi", domainerrors.CodeNotFound},
		{"non member", g.ID, carol, "hi", domainerrors.CodeInvalidArgument},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.messages.SendMessage(ctx, tt.groupID, tt.sender, SendMessageRequest{Text: tt.text})
			require.Error(t, err)
			assert.Equal(t, tt.code, domainerrors.CodeOf(err))
		})
	}

	msgs, err := env.messages.GetGroupMessages(ctx, g.ID)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestSendMessage_TextStoredVerbatim(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	g := env.createGroup(t, bob)

	texts := []string{
		"line1\r\nline2",
		"cafe\u0301",
		"bell\a!",
		"  padded  ",
		"tab\tand\x00nul",
		"ﬁ ligature and 🎉",
	}
	for _, text := range texts {
		res, err := env.messages.SendMessage(ctx, g.ID, alice, SendMessageRequest{Text: text})
		require.NoError(t, err, "%q", text)
		assert.Equal(t, text, res.Message.Text)
	}

	msgs, err := env.messages.GetGroupMessages(ctx, g.ID)
	require.NoError(t, err)
	require.Len(t, msgs, len(texts))
	for i, text := range texts {
		assert.Equal(t, text, msgs[i].Text, "message %d", i)
	}
}

func TestSendMessage_SenderIsSnapshot(t *testing.T) {
	env := setupTestEnv(t)
	g := env.createGroup(t, bob)

	m := env.send(t, g.ID, alice, "first")

	renamed := alice
	renamed.Username = "alice2"
	env.send(t, g.ID, renamed, "second")

	msgs, err := env.messages.GetGroupMessages(context.Background(), g.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, m.ID, msgs[0].ID)
	assert.Equal(t, "alice", msgs[0].Sender)
	assert.Equal(t, "alice2", msgs[1].Sender)
}

func TestSendMessage_UniqueIDsUnderConcurrency(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	g := env.createGroup(t, bob, carol)

	const perSender = 15
	var wg sync.WaitGroup
	for _, sender := range []domain.Identity{alice, bob, carol} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range perSender {
				_, err := env.messages.SendMessage(ctx, g.ID, sender, SendMessageRequest{
					Text: fmt.Sprintf("%s %d", sender.Username, i),
				})
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	msgs, err := env.messages.GetGroupMessages(ctx, g.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 3*perSender)

	seen := make(map[string]bool, len(msgs))
	for _, m := range msgs {
		assert.False(t, seen[m.ID], "duplicate id %s", m.ID)
		seen[m.ID] = true
	}
}

func TestSendMessage_Mentions(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	g := env.createGroup(t, bob)

	env.send(t, g.ID, bob, "hey @Alice@Purdue.edu check this, also @nobody@purdue.edu")

	stored, err := env.groups.GetGroup(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{alice.Email}, stored.MembersTaggedOrReplied)

	_, ok := env.events.last(sse.EventNotificationsUpdated)
	assert.True(t, ok)
}

func TestSendMessage_SelfMentionIgnored(t *testing.T) {
	env := setupTestEnv(t)
	g := env.createGroup(t, bob)

	env.send(t, g.ID, alice, "note to self @alice@purdue.edu")

	stored, err := env.groups.GetGroup(context.Background(), g.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.MembersTaggedOrReplied)
}

func TestSendMessage_ReplyNotifiesAuthor(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	env.registerUser(t, alice)
	env.registerUser(t, bob)
	g := env.createGroup(t, bob)

	original := env.send(t, g.ID, alice, "what is due friday?")

	res, err := env.messages.SendMessage(ctx, g.ID, bob, SendMessageRequest{
		Text:  "the lab",
		Reply: domain.ReplySnapshot{ID: original.ID, Sender: original.Sender, Text: original.Text},
	})
	require.NoError(t, err)
	assert.Equal(t, original.ID, res.Message.ReplyToID)
	assert.Equal(t, "alice", res.Message.ReplyToSender)
	assert.Equal(t, "what is due friday?", res.Message.ReplyToText)

	stored, err := env.groups.GetGroup(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{alice.Email}, stored.MembersTaggedOrReplied)
}

func TestSendMessage_ReplyToSelfOrNonMember(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	env.registerUser(t, alice)
	env.registerUser(t, carol)
	g := env.createGroup(t, bob)

	_, err := env.messages.SendMessage(ctx, g.ID, alice, SendMessageRequest{
		Text:  "replying to myself",
		Reply: domain.ReplySnapshot{ID: "msg-x", Sender: "alice", Text: "earlier"},
	})
	require.NoError(t, err)

	_, err = env.messages.SendMessage(ctx, g.ID, alice, SendMessageRequest{
		Text:  "replying to someone outside",
		Reply: domain.ReplySnapshot{ID: "msg-y", Sender: "carol", Text: "hello"},
	})
	require.NoError(t, err)

	stored, err := env.groups.GetGroup(ctx, g.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.MembersTaggedOrReplied)
}

func TestSendMessage_RateLimited(t *testing.T) {
	env := setupTestEnv(t)
	limiter := ratelimit.New(0.001, 2)
	t.Cleanup(limiter.Stop)
	svc := NewMessageService(env.store, nil, nil, env.events, nil, limiter, nil)
	g := env.createGroup(t, bob)

	ctx := context.Background()
	for range 2 {
		_, err := svc.SendMessage(ctx, g.ID, alice, SendMessageRequest{Text: "hi"})
		require.NoError(t, err)
	}
	_, err := svc.SendMessage(ctx, g.ID, alice, SendMessageRequest{Text: "hi"})
	assert.Equal(t, domainerrors.CodeRateLimited, domainerrors.CodeOf(err))

	_, err = svc.SendMessage(ctx, g.ID, bob, SendMessageRequest{Text: "hi"})
	assert.NoError(t, err)
}

func TestSendMessage_RejectedSendsKeepQuota(t *testing.T) {
	env := setupTestEnv(t)
	limiter := ratelimit.New(0.001, 1)
	t.Cleanup(limiter.Stop)
	svc := NewMessageService(env.store, nil, nil, env.events, nil, limiter, nil)
	g := env.createGroup(t, bob)
	ctx := context.Background()

	for range 3 {
		_, err := svc.SendMessage(ctx, "grp-missing", alice, SendMessageRequest{Text: "hi"})
		assert.Equal(t, domainerrors.CodeNotFound, domainerrors.CodeOf(err))
	}
	outsider := domain.Identity{UserID: alice.UserID, Email: "alice@elsewhere.edu", Username: "alice"}
	_, err := svc.SendMessage(ctx, g.ID, outsider, SendMessageRequest{Text: "hi"})
	assert.Equal(t, domainerrors.CodeInvalidArgument, domainerrors.CodeOf(err))

	_, err = svc.SendMessage(ctx, g.ID, alice, SendMessageRequest{Text: "hi"})
	require.NoError(t, err)
	_, err = svc.SendMessage(ctx, g.ID, alice, SendMessageRequest{Text: "again"})
	assert.Equal(t, domainerrors.CodeRateLimited, domainerrors.CodeOf(err))
}

func TestDeleteMessage(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	g := env.createGroup(t, bob)

	first := env.send(t, g.ID, alice, "one")
	second := env.send(t, g.ID, bob, "two")
	third := env.send(t, g.ID, alice, "three")

	updated, err := env.messages.DeleteMessage(ctx, g.ID, second.ID)
	require.NoError(t, err)
	require.Len(t, updated.Messages, 2)
	assert.Equal(t, first.ID, updated.Messages[0].ID)
	assert.Equal(t, third.ID, updated.Messages[1].ID)

	e, ok := env.events.last(sse.EventMessageDeleted)
	require.True(t, ok)
	assert.Equal(t, sse.MessageDeletedEventData{MessageID: second.ID}, e.Data)

	_, err = env.messages.DeleteMessage(ctx, g.ID, second.ID)
	assert.True(t, domainerrors.Is(err, domainerrors.ErrNotFound))

	msgs, err := env.messages.GetGroupMessages(ctx, g.ID)
	require.NoError(t, err)
	assert.Len(t, msgs, 2)
}

func TestDeleteMessage_NotFound(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	g := env.createGroup(t, bob)
	env.send(t, g.ID, alice, "keep me")

	before, err := env.groups.GetGroup(ctx, g.ID)
	require.NoError(t, err)

	_, err = env.messages.DeleteMessage(ctx, g.ID, "msg-missing")
	assert.Equal(t, domainerrors.CodeNotFound, domainerrors.CodeOf(err))

	_, err = env.messages.DeleteMessage(ctx, "grp-missing", "msg-missing")
	assert.Equal(t, domainerrors.CodeNotFound, domainerrors.CodeOf(err))

	after, err := env.groups.GetGroup(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, before.Messages, after.Messages)
	assert.Equal(t, before.Version, after.Version)
}

func TestToggleReaction_KindsAreIndependent(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	g := env.createGroup(t, bob)
	m := env.send(t, g.ID, alice, "vote")

	_, err := env.messages.ToggleReaction(ctx, g.ID, m.ID, bob.UserID, domain.ReactionLike)
	require.NoError(t, err)
	msg, err := env.messages.ToggleReaction(ctx, g.ID, m.ID, bob.UserID, domain.ReactionDislike)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"usr-bob-like", "usr-bob-dislike"}, msg.Reactions.Tags())

	counts, err := env.messages.GetReactionCounts(ctx, g.ID, m.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ReactionCounts{Likes: 1, Dislikes: 1}, counts)

	msg, err = env.messages.ToggleReaction(ctx, g.ID, m.ID, bob.UserID, domain.ReactionDislike)
	require.NoError(t, err)
	assert.Equal(t, []string{"usr-bob-like"}, msg.Reactions.Tags())

	e, ok := env.events.last(sse.EventMessageReacted)
	require.True(t, ok)
	data, ok := e.Data.(sse.MessageReactedEventData)
	require.True(t, ok)
	assert.Equal(t, domain.ReactionCounts{Likes: 1}, data.Counts)
}

func TestToggleReaction_Errors(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	g := env.createGroup(t, bob)
	m := env.send(t, g.ID, alice, "vote")

	_, err := env.messages.ToggleReaction(ctx, g.ID, "msg-missing", bob.UserID, domain.ReactionLike)
	assert.Equal(t, domainerrors.CodeNotFound, domainerrors.CodeOf(err))

	_, err = env.messages.ToggleReaction(ctx, g.ID, m.ID, "", domain.ReactionLike)
	assert.Equal(t, domainerrors.CodeInvalidArgument, domainerrors.CodeOf(err))

	_, err = env.messages.ToggleReaction(ctx, g.ID, m.ID, bob.UserID, domain.ReactionLegacy)
	assert.Equal(t, domainerrors.CodeInvalidArgument, domainerrors.CodeOf(err))
}

func TestToggleReaction_ConcurrentTogglesDoNotLoseUpdates(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	g := env.createGroup(t, bob)
	m := env.send(t, g.ID, alice, "popular")

	const voters = 20
	var wg sync.WaitGroup
	for i := range voters {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.messages.ToggleReaction(ctx, g.ID, m.ID, fmt.Sprintf("usr-%d", i), domain.ReactionLike)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	counts, err := env.messages.GetReactionCounts(ctx, g.ID, m.ID)
	require.NoError(t, err)
	assert.Equal(t, voters, counts.Likes)
}

func TestGetReactionCounts_MatchesReactedEvent(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.store.CreateGroup(ctx, &domain.Group{
		ID:      "grp-odd",
		Name:    "odd tags",
		Members: []string{alice.Email},
		Messages: []domain.Message{{
			ID:     "msg-1",
			Sender: "alice",
			Text:   "hi",
			Reactions: domain.Reactions{
				domain.ParseReaction("-like"),
				domain.ParseReaction("-dislike"),
				domain.ParseReaction("usr-bob-like"),
			},
		}},
	}))

	_, err := env.messages.ToggleReaction(ctx, "grp-odd", "msg-1", alice.UserID, domain.ReactionDislike)
	require.NoError(t, err)
	e, ok := env.events.last(sse.EventMessageReacted)
	require.True(t, ok)

	counts, err := env.messages.GetReactionCounts(ctx, "grp-odd", "msg-1")
	require.NoError(t, err)
	assert.Equal(t, domain.ReactionCounts{Likes: 1, Dislikes: 1}, counts)
	assert.Equal(t, counts, e.Data.(sse.MessageReactedEventData).Counts)
}

func TestLikeMessage_AddOnly(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	g := env.createGroup(t, bob)
	m := env.send(t, g.ID, alice, "like me")

	msg, err := env.messages.LikeMessage(ctx, g.ID, m.ID, bob.UserID)
	require.NoError(t, err)
	assert.Equal(t, []string{"usr-bob-like"}, msg.Reactions.Tags())

	before, err := env.groups.GetGroup(ctx, g.ID)
	require.NoError(t, err)

	msg, err = env.messages.LikeMessage(ctx, g.ID, m.ID, bob.UserID)
	require.NoError(t, err)
	assert.Equal(t, []string{"usr-bob-like"}, msg.Reactions.Tags())

	after, err := env.groups.GetGroup(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, before.Version, after.Version)
}

func TestSearchMessages(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	g := env.createGroup(t, bob)
	other := env.createGroup(t, carol)

	keep := env.send(t, g.ID, alice, "the midterm covers recursion")
	gone := env.send(t, g.ID, bob, "recursion practice problems posted")
	env.send(t, other.ID, carol, "recursion in another group")

	_, err := env.messages.DeleteMessage(ctx, g.ID, gone.ID)
	require.NoError(t, err)

	res, err := env.messages.SearchMessages(ctx, g.ID, "recursion", 10)
	require.NoError(t, err)
	require.Len(t, res.Hits, 1)
	assert.Equal(t, keep.ID, res.Hits[0].MessageID)

	_, err = env.messages.SearchMessages(ctx, "grp-missing", "recursion", 10)
	assert.Equal(t, domainerrors.CodeNotFound, domainerrors.CodeOf(err))
}

func TestSearchMessages_Disabled(t *testing.T) {
	env := setupTestEnv(t)
	svc := NewMessageService(env.store, nil, nil, nil, nil, nil, nil)
	g := env.createGroup(t, bob)

	_, err := svc.SearchMessages(context.Background(), g.ID, "anything", 0)
	assert.Equal(t, domainerrors.CodeInvalidArgument, domainerrors.CodeOf(err))
}

func TestMigrateLegacyReactions(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	g := &domain.Group{
		ID:      "grp-legacy",
		Name:    "old group",
		Members: []string{alice.Email, bob.Email},
		Messages: []domain.Message{{
			ID:     "msg-1",
			Sender: "alice",
			Text:   "before the rewrite",
			Reactions: domain.Reactions{
				domain.ParseReaction("usr-bob"),
				domain.ParseReaction("usr-carol-dislike"),
			},
		}},
	}
	require.NoError(t, env.store.CreateGroup(ctx, g))
	env.createGroup(t, bob)

	counts, err := env.messages.GetReactionCounts(ctx, g.ID, "msg-1")
	require.NoError(t, err)
	assert.Equal(t, domain.ReactionCounts{Dislikes: 1}, counts)

	n, err := env.messages.MigrateLegacyReactions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	counts, err = env.messages.GetReactionCounts(ctx, g.ID, "msg-1")
	require.NoError(t, err)
	assert.Equal(t, domain.ReactionCounts{Likes: 1, Dislikes: 1}, counts)

	n, err = env.messages.MigrateLegacyReactions(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}
