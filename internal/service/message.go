package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/boilergroups/groups-server/internal/domain"
	domainerrors "github.com/boilergroups/groups-server/internal/errors"
	"github.com/boilergroups/groups-server/internal/id"
	"github.com/boilergroups/groups-server/internal/lock"
	"github.com/boilergroups/groups-server/internal/normalize"
	"github.com/boilergroups/groups-server/internal/ratelimit"
	"github.com/boilergroups/groups-server/internal/search"
	"github.com/boilergroups/groups-server/internal/sse"
	"github.com/boilergroups/groups-server/internal/store"
)

// MaxMessageLength bounds the text of a single message, in bytes.
const MaxMessageLength = 8000

// SendMessageRequest is a new message, optionally replying to another.
type SendMessageRequest struct {
	Text  string
	Reply domain.ReplySnapshot
}

// SendMessageResult is the stored message and the group's new message flag.
type SendMessageResult struct {
	Message    domain.Message
	NewMessage bool
}

// MessageService appends, removes, reacts to and searches group messages.
type MessageService struct {
	store    store.Store
	mutator  *groupMutator
	index    MessageIndex
	events   sse.Emitter
	recorder Recorder
	limiter  *ratelimit.KeyedRateLimiter
	logger   *slog.Logger
}

// NewMessageService creates a new message service. index and limiter may be nil,
// disabling search and the per-user send limit.
func NewMessageService(s store.Store, l lock.Locker, index MessageIndex, events sse.Emitter, r Recorder, limiter *ratelimit.KeyedRateLimiter, logger *slog.Logger) *MessageService {
	m := newGroupMutator(s, l, r, logger)
	if events == nil {
		events = sse.NoopEmitter{}
	}
	return &MessageService{
		store:    s,
		mutator:  m,
		index:    index,
		events:   events,
		recorder: m.recorder,
		limiter:  limiter,
		logger:   m.logger,
	}
}

// SendMessage appends a message from sender to the group, updates the tagged and
// replied set and sets the group's new message flag.
func (s *MessageService) SendMessage(ctx context.Context, groupID string, sender domain.Identity, req SendMessageRequest) (*SendMessageResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Text is stored exactly as sent; trimming only decides emptiness.
	text := req.Text
	if normalize.Blank(text) {
		return nil, domainerrors.InvalidArgument("message text is required")
	}
	if len(text) > MaxMessageLength {
		return nil, domainerrors.InvalidArgumentf("message text must not exceed %d bytes", MaxMessageLength)
	}
	if !utf8.ValidString(text) {
		return nil, domainerrors.InvalidArgument("message text must be valid UTF-8")
	}

	replyCandidates, err := s.replyCandidates(ctx, req.Reply)
	if err != nil {
		return nil, err
	}

	msgID, err := id.Generate(id.PrefixMessage)
	if err != nil {
		return nil, fmt.Errorf("generate message ID: %w", err)
	}

	var (
		msg                domain.Message
		replied, mentioned int
		charged            bool
	)
	g, err := s.mutator.mutate(ctx, groupID, func(g *domain.Group) error {
		if !g.IsMember(sender.Email) {
			return domainerrors.InvalidArgument("sender is not a member of this group")
		}
		// Charged once per send even when the store retries fn.
		if !charged {
			charged = true
			if !s.limiter.Allow(sender.UserID) {
				return domainerrors.RateLimited("too many messages, slow down")
			}
		}
		msg = domain.Message{
			ID:        msgID,
			Sender:    sender.Username,
			Text:      text,
			Timestamp: time.Now(),
			Reactions: domain.Reactions{},
		}
		msg.SetReply(req.Reply)
		if err := g.AppendMessage(msg); err != nil {
			return err
		}
		g.NewMessage = true
		replied, mentioned = notifyOnSend(g, &msg, sender.Email, replyCandidates)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.index != nil {
		if err := s.index.IndexMessage(groupID, &msg); err != nil {
			s.logger.Warn("failed to index message", "group_id", groupID, "message_id", msgID, "error", err)
		}
	}

	s.recorder.MessageSent()
	s.recorder.NotificationMarked(reasonReply, replied)
	s.recorder.NotificationMarked(reasonMention, mentioned)

	s.logger.Debug("message sent",
		"group_id", groupID,
		"message_id", msgID,
		"sender", sender.Username,
		"replied", replied,
		"mentioned", mentioned,
	)

	s.events.Emit(sse.NewMessageSentEvent(g, msg))
	if replied+mentioned > 0 {
		s.events.Emit(sse.NewNotificationsUpdatedEvent(g))
	}
	return &SendMessageResult{Message: msg, NewMessage: g.NewMessage}, nil
}

// replyCandidates resolves the replied-to username to the emails of the users that
// carry it. Membership is checked later, under the group lock.
func (s *MessageService) replyCandidates(ctx context.Context, reply domain.ReplySnapshot) ([]string, error) {
	username := normalize.Username(reply.Sender)
	if username == "" || username == domain.StatusSender {
		return nil, nil
	}
	users, err := s.store.ListUsersByUsername(ctx, username)
	if err != nil {
		return nil, domainerrors.ServerError(err)
	}
	emails := make([]string, 0, len(users))
	for _, u := range users {
		emails = append(emails, u.Email)
	}
	return emails, nil
}

// DeleteMessage removes a message from the thread. Deleting a message that is not
// there is NotFound.
func (s *MessageService) DeleteMessage(ctx context.Context, groupID, messageID string) (*domain.Group, error) {
	g, err := s.mutator.mutate(ctx, groupID, func(g *domain.Group) error {
		if !g.RemoveMessage(messageID) {
			return domainerrors.NotFoundf("message %s not found", messageID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.index != nil {
		if err := s.index.DeleteMessage(groupID, messageID); err != nil {
			s.logger.Warn("failed to remove message from search index", "group_id", groupID, "message_id", messageID, "error", err)
		}
	}

	s.recorder.MessageDeleted()
	s.logger.Debug("message deleted", "group_id", groupID, "message_id", messageID)
	s.events.Emit(sse.NewMessageDeletedEvent(g, messageID))
	return g, nil
}

// GetGroupMessages returns the group's thread in append order.
func (s *MessageService) GetGroupMessages(ctx context.Context, groupID string) ([]domain.Message, error) {
	g, err := s.mutator.get(ctx, groupID)
	if err != nil {
		return nil, err
	}
	return g.Messages, nil
}

// ToggleReaction adds userID's reaction of kind to a message, or removes it when
// already present. The opposite kind is left alone.
func (s *MessageService) ToggleReaction(ctx context.Context, groupID, messageID, userID string, kind domain.ReactionKind) (*domain.Message, error) {
	r, err := domain.NewReaction(userID, kind)
	if err != nil {
		return nil, domainerrors.InvalidArgument(err.Error())
	}

	var added bool
	msg, err := s.react(ctx, groupID, messageID, func(m *domain.Message) bool {
		added = m.Reactions.Toggle(r)
		return true
	})
	if err != nil {
		return nil, err
	}

	action := "removed"
	if added {
		action = "added"
	}
	s.recorder.Reaction(kind.String(), action)
	return msg, nil
}

// LikeMessage adds userID's like when absent. It never removes one.
func (s *MessageService) LikeMessage(ctx context.Context, groupID, messageID, userID string) (*domain.Message, error) {
	r, err := domain.NewReaction(userID, domain.ReactionLike)
	if err != nil {
		return nil, domainerrors.InvalidArgument(err.Error())
	}

	var added bool
	msg, err := s.react(ctx, groupID, messageID, func(m *domain.Message) bool {
		added = m.Reactions.Add(r)
		return added
	})
	if err != nil {
		return nil, err
	}
	if added {
		s.recorder.Reaction(domain.ReactionLike.String(), "added")
	}
	return msg, nil
}

// react applies change to one message. change reports whether it modified the
// message.
func (s *MessageService) react(ctx context.Context, groupID, messageID string, change func(m *domain.Message) bool) (*domain.Message, error) {
	var changed bool
	g, err := s.mutator.mutate(ctx, groupID, func(g *domain.Group) error {
		m, ok := g.FindMessage(messageID)
		if !ok {
			return domainerrors.NotFoundf("message %s not found", messageID)
		}
		changed = change(m)
		if !changed {
			return store.ErrNoChange
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	m, ok := g.FindMessage(messageID)
	if !ok {
		return nil, domainerrors.NotFoundf("message %s not found", messageID)
	}
	msg := *m
	if changed {
		s.events.Emit(sse.NewMessageReactedEvent(g, &msg))
	}
	return &msg, nil
}

// GetReactionCounts tallies likes and dislikes on a message.
func (s *MessageService) GetReactionCounts(ctx context.Context, groupID, messageID string) (domain.ReactionCounts, error) {
	g, err := s.mutator.get(ctx, groupID)
	if err != nil {
		return domain.ReactionCounts{}, err
	}
	m, ok := g.FindMessage(messageID)
	if !ok {
		return domain.ReactionCounts{}, domainerrors.NotFoundf("message %s not found", messageID)
	}
	likes, dislikes := m.Reactions.Count()
	return domain.ReactionCounts{Likes: likes, Dislikes: dislikes}, nil
}

// SearchMessages runs a full text query over one group's messages.
func (s *MessageService) SearchMessages(ctx context.Context, groupID, query string, limit int) (*search.Result, error) {
	if s.index == nil {
		return nil, domainerrors.InvalidArgument("message search is disabled")
	}
	if _, err := s.mutator.get(ctx, groupID); err != nil {
		return nil, err
	}
	query = strings.TrimSpace(query)
	if len(query) > 256 {
		return nil, domainerrors.InvalidArgument("search query must not exceed 256 characters")
	}
	res, err := s.index.Search(ctx, search.Params{GroupID: groupID, Query: query, Limit: limit})
	if err != nil {
		return nil, domainerrors.ServerError(err)
	}
	return res, nil
}
