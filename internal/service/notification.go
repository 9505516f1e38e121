package service

import (
	"context"
	"log/slog"
	"slices"

	"github.com/boilergroups/groups-server/internal/domain"
	domainerrors "github.com/boilergroups/groups-server/internal/errors"
	"github.com/boilergroups/groups-server/internal/lock"
	"github.com/boilergroups/groups-server/internal/normalize"
	"github.com/boilergroups/groups-server/internal/sse"
	"github.com/boilergroups/groups-server/internal/store"
	"github.com/boilergroups/groups-server/internal/validation"
)

// Notification reasons reported to the recorder.
const (
	reasonReply   = "reply"
	reasonMention = "mention"
	reasonTagged  = "tagged"
	reasonUnread  = "unopened"
)

// notifyOnSend marks the members a new message replies to or mentions. The sender
// is never marked. replyCandidates are the emails of users whose username matches
// the replied-to sender; the first one that is a current member is notified.
func notifyOnSend(g *domain.Group, m *domain.Message, senderEmail string, replyCandidates []string) (replied, mentioned int) {
	sender := normalize.Email(senderEmail)

	if m.ReplyToSender != "" {
		i := slices.IndexFunc(replyCandidates, g.IsMember)
		if i >= 0 {
			target := normalize.Email(replyCandidates[i])
			if target != sender && g.MarkTaggedOrReplied(target) {
				replied++
			}
		}
	}

	for _, email := range domain.ExtractMentions(m.Text) {
		if email == sender || !g.IsMember(email) {
			continue
		}
		if g.MarkTaggedOrReplied(email) {
			mentioned++
		}
	}
	return replied, mentioned
}

// NotificationService maintains the unread and tagged/replied sets explicitly.
type NotificationService struct {
	mutator   *groupMutator
	events    sse.Emitter
	recorder  Recorder
	validator *validation.Validator
	logger    *slog.Logger
}

// NewNotificationService creates a new notification service.
func NewNotificationService(s store.Store, l lock.Locker, events sse.Emitter, r Recorder, v *validation.Validator, logger *slog.Logger) *NotificationService {
	m := newGroupMutator(s, l, r, logger)
	if events == nil {
		events = sse.NoopEmitter{}
	}
	if v == nil {
		v = validation.New()
	}
	return &NotificationService{
		mutator:   m,
		events:    events,
		recorder:  m.recorder,
		validator: v,
		logger:    m.logger,
	}
}

// update runs fn under the group lock and announces the new notification state
// when fn reported a change.
func (s *NotificationService) update(ctx context.Context, groupID string, fn func(g *domain.Group) (bool, error)) (*domain.Group, error) {
	changed := false
	g, err := s.mutator.mutate(ctx, groupID, func(g *domain.Group) error {
		var err error
		changed, err = fn(g)
		if err != nil {
			return err
		}
		if !changed {
			return store.ErrNoChange
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if changed {
		s.events.Emit(sse.NewNotificationsUpdatedEvent(g))
	}
	return g, nil
}

// AddTaggedUser marks email as having a pending mention or reply. email must be a
// current member.
func (s *NotificationService) AddTaggedUser(ctx context.Context, groupID, email string) (*domain.Group, error) {
	if err := s.validator.Email("email", email); err != nil {
		return nil, err
	}
	marked := false
	g, err := s.update(ctx, groupID, func(g *domain.Group) (bool, error) {
		if !g.IsMember(email) {
			return false, domainerrors.InvalidArgumentf("%s is not a member of this group", normalize.Email(email))
		}
		marked = g.MarkTaggedOrReplied(email)
		return marked, nil
	})
	if err != nil {
		return nil, err
	}
	if marked {
		s.recorder.NotificationMarked(reasonTagged, 1)
	}
	return g, nil
}

// RemoveTaggedUser clears email's pending mention or reply. Clearing an absent
// entry is not an error.
func (s *NotificationService) RemoveTaggedUser(ctx context.Context, groupID, email string) (*domain.Group, error) {
	return s.update(ctx, groupID, func(g *domain.Group) (bool, error) {
		return g.ClearTaggedOrReplied(email), nil
	})
}

// AddAllMembersToUnopened marks every current member as having unread messages.
func (s *NotificationService) AddAllMembersToUnopened(ctx context.Context, groupID string) (*domain.Group, error) {
	added := 0
	g, err := s.update(ctx, groupID, func(g *domain.Group) (bool, error) {
		added = g.MarkAllUnopened()
		return added > 0, nil
	})
	if err != nil {
		return nil, err
	}
	s.recorder.NotificationMarked(reasonUnread, added)
	return g, nil
}

// RemoveMemberFromUnopened marks the group as read for email.
func (s *NotificationService) RemoveMemberFromUnopened(ctx context.Context, groupID, email string) (*domain.Group, error) {
	return s.update(ctx, groupID, func(g *domain.Group) (bool, error) {
		return g.MarkOpened(email), nil
	})
}

// ClearNewMessage resets the group's new message flag.
func (s *NotificationService) ClearNewMessage(ctx context.Context, groupID string) (*domain.Group, error) {
	return s.update(ctx, groupID, func(g *domain.Group) (bool, error) {
		if !g.NewMessage {
			return false, nil
		}
		g.NewMessage = false
		return true, nil
	})
}
