package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/boilergroups/groups-server/internal/domain"
	domainerrors "github.com/boilergroups/groups-server/internal/errors"
	"github.com/boilergroups/groups-server/internal/id"
	"github.com/boilergroups/groups-server/internal/lock"
	"github.com/boilergroups/groups-server/internal/normalize"
	"github.com/boilergroups/groups-server/internal/sse"
	"github.com/boilergroups/groups-server/internal/store"
	"github.com/boilergroups/groups-server/internal/validation"
)

// CreateGroupRequest describes a new study group.
type CreateGroupRequest struct {
	Name    string   `json:"name" validate:"max=120"`
	Members []string `json:"members" validate:"max=500,dive,email"`
	IsDM    bool     `json:"isDM"`
}

// EdbotRequest replaces a group's assistant settings.
type EdbotRequest struct {
	Name          string `json:"name" validate:"max=64"`
	SummaryWindow int    `json:"summaryWindow" validate:"gte=0,lte=500"`
	Enabled       bool   `json:"enabled"`
}

// GroupService manages group lifecycle and membership.
type GroupService struct {
	store     store.Store
	mutator   *groupMutator
	index     MessageIndex
	events    sse.Emitter
	recorder  Recorder
	validator *validation.Validator
	logger    *slog.Logger
}

// NewGroupService creates a new group service. index may be nil when search is
// disabled.
func NewGroupService(s store.Store, l lock.Locker, index MessageIndex, events sse.Emitter, r Recorder, v *validation.Validator, logger *slog.Logger) *GroupService {
	m := newGroupMutator(s, l, r, logger)
	if events == nil {
		events = sse.NoopEmitter{}
	}
	if v == nil {
		v = validation.New()
	}
	return &GroupService{
		store:     s,
		mutator:   m,
		index:     index,
		events:    events,
		recorder:  m.recorder,
		validator: v,
		logger:    m.logger,
	}
}

// CreateGroup creates a group with creator as a member. A DM must end up with
// exactly two members.
func (s *GroupService) CreateGroup(ctx context.Context, creator domain.Identity, req CreateGroupRequest) (*domain.Group, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}
	if err := s.validator.Email("creator", creator.Email); err != nil {
		return nil, err
	}

	name := strings.TrimSpace(normalize.Text(req.Name))
	if name == "" && !req.IsDM {
		return nil, domainerrors.InvalidArgument("group name is required")
	}

	g := &domain.Group{Name: name, IsDM: req.IsDM}
	g.AddMember(creator.Email)
	for _, email := range req.Members {
		g.AddMember(email)
	}
	if req.IsDM && len(g.Members) != 2 {
		return nil, domainerrors.InvalidArgumentf("a direct message needs exactly 2 members, got %d", len(g.Members))
	}

	groupID, err := id.Generate(id.PrefixGroup)
	if err != nil {
		return nil, fmt.Errorf("generate group ID: %w", err)
	}
	g.ID = groupID

	if err := s.store.CreateGroup(ctx, g); err != nil {
		return nil, translateError(err)
	}

	s.logger.Info("study group created",
		"group_id", g.ID,
		"members", len(g.Members),
		"is_dm", g.IsDM,
	)
	s.events.Emit(sse.NewGroupCreatedEvent(g))
	return g, nil
}

// GetGroup returns a group by id.
func (s *GroupService) GetGroup(ctx context.Context, groupID string) (*domain.Group, error) {
	return s.mutator.get(ctx, groupID)
}

// ListGroupsForMember returns every group email belongs to.
func (s *GroupService) ListGroupsForMember(ctx context.Context, email string) ([]*domain.Group, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	groups, err := s.store.ListGroupsForMember(ctx, email)
	if err != nil {
		return nil, translateError(err)
	}
	if groups == nil {
		groups = []*domain.Group{}
	}
	return groups, nil
}

// DeleteGroup removes a group and its search documents.
func (s *GroupService) DeleteGroup(ctx context.Context, groupID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	unlock, err := s.mutator.lock(ctx, groupID)
	if err != nil {
		return err
	}
	defer unlock()

	g, err := s.mutator.get(ctx, groupID)
	if err != nil {
		return err
	}
	if err := s.store.DeleteGroup(ctx, groupID); err != nil {
		return translateError(err)
	}

	if s.index != nil {
		if err := s.index.DeleteGroup(ctx, groupID); err != nil {
			s.logger.Warn("failed to drop group from search index", "group_id", groupID, "error", err)
		}
	}

	s.logger.Info("study group deleted", "group_id", groupID)
	s.events.Emit(sse.NewGroupDeletedEvent(g))
	return nil
}

// AddMember adds email to the group and records a join status message. Adding an
// existing member changes nothing.
func (s *GroupService) AddMember(ctx context.Context, groupID, email string) (*domain.Group, error) {
	if err := s.validator.Email("email", email); err != nil {
		return nil, err
	}
	statusID, err := id.Generate(id.PrefixMessage)
	if err != nil {
		return nil, fmt.Errorf("generate message ID: %w", err)
	}

	var status *domain.Message
	g, err := s.mutator.mutate(ctx, groupID, func(g *domain.Group) error {
		status = nil
		if g.IsDM && !g.IsMember(email) {
			return domainerrors.InvalidArgument("cannot add members to a direct message")
		}
		if !g.AddMember(email) {
			return store.ErrNoChange
		}
		m := domain.NewStatusMessage(statusID, normalize.Email(email), domain.StatusJoined, time.Now())
		if err := g.AppendMessage(m); err != nil {
			return err
		}
		status = &m
		return nil
	})
	if err != nil {
		return nil, err
	}
	if status == nil {
		return g, nil
	}

	s.recorder.MembershipChanged("joined")
	s.logger.Info("member added", "group_id", groupID, "email", normalize.Email(email))
	s.events.Emit(sse.NewMemberAddedEvent(g, email))
	s.events.Emit(sse.NewMessageSentEvent(g, *status))
	return g, nil
}

// RemoveMember removes email from the group, records a leave status message and
// clears the email's pending notifications.
func (s *GroupService) RemoveMember(ctx context.Context, groupID, email string) (*domain.Group, error) {
	if err := s.validator.Email("email", email); err != nil {
		return nil, err
	}
	statusID, err := id.Generate(id.PrefixMessage)
	if err != nil {
		return nil, fmt.Errorf("generate message ID: %w", err)
	}

	var status domain.Message
	g, err := s.mutator.mutate(ctx, groupID, func(g *domain.Group) error {
		if !g.RemoveMember(email) {
			return domainerrors.InvalidArgumentf("%s is not a member of this group", normalize.Email(email))
		}
		g.PurgeNotifications(email)
		status = domain.NewStatusMessage(statusID, normalize.Email(email), domain.StatusLeft, time.Now())
		return g.AppendMessage(status)
	})
	if err != nil {
		return nil, err
	}

	s.recorder.MembershipChanged("left")
	s.logger.Info("member removed", "group_id", groupID, "email", normalize.Email(email))
	s.events.Emit(sse.NewMemberRemovedEvent(g, email))
	s.events.Emit(sse.NewMessageSentEvent(g, status))
	return g, nil
}

// UpdateEdbotSettings replaces the group's assistant settings.
func (s *GroupService) UpdateEdbotSettings(ctx context.Context, groupID string, req EdbotRequest) (*domain.Group, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}
	settings := domain.EdbotSettings{
		Enabled:       req.Enabled,
		Name:          strings.TrimSpace(normalize.Text(req.Name)),
		SummaryWindow: req.SummaryWindow,
	}

	changed := false
	g, err := s.mutator.mutate(ctx, groupID, func(g *domain.Group) error {
		changed = g.Edbot != settings
		if !changed {
			return store.ErrNoChange
		}
		g.Edbot = settings
		return nil
	})
	if err != nil {
		return nil, err
	}
	if changed {
		s.logger.Debug("edbot settings updated", "group_id", groupID, "enabled", settings.Enabled)
		s.events.Emit(sse.NewEdbotUpdatedEvent(g))
	}
	return g, nil
}
