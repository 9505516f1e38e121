package api

import (
	"context"
	"net/http"
	"net/url"

	"github.com/danielgtaylor/huma/v2"

	"github.com/boilergroups/groups-server/internal/domain"
	domainerrors "github.com/boilergroups/groups-server/internal/errors"
	"github.com/boilergroups/groups-server/internal/service"
)

func (s *Server) registerGroupRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID:   "createStudyGroup",
		Method:        http.MethodPost,
		Path:          "/studygroups",
		Summary:       "Create study group",
		Description:   "Creates a study group or direct message; the caller is always a member",
		Tags:          []string{"Study Groups"},
		DefaultStatus: http.StatusCreated,
		Security:      bearerSecurity,
	}, s.handleCreateGroup)

	huma.Register(s.api, huma.Operation{
		OperationID: "listStudyGroups",
		Method:      http.MethodGet,
		Path:        "/studygroups",
		Summary:     "List study groups",
		Description: "Returns the groups the caller belongs to",
		Tags:        []string{"Study Groups"},
		Security:    bearerSecurity,
	}, s.handleListGroups)

	huma.Register(s.api, huma.Operation{
		OperationID: "getStudyGroup",
		Method:      http.MethodGet,
		Path:        "/studygroups/{groupId}",
		Summary:     "Get study group",
		Tags:        []string{"Study Groups"},
		Security:    bearerSecurity,
	}, s.handleGetGroup)

	huma.Register(s.api, huma.Operation{
		OperationID:   "deleteStudyGroup",
		Method:        http.MethodDelete,
		Path:          "/studygroups/{groupId}",
		Summary:       "Delete study group",
		Description:   "Deletes the group and its thread",
		Tags:          []string{"Study Groups"},
		DefaultStatus: http.StatusNoContent,
		Security:      bearerSecurity,
	}, s.handleDeleteGroup)

	huma.Register(s.api, huma.Operation{
		OperationID: "addStudyGroupMember",
		Method:      http.MethodPatch,
		Path:        "/studygroups/add/{groupId}",
		Summary:     "Add member",
		Description: "Adds a member and records a join message",
		Tags:        []string{"Study Groups"},
		Security:    bearerSecurity,
	}, s.handleAddMember)

	huma.Register(s.api, huma.Operation{
		OperationID: "removeStudyGroupMember",
		Method:      http.MethodPatch,
		Path:        "/studygroups/remove/{groupId}",
		Summary:     "Remove member",
		Description: "Removes a member, clears their notifications and records a leave message",
		Tags:        []string{"Study Groups"},
		Security:    bearerSecurity,
	}, s.handleRemoveMember)

	huma.Register(s.api, huma.Operation{
		OperationID: "updateEdbotSettings",
		Method:      http.MethodPatch,
		Path:        "/studygroups/edbot/{groupId}",
		Summary:     "Update assistant settings",
		Tags:        []string{"Study Groups"},
		Security:    bearerSecurity,
	}, s.handleUpdateEdbot)
}

// === DTOs ===

// CreateGroupRequest is the request body for creating a group.
type CreateGroupRequest struct {
	Name    string   `json:"name,omitempty" maxLength:"120" doc:"Group name, required unless isDM"`
	Members []string `json:"members,omitempty" maxItems:"500" doc:"Member emails; the caller is added automatically"`
	IsDM    bool     `json:"isDM,omitempty" doc:"Direct message between exactly two members"`
}

// CreateGroupInput wraps the create request for Huma.
type CreateGroupInput struct {
	Body CreateGroupRequest
}

// GroupPathInput identifies a group by path.
type GroupPathInput struct {
	GroupID string `path:"groupId" doc:"Study group ID"`
}

// MemberRequest names a member by email.
type MemberRequest struct {
	Email string `json:"email" maxLength:"254" doc:"Member email"`
}

// MemberInput wraps a member request for Huma.
type MemberInput struct {
	GroupID string `path:"groupId" doc:"Study group ID"`
	Body    MemberRequest
}

// EdbotSettingsRequest replaces the assistant settings.
type EdbotSettingsRequest struct {
	Enabled       bool   `json:"enabled,omitempty" doc:"Whether the assistant is active"`
	Name          string `json:"name,omitempty" maxLength:"64" doc:"Assistant display name"`
	SummaryWindow int    `json:"summaryWindow,omitempty" minimum:"0" maximum:"500" doc:"Messages the assistant summarizes"`
}

// EdbotInput wraps the assistant request for Huma.
type EdbotInput struct {
	GroupID string `path:"groupId" doc:"Study group ID"`
	Body    EdbotSettingsRequest
}

// GroupOutput wraps a group for Huma.
type GroupOutput struct {
	Body *domain.Group
}

// GroupListResponse contains the caller's groups.
type GroupListResponse struct {
	Groups []*domain.Group `json:"groups" doc:"Groups the caller belongs to"`
}

// GroupListOutput wraps the group list for Huma.
type GroupListOutput struct {
	Body GroupListResponse
}

// === Handlers ===

func (s *Server) handleCreateGroup(ctx context.Context, input *CreateGroupInput) (*GroupOutput, error) {
	caller, err := RequireIdentity(ctx)
	if err != nil {
		return nil, err
	}
	g, err := s.services.Groups.CreateGroup(ctx, caller, service.CreateGroupRequest{
		Name:    input.Body.Name,
		Members: input.Body.Members,
		IsDM:    input.Body.IsDM,
	})
	if err != nil {
		return nil, err
	}
	return &GroupOutput{Body: g}, nil
}

func (s *Server) handleListGroups(ctx context.Context, _ *struct{}) (*GroupListOutput, error) {
	caller, err := RequireIdentity(ctx)
	if err != nil {
		return nil, err
	}
	groups, err := s.services.Groups.ListGroupsForMember(ctx, caller.Email)
	if err != nil {
		return nil, err
	}
	return &GroupListOutput{Body: GroupListResponse{Groups: groups}}, nil
}

func (s *Server) handleGetGroup(ctx context.Context, input *GroupPathInput) (*GroupOutput, error) {
	if _, err := RequireIdentity(ctx); err != nil {
		return nil, err
	}
	g, err := s.services.Groups.GetGroup(ctx, input.GroupID)
	if err != nil {
		return nil, err
	}
	return &GroupOutput{Body: g}, nil
}

func (s *Server) handleDeleteGroup(ctx context.Context, input *GroupPathInput) (*struct{}, error) {
	if _, err := RequireIdentity(ctx); err != nil {
		return nil, err
	}
	if err := s.services.Groups.DeleteGroup(ctx, input.GroupID); err != nil {
		return nil, err
	}
	return nil, nil
}

func (s *Server) handleAddMember(ctx context.Context, input *MemberInput) (*GroupOutput, error) {
	if _, err := RequireIdentity(ctx); err != nil {
		return nil, err
	}
	g, err := s.services.Groups.AddMember(ctx, input.GroupID, input.Body.Email)
	if err != nil {
		return nil, err
	}
	return &GroupOutput{Body: g}, nil
}

func (s *Server) handleRemoveMember(ctx context.Context, input *MemberInput) (*GroupOutput, error) {
	if _, err := RequireIdentity(ctx); err != nil {
		return nil, err
	}
	g, err := s.services.Groups.RemoveMember(ctx, input.GroupID, input.Body.Email)
	if err != nil {
		return nil, err
	}
	return &GroupOutput{Body: g}, nil
}

func (s *Server) handleUpdateEdbot(ctx context.Context, input *EdbotInput) (*GroupOutput, error) {
	if _, err := RequireIdentity(ctx); err != nil {
		return nil, err
	}
	g, err := s.services.Groups.UpdateEdbotSettings(ctx, input.GroupID, service.EdbotRequest{
		Name:          input.Body.Name,
		SummaryWindow: input.Body.SummaryWindow,
		Enabled:       input.Body.Enabled,
	})
	if err != nil {
		return nil, err
	}
	return &GroupOutput{Body: g}, nil
}

// pathEmail decodes an email carried in a path segment. Clients differ on whether
// they escape "@" and "+".
func pathEmail(raw string) (string, error) {
	email, err := url.PathUnescape(raw)
	if err != nil {
		return "", domainerrors.InvalidArgument("malformed email in path")
	}
	return email, nil
}
