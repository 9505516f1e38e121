package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
)

func (s *Server) registerNotificationRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "addAllMembersToUnopened",
		Method:      http.MethodPut,
		Path:        "/studygroups/addAllMembersToUnopenedMessageGroup/{groupId}",
		Summary:     "Mark group unread for everyone",
		Tags:        []string{"Notifications"},
		Security:    bearerSecurity,
	}, s.handleAddAllMembersToUnopened)

	huma.Register(s.api, huma.Operation{
		OperationID: "removeMemberFromUnopened",
		Method:      http.MethodPatch,
		Path:        "/studygroups/removeMemberFromUnopenedMessageGroup/{groupId}/{email}",
		Summary:     "Mark group read for a member",
		Tags:        []string{"Notifications"},
		Security:    bearerSecurity,
	}, s.handleRemoveMemberFromUnopened)

	huma.Register(s.api, huma.Operation{
		OperationID: "addTaggedUser",
		Method:      http.MethodPost,
		Path:        "/studygroups/addTaggedUser/{groupId}",
		Summary:     "Mark member tagged",
		Description: "Adds a member to the tagged or replied set",
		Tags:        []string{"Notifications"},
		Security:    bearerSecurity,
	}, s.handleAddTaggedUser)

	huma.Register(s.api, huma.Operation{
		OperationID: "removeTaggedUser",
		Method:      http.MethodPatch,
		Path:        "/studygroups/removeTaggedUser/{groupId}/{email}",
		Summary:     "Clear tagged notification",
		Tags:        []string{"Notifications"},
		Security:    bearerSecurity,
	}, s.handleRemoveTaggedUser)

	huma.Register(s.api, huma.Operation{
		OperationID: "clearNewMessage",
		Method:      http.MethodPatch,
		Path:        "/studygroups/newMessage/{groupId}",
		Summary:     "Clear new message flag",
		Tags:        []string{"Notifications"},
		Security:    bearerSecurity,
	}, s.handleClearNewMessage)
}

// MemberPathInput identifies a group and a member by path.
type MemberPathInput struct {
	GroupID string `path:"groupId" doc:"Study group ID"`
	Email   string `path:"email" doc:"Member email, optionally percent-encoded"`
}

func (s *Server) handleAddAllMembersToUnopened(ctx context.Context, input *GroupPathInput) (*GroupOutput, error) {
	if _, err := RequireIdentity(ctx); err != nil {
		return nil, err
	}
	g, err := s.services.Notifications.AddAllMembersToUnopened(ctx, input.GroupID)
	if err != nil {
		return nil, err
	}
	return &GroupOutput{Body: g}, nil
}

func (s *Server) handleRemoveMemberFromUnopened(ctx context.Context, input *MemberPathInput) (*GroupOutput, error) {
	if _, err := RequireIdentity(ctx); err != nil {
		return nil, err
	}
	email, err := pathEmail(input.Email)
	if err != nil {
		return nil, err
	}
	g, err := s.services.Notifications.RemoveMemberFromUnopened(ctx, input.GroupID, email)
	if err != nil {
		return nil, err
	}
	return &GroupOutput{Body: g}, nil
}

func (s *Server) handleAddTaggedUser(ctx context.Context, input *MemberInput) (*GroupOutput, error) {
	if _, err := RequireIdentity(ctx); err != nil {
		return nil, err
	}
	g, err := s.services.Notifications.AddTaggedUser(ctx, input.GroupID, input.Body.Email)
	if err != nil {
		return nil, err
	}
	return &GroupOutput{Body: g}, nil
}

func (s *Server) handleRemoveTaggedUser(ctx context.Context, input *MemberPathInput) (*GroupOutput, error) {
	if _, err := RequireIdentity(ctx); err != nil {
		return nil, err
	}
	email, err := pathEmail(input.Email)
	if err != nil {
		return nil, err
	}
	g, err := s.services.Notifications.RemoveTaggedUser(ctx, input.GroupID, email)
	if err != nil {
		return nil, err
	}
	return &GroupOutput{Body: g}, nil
}

func (s *Server) handleClearNewMessage(ctx context.Context, input *GroupPathInput) (*GroupOutput, error) {
	if _, err := RequireIdentity(ctx); err != nil {
		return nil, err
	}
	g, err := s.services.Notifications.ClearNewMessage(ctx, input.GroupID)
	if err != nil {
		return nil, err
	}
	return &GroupOutput{Body: g}, nil
}
