package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/boilergroups/groups-server/internal/domain"
	"github.com/boilergroups/groups-server/internal/search"
	"github.com/boilergroups/groups-server/internal/service"
)

func (s *Server) registerMessageRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "listGroupMessages",
		Method:      http.MethodGet,
		Path:        "/studygroups/messages/{groupId}",
		Summary:     "List messages",
		Description: "Returns the group's thread in insertion order",
		Tags:        []string{"Messages"},
		Security:    bearerSecurity,
	}, s.handleListMessages)

	huma.Register(s.api, huma.Operation{
		OperationID:   "sendGroupMessage",
		Method:        http.MethodPost,
		Path:          "/studygroups/messages/{groupId}",
		Summary:       "Send message",
		Description:   "Appends a message; mentions and replies mark the affected members",
		Tags:          []string{"Messages"},
		DefaultStatus: http.StatusCreated,
		Security:      bearerSecurity,
	}, s.handleSendMessage)

	huma.Register(s.api, huma.Operation{
		OperationID: "deleteGroupMessage",
		Method:      http.MethodPatch,
		Path:        "/studygroups/delete/{groupId}",
		Summary:     "Delete message",
		Tags:        []string{"Messages"},
		Security:    bearerSecurity,
	}, s.handleDeleteMessage)

	huma.Register(s.api, huma.Operation{
		OperationID: "reactToMessage",
		Method:      http.MethodPatch,
		Path:        "/studygroups/react/{groupId}",
		Summary:     "Toggle reaction",
		Description: "Adds the caller's like or dislike, or removes it when already present",
		Tags:        []string{"Messages"},
		Security:    bearerSecurity,
	}, s.handleReact)

	huma.Register(s.api, huma.Operation{
		OperationID: "likeMessage",
		Method:      http.MethodPatch,
		Path:        "/studygroups/like/{groupId}",
		Summary:     "Like message",
		Description: "Adds the caller's like; liking twice changes nothing",
		Tags:        []string{"Messages"},
		Security:    bearerSecurity,
	}, s.handleLike)

	huma.Register(s.api, huma.Operation{
		OperationID: "getReactionCounts",
		Method:      http.MethodGet,
		Path:        "/studygroups/reactions/{groupId}/{messageId}",
		Summary:     "Reaction counts",
		Tags:        []string{"Messages"},
		Security:    bearerSecurity,
	}, s.handleReactionCounts)

	huma.Register(s.api, huma.Operation{
		OperationID: "searchGroupMessages",
		Method:      http.MethodGet,
		Path:        "/studygroups/search/{groupId}",
		Summary:     "Search messages",
		Description: "Full text search over one group's thread",
		Tags:        []string{"Messages"},
		Security:    bearerSecurity,
	}, s.handleSearchMessages)
}

// === DTOs ===

// SendMessageRequest is the request body for sending a message.
type SendMessageRequest struct {
	Text          string `json:"text" doc:"Message text"`
	ReplyToID     string `json:"replyToId,omitempty" doc:"ID of the message being replied to"`
	ReplyToSender string `json:"replyToSender,omitempty" doc:"Username of the replied-to author"`
	ReplyToText   string `json:"replyToText,omitempty" doc:"Snapshot of the replied-to text"`
}

// SendMessageInput wraps the send request for Huma.
type SendMessageInput struct {
	GroupID string `path:"groupId" doc:"Study group ID"`
	Body    SendMessageRequest
}

// SendMessageResponse is the stored message and the group's new message flag.
type SendMessageResponse struct {
	Message    domain.Message `json:"message" doc:"Stored message"`
	NewMessage bool           `json:"newMessage" doc:"Group new message flag after the send"`
}

// SendMessageOutput wraps the send response for Huma.
type SendMessageOutput struct {
	Body SendMessageResponse
}

// MessageListResponse contains a group's thread.
type MessageListResponse struct {
	Messages []domain.Message `json:"messages" doc:"Messages in insertion order"`
}

// MessageListOutput wraps the thread for Huma.
type MessageListOutput struct {
	Body MessageListResponse
}

// MessageRefRequest names a message in the group.
type MessageRefRequest struct {
	MessageID string `json:"messageId" doc:"Message ID"`
}

// MessageRefInput wraps a message reference for Huma.
type MessageRefInput struct {
	GroupID string `path:"groupId" doc:"Study group ID"`
	Body    MessageRefRequest
}

// ReactRequest toggles a like or dislike.
type ReactRequest struct {
	MessageID string `json:"messageId" doc:"Message ID"`
	IsLike    bool   `json:"isLike" doc:"true for like, false for dislike"`
}

// ReactInput wraps a reaction request for Huma.
type ReactInput struct {
	GroupID string `path:"groupId" doc:"Study group ID"`
	Body    ReactRequest
}

// MessageOutput wraps a single message for Huma.
type MessageOutput struct {
	Body *domain.Message
}

// ReactionCountsInput identifies a message by path.
type ReactionCountsInput struct {
	GroupID   string `path:"groupId" doc:"Study group ID"`
	MessageID string `path:"messageId" doc:"Message ID"`
}

// ReactionCountsOutput wraps reaction counts for Huma.
type ReactionCountsOutput struct {
	Body domain.ReactionCounts
}

// SearchMessagesInput contains the search query parameters.
type SearchMessagesInput struct {
	GroupID string `path:"groupId" doc:"Study group ID"`
	Query   string `query:"q" maxLength:"256" doc:"Search query"`
	Limit   int    `query:"limit" default:"20" minimum:"1" maximum:"100" doc:"Maximum hits"`
}

// SearchMessagesOutput wraps search results for Huma.
type SearchMessagesOutput struct {
	Body *search.Result
}

// === Handlers ===

func (s *Server) handleListMessages(ctx context.Context, input *GroupPathInput) (*MessageListOutput, error) {
	if _, err := RequireIdentity(ctx); err != nil {
		return nil, err
	}
	msgs, err := s.services.Messages.GetGroupMessages(ctx, input.GroupID)
	if err != nil {
		return nil, err
	}
	return &MessageListOutput{Body: MessageListResponse{Messages: msgs}}, nil
}

func (s *Server) handleSendMessage(ctx context.Context, input *SendMessageInput) (*SendMessageOutput, error) {
	caller, err := RequireIdentity(ctx)
	if err != nil {
		return nil, err
	}
	res, err := s.services.Messages.SendMessage(ctx, input.GroupID, caller, service.SendMessageRequest{
		Text: input.Body.Text,
		Reply: domain.ReplySnapshot{
			ID:     input.Body.ReplyToID,
			Sender: input.Body.ReplyToSender,
			Text:   input.Body.ReplyToText,
		},
	})
	if err != nil {
		return nil, err
	}
	return &SendMessageOutput{Body: SendMessageResponse{Message: res.Message, NewMessage: res.NewMessage}}, nil
}

func (s *Server) handleDeleteMessage(ctx context.Context, input *MessageRefInput) (*GroupOutput, error) {
	if _, err := RequireIdentity(ctx); err != nil {
		return nil, err
	}
	g, err := s.services.Messages.DeleteMessage(ctx, input.GroupID, input.Body.MessageID)
	if err != nil {
		return nil, err
	}
	return &GroupOutput{Body: g}, nil
}

func (s *Server) handleReact(ctx context.Context, input *ReactInput) (*MessageOutput, error) {
	caller, err := RequireIdentity(ctx)
	if err != nil {
		return nil, err
	}
	m, err := s.services.Messages.ToggleReaction(ctx, input.GroupID, input.Body.MessageID, caller.UserID,
		domain.KindFromIsLike(input.Body.IsLike))
	if err != nil {
		return nil, err
	}
	return &MessageOutput{Body: m}, nil
}

func (s *Server) handleLike(ctx context.Context, input *MessageRefInput) (*MessageOutput, error) {
	caller, err := RequireIdentity(ctx)
	if err != nil {
		return nil, err
	}
	m, err := s.services.Messages.LikeMessage(ctx, input.GroupID, input.Body.MessageID, caller.UserID)
	if err != nil {
		return nil, err
	}
	return &MessageOutput{Body: m}, nil
}

func (s *Server) handleReactionCounts(ctx context.Context, input *ReactionCountsInput) (*ReactionCountsOutput, error) {
	if _, err := RequireIdentity(ctx); err != nil {
		return nil, err
	}
	counts, err := s.services.Messages.GetReactionCounts(ctx, input.GroupID, input.MessageID)
	if err != nil {
		return nil, err
	}
	return &ReactionCountsOutput{Body: counts}, nil
}

func (s *Server) handleSearchMessages(ctx context.Context, input *SearchMessagesInput) (*SearchMessagesOutput, error) {
	if _, err := RequireIdentity(ctx); err != nil {
		return nil, err
	}
	res, err := s.services.Messages.SearchMessages(ctx, input.GroupID, input.Query, input.Limit)
	if err != nil {
		return nil, err
	}
	return &SearchMessagesOutput{Body: res}, nil
}
