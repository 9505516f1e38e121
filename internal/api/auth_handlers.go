package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/boilergroups/groups-server/internal/domain"
	"github.com/boilergroups/groups-server/internal/service"
)

func (s *Server) registerAuthRoutes() {
	var limit huma.Middlewares
	if s.authRateLimiter != nil {
		limit = huma.Middlewares{rateLimitByIP(s.api, s.authRateLimiter, s.logger)}
	}

	huma.Register(s.api, huma.Operation{
		OperationID:   "register",
		Method:        http.MethodPost,
		Path:          "/auth/register",
		Summary:       "Register new user",
		Description:   "Creates an account and returns an access token",
		Tags:          []string{"Authentication"},
		DefaultStatus: http.StatusCreated,
		Middlewares:   limit,
	}, s.handleRegister)

	huma.Register(s.api, huma.Operation{
		OperationID: "login",
		Method:      http.MethodPost,
		Path:        "/auth/login",
		Summary:     "User login",
		Description: "Authenticates a user and returns an access token",
		Tags:        []string{"Authentication"},
		Middlewares: limit,
	}, s.handleLogin)

	huma.Register(s.api, huma.Operation{
		OperationID: "getCurrentUser",
		Method:      http.MethodGet,
		Path:        "/users/me",
		Summary:     "Get current user",
		Description: "Returns the authenticated user's account",
		Tags:        []string{"Users"},
		Security:    bearerSecurity,
	}, s.handleGetCurrentUser)
}

// === DTOs ===

// RegisterRequest is the request body for registration.
type RegisterRequest struct {
	Email    string `json:"email" maxLength:"254" doc:"Email address"`
	Username string `json:"username" maxLength:"64" doc:"Display name shown as message sender"`
	Password string `json:"password" maxLength:"1024" doc:"Password, at least 8 characters"`
}

// RegisterInput wraps the register request for Huma.
type RegisterInput struct {
	Body RegisterRequest
}

// LoginRequest is the request body for user login.
type LoginRequest struct {
	Email    string `json:"email" maxLength:"254" doc:"User email"`
	Password string `json:"password" maxLength:"1024" doc:"User password"`
}

// LoginInput wraps the login request for Huma.
type LoginInput struct {
	Body LoginRequest
}

// AuthResponse carries an access token and the account it belongs to.
type AuthResponse struct {
	Token     string       `json:"token" doc:"PASETO access token"`
	ExpiresAt time.Time    `json:"expiresAt" doc:"Token expiry"`
	User      *domain.User `json:"user" doc:"Authenticated user"`
}

// AuthOutput wraps the auth response for Huma.
type AuthOutput struct {
	Body AuthResponse
}

// UserOutput wraps a user for Huma.
type UserOutput struct {
	Body *domain.User
}

// === Handlers ===

func (s *Server) handleRegister(ctx context.Context, input *RegisterInput) (*AuthOutput, error) {
	res, err := s.services.Auth.Register(ctx, service.RegisterRequest{
		Email:    input.Body.Email,
		Username: input.Body.Username,
		Password: input.Body.Password,
	})
	if err != nil {
		return nil, err
	}
	return authOutput(res), nil
}

func (s *Server) handleLogin(ctx context.Context, input *LoginInput) (*AuthOutput, error) {
	res, err := s.services.Auth.Login(ctx, service.LoginRequest{
		Email:    input.Body.Email,
		Password: input.Body.Password,
	})
	if err != nil {
		return nil, err
	}
	return authOutput(res), nil
}

func (s *Server) handleGetCurrentUser(ctx context.Context, _ *struct{}) (*UserOutput, error) {
	caller, err := RequireIdentity(ctx)
	if err != nil {
		return nil, err
	}
	user, err := s.services.Auth.Me(ctx, caller.UserID)
	if err != nil {
		return nil, err
	}
	return &UserOutput{Body: user}, nil
}

func authOutput(res *service.AuthResponse) *AuthOutput {
	return &AuthOutput{Body: AuthResponse{
		Token:     res.Token,
		ExpiresAt: res.ExpiresAt,
		User:      res.User,
	}}
}
