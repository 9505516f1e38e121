package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/boilergroups/groups-server/internal/auth"
	"github.com/boilergroups/groups-server/internal/domain"
	domainerrors "github.com/boilergroups/groups-server/internal/errors"
	"github.com/boilergroups/groups-server/internal/id"
	"github.com/boilergroups/groups-server/internal/normalize"
	"github.com/boilergroups/groups-server/internal/store"
	"github.com/boilergroups/groups-server/internal/validation"
)

// RegisterRequest creates an account.
type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Username string `json:"username" validate:"required,notblank,max=64"`
	Password string `json:"password" validate:"required,min=8,max=1024"`
}

// LoginRequest authenticates with email and password.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// AuthResponse carries a freshly issued access token.
type AuthResponse struct {
	ExpiresAt time.Time    `json:"expiresAt"`
	User      *domain.User `json:"user"`
	Token     string       `json:"token"`
}

// AuthService handles registration, login and token verification.
type AuthService struct {
	store     store.Store
	tokens    *auth.TokenService
	hasher    *auth.PasswordHasher
	validator *validation.Validator
	logger    *slog.Logger
}

// NewAuthService creates a new auth service.
func NewAuthService(s store.Store, tokens *auth.TokenService, hasher *auth.PasswordHasher, v *validation.Validator, logger *slog.Logger) *AuthService {
	if hasher == nil {
		hasher = auth.NewPasswordHasher(auth.DefaultArgon2Params)
	}
	if v == nil {
		v = validation.New()
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &AuthService{
		store:     s,
		tokens:    tokens,
		hasher:    hasher,
		validator: v,
		logger:    logger,
	}
}

// Register creates a user and returns an access token for it.
func (s *AuthService) Register(ctx context.Context, req RegisterRequest) (*AuthResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	req.Email = strings.TrimSpace(req.Email)
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, domainerrors.InvalidArgument(err.Error())
	}

	userID, err := id.Generate(id.PrefixUser)
	if err != nil {
		return nil, fmt.Errorf("generate user ID: %w", err)
	}

	now := time.Now()
	user := &domain.User{
		ID:           userID,
		Email:        normalize.Email(req.Email),
		Username:     normalize.Username(req.Username),
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return nil, domainerrors.Conflict("an account with this email already exists")
		}
		return nil, domainerrors.ServerError(err)
	}

	s.logger.Info("user registered", "user_id", user.ID, "username", user.Username)
	return s.issue(user)
}

// Login verifies credentials and returns an access token.
func (s *AuthService) Login(ctx context.Context, req LoginRequest) (*AuthResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	req.Email = strings.TrimSpace(req.Email)
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	user, err := s.store.GetUserByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, domainerrors.Unauthorized("invalid email or password")
		}
		return nil, domainerrors.ServerError(err)
	}
	if !s.hasher.Verify(user.PasswordHash, req.Password) {
		s.logger.Debug("login rejected", "user_id", user.ID)
		return nil, domainerrors.Unauthorized("invalid email or password")
	}

	return s.issue(user)
}

func (s *AuthService) issue(user *domain.User) (*AuthResponse, error) {
	token, exp, err := s.tokens.Issue(user)
	if err != nil {
		return nil, domainerrors.ServerError(err)
	}
	return &AuthResponse{Token: token, ExpiresAt: exp, User: publicUser(user)}, nil
}

// publicUser returns a copy of u safe to send to clients.
func publicUser(u *domain.User) *domain.User {
	c := *u
	c.PasswordHash = ""
	return &c
}

// Authenticate verifies an access token and returns the caller's identity.
func (s *AuthService) Authenticate(ctx context.Context, token string) (domain.Identity, error) {
	if err := ctx.Err(); err != nil {
		return domain.Identity{}, err
	}
	if token == "" {
		return domain.Identity{}, domainerrors.Unauthorized("missing access token")
	}
	claims, err := s.tokens.Verify(token)
	if err != nil {
		return domain.Identity{}, domainerrors.Unauthorized("invalid or expired access token").WithCause(err)
	}
	return claims.Identity(), nil
}

// Me returns the account behind userID.
func (s *AuthService) Me(ctx context.Context, userID string) (*domain.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, domainerrors.NotFound("user not found")
		}
		return nil, domainerrors.ServerError(err)
	}
	return publicUser(user), nil
}
