package auth

import (
	"encoding/json/v2"
	"errors"
	"fmt"
	"time"

	"aidanwoods.dev/go-paseto"

	"github.com/boilergroups/groups-server/internal/domain"
	"github.com/boilergroups/groups-server/internal/id"
)

const (
	tokenIssuer   = "boilergroups-server"
	tokenAudience = "boilergroups-client"
)

// ErrInvalidToken wraps every token verification failure.
var ErrInvalidToken = errors.New("invalid token")

// AccessClaims are the claims carried by an access token.
type AccessClaims struct {
	UserID   string `json:"user_id"`
	Email    string `json:"email"`
	Username string `json:"username"`

	Issuer     string    `json:"iss"`
	Subject    string    `json:"sub"`
	Audience   string    `json:"aud"`
	Expiration time.Time `json:"exp"`
	IssuedAt   time.Time `json:"iat"`
	TokenID    string    `json:"jti"`
}

// Identity returns the caller identity named by the claims.
func (c *AccessClaims) Identity() domain.Identity {
	return domain.Identity{UserID: c.UserID, Email: c.Email, Username: c.Username}
}

// TokenService issues and verifies PASETO v4.local access tokens.
type TokenService struct {
	key      paseto.V4SymmetricKey
	duration time.Duration
	now      func() time.Time
}

// NewTokenService creates a token service from a 32 byte key.
func NewTokenService(key []byte, duration time.Duration) (*TokenService, error) {
	k, err := paseto.V4SymmetricKeyFromBytes(key)
	if err != nil {
		return nil, fmt.Errorf("create PASETO key: %w", err)
	}
	return &TokenService{key: k, duration: duration, now: time.Now}, nil
}

// Issue creates an access token for u.
func (s *TokenService) Issue(u *domain.User) (string, time.Time, error) {
	now := s.now()
	exp := now.Add(s.duration)

	jti, err := id.Generate("tok")
	if err != nil {
		return "", time.Time{}, fmt.Errorf("generate token id: %w", err)
	}

	token := paseto.NewToken()
	token.SetIssuer(tokenIssuer)
	token.SetSubject(u.ID)
	token.SetAudience(tokenAudience)
	token.SetIssuedAt(now)
	token.SetNotBefore(now)
	token.SetExpiration(exp)
	token.SetJti(jti)
	//nolint:errcheck // Set only fails on unmarshalable values
	_ = token.Set("user_id", u.ID)
	//nolint:errcheck // Set only fails on unmarshalable values
	_ = token.Set("email", u.Email)
	//nolint:errcheck // Set only fails on unmarshalable values
	_ = token.Set("username", u.Username)

	return token.V4Encrypt(s.key, nil), exp, nil
}

// Verify decrypts and validates a token.
func (s *TokenService) Verify(tokenString string) (*AccessClaims, error) {
	parser := paseto.NewParser()
	parser.AddRule(paseto.ForAudience(tokenAudience))
	parser.AddRule(paseto.IssuedBy(tokenIssuer))
	parser.AddRule(paseto.NotExpired())
	parser.AddRule(paseto.ValidAt(s.now()))

	token, err := parser.ParseV4Local(s.key, tokenString, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	var claims AccessClaims
	if err := json.Unmarshal(token.ClaimsJSON(), &claims); err != nil {
		return nil, fmt.Errorf("%w: parse claims: %w", ErrInvalidToken, err)
	}
	if claims.UserID == "" || claims.Email == "" {
		return nil, fmt.Errorf("%w: missing identity claims", ErrInvalidToken)
	}
	return &claims, nil
}

// Duration returns the access token lifetime.
func (s *TokenService) Duration() time.Duration {
	return s.duration
}
