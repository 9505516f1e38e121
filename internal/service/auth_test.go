package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boilergroups/groups-server/internal/auth"
	domainerrors "github.com/boilergroups/groups-server/internal/errors"
	"github.com/boilergroups/groups-server/internal/store/badgerdb"
)

// fastArgon2 keeps password hashing cheap in tests.
var fastArgon2 = auth.Argon2Params{
	Memory:      1024,
	Iterations:  1,
	Parallelism: 1,
	SaltLength:  16,
	KeyLength:   32,
}

func setupAuthTest(t *testing.T) *AuthService {
	t.Helper()

	s, err := badgerdb.OpenInMemory(nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	tokens, err := auth.NewTokenService(make([]byte, 32), 15*time.Minute)
	require.NoError(t, err)

	return NewAuthService(s, tokens, auth.NewPasswordHasher(fastArgon2), nil, nil)
}

func TestAuth_RegisterAndLogin(t *testing.T) {
	svc := setupAuthTest(t)
	ctx := context.Background()

	reg, err := svc.Register(ctx, RegisterRequest{
		Email:    "  Pete@Purdue.edu ",
		Username: " pete  the  boilermaker ",
		Password: "boilerup123",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, reg.Token)
	assert.Equal(t, "pete@purdue.edu", reg.User.Email)
	assert.Equal(t, "pete the boilermaker", reg.User.Username)
	assert.Empty(t, reg.User.PasswordHash)
	assert.True(t, reg.ExpiresAt.After(time.Now()))

	login, err := svc.Login(ctx, LoginRequest{Email: "PETE@purdue.edu", Password: "boilerup123"})
	require.NoError(t, err)
	assert.Equal(t, reg.User.ID, login.User.ID)

	identity, err := svc.Authenticate(ctx, login.Token)
	require.NoError(t, err)
	assert.Equal(t, reg.User.ID, identity.UserID)
	assert.Equal(t, "pete@purdue.edu", identity.Email)
	assert.Equal(t, "pete the boilermaker", identity.Username)

	me, err := svc.Me(ctx, identity.UserID)
	require.NoError(t, err)
	assert.Equal(t, reg.User.ID, me.ID)
	assert.Empty(t, me.PasswordHash)
}

func TestAuth_RegisterDuplicateEmail(t *testing.T) {
	svc := setupAuthTest(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, RegisterRequest{Email: "a@x.com", Username: "a", Password: "password1"})
	require.NoError(t, err)

	_, err = svc.Register(ctx, RegisterRequest{Email: "A@X.com", Username: "b", Password: "password1"})
	assert.Equal(t, domainerrors.CodeConflict, domainerrors.CodeOf(err))
}

func TestAuth_RegisterValidation(t *testing.T) {
	svc := setupAuthTest(t)

	tests := []struct {
		name  string
		req   RegisterRequest
		field string
	}{
		{"bad email", RegisterRequest{Email: "nope", Username: "a", Password: "password1"}, "email"},
		{"blank username", RegisterRequest{Email: "a@x.com", Username: "   ", Password: "password1"}, "username"},
		{"short password", RegisterRequest{Email: "a@x.com", Username: "a", Password: "short"}, "password"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Register(context.Background(), tt.req)
			var de *domainerrors.Error
			require.ErrorAs(t, err, &de)
			assert.Equal(t, domainerrors.CodeInvalidArgument, de.Code)
			assert.Contains(t, de.Details, tt.field)
		})
	}
}

func TestAuth_LoginFailures(t *testing.T) {
	svc := setupAuthTest(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, RegisterRequest{Email: "a@x.com", Username: "a", Password: "password1"})
	require.NoError(t, err)

	_, err = svc.Login(ctx, LoginRequest{Email: "a@x.com", Password: "wrong-password"})
	assert.Equal(t, domainerrors.CodeUnauthorized, domainerrors.CodeOf(err))

	_, err = svc.Login(ctx, LoginRequest{Email: "nobody@x.com", Password: "password1"})
	assert.Equal(t, domainerrors.CodeUnauthorized, domainerrors.CodeOf(err))
}

func TestAuth_AuthenticateRejectsGarbage(t *testing.T) {
	svc := setupAuthTest(t)

	_, err := svc.Authenticate(context.Background(), "")
	assert.Equal(t, domainerrors.CodeUnauthorized, domainerrors.CodeOf(err))

	_, err = svc.Authenticate(context.Background(), "v4.local.garbage")
	assert.Equal(t, domainerrors.CodeUnauthorized, domainerrors.CodeOf(err))
}
