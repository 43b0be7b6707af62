package service_test

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campus-events/event-aggregator/internal/domain/common/errorz"
	"github.com/campus-events/event-aggregator/internal/domain/dto"
	"github.com/campus-events/event-aggregator/internal/domain/entity"
	"github.com/campus-events/event-aggregator/internal/domain/service"
)

func signUp() dto.SignUp {
	return dto.SignUp{
		Name:       "Alice Smith",
		StudentID:  "CS-001",
		Email:      "Alice@College.edu",
		Department: "Computer Science",
		Year:       "2",
		Password:   "secret123",
		Interests:  []string{"Tech", " Music ", ""},
	}
}

func TestSignUpAndLogin(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	user, err := e.user.SignUp(ctx, signUp())
	require.NoError(t, err)
	assert.Equal(t, "1", user.ID)
	assert.Equal(t, "alice@college.edu", user.Email)
	assert.Equal(t, []string{"Tech", "Music"}, user.Interests)
	assert.NotEqual(t, "secret123", user.PasswordHash)

	_, err = e.user.SignUp(ctx, signUp())
	require.ErrorIs(t, err, errorz.ErrUserExists)

	other := signUp()
	other.Email = "bob@college.edu"
	_, err = e.user.SignUp(ctx, other)
	require.ErrorIs(t, err, errorz.ErrStudentIDExists)

	_, err = e.user.Login(ctx, "alice@college.edu", "wrong")
	require.ErrorIs(t, err, errorz.ErrInvalidCredentials)
	_, err = e.user.Login(ctx, "nobody@college.edu", "secret123")
	require.ErrorIs(t, err, errorz.ErrInvalidCredentials)
	_, err = e.user.LoginAdmin(ctx, "alice@college.edu", "secret123")
	require.ErrorIs(t, err, errorz.ErrInvalidCredentials)

	session, err := e.user.Login(ctx, "ALICE@college.edu", "secret123")
	require.NoError(t, err)
	assert.NotEmpty(t, session.Token)
	assert.False(t, session.IsAdmin)

	session, err = e.user.SelectEvent(ctx, session.Token, "E1")
	require.NoError(t, err)
	got, err := e.user.Session(ctx, session.Token)
	require.NoError(t, err)
	assert.Equal(t, "E1", got.SelectedEventID)

	require.NoError(t, e.user.Logout(ctx, session.Token))
	_, err = e.user.Session(ctx, session.Token)
	require.ErrorIs(t, err, errorz.ErrSessionNotFound)
}

func TestSignUpValidation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	in := signUp()
	in.Email = "alice@gmail.com"
	_, err := e.user.SignUp(ctx, in)
	require.ErrorIs(t, err, errorz.ErrInvalidInput)

	in = signUp()
	in.Password = "123"
	_, err = e.user.SignUp(ctx, in)
	require.ErrorIs(t, err, errorz.ErrInvalidInput)
}

func TestSeedAdmin(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	seed := service.AdminSeed{Email: "admin@college.edu", Password: "admin123"}

	require.NoError(t, e.user.SeedAdmin(ctx, seed))
	require.NoError(t, e.user.SeedAdmin(ctx, seed))

	count, err := e.users.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	session, err := e.user.LoginAdmin(ctx, "admin@college.edu", "admin123")
	require.NoError(t, err)
	assert.True(t, session.IsAdmin)
}

func TestAuthenticateLegacyHash(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	sum := sha256.Sum256([]byte("old-password"))
	require.NoError(t, e.users.Create(ctx, &entity.User{
		Name:         "Legacy",
		Email:        "legacy@college.edu",
		PasswordHash: hex.EncodeToString(sum[:]),
	}))

	user, err := e.user.Authenticate(ctx, "legacy@college.edu", "old-password")
	require.NoError(t, err)
	assert.Equal(t, "Legacy", user.Name)

	_, err = e.user.Authenticate(ctx, "legacy@college.edu", "other")
	require.ErrorIs(t, err, errorz.ErrInvalidCredentials)
}
