package users_test

import (
	"context"
	"testing"
	"time"

	"github.com/goliatone/go-users"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func providerSettings() users.Settings {
	cfg := users.DefaultSettings()
	cfg.EnableUsername = true
	cfg.PasswordHashCost = bcrypt.MinCost
	return cfg
}

func activeUser(t *testing.T, password string) *users.User {
	t.Helper()

	hash, err := users.NewBcryptHasher(bcrypt.MinCost).Hash(password)
	require.NoError(t, err)

	return &users.User{
		ID:           uuid.New(),
		Username:     "tester",
		Email:        "tester@example.com",
		PasswordHash: hash,
		Active:       true,
	}
}

func TestVerifyIdentitySuccess(t *testing.T) {
	ctx := context.Background()
	store := new(MockUserStore)
	user := activeUser(t, "password123")

	store.On("FindByUsername", ctx, "tester").Return(user, nil).Once()
	store.On("TrackSuccessfulLogin", ctx, user).Return(nil).Once()

	provider := users.NewUserProvider(store, providerSettings())

	identity, err := provider.VerifyIdentity(ctx, "tester", "password123")
	require.NoError(t, err)
	assert.Equal(t, user.ID.String(), identity.ID())
	assert.Equal(t, "tester", identity.Username())
	assert.Equal(t, "tester@example.com", identity.Email())

	store.AssertExpectations(t)
}

func TestVerifyIdentityFallsBackToEmail(t *testing.T) {
	ctx := context.Background()
	store := new(MockUserStore)
	user := activeUser(t, "password123")

	store.On("FindByUsername", ctx, "tester@example.com").
		Return(nil, users.ErrIdentityNotFound).Once()
	store.On("FindByEmail", ctx, "tester@example.com").Return(user, nil).Once()
	store.On("TrackSuccessfulLogin", ctx, user).Return(nil).Once()

	provider := users.NewUserProvider(store, providerSettings())

	_, err := provider.VerifyIdentity(ctx, "tester@example.com", "password123")
	require.NoError(t, err)

	store.AssertExpectations(t)
}

func TestVerifyIdentityUnknownUserIsOpaque(t *testing.T) {
	ctx := context.Background()
	store := new(MockUserStore)

	store.On("FindByUsername", ctx, "ghost").
		Return(nil, users.ErrIdentityNotFound).Once()
	store.On("FindByEmail", ctx, "ghost").
		Return(nil, users.ErrIdentityNotFound).Once()

	provider := users.NewUserProvider(store, providerSettings())

	// an unknown identifier and a wrong password are indistinguishable
	_, err := provider.VerifyIdentity(ctx, "ghost", "whatever")
	assert.ErrorIs(t, err, users.ErrMismatchedHashAndPassword)

	store.AssertExpectations(t)
}

func TestVerifyIdentityWrongPasswordTracksAttempt(t *testing.T) {
	ctx := context.Background()
	store := new(MockUserStore)
	user := activeUser(t, "password123")

	store.On("FindByUsername", ctx, "tester").Return(user, nil).Once()
	store.On("TrackAttemptedLogin", ctx, user).Return(nil).Once()

	provider := users.NewUserProvider(store, providerSettings())

	_, err := provider.VerifyIdentity(ctx, "tester", "wrong-password")
	assert.ErrorIs(t, err, users.ErrMismatchedHashAndPassword)

	store.AssertExpectations(t)
}

func TestVerifyIdentityInactiveUser(t *testing.T) {
	ctx := context.Background()
	store := new(MockUserStore)
	user := activeUser(t, "password123")
	user.Active = false

	store.On("FindByUsername", ctx, "tester").Return(user, nil).Once()

	provider := users.NewUserProvider(store, providerSettings())

	_, err := provider.VerifyIdentity(ctx, "tester", "password123")
	assert.ErrorIs(t, err, users.ErrMismatchedHashAndPassword)

	store.AssertExpectations(t)
}

func TestVerifyIdentityThrottlesAttempts(t *testing.T) {
	ctx := context.Background()
	store := new(MockUserStore)
	user := activeUser(t, "password123")

	recent := time.Now().Add(-time.Hour)
	user.LoginAttemptAt = &recent
	user.LoginAttempts = users.MaxLoginAttempts + 1

	store.On("FindByUsername", ctx, "tester").Return(user, nil).Once()

	provider := users.NewUserProvider(store, providerSettings())

	_, err := provider.VerifyIdentity(ctx, "tester", "password123")
	assert.ErrorIs(t, err, users.ErrTooManyLoginAttempts)

	store.AssertExpectations(t)
}

func TestVerifyIdentityCooldownResetsAttempts(t *testing.T) {
	ctx := context.Background()
	store := new(MockUserStore)
	user := activeUser(t, "password123")

	// the last failed attempt is outside the cool down window
	stale := time.Now().Add(-25 * time.Hour)
	user.LoginAttemptAt = &stale
	user.LoginAttempts = users.MaxLoginAttempts + 1

	store.On("FindByUsername", ctx, "tester").Return(user, nil).Once()
	store.On("TrackSuccessfulLogin", ctx, user).Return(nil).Once()

	provider := users.NewUserProvider(store, providerSettings())

	_, err := provider.VerifyIdentity(ctx, "tester", "password123")
	require.NoError(t, err)

	store.AssertExpectations(t)
}

func TestVerifyIdentityHonorsDisabledSchemes(t *testing.T) {
	ctx := context.Background()
	store := new(MockUserStore)

	cfg := providerSettings()
	cfg.EnableUsername = false
	cfg.EnableEmail = false

	provider := users.NewUserProvider(store, cfg)

	_, err := provider.VerifyIdentity(ctx, "tester", "password123")
	assert.ErrorIs(t, err, users.ErrMismatchedHashAndPassword)

	store.AssertNotCalled(t, "FindByUsername", mock.Anything, mock.Anything)
	store.AssertNotCalled(t, "FindByEmail", mock.Anything, mock.Anything)
}

func TestFindIdentityByIdentifier(t *testing.T) {
	ctx := context.Background()
	store := new(MockUserStore)
	user := activeUser(t, "password123")

	store.On("FindByUsername", ctx, "tester").Return(user, nil).Once()

	provider := users.NewUserProvider(store, providerSettings())

	identity, err := provider.FindIdentityByIdentifier(ctx, "tester")
	require.NoError(t, err)
	assert.Equal(t, user.ID.String(), identity.ID())

	store.AssertExpectations(t)
}

func TestFindIdentityByIdentifierNotFound(t *testing.T) {
	ctx := context.Background()
	store := new(MockUserStore)

	store.On("FindByUsername", ctx, "ghost").
		Return(nil, users.ErrIdentityNotFound).Once()
	store.On("FindByEmail", ctx, "ghost").
		Return(nil, users.ErrIdentityNotFound).Once()

	provider := users.NewUserProvider(store, providerSettings())

	_, err := provider.FindIdentityByIdentifier(ctx, "ghost")
	assert.ErrorIs(t, err, users.ErrIdentityNotFound)

	store.AssertExpectations(t)
}
