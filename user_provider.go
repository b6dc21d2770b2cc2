package users

import (
	"context"

	"github.com/goliatone/go-errors"
)

// UserStore is the slice of the Users repository the provider needs
type UserStore interface {
	FindByUsername(ctx context.Context, username string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	TrackAttemptedLogin(ctx context.Context, user *User) error
	TrackSuccessfulLogin(ctx context.Context, user *User) error
}

// MaxLoginAttempts is the maximum number of attempts a user gets
// in a period
var MaxLoginAttempts = 5

// CoolDownPeriod is the period in which we enforce a cool down
var CoolDownPeriod = "24h"

// UserProvider verifies credentials against the user store. Lookup misses
// and password mismatches surface as the same error so callers cannot
// enumerate accounts.
type UserProvider struct {
	store    UserStore
	hasher   PasswordHasher
	settings Settings
	logger   Logger
}

// NewUserProvider will create a new UserProvider
func NewUserProvider(store UserStore, settings Settings) *UserProvider {
	return &UserProvider{
		store:    store,
		hasher:   NewBcryptHasher(settings.PasswordHashCost),
		settings: settings,
		logger:   defLogger{},
	}
}

func (u *UserProvider) WithLogger(l Logger) *UserProvider {
	if l != nil {
		u.logger = l
	}
	return u
}

func (u *UserProvider) WithHasher(h PasswordHasher) *UserProvider {
	if h != nil {
		u.hasher = h
	}
	return u
}

// VerifyIdentity will find the user, compare the password, and return the
// identity
func (u *UserProvider) VerifyIdentity(ctx context.Context, identifier, password string) (Identity, error) {
	user, err := u.findUser(ctx, identifier)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrMismatchedHashAndPassword
		}
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to retrieve user during verification")
	}

	if !user.Active {
		return nil, ErrMismatchedHashAndPassword
	}

	if user.LoginAttemptAt != nil {
		expired, err := IsOutsideThresholdPeriod(*user.LoginAttemptAt, CoolDownPeriod)
		if err != nil {
			return nil, errors.Wrap(err, errors.CategoryInternal, "failed to calculate login attempt cooldown")
		}

		if expired {
			user.LoginAttempts = 0
		}
	}

	// too many attempts in the given window, cool off
	if user.LoginAttempts > MaxLoginAttempts {
		return nil, ErrTooManyLoginAttempts
	}

	if err := u.hasher.Compare(password, user.PasswordHash); err != nil {
		if err2 := u.store.TrackAttemptedLogin(ctx, user); err2 != nil {
			return nil, errors.Wrap(err2, errors.CategoryInternal, "failed to track login attempt")
		}

		return nil, ErrMismatchedHashAndPassword
	}

	if err := u.store.TrackSuccessfulLogin(ctx, user); err != nil {
		u.logger.Error("failed to track successful login", "error", err)
	}

	return userIdentity{
		id:       user.ID.String(),
		email:    user.Email,
		username: user.Username,
	}, nil
}

// FindIdentityByIdentifier retrieves the identity without verifying a
// credential
func (u *UserProvider) FindIdentityByIdentifier(ctx context.Context, identifier string) (Identity, error) {
	user, err := u.findUser(ctx, identifier)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrIdentityNotFound
		}
		return nil, err
	}

	return userIdentity{
		id:       user.ID.String(),
		email:    user.Email,
		username: user.Username,
	}, nil
}

// findUser honors the identification schemes the resolved settings enable
func (u *UserProvider) findUser(ctx context.Context, identifier string) (*User, error) {
	if u.settings.EnableUsername {
		user, err := u.store.FindByUsername(ctx, identifier)
		if err == nil {
			return user, nil
		}
		if !isNotFound(err) {
			return nil, err
		}
	}

	if u.settings.EnableEmail {
		return u.store.FindByEmail(ctx, identifier)
	}

	return nil, ErrIdentityNotFound
}

type userIdentity struct {
	id       string
	username string
	email    string
}

func (a userIdentity) ID() string {
	return a.id
}

func (a userIdentity) Username() string {
	return a.username
}

func (a userIdentity) Email() string {
	return a.email
}

var _ Identity = userIdentity{}
var _ IdentityProvider = (*UserProvider)(nil)
