package users

import (
	"context"
	"strings"

	"github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// Manager is the facade applications interact with. It wires the hasher,
// the token manager, the repositories, and the resolved settings together
// through explicit composition; callers replace collaborators with options
// before resolution finalizes.
type Manager struct {
	repo         RepositoryManager
	settings     Settings
	tokens       TokenManager
	hasher       PasswordHasher
	mailer       Mailer
	logger       Logger
	provider     *UserProvider
	customTokens bool
	customize    []func(*Settings)
}

// Option customizes a Manager before settings resolution finalizes
type Option func(*Manager)

// WithTokenManager replaces the default JWT token manager
func WithTokenManager(tm TokenManager) Option {
	return func(m *Manager) {
		if tm != nil {
			m.tokens = tm
			m.customTokens = true
		}
	}
}

// WithHasher replaces the default bcrypt hasher
func WithHasher(h PasswordHasher) Option {
	return func(m *Manager) {
		if h != nil {
			m.hasher = h
		}
	}
}

// WithMailer sets the outbound notification collaborator
func WithMailer(mailer Mailer) Option {
	return func(m *Manager) {
		if mailer != nil {
			m.mailer = mailer
		}
	}
}

// WithLogger overrides the logger
func WithLogger(l Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithCustomize registers a settings hook that runs before the dependency
// closure and validation, so late overrides are still subject to both
func WithCustomize(fn func(*Settings)) Option {
	return func(m *Manager) {
		if fn != nil {
			m.customize = append(m.customize, fn)
		}
	}
}

// New builds a Manager. Settings resolution happens here, once: customize
// hooks run first, then the dependency closure, then hard requirement
// validation. Validation failures are fatal configuration errors and must
// abort startup.
func New(repo RepositoryManager, cfg Settings, opts ...Option) (*Manager, error) {
	m := &Manager{
		repo:   repo,
		logger: defLogger{},
		mailer: noopMailer{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}

	for _, fn := range m.customize {
		fn(&cfg)
	}

	resolved, err := cfg.Resolve(repo)
	if err != nil {
		return nil, err
	}
	m.settings = resolved

	if m.hasher == nil {
		m.hasher = NewBcryptHasher(resolved.PasswordHashCost)
	}

	if m.tokens == nil {
		if resolved.tokenFlowsEnabled() && resolved.SigningKey == "" {
			return nil, NewConfigurationError(
				"users: a SigningKey is required when confirmation, reset, or invite flows are enabled")
		}
		m.tokens = NewTokenManager([]byte(resolved.SigningKey), resolved.Issuer, m.logger)
	}

	m.provider = NewUserProvider(repo.Users(), resolved).
		WithLogger(m.logger).
		WithHasher(m.hasher)

	return m, nil
}

// Settings returns the resolved, read only settings
func (m *Manager) Settings() Settings {
	return m.settings
}

// Tokens returns the token manager in use
func (m *Manager) Tokens() TokenManager {
	return m.tokens
}

// Hasher returns the password hasher in use
func (m *Manager) Hasher() PasswordHasher {
	return m.hasher
}

// Mailer returns the notification collaborator
func (m *Manager) Mailer() Mailer {
	return m.mailer
}

// Repo returns the repository manager
func (m *Manager) Repo() RepositoryManager {
	return m.repo
}

// IdentityProvider returns the credential verifying provider for the host
// application's login machinery
func (m *Manager) IdentityProvider() IdentityProvider {
	return m.provider
}

// GetUserByID retrieves a user by primary key
func (m *Manager) GetUserByID(ctx context.Context, id uuid.UUID) (*User, error) {
	return m.repo.Users().GetByID(ctx, id.String())
}

// FindUserByUsername does a case insensitive username lookup
func (m *Manager) FindUserByUsername(ctx context.Context, username string) (*User, error) {
	return m.repo.Users().FindByUsername(ctx, username)
}

// FindUserByEmail does a case insensitive email lookup. With multiple
// emails enabled the email record is found first and its owning user
// followed; otherwise the user record itself carries the address and the
// returned UserEmail is nil.
func (m *Manager) FindUserByEmail(ctx context.Context, email string) (*User, *UserEmail, error) {
	if m.settings.EnableMultipleEmails {
		userEmail, err := m.repo.UserEmails().FindByEmail(ctx, email)
		if err != nil {
			return nil, nil, err
		}
		return userEmail.User, userEmail, nil
	}

	user, err := m.repo.Users().FindByEmail(ctx, email)
	if err != nil {
		return nil, nil, err
	}

	return user, nil, nil
}

// EmailIsAvailable is true iff no user currently owns the address. An
// address owned by the caller still counts as taken.
func (m *Manager) EmailIsAvailable(ctx context.Context, email string) (bool, error) {
	user, _, err := m.FindUserByEmail(ctx, email)
	if err != nil {
		if isNotFound(err) {
			return true, nil
		}
		return false, err
	}

	return user == nil, nil
}

// UsernameIsAvailable is true iff no other user owns the candidate. A user
// renaming to their current username is always allowed.
func (m *Manager) UsernameIsAvailable(ctx context.Context, current Identity, candidate string) (bool, error) {
	if current != nil && strings.EqualFold(current.Username(), candidate) {
		return true, nil
	}

	_, err := m.FindUserByUsername(ctx, candidate)
	if err != nil {
		if isNotFound(err) {
			return true, nil
		}
		return false, err
	}

	return false, nil
}

// GetPrimaryUserEmail returns the email record flagged primary when the
// multiple emails feature is active; otherwise a transient view over the
// address stored on the user record itself.
func (m *Manager) GetPrimaryUserEmail(ctx context.Context, user *User) (*UserEmail, error) {
	if user == nil {
		return nil, errors.New("user must not be nil", errors.CategoryBadInput)
	}

	if m.settings.EnableMultipleEmails {
		return m.repo.UserEmails().PrimaryFor(ctx, user.ID)
	}

	return &UserEmail{
		UserID:    &user.ID,
		User:      user,
		Email:     user.Email,
		Confirmed: user.EmailConfirmed,
		IsPrimary: true,
	}, nil
}

// ListUserEmails returns every address a user owns, primary first. With
// multiple emails disabled the single transient view is returned.
func (m *Manager) ListUserEmails(ctx context.Context, user *User) ([]*UserEmail, error) {
	if user == nil {
		return nil, errors.New("user must not be nil", errors.CategoryBadInput)
	}

	if m.settings.EnableMultipleEmails {
		return m.repo.UserEmails().ListFor(ctx, user.ID)
	}

	primary, err := m.GetPrimaryUserEmail(ctx, user)
	if err != nil {
		return nil, err
	}

	return []*UserEmail{primary}, nil
}

// sendEmail dispatches a notification, logging failures without surfacing
// them to the triggering flow
func (m *Manager) sendEmail(ctx context.Context, to, subject, body string) {
	if to == "" {
		return
	}
	if err := m.mailer.Send(ctx, to, subject, body); err != nil {
		m.logger.Error("failed to send notification email", "to", to, "subject", subject, "error", err)
	}
}
