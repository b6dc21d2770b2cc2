package users

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type ChangePasswordMessage struct {
	UserID      uuid.UUID `json:"user_id"`
	OldPassword string    `json:"old_password"`
	NewPassword string    `json:"new_password"`
}

func (e ChangePasswordMessage) Type() string { return "user.change_password" }

// ChangePasswordHandler verifies the current password before storing the
// new hash
type ChangePasswordHandler struct {
	manager *Manager
}

func NewChangePasswordHandler(m *Manager) *ChangePasswordHandler {
	return &ChangePasswordHandler{manager: m}
}

func (h *ChangePasswordHandler) Execute(ctx context.Context, event ChangePasswordMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled during password change")
	default:
		return h.execute(ctx, event)
	}
}

func (h *ChangePasswordHandler) execute(ctx context.Context, event ChangePasswordMessage) error {
	m := h.manager
	cfg := m.Settings()

	if !cfg.EnableChangePassword {
		return goerrors.New("password change is disabled", goerrors.CategoryAuthz).
			WithTextCode("CHANGE_PASSWORD_DISABLED")
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	var email string

	err := m.Repo().RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		user, err := m.Repo().Users().GetByID(ctx, event.UserID.String())
		if err != nil {
			if isNotFound(err) {
				return ErrIdentityNotFound
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "could not retrieve user for password change")
		}
		email = user.Email

		if err := m.Hasher().Compare(event.OldPassword, user.PasswordHash); err != nil {
			return ErrMismatchedHashAndPassword
		}

		passwordHash, err := m.Hasher().Hash(event.NewPassword)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid new password provided")
		}

		if err := m.Repo().Users().ResetPasswordTx(ctx, tx, user.ID, passwordHash); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to update password")
		}

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "password change failed")
	}

	if cfg.SendPasswordChangedEmail {
		if body, err := renderNoticeEmail("Your password has been changed."); err == nil {
			m.sendEmail(ctx, email, SubjectPasswordChanged, body)
		}
	}

	return nil
}

type ChangeUsernameMessage struct {
	UserID      uuid.UUID `json:"user_id"`
	NewUsername string    `json:"new_username"`
}

func (e ChangeUsernameMessage) Type() string { return "user.change_username" }

// ChangeUsernameHandler renames an account after an availability check.
// Renaming to the current username is always allowed.
type ChangeUsernameHandler struct {
	manager *Manager
}

func NewChangeUsernameHandler(m *Manager) *ChangeUsernameHandler {
	return &ChangeUsernameHandler{manager: m}
}

func (h *ChangeUsernameHandler) Execute(ctx context.Context, event ChangeUsernameMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled during username change")
	default:
		return h.execute(ctx, event)
	}
}

func (h *ChangeUsernameHandler) execute(ctx context.Context, event ChangeUsernameMessage) error {
	m := h.manager
	cfg := m.Settings()

	if !cfg.EnableChangeUsername {
		return goerrors.New("username change is disabled", goerrors.CategoryAuthz).
			WithTextCode("CHANGE_USERNAME_DISABLED")
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	var email string

	err := m.Repo().RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		user, err := m.Repo().Users().GetByID(ctx, event.UserID.String())
		if err != nil {
			if isNotFound(err) {
				return ErrIdentityNotFound
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "could not retrieve user for username change")
		}
		email = user.Email

		available, err := m.UsernameIsAvailable(ctx, userIdentity{
			id:       user.ID.String(),
			username: user.Username,
			email:    user.Email,
		}, event.NewUsername)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to check username availability")
		}
		if !available {
			return goerrors.New("username is already in use", goerrors.CategoryConflict).
				WithTextCode("USERNAME_TAKEN")
		}

		if _, err := m.Repo().Users().UpdateUsernameTx(ctx, tx, user.ID, event.NewUsername); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to update username")
		}

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "username change failed")
	}

	if cfg.SendUsernameChangedEmail {
		if body, err := renderNoticeEmail("Your username has been changed."); err == nil {
			m.sendEmail(ctx, email, SubjectUsernameChanged, body)
		}
	}

	return nil
}
