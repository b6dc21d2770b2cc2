package users

import (
	"context"
	"fmt"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type InitializePasswordResetMessage struct {
	Email string `json:"email"`
}

func (e InitializePasswordResetMessage) Type() string { return "user.password_reset" }

// InitializePasswordResetHandler mints a reset token and mails the reset
// link. Unknown addresses complete quietly: the response never reveals
// whether an account exists.
type InitializePasswordResetHandler struct {
	manager *Manager
}

func NewInitializePasswordResetHandler(m *Manager) *InitializePasswordResetHandler {
	return &InitializePasswordResetHandler{manager: m}
}

func (h *InitializePasswordResetHandler) Execute(ctx context.Context, event InitializePasswordResetMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password reset initialization",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *InitializePasswordResetHandler) execute(ctx context.Context, event InitializePasswordResetMessage) error {
	m := h.manager
	cfg := m.Settings()

	if !cfg.EnableForgotPassword {
		return goerrors.New("password reset is disabled", goerrors.CategoryAuthz).
			WithTextCode("FORGOT_PASSWORD_DISABLED")
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	user, _, err := m.FindUserByEmail(ctx, event.Email)
	if err != nil {
		if isNotFound(err) {
			return nil
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve user for password reset")
	}

	// an email record can outlive its soft deleted owner
	if user == nil {
		return nil
	}

	token, err := m.Tokens().Generate(user.ID.String(), PurposeResetPassword)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to mint reset token")
	}

	body, err := renderLinkEmail(
		"Reset your password:",
		fmt.Sprintf("%s/%s", cfg.ResetPasswordURL, token))
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to render reset email")
	}

	m.sendEmail(ctx, user.Email, SubjectResetPassword, body)

	return nil
}

type FinalizePasswordResetMessage struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

func (e FinalizePasswordResetMessage) Type() string { return "user.password_reset_finalize" }

// FinalizePasswordResetHandler verifies the reset token and stores the new
// password hash. Consuming the token also marks the email confirmed, since
// the user proved control of the address.
type FinalizePasswordResetHandler struct {
	manager *Manager
}

func NewFinalizePasswordResetHandler(m *Manager) *FinalizePasswordResetHandler {
	return &FinalizePasswordResetHandler{manager: m}
}

func (h *FinalizePasswordResetHandler) Execute(ctx context.Context, event FinalizePasswordResetMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password reset finalization",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *FinalizePasswordResetHandler) execute(ctx context.Context, event FinalizePasswordResetMessage) error {
	m := h.manager
	cfg := m.Settings()

	if !cfg.EnableForgotPassword {
		return goerrors.New("password reset is disabled", goerrors.CategoryAuthz).
			WithTextCode("FORGOT_PASSWORD_DISABLED")
	}

	subject, err := m.Tokens().Verify(event.Token, cfg.ResetPasswordTokenMaxAge, PurposeResetPassword)
	if err != nil {
		return err
	}

	userID, err := uuid.Parse(subject)
	if err != nil {
		return ErrTokenInvalid
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	var email string

	err = m.Repo().RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		user, err := m.Repo().Users().GetByID(ctx, userID.String())
		if err != nil {
			if isNotFound(err) {
				return ErrIdentityNotFound
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "could not retrieve user for password reset")
		}
		email = user.Email

		passwordHash, err := m.Hasher().Hash(event.Password)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid new password provided")
		}

		if err := m.Repo().Users().ResetPasswordTx(ctx, tx, userID, passwordHash); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to update user password in database")
		}

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to finalize password reset")
	}

	if cfg.SendPasswordChangedEmail {
		if body, err := renderNoticeEmail("Your password has been changed."); err == nil {
			m.sendEmail(ctx, email, SubjectPasswordChanged, body)
		}
	}

	return nil
}
