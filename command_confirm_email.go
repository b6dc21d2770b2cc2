package users

import (
	"context"
	"fmt"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type ConfirmEmailMessage struct {
	Token string `json:"token"`
}

func (e ConfirmEmailMessage) Type() string { return "user.confirm_email" }

// ConfirmEmailHandler consumes a confirmation token and marks the user's
// email confirmed. Expired and invalid tokens surface as typed failures the
// caller renders as "please restart the flow".
type ConfirmEmailHandler struct {
	manager *Manager
}

func NewConfirmEmailHandler(m *Manager) *ConfirmEmailHandler {
	return &ConfirmEmailHandler{manager: m}
}

func (h *ConfirmEmailHandler) Execute(ctx context.Context, event ConfirmEmailMessage) (*User, error) {
	select {
	case <-ctx.Done():
		return nil, goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled during email confirmation")
	default:
		return h.execute(ctx, event)
	}
}

func (h *ConfirmEmailHandler) execute(ctx context.Context, event ConfirmEmailMessage) (*User, error) {
	m := h.manager
	cfg := m.Settings()

	if !cfg.EnableConfirmEmail {
		return nil, goerrors.New("email confirmation is disabled", goerrors.CategoryAuthz).
			WithTextCode("CONFIRM_EMAIL_DISABLED")
	}

	subject, err := m.Tokens().Verify(event.Token, cfg.ConfirmEmailTokenMaxAge, PurposeConfirmEmail)
	if err != nil {
		return nil, err
	}

	subjectID, err := uuid.Parse(subject)
	if err != nil {
		return nil, ErrTokenInvalid
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	// a token minted when adding a secondary address points at the email
	// record rather than the user
	if cfg.EnableMultipleEmails {
		record, err := m.Repo().UserEmails().FindByID(ctx, subjectID)
		if err == nil {
			return h.confirmEmailRecord(ctx, record)
		}
		if !isNotFound(err) {
			return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to look up email record")
		}
	}

	user := &User{}

	err = m.Repo().RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		if user, err = m.Repo().Users().ConfirmEmailTx(ctx, tx, subjectID); err != nil {
			if isNotFound(err) {
				return ErrIdentityNotFound
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to confirm user email")
		}

		if cfg.EnableMultipleEmails {
			primary, err := m.Repo().UserEmails().PrimaryForTx(ctx, tx, subjectID)
			if err != nil {
				if isNotFound(err) {
					return nil
				}
				return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load primary email record")
			}
			if _, err := m.Repo().UserEmails().ConfirmTx(ctx, tx, primary.ID); err != nil {
				return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to confirm primary email record")
			}
		}

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return nil, richErr
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "email confirmation failed")
	}

	return user, nil
}

// confirmEmailRecord confirms one address record; a primary record also
// flips the owning user's confirmed flag
func (h *ConfirmEmailHandler) confirmEmailRecord(ctx context.Context, record *UserEmail) (*User, error) {
	m := h.manager

	err := m.Repo().RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := m.Repo().UserEmails().ConfirmTx(ctx, tx, record.ID); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to confirm email record")
		}

		if record.IsPrimary && record.UserID != nil {
			if _, err := m.Repo().Users().ConfirmEmailTx(ctx, tx, *record.UserID); err != nil {
				return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to confirm user email")
			}
		}

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return nil, richErr
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "email confirmation failed")
	}

	if record.UserID == nil {
		return nil, nil
	}

	user, err := m.Repo().Users().GetByID(ctx, record.UserID.String())
	if err != nil {
		if isNotFound(err) {
			return nil, ErrIdentityNotFound
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load confirmed user")
	}

	return user, nil
}

type ResendEmailConfirmationMessage struct {
	Email string `json:"email"`
}

func (e ResendEmailConfirmationMessage) Type() string { return "user.resend_email_confirmation" }

// ResendEmailConfirmationHandler mints a fresh confirmation token for an
// unconfirmed account. Unknown addresses complete quietly so the endpoint
// cannot be used to enumerate users.
type ResendEmailConfirmationHandler struct {
	manager *Manager
}

func NewResendEmailConfirmationHandler(m *Manager) *ResendEmailConfirmationHandler {
	return &ResendEmailConfirmationHandler{manager: m}
}

func (h *ResendEmailConfirmationHandler) Execute(ctx context.Context, event ResendEmailConfirmationMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled during confirmation resend")
	default:
		return h.execute(ctx, event)
	}
}

func (h *ResendEmailConfirmationHandler) execute(ctx context.Context, event ResendEmailConfirmationMessage) error {
	m := h.manager
	cfg := m.Settings()

	if !cfg.EnableConfirmEmail {
		return goerrors.New("email confirmation is disabled", goerrors.CategoryAuthz).
			WithTextCode("CONFIRM_EMAIL_DISABLED")
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	user, _, err := m.FindUserByEmail(ctx, event.Email)
	if err != nil {
		if isNotFound(err) {
			return nil
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to look up user for confirmation resend")
	}

	if user == nil || user.EmailConfirmed {
		return nil
	}

	token, err := m.Tokens().Generate(user.ID.String(), PurposeConfirmEmail)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to mint confirmation token")
	}

	body, err := renderLinkEmail(
		"Please confirm your email address:",
		fmt.Sprintf("%s/%s", cfg.ConfirmEmailURL, token))
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to render confirmation email")
	}

	m.sendEmail(ctx, user.Email, SubjectConfirmEmail, body)

	return nil
}
