package users

import (
	"context"
	"fmt"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type AddUserEmailMessage struct {
	UserID uuid.UUID `json:"user_id"`
	Email  string    `json:"email"`
}

func (e AddUserEmailMessage) Type() string { return "user.add_email" }

// AddUserEmailHandler attaches a secondary address to an account and mails
// a confirmation link for it. The new record stays unconfirmed and
// non-primary until the owner proves control of the address.
type AddUserEmailHandler struct {
	manager *Manager
}

func NewAddUserEmailHandler(m *Manager) *AddUserEmailHandler {
	return &AddUserEmailHandler{manager: m}
}

func (h *AddUserEmailHandler) Execute(ctx context.Context, event AddUserEmailMessage) (*UserEmail, error) {
	select {
	case <-ctx.Done():
		return nil, goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled while adding email")
	default:
		return h.execute(ctx, event)
	}
}

func (h *AddUserEmailHandler) execute(ctx context.Context, event AddUserEmailMessage) (*UserEmail, error) {
	m := h.manager
	cfg := m.Settings()

	if !cfg.EnableMultipleEmails {
		return nil, goerrors.New("multiple emails are disabled", goerrors.CategoryAuthz).
			WithTextCode("MULTIPLE_EMAILS_DISABLED")
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	available, err := m.EmailIsAvailable(ctx, event.Email)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to check email availability")
	}
	if !available {
		return nil, goerrors.New("email address is already in use", goerrors.CategoryConflict).
			WithTextCode("EMAIL_TAKEN")
	}

	user, err := m.Repo().Users().GetByID(ctx, event.UserID.String())
	if err != nil {
		if isNotFound(err) {
			return nil, ErrIdentityNotFound
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "could not retrieve user")
	}

	record := &UserEmail{
		ID:     uuid.New(),
		UserID: &user.ID,
		Email:  strings.TrimSpace(event.Email),
	}

	err = m.Repo().RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		if record, err = m.Repo().UserEmails().CreateTx(ctx, tx, record); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "could not create email record")
		}
		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return nil, richErr
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to add email")
	}

	// the token subject is the record, not the user, so confirmation lands
	// on the right address
	token, err := m.Tokens().Generate(record.ID.String(), PurposeConfirmEmail)
	if err != nil {
		m.logger.Error("failed to mint confirmation token", "error", err)
		return record, nil
	}

	if body, err := renderLinkEmail(
		"Please confirm your email address:",
		fmt.Sprintf("%s/%s", cfg.ConfirmEmailURL, token)); err == nil {
		m.sendEmail(ctx, record.Email, SubjectConfirmEmail, body)
	}

	return record, nil
}

type DeleteUserEmailMessage struct {
	UserID  uuid.UUID `json:"user_id"`
	EmailID uuid.UUID `json:"email_id"`
}

func (e DeleteUserEmailMessage) Type() string { return "user.delete_email" }

// DeleteUserEmailHandler removes a secondary address. The primary address
// cannot be deleted; promote another one first.
type DeleteUserEmailHandler struct {
	manager *Manager
}

func NewDeleteUserEmailHandler(m *Manager) *DeleteUserEmailHandler {
	return &DeleteUserEmailHandler{manager: m}
}

func (h *DeleteUserEmailHandler) Execute(ctx context.Context, event DeleteUserEmailMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled while deleting email")
	default:
		return h.execute(ctx, event)
	}
}

func (h *DeleteUserEmailHandler) execute(ctx context.Context, event DeleteUserEmailMessage) error {
	m := h.manager
	cfg := m.Settings()

	if !cfg.EnableMultipleEmails {
		return goerrors.New("multiple emails are disabled", goerrors.CategoryAuthz).
			WithTextCode("MULTIPLE_EMAILS_DISABLED")
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	err := m.Repo().RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record, err := m.Repo().UserEmails().FindByIDTx(ctx, tx, event.EmailID)
		if err != nil {
			if isNotFound(err) {
				return goerrors.New("email record not found", goerrors.CategoryNotFound).
					WithTextCode("EMAIL_NOT_FOUND")
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load email record")
		}

		if record.UserID == nil || *record.UserID != event.UserID {
			return goerrors.New("email record belongs to another account", goerrors.CategoryAuthz).
				WithTextCode("EMAIL_NOT_OWNED")
		}

		if record.IsPrimary {
			return goerrors.New("the primary address cannot be deleted", goerrors.CategoryConflict).
				WithTextCode("PRIMARY_EMAIL")
		}

		if err := m.Repo().UserEmails().RemoveTx(ctx, tx, record.ID); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to delete email record")
		}

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to delete email")
	}

	return nil
}

type MakePrimaryEmailMessage struct {
	UserID  uuid.UUID `json:"user_id"`
	EmailID uuid.UUID `json:"email_id"`
}

func (e MakePrimaryEmailMessage) Type() string { return "user.make_primary_email" }

// MakePrimaryEmailHandler promotes a confirmed address to primary, demoting
// the current one and syncing the address stored on the user record.
type MakePrimaryEmailHandler struct {
	manager *Manager
}

func NewMakePrimaryEmailHandler(m *Manager) *MakePrimaryEmailHandler {
	return &MakePrimaryEmailHandler{manager: m}
}

func (h *MakePrimaryEmailHandler) Execute(ctx context.Context, event MakePrimaryEmailMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled while promoting email")
	default:
		return h.execute(ctx, event)
	}
}

func (h *MakePrimaryEmailHandler) execute(ctx context.Context, event MakePrimaryEmailMessage) error {
	m := h.manager
	cfg := m.Settings()

	if !cfg.EnableMultipleEmails {
		return goerrors.New("multiple emails are disabled", goerrors.CategoryAuthz).
			WithTextCode("MULTIPLE_EMAILS_DISABLED")
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	err := m.Repo().RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record, err := m.Repo().UserEmails().FindByIDTx(ctx, tx, event.EmailID)
		if err != nil {
			if isNotFound(err) {
				return goerrors.New("email record not found", goerrors.CategoryNotFound).
					WithTextCode("EMAIL_NOT_FOUND")
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load email record")
		}

		if record.UserID == nil || *record.UserID != event.UserID {
			return goerrors.New("email record belongs to another account", goerrors.CategoryAuthz).
				WithTextCode("EMAIL_NOT_OWNED")
		}

		if !record.Confirmed {
			return goerrors.New("only a confirmed address can become primary", goerrors.CategoryConflict).
				WithTextCode("EMAIL_UNCONFIRMED")
		}

		if err := m.Repo().UserEmails().MakePrimaryTx(ctx, tx, event.UserID, record.ID); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to promote email record")
		}

		if _, err := m.Repo().Users().UpdateEmailTx(ctx, tx, event.UserID, record.Email); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to sync user email")
		}

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to promote email")
	}

	return nil
}
