package users

import (
	"context"
	"fmt"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type InviteUserMessage struct {
	Email       string     `json:"email"`
	InvitedByID *uuid.UUID `json:"invited_by_id"`
}

func (e InviteUserMessage) Type() string { return "user.invite" }

// InviteUserHandler creates the invitation record, mints an invite token,
// and mails the invitation link. The record is consumed when the invited
// user completes registration.
type InviteUserHandler struct {
	manager *Manager
}

func NewInviteUserHandler(m *Manager) *InviteUserHandler {
	return &InviteUserHandler{manager: m}
}

func (h *InviteUserHandler) Execute(ctx context.Context, event InviteUserMessage) (*UserInvitation, error) {
	select {
	case <-ctx.Done():
		return nil, goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled during user invitation")
	default:
		return h.execute(ctx, event)
	}
}

func (h *InviteUserHandler) execute(ctx context.Context, event InviteUserMessage) (*UserInvitation, error) {
	m := h.manager
	cfg := m.Settings()

	if !cfg.EnableInviteUser {
		return nil, goerrors.New("user invitations are disabled", goerrors.CategoryAuthz).
			WithTextCode("INVITE_USER_DISABLED")
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	available, err := m.EmailIsAvailable(ctx, event.Email)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to check email availability")
	}
	if !available {
		return nil, goerrors.New("a user with that email already exists", goerrors.CategoryConflict).
			WithTextCode("EMAIL_TAKEN")
	}

	invitation := &UserInvitation{
		ID:          uuid.New(),
		Email:       event.Email,
		InvitedByID: event.InvitedByID,
	}

	err = m.Repo().RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		if invitation, err = m.Repo().UserInvitations().CreateTx(ctx, tx, invitation); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create invitation record")
		}
		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return nil, richErr
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to invite user")
	}

	token, err := m.Tokens().Generate(invitation.ID.String(), PurposeInvite)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to mint invite token")
	}

	// the register route carries no token segment, the invite travels as a
	// query parameter the signup form can echo back
	body, err := renderLinkEmail(
		"You have been invited to join:",
		fmt.Sprintf("%s?token=%s", cfg.RegisterURL, token))
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to render invitation email")
	}

	m.sendEmail(ctx, invitation.Email, SubjectInvitation, body)

	return invitation, nil
}
