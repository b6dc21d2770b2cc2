package users

import (
	"context"
	"fmt"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/nyaruka/phonenumbers"
	"github.com/uptrace/bun"
)

type RegisterUserMessage struct {
	Username  string `json:"username"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Password  string `json:"password"`
	UseHashid bool
}

func (e RegisterUserMessage) Type() string { return "user.register" }

type RegisterUserHandler struct {
	manager *Manager
}

func NewRegisterUserHandler(m *Manager) *RegisterUserHandler {
	return &RegisterUserHandler{manager: m}
}

func (h *RegisterUserHandler) Execute(ctx context.Context, event RegisterUserMessage) (*User, error) {
	select {
	case <-ctx.Done():
		return nil, goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during user registration",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *RegisterUserHandler) execute(ctx context.Context, event RegisterUserMessage) (*User, error) {
	m := h.manager
	cfg := m.Settings()

	if !cfg.EnableRegister {
		return nil, goerrors.New("registration is disabled", goerrors.CategoryAuthz).
			WithTextCode("REGISTRATION_DISABLED")
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	if cfg.EnableEmail {
		available, err := m.EmailIsAvailable(ctx, event.Email)
		if err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to check email availability")
		}
		if !available {
			return nil, goerrors.New("email address is already in use", goerrors.CategoryConflict).
				WithTextCode("EMAIL_TAKEN")
		}
	}

	if cfg.EnableUsername {
		available, err := m.UsernameIsAvailable(ctx, nil, event.Username)
		if err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to check username availability")
		}
		if !available {
			return nil, goerrors.New("username is already in use", goerrors.CategoryConflict).
				WithTextCode("USERNAME_TAKEN")
		}
	}

	user := &User{}

	err := m.Repo().RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var invitation *UserInvitation

		if cfg.RequireInvitation {
			var err error
			invitation, err = m.Repo().UserInvitations().FindByEmailTx(ctx, tx, event.Email)
			if err != nil {
				if isNotFound(err) {
					return goerrors.New("registration requires an invitation", goerrors.CategoryAuthz).
						WithTextCode("INVITATION_REQUIRED")
				}
				return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to look up invitation")
			}
		}

		hash, err := m.Hasher().Hash(event.Password)
		if err != nil {
			var richErr *goerrors.Error
			if goerrors.As(err, &richErr) {
				return goerrors.Wrap(richErr, goerrors.CategoryValidation, "invalid password provided")
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
		}

		phone, err := NormalizePhone(event.Phone, cfg.PhoneRegion)
		if err != nil {
			return err
		}

		user.PasswordHash = hash
		user.Email = strings.TrimSpace(event.Email)
		user.Phone = phone
		user.Username = getUsername(event.Username, event.Email)
		if event.UseHashid {
			if id, err := hashid.NewUUID(event.Email); err == nil {
				user.ID = id
			}
		}

		if user, err = m.Repo().Users().RegisterTx(ctx, tx, user); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryConflict, "could not create user")
		}

		if cfg.EnableMultipleEmails {
			primary := &UserEmail{
				UserID:    &user.ID,
				Email:     user.Email,
				IsPrimary: true,
			}
			if _, err := m.Repo().UserEmails().CreateTx(ctx, tx, primary); err != nil {
				return goerrors.Wrap(err, goerrors.CategoryInternal, "could not create primary email record")
			}
		}

		if invitation != nil {
			if err := m.Repo().UserInvitations().ConsumeTx(ctx, tx, invitation.ID); err != nil {
				return goerrors.Wrap(err, goerrors.CategoryInternal, "could not consume invitation")
			}
		}

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return nil, richErr
		}

		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "user registration transaction failed")
	}

	h.notify(ctx, user)

	return user, nil
}

// notify sends the post registration emails the resolved settings call for
func (h *RegisterUserHandler) notify(ctx context.Context, user *User) {
	m := h.manager
	cfg := m.Settings()

	if cfg.EnableConfirmEmail {
		token, err := m.Tokens().Generate(user.ID.String(), PurposeConfirmEmail)
		if err != nil {
			m.logger.Error("failed to mint confirmation token", "error", err)
		} else if body, err := renderLinkEmail(
			"Please confirm your email address:",
			fmt.Sprintf("%s/%s", cfg.ConfirmEmailURL, token)); err == nil {
			m.sendEmail(ctx, user.Email, SubjectConfirmEmail, body)
		}
	}

	if cfg.SendRegisteredEmail {
		if body, err := renderNoticeEmail("Your account has been created."); err == nil {
			m.sendEmail(ctx, user.Email, SubjectRegistered, body)
		}
	}
}

// NormalizePhone validates and formats a phone number in E.164, returning
// the input untouched when empty
func NormalizePhone(phone, region string) (string, error) {
	if phone == "" {
		return "", nil
	}

	parsed, err := phonenumbers.Parse(phone, region)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryValidation, "invalid phone number")
	}

	if !phonenumbers.IsValidNumber(parsed) {
		return "", goerrors.New("invalid phone number", goerrors.CategoryValidation)
	}

	return phonenumbers.Format(parsed, phonenumbers.E164), nil
}

func getUsername(username, email string) string {
	if username != "" {
		return username
	}

	if strings.Contains(email, "@") {
		username = strings.Split(email, "@")[0]
	}

	return username
}
