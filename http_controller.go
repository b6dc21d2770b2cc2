package users

import (
	"fmt"
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
	"github.com/goliatone/go-router/flash"
	"github.com/google/uuid"
)

// RegisterUserRoutes wires the account management routes into the host
// router. Which routes get registered depends entirely on the manager's
// resolved settings: disabled features register nothing.
func RegisterUserRoutes[T any](app router.Router[T], m *Manager, opts ...UserControllerOption) {
	controller := NewUserController(m, opts...)
	cfg := m.Settings()

	app.Get(cfg.LoginURL, controller.LoginShow).SetName("user.login.get")
	app.Post(cfg.LoginURL, controller.LoginPost).SetName("user.login.post")
	app.Get(cfg.LogoutURL, controller.Logout).SetName("user.logout.get")

	if cfg.EnableRegister {
		app.Get(cfg.RegisterURL, controller.RegistrationShow).SetName("user.register.get")
		app.Post(cfg.RegisterURL, controller.RegistrationCreate).SetName("user.register.post")
	}

	if cfg.EnableConfirmEmail {
		app.Get(fmt.Sprintf("%s/:token", cfg.ConfirmEmailURL), controller.ConfirmEmail).
			SetName("user.confirm-email.get")
		app.Get(cfg.ResendEmailConfirmationURL, controller.ResendConfirmationShow).
			SetName("user.resend-confirmation.get")
		app.Post(cfg.ResendEmailConfirmationURL, controller.ResendConfirmationPost).
			SetName("user.resend-confirmation.post")
	}

	if cfg.EnableForgotPassword {
		app.Get(cfg.ForgotPasswordURL, controller.ForgotPasswordShow).SetName("user.forgot-password.get")
		app.Post(cfg.ForgotPasswordURL, controller.ForgotPasswordPost).SetName("user.forgot-password.post")
		app.Get(fmt.Sprintf("%s/:token", cfg.ResetPasswordURL), controller.ResetPasswordForm).
			SetName("user.reset-password.get")
		app.Post(fmt.Sprintf("%s/:token", cfg.ResetPasswordURL), controller.ResetPasswordExecute).
			SetName("user.reset-password.post")
	}

	if cfg.EnableChangePassword {
		app.Get(cfg.ChangePasswordURL, controller.ChangePasswordShow).SetName("user.change-password.get")
		app.Post(cfg.ChangePasswordURL, controller.ChangePasswordPost).SetName("user.change-password.post")
	}

	if cfg.EnableChangeUsername {
		app.Get(cfg.ChangeUsernameURL, controller.ChangeUsernameShow).SetName("user.change-username.get")
		app.Post(cfg.ChangeUsernameURL, controller.ChangeUsernamePost).SetName("user.change-username.post")
	}

	if cfg.EnableInviteUser {
		app.Get(cfg.InviteUserURL, controller.InviteShow).SetName("user.invite.get")
		app.Post(cfg.InviteUserURL, controller.InvitePost).SetName("user.invite.post")
	}

	if cfg.EnableMultipleEmails {
		app.Get(cfg.ManageEmailsURL, controller.ManageEmailsShow).SetName("user.manage-emails.get")
		app.Post(cfg.ManageEmailsURL, controller.AddEmailPost).SetName("user.manage-emails.post")
		app.Post(fmt.Sprintf("%s/:id/delete", cfg.ManageEmailsURL), controller.DeleteEmailPost).
			SetName("user.manage-emails.delete")
		app.Post(fmt.Sprintf("%s/:id/make-primary", cfg.ManageEmailsURL), controller.MakePrimaryEmailPost).
			SetName("user.manage-emails.make-primary")
	}
}

type UserControllerViews struct {
	Login          string
	Register       string
	ConfirmEmail   string
	ForgotPassword string
	ResetPassword  string
	ChangePassword string
	ChangeUsername string
	Invite         string
	ManageEmails   string
}

type UserController struct {
	Debug           bool
	Logger          Logger
	Manager         *Manager
	Session         SessionManager
	Views           *UserControllerViews
	ErrorHandler    router.ErrorHandler
	CurrentIdentity func(router.Context) (Identity, error)
}

type UserControllerOption func(*UserController) *UserController

// WithSessionManager wires the host's login session collaborator
func WithSessionManager(s SessionManager) UserControllerOption {
	return func(c *UserController) *UserController {
		c.Session = s
		return c
	}
}

// WithCurrentIdentity wires the host's way of resolving the authenticated
// identity for the change password/username flows
func WithCurrentIdentity(fn func(router.Context) (Identity, error)) UserControllerOption {
	return func(c *UserController) *UserController {
		c.CurrentIdentity = fn
		return c
	}
}

// WithControllerViews overrides the view names
func WithControllerViews(v *UserControllerViews) UserControllerOption {
	return func(c *UserController) *UserController {
		if v != nil {
			c.Views = v
		}
		return c
	}
}

func NewUserController(m *Manager, opts ...UserControllerOption) *UserController {
	c := &UserController{
		Logger:       defLogger{},
		Manager:      m,
		ErrorHandler: defaultErrHandler,
		Views: &UserControllerViews{
			Login:          "login",
			Register:       "register",
			ConfirmEmail:   "confirm_email",
			ForgotPassword: "forgot_password",
			ResetPassword:  "reset_password",
			ChangePassword: "change_password",
			ChangeUsername: "change_username",
			Invite:         "invite_user",
			ManageEmails:   "manage_emails",
		},
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Manager == nil {
		panic("Missing Manager in user controller...")
	}

	return c
}

func (a *UserController) LoginShow(ctx router.Context) error {
	return ctx.Render(a.Views.Login, router.ViewContext{
		"errors": nil,
		"record": nil,
	})
}

// LoginRequest payload
type LoginRequest struct {
	Identifier string `form:"identifier" json:"identifier"`
	Password   string `form:"password" json:"password"`
	RememberMe bool   `form:"remember_me" json:"remember_me"`
}

// Validate will run validation rules
func (r LoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(
			&r.Identifier,
			validation.Required,
		),
		validation.Field(
			&r.Password,
			validation.Required,
		),
	)
}

func (a *UserController) LoginPost(ctx router.Context) error {
	payload := new(LoginRequest)
	errs := map[string]string{}

	if err := ctx.Bind(payload); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return ctx.Render(a.Views.Login, router.ViewContext{
			"record":     payload,
			"validation": FormatValidationErrorToMap(err),
		})
	}

	identity, err := a.Manager.IdentityProvider().VerifyIdentity(
		ctx.Context(), payload.Identifier, payload.Password)
	if err != nil {
		// wrong password and unknown user render identically
		errs["authentication"] = "Authentication Error"
		return ctx.Render(a.Views.Login, router.ViewContext{
			"errors": errs,
			"record": payload,
		})
	}

	if a.Session != nil {
		if err := a.Session.Establish(ctx, identity); err != nil {
			a.Logger.Error("failed to establish session", "error", err)
			return a.ErrorHandler(ctx, err)
		}
	}

	return ctx.Redirect("/", http.StatusSeeOther)
}

func (a *UserController) Logout(ctx router.Context) error {
	if a.Session != nil {
		a.Session.Clear(ctx)
	}
	return ctx.Redirect("/", http.StatusTemporaryRedirect)
}

func (a *UserController) RegistrationShow(ctx router.Context) error {
	return ctx.Render(a.Views.Register, router.ViewContext{
		"errors": map[string]string{},
		"record": RegisterUserMessage{},
	})
}

// RegistrationCreatePayload is the form payload
type RegistrationCreatePayload struct {
	Username        string `form:"username" json:"username"`
	Email           string `form:"email" json:"email"`
	Phone           string `form:"phone_number" json:"phone_number"`
	Password        string `form:"password" json:"password"`
	ConfirmPassword string `form:"confirm_password" json:"confirm_password"`
}

// Validate will validate the payload
func (r RegistrationCreatePayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Username, validation.Length(3, 100)),
		validation.Field(&r.Email, validation.Required, validation.Length(6, 100), is.Email),
		validation.Field(&r.Password, validation.Required, validation.Length(10, 100)),
		validation.Field(
			&r.ConfirmPassword,
			validation.Required,
			validation.Length(10, 100),
			validation.By(ValidateStringEquals(r.Password)),
		),
	)
}

func (a *UserController) RegistrationCreate(ctx router.Context) error {
	payload := new(RegistrationCreatePayload)

	if err := ctx.Bind(payload); err != nil {
		errs := map[string]string{}
		errs["form"] = "Failed to parse form"
		a.Logger.Error("register user parse payload: ", "error", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error parsing body",
		}).Status(fiber.StatusBadRequest).Render(a.Views.Register, router.ViewContext{
			"errors": errs,
			"record": payload,
		})
	}

	if err := payload.Validate(); err != nil {
		errs := FormatValidationErrorToMap(err)
		a.Logger.Error("register user validate payload: ", "error", err)

		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error validating payload",
		}).Render(a.Views.Register, router.ViewContext{
			"record":     payload,
			"validation": errs,
		})
	}

	req := RegisterUserMessage{
		Username: payload.Username,
		Email:    payload.Email,
		Phone:    payload.Phone,
		Password: payload.Password,
	}

	if a.Debug {
		fmt.Println("======= USER REGISTER ======")
		fmt.Println(print.MaybePrettyJSON(req))
		fmt.Println("============================")
	}

	registerUser := NewRegisterUserHandler(a.Manager)
	if _, err := registerUser.Execute(ctx.Context(), req); err != nil {
		a.Logger.Error("register user error: ", "error", err)

		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error creating account",
		}).Render(a.Views.Register, router.ViewContext{
			"record": payload,
			"errors": []string{err.Error()},
		})
	}

	return flash.WithSuccess(ctx, router.ViewContext{
		"system_message": "Successful user registration",
	}).Redirect("/", fiber.StatusSeeOther)
}

func (a *UserController) ConfirmEmail(ctx router.Context) error {
	token := ctx.Param("token", "")

	confirm := NewConfirmEmailHandler(a.Manager)
	if _, err := confirm.Execute(ctx.Context(), ConfirmEmailMessage{Token: token}); err != nil {
		return ctx.Render(a.Views.ConfirmEmail, router.ViewContext{
			"confirmed": false,
			"expired":   IsTokenExpiredError(err),
			"errors":    []string{err.Error()},
		})
	}

	return ctx.Render(a.Views.ConfirmEmail, router.ViewContext{
		"confirmed": true,
	})
}

func (a *UserController) ResendConfirmationShow(ctx router.Context) error {
	return ctx.Render(a.Views.ConfirmEmail, router.ViewContext{
		"confirmed": false,
		"resend":    true,
	})
}

// EmailPayload carries a bare address for the resend and forgot flows
type EmailPayload struct {
	Email string `form:"email" json:"email"`
}

// Validate will validate the payload
func (r EmailPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(
			&r.Email,
			validation.Required,
			is.Email,
		),
	)
}

func (a *UserController) ResendConfirmationPost(ctx router.Context) error {
	payload := new(EmailPayload)

	if err := ctx.Bind(payload); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return ctx.Render(a.Views.ConfirmEmail, router.ViewContext{
			"record":     payload,
			"resend":     true,
			"validation": FormatValidationErrorToMap(err),
		})
	}

	resend := NewResendEmailConfirmationHandler(a.Manager)
	if err := resend.Execute(ctx.Context(), ResendEmailConfirmationMessage{Email: payload.Email}); err != nil {
		a.Logger.Error("resend confirmation error: ", "error", err)
		return a.ErrorHandler(ctx, err)
	}

	// always the same response, the flow must not leak which addresses exist
	return flash.WithSuccess(ctx, router.ViewContext{
		"system_message": "If the address exists a confirmation email was sent",
	}).Redirect("/", fiber.StatusSeeOther)
}

func (a *UserController) ForgotPasswordShow(ctx router.Context) error {
	return ctx.Render(a.Views.ForgotPassword, router.ViewContext{
		"errors": nil,
		"record": nil,
	})
}

func (a *UserController) ForgotPasswordPost(ctx router.Context) error {
	payload := new(EmailPayload)

	if err := ctx.Bind(payload); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return ctx.Render(a.Views.ForgotPassword, router.ViewContext{
			"record":     payload,
			"validation": FormatValidationErrorToMap(err),
		})
	}

	initReset := NewInitializePasswordResetHandler(a.Manager)
	if err := initReset.Execute(ctx.Context(), InitializePasswordResetMessage{Email: payload.Email}); err != nil {
		a.Logger.Error("password reset init error: ", "error", err)
		return a.ErrorHandler(ctx, err)
	}

	return flash.WithSuccess(ctx, router.ViewContext{
		"system_message": "If the address exists a reset email was sent",
	}).Redirect("/", fiber.StatusSeeOther)
}

func (a *UserController) ResetPasswordForm(ctx router.Context) error {
	token := ctx.Param("token", "")

	return ctx.Render(a.Views.ResetPassword, router.ViewContext{
		"errors": nil,
		"token":  token,
	})
}

// ResetPasswordPayload holds values for password reset
type ResetPasswordPayload struct {
	Password        string `form:"password" json:"password"`
	ConfirmPassword string `form:"confirm_password" json:"confirm_password"`
}

// Validate will validate the payload
func (r ResetPasswordPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(
			&r.Password,
			validation.Required,
			validation.Length(10, 100),
		),
		validation.Field(
			&r.ConfirmPassword,
			validation.Required,
			validation.Length(10, 100),
			validation.By(ValidateStringEquals(r.Password)),
		),
	)
}

func (a *UserController) ResetPasswordExecute(ctx router.Context) error {
	token := ctx.Param("token", "")
	payload := new(ResetPasswordPayload)

	if err := ctx.Bind(payload); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return ctx.Render(a.Views.ResetPassword, router.ViewContext{
			"token":      token,
			"validation": FormatValidationErrorToMap(err),
		})
	}

	finalize := NewFinalizePasswordResetHandler(a.Manager)
	if err := finalize.Execute(ctx.Context(), FinalizePasswordResetMessage{
		Token:    token,
		Password: payload.Password,
	}); err != nil {
		return ctx.Render(a.Views.ResetPassword, router.ViewContext{
			"token":   token,
			"expired": IsTokenExpiredError(err),
			"errors":  []string{err.Error()},
		})
	}

	return flash.WithSuccess(ctx, router.ViewContext{
		"system_message": "Your password has been changed",
	}).Redirect("/", fiber.StatusSeeOther)
}

func (a *UserController) ChangePasswordShow(ctx router.Context) error {
	return ctx.Render(a.Views.ChangePassword, router.ViewContext{
		"errors": nil,
	})
}

// ChangePasswordPayload carries the old and new credentials
type ChangePasswordPayload struct {
	OldPassword     string `form:"old_password" json:"old_password"`
	NewPassword     string `form:"new_password" json:"new_password"`
	ConfirmPassword string `form:"confirm_password" json:"confirm_password"`
}

// Validate will validate the payload
func (r ChangePasswordPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.OldPassword, validation.Required),
		validation.Field(&r.NewPassword, validation.Required, validation.Length(10, 100)),
		validation.Field(
			&r.ConfirmPassword,
			validation.Required,
			validation.By(ValidateStringEquals(r.NewPassword)),
		),
	)
}

func (a *UserController) ChangePasswordPost(ctx router.Context) error {
	identity, err := a.requireIdentity(ctx)
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	payload := new(ChangePasswordPayload)
	if err := ctx.Bind(payload); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return ctx.Render(a.Views.ChangePassword, router.ViewContext{
			"validation": FormatValidationErrorToMap(err),
		})
	}

	userID, err := uuid.Parse(identity.ID())
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	change := NewChangePasswordHandler(a.Manager)
	if err := change.Execute(ctx.Context(), ChangePasswordMessage{
		UserID:      userID,
		OldPassword: payload.OldPassword,
		NewPassword: payload.NewPassword,
	}); err != nil {
		return ctx.Render(a.Views.ChangePassword, router.ViewContext{
			"errors": []string{err.Error()},
		})
	}

	return flash.WithSuccess(ctx, router.ViewContext{
		"system_message": "Your password has been changed",
	}).Redirect("/", fiber.StatusSeeOther)
}

func (a *UserController) ChangeUsernameShow(ctx router.Context) error {
	return ctx.Render(a.Views.ChangeUsername, router.ViewContext{
		"errors": nil,
	})
}

// ChangeUsernamePayload carries the new username
type ChangeUsernamePayload struct {
	Username string `form:"username" json:"username"`
}

// Validate will validate the payload
func (r ChangeUsernamePayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Username, validation.Required, validation.Length(3, 100)),
	)
}

func (a *UserController) ChangeUsernamePost(ctx router.Context) error {
	identity, err := a.requireIdentity(ctx)
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	payload := new(ChangeUsernamePayload)
	if err := ctx.Bind(payload); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return ctx.Render(a.Views.ChangeUsername, router.ViewContext{
			"validation": FormatValidationErrorToMap(err),
		})
	}

	userID, err := uuid.Parse(identity.ID())
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	change := NewChangeUsernameHandler(a.Manager)
	if err := change.Execute(ctx.Context(), ChangeUsernameMessage{
		UserID:      userID,
		NewUsername: payload.Username,
	}); err != nil {
		return ctx.Render(a.Views.ChangeUsername, router.ViewContext{
			"errors": []string{err.Error()},
		})
	}

	return flash.WithSuccess(ctx, router.ViewContext{
		"system_message": "Your username has been changed",
	}).Redirect("/", fiber.StatusSeeOther)
}

func (a *UserController) InviteShow(ctx router.Context) error {
	return ctx.Render(a.Views.Invite, router.ViewContext{
		"errors": nil,
	})
}

func (a *UserController) InvitePost(ctx router.Context) error {
	identity, err := a.requireIdentity(ctx)
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	payload := new(EmailPayload)
	if err := ctx.Bind(payload); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return ctx.Render(a.Views.Invite, router.ViewContext{
			"validation": FormatValidationErrorToMap(err),
		})
	}

	var invitedBy *uuid.UUID
	if id, err := uuid.Parse(identity.ID()); err == nil {
		invitedBy = &id
	}

	invite := NewInviteUserHandler(a.Manager)
	if _, err := invite.Execute(ctx.Context(), InviteUserMessage{
		Email:       payload.Email,
		InvitedByID: invitedBy,
	}); err != nil {
		return ctx.Render(a.Views.Invite, router.ViewContext{
			"errors": []string{err.Error()},
		})
	}

	return flash.WithSuccess(ctx, router.ViewContext{
		"system_message": "Invitation sent",
	}).Redirect("/", fiber.StatusSeeOther)
}

func (a *UserController) ManageEmailsShow(ctx router.Context) error {
	identity, err := a.requireIdentity(ctx)
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	userID, err := uuid.Parse(identity.ID())
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	user, err := a.Manager.GetUserByID(ctx.Context(), userID)
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	emails, err := a.Manager.ListUserEmails(ctx.Context(), user)
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	return ctx.Render(a.Views.ManageEmails, router.ViewContext{
		"errors": nil,
		"emails": emails,
	})
}

func (a *UserController) AddEmailPost(ctx router.Context) error {
	identity, err := a.requireIdentity(ctx)
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	payload := new(EmailPayload)
	if err := ctx.Bind(payload); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return ctx.Render(a.Views.ManageEmails, router.ViewContext{
			"validation": FormatValidationErrorToMap(err),
		})
	}

	userID, err := uuid.Parse(identity.ID())
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	add := NewAddUserEmailHandler(a.Manager)
	if _, err := add.Execute(ctx.Context(), AddUserEmailMessage{
		UserID: userID,
		Email:  payload.Email,
	}); err != nil {
		return ctx.Render(a.Views.ManageEmails, router.ViewContext{
			"errors": []string{err.Error()},
		})
	}

	return flash.WithSuccess(ctx, router.ViewContext{
		"system_message": "A confirmation email was sent to the new address",
	}).Redirect(a.Manager.Settings().ManageEmailsURL, fiber.StatusSeeOther)
}

func (a *UserController) DeleteEmailPost(ctx router.Context) error {
	identity, err := a.requireIdentity(ctx)
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	userID, err := uuid.Parse(identity.ID())
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	emailID, err := uuid.Parse(ctx.Param("id", ""))
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	remove := NewDeleteUserEmailHandler(a.Manager)
	if err := remove.Execute(ctx.Context(), DeleteUserEmailMessage{
		UserID:  userID,
		EmailID: emailID,
	}); err != nil {
		return flash.WithError(ctx, router.ViewContext{
			"error_message": err.Error(),
		}).Redirect(a.Manager.Settings().ManageEmailsURL, fiber.StatusSeeOther)
	}

	return flash.WithSuccess(ctx, router.ViewContext{
		"system_message": "Email address removed",
	}).Redirect(a.Manager.Settings().ManageEmailsURL, fiber.StatusSeeOther)
}

func (a *UserController) MakePrimaryEmailPost(ctx router.Context) error {
	identity, err := a.requireIdentity(ctx)
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	userID, err := uuid.Parse(identity.ID())
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	emailID, err := uuid.Parse(ctx.Param("id", ""))
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	promote := NewMakePrimaryEmailHandler(a.Manager)
	if err := promote.Execute(ctx.Context(), MakePrimaryEmailMessage{
		UserID:  userID,
		EmailID: emailID,
	}); err != nil {
		return flash.WithError(ctx, router.ViewContext{
			"error_message": err.Error(),
		}).Redirect(a.Manager.Settings().ManageEmailsURL, fiber.StatusSeeOther)
	}

	return flash.WithSuccess(ctx, router.ViewContext{
		"system_message": "Primary email address updated",
	}).Redirect(a.Manager.Settings().ManageEmailsURL, fiber.StatusSeeOther)
}

func (a *UserController) requireIdentity(ctx router.Context) (Identity, error) {
	if a.CurrentIdentity == nil {
		return nil, ErrIdentityNotFound
	}

	identity, err := a.CurrentIdentity(ctx)
	if err != nil || identity == nil {
		return nil, ErrIdentityNotFound
	}

	return identity, nil
}

// ValidateStringEquals will check that both values match
func ValidateStringEquals(str string) validation.RuleFunc {
	return func(value any) error {
		s, _ := value.(string)
		if s != str {
			return fmt.Errorf("values must match")
		}
		return nil
	}
}

// FormatValidationErrorToMap flattens ozzo validation errors into a view
// friendly map
func FormatValidationErrorToMap(err error) map[string]string {
	out := map[string]string{}
	if err == nil {
		return out
	}

	if verrs, ok := err.(validation.Errors); ok {
		for field, ferr := range verrs {
			if ferr != nil {
				out[field] = ferr.Error()
			}
		}
		return out
	}

	out["error"] = err.Error()
	return out
}

func defaultErrHandler(c router.Context, err error) error {
	return c.Render("errors/500", router.ViewContext{
		"message": err.Error(),
	})
}
