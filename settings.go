package users

import "time"

// Settings is the enumerated configuration surface of the package. Defaults
// are declared as data in DefaultSettings, there is no reflective discovery.
// A Settings value is resolved once at Manager construction and read only
// after that.
type Settings struct {
	// SigningKey is the application wide secret every action token
	// signature derives from. Rotating it invalidates all outstanding
	// confirmation, reset, and invitation tokens.
	SigningKey string
	Issuer     string

	// PasswordHashCost is the bcrypt cost for the default hasher
	PasswordHashCost int

	// PhoneRegion is the default region for phone number normalization
	PhoneRegion string

	// Feature flags
	EnableRegister       bool
	EnableUsername       bool
	EnableEmail          bool
	EnableConfirmEmail   bool
	EnableMultipleEmails bool
	EnableChangePassword bool
	EnableChangeUsername bool
	EnableForgotPassword bool
	EnableInviteUser     bool
	RequireInvitation    bool

	// Notification flags
	SendRegisteredEmail      bool
	SendPasswordChangedEmail bool
	SendUsernameChangedEmail bool

	// Token lifetimes
	ConfirmEmailTokenMaxAge  time.Duration
	ResetPasswordTokenMaxAge time.Duration
	InviteTokenMaxAge        time.Duration

	// Route paths, registered conditionally on the flags above
	LoginURL                   string
	LogoutURL                  string
	RegisterURL                string
	ConfirmEmailURL            string
	ResendEmailConfirmationURL string
	ForgotPasswordURL          string
	ResetPasswordURL           string
	ChangePasswordURL          string
	ChangeUsernameURL          string
	InviteUserURL              string
	ManageEmailsURL            string
}

// DefaultSettings returns the package defaults: email based accounts with
// confirmation and forgot password enabled, usernames disabled.
func DefaultSettings() Settings {
	return Settings{
		PasswordHashCost: DefaultHashCost,
		PhoneRegion:      "US",

		EnableRegister:       true,
		EnableUsername:       false,
		EnableEmail:          true,
		EnableConfirmEmail:   true,
		EnableMultipleEmails: false,
		EnableChangePassword: true,
		EnableChangeUsername: true,
		EnableForgotPassword: true,
		EnableInviteUser:     false,
		RequireInvitation:    false,

		SendRegisteredEmail:      true,
		SendPasswordChangedEmail: true,
		SendUsernameChangedEmail: true,

		ConfirmEmailTokenMaxAge:  48 * time.Hour,
		ResetPasswordTokenMaxAge: 48 * time.Hour,
		InviteTokenMaxAge:        90 * 24 * time.Hour,

		LoginURL:                   "/login",
		LogoutURL:                  "/logout",
		RegisterURL:                "/register",
		ConfirmEmailURL:            "/confirm-email",
		ResendEmailConfirmationURL: "/resend-email-confirmation",
		ForgotPasswordURL:          "/forgot-password",
		ResetPasswordURL:           "/reset-password",
		ChangePasswordURL:          "/change-password",
		ChangeUsernameURL:          "/change-username",
		InviteUserURL:              "/invite-user",
		ManageEmailsURL:            "/manage-emails",
	}
}

// applyDependencyClosure forces dependent feature flags off when their
// prerequisite flag is off. The pass is idempotent and must run before
// hard requirement validation: forcing can disable a feature that would
// otherwise fail validation.
func (s Settings) applyDependencyClosure() Settings {
	// registration needs at least one identification scheme
	if !s.EnableUsername && !s.EnableEmail {
		s.EnableRegister = false
	}

	if !s.EnableEmail {
		s.EnableConfirmEmail = false
		s.EnableMultipleEmails = false
		s.EnableForgotPassword = false
		s.SendRegisteredEmail = false
		s.SendPasswordChangedEmail = false
		s.SendUsernameChangedEmail = false
		s.RequireInvitation = false
	}

	if !s.EnableUsername {
		s.EnableChangeUsername = false
	}

	return s
}

// Resolve applies the dependency closure and then validates hard
// requirements against the configured repository manager. A nil repository
// manager, or invitations enabled without an invitations repository, fail
// with a configuration error. Resolving an already resolved Settings yields
// an identical result.
func (s Settings) Resolve(repo RepositoryManager) (Settings, error) {
	resolved := s.applyDependencyClosure()

	if repo == nil {
		return resolved, NewConfigurationError(
			"users: a RepositoryManager must be configured")
	}

	if resolved.EnableInviteUser && repo.UserInvitations() == nil {
		return resolved, NewConfigurationError(
			"users: EnableInviteUser requires a UserInvitations repository")
	}

	if resolved.RequireInvitation && repo.UserInvitations() == nil {
		return resolved, NewConfigurationError(
			"users: RequireInvitation requires a UserInvitations repository")
	}

	if resolved.EnableMultipleEmails && repo.UserEmails() == nil {
		return resolved, NewConfigurationError(
			"users: EnableMultipleEmails requires a UserEmails repository")
	}

	return resolved, nil
}

// tokenFlowsEnabled reports whether any flow that mints action tokens is
// live after resolution.
func (s Settings) tokenFlowsEnabled() bool {
	return s.EnableConfirmEmail || s.EnableForgotPassword || s.EnableInviteUser
}
