package users_test

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-users"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"golang.org/x/crypto/bcrypt"
)

func newTestDB(t *testing.T) *bun.DB {
	t.Helper()

	// one shared in-memory database per test, isolated by name
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)

	sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { sqldb.Close() })

	db := bun.NewDB(sqldb, sqlitedialect.New())

	ctx := context.Background()
	for _, model := range []any{
		(*users.User)(nil),
		(*users.UserEmail)(nil),
		(*users.UserInvitation)(nil),
	} {
		_, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx)
		require.NoError(t, err)
	}

	return db
}

func newTestManager(t *testing.T, customize func(*users.Settings)) (*users.Manager, *capturingMailer) {
	t.Helper()

	repo := users.NewRepositoryManager(newTestDB(t))
	mailer := &capturingMailer{}

	cfg := users.DefaultSettings()
	cfg.SigningKey = "integration-test-signing-key"
	cfg.PasswordHashCost = bcrypt.MinCost
	if customize != nil {
		customize(&cfg)
	}

	m, err := users.New(repo, cfg, users.WithMailer(mailer))
	require.NoError(t, err)

	return m, mailer
}

func assertTextCode(t *testing.T, err error, code string) {
	t.Helper()

	var richErr *goerrors.Error
	require.ErrorAs(t, err, &richErr)
	assert.Equal(t, code, richErr.TextCode)
}

func TestRegistrationAndLoginLifecycle(t *testing.T) {
	ctx := context.Background()
	m, mailer := newTestManager(t, nil)

	register := users.NewRegisterUserHandler(m)
	user, err := register.Execute(ctx, users.RegisterUserMessage{
		Email:    "pepe@example.com",
		Password: "sup3r-secret-passw0rd",
	})
	require.NoError(t, err)
	require.NotNil(t, user)

	// without an explicit username the email local part is used
	assert.Equal(t, "pepe", user.Username)
	assert.True(t, user.Active)
	assert.False(t, user.EmailConfirmed)

	// confirmation link plus registered notice
	require.Len(t, mailer.sent, 2)
	assert.Equal(t, "pepe@example.com", mailer.sent[0].To)
	assert.Equal(t, users.SubjectConfirmEmail, mailer.sent[0].Subject)
	assert.Contains(t, mailer.sent[0].Body, m.Settings().ConfirmEmailURL+"/")
	assert.Equal(t, users.SubjectRegistered, mailer.sent[1].Subject)

	available, err := m.EmailIsAvailable(ctx, "PEPE@example.com")
	require.NoError(t, err)
	assert.False(t, available)

	token, err := m.Tokens().Generate(user.ID.String(), users.PurposeConfirmEmail)
	require.NoError(t, err)

	confirm := users.NewConfirmEmailHandler(m)
	_, err = confirm.Execute(ctx, users.ConfirmEmailMessage{Token: token})
	require.NoError(t, err)

	confirmed, err := m.GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, confirmed.EmailConfirmed)

	identity, err := m.IdentityProvider().VerifyIdentity(ctx, "pepe@example.com", "sup3r-secret-passw0rd")
	require.NoError(t, err)
	assert.Equal(t, user.ID.String(), identity.ID())

	_, err = m.IdentityProvider().VerifyIdentity(ctx, "pepe@example.com", "wrong-password")
	assert.ErrorIs(t, err, users.ErrMismatchedHashAndPassword)
}

func TestAvailabilityOnFreshStore(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t, nil)

	// a miss on an empty store means available, not an error
	available, err := m.EmailIsAvailable(ctx, "nobody@example.com")
	require.NoError(t, err)
	assert.True(t, available)

	available, err = m.UsernameIsAvailable(ctx, nil, "nobody")
	require.NoError(t, err)
	assert.True(t, available)
}

func TestConfirmEmailPreservesAccount(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t, func(s *users.Settings) {
		s.EnableUsername = true
	})

	register := users.NewRegisterUserHandler(m)
	user, err := register.Execute(ctx, users.RegisterUserMessage{
		Username: "wanda",
		Email:    "wanda@example.com",
		Phone:    "+16502530000",
		Password: "sup3r-secret-passw0rd",
	})
	require.NoError(t, err)

	// a failed login only bumps the attempt counter
	_, err = m.IdentityProvider().VerifyIdentity(ctx, "wanda", "wrong-password")
	require.ErrorIs(t, err, users.ErrMismatchedHashAndPassword)

	token, err := m.Tokens().Generate(user.ID.String(), users.PurposeConfirmEmail)
	require.NoError(t, err)

	confirm := users.NewConfirmEmailHandler(m)
	_, err = confirm.Execute(ctx, users.ConfirmEmailMessage{Token: token})
	require.NoError(t, err)

	// confirming flips exactly one flag, every other column survives
	reloaded, err := m.GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, reloaded.EmailConfirmed)
	assert.Equal(t, "wanda", reloaded.Username)
	assert.Equal(t, "wanda@example.com", reloaded.Email)
	assert.Equal(t, "+16502530000", reloaded.Phone)
	assert.True(t, reloaded.Active)
	assert.NotEmpty(t, reloaded.PasswordHash)
	assert.Equal(t, 1, reloaded.LoginAttempts)

	identity, err := m.IdentityProvider().VerifyIdentity(ctx, "wanda", "sup3r-secret-passw0rd")
	require.NoError(t, err)
	assert.Equal(t, user.ID.String(), identity.ID())
}

func TestRegistrationRejectsTakenEmail(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t, nil)

	register := users.NewRegisterUserHandler(m)
	_, err := register.Execute(ctx, users.RegisterUserMessage{
		Email:    "pepe@example.com",
		Password: "sup3r-secret-passw0rd",
	})
	require.NoError(t, err)

	// the availability check is case insensitive
	_, err = register.Execute(ctx, users.RegisterUserMessage{
		Email:    "Pepe@Example.com",
		Password: "another-secret-passw0rd",
	})
	require.Error(t, err)
	assertTextCode(t, err, "EMAIL_TAKEN")
}

func TestRegistrationDisabled(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t, func(s *users.Settings) {
		s.EnableRegister = false
	})

	register := users.NewRegisterUserHandler(m)
	_, err := register.Execute(ctx, users.RegisterUserMessage{
		Email:    "pepe@example.com",
		Password: "sup3r-secret-passw0rd",
	})
	require.Error(t, err)
	assertTextCode(t, err, "REGISTRATION_DISABLED")
}

func TestInvitationFlow(t *testing.T) {
	ctx := context.Background()
	m, mailer := newTestManager(t, func(s *users.Settings) {
		s.EnableInviteUser = true
		s.RequireInvitation = true
	})

	register := users.NewRegisterUserHandler(m)

	// registering before the invite exists must fail
	_, err := register.Execute(ctx, users.RegisterUserMessage{
		Email:    "invited@example.com",
		Password: "sup3r-secret-passw0rd",
	})
	require.Error(t, err)
	assertTextCode(t, err, "INVITATION_REQUIRED")

	invite := users.NewInviteUserHandler(m)
	invitation, err := invite.Execute(ctx, users.InviteUserMessage{
		Email: "invited@example.com",
	})
	require.NoError(t, err)
	require.NotNil(t, invitation)

	require.Len(t, mailer.sent, 1)
	assert.Equal(t, "invited@example.com", mailer.sent[0].To)
	assert.Equal(t, users.SubjectInvitation, mailer.sent[0].Subject)
	assert.Contains(t, mailer.sent[0].Body, m.Settings().RegisterURL+"?token=")

	user, err := register.Execute(ctx, users.RegisterUserMessage{
		Email:    "invited@example.com",
		Password: "sup3r-secret-passw0rd",
	})
	require.NoError(t, err)
	require.NotNil(t, user)

	// the invitation is consumed with the registration
	_, err = m.Repo().UserInvitations().FindByEmail(ctx, "invited@example.com")
	require.Error(t, err)
	assert.True(t, repository.IsRecordNotFound(err))
}

func TestInviteRejectsTakenEmail(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t, func(s *users.Settings) {
		s.EnableInviteUser = true
	})

	register := users.NewRegisterUserHandler(m)
	_, err := register.Execute(ctx, users.RegisterUserMessage{
		Email:    "pepe@example.com",
		Password: "sup3r-secret-passw0rd",
	})
	require.NoError(t, err)

	invite := users.NewInviteUserHandler(m)
	_, err = invite.Execute(ctx, users.InviteUserMessage{Email: "pepe@example.com"})
	require.Error(t, err)
	assertTextCode(t, err, "EMAIL_TAKEN")
}

func TestPasswordResetFlow(t *testing.T) {
	ctx := context.Background()
	m, mailer := newTestManager(t, nil)

	register := users.NewRegisterUserHandler(m)
	user, err := register.Execute(ctx, users.RegisterUserMessage{
		Email:    "pepe@example.com",
		Password: "old-secret-passw0rd",
	})
	require.NoError(t, err)

	mailer.sent = nil

	initialize := users.NewInitializePasswordResetHandler(m)
	err = initialize.Execute(ctx, users.InitializePasswordResetMessage{Email: "pepe@example.com"})
	require.NoError(t, err)

	require.Len(t, mailer.sent, 1)
	assert.Equal(t, users.SubjectResetPassword, mailer.sent[0].Subject)
	assert.Contains(t, mailer.sent[0].Body, m.Settings().ResetPasswordURL+"/")

	// an unknown address completes quietly without sending anything
	err = initialize.Execute(ctx, users.InitializePasswordResetMessage{Email: "ghost@example.com"})
	require.NoError(t, err)
	assert.Len(t, mailer.sent, 1)

	token, err := m.Tokens().Generate(user.ID.String(), users.PurposeResetPassword)
	require.NoError(t, err)

	finalize := users.NewFinalizePasswordResetHandler(m)
	err = finalize.Execute(ctx, users.FinalizePasswordResetMessage{
		Token:    token,
		Password: "new-secret-passw0rd",
	})
	require.NoError(t, err)

	_, err = m.IdentityProvider().VerifyIdentity(ctx, "pepe@example.com", "old-secret-passw0rd")
	assert.ErrorIs(t, err, users.ErrMismatchedHashAndPassword)

	_, err = m.IdentityProvider().VerifyIdentity(ctx, "pepe@example.com", "new-secret-passw0rd")
	require.NoError(t, err)

	// completing the reset proves control of the address
	updated, err := m.GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, updated.EmailConfirmed)
}

func TestPasswordResetRejectsForeignPurposeToken(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t, nil)

	register := users.NewRegisterUserHandler(m)
	user, err := register.Execute(ctx, users.RegisterUserMessage{
		Email:    "pepe@example.com",
		Password: "old-secret-passw0rd",
	})
	require.NoError(t, err)

	// a confirmation token must never reset a password
	token, err := m.Tokens().Generate(user.ID.String(), users.PurposeConfirmEmail)
	require.NoError(t, err)

	finalize := users.NewFinalizePasswordResetHandler(m)
	err = finalize.Execute(ctx, users.FinalizePasswordResetMessage{
		Token:    token,
		Password: "new-secret-passw0rd",
	})
	assert.True(t, users.IsTokenInvalidError(err))

	_, err = m.IdentityProvider().VerifyIdentity(ctx, "pepe@example.com", "old-secret-passw0rd")
	require.NoError(t, err)
}

func TestPasswordResetSkipsOrphanedEmailRecord(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	mailer := &capturingMailer{}

	cfg := users.DefaultSettings()
	cfg.SigningKey = "integration-test-signing-key"
	cfg.PasswordHashCost = bcrypt.MinCost
	cfg.EnableMultipleEmails = true

	m, err := users.New(users.NewRepositoryManager(db), cfg, users.WithMailer(mailer))
	require.NoError(t, err)

	register := users.NewRegisterUserHandler(m)
	user, err := register.Execute(ctx, users.RegisterUserMessage{
		Email:    "orphan@example.com",
		Password: "sup3r-secret-passw0rd",
	})
	require.NoError(t, err)

	// soft delete the owner; the email record keeps pointing at it
	_, err = db.NewDelete().Model(&users.User{ID: user.ID}).WherePK().Exec(ctx)
	require.NoError(t, err)

	mailer.sent = nil

	initialize := users.NewInitializePasswordResetHandler(m)
	err = initialize.Execute(ctx, users.InitializePasswordResetMessage{Email: "orphan@example.com"})
	require.NoError(t, err)
	assert.Empty(t, mailer.sent)
}

func TestChangePasswordFlow(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t, nil)

	register := users.NewRegisterUserHandler(m)
	user, err := register.Execute(ctx, users.RegisterUserMessage{
		Email:    "pepe@example.com",
		Password: "old-secret-passw0rd",
	})
	require.NoError(t, err)

	change := users.NewChangePasswordHandler(m)

	err = change.Execute(ctx, users.ChangePasswordMessage{
		UserID:      user.ID,
		OldPassword: "wrong-old-password",
		NewPassword: "new-secret-passw0rd",
	})
	assert.ErrorIs(t, err, users.ErrMismatchedHashAndPassword)

	err = change.Execute(ctx, users.ChangePasswordMessage{
		UserID:      user.ID,
		OldPassword: "old-secret-passw0rd",
		NewPassword: "new-secret-passw0rd",
	})
	require.NoError(t, err)

	_, err = m.IdentityProvider().VerifyIdentity(ctx, "pepe@example.com", "new-secret-passw0rd")
	require.NoError(t, err)
}

func TestChangeUsernameFlow(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t, func(s *users.Settings) {
		s.EnableUsername = true
	})

	register := users.NewRegisterUserHandler(m)

	first, err := register.Execute(ctx, users.RegisterUserMessage{
		Username: "first",
		Email:    "first@example.com",
		Password: "sup3r-secret-passw0rd",
	})
	require.NoError(t, err)

	second, err := register.Execute(ctx, users.RegisterUserMessage{
		Username: "second",
		Email:    "second@example.com",
		Password: "sup3r-secret-passw0rd",
	})
	require.NoError(t, err)

	change := users.NewChangeUsernameHandler(m)

	err = change.Execute(ctx, users.ChangeUsernameMessage{
		UserID:      second.ID,
		NewUsername: "first",
	})
	require.Error(t, err)
	assertTextCode(t, err, "USERNAME_TAKEN")

	// renaming to your own username is always allowed
	err = change.Execute(ctx, users.ChangeUsernameMessage{
		UserID:      first.ID,
		NewUsername: "First",
	})
	require.NoError(t, err)

	err = change.Execute(ctx, users.ChangeUsernameMessage{
		UserID:      second.ID,
		NewUsername: "renamed",
	})
	require.NoError(t, err)

	updated, err := m.GetUserByID(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, "renamed", updated.Username)
}

func TestMultipleEmailsMode(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t, func(s *users.Settings) {
		s.EnableMultipleEmails = true
	})

	register := users.NewRegisterUserHandler(m)
	user, err := register.Execute(ctx, users.RegisterUserMessage{
		Email:    "pepe@example.com",
		Password: "sup3r-secret-passw0rd",
	})
	require.NoError(t, err)

	// registration creates the primary email record alongside the user
	found, record, err := m.FindUserByEmail(ctx, "pepe@example.com")
	require.NoError(t, err)
	require.NotNil(t, record)
	require.NotNil(t, found)
	assert.Equal(t, user.ID, found.ID)
	assert.True(t, record.IsPrimary)
	assert.False(t, record.Confirmed)

	primary, err := m.GetPrimaryUserEmail(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, record.ID, primary.ID)

	token, err := m.Tokens().Generate(user.ID.String(), users.PurposeConfirmEmail)
	require.NoError(t, err)

	confirm := users.NewConfirmEmailHandler(m)
	_, err = confirm.Execute(ctx, users.ConfirmEmailMessage{Token: token})
	require.NoError(t, err)

	primary, err = m.GetPrimaryUserEmail(ctx, user)
	require.NoError(t, err)
	assert.True(t, primary.Confirmed)
}

func TestManageEmailsFlow(t *testing.T) {
	ctx := context.Background()
	m, mailer := newTestManager(t, func(s *users.Settings) {
		s.EnableMultipleEmails = true
	})

	register := users.NewRegisterUserHandler(m)
	user, err := register.Execute(ctx, users.RegisterUserMessage{
		Email:    "pepe@example.com",
		Password: "sup3r-secret-passw0rd",
	})
	require.NoError(t, err)

	mailer.sent = nil

	add := users.NewAddUserEmailHandler(m)
	record, err := add.Execute(ctx, users.AddUserEmailMessage{
		UserID: user.ID,
		Email:  "work@example.com",
	})
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.False(t, record.IsPrimary)
	assert.False(t, record.Confirmed)

	// the confirmation link goes to the new address
	require.Len(t, mailer.sent, 1)
	assert.Equal(t, "work@example.com", mailer.sent[0].To)
	assert.Equal(t, users.SubjectConfirmEmail, mailer.sent[0].Subject)

	// adding an address someone owns fails, including your own
	_, err = add.Execute(ctx, users.AddUserEmailMessage{
		UserID: user.ID,
		Email:  "pepe@example.com",
	})
	require.Error(t, err)
	assertTextCode(t, err, "EMAIL_TAKEN")

	emails, err := m.ListUserEmails(ctx, user)
	require.NoError(t, err)
	require.Len(t, emails, 2)
	assert.True(t, emails[0].IsPrimary)
	assert.Equal(t, "pepe@example.com", emails[0].Email)

	promote := users.NewMakePrimaryEmailHandler(m)

	// an unconfirmed address cannot become primary
	err = promote.Execute(ctx, users.MakePrimaryEmailMessage{
		UserID:  user.ID,
		EmailID: record.ID,
	})
	require.Error(t, err)
	assertTextCode(t, err, "EMAIL_UNCONFIRMED")

	// confirm the new address through its own token
	token, err := m.Tokens().Generate(record.ID.String(), users.PurposeConfirmEmail)
	require.NoError(t, err)

	confirm := users.NewConfirmEmailHandler(m)
	_, err = confirm.Execute(ctx, users.ConfirmEmailMessage{Token: token})
	require.NoError(t, err)

	err = promote.Execute(ctx, users.MakePrimaryEmailMessage{
		UserID:  user.ID,
		EmailID: record.ID,
	})
	require.NoError(t, err)

	// the promotion also syncs the address on the user record
	updated, err := m.GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "work@example.com", updated.Email)

	primary, err := m.GetPrimaryUserEmail(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, record.ID, primary.ID)

	remove := users.NewDeleteUserEmailHandler(m)

	// the primary address cannot be deleted
	err = remove.Execute(ctx, users.DeleteUserEmailMessage{
		UserID:  user.ID,
		EmailID: record.ID,
	})
	require.Error(t, err)
	assertTextCode(t, err, "PRIMARY_EMAIL")

	// the demoted original address can
	emails, err = m.ListUserEmails(ctx, user)
	require.NoError(t, err)
	require.Len(t, emails, 2)

	var demoted *users.UserEmail
	for _, e := range emails {
		if !e.IsPrimary {
			demoted = e
		}
	}
	require.NotNil(t, demoted)

	err = remove.Execute(ctx, users.DeleteUserEmailMessage{
		UserID:  user.ID,
		EmailID: demoted.ID,
	})
	require.NoError(t, err)

	emails, err = m.ListUserEmails(ctx, user)
	require.NoError(t, err)
	assert.Len(t, emails, 1)
}

func TestManageEmailsOwnershipGuard(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t, func(s *users.Settings) {
		s.EnableMultipleEmails = true
	})

	register := users.NewRegisterUserHandler(m)

	owner, err := register.Execute(ctx, users.RegisterUserMessage{
		Email:    "owner@example.com",
		Password: "sup3r-secret-passw0rd",
	})
	require.NoError(t, err)

	intruder, err := register.Execute(ctx, users.RegisterUserMessage{
		Email:    "intruder@example.com",
		Password: "sup3r-secret-passw0rd",
	})
	require.NoError(t, err)

	add := users.NewAddUserEmailHandler(m)
	record, err := add.Execute(ctx, users.AddUserEmailMessage{
		UserID: owner.ID,
		Email:  "work@example.com",
	})
	require.NoError(t, err)

	remove := users.NewDeleteUserEmailHandler(m)
	err = remove.Execute(ctx, users.DeleteUserEmailMessage{
		UserID:  intruder.ID,
		EmailID: record.ID,
	})
	require.Error(t, err)
	assertTextCode(t, err, "EMAIL_NOT_OWNED")
}

func TestSingleEmailModePrimaryEmailIsTransient(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t, nil)

	register := users.NewRegisterUserHandler(m)
	user, err := register.Execute(ctx, users.RegisterUserMessage{
		Email:    "pepe@example.com",
		Password: "sup3r-secret-passw0rd",
	})
	require.NoError(t, err)

	primary, err := m.GetPrimaryUserEmail(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, "pepe@example.com", primary.Email)
	assert.True(t, primary.IsPrimary)
	assert.Same(t, user, primary.User)
}

func TestResendEmailConfirmation(t *testing.T) {
	ctx := context.Background()
	m, mailer := newTestManager(t, nil)

	register := users.NewRegisterUserHandler(m)
	user, err := register.Execute(ctx, users.RegisterUserMessage{
		Email:    "pepe@example.com",
		Password: "sup3r-secret-passw0rd",
	})
	require.NoError(t, err)

	mailer.sent = nil

	resend := users.NewResendEmailConfirmationHandler(m)

	// unknown addresses complete quietly
	err = resend.Execute(ctx, users.ResendEmailConfirmationMessage{Email: "ghost@example.com"})
	require.NoError(t, err)
	assert.Empty(t, mailer.sent)

	err = resend.Execute(ctx, users.ResendEmailConfirmationMessage{Email: "pepe@example.com"})
	require.NoError(t, err)
	require.Len(t, mailer.sent, 1)
	assert.Equal(t, users.SubjectConfirmEmail, mailer.sent[0].Subject)

	// confirmed accounts do not trigger another email
	token, err := m.Tokens().Generate(user.ID.String(), users.PurposeConfirmEmail)
	require.NoError(t, err)

	confirm := users.NewConfirmEmailHandler(m)
	_, err = confirm.Execute(ctx, users.ConfirmEmailMessage{Token: token})
	require.NoError(t, err)

	err = resend.Execute(ctx, users.ResendEmailConfirmationMessage{Email: "pepe@example.com"})
	require.NoError(t, err)
	assert.Len(t, mailer.sent, 1)
}
