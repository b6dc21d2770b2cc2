package users

import (
	"context"
	"strings"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

var ResetUserPasswordSQL = `UPDATE "users" AS "usr"
SET
	"is_email_confirmed" = TRUE,
	"password_hash" = ?
WHERE
	"usr"."deleted_at" IS NULL
AND (
	"usr"."id" = ?
) RETURNING *;`

var ConfirmUserEmailSQL = `UPDATE "users" AS "usr"
SET
	"is_email_confirmed" = TRUE
WHERE
	"usr"."deleted_at" IS NULL
AND (
	"usr"."id" = ?
) RETURNING *;`

var UpdateUsernameSQL = `UPDATE "users" AS "usr"
SET
	"username" = ?
WHERE
	"usr"."deleted_at" IS NULL
AND (
	"usr"."id" = ?
) RETURNING *;`

var UpdateUserEmailSQL = `UPDATE "users" AS "usr"
SET
	"email" = ?
WHERE
	"usr"."deleted_at" IS NULL
AND (
	"usr"."id" = ?
) RETURNING *;`

type Users interface {
	repository.Repository[*User]

	FindByUsername(ctx context.Context, username string) (*User, error)
	FindByUsernameTx(ctx context.Context, tx bun.IDB, username string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByEmailTx(ctx context.Context, tx bun.IDB, email string) (*User, error)

	TrackAttemptedLogin(ctx context.Context, user *User) error
	TrackAttemptedLoginTx(ctx context.Context, tx bun.IDB, user *User) error
	TrackSuccessfulLogin(ctx context.Context, user *User) error
	TrackSuccessfulLoginTx(ctx context.Context, tx bun.IDB, user *User) error

	Register(ctx context.Context, user *User) (*User, error)
	RegisterTx(ctx context.Context, tx bun.IDB, user *User) (*User, error)
	Create(ctx context.Context, record *User, criteria ...repository.InsertCriteria) (*User, error)
	CreateTx(ctx context.Context, tx bun.IDB, record *User, criteria ...repository.InsertCriteria) (*User, error)

	ConfirmEmail(ctx context.Context, id uuid.UUID) (*User, error)
	ConfirmEmailTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*User, error)

	UpdateUsername(ctx context.Context, id uuid.UUID, username string) (*User, error)
	UpdateUsernameTx(ctx context.Context, tx bun.IDB, id uuid.UUID, username string) (*User, error)
	UpdateEmail(ctx context.Context, id uuid.UUID, email string) (*User, error)
	UpdateEmailTx(ctx context.Context, tx bun.IDB, id uuid.UUID, email string) (*User, error)

	ResetPassword(ctx context.Context, id uuid.UUID, passwordHash string) error
	ResetPasswordTx(ctx context.Context, tx bun.IDB, id uuid.UUID, passwordHash string) error
}

type usersRepo struct {
	repository.Repository[*User]
	db *bun.DB
}

var (
	_ Users                        = (*usersRepo)(nil)
	_ repository.Repository[*User] = (*usersRepo)(nil)
)

func NewUsersRepository(db *bun.DB) Users {
	repo := repository.NewRepository[*User](db, repository.ModelHandlers[*User]{
		NewRecord: func() *User { return &User{} },
		GetID: func(u *User) uuid.UUID {
			if u == nil {
				return uuid.Nil
			}
			return u.ID
		},
		SetID: func(u *User, id uuid.UUID) {
			if u != nil {
				u.ID = id
			}
		},
		GetIdentifier: func() string {
			return "email"
		},
	})

	return &usersRepo{
		Repository: repo,
		db:         db,
	}
}

func (a *usersRepo) Register(ctx context.Context, user *User) (*User, error) {
	return a.RegisterTx(ctx, a.db, user)
}

func (a *usersRepo) RegisterTx(ctx context.Context, tx bun.IDB, user *User) (*User, error) {
	return a.CreateTx(ctx, tx, user)
}

func (a *usersRepo) Create(ctx context.Context, record *User, criteria ...repository.InsertCriteria) (*User, error) {
	return a.CreateTx(ctx, a.db, record, criteria...)
}

func (a *usersRepo) CreateTx(ctx context.Context, tx bun.IDB, record *User, criteria ...repository.InsertCriteria) (*User, error) {
	prepareUserDefaults(record)
	return a.Repository.CreateTx(ctx, tx, record, criteria...)
}

func (a *usersRepo) FindByUsername(ctx context.Context, username string) (*User, error) {
	return a.FindByUsernameTx(ctx, a.db, username)
}

// FindByUsernameTx does a case insensitive lookup by username
func (a *usersRepo) FindByUsernameTx(ctx context.Context, tx bun.IDB, username string) (*User, error) {
	return a.ifindFirst(ctx, tx, "username", username)
}

func (a *usersRepo) FindByEmail(ctx context.Context, email string) (*User, error) {
	return a.FindByEmailTx(ctx, a.db, email)
}

// FindByEmailTx does a case insensitive lookup by the email column on the
// user record itself; with multiple emails enabled callers go through the
// UserEmails repository instead
func (a *usersRepo) FindByEmailTx(ctx context.Context, tx bun.IDB, email string) (*User, error) {
	return a.ifindFirst(ctx, tx, "email", email)
}

func (a *usersRepo) ifindFirst(ctx context.Context, tx bun.IDB, column, value string) (*User, error) {
	record := &User{}
	err := tx.NewSelect().
		Model(record).
		Where("LOWER(?TableAlias."+column+") = LOWER(?)", strings.TrimSpace(value)).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{
					column: value,
				})
		}
		return nil, err
	}

	return record, nil
}

func (a *usersRepo) ConfirmEmail(ctx context.Context, id uuid.UUID) (*User, error) {
	return a.ConfirmEmailTx(ctx, a.db, id)
}

// ConfirmEmailTx flips the confirmed flag through raw SQL so no other
// column is touched
func (a *usersRepo) ConfirmEmailTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*User, error) {
	res, err := a.Repository.RawTx(ctx, tx, ConfirmUserEmailSQL, id.String())
	if err != nil {
		return nil, err
	}

	if len(res) == 0 {
		return nil, repository.NewRecordNotFound().
			WithMetadata(map[string]any{
				"id": id.String(),
			})
	}

	return res[0], nil
}

func (a *usersRepo) UpdateUsername(ctx context.Context, id uuid.UUID, username string) (*User, error) {
	return a.UpdateUsernameTx(ctx, a.db, id, username)
}

func (a *usersRepo) UpdateUsernameTx(ctx context.Context, tx bun.IDB, id uuid.UUID, username string) (*User, error) {
	res, err := a.Repository.RawTx(ctx, tx, UpdateUsernameSQL, username, id.String())
	if err != nil {
		return nil, err
	}

	if len(res) == 0 {
		return nil, repository.NewRecordNotFound().
			WithMetadata(map[string]any{
				"id": id.String(),
			})
	}

	return res[0], nil
}

func (a *usersRepo) UpdateEmail(ctx context.Context, id uuid.UUID, email string) (*User, error) {
	return a.UpdateEmailTx(ctx, a.db, id, email)
}

func (a *usersRepo) UpdateEmailTx(ctx context.Context, tx bun.IDB, id uuid.UUID, email string) (*User, error) {
	res, err := a.Repository.RawTx(ctx, tx, UpdateUserEmailSQL, email, id.String())
	if err != nil {
		return nil, err
	}

	if len(res) == 0 {
		return nil, repository.NewRecordNotFound().
			WithMetadata(map[string]any{
				"id": id.String(),
			})
	}

	return res[0], nil
}

func (a *usersRepo) ResetPassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	return a.ResetPasswordTx(ctx, a.db, id, passwordHash)
}

func (a *usersRepo) ResetPasswordTx(ctx context.Context, tx bun.IDB, id uuid.UUID, passwordHash string) error {
	res, err := a.Repository.RawTx(ctx, tx, ResetUserPasswordSQL, passwordHash, id.String())
	if err != nil {
		return err
	}

	if len(res) == 0 {
		return repository.NewRecordNotFound().
			WithMetadata(map[string]any{
				"id": id.String(),
			})
	}

	return nil
}

func (a *usersRepo) TrackSuccessfulLogin(ctx context.Context, user *User) error {
	return a.TrackSuccessfulLoginTx(ctx, a.db, user)
}

func (a *usersRepo) TrackSuccessfulLoginTx(ctx context.Context, tx bun.IDB, user *User) error {
	loggedInAt := time.Now()
	_, err := tx.NewRaw(`
		UPDATE "users" AS "usr"
		SET
			"loggedin_at" = ?,
			"login_attempt_at" = NULL,
			"login_attempts" = 0
		WHERE
			("usr".id = ?)
			AND "usr"."deleted_at" IS NULL;
	`, loggedInAt, user.ID).Exec(ctx)

	return err
}

func (a *usersRepo) TrackAttemptedLogin(ctx context.Context, user *User) error {
	return a.TrackAttemptedLoginTx(ctx, a.db, user)
}

// TrackAttemptedLoginTx bumps the attempt counter through raw SQL; an ORM
// update would rewrite every column of the record
func (a *usersRepo) TrackAttemptedLoginTx(ctx context.Context, tx bun.IDB, user *User) error {
	attemptedAt := time.Now()
	_, err := tx.NewRaw(`
		UPDATE "users" AS "usr"
		SET
			"login_attempt_at" = ?,
			"login_attempts" = ?
		WHERE
			("usr".id = ?)
			AND "usr"."deleted_at" IS NULL;
	`, attemptedAt, user.LoginAttempts+1, user.ID).Exec(ctx)

	return err
}

func prepareUserDefaults(record *User) {
	if record == nil {
		return
	}

	record.Active = true

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
}
