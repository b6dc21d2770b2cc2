package users

import (
	"context"
	"strings"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type UserEmails interface {
	repository.Repository[*UserEmail]

	FindByEmail(ctx context.Context, email string) (*UserEmail, error)
	FindByEmailTx(ctx context.Context, tx bun.IDB, email string) (*UserEmail, error)
	FindByID(ctx context.Context, id uuid.UUID) (*UserEmail, error)
	FindByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*UserEmail, error)
	ListFor(ctx context.Context, userID uuid.UUID) ([]*UserEmail, error)
	ListForTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) ([]*UserEmail, error)
	PrimaryFor(ctx context.Context, userID uuid.UUID) (*UserEmail, error)
	PrimaryForTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) (*UserEmail, error)
	Confirm(ctx context.Context, id uuid.UUID) (*UserEmail, error)
	ConfirmTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*UserEmail, error)
	MakePrimary(ctx context.Context, userID, id uuid.UUID) error
	MakePrimaryTx(ctx context.Context, tx bun.IDB, userID, id uuid.UUID) error
	Remove(ctx context.Context, id uuid.UUID) error
	RemoveTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error
}

type userEmailsRepo struct {
	repository.Repository[*UserEmail]
	db *bun.DB
}

var _ UserEmails = (*userEmailsRepo)(nil)

func NewUserEmailsRepository(db *bun.DB) UserEmails {
	repo := repository.NewRepository[*UserEmail](db, repository.ModelHandlers[*UserEmail]{
		NewRecord: func() *UserEmail { return &UserEmail{} },
		GetID: func(e *UserEmail) uuid.UUID {
			if e == nil {
				return uuid.Nil
			}
			return e.ID
		},
		SetID: func(e *UserEmail, id uuid.UUID) {
			if e != nil {
				e.ID = id
			}
		},
		GetIdentifier: func() string {
			return "email"
		},
	})

	return &userEmailsRepo{
		Repository: repo,
		db:         db,
	}
}

func (a *userEmailsRepo) FindByEmail(ctx context.Context, email string) (*UserEmail, error) {
	return a.FindByEmailTx(ctx, a.db, email)
}

// FindByEmailTx does a case insensitive lookup, loading the owning user
func (a *userEmailsRepo) FindByEmailTx(ctx context.Context, tx bun.IDB, email string) (*UserEmail, error) {
	record := &UserEmail{}
	err := tx.NewSelect().
		Model(record).
		Relation("User").
		Where("LOWER(?TableAlias.email) = LOWER(?)", strings.TrimSpace(email)).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{
					"email": email,
				})
		}
		return nil, err
	}

	return record, nil
}

func (a *userEmailsRepo) FindByID(ctx context.Context, id uuid.UUID) (*UserEmail, error) {
	return a.FindByIDTx(ctx, a.db, id)
}

func (a *userEmailsRepo) FindByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*UserEmail, error) {
	record := &UserEmail{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{
					"id": id.String(),
				})
		}
		return nil, err
	}

	return record, nil
}

func (a *userEmailsRepo) ListFor(ctx context.Context, userID uuid.UUID) ([]*UserEmail, error) {
	return a.ListForTx(ctx, a.db, userID)
}

// ListForTx returns every address a user owns, primary first
func (a *userEmailsRepo) ListForTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) ([]*UserEmail, error) {
	var records []*UserEmail
	err := tx.NewSelect().
		Model(&records).
		Where("?TableAlias.user_id = ?", userID).
		OrderExpr("?TableAlias.is_primary DESC, ?TableAlias.email ASC").
		Scan(ctx)

	if err != nil {
		return nil, err
	}

	return records, nil
}

func (a *userEmailsRepo) PrimaryFor(ctx context.Context, userID uuid.UUID) (*UserEmail, error) {
	return a.PrimaryForTx(ctx, a.db, userID)
}

func (a *userEmailsRepo) PrimaryForTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) (*UserEmail, error) {
	record := &UserEmail{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.user_id = ?", userID).
		Where("?TableAlias.is_primary = ?", true).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{
					"user_id": userID.String(),
				})
		}
		return nil, err
	}

	return record, nil
}

func (a *userEmailsRepo) Confirm(ctx context.Context, id uuid.UUID) (*UserEmail, error) {
	return a.ConfirmTx(ctx, a.db, id)
}

// ConfirmTx flips the confirmed flag without touching the other columns
func (a *userEmailsRepo) ConfirmTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*UserEmail, error) {
	res, err := tx.NewUpdate().
		Model((*UserEmail)(nil)).
		Set("is_confirmed = ?", true).
		Where("?TableAlias.id = ?", id).
		Where("?TableAlias.deleted_at IS NULL").
		Exec(ctx)
	if err != nil {
		return nil, err
	}

	if rows, err := res.RowsAffected(); err == nil && rows == 0 {
		return nil, repository.NewRecordNotFound().
			WithMetadata(map[string]any{
				"id": id.String(),
			})
	}

	return a.FindByIDTx(ctx, tx, id)
}

func (a *userEmailsRepo) MakePrimary(ctx context.Context, userID, id uuid.UUID) error {
	return a.MakePrimaryTx(ctx, a.db, userID, id)
}

// MakePrimaryTx demotes the current primary and promotes the given record
// in one statement pair, keeping the one-primary-per-user invariant
func (a *userEmailsRepo) MakePrimaryTx(ctx context.Context, tx bun.IDB, userID, id uuid.UUID) error {
	_, err := tx.NewRaw(`
		UPDATE "user_emails" AS "uem"
		SET "is_primary" = FALSE
		WHERE
			("uem".user_id = ?)
			AND "uem"."deleted_at" IS NULL;
	`, userID).Exec(ctx)
	if err != nil {
		return err
	}

	res, err := tx.NewUpdate().
		Model((*UserEmail)(nil)).
		Set("is_primary = ?", true).
		Where("?TableAlias.id = ?", id).
		Where("?TableAlias.user_id = ?", userID).
		Exec(ctx)
	if err != nil {
		return err
	}

	if rows, err := res.RowsAffected(); err == nil && rows == 0 {
		return repository.NewRecordNotFound().
			WithMetadata(map[string]any{
				"id": id.String(),
			})
	}

	return nil
}

func (a *userEmailsRepo) Remove(ctx context.Context, id uuid.UUID) error {
	return a.RemoveTx(ctx, a.db, id)
}

// RemoveTx soft deletes an address record
func (a *userEmailsRepo) RemoveTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error {
	_, err := tx.NewDelete().
		Model((*UserEmail)(nil)).
		Where("?TableAlias.id = ?", id).
		Exec(ctx)

	return err
}
