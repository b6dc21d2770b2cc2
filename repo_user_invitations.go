package users

import (
	"context"
	"strings"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type UserInvitations interface {
	repository.Repository[*UserInvitation]

	FindByEmail(ctx context.Context, email string) (*UserInvitation, error)
	FindByEmailTx(ctx context.Context, tx bun.IDB, email string) (*UserInvitation, error)
	Consume(ctx context.Context, id uuid.UUID) error
	ConsumeTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error
}

type userInvitationsRepo struct {
	repository.Repository[*UserInvitation]
	db *bun.DB
}

var _ UserInvitations = (*userInvitationsRepo)(nil)

func NewUserInvitationsRepository(db *bun.DB) UserInvitations {
	repo := repository.NewRepository[*UserInvitation](db, repository.ModelHandlers[*UserInvitation]{
		NewRecord: func() *UserInvitation { return &UserInvitation{} },
		GetID: func(i *UserInvitation) uuid.UUID {
			if i == nil {
				return uuid.Nil
			}
			return i.ID
		},
		SetID: func(i *UserInvitation, id uuid.UUID) {
			if i != nil {
				i.ID = id
			}
		},
		GetIdentifier: func() string {
			return "email"
		},
	})

	return &userInvitationsRepo{
		Repository: repo,
		db:         db,
	}
}

func (a *userInvitationsRepo) FindByEmail(ctx context.Context, email string) (*UserInvitation, error) {
	return a.FindByEmailTx(ctx, a.db, email)
}

func (a *userInvitationsRepo) FindByEmailTx(ctx context.Context, tx bun.IDB, email string) (*UserInvitation, error) {
	record := &UserInvitation{}
	err := tx.NewSelect().
		Model(record).
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

func (a *userInvitationsRepo) Consume(ctx context.Context, id uuid.UUID) error {
	return a.ConsumeTx(ctx, a.db, id)
}

// ConsumeTx soft deletes the invitation once the invited user completes
// registration
func (a *userInvitationsRepo) ConsumeTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error {
	_, err := tx.NewDelete().
		Model((*UserInvitation)(nil)).
		Where("?TableAlias.id = ?", id).
		Exec(ctx)

	return err
}
