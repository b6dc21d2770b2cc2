package users

import (
	"context"
	"database/sql"
	"errors"
	"log"

	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

// RepositoryManager exposes all repositories
type RepositoryManager interface {
	repository.Validator
	repository.TransactionManager
	Users() Users
	UserEmails() UserEmails
	UserInvitations() UserInvitations
}

type mngr struct {
	db          *bun.DB
	users       Users
	emails      UserEmails
	invitations UserInvitations
}

// RepositoryManagerOption configures the repository manager
type RepositoryManagerOption func(*mngr)

// WithoutUserEmails disables the optional multiple-emails entity
func WithoutUserEmails() RepositoryManagerOption {
	return func(m *mngr) {
		m.emails = nil
	}
}

// WithoutUserInvitations disables the optional invitation entity
func WithoutUserInvitations() RepositoryManagerOption {
	return func(m *mngr) {
		m.invitations = nil
	}
}

func NewRepositoryManager(db *bun.DB, opts ...RepositoryManagerOption) RepositoryManager {
	m := &mngr{
		db:          db,
		users:       NewUsersRepository(db),
		emails:      NewUserEmailsRepository(db),
		invitations: NewUserInvitationsRepository(db),
	}

	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}

	return m
}

func (m mngr) Validate() error {
	if m.users == nil {
		return errors.New("repository users should be initialized")
	}

	return nil
}

func (m mngr) MustValidate() {
	if err := m.Validate(); err != nil {
		log.Panic(err)
	}
}

func (m mngr) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return m.db.RunInTx(ctx, opts, f)
	}
}

func (m mngr) Users() Users {
	return m.users
}

func (m mngr) UserEmails() UserEmails {
	return m.emails
}

func (m mngr) UserInvitations() UserInvitations {
	return m.invitations
}
