package users

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// User is the account record. The password hash never leaves the process in
// plaintext form; Active gates authentication, EmailConfirmed tracks the
// confirmation flow when multiple emails are disabled.
type User struct {
	bun.BaseModel  `bun:"table:users,alias:usr"`
	ID             uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Username       string     `bun:"username,unique" json:"username,omitempty"`
	Email          string     `bun:"email,unique" json:"email,omitempty"`
	Phone          string     `bun:"phone_number" json:"phone_number,omitempty"`
	PasswordHash   string     `bun:"password_hash" json:"-"`
	Active         bool       `bun:"is_active" json:"is_active,omitempty"`
	EmailConfirmed bool       `bun:"is_email_confirmed" json:"is_email_confirmed,omitempty"`
	LoginAttempts  int        `bun:"login_attempts" json:"login_attempts,omitempty"`
	LoginAttemptAt *time.Time `bun:"login_attempt_at" json:"login_attempt_at,omitempty"`
	LoggedInAt     *time.Time `bun:"loggedin_at" json:"loggedin_at,omitempty"`
	CreatedAt      *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt      *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
	DeletedAt      *time.Time `bun:"deleted_at,soft_delete,nullzero" json:"deleted_at,omitempty"`

	Emails []*UserEmail `bun:"rel:has-many,join:id=user_id" json:"emails,omitempty"`
}

// UserEmail is one address owned by a user, present only when the multiple
// emails feature is enabled. Exactly one UserEmail per user carries
// IsPrimary while the entity is in use.
type UserEmail struct {
	bun.BaseModel `bun:"table:user_emails,alias:uem"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	UserID        *uuid.UUID `bun:"user_id,notnull" json:"user_id,omitempty"`
	User          *User      `bun:"rel:belongs-to,join:user_id=id" json:"user,omitempty"`
	Email         string     `bun:"email,notnull,unique" json:"email,omitempty"`
	Confirmed     bool       `bun:"is_confirmed" json:"is_confirmed,omitempty"`
	IsPrimary     bool       `bun:"is_primary" json:"is_primary,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt     *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
	DeletedAt     *time.Time `bun:"deleted_at,soft_delete,nullzero" json:"deleted_at,omitempty"`
}

// UserInvitation is a pending invite, present only when the invite flow is
// enabled. It is consumed (soft deleted) when the invited user registers.
type UserInvitation struct {
	bun.BaseModel `bun:"table:user_invitations,alias:uin"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Email         string     `bun:"email,notnull" json:"email,omitempty"`
	InvitedByID   *uuid.UUID `bun:"invited_by_id" json:"invited_by_id,omitempty"`
	InvitedBy     *User      `bun:"rel:belongs-to,join:invited_by_id=id" json:"invited_by,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt     *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
	DeletedAt     *time.Time `bun:"deleted_at,soft_delete,nullzero" json:"deleted_at,omitempty"`
}

// PrimaryEmail returns the loaded email record flagged primary, if any
func (u *User) PrimaryEmail() *UserEmail {
	for _, e := range u.Emails {
		if e != nil && e.IsPrimary {
			return e
		}
	}
	return nil
}
