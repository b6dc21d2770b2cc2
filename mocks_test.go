package users_test

import (
	"context"
	"time"

	"github.com/goliatone/go-users"
	"github.com/stretchr/testify/mock"
)

// MockUserStore implements users.UserStore
type MockUserStore struct {
	mock.Mock
}

func (m *MockUserStore) FindByUsername(ctx context.Context, username string) (*users.User, error) {
	args := m.Called(ctx, username)
	user, _ := args.Get(0).(*users.User)
	return user, args.Error(1)
}

func (m *MockUserStore) FindByEmail(ctx context.Context, email string) (*users.User, error) {
	args := m.Called(ctx, email)
	user, _ := args.Get(0).(*users.User)
	return user, args.Error(1)
}

func (m *MockUserStore) TrackAttemptedLogin(ctx context.Context, user *users.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockUserStore) TrackSuccessfulLogin(ctx context.Context, user *users.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

// MockTokenManager implements users.TokenManager
type MockTokenManager struct {
	mock.Mock
}

func (m *MockTokenManager) Generate(subjectID string, purpose users.TokenPurpose) (string, error) {
	args := m.Called(subjectID, purpose)
	return args.String(0), args.Error(1)
}

func (m *MockTokenManager) Verify(token string, maxAge time.Duration, purpose users.TokenPurpose) (string, error) {
	args := m.Called(token, maxAge, purpose)
	return args.String(0), args.Error(1)
}

// sentEmail captures one outbound notification
type sentEmail struct {
	To      string
	Subject string
	Body    string
}

// capturingMailer records every notification instead of sending it
type capturingMailer struct {
	sent []sentEmail
	err  error
}

func (c *capturingMailer) Send(ctx context.Context, to, subject, body string) error {
	if c.err != nil {
		return c.err
	}
	c.sent = append(c.sent, sentEmail{To: to, Subject: subject, Body: body})
	return nil
}

// TestIdentity is a bare identity value for availability checks
type TestIdentity struct {
	id       string
	username string
	email    string
}

func (t TestIdentity) ID() string       { return t.id }
func (t TestIdentity) Username() string { return t.username }
func (t TestIdentity) Email() string    { return t.email }
