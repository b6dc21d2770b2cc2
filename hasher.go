package users

import (
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// DefaultHashCost is the bcrypt cost used when a Manager is built without
// an explicit PasswordHashCost setting.
const DefaultHashCost = 14

// PasswordHasher hashes and verifies passwords. Implementations must never
// log or persist the plaintext.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(password, hash string) error
}

// BcryptHasher is the default PasswordHasher
type BcryptHasher struct {
	Cost int
}

// NewBcryptHasher returns a bcrypt backed hasher. A cost outside bcrypt's
// supported range falls back to DefaultHashCost.
func NewBcryptHasher(cost int) BcryptHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultHashCost
	}
	return BcryptHasher{Cost: cost}
}

// Hash will generate a password hash
func (b BcryptHasher) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrNoEmptyString
	}

	cost := b.Cost
	if cost == 0 {
		cost = DefaultHashCost
	}

	h, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	return string(h), err
}

// Compare will validate the given cleartext password matches the hashed
// password. Malformed hashes compare as a mismatch, they do not panic or
// leak why the comparison failed.
func (b BcryptHasher) Compare(password, hash string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		// a malformed hash string gets the same outcome as a mismatch
		return ErrMismatchedHashAndPassword
	}
	return nil
}

var defaultHasher = NewBcryptHasher(DefaultHashCost)

// HashPassword will generate a password hash using the default hasher
func HashPassword(password string) (string, error) {
	return defaultHasher.Hash(password)
}

// ComparePasswordAndHash will validate the given cleartext
// password matches the hashed password
func ComparePasswordAndHash(password, hash string) error {
	return defaultHasher.Compare(password, hash)
}

// RandomPasswordHash is a temporary password, used as a placeholder hash
// for accounts created through the invite flow
func RandomPasswordHash() string {
	pwd := uuid.New()

	h, err := HashPassword(pwd.String())
	if err != nil {
		return RandomPasswordHash()
	}

	return h
}
