package users

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-errors"
)

// TokenPurpose discriminates the account flow a token was minted for. A
// token minted for one purpose never verifies against another.
type TokenPurpose string

const (
	// PurposeConfirmEmail is minted for email confirmation links
	PurposeConfirmEmail TokenPurpose = "confirm-email"
	// PurposeResetPassword is minted for password reset links
	PurposeResetPassword TokenPurpose = "reset-password"
	// PurposeInvite is minted for invitation links
	PurposeInvite TokenPurpose = "invite"
)

// TokenManager mints and verifies the signed, expiring tokens embedded in
// confirmation, reset, and invitation links. Tokens are not persisted;
// validity is computed at verification time.
type TokenManager interface {
	Generate(subjectID string, purpose TokenPurpose) (string, error)
	Verify(token string, maxAge time.Duration, purpose TokenPurpose) (string, error)
}

// actionClaims is the payload of an account action token
type actionClaims struct {
	jwt.RegisteredClaims
	Purpose TokenPurpose `json:"purpose"`
}

// TokenManagerImpl implements TokenManager over HS256 JWTs signed with an
// application-wide secret key. Rotating the key invalidates every
// outstanding token.
type TokenManagerImpl struct {
	signingKey []byte
	issuer     string
	logger     Logger
	now        func() time.Time
}

// NewTokenManager creates a new TokenManager instance
func NewTokenManager(signingKey []byte, issuer string, logger Logger) *TokenManagerImpl {
	if logger == nil {
		logger = defLogger{}
	}
	return &TokenManagerImpl{
		signingKey: signingKey,
		issuer:     issuer,
		logger:     logger,
		now:        time.Now,
	}
}

// WithClock overrides the clock, used by tests to force expiry
func (tm *TokenManagerImpl) WithClock(now func() time.Time) *TokenManagerImpl {
	if now != nil {
		tm.now = now
	}
	return tm
}

// Generate mints a signed token carrying the subject id, the purpose tag,
// and the issue timestamp
func (tm *TokenManagerImpl) Generate(subjectID string, purpose TokenPurpose) (string, error) {
	if subjectID == "" {
		return "", errors.New("token subject must not be empty", errors.CategoryBadInput)
	}
	if purpose == "" {
		return "", errors.New("token purpose must not be empty", errors.CategoryBadInput)
	}

	claims := &actionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   tm.issuer,
			Subject:  subjectID,
			IssuedAt: jwt.NewNumericDate(tm.now()),
		},
		Purpose: purpose,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signed, err := token.SignedString(tm.signingKey)
	if err != nil {
		return "", errors.Wrap(err, errors.CategoryInternal, "failed to sign action token")
	}

	return signed, nil
}

// Verify parses and validates a token string, returning the subject id.
// It fails with ErrTokenExpired once maxAge has elapsed since issuance and
// with ErrTokenInvalid for signature, decoding, or purpose mismatches.
func (tm *TokenManagerImpl) Verify(tokenString string, maxAge time.Duration, purpose TokenPurpose) (string, error) {
	parserOptions := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	}
	if tm.issuer != "" {
		parserOptions = append(parserOptions, jwt.WithIssuer(tm.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &actionClaims{}, func(t *jwt.Token) (any, error) {
		return tm.signingKey, nil
	}, parserOptions...)

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrTokenExpired
		}
		return "", errors.Wrap(err, ErrTokenInvalid.Category, ErrTokenInvalid.Message).
			WithTextCode(ErrTokenInvalid.TextCode)
	}

	claims, ok := token.Claims.(*actionClaims)
	if !ok || !token.Valid {
		tm.logger.Error("token manager could not decode claims")
		return "", ErrTokenInvalid
	}

	if claims.Subject == "" || claims.IssuedAt == nil {
		return "", ErrTokenInvalid
	}

	// cross purpose isolation: a reset token must never confirm an email
	if claims.Purpose != purpose {
		return "", ErrTokenInvalid
	}

	if maxAge > 0 && tm.now().Sub(claims.IssuedAt.Time) > maxAge {
		return "", ErrTokenExpired
	}

	return claims.Subject, nil
}

var _ TokenManager = (*TokenManagerImpl)(nil)
