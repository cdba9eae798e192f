package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Access token validation failures. These are typed outcomes, not internal
// errors: the transport layer maps all of them to 401.
var (
	// ErrTokenExpired indicates the access token is past its expiry.
	ErrTokenExpired = errors.New("access token expired")
	// ErrTokenMalformed indicates the token could not be parsed or its
	// signature did not verify.
	ErrTokenMalformed = errors.New("access token malformed")
	// ErrTokenSubjectInvalid indicates the token carries no usable subject.
	ErrTokenSubjectInvalid = errors.New("access token subject invalid")
)

// TokenIssuer signs and validates short-lived access tokens bound to a user
// identity.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenIssuer creates a TokenIssuer with the given HMAC secret and access
// token lifetime.
func NewTokenIssuer(secret []byte, ttl time.Duration) *TokenIssuer {
	return &TokenIssuer{
		secret: secret,
		ttl:    ttl,
		now:    time.Now,
	}
}

// Issue signs an HS256 access token for the user identifier.
func (i *TokenIssuer) Issue(userID string) (string, error) {
	now := i.now()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
	})

	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return signed, nil
}

// Validate parses and verifies an access token, returning the user
// identifier it is bound to. Expired tokens are never accepted.
func (i *TokenIssuer) Validate(tokenString string) (string, error) {
	claims := &jwt.RegisteredClaims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return i.secret, nil
	}, jwt.WithTimeFunc(i.now))

	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return "", ErrTokenExpired
	case err != nil:
		return "", ErrTokenMalformed
	case !token.Valid:
		return "", ErrTokenMalformed
	}

	if claims.Subject == "" {
		return "", ErrTokenSubjectInvalid
	}
	return claims.Subject, nil
}
