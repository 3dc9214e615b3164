package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// sealVersion is bumped whenever the persisted layout changes; older seals
// are treated as corrupt.
const sealVersion = 1

var ErrBadSeal = errors.New("session seal is invalid")

type sealClaims struct {
	Version  int    `json:"ver"`
	TenantID string `json:"tid,omitempty"`
	jwt.RegisteredClaims
}

// Codec signs and verifies the session record with HS256.
type Codec struct {
	key []byte
	now func() time.Time
}

func NewCodec(secret string) *Codec {
	return &Codec{key: []byte(secret), now: time.Now}
}

// Seal signs the identity part of s.
func (c *Codec) Seal(s Session) (string, error) {
	claims := sealClaims{
		Version: sealVersion,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   s.User,
			IssuedAt:  jwt.NewNumericDate(s.CreatedAt),
			ExpiresAt: jwt.NewNumericDate(s.ExpiresAt),
		},
	}
	if s.Tenant != nil {
		claims.TenantID = s.Tenant.ID
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.key)
	if err != nil {
		return "", fmt.Errorf("failed to seal session: %w", err)
	}
	return signed, nil
}

// Open verifies a seal. An expired seal returns ErrExpired; anything else
// that fails verification returns ErrBadSeal.
func (c *Codec) Open(token string) (*Session, string, error) {
	var claims sealClaims
	_, err := jwt.ParseWithClaims(token, &claims,
		func(t *jwt.Token) (any, error) { return c.key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, "", ErrExpired
	case err != nil:
		return nil, "", fmt.Errorf("%w: %v", ErrBadSeal, err)
	}
	if claims.Version != sealVersion {
		return nil, "", fmt.Errorf("%w: version %d", ErrBadSeal, claims.Version)
	}

	s := &Session{
		User:      claims.Subject,
		ExpiresAt: claims.ExpiresAt.Time,
	}
	if claims.IssuedAt != nil {
		s.CreatedAt = claims.IssuedAt.Time
	}
	return s, claims.TenantID, nil
}
