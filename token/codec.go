// Package token issues and verifies the signed bearer tokens that carry a
// caller's identity between requests.
//
// Tokens are HS256 JWTs. Verification needs only the process signing key,
// so no per-request storage lookup takes place.
package token

import (
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/danya/gymcrm/internal/shared"
	"github.com/danya/gymcrm/models"
	"github.com/golang-jwt/jwt/v5"
)

// DefaultTTL is the validity window of an issued token
const DefaultTTL = 8_000_000 * time.Millisecond

// keySize is the length of a generated HMAC-SHA256 key in bytes
const keySize = 32

// SigningKey is the symmetric secret shared by Issue and Verify.
// It is created once at startup and never changes; the zero value is unusable.
type SigningKey struct {
	secret []byte
}

// NewSigningKey generates a random key from crypto/rand
func NewSigningKey() (SigningKey, error) {
	b := make([]byte, keySize)
	if _, err := rand.Read(b); err != nil {
		return SigningKey{}, fmt.Errorf("generate signing key: %w", err)
	}
	return SigningKey{secret: b}, nil
}

// SigningKeyFromBytes builds a key from caller supplied material.
// The input is copied so later writes to b do not affect the key.
func SigningKeyFromBytes(b []byte) (SigningKey, error) {
	if len(b) < keySize {
		return SigningKey{}, fmt.Errorf("signing key must be at least %d bytes, got %d", keySize, len(b))
	}
	secret := make([]byte, len(b))
	copy(secret, b)
	return SigningKey{secret: secret}, nil
}

// ClaimSet is the identity carried by a token
type ClaimSet struct {
	Subject   string
	Roles     []models.RoleName
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// claims is the JWT body. Unknown fields in incoming tokens are ignored.
type claims struct {
	Username string   `json:"username"`
	Roles    []string `json:"roles"`
	jwt.RegisteredClaims
}

// Codec signs and verifies tokens. It holds no mutable state and is safe
// for concurrent use.
type Codec struct {
	key SigningKey
	ttl time.Duration
	now func() time.Time
}

// Option configures a Codec
type Option func(*Codec)

// WithClock overrides the time source used for iat, exp and expiry checks
func WithClock(now func() time.Time) Option {
	return func(c *Codec) {
		c.now = now
	}
}

// NewCodec creates a codec; a non-positive ttl selects DefaultTTL. Token
// timestamps have whole-second precision, so ttl is rounded up to a whole
// number of seconds.
func NewCodec(key SigningKey, ttl time.Duration, opts ...Option) *Codec {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if rem := ttl % time.Second; rem != 0 {
		ttl += time.Second - rem
	}
	c := &Codec{
		key: key,
		ttl: ttl,
		now: time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// TTL returns the validity window applied by Issue
func (c *Codec) TTL() time.Duration {
	return c.ttl
}

// Issue signs cs. IssuedAt and ExpiresAt on the input are ignored and
// replaced by now and now+TTL, truncated to whole seconds.
func (c *Codec) Issue(cs ClaimSet) (string, error) {
	if len(c.key.secret) == 0 {
		return "", errors.New("signing key not initialized")
	}

	issuedAt := c.now().UTC().Truncate(time.Second)
	expiresAt := issuedAt.Add(c.ttl)

	var roles []string
	if cs.Roles != nil {
		roles = make([]string, len(cs.Roles))
		for i, r := range cs.Roles {
			roles[i] = string(r)
		}
	}

	body := claims{
		Username: cs.Subject,
		Roles:    roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   cs.Subject,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, body).SignedString(c.key.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify checks signature, algorithm and expiry and returns the claims.
// Every failure is reported as shared.ErrInvalidToken.
func (c *Codec) Verify(tokenString string) (*ClaimSet, error) {
	if len(c.key.secret) == 0 {
		return nil, shared.Wrap(shared.ErrInvalidToken, errors.New("signing key not initialized"))
	}

	body := &claims{}
	_, err := jwt.ParseWithClaims(tokenString, body,
		func(*jwt.Token) (interface{}, error) {
			return c.key.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		return nil, shared.Wrap(shared.ErrInvalidToken, err)
	}

	subject := body.Username
	if subject == "" {
		subject = body.Subject
	}
	if subject == "" {
		return nil, shared.Wrap(shared.ErrInvalidToken, errors.New("token has no subject"))
	}

	cs := &ClaimSet{
		Subject:   subject,
		ExpiresAt: body.ExpiresAt.Time.UTC(),
	}
	if body.IssuedAt != nil {
		cs.IssuedAt = body.IssuedAt.Time.UTC()
	}
	if body.Roles != nil {
		cs.Roles = make([]models.RoleName, len(body.Roles))
		for i, r := range body.Roles {
			cs.Roles[i] = models.RoleName(r)
		}
	}
	return cs, nil
}
