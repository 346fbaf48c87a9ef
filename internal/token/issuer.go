// Package token mints and validates the short-lived HS256 session tokens
// handed out after a successful passcode login.
package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	apperrors "github.com/edupaila/community-server-go/internal/errors"
	"github.com/edupaila/community-server-go/internal/model"
	"github.com/edupaila/community-server-go/internal/util"
)

const DefaultTTL = 4 * time.Hour

// Identity is what a token vouches for.
type Identity struct {
	OwnerID      string
	OwnerAddress string
	Role         model.Role
}

// Claims is the JWT payload.
type Claims struct {
	jwt.RegisteredClaims
	OwnerAddress string     `json:"email"`
	Role         model.Role `json:"role"`
}

// TestMode lets automated suites authenticate with one fixed token. It is
// never enabled unless explicitly passed to NewIssuer.
type TestMode struct {
	Token    string
	Identity Identity
}

type Option func(*Issuer)

func WithTestMode(tm TestMode) Option {
	return func(i *Issuer) {
		if tm.Token != "" {
			i.testMode = &tm
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(i *Issuer) {
		i.now = now
	}
}

type Issuer struct {
	secret   []byte
	ttl      time.Duration
	now      func() time.Time
	testMode *TestMode
}

func NewIssuer(secret string, ttl time.Duration, opts ...Option) (*Issuer, error) {
	if secret == "" {
		return nil, apperrors.Configuration("Token secret is not configured", nil)
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	i := &Issuer{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i, nil
}

func (i *Issuer) TTL() time.Duration {
	return i.ttl
}

// Issue signs a token for id that expires after the configured TTL.
func (i *Issuer) Issue(id Identity) (string, time.Time, error) {
	now := i.now()
	expiresAt := now.Add(i.ttl)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   id.OwnerID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		OwnerAddress: id.OwnerAddress,
		Role:         id.Role,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Validate verifies signature, algorithm and expiry.
func (i *Issuer) Validate(raw string) (*Identity, error) {
	if raw == "" {
		return nil, apperrors.InvalidToken("Missing token")
	}

	if i.testMode != nil && util.ConstantTimeEqual(raw, i.testMode.Token) {
		id := i.testMode.Identity
		return &id, nil
	}

	var claims Claims
	_, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(i.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, apperrors.InvalidToken("Token expired").WithCause(err)
		}
		return nil, apperrors.InvalidToken("Invalid token").WithCause(err)
	}

	return &Identity{
		OwnerID:      claims.Subject,
		OwnerAddress: claims.OwnerAddress,
		Role:         claims.Role,
	}, nil
}
