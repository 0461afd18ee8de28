package auth

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"messaging-service/internal/models"
)

// ErrInvalidCredential is returned for any token that does not resolve to
// an identity, without distinguishing why.
var ErrInvalidCredential = errors.New("invalid credential")

// Identity is what a resolved credential grants: who the caller is and in
// which role they act.
type Identity struct {
	ID   string
	Role string
}

// TokenResolver is the boundary to the credential-issuing collaborator.
type TokenResolver interface {
	Resolve(ctx context.Context, token string) (Identity, error)
}

type claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// JWTResolver validates platform-issued bearer tokens locally.
type JWTResolver struct {
	secret []byte
}

// NewJWTResolver constructs a resolver for tokens signed with secret.
func NewJWTResolver(secret string) *JWTResolver {
	return &JWTResolver{secret: []byte(secret)}
}

// Resolve parses and verifies the token, returning the identity and role
// carried in its claims.
func (r *JWTResolver) Resolve(_ context.Context, token string) (Identity, error) {
	parsed, err := jwt.ParseWithClaims(token, &claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidCredential
		}
		return r.secret, nil
	})
	if err != nil || !parsed.Valid {
		return Identity{}, ErrInvalidCredential
	}

	c, ok := parsed.Claims.(*claims)
	if !ok || c.Subject == "" || !models.ValidRole(c.Role) {
		return Identity{}, ErrInvalidCredential
	}
	return Identity{ID: c.Subject, Role: c.Role}, nil
}

// IssueToken signs a token for the given identity. Token issuance belongs
// to the auth collaborator; this exists for local development and tests.
func (r *JWTResolver) IssueToken(identity Identity, ttl time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Role: identity.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})
	return token.SignedString(r.secret)
}
