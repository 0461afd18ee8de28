package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"messaging-service/internal/models"
)

func TestResolveRoundTrip(t *testing.T) {
	resolver := NewJWTResolver("secret")
	token, err := resolver.IssueToken(Identity{ID: "doctor-7", Role: models.RoleDoctor}, time.Minute)
	require.NoError(t, err)

	identity, err := resolver.Resolve(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "doctor-7", identity.ID)
	assert.Equal(t, models.RoleDoctor, identity.Role)
}

func TestResolveRejectsWrongSecret(t *testing.T) {
	issuer := NewJWTResolver("secret-a")
	token, err := issuer.IssueToken(Identity{ID: "patient-1", Role: models.RolePatient}, time.Minute)
	require.NoError(t, err)

	_, err = NewJWTResolver("secret-b").Resolve(context.Background(), token)
	assert.ErrorIs(t, err, ErrInvalidCredential)
}

func TestResolveRejectsExpiredToken(t *testing.T) {
	resolver := NewJWTResolver("secret")
	token, err := resolver.IssueToken(Identity{ID: "patient-1", Role: models.RolePatient}, -time.Minute)
	require.NoError(t, err)

	_, err = resolver.Resolve(context.Background(), token)
	assert.ErrorIs(t, err, ErrInvalidCredential)
}

func TestResolveRejectsUnknownRole(t *testing.T) {
	resolver := NewJWTResolver("secret")
	token, err := resolver.IssueToken(Identity{ID: "x-1", Role: "nurse"}, time.Minute)
	require.NoError(t, err)

	_, err = resolver.Resolve(context.Background(), token)
	assert.ErrorIs(t, err, ErrInvalidCredential)
}

func TestResolveRejectsGarbage(t *testing.T) {
	_, err := NewJWTResolver("secret").Resolve(context.Background(), "not-a-token")
	assert.ErrorIs(t, err, ErrInvalidCredential)
}
