package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignVerify(t *testing.T) {
	m := NewManager("s3cret", "clinic")
	id := uuid.New()

	token, err := m.Sign(Claims{Subject: id, Role: RoleDoctor}, time.Hour)
	require.NoError(t, err)

	claims, err := m.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, id, claims.Subject)
	assert.Equal(t, RoleDoctor, claims.Role)
}

func TestVerify_Expired(t *testing.T) {
	m := NewManager("s3cret", "clinic")

	token, err := m.Sign(Claims{Subject: uuid.New(), Role: RoleAdmin}, -time.Minute)
	require.NoError(t, err)

	_, err = m.Verify(token)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestVerify_Rejects(t *testing.T) {
	m := NewManager("s3cret", "clinic")

	otherKey, err := NewManager("other", "clinic").Sign(Claims{Subject: uuid.New(), Role: RoleAdmin}, time.Hour)
	require.NoError(t, err)

	otherIssuer, err := NewManager("s3cret", "elsewhere").Sign(Claims{Subject: uuid.New(), Role: RoleAdmin}, time.Hour)
	require.NoError(t, err)

	badRole, err := m.Sign(Claims{Subject: uuid.New(), Role: "patient"}, time.Hour)
	require.NoError(t, err)

	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, clinicClaims{
		RegisteredClaims: jwt.RegisteredClaims{Issuer: "clinic", Subject: uuid.NewString()},
		Role:             string(RoleAdmin),
	}).SignedString([]byte("s3cret"))
	require.NoError(t, err)

	badSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, clinicClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "clinic",
			Subject:   "doc-42",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Role: string(RoleDoctor),
	}).SignedString([]byte("s3cret"))
	require.NoError(t, err)

	for name, token := range map[string]string{
		"garbage":      "not.a.token",
		"other key":    otherKey,
		"other issuer": otherIssuer,
		"bad role":     badRole,
		"no expiry":    noExpiry,
		"bad subject":  badSubject,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := m.Verify(token)
			assert.ErrorIs(t, err, ErrTokenInvalid)
		})
	}
}
