package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"class-chat-service/internal/models"
)

func TestIssueAndAuthenticate(t *testing.T) {
	p := NewJWTProvider("secret", "platform")
	identity := models.Identity{ID: 7, Role: models.RoleTeacher, DisplayName: "Ms Teacher", ExternalRef: "t-7"}

	token, err := p.IssueToken(identity, time.Hour)
	require.NoError(t, err)

	got, err := p.Authenticate(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, identity, got)
}

func TestAuthenticateRejects(t *testing.T) {
	p := NewJWTProvider("secret", "platform")
	student := models.Identity{ID: 9, Role: models.RoleStudent}

	expired, err := p.IssueToken(student, -time.Minute)
	require.NoError(t, err)

	otherKey, err := NewJWTProvider("other", "platform").IssueToken(student, time.Hour)
	require.NoError(t, err)

	otherIssuer, err := NewJWTProvider("secret", "elsewhere").IssueToken(student, time.Hour)
	require.NoError(t, err)

	badRole, err := p.IssueToken(models.Identity{ID: 9, Role: "admin"}, time.Hour)
	require.NoError(t, err)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		Role:             models.RoleStudent,
		RegisteredClaims: jwt.RegisteredClaims{Subject: "9", Issuer: "platform"},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	cases := map[string]string{
		"garbage":      "not-a-token",
		"expired":      expired,
		"wrong key":    otherKey,
		"wrong issuer": otherIssuer,
		"bad role":     badRole,
		"alg none":     none,
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := p.Authenticate(context.Background(), token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}
