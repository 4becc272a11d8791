package token

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mu-assistant-go/internal/model"
)

func TestGenerateAndVerify(t *testing.T) {
	m := NewJWTManager("secret", 1)
	user := model.User{UID: "u1", Name: "Selam", MuID: "MU-123", Email: "selam@example.com", IsPremium: true}

	tok, err := m.GenerateToken(user)
	require.NoError(t, err)

	claims, err := m.VerifyToken(tok)
	require.NoError(t, err)
	assert.Equal(t, &user, claims.User())
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	tok, err := NewJWTManager("secret", 1).GenerateToken(model.User{UID: "u1"})
	require.NoError(t, err)

	_, err = NewJWTManager("other", 1).VerifyToken(tok)
	assert.Error(t, err)
}

func TestParseUnverified(t *testing.T) {
	tok, err := NewJWTManager("secret", 1).GenerateToken(model.User{UID: "u1", Name: "Selam"})
	require.NoError(t, err)

	claims, err := ParseUnverified(tok)
	require.NoError(t, err)
	assert.Equal(t, "Selam", claims.Name)

	expired, err := NewJWTManager("secret", -1).GenerateToken(model.User{UID: "u1"})
	require.NoError(t, err)
	_, err = ParseUnverified(expired)
	assert.Error(t, err)

	_, err = ParseUnverified("not-a-token")
	assert.Error(t, err)
}
