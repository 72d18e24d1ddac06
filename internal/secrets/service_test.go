package secrets_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"linkhub/internal/secrets"
)

func TestPasswordHashVerify(t *testing.T) {
	h := secrets.HashPassword("correct horse battery staple")

	assert.True(t, secrets.VerifyPassword(h, "correct horse battery staple"))
	assert.False(t, secrets.VerifyPassword(h, "wrong password"))
	assert.False(t, secrets.VerifyPassword(nil, "correct horse battery staple"))
	assert.False(t, secrets.VerifyPassword(h[:8], "correct horse battery staple"))
}

// Соль индивидуальна: одинаковые пароли дают разные хэши,
// каждый из которых проходит проверку.
func TestPasswordHashesAreSalted(t *testing.T) {
	h1 := secrets.HashPassword("correct horse battery staple")
	h2 := secrets.HashPassword("correct horse battery staple")

	assert.NotEqual(t, h1, h2)
	assert.True(t, secrets.VerifyPassword(h1, "correct horse battery staple"))
	assert.True(t, secrets.VerifyPassword(h2, "correct horse battery staple"))
}

func TestNewAPIKey(t *testing.T) {
	keyID, secret, hash := secrets.NewAPIKey()

	require.Len(t, keyID, 12)
	require.Len(t, secret, 52)
	require.NotEmpty(t, hash)

	assert.True(t, secrets.VerifyAPIKeySecret(hash, secret))
	assert.False(t, secrets.VerifyAPIKeySecret(hash, secret+"x"))

	// каждая генерация уникальна
	keyID2, secret2, _ := secrets.NewAPIKey()
	assert.NotEqual(t, keyID, keyID2)
	assert.NotEqual(t, secret, secret2)
}

func TestNewRefreshTokenValue(t *testing.T) {
	v1 := secrets.NewRefreshTokenValue()
	v2 := secrets.NewRefreshTokenValue()

	require.Len(t, v1, 64)
	assert.NotEqual(t, v1, v2)
}
