package secrets

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"

	"golang.org/x/crypto/argon2"
)

// Параметры argon2id едины для паролей и секретов API-ключей.
// Пароли хэшируются с индивидуальной случайной солью (salt||key в одном
// поле); секреты API-ключей — 26 случайных байт, им достаточно общей.
const (
	passwordSaltLen = 16
	saltAPIKey      = "lh-apikey"
)

func hash(salt string, secret []byte) []byte {
	return argon2.IDKey(secret, []byte(salt), 1, 64*1024, 1, 32)
}

func verify(salt string, stored, candidate []byte) bool {
	h := hash(salt, candidate)
	return subtle.ConstantTimeCompare(h, stored) == 1
}

// HashPassword возвращает argon2id-хэш пароля со случайной солью.
// Одинаковые пароли дают разные хэши.
func HashPassword(password string) []byte {
	salt := make([]byte, passwordSaltLen)
	_, _ = rand.Read(salt)
	key := argon2.IDKey([]byte(password), salt, 1, 64*1024, 1, 32)
	return append(salt, key...)
}

// VerifyPassword сверяет пароль с хэшем (постоянное время).
func VerifyPassword(stored []byte, password string) bool {
	if len(stored) <= passwordSaltLen {
		return false
	}
	key := argon2.IDKey([]byte(password), stored[:passwordSaltLen], 1, 64*1024, 1, 32)
	return subtle.ConstantTimeCompare(key, stored[passwordSaltLen:]) == 1
}

// NewAPIKey генерирует пару keyID/secret для API-ключа.
// Хранится только хэш секрета; полный ключ показывается один раз.
func NewAPIKey() (keyID, secret string, secretHash []byte) {
	var raw [32]byte
	_, _ = rand.Read(raw[:])
	keyID = hex.EncodeToString(raw[:6]) // короткий id для поиска
	secret = hex.EncodeToString(raw[6:])
	secretHash = hash(saltAPIKey, []byte(secret))
	return
}

// VerifyAPIKeySecret сверяет секрет ключа с хэшем.
func VerifyAPIKeySecret(stored []byte, secret string) bool {
	return verify(saltAPIKey, stored, []byte(secret))
}

// NewRefreshTokenValue — непрозрачное значение refresh-токена (64 hex-символа).
func NewRefreshTokenValue() string {
	var raw [32]byte
	_, _ = rand.Read(raw[:])
	return hex.EncodeToString(raw[:])
}
