package tracking

import (
	"crypto/sha256"
	"encoding/hex"
)

// DefaultSalt подставляется, если соль не сконфигурирована. В продакшене задайте IP_HASH_SALT.
const DefaultSalt = "default-salt-change-in-production"

// Длина хеша IP в hex-символах
const ipHashLength = 16

// IPAnonymizer хеширует IP с солью, чтобы считать уникальных посетителей без хранения адресов
type IPAnonymizer struct {
	salt        string
	defaultSalt bool
}

// NewIPAnonymizer создаёт анонимизатор. Пустая соль заменяется на DefaultSalt.
func NewIPAnonymizer(salt string) *IPAnonymizer {
	if salt == "" {
		salt = DefaultSalt
	}
	return &IPAnonymizer{salt: salt, defaultSalt: salt == DefaultSalt}
}

// Hash возвращает первые 16 hex-символов sha256(ip + salt)
func (a *IPAnonymizer) Hash(ip string) string {
	sum := sha256.Sum256([]byte(ip + a.salt))
	return hex.EncodeToString(sum[:])[:ipHashLength]
}

// UsingDefaultSalt сообщает, что используется соль по умолчанию (стоит предупредить в логах)
func (a *IPAnonymizer) UsingDefaultSalt() bool {
	return a.defaultSalt
}
