package services

import (
	cryptorand "crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/spf13/viper"
	"golang.org/x/crypto/argon2"
)

// PasswordHasher hashes and checks transaction passwords
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, hashed string) bool
}

// Argon2Hasher stores passwords as base64(salt)$base64(argon2id key)
type Argon2Hasher struct {
	Time       uint32
	Memory     uint32
	Threads    uint8
	KeyLength  uint32
	SaltLength int
}

// NewArgon2HasherFromConfig reads the argon2.* viper keys.
func NewArgon2HasherFromConfig() *Argon2Hasher {
	return &Argon2Hasher{
		Time:       uint32(viper.GetInt("argon2.time")),
		Memory:     uint32(viper.GetInt("argon2.memory")),
		Threads:    uint8(viper.GetInt("argon2.threads")),
		KeyLength:  uint32(viper.GetInt("argon2.key_length")),
		SaltLength: viper.GetInt("argon2.salt_length"),
	}
}

func (h *Argon2Hasher) key(password string, salt []byte) []byte {
	return argon2.IDKey([]byte(password), salt, h.Time, h.Memory, h.Threads, h.KeyLength)
}

func (h *Argon2Hasher) Hash(password string) (string, error) {
	salt := make([]byte, h.SaltLength)
	if _, err := cryptorand.Read(salt); err != nil {
		return "", err
	}
	hash := h.key(password, salt)
	return fmt.Sprintf("%s$%s", base64.StdEncoding.EncodeToString(salt), base64.StdEncoding.EncodeToString(hash)), nil
}

func (h *Argon2Hasher) Verify(password, hashed string) bool {
	parts := strings.Split(hashed, "$")
	if len(parts) != 2 {
		return false
	}

	salt, err := base64.StdEncoding.DecodeString(parts[0])
	if err != nil {
		return false
	}

	hash, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return false
	}

	return subtle.ConstantTimeCompare(hash, h.key(password, salt)) == 1
}
