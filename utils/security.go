package utils

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
)

func GenerateSalt() ([]byte, error) {
	salt := make([]byte, 16)
	_, err := rand.Read(salt)
	return salt, err
}

func HashWithSalt(password string, salt []byte) string {
	hash := sha256.Sum256(append([]byte(password), salt...))
	return hex.EncodeToString(hash[:])
}
