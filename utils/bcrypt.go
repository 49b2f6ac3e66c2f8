package utils

import "golang.org/x/crypto/bcrypt"

// HashPin hashes a signer's signing PIN for storage.
func HashPin(pin string) ([]byte, error) {
	return bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
}

// ComparePin returns nil when pin matches the stored hash.
func ComparePin(hashed string, pin string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(pin))
}
