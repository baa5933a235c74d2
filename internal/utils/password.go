package utils

import "golang.org/x/crypto/bcrypt"

// HashPassword returns a bcrypt hash of the plaintext using the given cost.
// bcrypt salts internally, so two hashes of the same password differ.
func HashPassword(plain string, cost int) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(plain), cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// VerifyPassword safely compares a bcrypt hash and a plain password.
// A malformed stored hash yields false, never an error.
func VerifyPassword(hash, plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}

// HashRefreshSecret hashes an opaque refresh secret with the same bcrypt
// primitive used for passwords. Refresh secrets are high-entropy already,
// but a salted one-way store keeps a leaked token table from being replayed.
func HashRefreshSecret(secret string, cost int) (string, error) {
	return HashPassword(secret, cost)
}

// VerifyRefreshSecret compares a presented refresh secret against its
// stored bcrypt hash.
func VerifyRefreshSecret(hash, secret string) bool {
	return VerifyPassword(hash, secret)
}
