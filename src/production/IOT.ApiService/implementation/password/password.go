package password

import (
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// Encoder hashes and verifies passwords using a delegating scheme: every
// encoded value carries an "{algorithm}" prefix so the stored format can
// evolve without rehashing the world.
type Encoder struct{}

const bcryptPrefix = "{bcrypt}"

func NewEncoder() *Encoder {
	return &Encoder{}
}

// Encode hashes a plaintext password with the current default algorithm.
func (e *Encoder) Encode(plaintext string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return bcryptPrefix + string(hash), nil
}

// Matches verifies a plaintext password against an encoded hash. Unknown or
// missing prefixes never match.
func (e *Encoder) Matches(plaintext, encoded string) bool {
	if !strings.HasPrefix(encoded, bcryptPrefix) {
		return false
	}
	hash := strings.TrimPrefix(encoded, bcryptPrefix)
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext)) == nil
}
