package security

import "golang.org/x/crypto/bcrypt"

// HashOperPassword bcrypt-hashes an operator password for storage in the
// YAML oper block (cmd/ircd's config), so plaintext passwords never sit on
// disk.
func HashOperPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// CheckOperPassword compares a plaintext OPER attempt against the stored
// bcrypt hash, constant-time by virtue of bcrypt.CompareHashAndPassword.
func CheckOperPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
