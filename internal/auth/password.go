package auth

import (
	"fmt"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"

	"github.com/example/sportshop/internal/apperr"
)

const (
	MinPasswordLength = 8
	// bcrypt ignores everything past 72 bytes.
	maxPasswordBytes = 72
)

var (
	ErrPasswordTooShort = apperr.Validation(fmt.Sprintf("password must be at least %d characters", MinPasswordLength))
	ErrPasswordTooLong  = apperr.Validation(fmt.Sprintf("password must be at most %d bytes", maxPasswordBytes))
)

// Hasher hashes account passwords with bcrypt at a fixed cost.
type Hasher struct {
	Cost int
}

var defaultHasher = Hasher{Cost: 12}

// ValidatePassword checks the length rules shared by registration and
// password changes.
func ValidatePassword(password string) error {
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return ErrPasswordTooShort
	}
	if len(password) > maxPasswordBytes {
		return ErrPasswordTooLong
	}
	return nil
}

func (h Hasher) Hash(password string) (string, error) {
	if err := ValidatePassword(password); err != nil {
		return "", err
	}
	cost := h.Cost
	if cost < bcrypt.MinCost {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

func (h Hasher) Check(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// HashPassword hashes with the production cost.
func HashPassword(password string) (string, error) {
	return defaultHasher.Hash(password)
}

func CheckPassword(password, hash string) bool {
	return defaultHasher.Check(password, hash)
}
