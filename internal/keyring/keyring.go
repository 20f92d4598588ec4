package keyring

import (
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"

	"github.com/julianstephens/habitline/internal/constants"
)

var (
	// ErrNotFound is returned when no credentials are found in the keyring
	ErrNotFound = errors.New("credentials not found in keyring")
	// ErrKeyringUnavailable is returned when the OS keyring is not available
	ErrKeyringUnavailable = errors.New("OS keyring is not available")
)

// Secret names an entry stored under the application's keyring service.
type Secret string

const (
	// DatabaseURL is the password-less postgres connection string.
	DatabaseURL Secret = constants.DefaultKeyringUser
	// RedisPassword authenticates the streak batch lock client.
	RedisPassword Secret = constants.RedisKeyringUser
)

// Get retrieves a secret from the OS keyring.
// Returns ErrNotFound if nothing is stored under that name.
func Get(secret Secret) (string, error) {
	value, err := keyring.Get(constants.AppName, string(secret))
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("%w: %v", ErrKeyringUnavailable, err)
	}
	return value, nil
}

// Set stores a secret in the OS keyring.
func Set(secret Secret, value string) error {
	if value == "" {
		return fmt.Errorf("%s cannot be empty", secret)
	}
	if err := keyring.Set(constants.AppName, string(secret), value); err != nil {
		return fmt.Errorf("failed to store %s in keyring: %w", secret, err)
	}
	return nil
}

// Delete removes a secret from the OS keyring.
func Delete(secret Secret) error {
	if err := keyring.Delete(constants.AppName, string(secret)); err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to delete %s from keyring: %w", secret, err)
	}
	return nil
}

// GetConnectionString retrieves the database connection string from the OS keyring.
func GetConnectionString() (string, error) {
	return Get(DatabaseURL)
}

// SetConnectionString stores the database connection string in the OS keyring.
func SetConnectionString(connStr string) error {
	return Set(DatabaseURL, connStr)
}

// DeleteConnectionString removes the database connection string from the OS keyring.
func DeleteConnectionString() error {
	return Delete(DatabaseURL)
}

// IsAvailable checks if the OS keyring is available on the current system.
// This is a best-effort check and may not catch all failure scenarios.
func IsAvailable() bool {
	_, err := keyring.Get(constants.AppName, "test-availability")
	// ErrNotFound means the keyring answered but is empty
	return err == nil || errors.Is(err, keyring.ErrNotFound)
}
