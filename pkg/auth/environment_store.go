package auth

import (
	"os"
	"time"
)

// EnvironmentStore implements CredentialStore using environment variables.
// It makes CI and container runs work without any setup step.
type EnvironmentStore struct{}

// NewEnvironmentStore creates a new environment-based credential store
func NewEnvironmentStore() *EnvironmentStore {
	return &EnvironmentStore{}
}

// Store is not supported for environment variables
func (e *EnvironmentStore) Store(account *Account) error {
	return ErrStoreUnavailable
}

// Retrieve gets credentials from environment variables
func (e *EnvironmentStore) Retrieve(name string) (*Account, error) {
	accessKey := os.Getenv("FLOWVAULT_ACCESS_KEY_ID")
	secretKey := os.Getenv("FLOWVAULT_SECRET_ACCESS_KEY")
	region := os.Getenv("FLOWVAULT_REGION")

	if accessKey == "" || secretKey == "" {
		return nil, ErrCredentialsNotFound
	}

	// Environment variables don't carry an account name
	if name == "" {
		name = "default"
	}

	return &Account{
		Name:            name,
		AccessKeyID:     accessKey,
		SecretAccessKey: secretKey,
		Region:          region,
		LastModified:    time.Now(),
	}, nil
}

// List returns a single account if environment variables are set
func (e *EnvironmentStore) List() ([]*Account, error) {
	account, err := e.Retrieve("")
	if err != nil {
		return []*Account{}, nil
	}
	return []*Account{account}, nil
}

// Delete is not supported for environment variables
func (e *EnvironmentStore) Delete(name string) error {
	return ErrStoreUnavailable
}

// Exists checks if environment credentials exist
func (e *EnvironmentStore) Exists(name string) bool {
	accessKey := os.Getenv("FLOWVAULT_ACCESS_KEY_ID")
	secretKey := os.Getenv("FLOWVAULT_SECRET_ACCESS_KEY")
	return accessKey != "" && secretKey != ""
}
