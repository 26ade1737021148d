package auth

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestCredentialManager(t *testing.T) {
	// Use mock manager for reliable testing
	manager, mockStore := NewMockManager()

	account := &Account{
		Name:            "archive",
		AccessKeyID:     "AKIAEXAMPLE12345",
		SecretAccessKey: "secret_example_67890",
		Region:          "us-east-1",
		LastModified:    time.Now(),
	}

	err := manager.Store(account)
	if err != nil {
		t.Errorf("Failed to store account: %v", err)
	}

	retrieved, err := manager.Retrieve("archive")
	if err != nil {
		t.Errorf("Failed to retrieve account: %v", err)
	}

	if retrieved.Name != account.Name {
		t.Errorf("Name mismatch: got %s, want %s", retrieved.Name, account.Name)
	}
	if retrieved.AccessKeyID != account.AccessKeyID {
		t.Errorf("AccessKeyID mismatch: got %s, want %s", retrieved.AccessKeyID, account.AccessKeyID)
	}
	if retrieved.SecretAccessKey != account.SecretAccessKey {
		t.Errorf("SecretAccessKey mismatch: got %s, want %s", retrieved.SecretAccessKey, account.SecretAccessKey)
	}

	accounts, err := manager.List()
	if err != nil {
		t.Errorf("Failed to list accounts: %v", err)
	}
	if len(accounts) == 0 {
		t.Error("Expected at least one account in list")
	}

	// Test sanitization
	sanitized := SanitizeAccount(account)
	if sanitized.AccessKeyID == account.AccessKeyID {
		t.Error("AccessKeyID should be masked")
	}
	if sanitized.SecretAccessKey == account.SecretAccessKey {
		t.Error("SecretAccessKey should be masked")
	}
	if sanitized.Name != account.Name {
		t.Error("Name should not be masked")
	}

	err = manager.Delete("archive")
	if err != nil {
		t.Errorf("Failed to delete account: %v", err)
	}

	_, err = manager.Retrieve("archive")
	if err == nil {
		t.Error("Expected error retrieving deleted account")
	}

	if mockStore.Count() != 0 {
		t.Errorf("Expected 0 accounts after deletion, got %d", mockStore.Count())
	}
}

func TestEncryptedFileStore(t *testing.T) {
	tempFile := filepath.Join(t.TempDir(), "test_creds.enc")

	os.Setenv("FLOWVAULT_PASSPHRASE", "test_passphrase_123")
	defer os.Unsetenv("FLOWVAULT_PASSPHRASE")

	store, err := NewEncryptedFileStore(tempFile)
	if err != nil {
		t.Fatalf("Failed to create encrypted store: %v", err)
	}

	account := &Account{
		Name:            "encrypted_account",
		AccessKeyID:     "encrypted_access_key",
		SecretAccessKey: "encrypted_secret_key",
	}

	err = store.Store(account)
	if err != nil {
		t.Errorf("Failed to store in encrypted file: %v", err)
	}

	retrieved, err := store.Retrieve("encrypted_account")
	if err != nil {
		t.Errorf("Failed to retrieve from encrypted file: %v", err)
	}

	if retrieved.SecretAccessKey != account.SecretAccessKey {
		t.Errorf("SecretAccessKey mismatch after encryption/decryption")
	}

	// Verify file is actually encrypted
	fileContent, err := os.ReadFile(tempFile)
	if err != nil {
		t.Fatal(err)
	}

	if bytes.Contains(fileContent, []byte("encrypted_access_key")) {
		t.Error("File contains plaintext access key")
	}
	if bytes.Contains(fileContent, []byte("encrypted_secret_key")) {
		t.Error("File contains plaintext secret key")
	}
}

func TestEnvironmentStore(t *testing.T) {
	os.Setenv("FLOWVAULT_ACCESS_KEY_ID", "env_access_key")
	os.Setenv("FLOWVAULT_SECRET_ACCESS_KEY", "env_secret_key")
	defer os.Unsetenv("FLOWVAULT_ACCESS_KEY_ID")
	defer os.Unsetenv("FLOWVAULT_SECRET_ACCESS_KEY")

	store := NewEnvironmentStore()

	account, err := store.Retrieve("")
	if err != nil {
		t.Errorf("Failed to retrieve from environment: %v", err)
	}

	if account.AccessKeyID != "env_access_key" {
		t.Errorf("AccessKeyID mismatch: got %s, want env_access_key", account.AccessKeyID)
	}
	if account.SecretAccessKey != "env_secret_key" {
		t.Errorf("SecretAccessKey mismatch: got %s, want env_secret_key", account.SecretAccessKey)
	}

	// Test that store is not supported
	err = store.Store(&Account{})
	if err != ErrStoreUnavailable {
		t.Error("Expected ErrStoreUnavailable for environment store")
	}
}

func TestManagerWithEncryptedStore(t *testing.T) {
	tempDir := t.TempDir()

	os.Setenv("FLOWVAULT_PASSPHRASE", "test_passphrase_manager")
	defer os.Unsetenv("FLOWVAULT_PASSPHRASE")

	encryptedStore, err := NewEncryptedFileStore(filepath.Join(tempDir, "credentials.enc"))
	if err != nil {
		t.Fatalf("Failed to create encrypted store: %v", err)
	}

	manager := NewMockManagerWithStores(encryptedStore)

	account := &Account{
		Name:            "archive",
		AccessKeyID:     "real_access_key",
		SecretAccessKey: "real_secret_key",
		Region:          "eu-west-1",
		LastModified:    time.Now(),
	}

	err = manager.Store(account)
	if err != nil {
		t.Fatalf("Failed to store account: %v", err)
	}

	accounts, err := manager.List()
	if err != nil {
		t.Fatalf("Failed to list accounts: %v", err)
	}
	if len(accounts) != 1 {
		t.Errorf("Expected 1 account in list, got %d", len(accounts))
	}

	retrieved, err := manager.Retrieve("archive")
	if err != nil {
		t.Fatalf("Failed to retrieve account: %v", err)
	}

	if retrieved.Name != account.Name {
		t.Errorf("Name mismatch: got %s, want %s", retrieved.Name, account.Name)
	}
	if retrieved.AccessKeyID != account.AccessKeyID {
		t.Errorf("AccessKeyID mismatch: got %s, want %s", retrieved.AccessKeyID, account.AccessKeyID)
	}
}

func TestMockStore(t *testing.T) {
	store := NewMockStore()

	accounts, err := store.List()
	if err != nil {
		t.Errorf("Failed to list empty store: %v", err)
	}
	if len(accounts) != 0 {
		t.Errorf("Expected 0 accounts, got %d", len(accounts))
	}

	account := &Account{
		Name:            "mock_account",
		AccessKeyID:     "mock_access_key",
		SecretAccessKey: "mock_secret_key",
	}

	err = store.Store(account)
	if err != nil {
		t.Errorf("Failed to store account: %v", err)
	}

	if store.Count() != 1 {
		t.Errorf("Expected 1 account, got %d", store.Count())
	}

	if !store.Exists("mock_account") {
		t.Error("Account should exist")
	}

	// Test error injection
	store.ListError = fmt.Errorf("injected error")
	_, err = store.List()
	if err == nil || err.Error() != "injected error" {
		t.Error("Expected injected error")
	}
}
