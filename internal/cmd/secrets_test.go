package main

import (
	"testing"

	"github.com/fernet/fernet-go"
)

func TestLoadCredentialsDecryptsEnvironment(t *testing.T) {
	var key fernet.Key
	if err := key.Generate(); err != nil {
		t.Fatalf("generate key: %v", err)
	}
	username, err := fernet.EncryptAndSign([]byte("indexer@example.org"), &key)
	if err != nil {
		t.Fatalf("encrypt username: %v", err)
	}
	password, err := fernet.EncryptAndSign([]byte("hunter2"), &key)
	if err != nil {
		t.Fatalf("encrypt password: %v", err)
	}

	t.Setenv("FERNET_KEY", key.Encode())
	t.Setenv("FAMILY_SEARCH_USERNAME", string(username))
	t.Setenv("FAMILY_SEARCH_PASSWORD", string(password))

	creds, err := loadCredentials()
	if err != nil {
		t.Fatalf("loadCredentials: %v", err)
	}
	if creds.Username != "indexer@example.org" || creds.Password != "hunter2" {
		t.Errorf("credentials = %+v", creds)
	}
}

func TestLoadCredentialsRejectsBadCiphertext(t *testing.T) {
	var key fernet.Key
	if err := key.Generate(); err != nil {
		t.Fatalf("generate key: %v", err)
	}
	t.Setenv("FERNET_KEY", key.Encode())
	t.Setenv("FAMILY_SEARCH_USERNAME", "not-a-token")
	t.Setenv("FAMILY_SEARCH_PASSWORD", "not-a-token")

	if _, err := loadCredentials(); err == nil {
		t.Fatal("garbage ciphertext accepted")
	}
}

func TestLoadCredentialsRejectsMissingKey(t *testing.T) {
	t.Setenv("FERNET_KEY", "")

	if _, err := loadCredentials(); err == nil {
		t.Fatal("empty FERNET_KEY accepted")
	}
}
