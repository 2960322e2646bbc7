package main

import (
	"fmt"
	"os"

	"github.com/fernet/fernet-go"

	"github.com/joshuahaertel/friendexing/internal/imagery"
)

// loadCredentials decrypts the indexing service credentials. They live in
// the environment Fernet-encrypted; the key itself is the only plaintext
// secret the process needs.
func loadCredentials() (imagery.Credentials, error) {
	keys, err := fernet.DecodeKeys(os.Getenv("FERNET_KEY"))
	if err != nil {
		return imagery.Credentials{}, fmt.Errorf("decode FERNET_KEY: %w", err)
	}

	username := fernet.VerifyAndDecrypt([]byte(os.Getenv("FAMILY_SEARCH_USERNAME")), 0, keys)
	if username == nil {
		return imagery.Credentials{}, fmt.Errorf("FAMILY_SEARCH_USERNAME failed to decrypt")
	}
	password := fernet.VerifyAndDecrypt([]byte(os.Getenv("FAMILY_SEARCH_PASSWORD")), 0, keys)
	if password == nil {
		return imagery.Credentials{}, fmt.Errorf("FAMILY_SEARCH_PASSWORD failed to decrypt")
	}

	return imagery.Credentials{
		Username: string(username),
		Password: string(password),
	}, nil
}
