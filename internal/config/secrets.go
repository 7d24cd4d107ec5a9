package config

import (
	"os"

	"github.com/joho/godotenv"

	"github.com/gridbot/core/pkg/secretstore"
)

// SecretSource layers apikey/secretkey resolution ahead of the XML
// <Session> plaintext: an optional Badger-backed encrypted store first,
// then the process environment (which LoadDotenv fills from a .env file
// without overriding keys the shell already set). The XML value is the
// final fallback, for operators who accept plaintext-on-disk.
type SecretSource struct {
	store *secretstore.Store
}

// OpenSecretSource opens the encrypted store at dbPath using encryptionKey
// (see secretstore.ParseKey), or returns a SecretSource with no store if
// dbPath is empty — callers then fall through to .env/environment/XML only.
func OpenSecretSource(dbPath string, encryptionKey []byte) (*SecretSource, error) {
	if dbPath == "" {
		return &SecretSource{}, nil
	}
	store, err := secretstore.Open(secretstore.OpenOptions{Path: dbPath, EncryptionKey: encryptionKey})
	if err != nil {
		return nil, err
	}
	return &SecretSource{store: store}, nil
}

// LoadDotenv populates the process environment from a .env file, skipping
// any key already set. A missing file is not an error — most deployments
// don't use one.
func LoadDotenv(path string) error {
	if err := godotenv.Load(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Resolve looks up key in the encrypted store, then the environment
// (populated by LoadDotenv or the shell), returning fallback if neither has
// it. Used for apikey/secretkey so an operator never has to commit them to
// the XML config.
func (s *SecretSource) Resolve(key, fallback string) string {
	if s != nil && s.store != nil {
		if v, ok, err := s.store.GetString(key); err == nil && ok && v != "" {
			return v
		}
	}
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// Close releases the underlying store, if one was opened.
func (s *SecretSource) Close() error {
	if s == nil {
		return nil
	}
	return s.store.Close()
}
