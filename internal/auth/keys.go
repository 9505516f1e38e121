// Package auth issues access tokens and hashes passwords.
package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const keyLength = 32

// DecodeKey parses a hex encoded 32 byte key.
func DecodeKey(keyHex string) ([]byte, error) {
	keyHex = strings.TrimSpace(keyHex)
	if len(keyHex) != keyLength*2 {
		return nil, fmt.Errorf("auth key must be %d hex characters, got %d", keyLength*2, len(keyHex))
	}
	key, err := hex.DecodeString(keyHex)
	if err != nil {
		return nil, fmt.Errorf("auth key is not valid hex: %w", err)
	}
	return key, nil
}

// LoadOrGenerateKey returns the token key. An explicit keyHex wins; otherwise the
// key is read from <dataPath>/auth.key, which is created on first run.
func LoadOrGenerateKey(keyHex, dataPath string) ([]byte, error) {
	if keyHex != "" {
		return DecodeKey(keyHex)
	}

	keyPath := filepath.Join(dataPath, "auth.key")
	//#nosec G304 -- path derived from configured data directory
	if b, err := os.ReadFile(keyPath); err == nil {
		return DecodeKey(string(b))
	}

	key := make([]byte, keyLength)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate auth key: %w", err)
	}
	if err := os.MkdirAll(dataPath, 0o700); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	if err := os.WriteFile(keyPath, []byte(hex.EncodeToString(key)), 0o600); err != nil {
		return nil, fmt.Errorf("save auth key: %w", err)
	}
	return key, nil
}
