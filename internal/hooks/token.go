// Package hooks runs the loopback HTTP server that agent-side hook scripts
// post lifecycle events to, guarded by a per-start bearer token and a
// per-source rate limit.
package hooks

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
)

// NewToken generates the hook bearer token: 32 random bytes, hex encoded.
// Rotated on every daemon start.
func NewToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate hook token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// WriteTokenFile persists the token where hook scripts read it, owner-only.
func WriteTokenFile(path, token string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create token dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(token), 0o600); err != nil {
		return fmt.Errorf("write token file: %w", err)
	}
	return nil
}
