// Package token generates and persists the admin token that gates the
// local HTTP API.
package token

import (
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"os"
	"path/filepath"
)

const tokenLength = 32

const alphanumeric = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// Store holds the current admin token and persists it to tokenPath.
type Store struct {
	tokenPath string
	value     string
}

// NewStore loads the token from tokenPath, or generates and persists a
// fresh one if the file is absent or unreadable. The token is generated
// once per host process lifetime; restarting the child does not rotate
// it.
func NewStore(tokenPath string) (*Store, error) {
	s := &Store{tokenPath: tokenPath}

	if data, err := os.ReadFile(tokenPath); err == nil && len(data) == tokenLength {
		s.value = string(data)
		return s, nil
	}

	tok, err := generate(tokenLength)
	if err != nil {
		return nil, fmt.Errorf("generate admin token: %w", err)
	}
	s.value = tok

	if err := s.persist(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) persist() error {
	if err := os.MkdirAll(filepath.Dir(s.tokenPath), 0700); err != nil {
		return fmt.Errorf("create token directory: %w", err)
	}
	if err := os.WriteFile(s.tokenPath, []byte(s.value), 0600); err != nil {
		return fmt.Errorf("write admin token: %w", err)
	}
	return nil
}

// Value returns the current token.
func (s *Store) Value() string {
	return s.value
}

// Matches reports whether candidate equals the current token, compared
// in constant time.
func (s *Store) Matches(candidate string) bool {
	if len(candidate) != len(s.value) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(candidate), []byte(s.value)) == 1
}

func generate(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	out := make([]byte, n)
	for i, b := range buf {
		out[i] = alphanumeric[int(b)%len(alphanumeric)]
	}
	return string(out), nil
}
