// Package id provides utilities for generating URL-safe identifiers.
//
// Identifiers are random UUIDv4 bytes encoded as lowercase base32 (RFC 4648)
// without padding: 26 characters, safe in URLs and file paths, and carrying
// 122 bits of randomness so they cannot be guessed.
package id

import (
	"encoding/base32"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

var encoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// NewID returns a fresh identifier.
func NewID() (string, error) {
	u, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("generate id: %w", err)
	}
	return encode(u), nil
}

// New is NewID for callers that have no error path. It panics if the system
// random source fails, as uuid.New does.
func New() string {
	return encode(uuid.New())
}

func encode(u uuid.UUID) string {
	return strings.ToLower(encoding.EncodeToString(u[:]))
}
