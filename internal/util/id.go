package util

import (
	"crypto/rand"
	"encoding/hex"

	"github.com/google/uuid"
)

// NewID returns a fresh UUIDv4 string for entity primary keys.
func NewID() string {
	return uuid.NewString()
}

// NewToken returns an unguessable 64-character hex token for invites.
func NewToken() string {
	bytes := make([]byte, 32)
	_, _ = rand.Read(bytes)
	return hex.EncodeToString(bytes)
}
