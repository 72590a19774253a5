package id

import (
	"strings"

	"github.com/google/uuid"
)

// New returns a random (v4) UUID in canonical form; used as primary key of
// every persisted entity.
func New() string { return uuid.NewString() }

// NewID32 returns exactly 32 hex characters (a UUID without separators).
// Used for public references such as approval ids and request ids.
func NewID32() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Valid reports whether s is a canonical UUID or its 32-hex form.
func Valid(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
