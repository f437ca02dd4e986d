// Package id provides unique identifier generation for sessions and exports.
package id

import (
	"strings"

	"github.com/google/uuid"
)

// Prefixes for the identifiers handed out by the service.
const (
	PrefixSession = "sess"
	PrefixExport  = "exp"
)

// Generate creates a new unique ID.
// Format: <prefix>-<uuid v4 without dashes>
// Example: exp-1b4e28ba2fa1411d8e2e0c3c4b5d6e7f
func Generate(prefix string) string {
	return prefix + "-" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Valid reports whether s looks like an ID produced by Generate with prefix.
func Valid(prefix, s string) bool {
	raw, ok := strings.CutPrefix(s, prefix+"-")
	if !ok {
		return false
	}
	_, err := uuid.Parse(raw)
	return err == nil
}
