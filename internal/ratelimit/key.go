package ratelimit

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Key identifies one window counter. It is a hex SHA-256 digest and cannot be
// turned back into the client identity.
type Key string

// BuildKey derives the counter key for id under the given key mode.
// In identity mode every scope shares one bucket per address.
func BuildKey(id Identity, scope Scope, mode KeyMode) Key {
	if mode != KeyModeScoped {
		return hashKey(id.IP)
	}

	path, _, _ := strings.Cut(id.Path, "?")

	return hashKey(string(scope) + "|" + id.IP + "|" + strings.ToUpper(id.Method) + "|" + path)
}

func hashKey(s string) Key {
	sum := sha256.Sum256([]byte(s))

	return Key(hex.EncodeToString(sum[:]))
}
