package models

import "strings"

// KeyPrefix namespaces counter keys by identity class.
type KeyPrefix string

const (
	// KeyPrefixAnon scopes anonymous caller counters.
	KeyPrefixAnon KeyPrefix = "anon"
	// KeyPrefixUser scopes signed-in caller counters. Registered and paid
	// share this prefix; isolation between them comes from the per-role
	// limiter namespace, not the key.
	KeyPrefixUser KeyPrefix = "user"
)

// PrefixForRole returns the counter key prefix for a role.
func PrefixForRole(role Role) KeyPrefix {
	if role == RoleAnonymous {
		return KeyPrefixAnon
	}
	return KeyPrefixUser
}

// CounterKey is the per-caller key handed to the counter store.
type CounterKey struct {
	Prefix     KeyPrefix
	Identifier string
}

// NewCounterKey builds a counter key for a role and derived identifier.
func NewCounterKey(role Role, identifier string) CounterKey {
	return CounterKey{Prefix: PrefixForRole(role), Identifier: identifier}
}

func (k CounterKey) String() string {
	return string(k.Prefix) + ":" + k.Identifier
}

// SanitizeKeySegment escapes delimiter characters in caller-controlled key
// segments to prevent collision attacks where an identifier containing ':'
// could alias an adjacent counter key.
//
// IP segments are deliberately left unsanitized by callers: IPv6 literals
// contain colons and the IP always occupies a fixed position in the
// composed identifier.
func SanitizeKeySegment(s string) string {
	return strings.ReplaceAll(s, ":", "_")
}
