package redis

import "strings"

// Key builds a hierarchical "{namespace}:{kind}:{project}[:{qualifier}]"
// key. Every structure in this package scopes its data with such a key.
func Key(parts ...string) string {
	return strings.Join(parts, ":")
}
