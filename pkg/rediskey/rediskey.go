package rediskey

import "fmt"

// Key prefixes (global convention across services)
const (
	SequencePrefix = "seq"
)

func NamespaceKey(namespace, key string) string {
	return fmt.Sprintf("%s:%s", namespace, key)
}

// BuildSequenceKey returns "seq:{prefix}:{datePart}", the daily counter key
// behind human-readable reference codes.
func BuildSequenceKey(prefix, datePart string) string {
	return NamespaceKey(SequencePrefix, fmt.Sprintf("%s:%s", prefix, datePart))
}
