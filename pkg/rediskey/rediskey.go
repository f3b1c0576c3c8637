package rediskey

import "fmt"

// Key namespaces shared across the service.
const (
	RateLimitPrefix = "ratelimit"
	SequencePrefix  = "seq"
)

func NamespaceKey(namespace, key string) string {
	return fmt.Sprintf("%s:%s", namespace, key)
}

// BuildRateLimitKey returns "ratelimit:{scope}:{identifier}:{window}".
func BuildRateLimitKey(scope, identifier string, window int64) string {
	return fmt.Sprintf("%s:%s:%s:%d", RateLimitPrefix, scope, identifier, window)
}

// BuildSequenceKey returns "seq:{prefix}:{dateKey}".
func BuildSequenceKey(prefix, dateKey string) string {
	return fmt.Sprintf("%s:%s:%s", SequencePrefix, prefix, dateKey)
}
