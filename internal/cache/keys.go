package cache

import "fmt"

// RateLimitKey is the fixed-window counter key for one principal.
func RateLimitKey(principal string) string {
	return fmt.Sprintf("ratelimit:%s", principal)
}
