package ratelimit

import "fmt"

// UserKey builds a limiter key scoped to one authenticated user.
func UserKey(userID uint64) string {
	if userID == 0 {
		return ""
	}
	return fmt.Sprintf("u:%d", userID)
}

// IPKey builds a limiter key scoped to one client address, for
// unauthenticated endpoints.
func IPKey(addr string) string {
	if addr == "" {
		return ""
	}
	return "ip:" + addr
}
