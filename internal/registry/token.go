package registry

import "strings"

const minTokenLength = 32

// IsValidToken reports whether a caller-supplied auth token looks like a
// signed three-segment token worth forwarding to the key-exchange API.
func IsValidToken(token string) bool {
	token = strings.TrimSpace(token)
	if len(token) < minTokenLength {
		return false
	}
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return false
	}
	for _, p := range parts {
		if p == "" {
			return false
		}
	}
	return true
}
