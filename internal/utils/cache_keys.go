package utils

import "strings"

func BuildUserProfileCacheKey(id string) string {
	return "users:profile:v1:id=" + strings.ToLower(strings.TrimSpace(id))
}
