package catalog

import "strings"

// IsOpenLicense reports whether a catalog license string names a Creative
// Commons or public-domain grant.
func IsOpenLicense(values ...string) bool {
	for _, value := range values {
		v := strings.ToLower(strings.TrimSpace(value))
		if v == "" {
			continue
		}
		switch {
		case strings.Contains(v, "creativecommons"),
			strings.Contains(v, "creative commons"),
			strings.HasPrefix(v, "cc-"),
			strings.HasPrefix(v, "cc "),
			strings.HasPrefix(v, "cc0"),
			strings.Contains(v, "public domain"),
			strings.Contains(v, "publicdomain"),
			v == "pd" || strings.HasPrefix(v, "pd-"):
			return true
		}
	}
	return false
}
