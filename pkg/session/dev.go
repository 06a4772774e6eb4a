package session

import (
	"net/http"
	"strings"
)

// Dev-only permission injection via headers when AUTH_DEV_BYPASS=true
func devPermissionsFromHeaders(r *http.Request) []string {
	raw := r.Header.Get("X-Dev-Permissions")
	if raw == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
