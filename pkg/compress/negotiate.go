package compress

import (
	"sort"
	"strconv"
	"strings"
)

// ParseAcceptEncoding returns the acceptable encodings of an Accept-Encoding
// header ordered by descending q-value, ties kept in header order. Tokens with
// q=0 are dropped; "identity" and "*" are kept as written.
func ParseAcceptEncoding(header string) []string {
	type pref struct {
		name string
		q    float64
		pos  int
	}
	var prefs []pref
	for i, part := range strings.Split(header, ",") {
		fields := strings.Split(part, ";")
		name := strings.ToLower(strings.TrimSpace(fields[0]))
		if name == "" {
			continue
		}
		q := 1.0
		for _, p := range fields[1:] {
			k, v, ok := strings.Cut(strings.TrimSpace(p), "=")
			if !ok || strings.TrimSpace(strings.ToLower(k)) != "q" {
				continue
			}
			if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
				q = f
			}
		}
		if q <= 0 {
			continue
		}
		prefs = append(prefs, pref{name: name, q: q, pos: i})
	}
	sort.SliceStable(prefs, func(a, b int) bool { return prefs[a].q > prefs[b].q })
	out := make([]string, 0, len(prefs))
	for _, p := range prefs {
		out = append(out, p.name)
	}
	return out
}

// Negotiate picks the first encoding in accept the codecs support, or
// Identity when none match. A "*" token selects the first encoding in
// fallback that is supported.
func Negotiate(c Codecs, accept []string, fallback ...string) string {
	for _, name := range accept {
		switch name {
		case "identity", Identity:
			return Identity
		case "*":
			for _, f := range fallback {
				if f != Identity && c.IsSupported(f) {
					return f
				}
			}
			continue
		}
		if c.IsSupported(name) {
			return name
		}
	}
	return Identity
}
