package metrics

import (
	"net/http"
	"strings"
	"sync"
)

var (
	skipMu    sync.RWMutex
	skipPaths = map[string]struct{}{"/metrics": {}, "/healthz": {}}

	normMu         sync.RWMutex
	pathNormalizer = boundedPath
)

const maxURILabels = 1000

var (
	seenMu    sync.Mutex
	seenPaths = map[string]struct{}{}
)

func boundedPath(r *http.Request) string {
	p := r.URL.Path
	seenMu.Lock()
	defer seenMu.Unlock()
	if _, ok := seenPaths[p]; ok {
		return p
	}
	if len(seenPaths) >= maxURILabels {
		return "other"
	}
	seenPaths[p] = struct{}{}
	return p
}

// AddMetricsSkipPaths extends the skip list. The scrape and heartbeat
// paths are skipped by default.
func AddMetricsSkipPaths(paths ...string) {
	skipMu.Lock()
	for _, p := range paths {
		p = strings.TrimSpace(p)
		if p != "" {
			skipPaths[p] = struct{}{}
		}
	}
	skipMu.Unlock()
}

// SetPathNormalizer replaces the URI label function. The default keeps the
// path but folds anything past maxURILabels distinct paths into "other",
// since registry paths come and go at runtime.
func SetPathNormalizer(fn func(*http.Request) string) {
	if fn == nil {
		return
	}
	normMu.Lock()
	pathNormalizer = fn
	normMu.Unlock()
}

func isSkipPath(r *http.Request) bool {
	p := r.URL.Path
	skipMu.RLock()
	_, ok := skipPaths[p]
	skipMu.RUnlock()
	return ok
}

func normalizePath(r *http.Request) string {
	normMu.RLock()
	fn := pathNormalizer
	normMu.RUnlock()
	return fn(r)
}
