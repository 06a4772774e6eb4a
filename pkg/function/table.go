// Package function holds the start-time table of functions that function
// entries name, and the argument binding that feeds them.
package function

import (
	"context"
	"sort"
	"sync"
)

// Func is the signature for registered functions. The returned value is
// encoded by Encode.
type Func func(ctx context.Context, args Args) (any, error)

var (
	mu    sync.RWMutex
	table = map[string]Func{}
)

// Register makes fn available under a name referenced by function entries.
// It is meant to be called from init or main before serving starts.
func Register(name string, fn Func) {
	if name == "" || fn == nil {
		panic("function: name and func required")
	}
	mu.Lock()
	table[name] = fn
	mu.Unlock()
}

// Lookup retrieves a registered function by name.
func Lookup(name string) (Func, bool) {
	mu.RLock()
	defer mu.RUnlock()
	fn, ok := table[name]
	return fn, ok
}

func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(table))
	for n := range table {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
