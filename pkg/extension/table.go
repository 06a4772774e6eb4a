package extension

import (
	"sort"
	"sync"
)

// Factory constructs a fresh, uninitialised extension instance.
type Factory func() Extension

var (
	mu    sync.RWMutex
	table = map[string]Factory{}
)

// Register makes a handler factory available under a name referenced by
// extension entries. Every process of the pool runs the same binary, so
// registering from init or main makes it known to the controller and to
// every worker.
func Register(name string, f Factory) {
	if name == "" || f == nil {
		panic("extension: name and factory required")
	}
	mu.Lock()
	table[name] = f
	mu.Unlock()
}

func Lookup(name string) (Factory, bool) {
	mu.RLock()
	defer mu.RUnlock()
	f, ok := table[name]
	return f, ok
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
