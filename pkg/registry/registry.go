// Package registry is the controller-side store of servable entries and
// their cached content variants. It is the single writer of that state;
// workers only ever see it through Resolve replies and extension events.
package registry

import (
	"errors"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/joeydtaylor/steeze-pool/pkg/compress"
	"github.com/joeydtaylor/steeze-pool/pkg/library"
)

var (
	ErrExists   = errors.New("registry: path already registered")
	ErrNotFound = errors.New("registry: not found")
	ErrInvalid  = library.ErrInvalid
)

const (
	DefaultTimeout = 5 * time.Minute
	maxLinkHops    = 8
)

// Config tunes caching and the server-wide gate.
type Config struct {
	MaxEntryBytes int           // variants above this are served but not stored; 0 stores everything
	Timeout       time.Duration // default variant lifetime
	RequireSecure bool          // redirect every plain-http request that is not in open mode
}

// Deps are the registry's collaborators. Nil fields get defaults.
type Deps struct {
	Codecs   compress.Codecs
	Sessions library.Sessions
	FS       FS
	Log      *zap.Logger
}

type record struct {
	id       uint64
	entry    library.Entry
	variants map[string]*variant
	detached bool
}

type variant struct {
	body  []byte
	timer *time.Timer
	gen   uint64
}

type Registry struct {
	cfg      Config
	codecs   compress.Codecs
	sessions library.Sessions
	fs       FS
	log      *zap.Logger

	mu      sync.Mutex
	entries map[string]*record
	seq     uint64
	flight  singleflight.Group

	subMu   sync.Mutex
	subs    map[int]func(Event)
	nextSub int
}

func New(cfg Config, d Deps) *Registry {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if d.Codecs == nil {
		d.Codecs = compress.Default()
	}
	if d.FS == nil {
		d.FS = OSFS{}
	}
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	return &Registry{
		cfg:      cfg,
		codecs:   d.Codecs,
		sessions: d.Sessions,
		fs:       d.FS,
		log:      d.Log,
		entries:  map[string]*record{},
		subs:     map[int]func(Event){},
	}
}

// Get returns a copy of the entry registered at path.
func (r *Registry) Get(path string) (library.Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.entries[library.NormalizePath(path)]
	if !ok {
		return library.Entry{}, false
	}
	return rec.entry, true
}

// Paths lists registered paths in order.
func (r *Registry) Paths() []string {
	r.mu.Lock()
	out := make([]string, 0, len(r.entries))
	for p := range r.entries {
		out = append(out, p)
	}
	r.mu.Unlock()
	sort.Strings(out)
	return out
}

// Extensions returns the descriptors workers should hold locally. The
// controller replays them to every worker that attaches.
func (r *Registry) Extensions() []library.Descriptor {
	r.mu.Lock()
	var out []library.Descriptor
	for _, rec := range r.entries {
		if replicated(&rec.entry) {
			out = append(out, rec.entry.Descriptor())
		}
	}
	r.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// Remove unregisters path and drops its cached variants.
func (r *Registry) Remove(path string) error {
	path = library.NormalizePath(path)
	r.mu.Lock()
	rec, ok := r.entries[path]
	if !ok {
		r.mu.Unlock()
		return ErrNotFound
	}
	r.detachLocked(rec)
	r.mu.Unlock()

	r.log.Info("entry removed", zap.String("path", path), zap.String("type", string(rec.entry.Type)))
	if replicated(&rec.entry) {
		r.emit(Event{Kind: EventExtensionRemoved, Descriptor: rec.entry.Descriptor()})
	}
	return nil
}

// Close stops every eviction timer. The registry keeps answering from its
// sources but no longer caches.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range r.entries {
		r.dropVariantsLocked(rec)
	}
}

// detachLocked removes rec from the map; any compute already in flight
// for it will not store its result.
func (r *Registry) detachLocked(rec *record) {
	delete(r.entries, rec.entry.Path)
	rec.detached = true
	r.dropVariantsLocked(rec)
	registryEntries.Set(float64(len(r.entries)))
}
