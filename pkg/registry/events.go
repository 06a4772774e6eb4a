package registry

import "github.com/joeydtaylor/steeze-pool/pkg/library"

type EventKind int

const (
	EventExtensionAdded EventKind = iota + 1
	EventExtensionRemoved
)

func (k EventKind) String() string {
	switch k {
	case EventExtensionAdded:
		return library.OpExtensionAdd
	case EventExtensionRemoved:
		return library.OpExtensionRemove
	}
	return "unknown"
}

// Event announces a change workers must mirror.
type Event struct {
	Kind       EventKind
	Descriptor library.Descriptor
}

// Subscribe registers fn for registry events and returns a func that
// unregisters it. fn runs synchronously after the change is committed and
// must not call back into the registry's mutating methods.
func (r *Registry) Subscribe(fn func(Event)) (cancel func()) {
	r.subMu.Lock()
	id := r.nextSub
	r.nextSub++
	r.subs[id] = fn
	r.subMu.Unlock()
	return func() {
		r.subMu.Lock()
		delete(r.subs, id)
		r.subMu.Unlock()
	}
}

func (r *Registry) emit(evs ...Event) {
	if len(evs) == 0 {
		return
	}
	r.subMu.Lock()
	fns := make([]func(Event), 0, len(r.subs))
	for _, fn := range r.subs {
		fns = append(fns, fn)
	}
	r.subMu.Unlock()
	for _, ev := range evs {
		for _, fn := range fns {
			fn(ev)
		}
	}
}

// replicated reports whether workers keep a local descriptor for e. Once
// extensions always go through the controller so they are consumed once.
func replicated(e *library.Entry) bool {
	return e.Type == library.TypeExtension && !e.Options.Once
}
