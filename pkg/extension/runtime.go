package extension

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/joeydtaylor/steeze-pool/pkg/library"
)

var (
	ErrUnknownHandler = errors.New("extension: unknown handler")
	ErrClosed         = errors.New("extension: runtime closed")
)

var liveInstances = prometheus.NewGauge(prometheus.GaugeOpts{
	Name: "steeze_extension_instances",
	Help: "Initialised extension instances held by this worker.",
})

func init() {
	prometheus.MustRegister(liveInstances)
}

type instance struct {
	handler string
	ext     Extension
}

// Runtime owns a worker's extension instances and the extension
// descriptors the controller replicated to it.
type Runtime struct {
	log *zap.Logger

	mu          sync.Mutex
	instances   map[string]instance
	descriptors map[string]library.Descriptor
	closed      bool

	flight singleflight.Group
}

func NewRuntime(log *zap.Logger) *Runtime {
	if log == nil {
		log = zap.NewNop()
	}
	return &Runtime{
		log:         log,
		instances:   map[string]instance{},
		descriptors: map[string]library.Descriptor{},
	}
}

// GetOrCreate returns the instance serving path, constructing and
// initialising it on first use. Concurrent first requests share one
// construction; a failed Init is not remembered.
func (rt *Runtime) GetOrCreate(ctx context.Context, path, handler string) (Extension, error) {
	if ext, ok := rt.cached(path, handler); ok {
		return ext, nil
	}
	v, err, _ := rt.flight.Do(path, func() (any, error) {
		if ext, ok := rt.cached(path, handler); ok {
			return ext, nil
		}
		// Init outlives the request that happened to trigger it.
		ext, err := rt.Create(context.WithoutCancel(ctx), handler)
		if err != nil {
			return nil, err
		}

		rt.mu.Lock()
		if rt.closed {
			rt.mu.Unlock()
			_ = ext.Close()
			return nil, ErrClosed
		}
		old, replaced := rt.instances[path]
		rt.instances[path] = instance{handler: handler, ext: ext}
		rt.mu.Unlock()

		if replaced {
			rt.close(path, old.ext)
		} else {
			liveInstances.Inc()
		}
		rt.log.Info("extension started", zap.String("path", path), zap.String("handler", handler))
		return ext, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(Extension), nil
}

func (rt *Runtime) cached(path, handler string) (Extension, bool) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	inst, ok := rt.instances[path]
	if !ok || inst.handler != handler {
		return nil, false
	}
	return inst.ext, true
}

// Create constructs and initialises an instance that the runtime does not
// keep. Callers own it and must Close it.
func (rt *Runtime) Create(ctx context.Context, handler string) (Extension, error) {
	f, ok := Lookup(handler)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownHandler, handler)
	}
	ext := f()
	if ext == nil {
		return nil, fmt.Errorf("extension %q: factory returned nil", handler)
	}
	if err := ext.Init(ctx); err != nil {
		_ = ext.Close()
		return nil, fmt.Errorf("extension %q init: %w", handler, err)
	}
	return ext, nil
}

// Discard closes and forgets the instance at path, if any.
func (rt *Runtime) Discard(path string) {
	rt.mu.Lock()
	inst, ok := rt.instances[path]
	delete(rt.instances, path)
	rt.mu.Unlock()
	if ok {
		liveInstances.Dec()
		rt.close(path, inst.ext)
	}
}

// Close discards every instance. Later GetOrCreate calls fail.
func (rt *Runtime) Close() error {
	rt.mu.Lock()
	rt.closed = true
	insts := rt.instances
	rt.instances = map[string]instance{}
	rt.mu.Unlock()

	var errs []error
	for path, inst := range insts {
		liveInstances.Dec()
		if err := inst.ext.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", path, err))
		}
	}
	return errors.Join(errs...)
}

func (rt *Runtime) close(path string, ext Extension) {
	if err := ext.Close(); err != nil {
		rt.log.Warn("extension close", zap.String("path", path), zap.Error(err))
		return
	}
	rt.log.Info("extension stopped", zap.String("path", path))
}

// Learn records a replicated descriptor. Requests for its path skip the
// controller round trip.
func (rt *Runtime) Learn(d library.Descriptor) {
	rt.mu.Lock()
	rt.descriptors[d.Path] = d
	rt.mu.Unlock()
}

// Forget drops a descriptor and discards its instance.
func (rt *Runtime) Forget(path string) {
	rt.mu.Lock()
	delete(rt.descriptors, path)
	rt.mu.Unlock()
	rt.Discard(path)
}

func (rt *Runtime) Descriptor(path string) (library.Descriptor, bool) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	d, ok := rt.descriptors[path]
	return d, ok
}

func (rt *Runtime) Descriptors() []library.Descriptor {
	rt.mu.Lock()
	out := make([]library.Descriptor, 0, len(rt.descriptors))
	for _, d := range rt.descriptors {
		out = append(out, d)
	}
	rt.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}
