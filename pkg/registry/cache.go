package registry

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/joeydtaylor/steeze-pool/pkg/compress"
	"github.com/joeydtaylor/steeze-pool/pkg/library"
)

var errMissingSource = errors.New("source file missing")

// content returns rec's body in encoding enc, from cache when possible.
// Concurrent misses for the same (path, encoding) share one computation.
func (r *Registry) content(ctx context.Context, rec *record, enc string) ([]byte, error) {
	if body, ok := r.hit(rec, enc); ok {
		return body, nil
	}
	key := strconv.FormatUint(rec.id, 10) + ":" + enc
	v, err, _ := r.flight.Do(key, func() (any, error) {
		if body, ok := r.hit(rec, enc); ok {
			return body, nil
		}
		cacheMisses.WithLabelValues(label(enc)).Inc()
		ident, err := r.identity(rec)
		if err != nil {
			return nil, err
		}
		if enc == compress.Identity {
			return ident, nil
		}
		body, err := r.codecs.Compress(enc, ident)
		if err != nil {
			return nil, fmt.Errorf("compress %s: %w", enc, err)
		}
		compressions.WithLabelValues(enc).Inc()
		r.store(rec, enc, body)
		return body, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), ctx.Err()
}

// identity returns the uncompressed variant, loading it from the entry's
// source on a miss. A cached copy is read without counting a hit or
// restarting its timer.
func (r *Registry) identity(rec *record) ([]byte, error) {
	if body, ok := r.cached(rec, compress.Identity); ok {
		return body, nil
	}
	var body []byte
	switch rec.entry.Type {
	case library.TypeData:
		body = rec.entry.Source.Data
	case library.TypeFile:
		b, err := r.fs.ReadFile(rec.entry.Source.File)
		if errors.Is(err, fs.ErrNotExist) {
			return nil, errMissingSource
		}
		if err != nil {
			return nil, err
		}
		body = b
	default:
		return nil, fmt.Errorf("%s entries have no content", rec.entry.Type)
	}
	r.store(rec, compress.Identity, body)
	return body, nil
}

// hit returns a cached variant and restarts its expiry timer.
func (r *Registry) hit(rec *record, enc string) ([]byte, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := rec.variants[enc]
	if !ok {
		return nil, false
	}
	r.armLocked(rec, enc, v)
	cacheHits.WithLabelValues(label(enc)).Inc()
	return v.body, true
}

func (r *Registry) cached(rec *record, enc string) ([]byte, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := rec.variants[enc]
	if !ok {
		return nil, false
	}
	return v.body, true
}

// store caches body unless it is oversized or rec was detached meanwhile.
func (r *Registry) store(rec *record, enc string, body []byte) {
	if r.cfg.MaxEntryBytes > 0 && len(body) > r.cfg.MaxEntryBytes {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec.detached {
		return
	}
	if old, ok := rec.variants[enc]; ok {
		old.timer.Stop()
		cacheBytes.Sub(float64(len(old.body)))
	}
	v := &variant{body: body}
	rec.variants[enc] = v
	cacheBytes.Add(float64(len(body)))
	r.armLocked(rec, enc, v)
}

// armLocked (re)starts v's expiry timer. The generation guards against a
// timer that already fired but has not yet taken the lock.
func (r *Registry) armLocked(rec *record, enc string, v *variant) {
	if v.timer != nil {
		v.timer.Stop()
	}
	v.gen++
	gen := v.gen
	v.timer = time.AfterFunc(r.ttl(rec), func() { r.evict(rec, enc, v, gen) })
}

func (r *Registry) evict(rec *record, enc string, v *variant, gen uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := rec.variants[enc]; !ok || cur != v || v.gen != gen {
		return
	}
	delete(rec.variants, enc)
	cacheBytes.Sub(float64(len(v.body)))
	cacheEvictions.Inc()
	r.log.Debug("variant evicted", zap.String("path", rec.entry.Path), zap.String("encoding", label(enc)))
}

func (r *Registry) dropVariantsLocked(rec *record) {
	for enc, v := range rec.variants {
		v.timer.Stop()
		cacheBytes.Sub(float64(len(v.body)))
		delete(rec.variants, enc)
	}
}

func (r *Registry) ttl(rec *record) time.Duration {
	if ms := rec.entry.Options.TimeoutMS; ms > 0 {
		return time.Duration(ms) * time.Millisecond
	}
	return r.cfg.Timeout
}

func label(enc string) string {
	if enc == compress.Identity {
		return "identity"
	}
	return enc
}
