package registry

import (
	"context"
	"errors"
	"strconv"

	"go.uber.org/zap"

	"github.com/joeydtaylor/steeze-pool/pkg/compress"
	"github.com/joeydtaylor/steeze-pool/pkg/library"
)

// Resolve answers one worker query. It never fails with an error; every
// outcome is a status, and only StatusOK replies carry an entry.
func (r *Registry) Resolve(ctx context.Context, q library.Query) (rep library.Reply) {
	defer func() {
		if v := recover(); v != nil {
			r.log.Error("resolve panic", zap.String("path", q.Path), zap.Any("panic", v))
			rep = library.Fail(library.StatusInternalError)
		}
		resolutions.WithLabelValues(strconv.Itoa(int(rep.Status))).Inc()
	}()

	gate := library.Gate{
		Secure:        q.Secure(),
		RequireSecure: r.cfg.RequireSecure,
		Session:       r.openSession(q.SessionToken()),
		Header:        q.Header(),
	}

	rec, fail := r.lookup(library.NormalizePath(q.Path), q.Method, gate)
	if rec == nil {
		return fail
	}
	e := &rec.entry

	rep = library.Reply{Status: library.StatusOK, Type: e.Type, Path: e.Path, Once: e.Options.Once}
	switch e.Type {
	case library.TypeFunction:
		rep.Function = e.Source.Function
		return rep
	case library.TypeExtension:
		rep.Extension = e.Source.Extension
		return rep
	}

	enc := compress.Negotiate(r.codecs, q.AcceptEncodingList)
	body, err := r.content(ctx, rec, enc)
	if errors.Is(err, errMissingSource) {
		return library.Fail(library.StatusNotFound)
	}
	if err != nil {
		r.log.Error("resolve content",
			zap.String("path", e.Path),
			zap.String("encoding", label(enc)),
			zap.Error(err),
		)
		return library.Fail(library.StatusInternalError)
	}
	rep.ContentType = e.Mime
	rep.ContentEncoding = enc
	rep.Content = body
	return rep
}

// lookup follows links from path and applies the method and auth checks
// of every entry on the way. Once entries on a chain that passes are
// detached while the lock is still held, so exactly one query consumes
// them.
func (r *Registry) lookup(path, method string, gate library.Gate) (*record, library.Reply) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var once []*record
	for hops := 0; hops <= maxLinkHops; hops++ {
		rec, ok := r.entries[path]
		if !ok {
			return nil, library.Fail(library.StatusNotFound)
		}
		e := &rec.entry
		if !e.Type.AllowsMethod(method) {
			return nil, library.Fail(library.StatusMethodNotAllowed)
		}
		if st, reason := e.Options.Auth.Check(gate); st != library.StatusOK {
			if reason != "" {
				return nil, library.Redirect(reason)
			}
			return nil, library.Fail(st)
		}
		if e.Options.Once {
			once = append(once, rec)
		}
		if e.Type != library.TypeLink {
			for _, c := range once {
				r.detachLocked(c)
				r.log.Info("once entry consumed", zap.String("path", c.entry.Path))
			}
			return rec, library.Reply{Status: library.StatusOK}
		}
		path = e.Source.Link
	}
	return nil, library.Fail(library.StatusNotFound)
}

func (r *Registry) openSession(token string) library.Authorizer {
	if r.sessions == nil {
		return nil
	}
	s, err := r.sessions.Open(token)
	if err != nil {
		r.log.Warn("open session", zap.Error(err))
		return nil
	}
	return s
}
