// Package dispatch turns HTTP requests into registry resolutions and
// serves the result from inside a worker.
package dispatch

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/joeydtaylor/steeze-pool/pkg/compress"
	"github.com/joeydtaylor/steeze-pool/pkg/extension"
	"github.com/joeydtaylor/steeze-pool/pkg/function"
	"github.com/joeydtaylor/steeze-pool/pkg/library"
	"github.com/joeydtaylor/steeze-pool/pkg/session"
)

type Config struct {
	ConsentPath   string
	SignInPath    string
	RequireSecure bool
	TrustProxy    bool
}

// Dispatcher is the catch-all handler behind the worker router.
type Dispatcher struct {
	cfg      Config
	resolver Resolver
	sessions *session.Manager
	runtime  *extension.Runtime
	log      *zap.Logger
}

func New(cfg Config, resolver Resolver, sessions *session.Manager, rt *extension.Runtime, log *zap.Logger) *Dispatcher {
	if cfg.ConsentPath == "" {
		cfg.ConsentPath = "/consent"
	}
	if cfg.SignInPath == "" {
		cfg.SignInPath = "/signin"
	}
	if rt == nil {
		rt = extension.NewRuntime(log)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{cfg: cfg, resolver: resolver, sessions: sessions, runtime: rt, log: log}
}

func (d *Dispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	defer func() {
		if v := recover(); v != nil {
			if v == http.ErrAbortHandler {
				panic(v)
			}
			d.log.Error("dispatch panic", zap.String("uri", r.URL.Path), zap.Any("panic", v))
			internalError(w)
		}
	}()

	h := session.FromContext(r.Context())
	if h == nil {
		var err error
		if h, err = d.sessions.FromRequest(r); err != nil {
			d.log.Error("session issue failed", zap.Error(err))
			internalError(w)
			return
		}
		if h.Fresh() {
			http.SetCookie(w, d.sessions.Cookie(h, isSecure(r, d.cfg.TrustProxy)))
		}
		r = r.WithContext(session.WithSession(r.Context(), h))
	}
	secure := isSecure(r, d.cfg.TrustProxy)
	path := library.NormalizePath(r.URL.Path)

	// Replicated extensions are authorised locally, without a round trip.
	if desc, ok := d.runtime.Descriptor(path); ok {
		gate := library.Gate{Secure: secure, RequireSecure: d.cfg.RequireSecure, Session: h, Header: r.Header}
		if st, reason := desc.Options.Auth.Check(gate); st != library.StatusOK {
			d.fail(w, r, library.Reply{Status: st, Reason: reason})
			return
		}
		d.serveExtension(w, r, h, path, desc.Extension.Handler, false)
		return
	}

	q := library.NewQuery(r, compress.ParseAcceptEncoding(r.Header.Get("Accept-Encoding")))
	q.Path = path
	q.Headers[library.HeaderScheme] = scheme(secure)
	q.Headers[library.HeaderSession] = h.Token()

	rep, err := d.resolver.Resolve(r.Context(), q)
	if err != nil {
		if r.Context().Err() == nil {
			d.log.Error("resolve failed", zap.String("uri", path), zap.Error(err))
		}
		internalError(w)
		return
	}
	if !rep.OK() {
		d.fail(w, r, rep)
		return
	}

	switch rep.Type {
	case library.TypeData, library.TypeFile:
		writeContent(w, rep)
	case library.TypeFunction:
		d.callFunction(w, r, rep.Function)
	case library.TypeExtension:
		d.serveExtension(w, r, h, rep.Path, rep.Extension.Handler, rep.Once)
	default:
		d.log.Error("unexpected entry type", zap.String("uri", path), zap.String("type", string(rep.Type)))
		internalError(w)
	}
}

// fail maps a failed reply onto the response. A 307 goes to the page of
// the gate that failed.
func (d *Dispatcher) fail(w http.ResponseWriter, r *http.Request, rep library.Reply) {
	switch st := rep.Status; st {
	case library.StatusMovedPermanently:
		http.Redirect(w, r, "https://"+r.Host+r.URL.RequestURI(), http.StatusMovedPermanently)
	case library.StatusTemporaryRedirect:
		target := d.cfg.SignInPath
		if rep.Reason == library.ReasonConsent {
			target = d.cfg.ConsentPath
		}
		http.Redirect(w, r, target+"?next="+url.QueryEscape(r.URL.RequestURI()), http.StatusTemporaryRedirect)
	default:
		code := int(st)
		if code < 400 || code > 599 {
			code = http.StatusInternalServerError
		}
		http.Error(w, http.StatusText(code), code)
	}
}

func writeContent(w http.ResponseWriter, rep library.Reply) {
	hdr := w.Header()
	if rep.ContentType != "" {
		hdr.Set("Content-Type", rep.ContentType)
	}
	if rep.ContentEncoding != "" {
		hdr.Set("Content-Encoding", rep.ContentEncoding)
	}
	hdr.Add("Vary", "Accept-Encoding")
	hdr.Set("Content-Length", strconv.Itoa(len(rep.Content)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(rep.Content)
}

func (d *Dispatcher) callFunction(w http.ResponseWriter, r *http.Request, spec *library.FunctionSpec) {
	fn, ok := function.Lookup(spec.Name)
	if !ok {
		d.log.Error("function not registered in worker", zap.String("function", spec.Name))
		internalError(w)
		return
	}
	args, err := function.Bind(r, spec.Args)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	out, err := fn(r.Context(), args)
	var argErr *function.ArgError
	switch {
	case errors.As(err, &argErr):
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	case err != nil:
		d.log.Error("function failed", zap.String("function", spec.Name), zap.Error(err))
		internalError(w)
		return
	}
	body, ct, err := function.Encode(out)
	if err != nil {
		d.log.Error("function result encode", zap.String("function", spec.Name), zap.Error(err))
		internalError(w)
		return
	}
	if body == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.Header().Set("Content-Type", ct)
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func (d *Dispatcher) serveExtension(w http.ResponseWriter, r *http.Request, h *session.Handle, path, handler string, once bool) {
	ctx := r.Context()
	var (
		ext extension.Extension
		err error
	)
	if once {
		ext, err = d.runtime.Create(ctx, handler)
		if err == nil {
			defer func() {
				if err := ext.Close(); err != nil {
					d.log.Warn("once extension close", zap.String("path", path), zap.Error(err))
				}
			}()
		}
	} else {
		ext, err = d.runtime.GetOrCreate(ctx, path, handler)
	}
	if err != nil {
		d.log.Error("extension unavailable", zap.String("path", path), zap.String("handler", handler), zap.Error(err))
		internalError(w)
		return
	}

	if extension.IsUpgrade(r) {
		up, ok := ext.(extension.Upgrader)
		if !ok {
			http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
			return
		}
		ch, err := extension.Accept(w, r)
		if err != nil {
			// Accept already answered the client.
			d.log.Warn("upgrade failed", zap.String("path", path), zap.Error(err))
			return
		}
		defer ch.Close()
		if err := up.HandleUpgrade(ctx, ch); err != nil && !extension.IsClosed(err) && ctx.Err() == nil {
			d.log.Warn("channel ended with error", zap.String("path", path), zap.Error(err))
		}
		return
	}

	resp, err := extension.Serve(ctx, ext, &extension.Request{HTTP: r, Path: path, Session: h})
	switch {
	case errors.Is(err, extension.ErrMethodNotAllowed):
		w.Header().Set("Allow", strings.Join(extension.Methods(ext), ", "))
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	case err != nil:
		d.log.Error("extension failed", zap.String("path", path), zap.String("method", r.Method), zap.Error(err))
		internalError(w)
		return
	}
	writeResponse(w, resp)
}

func writeResponse(w http.ResponseWriter, resp *extension.Response) {
	if resp == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	for k, vs := range resp.Header {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	if resp.ContentType != "" {
		w.Header().Set("Content-Type", resp.ContentType)
	}
	status := resp.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, _ = w.Write(resp.Body)
}

func internalError(w http.ResponseWriter) {
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}

func scheme(secure bool) string {
	if secure {
		return "https"
	}
	return "http"
}
