// Package extension runs stateful request handlers inside a worker. An
// extension is created per path on first use, initialised once, and then
// serves every request for that path until it is discarded.
package extension

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/joeydtaylor/steeze-pool/pkg/library"
)

// ErrMethodNotAllowed is returned by Serve when the extension has no
// handler for the request method.
var ErrMethodNotAllowed = errors.New("extension: method not allowed")

// Extension is the lifecycle every instance implements. Request handling
// comes from the optional verb interfaces below.
type Extension interface {
	Init(ctx context.Context) error
	Close() error
}

// Base provides no-op lifecycle methods for embedding.
type Base struct{}

func (Base) Init(context.Context) error { return nil }
func (Base) Close() error               { return nil }

type Request struct {
	HTTP    *http.Request
	Path    string // registry path the request resolved to
	Session library.Session
}

type Response struct {
	Status      int
	Header      http.Header
	ContentType string
	Body        []byte
}

// Text is a 200 text/plain response.
func Text(s string) *Response {
	return &Response{Status: http.StatusOK, ContentType: "text/plain; charset=utf-8", Body: []byte(s)}
}

// JSON is a 200 application/json response.
func JSON(v any) (*Response, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return &Response{Status: http.StatusOK, ContentType: "application/json", Body: b}, nil
}

type GETHandler interface {
	HandleGET(ctx context.Context, req *Request) (*Response, error)
}
type HEADHandler interface {
	HandleHEAD(ctx context.Context, req *Request) (*Response, error)
}
type POSTHandler interface {
	HandlePOST(ctx context.Context, req *Request) (*Response, error)
}
type PUTHandler interface {
	HandlePUT(ctx context.Context, req *Request) (*Response, error)
}
type PATCHHandler interface {
	HandlePATCH(ctx context.Context, req *Request) (*Response, error)
}
type DELETEHandler interface {
	HandleDELETE(ctx context.Context, req *Request) (*Response, error)
}
type OPTIONSHandler interface {
	HandleOPTIONS(ctx context.Context, req *Request) (*Response, error)
}

// Upgrader handles protocol-upgrade requests on a bidirectional channel.
type Upgrader interface {
	HandleUpgrade(ctx context.Context, ch *Channel) error
}

// Serve routes req to the verb method ext implements. HEAD falls back to
// GET.
func Serve(ctx context.Context, ext Extension, req *Request) (*Response, error) {
	switch req.HTTP.Method {
	case http.MethodGet:
		if h, ok := ext.(GETHandler); ok {
			return h.HandleGET(ctx, req)
		}
	case http.MethodHead:
		if h, ok := ext.(HEADHandler); ok {
			return h.HandleHEAD(ctx, req)
		}
		if h, ok := ext.(GETHandler); ok {
			return h.HandleGET(ctx, req)
		}
	case http.MethodPost:
		if h, ok := ext.(POSTHandler); ok {
			return h.HandlePOST(ctx, req)
		}
	case http.MethodPut:
		if h, ok := ext.(PUTHandler); ok {
			return h.HandlePUT(ctx, req)
		}
	case http.MethodPatch:
		if h, ok := ext.(PATCHHandler); ok {
			return h.HandlePATCH(ctx, req)
		}
	case http.MethodDelete:
		if h, ok := ext.(DELETEHandler); ok {
			return h.HandleDELETE(ctx, req)
		}
	case http.MethodOptions:
		if h, ok := ext.(OPTIONSHandler); ok {
			return h.HandleOPTIONS(ctx, req)
		}
	}
	return nil, ErrMethodNotAllowed
}

// Methods lists the verbs ext implements, for Allow headers.
func Methods(ext Extension) []string {
	var out []string
	if _, ok := ext.(GETHandler); ok {
		out = append(out, http.MethodGet, http.MethodHead)
	} else if _, ok := ext.(HEADHandler); ok {
		out = append(out, http.MethodHead)
	}
	if _, ok := ext.(POSTHandler); ok {
		out = append(out, http.MethodPost)
	}
	if _, ok := ext.(PUTHandler); ok {
		out = append(out, http.MethodPut)
	}
	if _, ok := ext.(PATCHHandler); ok {
		out = append(out, http.MethodPatch)
	}
	if _, ok := ext.(DELETEHandler); ok {
		out = append(out, http.MethodDelete)
	}
	if _, ok := ext.(OPTIONSHandler); ok {
		out = append(out, http.MethodOptions)
	}
	return out
}
