package library

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
)

// Ops exchanged between the controller and its workers. Resolve is a
// worker -> controller call; the extension ops are controller -> worker
// notifications carrying a Descriptor.
const (
	OpResolve         = "resolve"
	OpExtensionAdd    = "extension.add"
	OpExtensionRemove = "extension.remove"
)

// EnvWorkerID carries a worker's id from the controller into the worker
// process environment.
const EnvWorkerID = "WORKER_ID"

// Internal headers a worker attaches to a resolve query.
const (
	HeaderScheme  = "X-Steeze-Scheme"
	HeaderSession = "X-Steeze-Session"
)

// Query is the body of a resolve call.
type Query struct {
	Op                 string            `json:"op"`
	Path               string            `json:"path"`
	Method             string            `json:"method"`
	AcceptEncodingList []string          `json:"acceptEncodingList"`
	Headers            map[string]string `json:"headers"`
}

// NewQuery flattens the request headers of r into a resolve query.
func NewQuery(r *http.Request, accept []string) Query {
	h := make(map[string]string, len(r.Header))
	for k, v := range r.Header {
		h[http.CanonicalHeaderKey(k)] = strings.Join(v, ", ")
	}
	return Query{
		Op:                 OpResolve,
		Path:               r.URL.Path,
		Method:             r.Method,
		AcceptEncodingList: accept,
		Headers:            h,
	}
}

// Header rebuilds an http.Header from the flattened map.
func (q Query) Header() http.Header {
	h := make(http.Header, len(q.Headers))
	for k, v := range q.Headers {
		h.Set(k, v)
	}
	return h
}

// Secure reports whether the worker saw the request on a TLS connection.
func (q Query) Secure() bool {
	return strings.EqualFold(q.Headers[HeaderScheme], "https")
}

// SessionToken is the token the worker resolved or issued for this request.
func (q Query) SessionToken() string { return q.Headers[HeaderSession] }

// Reply is the controller's answer to a resolve call. Error statuses and
// redirects are encoded as a bare integer.
type Reply struct {
	Status          Status         `json:"status"`
	Type            EntryType      `json:"type,omitempty"`
	Path            string         `json:"path,omitempty"`
	ContentType     string         `json:"contentType,omitempty"`
	ContentEncoding string         `json:"contentEncoding,omitempty"`
	Content         []byte         `json:"content,omitempty"`
	Once            bool           `json:"once,omitempty"`
	Function        *FunctionSpec  `json:"function,omitempty"`
	Extension       *ExtensionSpec `json:"extension,omitempty"`
	Reason          Reason         `json:"reason,omitempty"` // set on 307
}

// Fail returns the sentinel reply for s.
func Fail(s Status) Reply { return Reply{Status: s} }

// Redirect is the 307 reply for a failed consent or sign-in gate.
func Redirect(reason Reason) Reply {
	return Reply{Status: StatusTemporaryRedirect, Reason: reason}
}

// OK reports whether the reply carries a servable entry.
func (r Reply) OK() bool { return r.Status == StatusOK }

type replyBody Reply

func (r Reply) MarshalJSON() ([]byte, error) {
	if r.Status != StatusOK && r.Type == "" && r.Reason == "" {
		return []byte(strconv.Itoa(int(r.Status))), nil
	}
	return json.Marshal(replyBody(r))
}

func (r *Reply) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] >= '0' && b[0] <= '9' {
		n, err := strconv.Atoi(string(b))
		if err != nil {
			return err
		}
		*r = Fail(Status(n))
		return nil
	}
	var body replyBody
	if err := json.Unmarshal(b, &body); err != nil {
		return err
	}
	*r = Reply(body)
	return nil
}
