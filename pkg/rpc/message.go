// Package rpc correlates calls and replies between processes of the pool
// over a newline-delimited JSON stream. Every call carries a process-unique
// id; the reply carries it back and resolves the waiting trap.
package rpc

import (
	"encoding/json"
	"errors"
	"fmt"
)

type Kind string

const (
	KindCall   Kind = "call"
	KindReply  Kind = "reply"
	KindNotify Kind = "notify"
)

// Message is one frame on the wire. Path is the stack of child ids a
// relayed call picked up on its way up; replies retrace it.
type Message struct {
	ID    uint64          `json:"id,omitempty"`
	Kind  Kind            `json:"kind"`
	Op    string          `json:"op,omitempty"`
	Path  []uint64        `json:"path,omitempty"`
	Body  json.RawMessage `json:"body,omitempty"`
	Error string          `json:"error,omitempty"`
}

// ErrClosed fails every call still pending when a peer shuts down.
var ErrClosed = errors.New("rpc: connection closed")

// RemoteError is a failure reported by the handler on the other side.
type RemoteError struct {
	Op  string
	Msg string
}

func (e *RemoteError) Error() string { return fmt.Sprintf("rpc %s: %s", e.Op, e.Msg) }
