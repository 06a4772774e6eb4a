// Package library holds the shared model of servable entries: what the
// controller registers, what crosses the process boundary, and what workers
// execute.
package library

import (
	"errors"
	"fmt"
	"net/http"
	"path"
	"strings"
)

// EntryType enumerates the supported entry kinds.
type EntryType string

const (
	TypeData      EntryType = "data"
	TypeFile      EntryType = "file"
	TypeFunction  EntryType = "function"
	TypeExtension EntryType = "extension"
	TypeLink      EntryType = "link"
)

// ErrInvalid marks an entry whose shape does not match its type.
var ErrInvalid = errors.New("invalid entry")

// Valid reports whether t is one of the known entry kinds.
func (t EntryType) Valid() bool {
	switch t {
	case TypeData, TypeFile, TypeFunction, TypeExtension, TypeLink:
		return true
	}
	return false
}

// AllowsMethod reports whether an entry of type t may be requested with method.
// Links defer to their target.
func (t EntryType) AllowsMethod(method string) bool {
	switch t {
	case TypeData, TypeFile:
		return method == http.MethodGet
	case TypeFunction:
		return method == http.MethodGet || method == http.MethodPost
	case TypeExtension, TypeLink:
		return true
	}
	return false
}

// Options are the per-entry serving policies.
type Options struct {
	Once      bool       `json:"once,omitempty" toml:"once"`
	TimeoutMS int        `json:"timeoutMs,omitempty" toml:"timeout_ms"`
	Auth      AuthPolicy `json:"auth" toml:"auth"`
}

// ArgSpec declares one argument of a registered function. Type is a type
// expression such as "string", "number", "list(string)" or
// "object({name=string})".
type ArgSpec struct {
	Name     string `json:"name" toml:"name"`
	Type     string `json:"type" toml:"type"`
	Optional bool   `json:"optional,omitempty" toml:"optional"`
}

// FunctionSpec names a function from the function table and its signature.
type FunctionSpec struct {
	Name string    `json:"name"`
	Args []ArgSpec `json:"args,omitempty"`
}

// ExtensionSpec names a handler factory from the extension table.
type ExtensionSpec struct {
	Handler string `json:"handler"`
}

// Source is the payload behind an entry. Exactly one field is set.
type Source struct {
	Data      []byte
	File      string
	Function  *FunctionSpec
	Extension *ExtensionSpec
	Link      string
}

// Entry is a registered, servable path.
type Entry struct {
	Path    string
	Type    EntryType
	Mime    string
	Options Options
	Source  Source
}

// Validate checks that exactly one source is populated and that it matches Type.
func (e *Entry) Validate() error {
	if e.Path == "" || !strings.HasPrefix(e.Path, "/") {
		return fmt.Errorf("%w: path %q must be absolute", ErrInvalid, e.Path)
	}
	if !e.Type.Valid() {
		return fmt.Errorf("%w: unknown type %q", ErrInvalid, e.Type)
	}
	if e.Options.TimeoutMS < 0 {
		return fmt.Errorf("%w: timeout_ms must be >= 0", ErrInvalid)
	}

	set := map[EntryType]bool{
		TypeData:      e.Source.Data != nil,
		TypeFile:      e.Source.File != "",
		TypeFunction:  e.Source.Function != nil,
		TypeExtension: e.Source.Extension != nil,
		TypeLink:      e.Source.Link != "",
	}
	n := 0
	for _, ok := range set {
		if ok {
			n++
		}
	}
	if n != 1 || !set[e.Type] {
		return fmt.Errorf("%w: %s entry %q needs exactly one %s source", ErrInvalid, e.Type, e.Path, e.Type)
	}

	switch e.Type {
	case TypeFunction:
		if strings.TrimSpace(e.Source.Function.Name) == "" {
			return fmt.Errorf("%w: function name required", ErrInvalid)
		}
		seen := map[string]bool{}
		for _, a := range e.Source.Function.Args {
			if a.Name == "" {
				return fmt.Errorf("%w: function %q has an unnamed argument", ErrInvalid, e.Source.Function.Name)
			}
			if seen[a.Name] {
				return fmt.Errorf("%w: function %q declares %q twice", ErrInvalid, e.Source.Function.Name, a.Name)
			}
			seen[a.Name] = true
		}
	case TypeExtension:
		if strings.TrimSpace(e.Source.Extension.Handler) == "" {
			return fmt.Errorf("%w: extension handler required", ErrInvalid)
		}
	case TypeLink:
		if NormalizePath(e.Source.Link) == e.Path {
			return fmt.Errorf("%w: link %q points at itself", ErrInvalid, e.Path)
		}
	}
	return nil
}

// Descriptor returns the content-free view of e that may be shipped to workers.
func (e *Entry) Descriptor() Descriptor {
	return Descriptor{
		Path:      e.Path,
		Type:      e.Type,
		Mime:      e.Mime,
		Options:   e.Options,
		Function:  e.Source.Function,
		Extension: e.Source.Extension,
	}
}

// Descriptor is an entry without its content.
type Descriptor struct {
	Path      string         `json:"path"`
	Type      EntryType      `json:"type"`
	Mime      string         `json:"mime,omitempty"`
	Options   Options        `json:"options"`
	Function  *FunctionSpec  `json:"function,omitempty"`
	Extension *ExtensionSpec `json:"extension,omitempty"`
}

// NormalizePath makes p absolute and clean.
func NormalizePath(p string) string {
	p = strings.TrimSpace(p)
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if p != "/" {
		p = path.Clean(p)
	}
	return p
}
