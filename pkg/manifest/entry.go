package manifest

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/joeydtaylor/steeze-pool/pkg/codec"
	"github.com/joeydtaylor/steeze-pool/pkg/library"
)

// Entry declares one registry entry.
type Entry struct {
	Path      string             `toml:"path"`
	Type      library.EntryType  `toml:"type"`
	Mime      string             `toml:"mime"`
	Once      bool               `toml:"once"`
	TimeoutMS int                `toml:"timeout_ms"`
	Auth      library.AuthPolicy `toml:"auth"`
	Data      *string            `toml:"data"`  // data: raw text payload
	Value     any                `toml:"value"` // data: object payload, stored as canonical JSON
	File      string             `toml:"file"`
	Function  string             `toml:"function"`
	Args      []library.ArgSpec  `toml:"args"`
	Extension string             `toml:"extension"`
	Target    string             `toml:"target"` // link
}

// Options returns the serving options the entry declares.
func (e *Entry) Options() library.Options {
	return library.Options{Once: e.Once, TimeoutMS: e.TimeoutMS, Auth: e.Auth}
}

// normalize path/type/mime
func (e *Entry) normalize() error {
	if strings.TrimSpace(e.Path) == "" {
		return errors.New("path is required")
	}
	e.Path = library.NormalizePath(e.Path)
	e.Type = library.EntryType(strings.ToLower(strings.TrimSpace(string(e.Type))))
	e.Mime = strings.TrimSpace(e.Mime)
	e.Auth.Mode = strings.ToLower(strings.TrimSpace(e.Auth.Mode))
	if e.Target != "" {
		e.Target = library.NormalizePath(e.Target)
	}
	return nil
}

// validate fields that are independent of global state.
func (e *Entry) validate() error {
	switch e.Type {
	case library.TypeData:
		if (e.Data == nil) == (e.Value == nil) {
			return errors.New("data entries need exactly one of data or value")
		}
	case library.TypeFile:
		if strings.TrimSpace(e.File) == "" {
			return errors.New("file required for file entries")
		}
	case library.TypeFunction:
		if strings.TrimSpace(e.Function) == "" {
			return errors.New("function required for function entries")
		}
		for i, a := range e.Args {
			if strings.TrimSpace(a.Name) == "" || strings.TrimSpace(a.Type) == "" {
				return fmt.Errorf("args[%d]: name and type required", i)
			}
		}
	case library.TypeExtension:
		if strings.TrimSpace(e.Extension) == "" {
			return errors.New("extension required for extension entries")
		}
	case library.TypeLink:
		if e.Target == "" {
			return errors.New("target required for link entries")
		}
		if e.Target == e.Path {
			return errors.New("link target must differ from path")
		}
	default:
		return fmt.Errorf("unknown entry type %q", e.Type)
	}

	switch e.Auth.Mode {
	case library.AuthModeDefault, library.AuthModeOpen:
	default:
		return fmt.Errorf("auth.mode %q invalid", e.Auth.Mode)
	}
	if e.TimeoutMS < 0 {
		return errors.New("timeout_ms must be >= 0")
	}
	return nil
}

// Library converts a validated entry into its registry form. Relative file
// paths resolve against dir.
func (e *Entry) Library(dir string) (library.Entry, error) {
	out := library.Entry{Path: e.Path, Type: e.Type, Mime: e.Mime, Options: e.Options()}
	switch e.Type {
	case library.TypeData:
		if e.Data != nil {
			out.Source.Data = []byte(*e.Data)
			break
		}
		body, ct, err := codec.Canonical(e.Value)
		if err != nil {
			return library.Entry{}, fmt.Errorf("%s: %w", e.Path, err)
		}
		out.Source.Data = body
		if out.Mime == "" {
			out.Mime = ct
		}
	case library.TypeFile:
		f := e.File
		if !filepath.IsAbs(f) && dir != "" {
			f = filepath.Join(dir, f)
		}
		out.Source.File = f
	case library.TypeFunction:
		out.Source.Function = &library.FunctionSpec{Name: e.Function, Args: e.Args}
	case library.TypeExtension:
		out.Source.Extension = &library.ExtensionSpec{Handler: e.Extension}
	case library.TypeLink:
		out.Source.Link = e.Target
	}
	if err := out.Validate(); err != nil {
		return library.Entry{}, err
	}
	return out, nil
}
