package registry

import (
	"fmt"
	"path"

	"go.uber.org/zap"

	"github.com/joeydtaylor/steeze-pool/pkg/codec"
	"github.com/joeydtaylor/steeze-pool/pkg/extension"
	"github.com/joeydtaylor/steeze-pool/pkg/function"
	"github.com/joeydtaylor/steeze-pool/pkg/library"
	"github.com/joeydtaylor/steeze-pool/pkg/manifest"
)

// AddData registers an in-memory payload. Bytes and strings are stored as
// given; any other value is stored as canonical JSON.
func (r *Registry) AddData(p string, payload any, mime string, opts library.Options) error {
	var body []byte
	defaultMime := "application/octet-stream"
	switch v := payload.(type) {
	case []byte:
		body = append([]byte{}, v...)
	case string:
		body = []byte(v)
		defaultMime = "text/plain; charset=utf-8"
	default:
		b, ct, err := codec.Canonical(v)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalid, err)
		}
		body, defaultMime = b, ct
	}
	if mime == "" {
		mime = defaultMime
	}
	return r.Add(library.Entry{
		Path:    library.NormalizePath(p),
		Type:    library.TypeData,
		Mime:    mime,
		Options: opts,
		Source:  library.Source{Data: body},
	})
}

// AddFile registers a file, or every file below a directory at
// p + "/" + relative path. Directory registration is all-or-nothing.
func (r *Registry) AddFile(p, fsPath string, opts library.Options) error {
	if !r.fs.IsFile(fsPath) && !r.fs.IsDirectory(fsPath) {
		return fmt.Errorf("%w: %s", ErrNotFound, fsPath)
	}
	entries, err := r.fileEntries(library.NormalizePath(p), fsPath, opts)
	if err != nil {
		return err
	}
	return r.addAll(entries)
}

// fileEntries expands a directory into one entry per file below it. Any
// other fsPath yields a single entry, existing or not.
func (r *Registry) fileEntries(p, fsPath string, opts library.Options) ([]library.Entry, error) {
	if !r.fs.IsDirectory(fsPath) {
		return []library.Entry{{
			Path:    p,
			Type:    library.TypeFile,
			Mime:    mimeFor(fsPath),
			Options: opts,
			Source:  library.Source{File: fsPath},
		}}, nil
	}
	files, err := r.fs.RecurseFiles(fsPath)
	if err != nil {
		return nil, fmt.Errorf("registry: walk %s: %w", fsPath, err)
	}
	entries := make([]library.Entry, 0, len(files))
	for _, rel := range files {
		entries = append(entries, library.Entry{
			Path:    library.NormalizePath(path.Join(p, rel)),
			Type:    library.TypeFile,
			Mime:    mimeFor(rel),
			Options: opts,
			Source:  library.Source{File: path.Join(fsPath, rel)},
		})
	}
	return entries, nil
}

// AddFunction registers a call to a function from the function table.
func (r *Registry) AddFunction(p, name string, args []library.ArgSpec, opts library.Options) error {
	return r.Add(library.Entry{
		Path:    library.NormalizePath(p),
		Type:    library.TypeFunction,
		Options: opts,
		Source:  library.Source{Function: &library.FunctionSpec{Name: name, Args: args}},
	})
}

// AddExtension registers an extension handler. Running workers learn it
// through EventExtensionAdded.
func (r *Registry) AddExtension(p, handler string, opts library.Options) error {
	return r.Add(library.Entry{
		Path:    library.NormalizePath(p),
		Type:    library.TypeExtension,
		Options: opts,
		Source:  library.Source{Extension: &library.ExtensionSpec{Handler: handler}},
	})
}

// AddLink registers path as an alias of target.
func (r *Registry) AddLink(p, target string, opts library.Options) error {
	return r.Add(library.Entry{
		Path:    library.NormalizePath(p),
		Type:    library.TypeLink,
		Options: opts,
		Source:  library.Source{Link: library.NormalizePath(target)},
	})
}

// Add registers a fully formed entry.
func (r *Registry) Add(e library.Entry) error {
	return r.addAll([]library.Entry{e})
}

// Load registers every entry the manifest declares, directories expanded.
// It is all-or-nothing: on error no entry of cfg is registered.
func (r *Registry) Load(cfg manifest.Config) error {
	entries, err := cfg.LibraryEntries()
	if err != nil {
		return err
	}
	all := make([]library.Entry, 0, len(entries))
	for _, e := range entries {
		if e.Type != library.TypeFile {
			all = append(all, e)
			continue
		}
		files, err := r.fileEntries(e.Path, e.Source.File, e.Options)
		if err != nil {
			return fmt.Errorf("%s: %w", e.Path, err)
		}
		if e.Mime != "" && !r.fs.IsDirectory(e.Source.File) {
			files[0].Mime = e.Mime
		}
		all = append(all, files...)
	}
	if err := r.addAll(all); err != nil {
		return fmt.Errorf("load manifest: %w", err)
	}
	return nil
}

func (r *Registry) addAll(entries []library.Entry) error {
	for i := range entries {
		if err := checkEntry(&entries[i]); err != nil {
			return err
		}
	}

	r.mu.Lock()
	seen := make(map[string]bool, len(entries))
	for _, e := range entries {
		if _, ok := r.entries[e.Path]; ok || seen[e.Path] {
			r.mu.Unlock()
			return fmt.Errorf("%w: %s", ErrExists, e.Path)
		}
		seen[e.Path] = true
	}
	var evs []Event
	for _, e := range entries {
		r.seq++
		r.entries[e.Path] = &record{id: r.seq, entry: e, variants: map[string]*variant{}}
		if replicated(&e) {
			evs = append(evs, Event{Kind: EventExtensionAdded, Descriptor: e.Descriptor()})
		}
	}
	registryEntries.Set(float64(len(r.entries)))
	r.mu.Unlock()

	for _, e := range entries {
		r.log.Info("entry added",
			zap.String("path", e.Path),
			zap.String("type", string(e.Type)),
			zap.Bool("once", e.Options.Once),
		)
	}
	r.emit(evs...)
	return nil
}

// checkEntry validates shape and that named functions and handlers exist.
func checkEntry(e *library.Entry) error {
	if err := e.Validate(); err != nil {
		return err
	}
	switch e.Type {
	case library.TypeFunction:
		if _, ok := function.Lookup(e.Source.Function.Name); !ok {
			return fmt.Errorf("%w: function %q", ErrNotFound, e.Source.Function.Name)
		}
		for _, a := range e.Source.Function.Args {
			if _, err := function.ParseType(a.Type); err != nil {
				return fmt.Errorf("%w: argument %q: %v", ErrInvalid, a.Name, err)
			}
		}
	case library.TypeExtension:
		if _, ok := extension.Lookup(e.Source.Extension.Handler); !ok {
			return fmt.Errorf("%w: extension %q", ErrNotFound, e.Source.Extension.Handler)
		}
	}
	return nil
}
