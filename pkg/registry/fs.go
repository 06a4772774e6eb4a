package registry

import (
	"io/fs"
	"mime"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// FS is the filesystem collaborator file entries read through.
type FS interface {
	IsDirectory(p string) bool
	IsFile(p string) bool
	// RecurseFiles lists every regular file under dir as a slash-separated
	// path relative to dir.
	RecurseFiles(dir string) ([]string, error)
	ReadFile(p string) ([]byte, error)
}

// OSFS reads the host filesystem.
type OSFS struct{}

func (OSFS) IsDirectory(p string) bool {
	fi, err := os.Stat(p)
	return err == nil && fi.IsDir()
}

func (OSFS) IsFile(p string) bool {
	fi, err := os.Stat(p)
	return err == nil && fi.Mode().IsRegular()
}

func (OSFS) RecurseFiles(dir string) ([]string, error) {
	var out []string
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		out = append(out, filepath.ToSlash(rel))
		return nil
	})
	sort.Strings(out)
	return out, err
}

func (OSFS) ReadFile(p string) ([]byte, error) { return os.ReadFile(p) }

// mimeFor guesses a content type from the file extension.
func mimeFor(p string) string {
	if t := mime.TypeByExtension(strings.ToLower(filepath.Ext(p))); t != "" {
		return t
	}
	return "application/octet-stream"
}
