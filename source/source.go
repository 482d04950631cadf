// Package source resolves shader and mesh names to their bytes.
//
// Names are slash-separated paths such as "depth/basic.wgsl". A Source
// reports a missing name with an error matching fs.ErrNotExist.
package source

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
)

// Source resolves a resource name to its content.
type Source interface {
	Open(name string) ([]byte, error)
}

// FS reads resources from a file system.
type FS struct {
	fsys fs.FS
	root string
}

// NewFS returns a Source reading from fsys.
func NewFS(fsys fs.FS) *FS {
	return &FS{fsys: fsys}
}

// Dir returns a Source reading from the directory root.
func Dir(root string) *FS {
	return &FS{fsys: os.DirFS(root), root: root}
}

// Root returns the directory given to Dir, or "" for other file systems.
func (s *FS) Root() string {
	return s.root
}

func (s *FS) Open(name string) ([]byte, error) {
	clean, err := cleanName(name)
	if err != nil {
		return nil, err
	}
	data, err := fs.ReadFile(s.fsys, clean)
	if err != nil {
		return nil, fmt.Errorf("source: %w", err)
	}
	return data, nil
}

// Map is an in-memory Source.
type Map map[string][]byte

func (m Map) Open(name string) ([]byte, error) {
	clean, err := cleanName(name)
	if err != nil {
		return nil, err
	}
	data, ok := m[clean]
	if !ok {
		return nil, &fs.PathError{Op: "open", Path: clean, Err: fs.ErrNotExist}
	}
	return append([]byte(nil), data...), nil
}

// Layers returns a Source that tries each layer in order and returns the
// first hit. Errors other than fs.ErrNotExist stop the search.
func Layers(layers ...Source) Source {
	return layered(layers)
}

type layered []Source

func (l layered) Open(name string) ([]byte, error) {
	for _, s := range l {
		data, err := s.Open(name)
		if err == nil {
			return data, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}
	return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
}

func cleanName(name string) (string, error) {
	clean := path.Clean(name)
	if !fs.ValidPath(clean) || clean == "." {
		return "", &fs.PathError{Op: "open", Path: name, Err: fs.ErrInvalid}
	}
	return clean, nil
}
