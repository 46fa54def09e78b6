package compiler

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// StdlibResolver locates and caches AILANG standard-library source files
// (spec.md §6 SUPPLEMENT), following the search order
// `original_source/ailang_compiler/ailang_compiler.py`'s compile_library
// uses: `Library.<name>.ailang` in the current directory first, then the
// same filename under a `stdlib/` subdirectory. A library requested twice
// in one compilation is read from disk once.
type StdlibResolver struct {
	dir   string
	cache map[string]string
}

// NewStdlibResolver returns a resolver that searches stdlibDir as its
// fallback directory (the original's "Librarys" subdirectory, renamed to
// match this module's own layout).
func NewStdlibResolver(stdlibDir string) *StdlibResolver {
	return &StdlibResolver{dir: stdlibDir, cache: make(map[string]string)}
}

// Resolve returns the source text of Library.<name>.ailang, reading it
// from disk at most once per resolver instance.
func (r *StdlibResolver) Resolve(name string) (string, error) {
	if src, ok := r.cache[name]; ok {
		return src, nil
	}

	fileName := "Library." + name + ".ailang"
	path := fileName
	if _, err := os.Stat(path); err != nil {
		path = filepath.Join(r.dir, fileName)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return "", errors.Wrapf(err, "library %q not found (looked for %s and %s)", name, fileName, filepath.Join(r.dir, fileName))
	}
	src := string(b)
	r.cache[name] = src
	return src, nil
}
