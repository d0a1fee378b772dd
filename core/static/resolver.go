// Package static maps request paths to files under a root directory.
package static

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/searchktools/static-server/core/http"
)

//go:embed 404.html
var notFoundPage []byte

// NotFound returns the embedded 404 page as a fresh response
func NotFound() *http.Response {
	return http.FromFixedContent(http.StatusNotFound, notFoundPage, "text/html")
}

// NotFoundPage returns a copy of the embedded 404 page
func NotFoundPage() []byte {
	return bytes.Clone(notFoundPage)
}

// Resolver serves regular files below a root directory.
// Lookups go through an os.Root, so neither ".." segments nor symlinks can
// reach outside of it.
type Resolver struct {
	dir  string
	root *os.Root
}

// New opens dir as the serving root
func New(dir string) (*Resolver, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve root %s: %w", dir, err)
	}
	root, err := os.OpenRoot(abs)
	if err != nil {
		return nil, fmt.Errorf("open root %s: %w", abs, err)
	}
	return &Resolver{dir: abs, root: root}, nil
}

// Dir returns the absolute root directory
func (r *Resolver) Dir() string {
	return r.dir
}

// Close releases the root directory handle
func (r *Resolver) Close() error {
	return r.root.Close()
}

// Handle resolves the request's path
func (r *Resolver) Handle(req *http.Request) (*http.Response, error) {
	return r.Resolve(req.Path)
}

// Resolve maps a raw request target to a response.
// Missing files, directories and paths escaping the root yield the 404 page.
// A file that exists but cannot be opened is an error wrapping http.ErrFileOpen.
func (r *Resolver) Resolve(target string) (*http.Response, error) {
	rel, ok := relativePath(target)
	if !ok {
		return NotFound(), nil
	}

	info, err := r.root.Stat(rel)
	if err != nil || !info.Mode().IsRegular() {
		return NotFound(), nil
	}

	f, err := r.root.Open(rel)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return NotFound(), nil
		}
		return nil, fmt.Errorf("%w: %s: %w", http.ErrFileOpen, rel, err)
	}

	resp, err := http.FromFile(rel, f)
	if err != nil {
		f.Close()
		return nil, err
	}
	return resp, nil
}

// relativePath turns a request target into a slash-free path local to the root.
// It reports false for targets that cannot name a file below the root.
func relativePath(target string) (string, bool) {
	if i := strings.IndexAny(target, "?#"); i >= 0 {
		target = target[:i]
	}
	p, err := url.PathUnescape(target)
	if err != nil {
		return "", false
	}
	p = strings.TrimPrefix(p, "/")
	if strings.ContainsRune(p, 0) {
		return "", false
	}

	rel := filepath.FromSlash(p)
	if !filepath.IsLocal(rel) {
		return "", false
	}
	return rel, true
}
