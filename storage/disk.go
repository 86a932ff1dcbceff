// Package storage persists fetched response bodies to disk. Persistence is
// fire-and-forget: failures are logged and never reach the caller.
package storage

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

// Persister stores the body fetched from a URL. Implementations must be safe
// for concurrent use and must not return errors to the caller.
type Persister interface {
	Persist(rawURL string, body []byte)
}

// ErrUnsafePath is returned by PathFor when a URL path would escape the
// output directory.
var ErrUnsafePath = errors.New("url path escapes output directory")

// DiskStore writes each body to <dir>/<url path>.html, using index.html for
// the site root.
type DiskStore struct {
	dir string
	log logrus.FieldLogger
}

// NewDiskStore returns a store rooted at dir.
func NewDiskStore(dir string, log logrus.FieldLogger) *DiskStore {
	return &DiskStore{dir: dir, log: log}
}

// Persist writes body for rawURL, creating parent directories as needed.
func (s *DiskStore) Persist(rawURL string, body []byte) {
	path, err := s.PathFor(rawURL)
	if err == nil {
		err = writeFile(path, body)
	}
	if err != nil {
		s.log.WithFields(logrus.Fields{"url": rawURL}).WithError(err).Warn("Failed to write document to disk")
		return
	}
	s.log.WithFields(logrus.Fields{"url": rawURL, "path": path, "bytes": len(body)}).Debug("Stored response")
}

// PathFor maps rawURL onto a file below the store's directory. Query strings
// and fragments are ignored.
func (s *DiskStore) PathFor(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}

	name := strings.Trim(u.Path, "/")
	if name == "" {
		name = "index"
	}
	target := filepath.Join(s.dir, filepath.FromSlash(name)+".html")

	rel, err := filepath.Rel(s.dir, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrUnsafePath, u.Path)
	}
	return target, nil
}

func writeFile(path string, body []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	if err := os.WriteFile(path, body, 0o644); err != nil {
		return fmt.Errorf("write file: %w", err)
	}
	return nil
}
