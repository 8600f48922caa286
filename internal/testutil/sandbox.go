// Package testutil provides helpers for tests that touch the filesystem.
package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

// Sandbox gives a test an isolated scratch directory for ledger exports and
// config files. The directory is removed automatically when the test (and
// its subtests) finish; I/O failures fail the owning test directly so
// callers stay free of error plumbing.
type Sandbox struct {
	t    *testing.T
	Root string
}

// NewSandbox creates a Sandbox rooted at a fresh temporary directory.
func NewSandbox(t *testing.T) *Sandbox {
	t.Helper()
	return &Sandbox{t: t, Root: t.TempDir()}
}

// Path returns the absolute path for a file within the sandbox.
func (s *Sandbox) Path(name string) string {
	return filepath.Join(s.Root, name)
}

// WriteFile writes data to the named file inside the sandbox and returns its
// absolute path.
func (s *Sandbox) WriteFile(name string, data []byte) string {
	s.t.Helper()
	path := s.Path(name)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		s.t.Fatalf("sandbox: write %s: %v", name, err)
	}
	return path
}

// ReadFile reads and returns the named file's contents.
func (s *Sandbox) ReadFile(name string) []byte {
	s.t.Helper()
	data, err := os.ReadFile(s.Path(name))
	if err != nil {
		s.t.Fatalf("sandbox: read %s: %v", name, err)
	}
	return data
}
