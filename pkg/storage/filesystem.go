package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// Spool keeps uploaded documents on disk until the print worker is done with them.
type Spool struct {
	baseDir string
}

// NewSpool ensures the spool directory exists and returns a handle.
func NewSpool(baseDir string) (*Spool, error) {
	if baseDir == "" {
		baseDir = "./spool"
	}
	abs, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("resolve spool directory: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create spool directory: %w", err)
	}
	return &Spool{baseDir: abs}, nil
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// SanitizeFileName reduces an uploaded name to a safe PDF file name.
func SanitizeFileName(name string) string {
	base := strings.TrimSpace(filepath.Base(strings.ReplaceAll(name, `\`, "/")))
	if base == "." || base == "/" {
		base = ""
	}
	base = strings.ReplaceAll(base, " ", "_")
	base = unsafeChars.ReplaceAllString(base, "_")
	if base == "" {
		return "document.pdf"
	}
	if !strings.HasSuffix(strings.ToLower(base), ".pdf") {
		base += ".pdf"
	}
	return base
}

// Save writes data under a unique name derived from originalName and returns the
// absolute path of the stored file.
func (s *Spool) Save(originalName string, data []byte) (string, error) {
	name := strings.ReplaceAll(uuid.NewString(), "-", "") + "_" + SanitizeFileName(originalName)
	path := filepath.Join(s.baseDir, name)
	if err := os.WriteFile(path, data, 0o640); err != nil {
		return "", fmt.Errorf("write spool file: %w", err)
	}
	return path, nil
}

// Delete removes a stored file if present. Paths outside the spool are refused.
func (s *Spool) Delete(path string) error {
	resolved, err := s.resolve(path)
	if err != nil {
		return err
	}
	if err := os.Remove(resolved); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete spool file: %w", err)
	}
	return nil
}

// Exists reports whether the stored file is still present.
func (s *Spool) Exists(path string) bool {
	resolved, err := s.resolve(path)
	if err != nil {
		return false
	}
	_, err = os.Stat(resolved)
	return err == nil
}

// Dir returns the spool directory.
func (s *Spool) Dir() string {
	return s.baseDir
}

func (s *Spool) resolve(path string) (string, error) {
	if !filepath.IsAbs(path) {
		path = filepath.Join(s.baseDir, path)
	}
	clean := filepath.Clean(path)
	rel, err := filepath.Rel(s.baseDir, clean)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("path %q is outside the spool directory", path)
	}
	return clean, nil
}
