package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Saver writes artifacts into the download directory.
type Saver struct {
	dir string
}

// NewSaver creates the download directory if needed.
func NewSaver(dir string) (*Saver, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create download directory %s: %w", dir, err)
	}
	return &Saver{dir: dir}, nil
}

// Save writes the artifact and returns its path. Existing files are never
// overwritten; a unique suffix is added instead.
func (s *Saver) Save(a *Artifact) (string, error) {
	name := filepath.Base(a.Filename)
	if name == "." || name == string(filepath.Separator) || name == "" {
		name = DefaultFilename()
	}

	path := filepath.Join(s.dir, name)
	if _, err := os.Stat(path); err == nil {
		ext := filepath.Ext(name)
		base := strings.TrimSuffix(name, ext)
		path = filepath.Join(s.dir, fmt.Sprintf("%s-%s%s", base, uuid.NewString()[:8], ext))
	}

	if err := os.WriteFile(path, a.Data, 0644); err != nil {
		return "", fmt.Errorf("failed to write report file: %w", err)
	}
	return path, nil
}

// DefaultFilename names a report when the backend does not.
func DefaultFilename() string {
	return fmt.Sprintf("meal-plan-report-%s.pdf", uuid.NewString()[:8])
}
