package tools

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ReportExtension is forced onto persisted file names.
const ReportExtension = ".md"

var ErrInvalidFilename = errors.New("invalid filename")

// SanitizeFilename keeps only the base name, so directory components (and
// traversal through them) never reach the filesystem, and appends
// ReportExtension when missing.
func SanitizeFilename(name string) (string, error) {
	name = strings.TrimSpace(strings.ReplaceAll(name, `\`, "/"))
	base := filepath.Base(name)
	switch base {
	case "", ".", "..", "/":
		return "", fmt.Errorf("%w: %q", ErrInvalidFilename, name)
	}
	if !strings.HasSuffix(base, ReportExtension) {
		base += ReportExtension
	}
	return base, nil
}

func (g *Gateway) persist(c PersistCall) Result {
	name, err := SanitizeFilename(c.Filename)
	if err != nil {
		return Failure(fmt.Errorf("Failed to save file: %w", err))
	}
	if err := os.MkdirAll(g.outputDir, 0o755); err != nil {
		return Failure(fmt.Errorf("Failed to save file: %w", err))
	}
	path := filepath.Join(g.outputDir, name)
	if err := os.WriteFile(path, []byte(c.Content), 0o644); err != nil {
		return Failure(fmt.Errorf("Failed to save file: %w", err))
	}
	return Success(fmt.Sprintf("Saved %d bytes to %s", len(c.Content), path))
}
