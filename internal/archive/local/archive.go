// Package local archives images to the local filesystem. It backs the
// --save-image flag and development setups without a bucket.
package local

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/everylotbot/everylot/internal/archive"
	"github.com/everylotbot/everylot/internal/everylot"
)

// Config captures the parameters for the filesystem archive.
type Config struct {
	Dir string
}

// Archive writes images under a base directory.
type Archive struct {
	dir string
}

// New creates a filesystem-backed archive, creating the directory when
// needed.
func New(cfg Config) (*Archive, error) {
	if strings.TrimSpace(cfg.Dir) == "" {
		return nil, fmt.Errorf("archive directory is required")
	}

	info, err := os.Stat(cfg.Dir)
	switch {
	case os.IsNotExist(err):
		if mkErr := os.MkdirAll(cfg.Dir, 0o750); mkErr != nil {
			return nil, fmt.Errorf("create archive directory: %w", mkErr)
		}
	case err != nil:
		return nil, fmt.Errorf("stat archive directory: %w", err)
	case !info.IsDir():
		return nil, fmt.Errorf("archive path %q is not a directory", cfg.Dir)
	}

	return &Archive{dir: cfg.Dir}, nil
}

// Save writes the image to disk and returns the file path.
func (a *Archive) Save(_ context.Context, lot everylot.Lot, img *everylot.Image) (string, error) {
	if img == nil {
		return "", fmt.Errorf("image is required")
	}

	fullPath := filepath.Join(a.dir, archive.ObjectName(lot, img))
	if err := os.WriteFile(fullPath, img.Bytes, 0o600); err != nil {
		return "", fmt.Errorf("write image file: %w", err)
	}
	return fullPath, nil
}
