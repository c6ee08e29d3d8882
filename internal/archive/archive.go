// Package archive persists copies of fetched street-view images. Archival is
// a post-commit side effect: failures are logged by the caller and never fail
// a run that already published.
package archive

import (
	"context"
	"fmt"

	"github.com/everylotbot/everylot/internal/everylot"
)

// Archive stores an image for a lot and returns a URI describing where it
// went.
type Archive interface {
	Save(ctx context.Context, lot everylot.Lot, img *everylot.Image) (string, error)
}

// ObjectName names an archived image after its lot.
func ObjectName(lot everylot.Lot, img *everylot.Image) string {
	return fmt.Sprintf("image_%d%s", lot.ID, extension(img))
}

func extension(img *everylot.Image) string {
	if img == nil {
		return ".jpg"
	}
	switch img.MIME {
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	default:
		return ".jpg"
	}
}

// NoOp discards images. It is the default when archival is not configured.
type NoOp struct{}

// Save does nothing and reports an empty URI.
func (NoOp) Save(context.Context, everylot.Lot, *everylot.Image) (string, error) {
	return "", nil
}
