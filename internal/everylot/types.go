// Package everylot defines core types shared across subsystems.
package everylot

import (
	"strings"
	"time"
)

// Lot represents one row of the parcel dataset: a single taxable lot,
// possibly aggregating several underlying auditor parcels (condos that
// share one address, for example). Rows are produced by the offline ETL
// pipeline; the bot only ever flips the posted-state columns.
type Lot struct {
	// ID is the ogc_fid primary key. It doubles as the stable selection
	// order: the next candidate is always the unposted lot with the
	// smallest ID.
	ID int64 `json:"id"`

	Address      string `json:"address"`
	ZipCode      string `json:"zip_code,omitempty"`
	Zoning       string `json:"zoning,omitempty"`
	Neighborhood string `json:"neighborhood"`

	// Valuation and size fields are optional; nil means the assessor
	// carries no figure for the lot.
	LandValue        *float64 `json:"land_value,omitempty"`
	ImprovementValue *float64 `json:"improvement_value,omitempty"`
	TotalMarketValue *float64 `json:"total_market_value,omitempty"`
	Acreage          *float64 `json:"acreage,omitempty"`

	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lon"`

	// ParcelIDs holds the auditor parcel identifiers aggregated into this
	// lot. Non-empty for every row.
	ParcelIDs []string `json:"parcel_ids"`

	// Posted, PostURL and PostedAt change together and only once:
	// Posted == true iff PostURL != "" and PostedAt != nil.
	Posted   bool       `json:"is_posted"`
	PostURL  string     `json:"post_url,omitempty"`
	PostedAt *time.Time `json:"post_date,omitempty"`
}

// ParcelIDList renders the auditor parcel identifiers as a single
// comma-separated string for captions and alt text.
func (l Lot) ParcelIDList() string {
	return strings.Join(l.ParcelIDs, ", ")
}

// HasImprovement reports whether the lot carries a positive improvement
// value. Used by the optional selection filter that reproduces the
// historical "skip vacant lots" behavior.
func (l Lot) HasImprovement() bool {
	return l.ImprovementValue != nil && *l.ImprovementValue > 0
}

// Image is a fetched street-level photo ready for upload.
type Image struct {
	Bytes []byte
	MIME  string
}

// ImageResult is the outcome of resolving a street-level image for a lot.
// Either Image is set, or Reason explains why no image is available.
// Image resolution never fails a run; a caption-only post is an
// acceptable degraded outcome.
type ImageResult struct {
	Image  *Image
	Reason string
}

// Unavailable reports whether the result degraded to a caption-only post.
func (r ImageResult) Unavailable() bool {
	return r.Image == nil
}

// Post is the payload submitted to the feed service.
type Post struct {
	Text    string
	Image   *Image
	AltText string
}

// PostEvent is emitted after a lot has been durably marked posted.
// Notifier providers fan it out to downstream consumers.
type PostEvent struct {
	RunID        string    `json:"run_id"`
	LotID        int64     `json:"lot_id"`
	Address      string    `json:"address"`
	Neighborhood string    `json:"neighborhood"`
	PostURL      string    `json:"post_url"`
	PostedAt     time.Time `json:"posted_at"`
}
