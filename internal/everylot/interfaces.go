package everylot

import (
	"context"
	"time"
)

// Store persists the parcel dataset and the posted-state transitions.
// Implementations must make MarkPosted a single atomic compare-and-set so
// overlapping invocations can race on selection but at most one commits.
type Store interface {
	// GetLot returns the lot with the given ID regardless of posted state,
	// or ErrNotFound.
	GetLot(ctx context.Context, id int64) (Lot, error)

	// NextUnposted returns the unposted lot with the smallest ID, or
	// ErrExhausted when every lot has been posted. The ordering is part of
	// the contract: repeated calls without intervening writes return the
	// same lot.
	NextUnposted(ctx context.Context) (Lot, error)

	// MarkPosted transitions the lot to posted in one atomic write.
	// It returns ErrAlreadyPosted if the lot was posted by someone else,
	// ErrNotFound if the ID does not exist.
	MarkPosted(ctx context.Context, id int64, postURL string, postedAt time.Time) error

	// CountUnposted reports how many lots remain, for operator visibility.
	CountUnposted(ctx context.Context) (int64, error)

	// ForEachLot visits every lot in ascending ID order until fn returns
	// an error or the dataset is exhausted.
	ForEachLot(ctx context.Context, fn func(Lot) error) error

	// Ping verifies the backing store is reachable.
	Ping(ctx context.Context) error

	// Close releases the underlying connection resources.
	Close() error
}

// ImageResolver turns a lot's address into street-level image bytes.
// Failures never propagate as errors; they degrade to an unavailable
// result with a reason.
type ImageResolver interface {
	Resolve(ctx context.Context, lot Lot) ImageResult
}

// Publisher submits a post to the external feed service and returns the
// public URL of the created post. Failures carry a PublishError
// classification.
type Publisher interface {
	Publish(ctx context.Context, post Post) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
