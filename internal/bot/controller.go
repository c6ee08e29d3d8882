// Package bot drives the publication pipeline: pick one unposted lot,
// render its caption and street-level image, publish the post and
// durably mark the lot posted.
package bot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/everylotbot/everylot/internal/archive"
	"github.com/everylotbot/everylot/internal/caption"
	"github.com/everylotbot/everylot/internal/everylot"
	"github.com/everylotbot/everylot/internal/metrics"
	"github.com/everylotbot/everylot/internal/notify"
	"go.uber.org/zap"
)

// Status is the terminal disposition of a run.
type Status string

// Run dispositions.
const (
	StatusPosted    Status = "posted"
	StatusDryRun    Status = "dry_run"
	StatusExhausted Status = "exhausted"
)

// RunParams selects and tweaks a single run.
type RunParams struct {
	// DryRun renders everything but skips publish and commit. The store
	// is never written.
	DryRun bool

	// LotID forces a specific lot instead of the next unposted one.
	// Zero means automatic selection.
	LotID int64

	// SkipImage posts caption-only without consulting the image service.
	SkipImage bool

	// SaveImage archives the fetched image on a dry run, where archival
	// is otherwise skipped.
	SaveImage bool
}

// Outcome describes how a run ended.
type Outcome struct {
	RunID   string        `json:"run_id"`
	Status  Status        `json:"status"`
	Lot     *everylot.Lot `json:"lot,omitempty"`
	Caption string        `json:"caption,omitempty"`
	PostURL string        `json:"post_url,omitempty"`

	// ImageUnavailable carries the degradation reason when the post went
	// out caption-only.
	ImageUnavailable string `json:"image_unavailable,omitempty"`

	// DuplicatePost is set when the commit found the lot already marked
	// by a concurrent invocation. The new post exists externally and
	// cannot be retracted, so the run still counts as posted.
	DuplicatePost bool `json:"duplicate_post,omitempty"`

	// ArchiveURI is where the fetched image was saved, when archival ran.
	ArchiveURI string `json:"archive_uri,omitempty"`

	// UnpostedLeft counts the lots still waiting after this run.
	// -1 means the count could not be determined.
	UnpostedLeft int64 `json:"unposted_left"`
}

// Config controls Controller behavior.
type Config struct {
	// CaptionMaxLength is the feed service's post length budget.
	CaptionMaxLength int
}

// Controller owns one publication run end to end.
type Controller struct {
	store    everylot.Store
	images   everylot.ImageResolver
	feed     everylot.Publisher
	archiver archive.Archive
	notifier notify.Notifier
	clock    everylot.Clock
	ids      everylot.IDGenerator
	retry    RetryPolicy
	cfg      Config
	logger   *zap.Logger
}

// New constructs a Controller.
func New(
	store everylot.Store,
	images everylot.ImageResolver,
	feed everylot.Publisher,
	archiver archive.Archive,
	notifier notify.Notifier,
	clock everylot.Clock,
	ids everylot.IDGenerator,
	retry RetryPolicy,
	cfg Config,
	logger *zap.Logger,
) *Controller {
	if archiver == nil {
		archiver = archive.NoOp{}
	}
	if notifier == nil {
		notifier = notify.NoOp{}
	}
	if retry == nil {
		retry = NewRetryPolicy(2, 250*time.Millisecond, 2*time.Second)
	}
	if cfg.CaptionMaxLength <= 0 {
		cfg.CaptionMaxLength = 300
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	return &Controller{
		store:    store,
		images:   images,
		feed:     feed,
		archiver: archiver,
		notifier: notifier,
		clock:    clock,
		ids:      ids,
		retry:    retry,
		cfg:      cfg,
		logger:   logger,
	}
}

// Run executes one publication attempt and reports its outcome. A nil
// error means the run reached a terminal state on its own terms; the
// exhausted outcome is not a failure.
func (c *Controller) Run(ctx context.Context, params RunParams) (Outcome, error) {
	runID, err := c.ids.NewID()
	if err != nil {
		return Outcome{UnpostedLeft: -1}, fmt.Errorf("generate run id: %w", err)
	}
	logger := c.logger.With(zap.String("run_id", runID))
	out := Outcome{RunID: runID, UnpostedLeft: -1}

	logger.Debug("Selecting lot", zap.Int64("requested_id", params.LotID))
	lot, err := c.selectLot(ctx, params)
	if errors.Is(err, everylot.ErrExhausted) {
		out.Status = StatusExhausted
		out.UnpostedLeft = 0
		metrics.ObserveRun(string(StatusExhausted))
		logger.Info("Every lot has been posted, nothing to do")
		return out, nil
	}
	if err != nil {
		metrics.ObserveRun("aborted")
		return out, err
	}
	out.Lot = &lot
	logger = logger.With(zap.Int64("lot_id", lot.ID))

	// Rendering the caption cannot fail; an empty lot renders empty.
	out.Caption = caption.Format(lot)

	img := c.resolveImage(ctx, lot, params, &out, logger)

	post := everylot.Post{Text: out.Caption, Image: img}
	if img != nil {
		post.AltText = altText(lot)
	}

	if params.DryRun {
		out.Status = StatusDryRun
		if img != nil && params.SaveImage {
			c.archiveImage(ctx, lot, img, &out, logger)
		}
		c.countRemaining(ctx, &out, logger)
		metrics.ObserveRun(string(StatusDryRun))
		logger.Info("Dry run complete",
			zap.String("address", lot.Address),
			zap.Bool("image", img != nil),
		)
		return out, nil
	}

	logger.Debug("Publishing post", zap.Bool("image", img != nil))
	postURL, err := c.publishWithRetry(ctx, post, logger)
	if err != nil {
		metrics.ObserveRun("aborted")
		return out, fmt.Errorf("publish lot %d: %w", lot.ID, err)
	}
	out.PostURL = postURL

	postedAt := c.clock.Now().UTC()
	logger.Debug("Committing posted state")
	err = c.store.MarkPosted(ctx, lot.ID, postURL, postedAt)
	switch {
	case errors.Is(err, everylot.ErrAlreadyPosted):
		out.DuplicatePost = true
		metrics.IncCommitConflict()
		logger.Warn("Lot was posted concurrently; this post is a duplicate",
			zap.String("post_url", postURL),
		)
	case err != nil:
		// The post is live but unrecorded. Surface the URL so an
		// operator can reconcile the record by hand.
		metrics.ObserveRun("aborted")
		logger.Error("Post is live but could not be recorded",
			zap.String("post_url", postURL),
			zap.Error(err),
		)
		return out, fmt.Errorf("mark lot %d posted (post is live at %s): %w", lot.ID, postURL, err)
	default:
		lot.Posted = true
		lot.PostURL = postURL
		lot.PostedAt = &postedAt
	}

	if img != nil {
		c.archiveImage(ctx, lot, img, &out, logger)
	}
	c.notifyPosted(ctx, runID, lot, postURL, postedAt, logger)

	out.Status = StatusPosted
	c.countRemaining(ctx, &out, logger)
	metrics.ObserveRun(string(StatusPosted))
	logger.Info("Lot posted",
		zap.String("address", lot.Address),
		zap.String("post_url", postURL),
		zap.Bool("duplicate", out.DuplicatePost),
		zap.Int64("unposted_left", out.UnpostedLeft),
	)
	return out, nil
}

// selectLot picks the lot for this run: the explicitly requested one,
// or the unposted lot with the smallest id.
func (c *Controller) selectLot(ctx context.Context, params RunParams) (everylot.Lot, error) {
	if params.LotID == 0 {
		lot, err := c.store.NextUnposted(ctx)
		if err != nil {
			return everylot.Lot{}, fmt.Errorf("select next unposted lot: %w", err)
		}
		return lot, nil
	}

	lot, err := c.store.GetLot(ctx, params.LotID)
	if err != nil {
		return everylot.Lot{}, fmt.Errorf("load lot %d: %w", params.LotID, err)
	}
	// A dry run may re-render a posted lot; a live run must not post it
	// twice.
	if lot.Posted && !params.DryRun {
		return everylot.Lot{}, fmt.Errorf("lot %d: %w", params.LotID, everylot.ErrAlreadyPosted)
	}
	return lot, nil
}

// resolveImage fetches the street-level frame unless the run skips it.
// Image trouble degrades the run to a caption-only post.
func (c *Controller) resolveImage(
	ctx context.Context,
	lot everylot.Lot,
	params RunParams,
	out *Outcome,
	logger *zap.Logger,
) *everylot.Image {
	if params.SkipImage {
		logger.Debug("Image fetch skipped by request")
		return nil
	}

	res := c.images.Resolve(ctx, lot)
	metrics.ObserveImageFetch(!res.Unavailable())
	if res.Unavailable() {
		out.ImageUnavailable = res.Reason
		logger.Warn("No image available, posting caption-only",
			zap.String("reason", res.Reason),
		)
		return nil
	}
	return res.Image
}

// publishWithRetry submits the post, retrying transient failures within
// the policy's budget.
func (c *Controller) publishWithRetry(ctx context.Context, post everylot.Post, logger *zap.Logger) (string, error) {
	for attempt := 0; ; attempt++ {
		start := c.clock.Now()
		url, err := c.feed.Publish(ctx, post)
		elapsed := c.clock.Now().Sub(start)
		if err == nil {
			metrics.ObservePublish("ok", elapsed)
			return url, nil
		}
		metrics.ObservePublish(string(everylot.PublishKindOf(err)), elapsed)

		if !c.retry.ShouldRetry(err, attempt) {
			return "", err
		}
		delay := c.retry.Backoff(attempt)
		logger.Warn("Publish attempt failed, retrying",
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", delay),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return "", fmt.Errorf("canceled during publish backoff: %w", ctx.Err())
		case <-time.After(delay):
		}
	}
}

// archiveImage saves the fetched frame. Archive trouble never fails a
// run whose post is already live.
func (c *Controller) archiveImage(ctx context.Context, lot everylot.Lot, img *everylot.Image, out *Outcome, logger *zap.Logger) {
	uri, err := c.archiver.Save(ctx, lot, img)
	if err != nil {
		logger.Warn("Image archive failed", zap.Error(err))
		return
	}
	if uri != "" {
		out.ArchiveURI = uri
		logger.Debug("Image archived", zap.String("uri", uri))
	}
}

// notifyPosted emits the completion event. Notifier trouble never fails
// a run whose post is already live.
func (c *Controller) notifyPosted(ctx context.Context, runID string, lot everylot.Lot, postURL string, postedAt time.Time, logger *zap.Logger) {
	event := everylot.PostEvent{
		RunID:        runID,
		LotID:        lot.ID,
		Address:      lot.Address,
		Neighborhood: lot.Neighborhood,
		PostURL:      postURL,
		PostedAt:     postedAt,
	}
	if err := c.notifier.Notify(ctx, event); err != nil {
		logger.Warn("Post event notification failed", zap.Error(err))
	}
}

// countRemaining records how many lots still wait. Count trouble is
// reported as -1, never as a run failure.
func (c *Controller) countRemaining(ctx context.Context, out *Outcome, logger *zap.Logger) {
	n, err := c.store.CountUnposted(ctx)
	if err != nil {
		logger.Warn("Could not count remaining lots", zap.Error(err))
		out.UnpostedLeft = -1
		return
	}
	out.UnpostedLeft = n
	metrics.SetUnpostedLots(n)
}

// altText describes the street-view frame for screen readers.
func altText(lot everylot.Lot) string {
	return fmt.Sprintf(
		"Google Streetview of %s, corresponding to Hamilton County Auditor Parcel IDs: %s",
		caption.SanitizeAddress(lot.Address),
		lot.ParcelIDList(),
	)
}
