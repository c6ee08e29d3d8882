// Package streetview resolves a lot's address to imagery through the Google
// Street View Static API.
//
// Resolution never fails the run: a missing key, an address with no imagery,
// or a flaky upstream all degrade to an unavailable result carrying the
// reason, and the caller decides what a post without a picture looks like.
package streetview

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/everylotbot/everylot/internal/everylot"
)

// Street View serves fixed-size frames; anything bigger than this is not an
// image we asked for.
const maxImageBytes = 5 << 20

// Config parameterizes the Street View Static API client.
type Config struct {
	APIKey  string
	BaseURL string
	Size    string
	FOV     int
	Pitch   int
	City    string
	State   string
	Timeout time.Duration
}

// Client fetches street-level imagery for lots.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient builds a Client with a bounded-timeout HTTP client.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://maps.googleapis.com/maps/api/streetview"
	}
	if cfg.Size == "" {
		cfg.Size = "640x640"
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

type metadataResponse struct {
	Status string `json:"status"`
}

// Resolve returns imagery for the lot or an unavailable result with a reason.
func (c *Client) Resolve(ctx context.Context, lot everylot.Lot) everylot.ImageResult {
	if c.cfg.APIKey == "" {
		return c.unavailable(lot, "streetview api key not configured")
	}
	if lot.Address == "" {
		return c.unavailable(lot, "lot has no address")
	}

	location := c.location(lot)

	if reason := c.checkMetadata(ctx, location); reason != "" {
		return c.unavailable(lot, reason)
	}

	img, reason := c.fetchImage(ctx, location)
	if reason != "" {
		return c.unavailable(lot, reason)
	}

	c.logger.Debug("street view image resolved",
		zap.Int64("lot_id", lot.ID),
		zap.String("location", location),
		zap.Int("bytes", len(img.Bytes)),
	)
	return everylot.ImageResult{Image: img}
}

// checkMetadata asks the metadata endpoint whether imagery exists before
// paying for a frame. Only an "OK" status proceeds; the endpoint is free, so
// a negative answer here saves a billed request that would return a grey
// placeholder.
func (c *Client) checkMetadata(ctx context.Context, location string) string {
	query := url.Values{}
	query.Set("location", location)
	query.Set("key", c.cfg.APIKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/metadata?"+query.Encode(), nil)
	if err != nil {
		return fmt.Sprintf("build metadata request: %v", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Sprintf("metadata request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Sprintf("metadata request returned status %d", resp.StatusCode)
	}

	var meta metadataResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&meta); err != nil {
		return fmt.Sprintf("decode metadata response: %v", err)
	}
	if meta.Status != "OK" {
		return fmt.Sprintf("no imagery at location (status %s)", meta.Status)
	}
	return ""
}

func (c *Client) fetchImage(ctx context.Context, location string) (*everylot.Image, string) {
	query := url.Values{}
	query.Set("location", location)
	query.Set("size", c.cfg.Size)
	query.Set("fov", strconv.Itoa(c.cfg.FOV))
	query.Set("pitch", strconv.Itoa(c.cfg.Pitch))
	query.Set("key", c.cfg.APIKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Sprintf("build image request: %v", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Sprintf("image request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Sprintf("image request returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return nil, fmt.Sprintf("read image body: %v", err)
	}
	if len(body) == 0 {
		return nil, "image body was empty"
	}
	if len(body) > maxImageBytes {
		return nil, fmt.Sprintf("image body exceeds %d bytes", maxImageBytes)
	}

	mime := resp.Header.Get("Content-Type")
	if mime == "" {
		mime = "image/jpeg"
	}
	return &everylot.Image{Bytes: body, MIME: mime}, ""
}

// location formats the search string the imagery API geocodes. The raw
// auditor address works better here than the sanitized one.
func (c *Client) location(lot everylot.Lot) string {
	loc := lot.Address
	if c.cfg.City != "" {
		loc += ", " + c.cfg.City
	}
	if c.cfg.State != "" {
		loc += ", " + c.cfg.State
	}
	return loc
}

func (c *Client) unavailable(lot everylot.Lot, reason string) everylot.ImageResult {
	c.logger.Warn("street view image unavailable",
		zap.Int64("lot_id", lot.ID),
		zap.String("reason", reason),
	)
	return everylot.ImageResult{Reason: reason}
}
