// Package bluesky publishes posts to a Bluesky feed over the AT Protocol
// XRPC API: createSession for an access token, uploadBlob for the image,
// createRecord for the post itself.
package bluesky

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/everylotbot/everylot/internal/everylot"
)

const (
	createSessionPath = "/xrpc/com.atproto.server.createSession"
	uploadBlobPath    = "/xrpc/com.atproto.repo.uploadBlob"
	createRecordPath  = "/xrpc/com.atproto.repo.createRecord"

	postCollection = "app.bsky.feed.post"
)

// Config holds feed credentials and limits.
type Config struct {
	Host          string
	Identifier    string
	Password      string
	MaxPostLength int
	Timeout       time.Duration
}

// Client is an XRPC client for a single Bluesky account.
type Client struct {
	cfg        Config
	httpClient *http.Client
	clock      everylot.Clock
	logger     *zap.Logger
}

// NewClient builds a Client. The clock stamps createdAt on outgoing records.
func NewClient(cfg Config, clock everylot.Clock, logger *zap.Logger) *Client {
	if cfg.Host == "" {
		cfg.Host = "https://bsky.social"
	}
	if cfg.MaxPostLength == 0 {
		cfg.MaxPostLength = 300
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
		clock:      clock,
		logger:     logger,
	}
}

type session struct {
	AccessJWT string `json:"accessJwt"`
	DID       string `json:"did"`
}

type imageEmbed struct {
	Image json.RawMessage `json:"image"`
	Alt   string          `json:"alt"`
}

type imagesEmbed struct {
	Type   string       `json:"$type"`
	Images []imageEmbed `json:"images"`
}

type postRecord struct {
	Type      string       `json:"$type"`
	Text      string       `json:"text"`
	CreatedAt string       `json:"createdAt"`
	Embed     *imagesEmbed `json:"embed,omitempty"`
}

type createRecordRequest struct {
	Repo       string     `json:"repo"`
	Collection string     `json:"collection"`
	Record     postRecord `json:"record"`
}

type createRecordResponse struct {
	URI string `json:"uri"`
	CID string `json:"cid"`
}

// Publish submits the post and returns the public bsky.app URL. Failures
// come back as PublishErrors: credential problems are fatal, rate limits and
// server errors are retryable, everything else the service refused is a
// rejection.
func (c *Client) Publish(ctx context.Context, post everylot.Post) (string, error) {
	if n := utf8.RuneCountInString(post.Text); n > c.cfg.MaxPostLength {
		return "", everylot.NewPublishError(everylot.PublishRejected, "precheck",
			fmt.Errorf("post text is %d characters, limit is %d", n, c.cfg.MaxPostLength))
	}
	if c.cfg.Identifier == "" || c.cfg.Password == "" {
		return "", everylot.NewPublishError(everylot.PublishAuth, "createSession",
			errors.New("bluesky credentials not configured"))
	}

	sess, err := c.createSession(ctx)
	if err != nil {
		return "", err
	}

	var embed *imagesEmbed
	if post.Image != nil {
		blob, err := c.uploadBlob(ctx, sess, post.Image)
		if err != nil {
			return "", err
		}
		embed = &imagesEmbed{
			Type:   "app.bsky.embed.images",
			Images: []imageEmbed{{Image: blob, Alt: post.AltText}},
		}
	}

	uri, err := c.createRecord(ctx, sess, post.Text, embed)
	if err != nil {
		return "", err
	}

	url := webURL(uri)
	c.logger.Debug("published to bluesky", zap.String("uri", uri), zap.String("url", url))
	return url, nil
}

func (c *Client) createSession(ctx context.Context) (session, error) {
	body, err := json.Marshal(map[string]string{
		"identifier": c.cfg.Identifier,
		"password":   c.cfg.Password,
	})
	if err != nil {
		return session{}, everylot.NewPublishError(everylot.PublishRejected, "createSession", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Host+createSessionPath, bytes.NewReader(body))
	if err != nil {
		return session{}, everylot.NewPublishError(everylot.PublishRejected, "createSession", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return session{}, everylot.NewPublishError(everylot.PublishTransient, "createSession", err)
	}
	defer resp.Body.Close()

	// Any authentication trouble here is fatal: retrying bad credentials
	// will not make them right.
	if resp.StatusCode != http.StatusOK {
		kind := everylot.PublishAuth
		if isTransientStatus(resp.StatusCode) {
			kind = everylot.PublishTransient
		}
		return session{}, everylot.NewPublishError(kind, "createSession", statusError(resp))
	}

	var sess session
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&sess); err != nil {
		return session{}, everylot.NewPublishError(everylot.PublishTransient, "createSession", err)
	}
	if sess.AccessJWT == "" || sess.DID == "" {
		return session{}, everylot.NewPublishError(everylot.PublishAuth, "createSession",
			errors.New("session response missing accessJwt or did"))
	}
	return sess, nil
}

func (c *Client) uploadBlob(ctx context.Context, sess session, img *everylot.Image) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Host+uploadBlobPath, bytes.NewReader(img.Bytes))
	if err != nil {
		return nil, everylot.NewPublishError(everylot.PublishRejected, "uploadBlob", err)
	}
	req.Header.Set("Content-Type", img.MIME)
	req.Header.Set("Authorization", "Bearer "+sess.AccessJWT)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, everylot.NewPublishError(everylot.PublishTransient, "uploadBlob", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, everylot.NewPublishError(classifyStatus(resp.StatusCode), "uploadBlob", statusError(resp))
	}

	var parsed struct {
		Blob json.RawMessage `json:"blob"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&parsed); err != nil {
		return nil, everylot.NewPublishError(everylot.PublishTransient, "uploadBlob", err)
	}
	if len(parsed.Blob) == 0 {
		return nil, everylot.NewPublishError(everylot.PublishRejected, "uploadBlob",
			errors.New("upload response missing blob"))
	}
	return parsed.Blob, nil
}

func (c *Client) createRecord(ctx context.Context, sess session, text string, embed *imagesEmbed) (string, error) {
	payload := createRecordRequest{
		Repo:       sess.DID,
		Collection: postCollection,
		Record: postRecord{
			Type:      postCollection,
			Text:      text,
			CreatedAt: c.clock.Now().UTC().Format(time.RFC3339),
			Embed:     embed,
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", everylot.NewPublishError(everylot.PublishRejected, "createRecord", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Host+createRecordPath, bytes.NewReader(body))
	if err != nil {
		return "", everylot.NewPublishError(everylot.PublishRejected, "createRecord", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+sess.AccessJWT)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", everylot.NewPublishError(everylot.PublishTransient, "createRecord", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", everylot.NewPublishError(classifyStatus(resp.StatusCode), "createRecord", statusError(resp))
	}

	var created createRecordResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&created); err != nil {
		return "", everylot.NewPublishError(everylot.PublishTransient, "createRecord", err)
	}
	if created.URI == "" {
		return "", everylot.NewPublishError(everylot.PublishRejected, "createRecord",
			errors.New("create record response missing uri"))
	}
	return created.URI, nil
}

// classifyStatus maps an XRPC response status to a retry class.
func classifyStatus(status int) everylot.PublishKind {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return everylot.PublishAuth
	case isTransientStatus(status):
		return everylot.PublishTransient
	default:
		return everylot.PublishRejected
	}
}

func isTransientStatus(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}

func statusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, msg)
}

// webURL converts an at:// record URI into the public profile URL:
// at://did:plc:xxx/app.bsky.feed.post/rkey becomes
// https://bsky.app/profile/did:plc:xxx/post/rkey. Unparseable URIs come back
// unchanged, which is still a working reference for the post_url column.
func webURL(uri string) string {
	parts := strings.Split(uri, "/")
	if len(parts) < 5 || parts[0] != "at:" {
		return uri
	}
	return fmt.Sprintf("https://bsky.app/profile/%s/post/%s", parts[2], parts[len(parts)-1])
}
