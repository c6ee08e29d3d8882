package bluesky

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/everylotbot/everylot/internal/everylot"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

var testTime = time.Date(2025, 3, 14, 15, 9, 26, 0, time.UTC)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	return NewClient(Config{
		Host:          ts.URL,
		Identifier:    "everylot.example.com",
		Password:      "app-password",
		MaxPostLength: 300,
		Timeout:       2 * time.Second,
	}, fixedClock{now: testTime}, zap.NewNop())
}

func sessionHandler(t *testing.T) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		var creds map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&creds))
		require.Equal(t, "everylot.example.com", creds["identifier"])
		require.Equal(t, "app-password", creds["password"])
		_, _ = w.Write([]byte(`{"accessJwt":"jwt-token","did":"did:plc:abc123"}`))
	}
}

func TestPublishWithImage(t *testing.T) {
	t.Parallel()

	imageBytes := []byte{0xff, 0xd8, 0xff, 0xe0}

	mux := http.NewServeMux()
	mux.HandleFunc(createSessionPath, sessionHandler(t))
	mux.HandleFunc(uploadBlobPath, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer jwt-token", r.Header.Get("Authorization"))
		require.Equal(t, "image/jpeg", r.Header.Get("Content-Type"))
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.Equal(t, imageBytes, body)
		_, _ = w.Write([]byte(`{"blob":{"$type":"blob","ref":{"$link":"bafyrei"},"mimeType":"image/jpeg","size":4}}`))
	})
	mux.HandleFunc(createRecordPath, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer jwt-token", r.Header.Get("Authorization"))

		var payload struct {
			Repo       string `json:"repo"`
			Collection string `json:"collection"`
			Record     struct {
				Type      string `json:"$type"`
				Text      string `json:"text"`
				CreatedAt string `json:"createdAt"`
				Embed     *struct {
					Type   string `json:"$type"`
					Images []struct {
						Alt   string          `json:"alt"`
						Image json.RawMessage `json:"image"`
					} `json:"images"`
				} `json:"embed"`
			} `json:"record"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		require.Equal(t, "did:plc:abc123", payload.Repo)
		require.Equal(t, "app.bsky.feed.post", payload.Collection)
		require.Equal(t, "app.bsky.feed.post", payload.Record.Type)
		require.Equal(t, "100 Oak Street, 45202", payload.Record.Text)
		require.Equal(t, "2025-03-14T15:09:26Z", payload.Record.CreatedAt)
		require.NotNil(t, payload.Record.Embed)
		require.Equal(t, "app.bsky.embed.images", payload.Record.Embed.Type)
		require.Len(t, payload.Record.Embed.Images, 1)
		require.Contains(t, payload.Record.Embed.Images[0].Alt, "Google Streetview of 100 Oak Street")
		require.NotEmpty(t, payload.Record.Embed.Images[0].Image)

		_, _ = w.Write([]byte(`{"uri":"at://did:plc:abc123/app.bsky.feed.post/3kxyz","cid":"bafyrei"}`))
	})

	c := newTestClient(t, mux)
	url, err := c.Publish(context.Background(), everylot.Post{
		Text:    "100 Oak Street, 45202",
		Image:   &everylot.Image{Bytes: imageBytes, MIME: "image/jpeg"},
		AltText: "Google Streetview of 100 Oak Street, corresponding to Hamilton County Auditor Parcel IDs: 0610002004300",
	})
	require.NoError(t, err)
	require.Equal(t, "https://bsky.app/profile/did:plc:abc123/post/3kxyz", url)
}

func TestPublishWithoutImage(t *testing.T) {
	t.Parallel()

	var uploadCalled bool
	mux := http.NewServeMux()
	mux.HandleFunc(createSessionPath, sessionHandler(t))
	mux.HandleFunc(uploadBlobPath, func(http.ResponseWriter, *http.Request) {
		uploadCalled = true
	})
	mux.HandleFunc(createRecordPath, func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NotContains(t, string(body), `"embed"`)
		_, _ = w.Write([]byte(`{"uri":"at://did:plc:abc123/app.bsky.feed.post/3kcaption","cid":"bafyrei"}`))
	})

	c := newTestClient(t, mux)
	url, err := c.Publish(context.Background(), everylot.Post{Text: "caption only"})
	require.NoError(t, err)
	require.Equal(t, "https://bsky.app/profile/did:plc:abc123/post/3kcaption", url)
	require.False(t, uploadCalled, "caption-only posts must not upload a blob")
}

func TestPublishRejectsOverlongText(t *testing.T) {
	t.Parallel()

	var called bool
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(http.ResponseWriter, *http.Request) { called = true })

	c := newTestClient(t, mux)
	_, err := c.Publish(context.Background(), everylot.Post{Text: strings.Repeat("x", 301)})

	require.Error(t, err)
	require.True(t, everylot.IsRejected(err))
	require.False(t, called, "overlong text must be rejected before any request")
}

func TestPublishMissingCredentials(t *testing.T) {
	t.Parallel()

	c := NewClient(Config{Host: "http://127.0.0.1:1"}, fixedClock{now: testTime}, zap.NewNop())
	_, err := c.Publish(context.Background(), everylot.Post{Text: "hello"})

	require.Error(t, err)
	require.True(t, everylot.IsAuthFailure(err))
}

func TestPublishBadCredentials(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc(createSessionPath, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":"AuthenticationRequired"}`, http.StatusUnauthorized)
	})

	c := newTestClient(t, mux)
	_, err := c.Publish(context.Background(), everylot.Post{Text: "hello"})

	require.Error(t, err)
	require.True(t, everylot.IsAuthFailure(err))
}

func TestPublishRateLimited(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc(createSessionPath, sessionHandler(t))
	mux.HandleFunc(createRecordPath, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":"RateLimitExceeded"}`, http.StatusTooManyRequests)
	})

	c := newTestClient(t, mux)
	_, err := c.Publish(context.Background(), everylot.Post{Text: "hello"})

	require.Error(t, err)
	require.True(t, everylot.IsTransient(err))
}

func TestPublishServerError(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc(createSessionPath, sessionHandler(t))
	mux.HandleFunc(createRecordPath, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "upstream exploded", http.StatusBadGateway)
	})

	c := newTestClient(t, mux)
	_, err := c.Publish(context.Background(), everylot.Post{Text: "hello"})

	require.Error(t, err)
	require.True(t, everylot.IsTransient(err))
}

func TestPublishContentRejected(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc(createSessionPath, sessionHandler(t))
	mux.HandleFunc(createRecordPath, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":"InvalidRequest"}`, http.StatusBadRequest)
	})

	c := newTestClient(t, mux)
	_, err := c.Publish(context.Background(), everylot.Post{Text: "hello"})

	require.Error(t, err)
	require.True(t, everylot.IsRejected(err))
}

func TestPublishUploadBlobAuthFailure(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc(createSessionPath, sessionHandler(t))
	mux.HandleFunc(uploadBlobPath, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":"ExpiredToken"}`, http.StatusForbidden)
	})

	c := newTestClient(t, mux)
	_, err := c.Publish(context.Background(), everylot.Post{
		Text:  "hello",
		Image: &everylot.Image{Bytes: []byte{0x01}, MIME: "image/jpeg"},
	})

	require.Error(t, err)
	require.True(t, everylot.IsAuthFailure(err))
}

func TestPublishNetworkError(t *testing.T) {
	t.Parallel()

	c := NewClient(Config{
		Host:       "http://127.0.0.1:1",
		Identifier: "everylot.example.com",
		Password:   "app-password",
		Timeout:    500 * time.Millisecond,
	}, fixedClock{now: testTime}, zap.NewNop())

	_, err := c.Publish(context.Background(), everylot.Post{Text: "hello"})

	require.Error(t, err)
	require.True(t, everylot.IsTransient(err))
}

func TestWebURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		uri  string
		want string
	}{
		{
			uri:  "at://did:plc:abc123/app.bsky.feed.post/3kxyz",
			want: "https://bsky.app/profile/did:plc:abc123/post/3kxyz",
		},
		{
			// Unparseable URIs fall back to the raw value.
			uri:  "weird-uri",
			want: "weird-uri",
		},
	}

	for _, tt := range tests {
		if got := webURL(tt.uri); got != tt.want {
			t.Fatalf("webURL(%q) = %q, want %q", tt.uri, got, tt.want)
		}
	}
}
