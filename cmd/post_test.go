package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/everylotbot/everylot/internal/bot"
	"github.com/everylotbot/everylot/internal/everylot"
)

func TestPostCommandPostsLot(t *testing.T) {
	pub := &stubPublisher{}
	a, store := newFixtureApp([]everylot.Lot{fixtureLot()}, pub)
	installApp(t, a)

	var stdout, stderr bytes.Buffer
	code := run([]string{"post"}, &stdout, &stderr)

	require.Equal(t, exitOK, code, "stderr: %s", stderr.String())

	var out bot.Outcome
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &out))
	assert.Equal(t, bot.StatusPosted, out.Status)
	require.NotNil(t, out.Lot)
	assert.Equal(t, int64(1), out.Lot.ID)
	assert.NotEmpty(t, out.PostURL)

	n, err := store.CountUnposted(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
	assert.True(t, a.closed)
}

func TestPostCommandDryRunLeavesStoreUnchanged(t *testing.T) {
	pub := &stubPublisher{}
	a, store := newFixtureApp([]everylot.Lot{fixtureLot()}, pub)
	installApp(t, a)

	var stdout, stderr bytes.Buffer
	code := run([]string{"post", "--dry-run"}, &stdout, &stderr)

	require.Equal(t, exitOK, code, "stderr: %s", stderr.String())

	var out bot.Outcome
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &out))
	assert.Equal(t, bot.StatusDryRun, out.Status)
	assert.Empty(t, pub.posts)

	n, err := store.CountUnposted(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestPostCommandExhaustedExitCode(t *testing.T) {
	a, _ := newFixtureApp(nil, &stubPublisher{})
	installApp(t, a)

	var stdout, stderr bytes.Buffer
	code := run([]string{"post"}, &stdout, &stderr)

	assert.Equal(t, exitExhausted, code)
	assert.Contains(t, stderr.String(), "every lot has been posted")

	var out bot.Outcome
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &out))
	assert.Equal(t, bot.StatusExhausted, out.Status)
}

func TestPostCommandPublishFailureExitCode(t *testing.T) {
	pub := &stubPublisher{err: everylot.NewPublishError(everylot.PublishRejected, "create post", assert.AnError)}
	a, store := newFixtureApp([]everylot.Lot{fixtureLot()}, pub)
	installApp(t, a)

	var stdout, stderr bytes.Buffer
	code := run([]string{"post"}, &stdout, &stderr)

	assert.Equal(t, exitAborted, code)
	assert.Contains(t, stderr.String(), "Error:")

	n, err := store.CountUnposted(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestPostCommandNoImageSkipsResolver(t *testing.T) {
	pub := &stubPublisher{}
	a, _ := newFixtureApp([]everylot.Lot{fixtureLot()}, pub)
	installApp(t, a)

	var stdout, stderr bytes.Buffer
	code := run([]string{"post", "--no-image", "--id", "1"}, &stdout, &stderr)

	require.Equal(t, exitOK, code, "stderr: %s", stderr.String())
	require.Len(t, pub.posts, 1)
	assert.Nil(t, pub.posts[0].Image)

	var out bot.Outcome
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &out))
	assert.False(t, out.ImageUnavailable)
}
