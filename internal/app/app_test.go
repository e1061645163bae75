package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agrisight/agrisight/internal/config"
	"github.com/agrisight/agrisight/internal/transport"
)

// testConfig builds a hermetic config: the ollama provider needs no API
// key and nothing here dials out.
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		Provider:        config.ProviderOllama,
		ModelName:       "ollama/llama3.3",
		OllamaHost:      "http://localhost:11434",
		MaxToolRounds:   3,
		MaxHistoryTurns: 40,
		RateLimitRPS:    5,
		RateLimitBurst:  10,
		DataDir:         dir,
		ProfilePath:     filepath.Join(dir, "profiles.json"),
		SessionDBPath:   filepath.Join(dir, "sessions.db"),
		LogLevel:        "error",
	}
}

func TestSetup(t *testing.T) {
	a, err := Setup(context.Background(), testConfig(t))
	require.NoError(t, err)
	defer func() { _ = a.Close() }()

	assert.NotNil(t, a.Genkit)
	assert.NotNil(t, a.Profiles)
	assert.NotNil(t, a.Sessions)
	assert.NotNil(t, a.Dispatcher)
}

func TestSetup_InvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Provider = "skynet"

	_, err := Setup(context.Background(), cfg)
	assert.ErrorIs(t, err, config.ErrInvalidProvider)
}

func TestClose_Idempotent(t *testing.T) {
	a, err := Setup(context.Background(), testConfig(t))
	require.NoError(t, err)

	require.NoError(t, a.Close())
	require.NoError(t, a.Close())
}

// chanTransport is a minimal in-memory transport for pump tests.
type chanTransport struct {
	events  chan transport.Event
	replies chan transport.Reply
}

func newChanTransport() *chanTransport {
	return &chanTransport{
		events:  make(chan transport.Event),
		replies: make(chan transport.Reply, 16),
	}
}

func (c *chanTransport) Events() <-chan transport.Event { return c.events }

func (c *chanTransport) Send(_ context.Context, _ int64, r transport.Reply) error {
	c.replies <- r
	return nil
}

func (c *chanTransport) Close() error { return nil }

func TestRun_DeliversReplies(t *testing.T) {
	a, err := Setup(context.Background(), testConfig(t))
	require.NoError(t, err)
	defer func() { _ = a.Close() }()

	tr := newChanTransport()
	done := make(chan error, 1)
	go func() { done <- a.Run(context.Background(), tr) }()

	// A new user's first message starts onboarding: no model call needed.
	tr.events <- transport.Event{UserID: 1, Name: "Ana", Text: "hi"}

	select {
	case r := <-tr.replies:
		assert.Contains(t, r.Text, "language")
		assert.NotEmpty(t, r.Options)
	case <-time.After(5 * time.Second):
		t.Fatal("no reply delivered")
	}

	close(tr.events)
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after event stream closed")
	}
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	a, err := Setup(context.Background(), testConfig(t))
	require.NoError(t, err)
	defer func() { _ = a.Close() }()

	tr := newChanTransport()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- a.Run(ctx, tr) }()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
