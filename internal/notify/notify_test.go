package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureSender struct {
	name   string
	err    error
	titles []string
}

func (c *captureSender) Send(_ context.Context, title, _ string) error {
	c.titles = append(c.titles, title)
	return c.err
}

func (c *captureSender) Name() string { return c.name }

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNotifierFiltersEvents(t *testing.T) {
	s := &captureSender{name: "a"}
	n := NewNotifier([]Sender{s}, []string{EventPositionOpened, " ", EventPositionClosed}, quiet())
	ctx := context.Background()

	require.NoError(t, n.Notify(ctx, EventPositionOpened, "opened", ""))
	require.NoError(t, n.Notify(ctx, EventTakeProfit, "tp", ""))
	require.NoError(t, n.NotifyAll(ctx, "startup", ""))
	assert.Equal(t, []string{"opened", "startup"}, s.titles)
	assert.True(t, n.Enabled())
}

func TestNotifierEmptyFilterAllowsAll(t *testing.T) {
	s := &captureSender{name: "a"}
	n := NewNotifier([]Sender{s}, nil, quiet())
	require.NoError(t, n.Notify(context.Background(), EventTakeProfit, "tp", ""))
	assert.Len(t, s.titles, 1)
	assert.False(t, NewNotifier(nil, nil, quiet()).Enabled())
}

func TestNotifierContinuesPastFailingSender(t *testing.T) {
	bad := &captureSender{name: "bad", err: errors.New("boom")}
	good := &captureSender{name: "good"}
	n := NewNotifier([]Sender{bad, good}, nil, quiet())

	err := n.Notify(context.Background(), EventExecutionFailed, "failed", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad: boom")
	assert.Len(t, good.titles, 1)
}

func TestTelegramSender(t *testing.T) {
	bodies := make(chan map[string]any, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/bot123:abc/sendMessage", r.URL.Path)
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		bodies <- body
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := NewTelegramSender("123:abc", "42").WithAPIURL(srv.URL + "/")
	require.NoError(t, s.Send(context.Background(), "Closed <TKN>", "mint So1_a"))
	got := <-bodies
	assert.Equal(t, "42", got["chat_id"])
	assert.Equal(t, "HTML", got["parse_mode"])
	assert.Equal(t, "<b>Closed &lt;TKN&gt;</b>\nmint So1_a", got["text"])
}

func TestDiscordSenderStatus(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusNoContent)
	contents := make(chan string, 2)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		content, _ := body["content"].(string)
		contents <- content
		w.WriteHeader(int(status.Load()))
	}))
	defer srv.Close()

	s := NewDiscordSender(srv.URL)
	require.NoError(t, s.Send(context.Background(), "Opened", "TKN at 0.01"))
	assert.Equal(t, "**Opened**\nTKN at 0.01", <-contents)

	status.Store(http.StatusTooManyRequests)
	err := s.Send(context.Background(), "Opened", "again")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 429")
}
