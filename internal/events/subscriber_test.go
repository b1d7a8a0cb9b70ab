package events

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/blackmichael/volume/internal/domain"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildURL(t *testing.T) {
	got, err := buildURL("http://localhost:3000", []string{"article", "flyer"})
	require.NoError(t, err)
	assert.Equal(t, "ws://localhost:3000/events?type=article&type=flyer", got)

	got, err = buildURL("https://bridge.local/ignored", nil)
	require.NoError(t, err)
	assert.Equal(t, "wss://bridge.local/events", got)
}

func TestFromDomain(t *testing.T) {
	m := FromDomain(domain.Event{
		Kind:        domain.EventFetchFailed,
		ContentType: domain.ContentArticle,
		Partition:   domain.PartitionNotFollowed,
		HasMore:     true,
		Err:         errors.New("dial tcp: connection refused"),
	})
	assert.Equal(t, Message{
		Kind:        "fetch_failed",
		ContentType: "article",
		Partition:   "unfollowed",
		HasMore:     true,
		Error:       "NoConnection",
	}, m)

	refreshed := FromDomain(domain.Event{Kind: domain.EventRefreshed, ContentType: domain.ContentFlyer, HasMore: true})
	assert.Empty(t, refreshed.Partition)
}

func TestParseMessage(t *testing.T) {
	m, err := parseMessage([]byte(`{"kind":"page_loaded","contentType":"magazine","partition":"followed","added":4}`))
	require.NoError(t, err)
	assert.Equal(t, 4, m.Added)

	_, err = parseMessage([]byte(`{"contentType":"magazine"}`))
	assert.Error(t, err)
	_, err = parseMessage([]byte(`nope`))
	assert.Error(t, err)
}

func TestSubscriber_ReceivesAndReconnects(t *testing.T) {
	upgrader := websocket.Upgrader{}
	var connections atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/events", r.URL.Path)
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		n := connections.Add(1)

		conn.WriteMessage(websocket.TextMessage, []byte("garbage"))
		conn.WriteJSON(Message{Kind: "page_loaded", ContentType: "article", Partition: "followed", Added: int(n)})
	}))
	defer srv.Close()

	got := make(chan Message, 4)
	sub, err := NewSubscriber(srv.URL, nil, func(m Message) {
		select {
		case got <- m:
		default:
		}
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	sub.backoff = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sub.Start(ctx) }()

	first := <-got
	second := <-got
	assert.Equal(t, 1, first.Added)
	assert.Equal(t, 2, second.Added)

	cancel()
	err = <-done
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewSubscriber_BadURL(t *testing.T) {
	_, err := NewSubscriber("http://[::1", nil, func(Message) {}, slog.Default())
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "parse bridge url"))
}
