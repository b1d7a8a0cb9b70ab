// Package events carries aggregator change notifications between the
// rendering-surface bridge and its clients.
package events

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
)

const defaultBackoff = 5 * time.Second

// Subscriber connects to a bridge's /events stream and hands every message to
// a callback.
type Subscriber struct {
	url     string
	handle  func(Message)
	backoff time.Duration
	logger  *slog.Logger
}

// NewSubscriber creates a new event subscriber. contentTypes, if non-empty,
// restricts the stream to those feeds.
func NewSubscriber(bridgeURL string, contentTypes []string, handle func(Message), logger *slog.Logger) (*Subscriber, error) {
	wsURL, err := buildURL(bridgeURL, contentTypes)
	if err != nil {
		return nil, err
	}
	return &Subscriber{
		url:     wsURL,
		handle:  handle,
		backoff: defaultBackoff,
		logger:  logger,
	}, nil
}

// Start connects to the stream and processes events until the context is
// cancelled. It reconnects after transient errors.
func (s *Subscriber) Start(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			if err := s.subscribe(ctx); err != nil {
				s.logger.Error("event stream error, reconnecting", "error", err)
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(s.backoff):
				}
			}
		}
	}
}

func buildURL(bridgeURL string, contentTypes []string) (string, error) {
	u, err := url.Parse(bridgeURL)
	if err != nil {
		return "", fmt.Errorf("parse bridge url: %w", err)
	}
	switch u.Scheme {
	case "http", "":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u.Path = "/events"
	q := u.Query()
	for _, t := range contentTypes {
		q.Add("type", t)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (s *Subscriber) subscribe(ctx context.Context) error {
	s.logger.Info("connecting to event stream", "url", s.url)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return fmt.Errorf("dial event stream: %w", err)
	}
	defer conn.Close()

	// ReadMessage does not observe ctx.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read message: %w", err)
		}

		msg, err := parseMessage(data)
		if err != nil {
			s.logger.Error("failed to parse event", "error", err)
			continue
		}
		s.handle(msg)
	}
}
