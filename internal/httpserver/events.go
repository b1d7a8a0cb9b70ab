package httpserver

import (
	"net/http"
	"time"

	"github.com/blackmichael/volume/internal/domain"
	"github.com/blackmichael/volume/internal/events"
	"github.com/gorilla/websocket"
)

const (
	eventBuffer  = 64
	writeTimeout = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// handleEvents streams aggregator events over a websocket. The optional
// repeated "type" query parameter restricts the stream to some feeds.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	var aggs []*domain.Aggregator
	if types := r.URL.Query()["type"]; len(types) > 0 {
		for _, raw := range types {
			t, err := domain.ParseContentType(raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "InvalidRequest", err.Error())
				return
			}
			if agg, ok := s.aggregators[t]; ok {
				aggs = append(aggs, agg)
			}
		}
	} else {
		for _, agg := range s.aggregators {
			aggs = append(aggs, agg)
		}
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ch := make(chan events.Message, eventBuffer)
	for _, agg := range aggs {
		unsubscribe := agg.Subscribe(func(e domain.Event) {
			select {
			case ch <- events.FromDomain(e):
			default:
				s.logger.Warn("dropping event for slow client", "kind", e.Kind, "content_type", e.ContentType)
			}
		})
		defer unsubscribe()
	}

	// The client never sends anything; reading detects the close.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case msg := <-ch:
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteJSON(msg); err != nil {
				s.logger.Debug("event stream write failed", "error", err)
				return
			}
		}
	}
}
