package events

import (
	"encoding/json"
	"fmt"

	"github.com/blackmichael/volume/internal/domain"
)

// Message is the JSON form of a domain.Event as sent on the /events stream.
type Message struct {
	Kind        string `json:"kind"`
	ContentType string `json:"contentType"`
	Partition   string `json:"partition,omitempty"`
	Added       int    `json:"added,omitempty"`
	HasMore     bool   `json:"hasMore"`
	Error       string `json:"error,omitempty"`
}

// FromDomain converts an aggregator event to its wire form. Fetch failures
// only carry the "NoConnection" marker, never the underlying error text.
func FromDomain(e domain.Event) Message {
	m := Message{
		Kind:        string(e.Kind),
		ContentType: string(e.ContentType),
		Added:       e.Added,
		HasMore:     e.HasMore,
	}
	if e.Kind != domain.EventRefreshed {
		m.Partition = e.Partition.String()
	}
	if e.Err != nil {
		m.Error = "NoConnection"
	}
	return m
}

func parseMessage(data []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}, fmt.Errorf("unmarshal event: %w", err)
	}
	if m.Kind == "" {
		return Message{}, fmt.Errorf("event has no kind")
	}
	return m, nil
}
