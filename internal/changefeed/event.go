package changefeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// EventType names a row-level change. Values match Postgres TG_OP.
type EventType string

const (
	EventInsert EventType = "INSERT"
	EventUpdate EventType = "UPDATE"
	EventDelete EventType = "DELETE"
)

// AllEventTypes lists every change kind a subscriber can ask for.
var AllEventTypes = []EventType{EventInsert, EventUpdate, EventDelete}

var errInvalidEvent = errors.New("changefeed: invalid event")

// Event describes one committed change to a table.
type Event struct {
	Table     string    `json:"table"`
	Type      EventType `json:"type"`
	RecordID  int64     `json:"record_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Publisher fans a change event out to interested subscribers.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Subscriber hands out change streams keyed by table and event type.
// The returned release function is idempotent and must be called when the stream is no longer read.
type Subscriber interface {
	Subscribe(ctx context.Context, table string, types ...EventType) (<-chan Event, func())
}

func (e Event) validate() error {
	if strings.TrimSpace(e.Table) == "" {
		return fmt.Errorf("%w: table required", errInvalidEvent)
	}
	switch e.Type {
	case EventInsert, EventUpdate, EventDelete:
		return nil
	default:
		return fmt.Errorf("%w: unknown type %q", errInvalidEvent, e.Type)
	}
}

func encodeEvent(event Event) (string, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return "", err
	}
	return string(payload), nil
}

func decodeEvent(payload string) (Event, error) {
	var event Event
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		return Event{}, fmt.Errorf("%w: %v", errInvalidEvent, err)
	}
	event.Type = EventType(strings.ToUpper(string(event.Type)))
	if err := event.validate(); err != nil {
		return Event{}, err
	}
	return event, nil
}
