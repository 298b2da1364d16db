package events

import (
	"encoding/json"
	"time"
)

// State lifecycle event types.
const (
	TypeBackendFailover = "STATE_BACKEND_FAILOVER"
	TypeBackendRestored = "STATE_BACKEND_RESTORED"
	TypeSessionsCleaned = "STATE_SESSIONS_CLEANED"
)

// Event defines the contract for all system events.
type Event interface {
	// EventType returns the unique code for this event (e.g., "STATE_BACKEND_FAILOVER").
	EventType() string

	// Payload returns the data associated with the event.
	Payload() map[string]interface{}

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

type BaseEvent struct {
	Type       string                 `json:"type"`
	Data       map[string]interface{} `json:"data"`
	OccurredAt time.Time              `json:"occurred_at"`
}

func NewEvent(eventType string, data map[string]interface{}) BaseEvent {
	return BaseEvent{
		Type:       eventType,
		Data:       data,
		OccurredAt: time.Now(),
	}
}

func (e BaseEvent) EventType() string {
	return e.Type
}

func (e BaseEvent) Payload() map[string]interface{} {
	return e.Data
}

func (e BaseEvent) Timestamp() time.Time {
	return e.OccurredAt
}

// Encode serialises any Event into the envelope shared by the bus and NATS.
func Encode(event Event) ([]byte, error) {
	return json.Marshal(BaseEvent{
		Type:       event.EventType(),
		Data:       event.Payload(),
		OccurredAt: event.Timestamp(),
	})
}

func Decode(data []byte) (BaseEvent, error) {
	var evt BaseEvent
	err := json.Unmarshal(data, &evt)
	return evt, err
}
