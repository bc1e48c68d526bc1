package events

import (
	"encoding/json"
	"time"
)

// Event defines the contract for all system events.
type Event interface {
	// EventType returns the unique code for this event (e.g., "TURN_PERSISTED").
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

func (e BaseEvent) EventType() string {
	return e.Type
}

func (e BaseEvent) Payload() map[string]interface{} {
	return e.Data
}

func (e BaseEvent) Timestamp() time.Time {
	return e.OccurredAt
}

const (
	TopicTurnPersisted = "turn.persisted"
	TypeTurnPersisted  = "TURN_PERSISTED"
)

// TurnPersisted is published after a user/assistant pair is committed.
type TurnPersisted struct {
	AnalysisId         string    `json:"analysis_id"`
	UserMessageId      string    `json:"user_message_id"`
	AssistantMessageId string    `json:"assistant_message_id"`
	IsInitial          bool      `json:"is_initial"`
	OccurredAt         time.Time `json:"occurred_at"`
}

func (e TurnPersisted) EventType() string {
	return TypeTurnPersisted
}

func (e TurnPersisted) Payload() map[string]interface{} {
	return map[string]interface{}{
		"analysis_id":          e.AnalysisId,
		"user_message_id":      e.UserMessageId,
		"assistant_message_id": e.AssistantMessageId,
		"is_initial":           e.IsInitial,
	}
}

func (e TurnPersisted) Timestamp() time.Time {
	return e.OccurredAt
}

// Encode wraps any event in the BaseEvent envelope used on the bus.
func Encode(e Event) ([]byte, error) {
	return json.Marshal(BaseEvent{
		Type:       e.EventType(),
		Data:       e.Payload(),
		OccurredAt: e.Timestamp(),
	})
}

// Decode reads the BaseEvent envelope.
func Decode(raw []byte) (BaseEvent, error) {
	var evt BaseEvent
	err := json.Unmarshal(raw, &evt)
	return evt, err
}
