package domain

import (
	"context"
	"time"
)

// EventType defines the category of the event.
type EventType string

const (
	EventStep     EventType = "step"
	EventAnswer   EventType = "answer"
	EventComplete EventType = "complete"
)

// EventBase contains common fields for all events.
type EventBase struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	CallID    string    `json:"call_id"`
}

// StepEvent is emitted each time a flow document is computed for a call.
type StepEvent struct {
	EventBase
	Status   Status        `json:"status"`
	Answered int           `json:"answered"`
	Steps    int           `json:"steps"`
	Duration time.Duration `json:"duration"`
}

// UnknownPosition is the AnswerEvent position of a duplicate. A rejected append
// does not tell where the stored original sits.
const UnknownPosition = -1

// AnswerEvent is emitted when an answer was appended (Duplicate false) or
// recognised as a redelivery of an answer already stored (Duplicate true).
// Position is the index the answer was stored at, or UnknownPosition for duplicates.
type AnswerEvent struct {
	EventBase
	Answer    Answer `json:"answer"`
	Position  int    `json:"position"`
	Duplicate bool   `json:"duplicate,omitempty"`
}

// LifecycleHooks defines callbacks for engine observability.
type LifecycleHooks struct {
	OnStep      func(context.Context, *StepEvent)
	OnAnswer    func(context.Context, *AnswerEvent)
	OnComplete  func(context.Context, *StepEvent)
	OnMalformed func(context.Context, string, error)
}
