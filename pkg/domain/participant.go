package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Answer is an opaque reference to one finished recording.
// The engine only counts and appends answers; it never inspects them.
type Answer struct {
	LegID        string `json:"legId"`
	RecordingRef string `json:"recordingId"`
}

// Participant is the survey state of one call.
type Participant struct {
	// CallID is assigned by the telephony platform and is the primary key.
	CallID string `json:"callId"`

	// Destination is informational, set at creation and never mutated.
	Destination string `json:"number"`

	// Answers are kept in arrival order: answer i is the answer to question i.
	Answers []Answer `json:"responses"`

	CreatedAt time.Time `json:"createdAt"`
}

// NewParticipant creates a participant with no answers.
func NewParticipant(callID, destination string) *Participant {
	return &Participant{
		CallID:      callID,
		Destination: destination,
		Answers:     []Answer{},
		CreatedAt:   time.Now().UTC(),
	}
}

// Answered returns the number of recorded answers.
func (p *Participant) Answered() int {
	return len(p.Answers)
}

// HasRecording reports whether an answer with the given recording reference is stored.
func (p *Participant) HasRecording(ref string) bool {
	for _, a := range p.Answers {
		if a.RecordingRef == ref {
			return true
		}
	}
	return false
}

// Snapshot returns a deep copy of the participant.
func (p *Participant) Snapshot() *Participant {
	cp := *p
	cp.Answers = make([]Answer, len(p.Answers))
	copy(cp.Answers, p.Answers)
	return &cp
}

// recordingPayload is the body the platform posts when a record step finishes.
type recordingPayload struct {
	LegID string `json:"legId"`
	ID    string `json:"id"`
}

// ParseAnswer decodes a record-step completion body.
// An empty body yields (nil, nil): the callback carries no answer.
// A body that is not a recording document yields ErrMalformedPayload.
func ParseAnswer(body []byte) (*Answer, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, nil
	}

	var p recordingPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if p.ID == "" {
		return nil, fmt.Errorf("%w: missing recording id", ErrMalformedPayload)
	}

	return &Answer{LegID: p.LegID, RecordingRef: p.ID}, nil
}
