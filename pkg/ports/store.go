package ports

import (
	"context"

	"github.com/aretw0/voicesurvey/pkg/domain"
)

// ParticipantStore persists one participant per call.
// Implementations must be safe for concurrent use.
type ParticipantStore interface {
	// Find returns the participant for a call.
	// Returns domain.ErrParticipantNotFound if the call has no participant.
	Find(ctx context.Context, callID string) (*domain.Participant, error)

	// Create inserts a participant with no answers if none exists for the call.
	// Creating an existing participant is a no-op and leaves it untouched.
	Create(ctx context.Context, callID, destination string) error

	// AppendAnswer atomically appends an answer and returns the answer count afterwards.
	// It must not be a read-modify-write from the caller's side: the store itself
	// guarantees that concurrent appends for one call neither lose updates nor push
	// the count past limit. An answer whose RecordingRef is already stored, or an
	// append when the count already equals limit, changes nothing.
	// Returns domain.ErrParticipantNotFound if the call has no participant.
	AppendAnswer(ctx context.Context, callID string, answer domain.Answer, limit int) (int, error)

	// List returns every participant. Order is implementation specific.
	List(ctx context.Context) ([]*domain.Participant, error)
}
