package ports

import (
	"context"

	"github.com/aretw0/voicesurvey/pkg/domain"
)

// CallFlowEngine computes the next flow document for an inbound callback.
// This is the interface used by inbound adapters (e.g., HTTP).
type CallFlowEngine interface {
	// NextStep records the callback's answer, if any, and returns what the call does next.
	NextStep(ctx context.Context, cb domain.Callback) (*domain.StepResult, error)

	// Participants lists every participant with its status.
	Participants(ctx context.Context) ([]domain.ParticipantView, error)

	// Catalog returns the question catalog the engine serves.
	Catalog() *domain.Catalog
}
