package middleware

import (
	"context"
	"strings"

	"github.com/aretw0/voicesurvey/pkg/ports"
)

// MaskChar replaces hidden characters of a destination.
const MaskChar = "*"

type piiMiddleware struct {
	ports.ParticipantStore
	keep int
}

// NewPIIMiddleware creates a middleware that masks destination numbers before they
// are stored, keeping only the last keep characters visible.
// The mask is irreversible: reads return the masked value.
func NewPIIMiddleware(keep int) Middleware {
	if keep < 0 {
		keep = 0
	}
	return func(next ports.ParticipantStore) ports.ParticipantStore {
		return &piiMiddleware{ParticipantStore: next, keep: keep}
	}
}

func (m *piiMiddleware) Create(ctx context.Context, callID, destination string) error {
	return m.ParticipantStore.Create(ctx, callID, MaskDestination(destination, m.keep))
}

// MaskDestination hides all but the last keep characters of s.
func MaskDestination(s string, keep int) string {
	if len(s) <= keep {
		return s
	}
	return strings.Repeat(MaskChar, len(s)-keep) + s[len(s)-keep:]
}
