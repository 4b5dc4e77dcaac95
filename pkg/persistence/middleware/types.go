package middleware

import "github.com/aretw0/voicesurvey/pkg/ports"

// Middleware allows wrapping a ParticipantStore to add behavior.
type Middleware func(ports.ParticipantStore) ports.ParticipantStore

// Chain applies middlewares so that the first one is the outermost.
func Chain(store ports.ParticipantStore, mws ...Middleware) ports.ParticipantStore {
	for i := len(mws) - 1; i >= 0; i-- {
		store = mws[i](store)
	}
	return store
}
