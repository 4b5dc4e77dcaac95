package domain

import "errors"

// ErrParticipantNotFound is returned when no participant exists for a call ID.
var ErrParticipantNotFound = errors.New("participant not found")

// ErrMalformedPayload is returned when a callback body cannot be parsed into an answer.
var ErrMalformedPayload = errors.New("malformed callback payload")

// ErrStoreUnavailable wraps failures to reach the participant store.
var ErrStoreUnavailable = errors.New("participant store unavailable")

// ErrCatalogEmpty is returned when the question catalog has no entries.
var ErrCatalogEmpty = errors.New("question catalog is empty")

// ErrBlankQuestion is returned when a catalog entry has no text.
var ErrBlankQuestion = errors.New("question text is blank")

// ErrMissingCallID is returned when a callback does not identify its call.
var ErrMissingCallID = errors.New("call id is required")
