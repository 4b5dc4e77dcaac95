package domain

// Callback is one inbound webhook invocation for a call.
// Payload is the raw request body; it is empty on the first callback of a call.
type Callback struct {
	CallID      string
	Destination string
	Payload     []byte

	// PayloadErr is set when the body could not be read in full. The callback is
	// then handled as malformed and Payload is ignored.
	PayloadErr error

	// CallbackURL is the absolute URL of the webhook that received this callback.
	// When set, record steps post their completion back to it.
	CallbackURL string
}

// StepResult is the outcome of handling one callback.
type StepResult struct {
	Document FlowDocument
	Status   Status
	Answered int

	// PayloadErr is set when the callback body was malformed and its answer skipped.
	// The document is still valid and reflects the state before the skipped append.
	PayloadErr error
}

// ParticipantView is a participant together with its derived survey status.
type ParticipantView struct {
	*Participant
	Status Status `json:"status"`
}
