/*
Package voicesurvey is a call-flow engine for automated voice surveys driven by telephony webhooks.

A telephony platform calls the survey webhook once per step of a phone call. Each callback
may carry the recording reference of the answer to the previous question. The engine
records that answer exactly once and replies with the next flow document: a welcome and
the first question, the next question followed by a record step, or a completion message.

# Concept

Each call is a small state machine: NotStarted, AwaitingAnswer(k), Completed. The state is
never stored as such; it is derived from the number of answers persisted for the call, so
any replica can serve any callback. Appending an answer is atomic in every store, and a
redelivered recording is a no-op.

# Key Features

  - Pluggable participant stores: memory, Redis, MongoDB, SQLite and PostgreSQL.
  - Per-call serialization, optionally across replicas with a Redis lock.
  - Lenient handling of malformed callbacks, or strict rejection when configured.
  - Lifecycle hooks for logging, metrics and live event streams.

# Usage

	eng, err := voicesurvey.New([]string{"How old are you?", "Where do you live?"},
		voicesurvey.WithCallbackURL("https://survey.example.com/callStep"),
	)
	if err != nil {
		log.Fatal(err)
	}

	res, err := eng.NextStep(ctx, domain.Callback{CallID: "abc", Destination: "31612345678"})
	if err != nil {
		log.Fatal(err)
	}
	json.NewEncoder(w).Encode(res.Document)

The cmd/voicesurvey binary wires the engine to an HTTP server (see pkg/adapters/http).
*/
package voicesurvey
