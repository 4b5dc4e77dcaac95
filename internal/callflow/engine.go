package callflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/voicesurvey/internal/logging"
	"github.com/aretw0/voicesurvey/pkg/domain"
	"github.com/aretw0/voicesurvey/pkg/session"
)

// Engine is the call-flow state machine.
// Per call it moves NotStarted -> AwaitingAnswer(0..N-1) -> Completed, driven by callbacks.
type Engine struct {
	catalog     *domain.Catalog
	sessions    *session.Manager
	script      Script
	callbackURL string
	strict      bool
	hooks       domain.LifecycleHooks
	logger      *slog.Logger
	now         func() time.Time
}

// Option configures the Engine.
type Option func(*Engine)

// WithScript replaces the survey wording and record options.
func WithScript(s Script) Option {
	return func(e *Engine) {
		e.script = s
	}
}

// WithCallbackURL sets the webhook URL record steps post back to when a
// callback does not carry its own.
func WithCallbackURL(u string) Option {
	return func(e *Engine) {
		e.callbackURL = u
	}
}

// WithStrictPayloads makes malformed answer payloads fail the callback instead of
// being skipped. The platform will then retry the callback.
func WithStrictPayloads(strict bool) Option {
	return func(e *Engine) {
		e.strict = strict
	}
}

// WithLifecycleHooks registers observability callbacks.
func WithLifecycleHooks(h domain.LifecycleHooks) Option {
	return func(e *Engine) {
		e.hooks = h
	}
}

// WithLogger configures the engine logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// NewEngine creates an engine serving catalog, persisting through sessions.
func NewEngine(catalog *domain.Catalog, sessions *session.Manager, opts ...Option) (*Engine, error) {
	if catalog == nil || catalog.Len() == 0 {
		return nil, domain.ErrCatalogEmpty
	}

	e := &Engine{
		catalog:  catalog,
		sessions: sessions,
		script:   DefaultScript(),
		logger:   logging.NewNop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Catalog returns the question catalog.
func (e *Engine) Catalog() *domain.Catalog {
	return e.catalog
}

// NextStep handles one callback: it records the answer it carries, if any, and
// returns the next flow document. The whole step runs under the call's lock.
//
// Store failures are returned as errors. A malformed payload is not an error
// unless strict payloads are enabled; it is reported in StepResult.PayloadErr.
func (e *Engine) NextStep(ctx context.Context, cb domain.Callback) (*domain.StepResult, error) {
	if cb.CallID == "" {
		return nil, domain.ErrMissingCallID
	}

	start := e.now()
	var (
		res       *domain.StepResult
		completed bool
	)
	err := e.sessions.WithLock(ctx, cb.CallID, func(ctx context.Context) error {
		var err error
		res, completed, err = e.step(ctx, cb)
		return err
	})
	if err != nil {
		return nil, err
	}

	event := &domain.StepEvent{
		EventBase: domain.EventBase{Timestamp: e.now(), Type: domain.EventStep, CallID: cb.CallID},
		Status:    res.Status,
		Answered:  res.Answered,
		Steps:     len(res.Document.Steps),
		Duration:  e.now().Sub(start),
	}
	if e.hooks.OnStep != nil {
		e.hooks.OnStep(ctx, event)
	}
	// Only the callback whose append reached the last question completes the survey.
	if completed && e.hooks.OnComplete != nil {
		e.hooks.OnComplete(ctx, event)
	}

	e.logger.Debug("Computed next step",
		"call_id", cb.CallID,
		"status", res.Status.String(),
		"steps", len(res.Document.Steps),
	)
	return res, nil
}

func (e *Engine) step(ctx context.Context, cb domain.Callback) (*domain.StepResult, bool, error) {
	var answer *domain.Answer
	payloadErr := cb.PayloadErr
	if payloadErr == nil {
		answer, payloadErr = domain.ParseAnswer(cb.Payload)
	}
	if payloadErr != nil {
		if e.strict {
			return nil, false, payloadErr
		}
		e.logger.Warn("Skipping malformed answer payload",
			"call_id", cb.CallID,
			"size", len(cb.Payload),
			"err", payloadErr,
		)
		if e.hooks.OnMalformed != nil {
			e.hooks.OnMalformed(ctx, cb.CallID, payloadErr)
		}
	}

	p, created, err := e.sessions.LoadOrCreate(ctx, cb.CallID, cb.Destination)
	if err != nil {
		return nil, false, err
	}
	before := p.Answered()
	answered := before

	switch {
	case answer == nil:
	case created:
		// An answer for a call we have never seen: start the survey from the top.
		e.logger.Warn("Dropping answer for unknown call",
			"call_id", cb.CallID,
			"recording_id", answer.RecordingRef,
		)
	default:
		answered, err = e.record(ctx, cb, *answer, answered)
		if err != nil {
			return nil, false, err
		}
	}

	onFinish, err := e.onFinish(cb)
	if err != nil {
		return nil, false, err
	}

	total := e.catalog.Len()
	completed := before < total && answered == total

	return &domain.StepResult{
		Document:   e.script.Document(e.catalog, answered, onFinish),
		Status:     domain.StatusAt(answered, total),
		Answered:   answered,
		PayloadErr: payloadErr,
	}, completed, nil
}

// record appends the answer and returns the authoritative answer count.
func (e *Engine) record(ctx context.Context, cb domain.Callback, answer domain.Answer, before int) (int, error) {
	callID := cb.CallID
	n, err := e.sessions.Append(ctx, callID, answer, e.catalog.Len())
	if errors.Is(err, domain.ErrParticipantNotFound) {
		// Gone between lookup and append (e.g. expired): treat as not started.
		if _, _, err := e.sessions.LoadOrCreate(ctx, callID, cb.Destination); err != nil {
			return 0, err
		}
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to record answer: %w", err)
	}

	if e.hooks.OnAnswer != nil {
		event := &domain.AnswerEvent{
			EventBase: domain.EventBase{Timestamp: e.now(), Type: domain.EventAnswer, CallID: callID},
			Answer:    answer,
			Position:  n - 1,
			Duplicate: n == before,
		}
		if event.Duplicate {
			event.Position = domain.UnknownPosition
		}
		e.hooks.OnAnswer(ctx, event)
	}
	return n, nil
}

func (e *Engine) onFinish(cb domain.Callback) (string, error) {
	base := cb.CallbackURL
	if base == "" {
		base = e.callbackURL
	}
	return OnFinishURL(base, cb.CallID)
}

// Participants lists all participants with their derived status.
func (e *Engine) Participants(ctx context.Context) ([]domain.ParticipantView, error) {
	participants, err := e.sessions.List(ctx)
	if err != nil {
		return nil, err
	}

	views := make([]domain.ParticipantView, len(participants))
	for i, p := range participants {
		views[i] = domain.ParticipantView{
			Participant: p,
			Status:      domain.StatusOf(p, e.catalog.Len()),
		}
	}
	return views, nil
}
