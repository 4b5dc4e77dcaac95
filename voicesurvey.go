package voicesurvey

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/voicesurvey/internal/callflow"
	"github.com/aretw0/voicesurvey/internal/logging"
	"github.com/aretw0/voicesurvey/pkg/adapters/memory"
	"github.com/aretw0/voicesurvey/pkg/domain"
	"github.com/aretw0/voicesurvey/pkg/ports"
	"github.com/aretw0/voicesurvey/pkg/session"
)

// Version is the release version, overridden at build time with -ldflags "-X".
var Version = "0.1.0-dev"

// Script is the configurable wording of generated flow documents.
type Script = callflow.Script

// DefaultScript returns the stock survey wording.
func DefaultScript() Script {
	return callflow.DefaultScript()
}

// Engine is the high-level entry point for the voicesurvey library.
// It wraps the call-flow engine and the session manager behind a simplified API.
type Engine struct {
	flow     *callflow.Engine
	sessions *session.Manager

	store       ports.ParticipantStore
	locker      ports.DistributedLocker
	lockTTL     time.Duration
	script      *Script
	callbackURL string
	strict      bool
	hooks       domain.LifecycleHooks
	logger      *slog.Logger
}

// Option defines a functional option for configuring the Engine.
type Option func(*Engine)

// WithStore sets the participant store. Defaults to an in-memory store.
func WithStore(s ports.ParticipantStore) Option {
	return func(e *Engine) {
		e.store = s
	}
}

// WithLocker serializes callbacks of one call across processes.
func WithLocker(l ports.DistributedLocker, ttl time.Duration) Option {
	return func(e *Engine) {
		e.locker = l
		e.lockTTL = ttl
	}
}

// WithScript overrides the survey wording and record options.
func WithScript(s Script) Option {
	return func(e *Engine) {
		e.script = &s
	}
}

// WithCallbackURL sets the default webhook URL for record steps.
func WithCallbackURL(u string) Option {
	return func(e *Engine) {
		e.callbackURL = u
	}
}

// WithStrictPayloads rejects malformed callback bodies instead of skipping them.
func WithStrictPayloads(strict bool) Option {
	return func(e *Engine) {
		e.strict = strict
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(e *Engine) {
		e.hooks = hooks
	}
}

// WithLogger sets a custom structured logger for the engine.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// New initializes a survey engine asking questions in order.
func New(questions []string, opts ...Option) (*Engine, error) {
	catalog, err := domain.NewCatalog(questions)
	if err != nil {
		return nil, err
	}
	return NewWithCatalog(catalog, opts...)
}

// NewWithCatalog initializes a survey engine over an existing catalog.
func NewWithCatalog(catalog *domain.Catalog, opts ...Option) (*Engine, error) {
	e := &Engine{}
	for _, opt := range opts {
		opt(e)
	}

	if e.store == nil {
		e.store = memory.NewStore()
	}
	if e.logger == nil {
		e.logger = logging.NewNop()
	}

	sessionOpts := []session.Option{session.WithLogger(e.logger)}
	if e.locker != nil {
		sessionOpts = append(sessionOpts, session.WithLocker(e.locker), session.WithLockTTL(e.lockTTL))
	}
	e.sessions = session.NewManager(e.store, sessionOpts...)

	flowOpts := []callflow.Option{
		callflow.WithLogger(e.logger),
		callflow.WithLifecycleHooks(e.hooks),
		callflow.WithStrictPayloads(e.strict),
		callflow.WithCallbackURL(e.callbackURL),
	}
	if e.script != nil {
		flowOpts = append(flowOpts, callflow.WithScript(*e.script))
	}

	flow, err := callflow.NewEngine(catalog, e.sessions, flowOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create call flow: %w", err)
	}
	e.flow = flow
	return e, nil
}

// NextStep records the answer carried by cb, if any, and returns the next flow document.
func (e *Engine) NextStep(ctx context.Context, cb domain.Callback) (*domain.StepResult, error) {
	return e.flow.NextStep(ctx, cb)
}

// Participants lists participants with their survey status.
func (e *Engine) Participants(ctx context.Context) ([]domain.ParticipantView, error) {
	return e.flow.Participants(ctx)
}

// Catalog returns the question catalog.
func (e *Engine) Catalog() *domain.Catalog {
	return e.flow.Catalog()
}

// Store returns the participant store in use.
func (e *Engine) Store() ports.ParticipantStore {
	return e.store
}
