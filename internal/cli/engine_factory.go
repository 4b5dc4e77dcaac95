package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aretw0/voicesurvey"
	"github.com/aretw0/voicesurvey/internal/config"
	"github.com/aretw0/voicesurvey/pkg/domain"
)

// ScriptFromConfig maps the survey section onto the flow wording.
// Empty values keep the stock wording.
func ScriptFromConfig(cfg config.SurveyConfig) voicesurvey.Script {
	script := voicesurvey.DefaultScript()
	if cfg.Title != "" {
		script.Title = cfg.Title
	}
	if cfg.Welcome != "" {
		script.Welcome = cfg.Welcome
	}
	if cfg.Completion != "" {
		script.Completion = cfg.Completion
	}
	if cfg.Voice.Voice != "" {
		script.Voice.Voice = cfg.Voice.Voice
	}
	if cfg.Voice.Language != "" {
		script.Voice.Language = cfg.Voice.Language
	}
	if cfg.FinishOnKey != "" {
		script.FinishOnKey = cfg.FinishOnKey
	}
	if cfg.RecordTimeout > 0 {
		script.Timeout = cfg.RecordTimeout
	}
	return script
}

// createEngine initializes a survey engine with standard CLI conventions.
func createEngine(cfg *config.Config, catalog *domain.Catalog, backends *Backends, hooks domain.LifecycleHooks, logger *slog.Logger) (*voicesurvey.Engine, error) {
	opts := []voicesurvey.Option{
		voicesurvey.WithStore(backends.Store),
		voicesurvey.WithScript(ScriptFromConfig(cfg.Survey)),
		voicesurvey.WithStrictPayloads(cfg.Survey.StrictPayloads),
		voicesurvey.WithCallbackURL(cfg.Server.PublicURL),
		voicesurvey.WithLifecycleHooks(hooks),
		voicesurvey.WithLogger(logger),
	}
	if backends.Locker != nil {
		opts = append(opts, voicesurvey.WithLocker(backends.Locker, cfg.Redis.LockTTL))
	}

	engine, err := voicesurvey.NewWithCatalog(catalog, opts...)
	if err != nil {
		return nil, fmt.Errorf("error initializing engine: %w", err)
	}
	return engine, nil
}

// createDebugHooks logs every engine event at debug level.
func createDebugHooks(logger *slog.Logger) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnStep: func(ctx context.Context, e *domain.StepEvent) {
			logger.Debug("step computed",
				"call_id", e.CallID,
				"status", e.Status,
				"answered", e.Answered,
				"steps", e.Steps,
				"duration", e.Duration,
			)
		},
		OnAnswer: func(ctx context.Context, e *domain.AnswerEvent) {
			logger.Debug("answer received",
				"call_id", e.CallID,
				"position", e.Position,
				"recording_ref", e.Answer.RecordingRef,
				"duplicate", e.Duplicate,
			)
		},
		OnComplete: func(ctx context.Context, e *domain.StepEvent) {
			logger.Info("survey completed", "call_id", e.CallID, "answers", e.Answered)
		},
		OnMalformed: func(ctx context.Context, callID string, err error) {
			logger.Debug("malformed payload", "call_id", callID, "err", err)
		},
	}
}
