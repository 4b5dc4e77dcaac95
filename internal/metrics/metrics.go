// Package metrics exposes survey activity as Prometheus collectors fed by engine lifecycle hooks.
package metrics

import (
	"context"
	"fmt"

	"github.com/aretw0/voicesurvey/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the survey collectors.
type Metrics struct {
	Callbacks        *prometheus.CounterVec
	AnswersRecorded  prometheus.Counter
	Duplicates       prometheus.Counter
	SurveysCompleted prometheus.Counter
	Malformed        prometheus.Counter
	StepDuration     prometheus.Histogram
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		Callbacks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "voicesurvey_callbacks_total",
				Help: "Total number of call step callbacks by outcome",
			},
			[]string{"outcome"},
		),
		AnswersRecorded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "voicesurvey_answers_recorded_total",
			Help: "Total number of answers appended to participants",
		}),
		Duplicates: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "voicesurvey_answers_duplicate_total",
			Help: "Total number of redelivered answers ignored",
		}),
		SurveysCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "voicesurvey_surveys_completed_total",
			Help: "Total number of completion documents served",
		}),
		Malformed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "voicesurvey_malformed_payloads_total",
			Help: "Total number of callback bodies that could not be parsed",
		}),
		StepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "voicesurvey_step_duration_seconds",
			Help:    "Duration of call step computation, including store I/O",
			Buckets: prometheus.DefBuckets,
		}),
	}

	for _, c := range []prometheus.Collector{
		m.Callbacks, m.AnswersRecorded, m.Duplicates, m.SurveysCompleted, m.Malformed, m.StepDuration,
	} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register metrics: %w", err)
		}
	}
	return m, nil
}

// Hooks returns lifecycle hooks that feed the collectors, chained after next.
func (m *Metrics) Hooks(next domain.LifecycleHooks) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnStep: func(ctx context.Context, e *domain.StepEvent) {
			m.StepDuration.Observe(e.Duration.Seconds())
			if next.OnStep != nil {
				next.OnStep(ctx, e)
			}
		},
		OnAnswer: func(ctx context.Context, e *domain.AnswerEvent) {
			if e.Duplicate {
				m.Duplicates.Inc()
			} else {
				m.AnswersRecorded.Inc()
			}
			if next.OnAnswer != nil {
				next.OnAnswer(ctx, e)
			}
		},
		OnComplete: func(ctx context.Context, e *domain.StepEvent) {
			m.SurveysCompleted.Inc()
			if next.OnComplete != nil {
				next.OnComplete(ctx, e)
			}
		},
		OnMalformed: func(ctx context.Context, callID string, err error) {
			m.Malformed.Inc()
			if next.OnMalformed != nil {
				next.OnMalformed(ctx, callID, err)
			}
		},
	}
}

// ObserveCallback counts one handled callback by outcome label.
func (m *Metrics) ObserveCallback(outcome string) {
	m.Callbacks.WithLabelValues(outcome).Inc()
}
