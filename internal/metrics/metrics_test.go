package metrics_test

import (
	"context"
	"testing"

	"github.com/aretw0/voicesurvey/internal/callflow"
	"github.com/aretw0/voicesurvey/internal/metrics"
	"github.com/aretw0/voicesurvey/pkg/adapters/memory"
	"github.com/aretw0/voicesurvey/pkg/domain"
	"github.com/aretw0/voicesurvey/pkg/session"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Hooks(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := metrics.New(reg)
	require.NoError(t, err)

	var chained int
	hooks := m.Hooks(domain.LifecycleHooks{
		OnComplete: func(context.Context, *domain.StepEvent) { chained++ },
	})

	catalog, err := domain.NewCatalog([]string{"Q1", "Q2"})
	require.NoError(t, err)
	engine, err := callflow.NewEngine(catalog, session.NewManager(memory.NewStore()),
		callflow.WithLifecycleHooks(hooks))
	require.NoError(t, err)

	ctx := context.Background()
	for _, body := range []string{
		"",
		`{"legId":"L1","id":"R1"}`,
		`{"legId":"L1","id":"R1"}`,
		`garbage`,
		`{"legId":"L2","id":"R2"}`,
	} {
		_, err := engine.NextStep(ctx, domain.Callback{CallID: "abc", Destination: "555", Payload: []byte(body)})
		require.NoError(t, err)
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(m.AnswersRecorded))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Duplicates))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Malformed))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SurveysCompleted))
	assert.Equal(t, 1, chained)
	assert.Equal(t, 1, testutil.CollectAndCount(m.StepDuration))
}

func TestMetrics_ObserveCallback(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := metrics.New(reg)
	require.NoError(t, err)

	m.ObserveCallback("ok")
	m.ObserveCallback("ok")
	m.ObserveCallback("bad_request")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Callbacks.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Callbacks.WithLabelValues("bad_request")))
}

func TestMetrics_RegisterTwice(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := metrics.New(reg)
	require.NoError(t, err)

	_, err = metrics.New(reg)
	var already prometheus.AlreadyRegisteredError
	assert.ErrorAs(t, err, &already)
}
