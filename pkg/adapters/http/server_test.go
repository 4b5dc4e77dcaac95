package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aretw0/voicesurvey/internal/callflow"
	"github.com/aretw0/voicesurvey/pkg/adapters/memory"
	"github.com/aretw0/voicesurvey/pkg/adapters/recording"
	"github.com/aretw0/voicesurvey/pkg/domain"
	"github.com/aretw0/voicesurvey/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingObserver struct {
	outcomes map[string]int
}

func (o *countingObserver) ObserveCallback(outcome string) {
	if o.outcomes == nil {
		o.outcomes = make(map[string]int)
	}
	o.outcomes[outcome]++
}

func newTestEngine(t *testing.T, opts ...callflow.Option) (*callflow.Engine, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	catalog, err := domain.NewCatalog([]string{"Q1", "Q2"})
	require.NoError(t, err)
	engine, err := callflow.NewEngine(catalog, session.NewManager(store), opts...)
	require.NoError(t, err)
	return engine, store
}

type flowResponse struct {
	Title string `json:"title"`
	Steps []struct {
		Action  string         `json:"action"`
		Options map[string]any `json:"options"`
	} `json:"steps"`
}

func decodeFlow(t *testing.T, body io.Reader) flowResponse {
	t.Helper()
	var doc flowResponse
	require.NoError(t, json.NewDecoder(body).Decode(&doc))
	return doc
}

func TestCallStep_Scenario(t *testing.T) {
	engine, store := newTestEngine(t)
	obs := &countingObserver{}
	handler := NewHandler(engine, WithObserver(obs))

	// First callback arrives as GET without body.
	req := httptest.NewRequest(http.MethodGet, "http://survey.example.com/callStep?callID=abc&destination=555", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	doc := decodeFlow(t, w.Body)
	assert.Equal(t, "Survey Call Step", doc.Title)
	require.Len(t, doc.Steps, 3)
	assert.Equal(t, "say", doc.Steps[0].Action)
	assert.Contains(t, doc.Steps[0].Options["payload"], "2 questions")
	assert.Equal(t, "male", doc.Steps[0].Options["voice"])
	assert.Equal(t, "en-US", doc.Steps[0].Options["language"])
	assert.Equal(t, "Q1", doc.Steps[1].Options["payload"])
	assert.Equal(t, "record", doc.Steps[2].Action)
	assert.Equal(t, "any", doc.Steps[2].Options["finishOnKey"])
	assert.Equal(t, float64(10), doc.Steps[2].Options["timeout"])
	assert.Equal(t, "http://survey.example.com/callStep?callID=abc", doc.Steps[2].Options["onFinish"])

	// Recording notifications arrive as POST.
	req = httptest.NewRequest(http.MethodPost, "/callStep?callID=abc&destination=555", strings.NewReader(`{"legId":"L1","id":"R1"}`))
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	doc = decodeFlow(t, w.Body)
	require.Len(t, doc.Steps, 2)
	assert.Equal(t, "Q2", doc.Steps[0].Options["payload"])

	req = httptest.NewRequest(http.MethodPost, "/callStep?callID=abc&destination=555", strings.NewReader(`{"legId":"L2","id":"R2"}`))
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	doc = decodeFlow(t, w.Body)
	require.Len(t, doc.Steps, 1)
	assert.Equal(t, domain.DefaultCompletionMessage, doc.Steps[0].Options["payload"])

	p, err := store.Find(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, []domain.Answer{
		{LegID: "L1", RecordingRef: "R1"},
		{LegID: "L2", RecordingRef: "R2"},
	}, p.Answers)
	assert.Equal(t, 3, obs.outcomes[OutcomeOK])
}

func TestCallStep_MissingCallID(t *testing.T) {
	engine, _ := newTestEngine(t)
	obs := &countingObserver{}
	handler := NewHandler(engine, WithObserver(obs))

	req := httptest.NewRequest(http.MethodGet, "/callStep?destination=555", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "call id is required")
	assert.Equal(t, 1, obs.outcomes[OutcomeBadRequest])
}

func TestNewHandler_SilentWithoutLogger(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	defer slog.SetDefault(prev)

	engine, _ := newTestEngine(t)
	handler := NewHandler(engine)

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/callStep?destination=555", nil))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, buf.String(), "the default logger must not receive handler logs")
}

func TestCallStep_MalformedPayload(t *testing.T) {
	t.Run("lenient", func(t *testing.T) {
		engine, _ := newTestEngine(t)
		obs := &countingObserver{}
		handler := NewHandler(engine, WithObserver(obs))

		req := httptest.NewRequest(http.MethodPost, "/callStep?callID=abc", strings.NewReader(`{"legId":`))
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		doc := decodeFlow(t, w.Body)
		assert.Len(t, doc.Steps, 3)
		assert.Equal(t, 1, obs.outcomes[OutcomeMalformed])
	})

	t.Run("strict", func(t *testing.T) {
		engine, _ := newTestEngine(t, callflow.WithStrictPayloads(true))
		handler := NewHandler(engine)

		req := httptest.NewRequest(http.MethodPost, "/callStep?callID=abc", strings.NewReader(`{"legId":`))
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	})
}

func TestCallStep_PayloadTooLarge(t *testing.T) {
	oversized := `{"legId":"L1","id":"R1","junk":"` + strings.Repeat("x", MaxPayloadSize) + `"}`

	t.Run("lenient", func(t *testing.T) {
		engine, store := newTestEngine(t)
		obs := &countingObserver{}
		handler := NewHandler(engine, WithObserver(obs))

		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/callStep?callID=abc&destination=555", nil))
		require.Equal(t, http.StatusOK, w.Code)

		req := httptest.NewRequest(http.MethodPost, "/callStep?callID=abc", strings.NewReader(oversized))
		w = httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		doc := decodeFlow(t, w.Body)
		require.Len(t, doc.Steps, 3)
		assert.Equal(t, "Q1", doc.Steps[1].Options["payload"])
		assert.Equal(t, 1, obs.outcomes[OutcomeMalformed])

		p, err := store.Find(context.Background(), "abc")
		require.NoError(t, err)
		assert.Empty(t, p.Answers)
	})

	t.Run("strict", func(t *testing.T) {
		engine, store := newTestEngine(t, callflow.WithStrictPayloads(true))
		handler := NewHandler(engine)

		req := httptest.NewRequest(http.MethodPost, "/callStep?callID=abc", strings.NewReader(oversized))
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
		_, err := store.Find(context.Background(), "abc")
		assert.ErrorIs(t, err, domain.ErrParticipantNotFound)
	})
}

func TestCallStep_PublicURL(t *testing.T) {
	engine, _ := newTestEngine(t)
	handler := NewHandler(engine, WithPublicURL("https://public.example.com/hooks/callStep"))

	req := httptest.NewRequest(http.MethodGet, "/callStep?callID=abc", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	doc := decodeFlow(t, w.Body)
	assert.Equal(t, "https://public.example.com/hooks/callStep?callID=abc", doc.Steps[2].Options["onFinish"])
}

func TestCallStep_ForwardedProto(t *testing.T) {
	engine, _ := newTestEngine(t)
	handler := NewHandler(engine)

	req := httptest.NewRequest(http.MethodGet, "http://survey.example.com/callStep?callID=abc", nil)
	req.Header.Set("X-Forwarded-Proto", "https")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	doc := decodeFlow(t, w.Body)
	assert.Equal(t, "https://survey.example.com/callStep?callID=abc", doc.Steps[2].Options["onFinish"])
}

// failingEngine returns err from every operation.
type failingEngine struct {
	err error
}

func (f *failingEngine) NextStep(context.Context, domain.Callback) (*domain.StepResult, error) {
	return nil, f.err
}

func (f *failingEngine) Participants(context.Context) ([]domain.ParticipantView, error) {
	return nil, f.err
}

func (f *failingEngine) Catalog() *domain.Catalog {
	return nil
}

func TestCallStep_StoreUnavailable(t *testing.T) {
	obs := &countingObserver{}
	err := fmt.Errorf("%w: connection refused", domain.ErrStoreUnavailable)
	handler := NewHandler(&failingEngine{err: err}, WithObserver(obs))

	req := httptest.NewRequest(http.MethodGet, "/callStep?callID=abc", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	var resp errorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Contains(t, resp.Error, "participant store unavailable")
	assert.NotEmpty(t, resp.RequestID)
	assert.Equal(t, 1, obs.outcomes[OutcomeError])

	req = httptest.NewRequest(http.MethodGet, "/participants", nil)
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestListParticipants(t *testing.T) {
	engine, _ := newTestEngine(t)
	handler := NewHandler(engine)

	req := httptest.NewRequest(http.MethodGet, "/participants", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"questions":["Q1","Q2"],"participants":[]}`, w.Body.String())

	for _, body := range []string{"", `{"legId":"L1","id":"R1"}`} {
		req := httptest.NewRequest(http.MethodPost, "/callStep?callID=abc&destination=555", strings.NewReader(body))
		handler.ServeHTTP(httptest.NewRecorder(), req)
	}

	req = httptest.NewRequest(http.MethodGet, "/participants", nil)
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Participants []struct {
			CallID    string          `json:"callId"`
			Number    string          `json:"number"`
			Responses []domain.Answer `json:"responses"`
			Status    domain.Status   `json:"status"`
		} `json:"participants"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.Len(t, resp.Participants, 1)
	assert.Equal(t, "abc", resp.Participants[0].CallID)
	assert.Equal(t, "555", resp.Participants[0].Number)
	assert.Equal(t, []domain.Answer{{LegID: "L1", RecordingRef: "R1"}}, resp.Participants[0].Responses)
	assert.Equal(t, domain.Status{Phase: domain.PhaseAwaitingAnswer, Question: 1}, resp.Participants[0].Status)
}

type fakeRecordings struct {
	data string
	err  error
	got  []string
}

func (f *fakeRecordings) Fetch(_ context.Context, callID, legID, recordingID string) (*recording.Recording, error) {
	f.got = []string{callID, legID, recordingID}
	if f.err != nil {
		return nil, f.err
	}
	return &recording.Recording{
		Body:          io.NopCloser(strings.NewReader(f.data)),
		ContentType:   "audio/wav",
		ContentLength: int64(len(f.data)),
	}, nil
}

func TestPlay(t *testing.T) {
	engine, _ := newTestEngine(t)
	recs := &fakeRecordings{data: "RIFF"}
	handler := NewHandler(engine, WithRecordings(recs))

	req := httptest.NewRequest(http.MethodGet, "/play/abc/L1/R1", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "RIFF", w.Body.String())
	assert.Equal(t, "audio/wav", w.Header().Get("Content-Type"))
	assert.Equal(t, "4", w.Header().Get("Content-Length"))
	assert.Equal(t, []string{"abc", "L1", "R1"}, recs.got)
}

func TestPlay_Unavailable(t *testing.T) {
	engine, _ := newTestEngine(t)
	recs := &fakeRecordings{err: fmt.Errorf("%w: platform returned 404 Not Found", recording.ErrRecordingUnavailable)}
	handler := NewHandler(engine, WithRecordings(recs))

	req := httptest.NewRequest(http.MethodGet, "/play/abc/L1/R1", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestPlay_NotConfigured(t *testing.T) {
	engine, _ := newTestEngine(t)
	handler := NewHandler(engine)

	req := httptest.NewRequest(http.MethodGet, "/play/abc/L1/R1", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAdmin(t *testing.T) {
	engine, _ := newTestEngine(t)
	handler := NewHandler(engine, WithRecordings(&fakeRecordings{}))

	for _, body := range []string{"", `{"legId":"L1","id":"R1"}`} {
		req := httptest.NewRequest(http.MethodPost, "/callStep?callID=abc&destination=555", strings.NewReader(body))
		handler.ServeHTTP(httptest.NewRecorder(), req)
	}

	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "<th>Q1</th>")
	assert.Contains(t, body, "<td>555</td>")
	assert.Contains(t, body, `src="/play/abc/L1/R1"`)
	assert.Contains(t, body, "awaiting_answer(1)")
}

func TestGetHealth(t *testing.T) {
	engine, _ := newTestEngine(t)

	handler := NewHandler(engine)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())

	handler = NewHandler(engine, WithHealthCheck(func(context.Context) error {
		return errors.New("redis down")
	}))
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "redis down")
}

func TestMetricsHandler(t *testing.T) {
	engine, _ := newTestEngine(t)
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("voicesurvey_callbacks_total 1\n"))
	})
	handler := NewHandler(engine, WithMetricsHandler(metrics))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "voicesurvey_callbacks_total")
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{domain.ErrMissingCallID, http.StatusBadRequest},
		{fmt.Errorf("wrap: %w", domain.ErrMalformedPayload), http.StatusUnprocessableEntity},
		{domain.ErrStoreUnavailable, http.StatusInternalServerError},
		{recording.ErrRecordingUnavailable, http.StatusBadGateway},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}

func TestCallStep_Concurrent(t *testing.T) {
	engine, store := newTestEngine(t)
	srv := httptest.NewServer(NewHandler(engine))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/callStep?callID=abc&destination=555")
	require.NoError(t, err)
	resp.Body.Close()

	done := make(chan struct{})
	for i := 0; i < 2; i++ {
		go func(i int) {
			defer func() { done <- struct{}{} }()
			body := fmt.Sprintf(`{"legId":"L%d","id":"R%d"}`, i, i)
			resp, err := http.Post(srv.URL+"/callStep?callID=abc", "application/json", strings.NewReader(body))
			if assert.NoError(t, err) {
				resp.Body.Close()
				assert.Equal(t, http.StatusOK, resp.StatusCode)
			}
		}(i)
	}
	for i := 0; i < 2; i++ {
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for callbacks")
		}
	}

	p, err := store.Find(context.Background(), "abc")
	require.NoError(t, err)
	assert.Len(t, p.Answers, 2)
}
