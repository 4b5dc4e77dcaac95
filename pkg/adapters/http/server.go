package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/aretw0/voicesurvey/internal/logging"
	"github.com/aretw0/voicesurvey/pkg/adapters/recording"
	"github.com/aretw0/voicesurvey/pkg/domain"
	"github.com/aretw0/voicesurvey/pkg/ports"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// MaxPayloadSize bounds the callback body read from the platform.
const MaxPayloadSize = 64 << 10

// Callback outcomes reported to the Observer.
const (
	OutcomeOK         = "ok"
	OutcomeMalformed  = "malformed"
	OutcomeBadRequest = "bad_request"
	OutcomeError      = "error"
)

// Observer is notified of every handled callback.
type Observer interface {
	ObserveCallback(outcome string)
}

// RecordingSource opens answer recordings.
type RecordingSource interface {
	Fetch(ctx context.Context, callID, legID, recordingID string) (*recording.Recording, error)
}

// Server serves the telephony webhook and the survey admin endpoints.
type Server struct {
	Engine     ports.CallFlowEngine
	Streams    *StreamManager
	Recordings RecordingSource

	publicURL string
	observer  Observer
	metrics   http.Handler
	health    func(context.Context) error
	logger    *slog.Logger
}

// Option configures the Server.
type Option func(*Server)

// WithPublicURL fixes the webhook URL written into record steps. Without it the
// URL is derived from each request.
func WithPublicURL(u string) Option {
	return func(s *Server) {
		s.publicURL = u
	}
}

// WithRecordings enables GET /play through src.
func WithRecordings(src RecordingSource) Option {
	return func(s *Server) {
		s.Recordings = src
	}
}

// WithStreams shares a stream manager whose hooks are installed on the engine.
func WithStreams(sm *StreamManager) Option {
	return func(s *Server) {
		s.Streams = sm
	}
}

// WithObserver reports callback outcomes, typically to metrics.
func WithObserver(o Observer) Option {
	return func(s *Server) {
		s.observer = o
	}
}

// WithMetricsHandler mounts h on GET /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) {
		s.metrics = h
	}
}

// WithHealthCheck makes GET /health report the result of check.
func WithHealthCheck(check func(context.Context) error) Option {
	return func(s *Server) {
		s.health = check
	}
}

// WithLogger configures the server logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewHandler creates the HTTP handler for the engine.
func NewHandler(engine ports.CallFlowEngine, opts ...Option) http.Handler {
	s := &Server{
		Engine: engine,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.Streams == nil {
		s.Streams = NewStreamManager()
	}
	return s.Routes()
}

// Routes builds the chi router.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)

	r.Get("/callStep", s.CallStep)
	r.Post("/callStep", s.CallStep)
	r.Get("/participants", s.ListParticipants)
	r.Get("/admin", s.Admin)
	r.Get("/events", s.SubscribeEvents)
	r.Get("/health", s.GetHealth)
	if s.Recordings != nil {
		r.Get("/play/{callID}/{legID}/{recordingID}", s.Play)
	}
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}
	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// CallStep handles GET|POST /callStep?callID=&destination=.
// The body, when present, is the recording notification of the previous question.
func (s *Server) CallStep(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	callID := q.Get("callID")
	if callID == "" {
		s.observe(OutcomeBadRequest)
		s.writeError(w, r, domain.ErrMissingCallID)
		return
	}

	cb := domain.Callback{
		CallID:      callID,
		Destination: q.Get("destination"),
		CallbackURL: s.callbackURL(r),
	}

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxPayloadSize))
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		// An oversized body is a malformed answer; the call still gets its next step.
		cb.PayloadErr = fmt.Errorf("%w: body exceeds %d bytes", domain.ErrMalformedPayload, tooLarge.Limit)
	case err != nil:
		s.observe(OutcomeError)
		s.writeError(w, r, fmt.Errorf("failed to read callback body: %w", err))
		return
	default:
		cb.Payload = payload
	}

	res, err := s.Engine.NextStep(r.Context(), cb)
	if err != nil {
		if errors.Is(err, domain.ErrMalformedPayload) {
			s.observe(OutcomeMalformed)
		} else {
			s.observe(OutcomeError)
		}
		s.writeError(w, r, err)
		return
	}

	if res.PayloadErr != nil {
		s.observe(OutcomeMalformed)
	} else {
		s.observe(OutcomeOK)
	}
	writeJSON(w, http.StatusOK, res.Document)
}

// callbackURL is the absolute URL of this webhook, without query.
func (s *Server) callbackURL(r *http.Request) string {
	if s.publicURL != "" {
		return s.publicURL
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = strings.ToLower(strings.TrimSpace(strings.Split(proto, ",")[0]))
	}
	return scheme + "://" + r.Host + r.URL.Path
}

type participantsResponse struct {
	Questions    []string                 `json:"questions"`
	Participants []domain.ParticipantView `json:"participants"`
}

// ListParticipants handles GET /participants.
func (s *Server) ListParticipants(w http.ResponseWriter, r *http.Request) {
	views, err := s.Engine.Participants(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if views == nil {
		views = []domain.ParticipantView{}
	}
	writeJSON(w, http.StatusOK, participantsResponse{
		Questions:    s.Engine.Catalog().Texts(),
		Participants: views,
	})
}

// Play handles GET /play/{callID}/{legID}/{recordingID} by streaming the recording.
func (s *Server) Play(w http.ResponseWriter, r *http.Request) {
	rec, err := s.Recordings.Fetch(r.Context(),
		chi.URLParam(r, "callID"),
		chi.URLParam(r, "legID"),
		chi.URLParam(r, "recordingID"),
	)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	defer rec.Body.Close()

	w.Header().Set("Content-Type", rec.ContentType)
	if rec.ContentLength > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(rec.ContentLength, 10))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rec.Body); err != nil {
		s.logger.Warn("Play: stream interrupted", "err", err)
	}
}

// GetHealth handles the GET /health request.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		if err := s.health(r.Context()); err != nil {
			s.logger.Warn("Health check failed", "err", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) observe(outcome string) {
	if s.observer != nil {
		s.observer.ObserveCallback(outcome)
	}
}

type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

// writeError maps domain errors to HTTP status codes.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	reqID := middleware.GetReqID(r.Context())
	if status >= 500 {
		s.logger.Error("Request failed",
			"path", r.URL.Path,
			"call_id", r.URL.Query().Get("callID"),
			"request_id", reqID,
			"err", err,
		)
	} else {
		s.logger.Warn("Request rejected",
			"path", r.URL.Path,
			"status", status,
			"request_id", reqID,
			"err", err,
		)
	}
	writeJSON(w, status, errorResponse{Error: err.Error(), RequestID: reqID})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrMissingCallID):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrMalformedPayload):
		return http.StatusUnprocessableEntity
	case errors.Is(err, recording.ErrRecordingUnavailable):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Response encode failed", "err", err)
	}
}
