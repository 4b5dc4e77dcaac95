// Package recording fetches answer recordings from the telephony platform.
package recording

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrRecordingUnavailable is returned when the platform does not serve the recording.
var ErrRecordingUnavailable = errors.New("recording unavailable")

// DefaultBaseURL is the platform voice API root.
const DefaultBaseURL = "https://voice.messagebird.com"

// Relay streams recordings from the platform, authenticating with an access key.
type Relay struct {
	baseURL   string
	accessKey string
	client    *http.Client
}

// Option configures the Relay.
type Option func(*Relay)

// WithBaseURL overrides the platform API root.
func WithBaseURL(u string) Option {
	return func(r *Relay) {
		r.baseURL = strings.TrimRight(u, "/")
	}
}

// WithHTTPClient sets the client used for platform requests.
func WithHTTPClient(c *http.Client) Option {
	return func(r *Relay) {
		r.client = c
	}
}

// NewRelay creates a relay using accessKey for platform requests.
func NewRelay(accessKey string, opts ...Option) *Relay {
	r := &Relay{
		baseURL:   DefaultBaseURL,
		accessKey: accessKey,
		client:    &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Recording is an open recording stream. The caller must Close it.
type Recording struct {
	Body          io.ReadCloser
	ContentType   string
	ContentLength int64
}

// Fetch opens the recording of one call leg. The body is streamed, not buffered.
func (r *Relay) Fetch(ctx context.Context, callID, legID, recordingID string) (*Recording, error) {
	if callID == "" || legID == "" || recordingID == "" {
		return nil, fmt.Errorf("%w: call, leg and recording ids are required", ErrRecordingUnavailable)
	}

	endpoint := fmt.Sprintf("%s/calls/%s/legs/%s/recordings/%s.wav",
		r.baseURL,
		url.PathEscape(callID),
		url.PathEscape(legID),
		url.PathEscape(recordingID),
	)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build recording request: %w", err)
	}
	req.Header.Set("Authorization", "AccessKey "+r.accessKey)

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRecordingUnavailable, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, fmt.Errorf("%w: platform returned %s", ErrRecordingUnavailable, resp.Status)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "audio/wav"
	}
	return &Recording{
		Body:          resp.Body,
		ContentType:   contentType,
		ContentLength: resp.ContentLength,
	}, nil
}
