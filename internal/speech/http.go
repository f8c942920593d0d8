package speech

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/maauso/autocut/internal/audio"
	"github.com/maauso/autocut/internal/codec"
)

// synthesizeRequest is the body posted to the engine's /synthesize endpoint.
type synthesizeRequest struct {
	Text   string `json:"text"`
	Locale string `json:"locale"`
	Format string `json:"format"`
}

// synthesizeResponse carries the WAV clip as base64.
type synthesizeResponse struct {
	AudioBase64 string `json:"audio_base64"`
	Error       string `json:"error,omitempty"`
}

// HTTPSynthesizer calls a remote TTS engine over HTTP.
type HTTPSynthesizer struct {
	apiKey      string
	baseURL     string
	httpClient  *http.Client
	maxRetries  int
	baseBackoff time.Duration
}

// HTTPOption is a function that configures an HTTPSynthesizer.
type HTTPOption func(*HTTPSynthesizer)

// WithAPIKey sets the bearer token sent to the engine.
func WithAPIKey(key string) HTTPOption {
	return func(s *HTTPSynthesizer) {
		s.apiKey = key
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(s *HTTPSynthesizer) {
		s.httpClient = c
	}
}

// WithMaxRetries sets the maximum number of retries for transient failures.
func WithMaxRetries(n int) HTTPOption {
	return func(s *HTTPSynthesizer) {
		s.maxRetries = n
	}
}

// WithBaseBackoff sets the initial backoff duration for retries.
func WithBaseBackoff(d time.Duration) HTTPOption {
	return func(s *HTTPSynthesizer) {
		s.baseBackoff = d
	}
}

// NewHTTPSynthesizer creates a client for the engine at baseURL.
func NewHTTPSynthesizer(baseURL string, opts ...HTTPOption) (*HTTPSynthesizer, error) {
	if baseURL == "" {
		return nil, ErrURLRequired
	}

	s := &HTTPSynthesizer{
		baseURL:     strings.TrimRight(baseURL, "/"),
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		maxRetries:  3,
		baseBackoff: 500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Synthesize implements Synthesizer.
func (s *HTTPSynthesizer) Synthesize(ctx context.Context, text, locale string) (*audio.Waveform, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}

	body, err := json.Marshal(synthesizeRequest{Text: text, Locale: locale, Format: "wav"})
	if err != nil {
		return nil, fmt.Errorf("speech: marshal request: %w", err)
	}

	var resp synthesizeResponse
	if err := s.doRequestWithRetry(ctx, s.baseURL+"/synthesize", body, &resp); err != nil {
		return nil, err
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("%w: %s", ErrSynthesisFailed, resp.Error)
	}

	raw, err := base64.StdEncoding.DecodeString(resp.AudioBase64)
	if err != nil {
		return nil, fmt.Errorf("%w: decode audio: %v", ErrSynthesisFailed, err)
	}
	w, err := codec.ReadWAV(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSynthesisFailed, err)
	}
	return w, nil
}

// doRequestWithRetry posts body with exponential backoff retry.
func (s *HTTPSynthesizer) doRequestWithRetry(ctx context.Context, url string, body []byte, result any) error {
	var lastErr error
	backoff := s.baseBackoff

	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("speech: context cancelled: %w", ctx.Err())
			case <-time.After(backoff):
				backoff *= 2
			}
		}

		err := s.doRequest(ctx, url, body, result)
		if err == nil {
			return nil
		}
		if !isRetryable(err) {
			return err
		}
		lastErr = err
	}

	return fmt.Errorf("speech: max retries exceeded: %w", lastErr)
}

// doRequest performs a single POST.
func (s *HTTPSynthesizer) doRequest(ctx context.Context, url string, body []byte, result any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("speech: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return &retryableError{err: fmt.Errorf("speech: request failed: %w", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &retryableError{err: fmt.Errorf("speech: read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if resp.StatusCode >= 500 {
			return &retryableError{err: fmt.Errorf("%w %d: %s", ErrServerError, resp.StatusCode, string(respBody))}
		}
		if resp.StatusCode == http.StatusTooManyRequests {
			return &retryableError{err: fmt.Errorf("%w: %s", ErrRateLimited, string(respBody))}
		}
		return fmt.Errorf("%w with status %d: %s", ErrRequestFailed, resp.StatusCode, string(respBody))
	}

	if err := json.Unmarshal(respBody, result); err != nil {
		return fmt.Errorf("speech: unmarshal response: %w", err)
	}
	return nil
}

// retryableError wraps errors that should be retried.
type retryableError struct {
	err error
}

func (e *retryableError) Error() string {
	return e.err.Error()
}

func (e *retryableError) Unwrap() error {
	return e.err
}

func isRetryable(err error) bool {
	var re *retryableError
	return errors.As(err, &re)
}

var _ Synthesizer = (*HTTPSynthesizer)(nil)
