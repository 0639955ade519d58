// Package analyzer wraps the external ML classification service. Every call
// is a single bounded attempt; retry policy, if any, belongs to the caller.
package analyzer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/textproto"
	"strings"
	"time"
)

// DefaultTimeout bounds a single Analyze call.
const DefaultTimeout = 30 * time.Second

const healthTimeout = 5 * time.Second

// FailureKind classifies why an analysis attempt failed, so callers can
// branch without matching error strings.
type FailureKind int

const (
	// KindUnreachable covers connection refused, DNS failures and the like.
	KindUnreachable FailureKind = iota
	// KindTimedOut means the call exceeded its deadline.
	KindTimedOut
	// KindServiceError means the remote responded but signaled failure or
	// returned malformed data.
	KindServiceError
)

func (k FailureKind) String() string {
	switch k {
	case KindUnreachable:
		return "unreachable"
	case KindTimedOut:
		return "timed out"
	case KindServiceError:
		return "service error"
	default:
		return "unknown"
	}
}

// Failure is the typed outcome of a failed analysis attempt.
type Failure struct {
	Kind FailureKind
	Err  error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("analyzer %s: %v", f.Kind, f.Err)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// Result is a successful classification: a non-empty deduplicated tag set
// plus per-tag confidence scores in [0,1].
type Result struct {
	Tags       []string           `json:"tags"`
	Confidence map[string]float64 `json:"confidence"`
}

// Health reports the analyzer's availability. A probe failure is data, not
// an error.
type Health struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Model describes one classification model offered by the service.
type Model struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type Client struct {
	baseURL string
	timeout time.Duration
	hc      *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: timeout,
		hc:      &http.Client{},
	}
}

// Analyze submits image bytes for classification. On failure it returns a
// *Failure whose Kind distinguishes unreachable, timed out, and remote
// errors. The timeout is a hard deadline on the whole exchange, not just the
// connect.
func (c *Client) Analyze(ctx context.Context, data []byte, filename, mimeType string) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, contentType, err := encodeImageForm(data, filename, mimeType)
	if err != nil {
		return nil, &Failure{Kind: KindServiceError, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/analyze", body)
	if err != nil {
		return nil, &Failure{Kind: KindServiceError, Err: err}
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, &Failure{Kind: classifyTransportError(err), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &Failure{
			Kind: KindServiceError,
			Err:  fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet))),
		}
	}

	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, &Failure{Kind: KindServiceError, Err: fmt.Errorf("decoding response: %w", err)}
	}

	if err := validateResult(&result); err != nil {
		return nil, &Failure{Kind: KindServiceError, Err: err}
	}

	return &result, nil
}

// HealthCheck probes the service's /health endpoint with a short budget.
func (c *Client) HealthCheck(ctx context.Context) Health {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return Health{Status: "unavailable", Error: err.Error()}
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return Health{Status: "unavailable", Error: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Health{Status: "unavailable", Error: fmt.Sprintf("unexpected status %d", resp.StatusCode)}
	}

	var h Health
	if err := json.NewDecoder(resp.Body).Decode(&h); err != nil {
		return Health{Status: "unavailable", Error: err.Error()}
	}
	return h
}

// Models lists the classification models the service exposes.
func (c *Client) Models(ctx context.Context) ([]Model, error) {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/models", nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching models: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching models: unexpected status %d", resp.StatusCode)
	}

	var ms []Model
	if err := json.NewDecoder(resp.Body).Decode(&ms); err != nil {
		return nil, fmt.Errorf("decoding models: %w", err)
	}
	return ms, nil
}

func classifyTransportError(err error) FailureKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimedOut
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimedOut
	}
	return KindUnreachable
}

// validateResult enforces the response contract: non-empty tags, confidence
// keys a subset of tags, scores in [0,1]. Duplicated tags are collapsed.
func validateResult(r *Result) error {
	if len(r.Tags) == 0 {
		return errors.New("response contains no tags")
	}

	seen := make(map[string]bool, len(r.Tags))
	deduped := r.Tags[:0]
	for _, tag := range r.Tags {
		if tag == "" {
			return errors.New("response contains an empty tag")
		}
		if seen[tag] {
			continue
		}
		seen[tag] = true
		deduped = append(deduped, tag)
	}
	r.Tags = deduped

	for label, score := range r.Confidence {
		if !seen[label] {
			return fmt.Errorf("confidence for unknown tag %q", label)
		}
		if score < 0 || score > 1 {
			return fmt.Errorf("confidence for %q out of range: %v", label, score)
		}
	}

	return nil
}

func encodeImageForm(data []byte, filename, mimeType string) (*bytes.Buffer, string, error) {
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)

	hdr := make(textproto.MIMEHeader)
	hdr.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename=%q`, filename))
	hdr.Set("Content-Type", mimeType)

	part, err := mw.CreatePart(hdr)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(data); err != nil {
		return nil, "", err
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}

	return body, mw.FormDataContentType(), nil
}
