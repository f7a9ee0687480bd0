package proof

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Verifier checks a proof in one external round trip. A nil error means the proof is valid.
type Verifier interface {
	Verify(ctx context.Context, p Proof) error
}

// VerifierFunc adapts a function to Verifier.
type VerifierFunc func(ctx context.Context, p Proof) error

func (f VerifierFunc) Verify(ctx context.Context, p Proof) error { return f(ctx, p) }

// StaticVerifier returns the same verdict for every proof.
type StaticVerifier struct {
	Err error
}

// AcceptAll is a StaticVerifier that approves everything.
var AcceptAll = StaticVerifier{}

func (v StaticVerifier) Verify(ctx context.Context, _ Proof) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return v.Err
}

// HTTPVerifier posts the proof JSON to an external verification endpoint.
type HTTPVerifier struct {
	url    string
	apiKey string
	logger *slog.Logger
	http   *http.Client
}

func NewHTTPVerifier(log *slog.Logger, url, apiKey string, timeout time.Duration) (*HTTPVerifier, error) {
	if strings.TrimSpace(url) == "" {
		return nil, fmt.Errorf("proof verifier: url is required")
	}
	if log == nil {
		log = slog.Default()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPVerifier{
		url:    strings.TrimRight(url, "/"),
		apiKey: apiKey,
		logger: log.With(slog.String("client", "proof_verifier")),
		http: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

type verifyResponse struct {
	Valid *bool  `json:"valid"`
	Error string `json:"error"`
}

// Verify treats any 2xx as success unless the body explicitly says {"valid": false}.
// 4xx responses are rejections, everything else is a verifier failure.
func (v *HTTPVerifier) Verify(ctx context.Context, p Proof) error {
	payload, err := json.Marshal(p)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if v.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+v.apiKey)
	}

	resp, err := v.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrVerifierFailed, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return fmt.Errorf("%w: read body: %v", ErrVerifierFailed, err)
	}
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		var parsed verifyResponse
		if len(bytes.TrimSpace(body)) > 0 && json.Unmarshal(body, &parsed) == nil && parsed.Valid != nil && !*parsed.Valid {
			return fmt.Errorf("%w: %s", ErrRejected, parsed.Error)
		}
		return nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		v.logger.Debug("proof rejected", slog.Int("status", resp.StatusCode))
		return fmt.Errorf("%w: status %d: %s", ErrRejected, resp.StatusCode, strings.TrimSpace(string(body)))
	default:
		return fmt.Errorf("%w: status %d: %s", ErrVerifierFailed, resp.StatusCode, strings.TrimSpace(string(body)))
	}
}
