package proof

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestHTTPVerifier(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{"ok empty", http.StatusOK, "", nil},
		{"ok valid", http.StatusOK, `{"valid":true}`, nil},
		{"ok invalid", http.StatusOK, `{"valid":false,"error":"bad signature"}`, ErrRejected},
		{"bad request", http.StatusBadRequest, "nope", ErrRejected},
		{"server error", http.StatusBadGateway, "down", ErrVerifierFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Header.Get("Authorization") != "Bearer key" {
					t.Errorf("missing api key header")
				}
				var p Proof
				if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
					t.Errorf("decode proof: %v", err)
				}
				if p.Platform() != "twitter" {
					t.Errorf("platform = %q", p.Platform())
				}
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			v, err := NewHTTPVerifier(slog.Default(), srv.URL, "key", time.Second)
			if err != nil {
				t.Fatal(err)
			}
			err = v.Verify(context.Background(), sampleProof(time.Now()))
			if tt.wantErr == nil && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("Verify() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestHTTPVerifierRequiresURL(t *testing.T) {
	if _, err := NewHTTPVerifier(nil, " ", "", 0); err == nil {
		t.Fatal("expected error for empty url")
	}
}

func TestGatewaySubmitDeliversVerdict(t *testing.T) {
	var calls atomic.Int32
	verifier := VerifierFunc(func(ctx context.Context, p Proof) error {
		calls.Add(1)
		if p.Handle() == "mallory" {
			return ErrRejected
		}
		return nil
	})
	gw := NewGateway(slog.Default(), verifier, GatewayOptions{Timeout: time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	results := make(chan error, 2)
	ok := sampleProof(time.Now())
	bad := sampleProof(time.Now())
	bad.ClaimInfo.Parameters = "mallory"
	gw.Submit(ctx, ok, func(err error) { results <- err })
	gw.Submit(ctx, bad, func(err error) { results <- err })
	cancel()
	gw.Wait()
	close(results)

	var okCount, rejected int
	for err := range results {
		switch {
		case err == nil:
			okCount++
		case errors.Is(err, ErrRejected):
			rejected++
		default:
			t.Fatalf("unexpected verdict: %v", err)
		}
	}
	if okCount != 1 || rejected != 1 || calls.Load() != 2 {
		t.Fatalf("ok=%d rejected=%d calls=%d", okCount, rejected, calls.Load())
	}
}

func TestGatewayTimeout(t *testing.T) {
	verifier := VerifierFunc(func(ctx context.Context, _ Proof) error {
		<-ctx.Done()
		return ctx.Err()
	})
	gw := NewGateway(nil, verifier, GatewayOptions{Timeout: 20 * time.Millisecond})
	err := gw.Verify(context.Background(), sampleProof(time.Now()))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Verify() = %v, want deadline exceeded", err)
	}
}

func TestStaticVerifier(t *testing.T) {
	if err := AcceptAll.Verify(context.Background(), Proof{}); err != nil {
		t.Fatal(err)
	}
	reject := StaticVerifier{Err: ErrRejected}
	if err := reject.Verify(context.Background(), Proof{}); !errors.Is(err, ErrRejected) {
		t.Fatalf("Verify() = %v", err)
	}
}
