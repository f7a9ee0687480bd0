package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/require"

	"github.com/memohai/claimd/internal/events"
	"github.com/memohai/claimd/internal/proof"
)

func TestEventStream(t *testing.T) {
	a := newAPI(t, proof.AcceptAll)
	ts := httptest.NewServer(a.srv.Echo())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/events?platform=twitter&handle=bob"
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	defer func() { _ = conn.CloseNow() }()

	// The subscription is registered after the upgrade; publish until it is observed.
	got := make(chan string, 1)
	go func() {
		_, data, err := conn.Read(ctx)
		if err == nil {
			got <- string(data)
		}
	}()
	deadline := time.After(3 * time.Second)
	for {
		rec := a.tip("alice.near", "twitter", "bob", "1")
		require.Equal(t, http.StatusCreated, rec.Code)
		select {
		case line := <-got:
			require.True(t, strings.HasPrefix(line, events.JSONPrefix), line)
			require.Contains(t, line, `"event":"claim_created"`)
			require.Contains(t, line, `"tipper":"alice.near"`)
			return
		case <-time.After(20 * time.Millisecond):
		case <-deadline:
			t.Fatal("no event received")
		}
	}
}

func TestEventStreamRejectsBadHandle(t *testing.T) {
	a := newAPI(t, proof.AcceptAll)
	rec := a.do(http.MethodGet, "/events?platform=twitter", "", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
