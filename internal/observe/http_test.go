package observe

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"
)

func TestHealthz(t *testing.T) {
	srv := httptest.NewServer(Handler(nil))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || strings.TrimSpace(string(body)) != "ok" {
		t.Fatalf("healthz: %d %q", resp.StatusCode, body)
	}
}

func TestHealthzFailingCheck(t *testing.T) {
	h := Handler(map[string]Check{
		"postgres": func(context.Context) error { return errors.New("down") },
	})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "postgres") {
		t.Fatalf("body %q", rec.Body.String())
	}
}

func TestMetricsExposed(t *testing.T) {
	IncEnvelope("LOGIN")
	IncDropped()

	rec := httptest.NewRecorder()
	Handler(nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	for _, name := range []string{"chat_envelopes_total", "chat_dropped_frames_total", "chat_online_users"} {
		if !strings.Contains(rec.Body.String(), name) {
			t.Errorf("metric %s missing", name)
		}
	}
}

func TestCounters(t *testing.T) {
	before := testutil.ToFloat64(authTotal.WithLabelValues("ok"))
	IncAuth("ok")
	if got := testutil.ToFloat64(authTotal.WithLabelValues("ok")); got != before+1 {
		t.Fatalf("auth ok counter: %v", got)
	}
	SetOnline(3)
	if got := testutil.ToFloat64(onlineUsers); got != 3 {
		t.Fatalf("online gauge: %v", got)
	}
	SetOnline(0)
}

func TestServeHTTPStopsOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ServeHTTP(ctx, ln, Handler(nil), zap.NewNop()) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("server did not stop")
	}
}
