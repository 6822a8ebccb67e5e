package metrics

import (
	"context"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
)

func TestServeExposesMetricsUntilCancelled(t *testing.T) {
	sink := New("")
	sink.BatchCancelled(context.Background(), 1)

	ctx, cancel := context.WithCancel(context.Background())
	ready := make(chan net.Addr, 1)
	done := make(chan error, 1)
	extra := func(r chi.Router) {
		r.Get("/ping", func(w http.ResponseWriter, _ *http.Request) {
			_, _ = io.WriteString(w, "pong")
		})
	}
	go func() { done <- sink.Serve(ctx, "127.0.0.1:0", ready, extra) }()

	var addr net.Addr
	select {
	case addr = <-ready:
	case err := <-done:
		t.Fatalf("serve exited early: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for listener")
	}

	resp, err := http.Get("http://" + addr.String() + "/metrics")
	if err != nil {
		t.Fatalf("get metrics: %v", err)
	}
	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if !strings.Contains(string(body), `roomlist_batches_total{result="cancelled"} 1`) {
		t.Fatalf("expected cancelled batch metric, got:\n%s", body)
	}

	resp, err = http.Get("http://" + addr.String() + "/ping")
	if err != nil {
		t.Fatalf("get ping: %v", err)
	}
	body, _ = io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if string(body) != "pong" {
		t.Fatalf("expected extra route served, got %q", body)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("serve did not stop")
	}
}

func TestServeRejectsBadAddress(t *testing.T) {
	if err := New("").Serve(context.Background(), "256.0.0.1:bad", nil); err == nil {
		t.Fatalf("expected listen error")
	}
}
