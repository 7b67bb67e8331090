package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/Agalaxie/shadesupport/internal/config"
)

func TestRunClientFetch(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tickets" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		w.Write([]byte(`[{"id":"t1"}]`))
	}))
	defer ts.Close()

	var out bytes.Buffer
	if err := runClientFetch(config.DefaultConfig(), ts.URL, "/api/tickets", &out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.TrimSpace(out.String()) != `[{"id":"t1"}]` {
		t.Errorf("unexpected output: %q", out.String())
	}
}

func TestRunClientFetchUsesConfiguredRetries(t *testing.T) {
	calls := int32(0)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) <= 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer ts.Close()

	// Two retries come from the config, one more than the controller's
	// built-in default, so success here proves the knobs are applied.
	cfg := config.DefaultConfig()
	cfg.Client.Retries = 2
	cfg.Client.RetryDelayMS = 1

	var out bytes.Buffer
	if err := runClientFetch(cfg, ts.URL, "/api/tickets", &out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if atomic.LoadInt32(&calls) != 3 {
		t.Errorf("expected 3 attempts, got %d", atomic.LoadInt32(&calls))
	}
}

func TestRunClientFetchServerError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"Ticket non trouvé"}`))
	}))
	defer ts.Close()

	cfg := config.DefaultConfig()
	cfg.Client.RetryDelayMS = 1

	var out bytes.Buffer
	err := runClientFetch(cfg, ts.URL, "/api/tickets/nope", &out)
	if err == nil {
		t.Fatal("expected an error")
	}
	if err.Error() != "Ticket non trouvé" {
		t.Errorf("unexpected error message: %q", err.Error())
	}
}
