package extraction

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type testBundle struct {
	Source      string `json:"source"`
	Medications []struct {
		Name   string `json:"name"`
		Dosage string `json:"dosage"`
	} `json:"medications"`
}

func TestExtract_DecodesBundle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/extract" {
			t.Errorf("path = %s, want /extract", r.URL.Path)
		}
		var req map[string]string
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req["text"] == "" {
			t.Error("request text missing")
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"source":"upload","medications":[{"name":"Metformin","dosage":"500mg"}]}`))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, Timeout: 2 * time.Second, MaxRetries: 1}, zerolog.Nop())
	var b testBundle
	if err := c.Extract(context.Background(), "patient takes metformin 500mg", &b); err != nil {
		t.Fatalf("Extract() error: %v", err)
	}
	if len(b.Medications) != 1 || b.Medications[0].Name != "Metformin" {
		t.Errorf("unexpected bundle: %+v", b)
	}
}

func TestExtract_RetriesThenFails(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, Timeout: 2 * time.Second, MaxRetries: 2}, zerolog.Nop())
	var b testBundle
	err := c.Extract(context.Background(), "text", &b)
	if !errors.Is(err, ErrExtractionFailed) {
		t.Fatalf("expected ErrExtractionFailed, got %v", err)
	}
	if calls.Load() < 2 {
		t.Errorf("calls = %d, expected retries", calls.Load())
	}
}

func TestExtract_Unreachable(t *testing.T) {
	c := NewClient(Config{BaseURL: "http://127.0.0.1:1", Timeout: time.Second, MaxRetries: 1}, zerolog.Nop())
	var b testBundle
	if err := c.Extract(context.Background(), "text", &b); !errors.Is(err, ErrExtractionFailed) {
		t.Fatalf("expected ErrExtractionFailed, got %v", err)
	}
}
