package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"charterhub/berth/pkg/cli"
	"charterhub/berth/pkg/config"
	"charterhub/berth/pkg/server"
	"charterhub/berth/pkg/storage"
	"charterhub/berth/pkg/telemetry/logging"
)

func newBenchServer(t *testing.T) *httptest.Server {
	t.Helper()
	cfg := config.Default()
	cfg.Storage.Driver = "memory"
	cfg.RateLimits.Routes = map[string]string{}
	cfg.RateLimits.DefaultEndpoint = ""
	cfg.Reservation.MaxAttempts = 50
	cfg.Reservation.BackoffBase = time.Millisecond

	app, err := server.NewApp(context.Background(), cfg, "", buildInfo(), logging.Discard())
	if err != nil {
		t.Fatalf("NewApp() error = %v", err)
	}
	ts := httptest.NewServer(app.Server().Handler())
	t.Cleanup(func() {
		ts.Close()
		_ = app.Close()
	})
	return ts
}

func benchOpts(target string) benchOptions {
	return benchOptions{
		target:      target,
		slot:        storage.SlotKey{CaptainID: "cap-7", Date: "2099-11-02", Time: "09:00"},
		capacity:    6,
		requests:    40,
		concurrency: 8,
		units:       1,
		timeout:     5 * time.Second,
	}
}

func TestRunBench(t *testing.T) {
	ts := newBenchServer(t)
	var progressOut bytes.Buffer

	result, err := runBench(context.Background(), ts.Client(), benchOpts(ts.URL), cli.NewProgressReporter(&progressOut))
	if err != nil {
		t.Fatalf("runBench() error = %v", err)
	}

	if !result.Consistent {
		t.Error("result not consistent")
	}
	if result.Created != 6 || result.BookedAfter != 6 || result.Capacity != 6 {
		t.Errorf("created %d, booked %d of %d; want 6 of 6", result.Created, result.BookedAfter, result.Capacity)
	}
	if got := result.StatusCodes[http.StatusConflict]; got != 34 {
		t.Errorf("409 responses = %d, want 34", got)
	}
	if result.TransportErrors != 0 {
		t.Errorf("transport errors = %d", result.TransportErrors)
	}
	if result.Latency.Max < result.Latency.P50 {
		t.Errorf("latency summary out of order: %+v", result.Latency)
	}
	if !strings.Contains(progressOut.String(), "(40/40, 0 failed)") {
		t.Errorf("progress output = %q", progressOut.String())
	}
}

func TestRunBenchExistingSlot(t *testing.T) {
	ts := newBenchServer(t)

	opts := benchOpts(ts.URL)
	opts.requests = 4
	if _, err := runBench(context.Background(), ts.Client(), opts, cli.NewProgressReporter(&bytes.Buffer{})); err != nil {
		t.Fatalf("first run error = %v", err)
	}

	opts.capacity = 0
	opts.units = 2
	result, err := runBench(context.Background(), ts.Client(), opts, cli.NewProgressReporter(&bytes.Buffer{}))
	if err != nil {
		t.Fatalf("second run error = %v", err)
	}
	if result.BookedBefore != 4 || result.Created != 1 || result.BookedAfter != 6 {
		t.Errorf("booked %d -> %d with %d created; want 4 -> 6 with 1", result.BookedBefore, result.BookedAfter, result.Created)
	}
}

func TestRunBenchDetectsInconsistency(t *testing.T) {
	// A server that acknowledges every reservation without booking it.
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/slots/{captain}/{date}/{time}", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"captain_id":"cap-7","date":"2099-11-02","time":"09:00","capacity":6,"booked_count":0,"available":6}`))
	})
	mux.HandleFunc("POST /v1/reservations", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{}`))
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	opts := benchOpts(ts.URL)
	opts.capacity = 0
	opts.requests = 3

	result, err := runBench(context.Background(), ts.Client(), opts, cli.NewProgressReporter(&bytes.Buffer{}))
	if err == nil || !strings.Contains(err.Error(), errInconsistent.Error()) {
		t.Fatalf("runBench() error = %v, want inconsistency", err)
	}
	if result == nil || result.Consistent || result.Created != 3 {
		t.Errorf("result = %+v", result)
	}
}

func TestBenchOptionsValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*benchOptions)
		wantErr string
	}{
		{"valid", func(*benchOptions) {}, ""},
		{"bad slot", func(o *benchOptions) { o.slot.Time = "9am" }, "HH:MM"},
		{"no requests", func(o *benchOptions) { o.requests = 0 }, "--requests"},
		{"no concurrency", func(o *benchOptions) { o.concurrency = 0 }, "--concurrency"},
		{"zero units", func(o *benchOptions) { o.units = 0 }, "--units"},
		{"negative capacity", func(o *benchOptions) { o.capacity = -1 }, "--capacity"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := benchOpts("http://localhost")
			tt.mutate(&opts)
			err := opts.validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("validate() error = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

func TestPercentile(t *testing.T) {
	sorted := make([]time.Duration, 100)
	for i := range sorted {
		sorted[i] = time.Duration(i+1) * time.Millisecond
	}

	tests := []struct {
		p    float64
		want time.Duration
	}{
		{0.50, 50 * time.Millisecond},
		{0.95, 95 * time.Millisecond},
		{0.99, 99 * time.Millisecond},
		{1.00, 100 * time.Millisecond},
		{0.00, 1 * time.Millisecond},
	}
	for _, tt := range tests {
		if got := percentile(sorted, tt.p); got != tt.want {
			t.Errorf("percentile(%v) = %v, want %v", tt.p, got, tt.want)
		}
	}

	if got := summarizeLatencies(nil); got != (latencySummary{}) {
		t.Errorf("summarizeLatencies(nil) = %+v", got)
	}
}
