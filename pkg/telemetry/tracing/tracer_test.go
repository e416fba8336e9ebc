package tracing

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"charterhub/berth/pkg/config"
)

func newRecordingTracer(t *testing.T) (*Tracer, *tracetest.SpanRecorder) {
	t.Helper()
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return NewFromProvider(tp), sr
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *config.TracingConfig
		wantErr bool
		enabled bool
	}{
		{
			name:    "nil config",
			cfg:     nil,
			wantErr: true,
		},
		{
			name:    "disabled",
			cfg:     &config.TracingConfig{Enabled: false},
			enabled: false,
		},
		{
			name: "unknown sampler",
			cfg: &config.TracingConfig{
				Enabled:  true,
				Sampler:  "sometimes",
				Exporter: "otlp",
				Endpoint: "localhost:4317",
			},
			wantErr: true,
		},
		{
			name: "unsupported exporter",
			cfg: &config.TracingConfig{
				Enabled:     true,
				Sampler:     SamplerAlways,
				Exporter:    "zipkin",
				Endpoint:    "localhost:9411",
				ServiceName: "berth",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tracer, err := New(context.Background(), tt.cfg, "test")
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			defer tracer.Shutdown(context.Background())

			if tracer.Enabled() != tt.enabled {
				t.Errorf("Enabled() = %v, want %v", tracer.Enabled(), tt.enabled)
			}
		})
	}
}

func TestTracer_DisabledSpansAreNoop(t *testing.T) {
	tracer, err := New(context.Background(), &config.TracingConfig{}, "test")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, span := tracer.Start(context.Background(), "noop")
	defer span.End()

	if span.IsRecording() {
		t.Error("expected disabled tracer to produce non-recording spans")
	}
	if TraceID(ctx) != "" {
		t.Errorf("expected no trace ID, got %q", TraceID(ctx))
	}
	if err := tracer.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
}

func TestTracer_Start(t *testing.T) {
	tracer, sr := newRecordingTracer(t)

	ctx, parent := tracer.Start(context.Background(), "parent")
	_, child := tracer.Start(ctx, "child")
	child.End()
	parent.End()

	spans := sr.Ended()
	if len(spans) != 2 {
		t.Fatalf("expected 2 spans, got %d", len(spans))
	}
	if spans[0].Parent().SpanID() != spans[1].SpanContext().SpanID() {
		t.Error("expected child span to reference parent")
	}
	if TraceID(ctx) != spans[1].SpanContext().TraceID().String() {
		t.Error("expected TraceID to return the parent trace")
	}
}

func TestSetError(t *testing.T) {
	tracer, sr := newRecordingTracer(t)

	_, span := tracer.Start(context.Background(), "failing")
	SetError(span, nil)
	SetError(span, errors.New("storage offline"))
	span.End()

	got := sr.Ended()[0]
	if got.Status().Code != codes.Error {
		t.Errorf("expected error status, got %v", got.Status().Code)
	}
	if len(got.Events()) != 1 {
		t.Errorf("expected 1 recorded exception event, got %d", len(got.Events()))
	}
}

func TestSetRateLimitAttributes(t *testing.T) {
	tracer, sr := newRecordingTracer(t)

	_, limited := tracer.Start(context.Background(), "limited")
	SetRateLimitAttributes(limited, "booking", 20, 0, true)
	limited.End()

	_, unlimited := tracer.Start(context.Background(), "unlimited")
	SetRateLimitAttributes(unlimited, "reads", -1, -1, false)
	unlimited.End()

	spans := sr.Ended()
	if n := len(spans[0].Attributes()); n != 4 {
		t.Errorf("expected 4 attributes on limited span, got %d", n)
	}
	if n := len(spans[1].Attributes()); n != 2 {
		t.Errorf("expected 2 attributes on unlimited span, got %d", n)
	}
}
