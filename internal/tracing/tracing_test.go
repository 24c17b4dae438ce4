package tracing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// recordSpans routes spans to an in-memory recorder for the test.
func recordSpans(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	old := tracer
	tracer = tp.Tracer(serviceName)
	t.Cleanup(func() {
		tracer = old
		_ = tp.Shutdown(context.Background())
	})
	return rec
}

func attrMap(attrs []attribute.KeyValue) map[attribute.Key]attribute.Value {
	m := make(map[attribute.Key]attribute.Value, len(attrs))
	for _, a := range attrs {
		m[a.Key] = a.Value
	}
	return m
}

func TestDefaultConfig(t *testing.T) {
	tests := []struct {
		name     string
		endpoint string
		sampler  string
		want     Config
	}{
		{
			name: "no collector",
			want: Config{Insecure: true},
		},
		{
			name:     "collector from env",
			endpoint: "localhost:4317",
			want:     Config{Enabled: true, Endpoint: "localhost:4317", Insecure: true},
		},
		{
			name:     "sample ratio from env",
			endpoint: "otel:4317",
			sampler:  "0.25",
			want:     Config{Enabled: true, Endpoint: "otel:4317", Insecure: true, SampleRatio: 0.25},
		},
		{
			name:    "bad sample ratio ignored",
			sampler: "half",
			want:    Config{Insecure: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", tt.endpoint)
			t.Setenv("OTEL_TRACES_SAMPLER_ARG", tt.sampler)
			assert.Equal(t, tt.want, DefaultConfig())
		})
	}
}

func TestSampler(t *testing.T) {
	assert.Equal(t, sdktrace.AlwaysSample().Description(), Config{}.sampler().Description())
	assert.Equal(t, sdktrace.AlwaysSample().Description(), Config{SampleRatio: 1}.sampler().Description())
	assert.Contains(t, Config{SampleRatio: 0.5}.sampler().Description(), "TraceIDRatioBased{0.5}")
}

func TestSetupDisabled(t *testing.T) {
	old := tracer
	t.Cleanup(func() { tracer = old })

	for _, cfg := range []Config{{}, {Enabled: true}} {
		shutdown, err := Setup(context.Background(), cfg)
		require.NoError(t, err)
		require.NotNil(t, shutdown)
		assert.NoError(t, shutdown(context.Background()))
		assert.NotNil(t, Tracer())
	}
}

func TestJobSpan(t *testing.T) {
	rec := recordSpans(t)

	ctx, run := StartSpan(context.Background(), "engine.run",
		WithAttributes(attribute.String("platform", "snes")))
	_, job := StartSpan(ctx, "engine.job", WithAttributes(attribute.String("file", "Zelda.sfc")))
	AddSpanAttributes(job, attribute.String("status", "found"), attribute.Int("score", 97))
	SetSpanOK(job)
	job.End()
	run.End()

	spans := rec.Ended()
	require.Len(t, spans, 2)

	jobSpan := spans[0]
	assert.Equal(t, "engine.job", jobSpan.Name())
	assert.Equal(t, spans[1].SpanContext().SpanID(), jobSpan.Parent().SpanID())
	assert.Equal(t, codes.Ok, jobSpan.Status().Code)

	attrs := attrMap(jobSpan.Attributes())
	assert.Equal(t, "Zelda.sfc", attrs["file"].AsString())
	assert.Equal(t, "found", attrs["status"].AsString())
	assert.Equal(t, int64(97), attrs["score"].AsInt64())
	assert.Equal(t, "snes", attrMap(spans[1].Attributes())["platform"].AsString())
}

func TestRecordError(t *testing.T) {
	rec := recordSpans(t)

	_, span := StartSpan(context.Background(), "igdb.search")
	RecordError(span, errors.New("429 too many requests"))
	RecordError(span, nil)
	span.End()

	spans := rec.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Equal(t, "429 too many requests", spans[0].Status().Description)
	require.Len(t, spans[0].Events(), 1)
	assert.Equal(t, "exception", spans[0].Events()[0].Name)
}

func TestNilSpanHelpers(t *testing.T) {
	assert.NotPanics(t, func() {
		RecordError(nil, errors.New("boom"))
		SetSpanOK(nil)
		AddSpanAttributes(nil, attribute.Bool("x", true))
	})
}
