// Package netcomm sends the synchronous HTTP requests networked sources make.
package netcomm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ryanm101/romscraper/internal/tracing"
)

const userAgent = "romscraper/1.0"

// Request is one outgoing call: target URL, body and headers. An empty
// payload is sent as GET, anything else as POST.
type Request struct {
	Target  string
	Payload []byte
	Headers map[string]string
}

// Method returns the HTTP method used for the request.
func (r Request) Method() string {
	if len(r.Payload) == 0 {
		return http.MethodGet
	}
	return http.MethodPost
}

// Transport sends a request and returns the response body.
// Non-2xx responses return a *StatusError carrying the body.
type Transport interface {
	Send(ctx context.Context, req Request) ([]byte, error)
}

// StatusError is returned for responses outside the 2xx range.
type StatusError struct {
	Target string
	Code   int
	Body   []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d", e.Target, e.Code)
}

// Unauthorized reports whether the server rejected the credentials.
func (e *StatusError) Unauthorized() bool {
	return e.Code == http.StatusUnauthorized || e.Code == http.StatusForbidden
}

// New returns the transport named by client ("resty" or "fasthttp").
func New(client string, timeout time.Duration) (Transport, error) {
	switch strings.ToLower(client) {
	case "", "resty":
		return NewResty(timeout), nil
	case "fasthttp":
		return NewFasthttp(timeout), nil
	default:
		return nil, fmt.Errorf("unknown transport client %q", client)
	}
}

func startSpan(ctx context.Context, client string, req Request) (context.Context, trace.Span) {
	return tracing.StartSpan(ctx, "http "+req.Method(),
		tracing.WithAttributes(
			attribute.String("http.client", client),
			attribute.String("http.url", req.Target),
			attribute.Int("http.request.body.size", len(req.Payload)),
		),
	)
}

func finishSpan(span trace.Span, code int, body []byte, err error) {
	tracing.AddSpanAttributes(span,
		attribute.Int("http.status_code", code),
		attribute.Int("http.response.body.size", len(body)),
	)
	if err != nil {
		tracing.RecordError(span, err)
	} else {
		tracing.SetSpanOK(span)
	}
	span.End()
}
