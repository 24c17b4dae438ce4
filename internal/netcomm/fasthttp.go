package netcomm

import (
	"context"
	"fmt"
	"time"

	"github.com/valyala/fasthttp"
)

// FasthttpTransport sends requests with a pooled fasthttp client.
type FasthttpTransport struct {
	client  *fasthttp.Client
	timeout time.Duration
}

// NewFasthttp creates a fasthttp backed transport.
func NewFasthttp(timeout time.Duration) *FasthttpTransport {
	return &FasthttpTransport{
		client: &fasthttp.Client{
			Name:                userAgent,
			MaxConnsPerHost:     16,
			ReadTimeout:         timeout,
			WriteTimeout:        timeout,
			MaxIdleConnDuration: time.Minute,
		},
		timeout: timeout,
	}
}

func (t *FasthttpTransport) Send(ctx context.Context, r Request) ([]byte, error) {
	_, span := startSpan(ctx, "fasthttp", r)

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(r.Target)
	req.Header.SetMethod(r.Method())
	for k, v := range r.Headers {
		req.Header.Set(k, v)
	}
	if len(r.Payload) > 0 {
		req.SetBody(r.Payload)
	}

	var deadline time.Time
	if t.timeout > 0 {
		deadline = time.Now().Add(t.timeout)
	}
	if d, ok := ctx.Deadline(); ok && (deadline.IsZero() || d.Before(deadline)) {
		deadline = d
	}

	var err error
	if deadline.IsZero() {
		err = t.client.Do(req, resp)
	} else {
		err = t.client.DoDeadline(req, resp, deadline)
	}
	if err != nil {
		err = fmt.Errorf("%s %s: %w", r.Method(), r.Target, err)
		finishSpan(span, 0, nil, err)
		return nil, err
	}

	// resp is released on return
	body := append([]byte(nil), resp.Body()...)
	code := resp.StatusCode()
	if code < 200 || code >= 300 {
		err = &StatusError{Target: r.Target, Code: code, Body: body}
	}
	finishSpan(span, code, body, err)
	if err != nil {
		return nil, err
	}
	return body, nil
}
