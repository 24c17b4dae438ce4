package netcomm

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// RestyTransport is the default Transport.
type RestyTransport struct {
	client *resty.Client
}

// NewResty creates a resty backed transport with the given request timeout.
func NewResty(timeout time.Duration) *RestyTransport {
	client := resty.New()
	client.SetTimeout(timeout)
	client.SetHeader("User-Agent", userAgent)
	return &RestyTransport{client: client}
}

// Client exposes the underlying resty client, e.g. for token requests.
func (t *RestyTransport) Client() *resty.Client {
	return t.client
}

func (t *RestyTransport) Send(ctx context.Context, req Request) ([]byte, error) {
	ctx, span := startSpan(ctx, "resty", req)

	r := t.client.R().SetContext(ctx).SetHeaders(req.Headers)
	if len(req.Payload) > 0 {
		r.SetBody(req.Payload)
	}

	res, err := r.Execute(req.Method(), req.Target)
	if err != nil {
		err = fmt.Errorf("%s %s: %w", req.Method(), req.Target, err)
		finishSpan(span, 0, nil, err)
		return nil, err
	}

	body := res.Body()
	if res.IsError() || res.StatusCode() >= 300 {
		err = &StatusError{Target: req.Target, Code: res.StatusCode(), Body: body}
	}
	finishSpan(span, res.StatusCode(), body, err)
	if err != nil {
		return nil, err
	}
	return body, nil
}
