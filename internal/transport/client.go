// Package transport is the client side of the shard HTTP protocol.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// ErrShardUnreachable covers every failure to get a well-formed answer
// from a shard: connection errors, timeouts, 5xx and malformed bodies.
var ErrShardUnreachable = errors.New("shard unreachable")

type ClientOption func(*clientOptions)

type clientOptions struct {
	timeout time.Duration
	headers map[string]string
}

func defaultClientOptions() clientOptions {
	return clientOptions{
		timeout: 2 * time.Second,
		headers: map[string]string{"Accept": "application/json"},
	}
}

// WithTimeout bounds each request, in addition to any context deadline.
func WithTimeout(d time.Duration) ClientOption {
	return func(o *clientOptions) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithHeaders adds headers to every request.
func WithHeaders(headers map[string]string) ClientOption {
	return func(o *clientOptions) {
		for k, v := range headers {
			o.headers[k] = v
		}
	}
}

// Client talks to shard servers. Endpoints are base URLs such as
// "http://127.0.0.1:5001". Safe for concurrent use.
type Client struct {
	resty *resty.Client
}

func NewClient(opts ...ClientOption) *Client {
	cfg := defaultClientOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	rc := resty.New().
		SetTimeout(cfg.timeout).
		SetHeaders(cfg.headers)

	return &Client{resty: rc}
}

func cacheURL(endpoint string) string {
	return strings.TrimRight(endpoint, "/") + "/cache/{key}"
}

func unreachable(endpoint string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrShardUnreachable, endpoint, err)
}

// Get fetches key from the shard at endpoint. A missing key is reported
// as found == false with a nil error.
func (c *Client) Get(ctx context.Context, endpoint, key string) (json.RawMessage, bool, error) {
	resp, err := c.resty.R().
		SetContext(ctx).
		SetPathParam("key", key).
		Get(cacheURL(endpoint))
	if err != nil {
		return nil, false, unreachable(endpoint, err)
	}

	switch resp.StatusCode() {
	case http.StatusOK:
		var body GetResponse
		if err := json.Unmarshal(resp.Body(), &body); err != nil {
			return nil, false, unreachable(endpoint, fmt.Errorf("decode body: %w", err))
		}
		return body.Value, true, nil
	case http.StatusNotFound:
		if !isKeyMiss(resp.Body()) {
			return nil, false, unreachable(endpoint, statusError(resp))
		}
		return nil, false, nil
	default:
		return nil, false, unreachable(endpoint, statusError(resp))
	}
}

// isKeyMiss reports whether a 404 body is a shard's {"value": null}.
// Any other 404 comes from something that is not a shard.
func isKeyMiss(body []byte) bool {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return false
	}
	v, ok := fields["value"]
	return ok && string(v) == "null"
}

// Put writes key to the shard at endpoint.
func (c *Client) Put(ctx context.Context, endpoint, key string, value json.RawMessage, opts ...PutOption) error {
	var ack PutResponse
	resp, err := c.resty.R().
		SetContext(ctx).
		SetPathParam("key", key).
		SetBody(NewPutRequest(value, opts...)).
		SetResult(&ack).
		Post(cacheURL(endpoint))
	if err != nil {
		return unreachable(endpoint, err)
	}
	if resp.IsError() {
		return unreachable(endpoint, statusError(resp))
	}
	if !ack.OK {
		return unreachable(endpoint, errors.New("write not acknowledged"))
	}
	return nil
}

// Health probes GET /health on the shard at endpoint.
func (c *Client) Health(ctx context.Context, endpoint string) error {
	var body HealthResponse
	resp, err := c.resty.R().
		SetContext(ctx).
		SetResult(&body).
		Get(strings.TrimRight(endpoint, "/") + "/health")
	if err != nil {
		return unreachable(endpoint, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return unreachable(endpoint, statusError(resp))
	}
	if body.Status != StatusUp {
		return unreachable(endpoint, fmt.Errorf("status %q", body.Status))
	}
	return nil
}

func statusError(resp *resty.Response) error {
	return fmt.Errorf("http %d: %s", resp.StatusCode(), strings.TrimSpace(resp.String()))
}
