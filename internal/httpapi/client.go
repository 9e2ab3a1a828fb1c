package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/park285/cheese-chess-client/pkg/chessdto"
	"github.com/valyala/fasthttp"
)

// APIError is a non-2xx answer from the control API.
type APIError struct {
	Status int
	chessdto.DomainError
}

func (e *APIError) Error() string {
	return fmt.Sprintf("control api: status=%d %s", e.Status, e.DomainError.Error())
}

// Client talks to a running control API.
type Client struct {
	baseURL string
	http    *fasthttp.Client

	defaultTimeout time.Duration
	retryMax       int
}

type Option func(*Client)

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.defaultTimeout = d }
}

func WithRetry(max int) Option {
	return func(c *Client) { c.retryMax = max }
}

// WithDial replaces the dialer, e.g. with an in-memory listener.
func WithDial(dial func(addr string) (net.Conn, error)) Option {
	return func(c *Client) { c.http.Dial = dial }
}

func NewClient(baseURL string, opts ...Option) *Client {
	if !strings.Contains(baseURL, "://") {
		baseURL = "http://" + baseURL
	}
	c := &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		http:           &fasthttp.Client{ReadTimeout: 10 * time.Second, WriteTimeout: 10 * time.Second, MaxConnsPerHost: 8},
		defaultTimeout: 10 * time.Second,
		retryMax:       3,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Health(ctx context.Context) error {
	_, err := c.do(ctx, fasthttp.MethodGet, "/healthz", nil, true)
	return err
}

func (c *Client) State(ctx context.Context) (*chessdto.SessionView, error) {
	var v chessdto.SessionView
	if err := c.doJSON(ctx, fasthttp.MethodGet, "/state", nil, &v, true); err != nil {
		return nil, err
	}
	return &v, nil
}

func (c *Client) Status(ctx context.Context) (string, error) {
	body, err := c.do(ctx, fasthttp.MethodGet, "/status", nil, true)
	return string(body), err
}

func (c *Client) Board(ctx context.Context) ([]byte, error) {
	return c.do(ctx, fasthttp.MethodGet, "/board.png", nil, true)
}

func (c *Client) RequestMatch(ctx context.Context) (*chessdto.AckResponse, error) {
	var ack chessdto.AckResponse
	if err := c.doJSON(ctx, fasthttp.MethodPost, "/match", nil, &ack, false); err != nil {
		return nil, err
	}
	return &ack, nil
}

func (c *Client) PlayAgain(ctx context.Context) (*chessdto.AckResponse, error) {
	var ack chessdto.AckResponse
	if err := c.doJSON(ctx, fasthttp.MethodPost, "/again", nil, &ack, false); err != nil {
		return nil, err
	}
	return &ack, nil
}

func (c *Client) Move(ctx context.Context, from, to, promotion string) (*chessdto.AckResponse, error) {
	q := url.Values{}
	q.Set("from", from)
	q.Set("to", to)
	if promotion != "" {
		q.Set("promotion", promotion)
	}
	var ack chessdto.AckResponse
	if err := c.doJSON(ctx, fasthttp.MethodPost, "/move?"+q.Encode(), nil, &ack, false); err != nil {
		return nil, err
	}
	return &ack, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, in any, out any, retry bool) error {
	var payload []byte
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		payload = b
	}
	body, err := c.do(ctx, method, path, payload, retry)
	if err != nil {
		return err
	}
	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// do retries transport errors and 5xx answers when retry is set. Intents are
// never retried since they are not idempotent.
func (c *Client) do(ctx context.Context, method, path string, payload []byte, retry bool) ([]byte, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()

	req.Header.SetMethod(method)
	req.SetRequestURI(c.baseURL + path)
	if payload != nil {
		req.Header.SetContentType("application/json")
		req.SetBody(payload)
	}

	attempts := 1
	if retry && c.retryMax > 1 {
		attempts = c.retryMax
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := c.http.DoDeadline(req, resp, c.computeDeadline(ctx))
		if err == nil {
			status := resp.StatusCode()
			if status >= 200 && status < 300 {
				return append([]byte(nil), resp.Body()...), nil
			}
			apiErr := &APIError{Status: status}
			if jerr := json.Unmarshal(resp.Body(), &apiErr.DomainError); jerr != nil || apiErr.Message == "" {
				apiErr.Message = truncate(string(resp.Body()), 512)
			}
			if !shouldRetryStatus(status) {
				return nil, apiErr
			}
			err = apiErr
		} else {
			err = fmt.Errorf("request failed: %w", err)
		}
		lastErr = err
		if attempt == attempts {
			break
		}
		if sleepErr := sleepWithContext(ctx, backoffDuration(attempt)); sleepErr != nil {
			break
		}
	}
	if lastErr == nil {
		lastErr = errors.New("unknown error")
	}
	return nil, lastErr
}

func (c *Client) computeDeadline(ctx context.Context) time.Time {
	clientDL := time.Now().Add(c.defaultTimeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(clientDL) {
		return dl
	}
	return clientDL
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func backoffDuration(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 6 {
		attempt = 6
	}
	return time.Duration(1<<uint(attempt-1)) * 100 * time.Millisecond
}

func shouldRetryStatus(code int) bool {
	switch code {
	case 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
