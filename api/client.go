// Package api is the HTTP transport for the inbox message service.
//
// Client implements inbox.MessageService, inbox.AuthService and
// inbox.TokenSetter. It performs no retries and no caching: every call is
// exactly one request, bounded by the request timeout.
//
//	c, err := api.New("https://messages.example.com")
//	client, err := inbox.NewClient(c, c, st)
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rbaliyan/inbox"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Compile-time checks
var (
	_ inbox.MessageService = (*Client)(nil)
	_ inbox.AuthService    = (*Client)(nil)
	_ inbox.TokenSetter    = (*Client)(nil)
)

// Client talks to the message service over HTTP.
// Safe for concurrent use.
type Client struct {
	base *url.URL
	http *http.Client
	opts *options

	mu    sync.RWMutex
	token string
}

// New creates a client for the service at baseURL, for example
// "https://messages.example.com". The base path is appended to it.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("base url %q: scheme must be http or https", baseURL)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("base url %q: missing host", baseURL)
	}

	o := newOptions(opts...)
	u.Path = strings.TrimRight(u.Path, "/") + "/" + strings.Trim(o.basePath, "/")
	u.Path = strings.TrimRight(u.Path, "/")
	u.RawQuery = ""
	u.Fragment = ""

	hc := o.httpClient
	if hc == nil {
		hc = &http.Client{}
	}
	if o.instrument {
		hc = instrument(hc, o)
	}

	return &Client{
		base:  u,
		http:  hc,
		opts:  o,
		token: o.token,
	}, nil
}

// instrument returns a copy of hc whose transport records client spans
// and metrics.
func instrument(hc *http.Client, o *options) *http.Client {
	base := hc.Transport
	if base == nil {
		base = http.DefaultTransport
	}

	var otelOpts []otelhttp.Option
	if o.tracerProvider != nil {
		otelOpts = append(otelOpts, otelhttp.WithTracerProvider(o.tracerProvider))
	}
	if o.meterProvider != nil {
		otelOpts = append(otelOpts, otelhttp.WithMeterProvider(o.meterProvider))
	}

	clone := *hc
	clone.Transport = otelhttp.NewTransport(base, otelOpts...)
	return &clone
}

// SetToken sets the bearer token attached to message requests.
// An empty token detaches it.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

// Token returns the current bearer token.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// BaseURL returns the resolved endpoint prefix.
func (c *Client) BaseURL() string {
	return c.base.String()
}

// List implements inbox.MessageService.
func (c *Client) List(ctx context.Context, req inbox.ListRequest) (*inbox.Listing, error) {
	q := url.Values{}
	if req.Page > 0 {
		q.Set("page", strconv.Itoa(req.Page))
	}
	if req.Size > 0 {
		q.Set("size", strconv.Itoa(req.Size))
	}
	if req.Status != "" {
		q.Set("status", string(req.Status))
	}
	if req.Channel != "" {
		q.Set("channel", string(req.Channel))
	}

	var resp listResponse
	if err := c.do(ctx, "list", http.MethodGet, "/messages", q, nil, &resp, true); err != nil {
		return nil, err
	}
	listing, err := resp.decode()
	if err != nil {
		return nil, &inbox.ServiceError{Op: "list", StatusCode: http.StatusOK, Err: err}
	}
	return listing, nil
}

// Send implements inbox.MessageService.
func (c *Client) Send(ctx context.Context, d inbox.Draft) (*inbox.Message, error) {
	body := sendRequest{
		Channel:    string(d.Channel),
		SenderID:   d.SenderID,
		ReceiverID: d.ReceiverID,
		Title:      d.Title,
		Content:    d.Content,
		Priority:   string(d.Priority),
	}
	return c.doMessage(ctx, "send", "/messages", body)
}

// MarkRead implements inbox.MessageService.
func (c *Client) MarkRead(ctx context.Context, id int64, channel inbox.Channel) (*inbox.Message, error) {
	if id <= 0 {
		return nil, &inbox.ValidationError{Field: "id", Message: "must be positive"}
	}
	path := "/messages/" + strconv.FormatInt(id, 10) + "/read"
	return c.doMessage(ctx, "mark_read", path, markReadRequest{Channel: string(channel)})
}

func (c *Client) doMessage(ctx context.Context, op, path string, body any) (*inbox.Message, error) {
	var wire message
	if err := c.do(ctx, op, http.MethodPost, path, nil, body, &wire, true); err != nil {
		return nil, err
	}
	msg, err := wire.decode()
	if err != nil {
		return nil, &inbox.ServiceError{Op: op, StatusCode: http.StatusOK, Err: err}
	}
	return &msg, nil
}

// UnreadCount implements inbox.MessageService.
func (c *Client) UnreadCount(ctx context.Context) (*inbox.Counters, error) {
	var counts inbox.Counters
	if err := c.do(ctx, "unread", http.MethodGet, "/messages/unread/count", nil, nil, &counts, true); err != nil {
		return nil, err
	}
	return &counts, nil
}

// Login implements inbox.AuthService.
func (c *Client) Login(ctx context.Context, creds inbox.Credentials) (*inbox.AuthResult, error) {
	return c.authenticate(ctx, "login", "/auth/login", creds)
}

// Register implements inbox.AuthService.
func (c *Client) Register(ctx context.Context, creds inbox.Credentials) (*inbox.AuthResult, error) {
	return c.authenticate(ctx, "register", "/auth/register", creds)
}

func (c *Client) authenticate(ctx context.Context, op, path string, creds inbox.Credentials) (*inbox.AuthResult, error) {
	var resp authResponse
	body := authRequest{Username: creds.Username, Password: creds.Password}
	if err := c.do(ctx, op, http.MethodPost, path, nil, body, &resp, false); err != nil {
		return nil, err
	}
	return &inbox.AuthResult{Token: resp.Token, User: resp.User}, nil
}

// do issues one request and decodes a 2xx JSON body into out.
func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, body, out any, withToken bool) error {
	ctx, cancel := context.WithTimeout(ctx, c.opts.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return &inbox.ServiceError{Op: op, Err: fmt.Errorf("marshal request: %w", err)}
		}
		reader = bytes.NewReader(data)
	}

	u := *c.base
	u.Path += path
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return &inbox.ServiceError{Op: op, Err: fmt.Errorf("create request: %w", err)}
	}

	requestID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.opts.userAgent)
	req.Header.Set("X-Request-ID", requestID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if withToken {
		if token := c.Token(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.opts.logger.Debug("request failed", "op", op, "request_id", requestID, "error", err)
		return &inbox.ServiceError{Op: op, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return &inbox.ServiceError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("read response: %w", err)}
	}

	c.opts.logger.Debug("request completed",
		"op", op,
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"request_id", requestID,
		"duration", time.Since(start),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return classify(op, resp.StatusCode, data)
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &inbox.ServiceError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

// classify turns a non-2xx response into an inbox error.
func classify(op string, status int, body []byte) error {
	text, field := errorText(status, body)

	switch status {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return &inbox.ValidationError{Field: field, Message: text, Err: validationSentinel(op)}
	case http.StatusUnauthorized, http.StatusForbidden:
		return &inbox.ServiceError{Op: op, StatusCode: status, Err: fmt.Errorf("%w: %s", inbox.ErrUnauthorized, text)}
	case http.StatusNotFound:
		return &inbox.ServiceError{Op: op, StatusCode: status, Err: fmt.Errorf("%w: %s", inbox.ErrNotFound, text)}
	default:
		return &inbox.ServiceError{Op: op, StatusCode: status, Err: errors.New(text)}
	}
}

func validationSentinel(op string) error {
	switch op {
	case "send":
		return inbox.ErrInvalidDraft
	case "list":
		return inbox.ErrInvalidFilter
	case "login", "register":
		return inbox.ErrInvalidCredentials
	}
	return inbox.ErrValidation
}

// errorText extracts the server's message from a JSON or plain text body.
func errorText(status int, body []byte) (text, field string) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var eb errorBody
		if json.Unmarshal(trimmed, &eb) == nil {
			switch {
			case eb.Message != "":
				return eb.Message, eb.Field
			case eb.Error != "":
				return eb.Error, eb.Field
			}
		}
	}
	if len(trimmed) > 0 {
		return string(trimmed), ""
	}
	return http.StatusText(status), ""
}
