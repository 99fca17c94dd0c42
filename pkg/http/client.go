package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Rishav0123/sentimatix/internal/models"
	"github.com/Rishav0123/sentimatix/pkg/circuitbreaker"
	"github.com/go-resty/resty/v2"
)

// StatusError is a non-2xx response from an upstream API.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream returned status %d: %s", e.Code, e.Body)
}

// ClientOptions configures a Client.
type ClientOptions struct {
	BaseURL string
	// BearerToken, when set, is sent as "Authorization: Bearer <token>".
	BearerToken string
	// Headers are added to every request.
	Headers map[string]string
	Timeout time.Duration
	// Breaker is optional. Transport errors and 5xx responses count as failures.
	Breaker circuitbreaker.CircuitBreaker
}

// Client is a JSON REST client with built-in circuit breaking.
type Client struct {
	rc      *resty.Client
	breaker circuitbreaker.CircuitBreaker
}

// NewClient creates a Client for opts.BaseURL.
func NewClient(opts ClientOptions) *Client {
	rc := resty.New().
		SetBaseURL(opts.BaseURL).
		SetHeader("Accept", "application/json")
	if opts.Timeout > 0 {
		rc.SetTimeout(opts.Timeout)
	} else {
		rc.SetTimeout(30 * time.Second)
	}
	if opts.BearerToken != "" {
		rc.SetAuthToken(opts.BearerToken)
	}
	if len(opts.Headers) > 0 {
		rc.SetHeaders(opts.Headers)
	}
	return &Client{rc: rc, breaker: opts.Breaker}
}

// Resty exposes the underlying client, e.g. for tests that swap the transport.
func (c *Client) Resty() *resty.Client { return c.rc }

// GetJSON issues GET path with query and decodes a 2xx body into out.
func (c *Client) GetJSON(ctx context.Context, path string, query map[string]string, out interface{}) error {
	return c.do(ctx, http.MethodGet, path, query, nil, out)
}

// PostJSON issues POST path with body encoded as JSON and decodes a 2xx body into out.
func (c *Client) PostJSON(ctx context.Context, path string, body, out interface{}) error {
	return c.do(ctx, http.MethodPost, path, nil, body, out)
}

// do maps every failure to a models ExternalService error. The StatusError
// stays reachable through errors.As.
func (c *Client) do(ctx context.Context, method, path string, query map[string]string, body, out interface{}) error {
	op := method + " " + path
	call := func() error {
		req := c.rc.R().SetContext(ctx)
		if query != nil {
			req.SetQueryParams(query)
		}
		if body != nil {
			req.SetBody(body)
		}
		if out != nil {
			req.SetResult(out).ForceContentType("application/json")
		}
		resp, err := req.Execute(method, path)
		if err != nil {
			return err
		}
		if resp.IsError() {
			return &StatusError{Code: resp.StatusCode(), Body: truncate(resp.String(), 256)}
		}
		return nil
	}

	if c.breaker == nil {
		return models.ExternalService(op, call())
	}
	var clientErr error
	err := c.breaker.Execute(func() error {
		err := call()
		var se *StatusError
		if errors.As(err, &se) && se.Code < http.StatusInternalServerError {
			// A 4xx is the caller's problem, not an upstream outage.
			clientErr = err
			return nil
		}
		return err
	})
	if err == nil {
		err = clientErr
	}
	return models.ExternalService(op, err)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
