// Package graphhopper implements the route provider and geocoder ports on
// top of the GraphHopper Directions API.
package graphhopper

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
	"golang.org/x/time/rate"
)

// DefaultBaseURL is the public GraphHopper API.
const DefaultBaseURL = "https://graphhopper.com/api/1"

// Config configures the API client.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
	// RatePerSecond limits outgoing calls; zero means unlimited.
	RatePerSecond float64
	Burst         int
}

// Client talks to the GraphHopper API. It is safe for concurrent use.
type Client struct {
	baseURL string
	apiKey  string
	timeout time.Duration
	http    *fasthttp.Client
	limiter *rate.Limiter
}

// New creates a new Client.
func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		timeout: cfg.Timeout,
		http: &fasthttp.Client{
			Name:                "safewalk",
			MaxConnsPerHost:     64,
			ReadTimeout:         cfg.Timeout,
			WriteTimeout:        cfg.Timeout,
			MaxIdleConnDuration: 30 * time.Second,
		},
		limiter: rate.NewLimiter(limit, cfg.Burst),
	}
}

type apiError struct {
	Message string `json:"message"`
}

// do sends one request and decodes a JSON response into out. The deadline is
// the earlier of the context deadline and the client timeout.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body []byte, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit: %w", err)
	}

	if query == nil {
		query = url.Values{}
	}
	if c.apiKey != "" {
		query.Set("key", c.apiKey)
	}

	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.baseURL + path + "?" + query.Encode())
	req.Header.SetMethod(method)
	req.Header.Set(fasthttp.HeaderAccept, "application/json")
	if body != nil {
		req.Header.SetContentType("application/json")
		req.SetBody(body)
	}

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	start := time.Now()
	if err := c.http.DoDeadline(req, resp, deadline); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("graphhopper %s: %w", path, ctxErr)
		}
		if errors.Is(err, fasthttp.ErrTimeout) {
			return fmt.Errorf("graphhopper %s: %w", path, context.DeadlineExceeded)
		}
		return fmt.Errorf("graphhopper %s: %w", path, err)
	}

	status := resp.StatusCode()
	slog.DebugContext(ctx, "graphhopper call", "path", path, "status", status, "latency", time.Since(start))

	if status != fasthttp.StatusOK {
		var apiErr apiError
		_ = json.Unmarshal(resp.Body(), &apiErr)
		if apiErr.Message == "" {
			apiErr.Message = fasthttp.StatusMessage(status)
		}
		return fmt.Errorf("graphhopper %s: status %d: %s", path, status, apiErr.Message)
	}

	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("graphhopper %s: decode response: %w", path, err)
	}
	return nil
}
