// Package gateway is the client for the remote spreadsheet-backed action
// endpoint: one URL, an "action" query parameter, and a JSON reply carrying
// at least a "status" field.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

const (
	statusSuccess = "success"

	// maxBodyBytes bounds gateway replies and downloaded lists.
	maxBodyBytes = 16 << 20
)

// RetryPolicy bounds the token validation loop.
type RetryPolicy struct {
	MaxAttempts    int
	AttemptTimeout time.Duration
	BackoffUnit    time.Duration
}

// DefaultRetryPolicy is three attempts of 8s each with 1s, 2s backoff.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, AttemptTimeout: 8 * time.Second, BackoffUnit: time.Second}
}

// Options configures a Client.
type Options struct {
	OrdersURL  string
	AdminURL   string // defaults to OrdersURL
	Timeout    time.Duration
	RateLimit  float64 // requests per second, <= 0 disables throttling
	Burst      int
	Retry      RetryPolicy
	HTTPClient *http.Client
	Registerer prometheus.Registerer
}

// Client calls gateway actions. It is safe for concurrent use.
type Client struct {
	ordersURL string
	adminURL  string
	http      *http.Client
	limiter   *rate.Limiter
	retry     RetryPolicy
	maxBody   int64
	metrics   *metrics
	tracer    trace.Tracer
	logger    *slog.Logger
}

// envelope is the part every reply shares.
type envelope struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func New(opts Options, logger *slog.Logger) *Client {
	if opts.AdminURL == "" {
		opts.AdminURL = opts.OrdersURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Retry.MaxAttempts < 1 {
		opts.Retry = DefaultRetryPolicy()
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.Timeout}
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if opts.RateLimit > 0 {
		burst := opts.Burst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}

	return &Client{
		ordersURL: opts.OrdersURL,
		adminURL:  opts.AdminURL,
		http:      httpClient,
		limiter:   limiter,
		retry:     opts.Retry,
		maxBody:   maxBodyBytes,
		metrics:   newMetrics(opts.Registerer),
		tracer:    otel.Tracer("github.com/smartdata/pedidos/internal/domain/gateway"),
		logger:    logger,
	}
}

// Ping pre-warms the backend. Errors are logged, never returned.
func (c *Client) Ping(ctx context.Context) {
	if _, _, err := c.get(ctx, c.ordersURL, "ping", nil); err != nil {
		c.logger.Debug("gateway ping failed", slog.Any("error", err))
	}
}

// FetchDocument downloads a list document (CSV or workbook) with a plain GET.
func (c *Client) FetchDocument(ctx context.Context, docURL string) ([]byte, error) {
	ctx, span := c.tracer.Start(ctx, "gateway.FetchDocument",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("http.url", docURL)),
	)
	defer span.End()

	start := time.Now()
	body, err := c.send(ctx, "document", docURL)
	c.metrics.observe("document", outcome(err), time.Since(start))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("document.bytes", len(body)))
	return body, nil
}

// call runs an action and requires a "success" status. On success the full
// body is decoded into out when out is non-nil.
func (c *Client) call(ctx context.Context, endpoint, action string, params url.Values, out any) error {
	env, body, err := c.get(ctx, endpoint, action, params)
	if err != nil {
		return err
	}
	if env.Status != statusSuccess {
		return &StatusError{Action: action, Status: env.Status, Message: env.Message}
	}
	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrMalformedResponse, action, err)
		}
	}
	return nil
}

// get performs one action request and decodes the envelope.
func (c *Client) get(ctx context.Context, endpoint, action string, params url.Values) (envelope, []byte, error) {
	ctx, span := c.tracer.Start(ctx, "gateway."+action,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("gateway.action", action)),
	)
	defer span.End()

	start := time.Now()
	env, body, err := c.roundTrip(ctx, endpoint, action, params)
	c.metrics.observe(action, outcome(err), time.Since(start))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return env, nil, err
	}
	span.SetAttributes(attribute.String("gateway.status", env.Status))
	return env, body, nil
}

func (c *Client) roundTrip(ctx context.Context, endpoint, action string, params url.Values) (envelope, []byte, error) {
	u, err := actionURL(endpoint, action, params)
	if err != nil {
		return envelope{}, nil, err
	}

	body, err := c.send(ctx, action, u)
	if err != nil {
		return envelope{}, nil, err
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return envelope{}, nil, fmt.Errorf("%w: %s: %v", ErrMalformedResponse, action, err)
	}
	return env, body, nil
}

// send issues a throttled GET and returns the body of a 2xx response.
func (c *Client) send(ctx context.Context, action, u string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &transportError{err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &transportError{err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &HTTPError{Action: action, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		return nil, &transportError{err: err}
	}
	if int64(len(body)) > c.maxBody {
		return nil, fmt.Errorf("%w: %s reply over %d bytes", ErrResponseTooLarge, action, c.maxBody)
	}
	return body, nil
}

func actionURL(endpoint, action string, params url.Values) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid gateway url: %w", err)
	}
	q := u.Query()
	q.Set("action", action)
	for k, vs := range params {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
