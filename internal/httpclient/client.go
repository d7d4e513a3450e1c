// Package httpclient provides the bounded-timeout fetch capability shared by all
// upstream sources and the Data Dragon mirror.
package httpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/runebook/runebook-gateway/internal/otel"
)

const (
	// DefaultTimeout is the default read and write timeout for HTTP requests
	DefaultTimeout = 10 * time.Second

	// MaxResponseSize is the maximum allowed response size (32MB)
	MaxResponseSize = 32 * 1024 * 1024

	// UserAgent is the user agent string for HTTP requests
	UserAgent = "runebook-gateway/1.0"

	// AcceptHeader covers both the JSON APIs and the HTML guide pages we scrape
	AcceptHeader = "application/json, text/html;q=0.9, */*;q=0.8"
)

//go:generate mockgen -destination=mocks/mock_client.go -package=mocks -source=client.go Client

// Client is an interface for HTTP operations
type Client interface {
	// Get performs an HTTP GET request and returns the response body.
	// It never retries; retry policy belongs to the caller.
	Get(ctx context.Context, url string) ([]byte, error)
	// GetWithAccept is Get with a caller-chosen Accept header.
	GetWithAccept(ctx context.Context, url, accept string) ([]byte, error)
}

// DefaultClient is the default HTTP client implementation
type DefaultClient struct {
	client       *http.Client
	readTimeout  time.Duration
	writeTimeout time.Duration
	tracer       trace.Tracer
}

var _ Client = (*DefaultClient)(nil)

// Option configures a DefaultClient
type Option func(*DefaultClient)

// WithReadTimeout bounds how long the client waits for response headers after the request was written
func WithReadTimeout(d time.Duration) Option {
	return func(c *DefaultClient) {
		if d > 0 {
			c.readTimeout = d
		}
	}
}

// WithWriteTimeout bounds dialing, the TLS handshake and writing the request
func WithWriteTimeout(d time.Duration) Option {
	return func(c *DefaultClient) {
		if d > 0 {
			c.writeTimeout = d
		}
	}
}

// WithTracer records one client span per request
func WithTracer(tracer trace.Tracer) Option {
	return func(c *DefaultClient) {
		c.tracer = tracer
	}
}

// NewDefaultClient creates a new default HTTP client with the specified timeout
// used for both reads and writes. If timeout is 0, uses DefaultTimeout.
func NewDefaultClient(timeout time.Duration) Client {
	return NewClient(WithReadTimeout(timeout), WithWriteTimeout(timeout))
}

// NewClient creates a new HTTP client configured with the given options
func NewClient(opts ...Option) *DefaultClient {
	c := &DefaultClient{
		readTimeout:  DefaultTimeout,
		writeTimeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}

	dialer := &net.Dialer{
		Timeout:   c.writeTimeout,
		KeepAlive: 30 * time.Second,
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = dialer.DialContext
	transport.TLSHandshakeTimeout = c.writeTimeout
	transport.ResponseHeaderTimeout = c.readTimeout
	transport.ExpectContinueTimeout = time.Second

	c.client = &http.Client{
		Transport: transport,
		// Headers and body together must arrive within one read window after the write window.
		Timeout: c.readTimeout + c.writeTimeout,
	}
	return c
}

// Get performs an HTTP GET request
func (c *DefaultClient) Get(ctx context.Context, url string) ([]byte, error) {
	return c.GetWithAccept(ctx, url, AcceptHeader)
}

// GetWithAccept performs an HTTP GET request with the given Accept header
func (c *DefaultClient) GetWithAccept(ctx context.Context, url, accept string) ([]byte, error) {
	if accept == "" {
		accept = AcceptHeader
	}
	ctx, span := otel.StartSpan(ctx, c.tracer, "httpclient.Get",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("url.full", url)),
	)
	defer span.End()

	body, err := c.get(ctx, url, accept)
	otel.RecordError(span, err)
	return body, err
}

func (c *DefaultClient) get(ctx context.Context, url, accept string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("Accept", accept)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", classify(ctx, err))
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, NewHTTPError(resp.StatusCode, url, resp.Status)
	}

	if resp.ContentLength > MaxResponseSize {
		return nil, fmt.Errorf("response size %d bytes exceeds maximum allowed size of %d bytes",
			resp.ContentLength, MaxResponseSize)
	}

	// +1 to detect if limit exceeded
	limitedReader := io.LimitReader(resp.Body, MaxResponseSize+1)
	body, err := io.ReadAll(limitedReader)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", classify(ctx, err))
	}

	if int64(len(body)) > MaxResponseSize {
		return nil, fmt.Errorf("response size exceeds maximum allowed size of %d bytes", MaxResponseSize)
	}

	return body, nil
}

// classify maps a transport failure onto ErrTimeout or ErrConnectionFailed while
// keeping the original error in the chain.
func classify(ctx context.Context, err error) error {
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		return err
	}

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
}
