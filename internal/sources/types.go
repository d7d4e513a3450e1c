package sources

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/runebook/runebook-gateway/internal/guide"
	"github.com/runebook/runebook-gateway/internal/httpclient"
	"github.com/runebook/runebook-gateway/internal/otel"
	"github.com/runebook/runebook-gateway/internal/telemetry"
)

//go:generate mockgen -destination=mocks/mock_build_source.go -package=mocks -source=types.go BuildSource

// BuildSource fetches and normalizes a champion's current build from one provider
type BuildSource interface {
	// ID returns the source id the adapter is registered under
	ID() string

	// FetchBuild returns the provider's current build for champion. Errors wrap
	// guide.ErrNotFound, guide.ErrMalformed, or a transport error from httpclient.
	FetchBuild(ctx context.Context, champion string) (*guide.Build, error)
}

// PatchFunc reports the live patch version
type PatchFunc func(ctx context.Context) (string, error)

// Option configures an adapter
type Option func(*adapter)

// WithRateLimit paces outbound requests to rps with the given burst. rps <= 0 disables pacing.
func WithRateLimit(rps float64, burst int) Option {
	return func(a *adapter) {
		if rps <= 0 {
			a.limiter = nil
			return
		}
		if burst <= 0 {
			burst = 1
		}
		a.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithPatchFunc sets how the adapter learns the live patch
func WithPatchFunc(fn PatchFunc) Option {
	return func(a *adapter) {
		a.patch = fn
	}
}

// WithTracer enables tracing of source fetches
func WithTracer(tracer trace.Tracer) Option {
	return func(a *adapter) {
		a.tracer = tracer
	}
}

// WithMetrics sets the source metrics
func WithMetrics(m *telemetry.SourceMetrics) Option {
	return func(a *adapter) {
		a.metrics = m
	}
}

// adapter holds what every provider adapter shares
type adapter struct {
	id       string
	endpoint string
	client   httpclient.Client
	limiter  *rate.Limiter
	patch    PatchFunc
	tracer   trace.Tracer
	metrics  *telemetry.SourceMetrics
}

func newAdapter(id, endpoint string, client httpclient.Client, opts ...Option) adapter {
	a := adapter{
		id:       id,
		endpoint: endpoint,
		client:   client,
	}
	for _, opt := range opts {
		opt(&a)
	}
	return a
}

// ID returns the source id
func (a *adapter) ID() string {
	return a.id
}

// fetch waits for the limiter and performs the GET, mapping a provider 404 onto guide.ErrNotFound
func (a *adapter) fetch(ctx context.Context, champion, url, accept string) ([]byte, error) {
	if a.limiter != nil {
		if err := a.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("failed to wait for %s rate limiter: %w", a.id, err)
		}
	}

	body, err := a.client.GetWithAccept(ctx, url, accept)
	if err != nil {
		if httpclient.StatusCode(err) == http.StatusNotFound {
			return nil, fmt.Errorf("%w: %s has no build for %s: %w", guide.ErrNotFound, a.id, champion, err)
		}
		return nil, fmt.Errorf("failed to fetch %s build for %s: %w", a.id, champion, err)
	}
	return body, nil
}

// livePatch returns the live patch, or "" when it cannot be obtained
func (a *adapter) livePatch(ctx context.Context) string {
	if a.patch == nil {
		return ""
	}
	patch, err := a.patch(ctx)
	if err != nil {
		slog.DebugContext(ctx, "Patch version unavailable for source request", "source", a.id, "error", err)
		return ""
	}
	return patch
}

// observe wraps one FetchBuild call with a span and a duration sample
func (a *adapter) observe(
	ctx context.Context,
	champion string,
	fn func(context.Context) (*guide.Build, error),
) (*guide.Build, error) {
	ctx, span := otel.StartSpan(ctx, a.tracer, "sources.FetchBuild",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(otel.BuildAttributes(a.id, champion)...),
	)
	defer span.End()

	start := time.Now()
	build, err := fn(ctx)
	a.metrics.RecordFetch(ctx, a.id, time.Since(start), err == nil)

	// A provider without data for a champion is an answer, not a failure of the span
	if err != nil && !errors.Is(err, guide.ErrNotFound) {
		otel.RecordError(span, err)
	}
	if err != nil {
		return nil, err
	}

	build.Source = a.id
	if err := build.Validate(); err != nil {
		otel.RecordError(span, err)
		return nil, fmt.Errorf("%s build for %s: %w", a.id, champion, err)
	}
	return build, nil
}
