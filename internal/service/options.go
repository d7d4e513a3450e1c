package service

import (
	"context"

	"go.opentelemetry.io/otel/trace"

	"github.com/runebook/runebook-gateway/internal/cache"
	"github.com/runebook/runebook-gateway/internal/guide"
)

// BuildInstallHook is notified of every build installed in the cache
type BuildInstallHook func(ctx context.Context, key cache.Key, entry cache.Entry[*guide.Build]) error

// Option configures a Gateway
type Option func(*Gateway)

// WithCacheOptions applies opts to every cache owned by the gateway
func WithCacheOptions(opts ...cache.Option) Option {
	return func(g *Gateway) {
		g.cacheOpts = append(g.cacheOpts, opts...)
	}
}

// WithBuildInstallHook sets the hook notified after each build install
func WithBuildInstallHook(hook BuildInstallHook) Option {
	return func(g *Gateway) {
		g.onBuildInstall = hook
	}
}

// WithTracer enables tracing of facade operations
func WithTracer(tracer trace.Tracer) Option {
	return func(g *Gateway) {
		g.tracer = tracer
	}
}
