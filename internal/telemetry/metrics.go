// Package telemetry provides OpenTelemetry instrumentation for the runebook gateway.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	// CacheMetricsMeterName is the name used for the versioned cache meter
	CacheMetricsMeterName = "github.com/runebook/runebook-gateway/cache"

	// SourceMetricsMeterName is the name used for the guide source meter
	SourceMetricsMeterName = "github.com/runebook/runebook-gateway/sources"

	// PatchMetricsMeterName is the name used for the patch watcher meter
	PatchMetricsMeterName = "github.com/runebook/runebook-gateway/patch"
)

// Refresh outcomes recorded by CacheMetrics
const (
	RefreshSuccess = "success"
	RefreshFailure = "failure"
	RefreshPanic   = "panic"
)

// CacheMetrics holds the OpenTelemetry instruments for the versioned cache
type CacheMetrics struct {
	lookups         metric.Int64Counter
	refreshes       metric.Int64Counter
	refreshDuration metric.Float64Histogram
	staleServed     metric.Int64Counter
	evictions       metric.Int64Counter
}

// NewCacheMetrics creates a new CacheMetrics instance with the given meter provider.
// If provider is nil, it returns nil (no-op metrics).
func NewCacheMetrics(provider metric.MeterProvider) (*CacheMetrics, error) {
	if provider == nil {
		return nil, nil
	}

	meter := provider.Meter(CacheMetricsMeterName)

	lookups, err := meter.Int64Counter(
		"runebook_cache_lookups_total",
		metric.WithDescription("Cache lookups by kind and result (hit or miss)"),
		metric.WithUnit("{lookup}"),
	)
	if err != nil {
		return nil, err
	}

	refreshes, err := meter.Int64Counter(
		"runebook_cache_refreshes_total",
		metric.WithDescription("Upstream refreshes by kind and outcome"),
		metric.WithUnit("{refresh}"),
	)
	if err != nil {
		return nil, err
	}

	refreshDuration, err := meter.Float64Histogram(
		"runebook_cache_refresh_duration_seconds",
		metric.WithDescription("Duration of upstream refreshes in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20),
	)
	if err != nil {
		return nil, err
	}

	staleServed, err := meter.Int64Counter(
		"runebook_cache_stale_served_total",
		metric.WithDescription("Responses served from a stale entry after a failed refresh"),
		metric.WithUnit("{response}"),
	)
	if err != nil {
		return nil, err
	}

	evictions, err := meter.Int64Counter(
		"runebook_cache_evictions_total",
		metric.WithDescription("Entries evicted by the LRU size bound"),
		metric.WithUnit("{entry}"),
	)
	if err != nil {
		return nil, err
	}

	return &CacheMetrics{
		lookups:         lookups,
		refreshes:       refreshes,
		refreshDuration: refreshDuration,
		staleServed:     staleServed,
		evictions:       evictions,
	}, nil
}

// RecordLookup records a cache lookup for an entry kind
func (m *CacheMetrics) RecordLookup(ctx context.Context, kind string, hit bool) {
	if m == nil || m.lookups == nil {
		return
	}

	result := "miss"
	if hit {
		result = "hit"
	}
	m.lookups.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("result", result),
	))
}

// RecordRefresh records one upstream refresh and its duration
func (m *CacheMetrics) RecordRefresh(ctx context.Context, kind, outcome string, duration time.Duration) {
	if m == nil || m.refreshes == nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("outcome", outcome),
	)
	m.refreshes.Add(ctx, 1, attrs)
	m.refreshDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordStaleServed records a stale fallback response
func (m *CacheMetrics) RecordStaleServed(ctx context.Context, kind string) {
	if m == nil || m.staleServed == nil {
		return
	}
	m.staleServed.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// RecordEviction records an LRU eviction
func (m *CacheMetrics) RecordEviction(ctx context.Context, kind string) {
	if m == nil || m.evictions == nil {
		return
	}
	m.evictions.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// SourceMetrics holds the OpenTelemetry instruments for guide source fetches
type SourceMetrics struct {
	fetchDuration metric.Float64Histogram
}

// NewSourceMetrics creates a new SourceMetrics instance with the given meter provider.
// If provider is nil, it returns nil (no-op metrics).
func NewSourceMetrics(provider metric.MeterProvider) (*SourceMetrics, error) {
	if provider == nil {
		return nil, nil
	}

	meter := provider.Meter(SourceMetricsMeterName)

	fetchDuration, err := meter.Float64Histogram(
		"runebook_source_fetch_duration_seconds",
		metric.WithDescription("Duration of guide source fetches in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20),
	)
	if err != nil {
		return nil, err
	}

	return &SourceMetrics{
		fetchDuration: fetchDuration,
	}, nil
}

// RecordFetch records the duration of one source fetch
func (m *SourceMetrics) RecordFetch(ctx context.Context, source string, duration time.Duration, success bool) {
	if m == nil || m.fetchDuration == nil {
		return
	}

	m.fetchDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("source", source),
		attribute.Bool("success", success),
	))
}

// PatchMetrics holds the OpenTelemetry instruments for the patch watcher
type PatchMetrics struct {
	checks   metric.Int64Counter
	advances metric.Int64Counter
}

// NewPatchMetrics creates a new PatchMetrics instance with the given meter provider.
// If provider is nil, it returns nil (no-op metrics).
func NewPatchMetrics(provider metric.MeterProvider) (*PatchMetrics, error) {
	if provider == nil {
		return nil, nil
	}

	meter := provider.Meter(PatchMetricsMeterName)

	checks, err := meter.Int64Counter(
		"runebook_patch_checks_total",
		metric.WithDescription("Patch version checks by outcome"),
		metric.WithUnit("{check}"),
	)
	if err != nil {
		return nil, err
	}

	advances, err := meter.Int64Counter(
		"runebook_patch_advances_total",
		metric.WithDescription("Observed patch version advances"),
		metric.WithUnit("{advance}"),
	)
	if err != nil {
		return nil, err
	}

	return &PatchMetrics{
		checks:   checks,
		advances: advances,
	}, nil
}

// RecordCheck records one patch version check
func (m *PatchMetrics) RecordCheck(ctx context.Context, success bool) {
	if m == nil || m.checks == nil {
		return
	}

	outcome := RefreshSuccess
	if !success {
		outcome = RefreshFailure
	}
	m.checks.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordAdvance records an observed patch advance
func (m *PatchMetrics) RecordAdvance(ctx context.Context) {
	if m == nil || m.advances == nil {
		return
	}
	m.advances.Add(ctx, 1)
}
