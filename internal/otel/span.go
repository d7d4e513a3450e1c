// Package otel provides OpenTelemetry span helpers shared by the gateway packages.
package otel

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys used on gateway spans.
const (
	AttrSource       = attribute.Key("runebook.source")
	AttrChampion     = attribute.Key("runebook.champion")
	AttrCacheKey     = attribute.Key("runebook.cache.key")
	AttrCacheStale   = attribute.Key("runebook.cache.stale")
	AttrPatchVersion = attribute.Key("runebook.patch")
	AttrCatalogKind  = attribute.Key("runebook.catalog.kind")
)

// BuildAttributes returns the attributes identifying a (source, champion) lookup.
func BuildAttributes(source, champion string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrSource.String(source),
		AttrChampion.String(champion),
	}
}

// StartSpan starts a new span if the tracer is non-nil, otherwise returns the span already in ctx.
func StartSpan(
	ctx context.Context,
	tracer trace.Tracer,
	name string,
	opts ...trace.SpanStartOption,
) (context.Context, trace.Span) {
	if tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return tracer.Start(ctx, name, opts...)
}

// RecordError records an error on a span and sets the span status to error.
// It safely handles nil spans and nil errors.
// The status description stays generic so upstream URLs and connection strings
// only show up in the exception event.
func RecordError(span trace.Span, err error) {
	if err != nil && span != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "operation failed")
	}
}
