package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/neomorfeo/provisiq/internal/domain"
)

const tracerName = "github.com/neomorfeo/provisiq/internal/adapter/otel"

// TracingLedger wraps a domain.ResourceLedger with OpenTelemetry tracing.
// Each method creates a span with semantic attributes and records errors.
type TracingLedger struct {
	next   domain.ResourceLedger
	tracer trace.Tracer
}

// Compile-time check: TracingLedger implements domain.ResourceLedger.
var _ domain.ResourceLedger = (*TracingLedger)(nil)

// NewTracingLedger creates a tracing decorator around the given ledger.
func NewTracingLedger(next domain.ResourceLedger) *TracingLedger {
	return &TracingLedger{
		next:   next,
		tracer: otel.Tracer(tracerName),
	}
}

func (l *TracingLedger) Record(ctx context.Context, r domain.Resource) error {
	ctx, span := l.tracer.Start(ctx, "ResourceLedger.Record",
		trace.WithAttributes(
			attribute.String("tenant.id", r.TenantID),
			attribute.String("resource.type", string(r.Type)),
			attribute.String("resource.external_id", r.ExternalID),
		),
	)
	defer span.End()

	err := l.next.Record(ctx, r)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (l *TracingLedger) FindActive(ctx context.Context, tenantID string, typ domain.ResourceType) (domain.Resource, error) {
	ctx, span := l.tracer.Start(ctx, "ResourceLedger.FindActive",
		trace.WithAttributes(
			attribute.String("tenant.id", tenantID),
			attribute.String("resource.type", string(typ)),
		),
	)
	defer span.End()

	r, err := l.next.FindActive(ctx, tenantID, typ)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return r, err
}

func (l *TracingLedger) SoftDelete(ctx context.Context, tenantID string, typ domain.ResourceType, externalID string) error {
	ctx, span := l.tracer.Start(ctx, "ResourceLedger.SoftDelete",
		trace.WithAttributes(
			attribute.String("tenant.id", tenantID),
			attribute.String("resource.type", string(typ)),
			attribute.String("resource.external_id", externalID),
		),
	)
	defer span.End()

	err := l.next.SoftDelete(ctx, tenantID, typ, externalID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (l *TracingLedger) ListActive(ctx context.Context, tenantID string) ([]domain.Resource, error) {
	ctx, span := l.tracer.Start(ctx, "ResourceLedger.ListActive",
		trace.WithAttributes(attribute.String("tenant.id", tenantID)),
	)
	defer span.End()

	resources, err := l.next.ListActive(ctx, tenantID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetAttributes(attribute.Int("result.count", len(resources)))
	}
	return resources, err
}

func (l *TracingLedger) MarkAttention(ctx context.Context, tenantID string, typ domain.ResourceType, externalID string) error {
	ctx, span := l.tracer.Start(ctx, "ResourceLedger.MarkAttention",
		trace.WithAttributes(
			attribute.String("tenant.id", tenantID),
			attribute.String("resource.type", string(typ)),
			attribute.String("resource.external_id", externalID),
		),
	)
	defer span.End()

	err := l.next.MarkAttention(ctx, tenantID, typ, externalID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}
