package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	auditv1 "k8s.io/apiserver/pkg/apis/audit/v1"
	"k8s.io/klog/v2"

	"go.miloapis.com/auditdashboard/internal/lifecycle"
	"go.miloapis.com/auditdashboard/internal/metrics"
)

var tracer = otel.Tracer("audit-dashboard-storage")

// errUnavailable is the only detail returned to callers when a query fails.
var errUnavailable = errors.New("unable to retrieve audit logs. Try again or contact support if the problem persists")

// rowIterator is satisfied by both clickhouse driver.Rows and *sql.Rows.
type rowIterator interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close() error
}

type queryFunc func(ctx context.Context, statement string, args ...any) (rowIterator, error)

type countFunc func(ctx context.Context, statement string, args ...any) (int, error)

// queryTarget identifies the backend in spans, logs and metrics.
type queryTarget struct {
	backend  string
	database string
}

func (t queryTarget) startSpan(ctx context.Context, operation, statement string) (context.Context, trace.Span, string) {
	ctx, span := tracer.Start(ctx, t.backend+".query",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", t.backend),
			attribute.String("db.name", t.database),
			attribute.String("db.operation", "SELECT"),
			attribute.String("query.operation", operation),
			attribute.String("db.statement", truncateStatement(statement)),
		),
	)

	// Add trace context as SQL comment for correlation with server-side query logs
	spanContext := span.SpanContext()
	if spanContext.IsValid() {
		traceparent := fmt.Sprintf("00-%s-%s-%02x",
			spanContext.TraceID().String(),
			spanContext.SpanID().String(),
			spanContext.TraceFlags())
		statement = fmt.Sprintf("/* traceparent: %s */ %s", traceparent, statement)
	}
	return ctx, span, statement
}

// queryEvents runs statement and decodes the event_json column of every row.
// Rows that fail to decode are logged and skipped.
func (t queryTarget) queryEvents(ctx context.Context, operation string, query queryFunc, statement string, args []any) ([]auditv1.Event, error) {
	ctx, span, statement := t.startSpan(ctx, operation, statement)
	defer span.End()

	traceID := span.SpanContext().TraceID().String()
	spanID := span.SpanContext().SpanID().String()

	klog.V(3).InfoS("Executing audit event query",
		"backend", t.backend,
		"operation", operation,
		"traceID", traceID,
		"spanID", spanID,
		"argsCount", len(args),
		"query", truncateStatement(statement),
	)

	startTime := time.Now()
	rows, err := query(ctx, statement, args...)
	if err != nil {
		metrics.StorageQueryDuration.WithLabelValues(t.backend, operation).Observe(time.Since(startTime).Seconds())
		return nil, t.failed(span, operation, "query execution failed", err, traceID, spanID)
	}
	defer rows.Close()

	events := []auditv1.Event{}
	var unmarshalErrors int
	for rows.Next() {
		var eventJSON string
		if err := rows.Scan(&eventJSON); err != nil {
			return nil, t.failed(span, operation, "failed to scan row", err, traceID, spanID)
		}

		var event auditv1.Event
		if err := json.Unmarshal([]byte(eventJSON), &event); err != nil {
			unmarshalErrors++
			klog.ErrorS(err, "Failed to unmarshal audit event",
				"traceID", traceID,
				"spanID", spanID,
			)
			continue
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, t.failed(span, operation, "row iteration failed", err, traceID, spanID)
	}

	duration := time.Since(startTime).Seconds()
	metrics.StorageQueryDuration.WithLabelValues(t.backend, operation).Observe(duration)
	metrics.StorageQueryTotal.WithLabelValues(t.backend, "success").Inc()

	if unmarshalErrors > 0 {
		klog.InfoS("Query completed with unmarshal errors",
			"traceID", traceID,
			"spanID", spanID,
			"unmarshalErrors", unmarshalErrors,
			"successfulEvents", len(events),
		)
	}

	span.SetAttributes(
		attribute.Int("db.rows_returned", len(events)),
		attribute.Float64("db.query_duration_seconds", duration),
	)
	span.SetStatus(codes.Ok, "query successful")

	klog.V(2).InfoS("Audit event query completed",
		"backend", t.backend,
		"operation", operation,
		"traceID", traceID,
		"spanID", spanID,
		"rowsReturned", len(events),
		"duration", duration,
	)

	return events, nil
}

// count runs a single-value count statement.
func (t queryTarget) count(ctx context.Context, operation string, count countFunc, statement string, args []any) (int, error) {
	ctx, span, statement := t.startSpan(ctx, operation, statement)
	defer span.End()

	startTime := time.Now()
	total, err := count(ctx, statement, args...)
	metrics.StorageQueryDuration.WithLabelValues(t.backend, operation).Observe(time.Since(startTime).Seconds())
	if err != nil {
		return 0, t.failed(span, operation, "count failed", err,
			span.SpanContext().TraceID().String(), span.SpanContext().SpanID().String())
	}

	metrics.StorageQueryTotal.WithLabelValues(t.backend, "success").Inc()
	span.SetAttributes(attribute.Int("query.total", total))
	span.SetStatus(codes.Ok, "count successful")
	return total, nil
}

// failed records a query failure and returns the error shown to callers.
func (t queryTarget) failed(span trace.Span, operation, description string, err error, traceID, spanID string) error {
	errorType := classifyError(err)
	metrics.StorageQueryTotal.WithLabelValues(t.backend, "error").Inc()
	metrics.StorageQueryErrors.WithLabelValues(t.backend, errorType).Inc()

	span.RecordError(err)
	span.SetStatus(codes.Error, description)
	span.SetAttributes(attribute.String("error.type", errorType))

	klog.ErrorS(err, "Audit event query failed",
		"backend", t.backend,
		"operation", operation,
		"traceID", traceID,
		"spanID", spanID,
		"errorType", errorType,
		"reason", description,
	)

	return lifecycle.NewStorageError(operation, errUnavailable)
}

// recordBuildError counts a query that could not be built, usually because of an
// invalid filter expression.
func (t queryTarget) recordBuildError() {
	metrics.StorageQueryErrors.WithLabelValues(t.backend, "build_query").Inc()
}
