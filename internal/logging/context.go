package logging

import (
	"context"

	"go.opentelemetry.io/otel/trace"
)

// extractContextFields pulls trace_id and span_id from the OpenTelemetry span
// carried by ctx. Returns nil when ctx has no valid span.
func extractContextFields(ctx context.Context) map[string]interface{} {
	if ctx == nil {
		return nil
	}

	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return nil
	}

	return map[string]interface{}{
		"trace_id": sc.TraceID().String(),
		"span_id":  sc.SpanID().String(),
	}
}
