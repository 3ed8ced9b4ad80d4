// Copyright (C) 2025 Forkbomb B.V.
// License: AGPL-3.0-only

package launch

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("droidrun")

func spanContext(env Env) context.Context {
	return env.context()
}

func startSpan(env Env, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if env.CorrelationID != "" {
		attrs = append(attrs, attribute.String("correlation_id", env.CorrelationID))
	}
	ctx := spanContext(env)
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// recordSpanError marks span as failed. A *StageError also tags the stage
// so failed runs can be grouped by where they stopped.
func recordSpanError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	var stageErr *StageError
	if errors.As(err, &stageErr) {
		span.SetAttributes(attribute.String("failed_stage", string(stageErr.Stage)))
	}
}
