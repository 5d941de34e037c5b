package service

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	dErrors "appeals/pkg/domain-errors"
	audit "appeals/pkg/platform/audit"
	"appeals/pkg/requestcontext"
)

// emit records compliance events. Call it last inside the transaction so the
// events commit with the change they describe.
func (s *Service) emit(ctx context.Context, events ...audit.ComplianceEvent) error {
	if s.auditor == nil {
		return nil
	}
	actor := requestcontext.MemberID(ctx)
	now := requestcontext.Now(ctx)
	for _, event := range events {
		if event.ActorID == "" && !actor.IsNil() {
			event.ActorID = actor.String()
		}
		if event.Timestamp.IsZero() {
			event.Timestamp = now
		}
		if err := s.auditor.Emit(ctx, event); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record audit event")
		}
	}
	return nil
}

func (s *Service) logEvent(ctx context.Context, event audit.AuditEvent, attributes ...any) {
	if requestID := requestcontext.RequestID(ctx); requestID != "" {
		attributes = append(attributes, "request_id", requestID)
	}
	args := append(attributes, "event", string(event), "log_type", "audit")
	s.logger.InfoContext(ctx, string(event), args...)
}

func (s *Service) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "judgment."+name, trace.WithAttributes(attrs...))
}

// finishSpan records err on span and ends it.
func finishSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))
	}
	span.End()
}

// runInTx wraps the store transaction and counts rollbacks per operation.
func (s *Service) runInTx(ctx context.Context, operation string, fn func(txCtx context.Context) error) error {
	err := s.tx.RunInTx(ctx, fn)
	if err != nil && s.metrics != nil {
		s.metrics.IncrementTransactionFailure(operation)
	}
	return err
}
