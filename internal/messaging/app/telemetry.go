package app

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/aelexs/messaging-gateway/internal/domain"
)

var tracer = otel.Tracer("messaging/app")

var (
	sendsTotal            metric.Int64Counter
	otpIssuedTotal        metric.Int64Counter
	otpVerificationsTotal metric.Int64Counter
	unsupportedOpsTotal   metric.Int64Counter
)

func init() {
	m := otel.Meter("messaging/app")

	sendsTotal, _ = m.Int64Counter("messaging_sends_total",
		metric.WithDescription("Total gateway operations by result code"))
	otpIssuedTotal, _ = m.Int64Counter("otp_issued_total",
		metric.WithDescription("Total OTP codes issued"))
	otpVerificationsTotal, _ = m.Int64Counter("otp_verifications_total",
		metric.WithDescription("Total OTP verification attempts"))
	unsupportedOpsTotal, _ = m.Int64Counter("messaging_unsupported_operations_total",
		metric.WithDescription("Total calls rejected for a missing gateway capability"))
}

// recordSend counts one gateway operation and annotates the span.
func recordSend(ctx context.Context, span trace.Span, gateway, op string, resp domain.Response, err error) {
	code := resp.Code()
	if err != nil {
		code = domain.CodeOf(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.SetAttributes(attribute.Int("messaging.response_code", int(code)))
	sendsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("gateway", gateway),
		attribute.String("operation", op),
		attribute.String("code", code.String()),
	))
}
