// Package adapter contains the vendor gateways and OTP stores that implement
// the interfaces defined in app.
package adapter

import "go.opentelemetry.io/otel"

var tracer = otel.Tracer("messaging/adapter")
