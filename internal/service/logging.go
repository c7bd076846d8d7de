package service

import (
	"context"

	"github.com/sirupsen/logrus"

	"fondarelay/internal/privacy"
	"fondarelay/internal/tracing"
)

// ContextKey is a package-local type to prevent context key collisions
type ContextKey string

// VerboseContextKey marks a context whose logs may carry unmasked phone numbers.
const VerboseContextKey ContextKey = "verbose"

// IsVerboseLogging checks if verbose logging is enabled from context
func IsVerboseLogging(ctx context.Context) bool {
	if verbose, ok := ctx.Value(VerboseContextKey).(bool); ok {
		return verbose
	}
	return false
}

// LogPhone masks a phone number unless verbose logging is on.
func LogPhone(ctx context.Context, phone string) string {
	if IsVerboseLogging(ctx) {
		return phone
	}
	return privacy.MaskPhoneNumber(phone)
}

// LogWithContext returns an entry carrying the request and tenant ids found in ctx.
func LogWithContext(ctx context.Context, logger *logrus.Logger) *logrus.Entry {
	fields := logrus.Fields{}
	if requestID := tracing.GetRequestID(ctx); requestID != "" {
		fields[LogFieldRequestID] = requestID
	}
	if tenant := tracing.GetTenant(ctx); tenant != "" {
		fields[LogFieldTenant] = tenant
	}
	return logger.WithFields(fields)
}
