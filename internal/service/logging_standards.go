package service

// Logging Standards for fondarelay
//
// Standard field names, log levels and message patterns used across the
// relay so that log lines can be filtered per tenant and per direction.

// Standard Field Names
const (
	// Core identifiers
	LogFieldTenant    = "tenant"
	LogFieldMessageID = "message_id"
	LogFieldRequestID = "request_id"
	LogFieldTraceID   = "trace_id"
	LogFieldRunID     = "run_id"

	// Service and operation fields
	LogFieldService   = "service"
	LogFieldOperation = "operation"
	LogFieldComponent = "component"

	// Relay decision fields
	LogFieldAction      = "action"
	LogFieldDecision    = "decision"
	LogFieldDirection   = "direction" // "toward_server" or "toward_device"
	LogFieldPhoneNumber = "phone_number"
	LogFieldDelivery    = "delivery"
	LogFieldStatus      = "status"

	// Performance and metrics
	LogFieldDuration = "duration_ms"
	LogFieldCount    = "count"

	// Network and external services
	LogFieldURL        = "url"
	LogFieldMethod     = "method"
	LogFieldStatusCode = "status_code"
	LogFieldRemoteIP   = "remote_ip"
	LogFieldUserAgent  = "user_agent"
	LogFieldSize       = "size_bytes"

	// Error and debugging
	LogFieldErrorCode = "error_code"
	LogFieldAttempt   = "attempt"
)

// Log Level Usage Guidelines
//
// DEBUG: Per-request detail: drained item counts, merge fallbacks, raw
// reply parsing problems.
//
// INFO: Lifecycle and state changes: startup, sweep runs, connectivity
// transitions, messages queued.
//
// WARN: Absorbed failures: transport errors toward a tenant server or an
// upstream relay, probes that fail, secret mismatches.
//
// ERROR: Failures that are surfaced to the caller: queue persistence and
// database errors.

// Standard Log Message Patterns
//
// Starting operations: "Starting [operation]"
// Completed operations: "Completed [operation]"
// Failed operations: "Failed to [operation]"
// Skipping operations: "Skipping [operation]: [reason]"

// Example Usage:
//
// logger.WithFields(logrus.Fields{
//     LogFieldTenant:    tenant.Slug,
//     LogFieldAction:    ev.Action,
//     LogFieldDecision:  decision,
// }).Info("Relayed device event")
