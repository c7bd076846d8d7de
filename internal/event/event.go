// Package event turns raw device webhook payloads into typed events and
// builds the JSON documents returned to devices.
package event

import (
	"strconv"
	"strings"
	"time"
)

// Actions sent by devices in the "action" field.
const (
	ActionTest         = "test"
	ActionOutgoing     = "outgoing"
	ActionIncoming     = "incoming"
	ActionSendStatus   = "send_status"
	ActionDeviceStatus = "device_status"
	ActionForwardSent  = "forward_sent"
)

// Message types of incoming events.
const (
	MessageTypeSMS  = "sms"
	MessageTypeMMS  = "mms"
	MessageTypeCall = "call"
)

const (
	NetworkMobile = "MOBILE"
	NetworkWifi   = "WIFI"
)

// Payload field names read by the classifier.
const (
	FieldAction      = "action"
	FieldMessageType = "message_type"
	FieldNetwork     = "network"
	FieldNow         = "now"
	FieldTimestamp   = "timestamp"
	FieldFrom        = "from"
	FieldPhoneNumber = "phone_number"
)

// Event is an immutable typed view over one raw device payload.
type Event struct {
	raw map[string]string

	Action      string
	MessageType string
	Network     string
	// PhoneNumber is the trimmed device number, empty when absent.
	PhoneNumber string
	// Identity is the originating party, used to address automatic replies.
	Identity string
	// SubmittedAt and OccurredAt are zero when absent or not numeric.
	SubmittedAt time.Time
	OccurredAt  time.Time
}

// Classify never fails. Unknown or missing fields leave predicates false
// and timestamps zero.
func Classify(raw map[string]string) *Event {
	copied := make(map[string]string, len(raw))
	for k, v := range raw {
		copied[k] = v
	}

	return &Event{
		raw:         copied,
		Action:      copied[FieldAction],
		MessageType: copied[FieldMessageType],
		Network:     copied[FieldNetwork],
		PhoneNumber: strings.TrimSpace(copied[FieldPhoneNumber]),
		Identity:    copied[FieldFrom],
		SubmittedAt: parseMillis(copied[FieldNow]),
		OccurredAt:  parseMillis(copied[FieldTimestamp]),
	}
}

func parseMillis(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	ms, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

// Raw returns a copy of the payload the event was classified from.
func (e *Event) Raw() map[string]string {
	out := make(map[string]string, len(e.raw))
	for k, v := range e.raw {
		out[k] = v
	}
	return out
}

// Time is the origination time used for queue ordering: the event
// timestamp when present, otherwise the submission time. It is zero when
// neither parsed.
func (e *Event) Time() time.Time {
	if !e.OccurredAt.IsZero() {
		return e.OccurredAt
	}
	return e.SubmittedAt
}

func (e *Event) HasPhoneNumber() bool { return e.PhoneNumber != "" }
func (e *Event) HasIdentity() bool { return e.Identity != "" }

func (e *Event) IsMobile() bool { return e.Network == NetworkMobile }
func (e *Event) IsWifi() bool { return !e.IsMobile() }

func (e *Event) IsTest() bool { return e.Action == ActionTest }
func (e *Event) IsOutgoing() bool { return e.Action == ActionOutgoing }
func (e *Event) IsIncoming() bool { return e.Action == ActionIncoming }

func (e *Event) IsSMS() bool { return e.IsIncoming() && e.MessageType == MessageTypeSMS }
func (e *Event) IsMMS() bool { return e.IsIncoming() && e.MessageType == MessageTypeMMS }
func (e *Event) IsCall() bool { return e.IsIncoming() && e.MessageType == MessageTypeCall }

func (e *Event) IsSendStatus() bool { return e.Action == ActionSendStatus }
func (e *Event) IsDeviceStatus() bool { return e.Action == ActionDeviceStatus }
func (e *Event) IsForwardedSent() bool { return e.Action == ActionForwardSent }
