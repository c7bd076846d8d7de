package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Direction is the fixed flow of a stalled message.
type Direction string

const (
	DirectionTowardServer Direction = "toward_server"
	DirectionTowardDevice Direction = "toward_device"
)

// QueueStatus only ever moves from pending to sent.
type QueueStatus string

const (
	QueueStatusPending QueueStatus = "pending"
	QueueStatusSent    QueueStatus = "sent"
)

// Item is one raw event dictionary bound for a device.
type Item = map[string]interface{}

// StalledMessage is one unit of queued relay work. Toward-server messages
// carry a single device event; toward-device messages carry a sequence of
// items returned by the tenant server.
type StalledMessage struct {
	ID           int64           `json:"id"`
	TenantSlug   string          `json:"tenant"`
	Direction    Direction       `json:"direction"`
	Status       QueueStatus     `json:"status"`
	PhoneNumber  string          `json:"phone_number,omitempty"`
	Payload      json.RawMessage `json:"payload"`
	CreatedAt    time.Time       `json:"created_at"`
	OriginatedAt time.Time       `json:"originated_at"`
	AlteredAt    time.Time       `json:"altered_at"`
}

func (m *StalledMessage) String() string {
	return fmt.Sprintf("%s#%d", m.TenantSlug, m.ID)
}

// IsPending reports whether the message still awaits delivery.
func (m *StalledMessage) IsPending() bool {
	return m.Status == QueueStatusPending
}

// Event decodes the payload of a toward-server message.
func (m *StalledMessage) Event() (map[string]string, error) {
	var raw map[string]string
	if err := json.Unmarshal(m.Payload, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode event payload of %s: %w", m, err)
	}
	return raw, nil
}

// DrainUpdate is the write produced for one message touched by a drain.
type DrainUpdate struct {
	ID        int64
	Status    QueueStatus
	Payload   json.RawMessage
	AlteredAt time.Time
}
