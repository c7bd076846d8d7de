package event

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClassify_Predicates(t *testing.T) {
	tests := []struct {
		name string
		raw  map[string]string
		want map[string]bool
	}{
		{
			name: "test ping",
			raw:  map[string]string{"action": "test"},
			want: map[string]bool{"test": true},
		},
		{
			name: "outgoing",
			raw:  map[string]string{"action": "outgoing"},
			want: map[string]bool{"outgoing": true},
		},
		{
			name: "incoming sms",
			raw:  map[string]string{"action": "incoming", "message_type": "sms"},
			want: map[string]bool{"incoming": true, "sms": true},
		},
		{
			name: "incoming mms",
			raw:  map[string]string{"action": "incoming", "message_type": "mms"},
			want: map[string]bool{"incoming": true, "mms": true},
		},
		{
			name: "incoming call",
			raw:  map[string]string{"action": "incoming", "message_type": "call"},
			want: map[string]bool{"incoming": true, "call": true},
		},
		{
			name: "sms type without incoming action",
			raw:  map[string]string{"action": "outgoing", "message_type": "sms"},
			want: map[string]bool{"outgoing": true},
		},
		{
			name: "send status",
			raw:  map[string]string{"action": "send_status"},
			want: map[string]bool{"send_status": true},
		},
		{
			name: "device status",
			raw:  map[string]string{"action": "device_status"},
			want: map[string]bool{"device_status": true},
		},
		{
			name: "forward sent",
			raw:  map[string]string{"action": "forward_sent"},
			want: map[string]bool{"forward_sent": true},
		},
		{
			name: "empty payload",
			raw:  map[string]string{},
			want: map[string]bool{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := Classify(tt.raw)
			got := map[string]bool{
				"test":          ev.IsTest(),
				"outgoing":      ev.IsOutgoing(),
				"incoming":      ev.IsIncoming(),
				"sms":           ev.IsSMS(),
				"mms":           ev.IsMMS(),
				"call":          ev.IsCall(),
				"send_status":   ev.IsSendStatus(),
				"device_status": ev.IsDeviceStatus(),
				"forward_sent":  ev.IsForwardedSent(),
			}
			for k, v := range got {
				assert.Equal(t, tt.want[k], v, k)
			}
		})
	}
}

func TestClassify_Network(t *testing.T) {
	assert.True(t, Classify(map[string]string{"network": "MOBILE"}).IsMobile())
	assert.True(t, Classify(map[string]string{"network": "WIFI"}).IsWifi())
	assert.True(t, Classify(map[string]string{}).IsWifi())
	assert.True(t, Classify(map[string]string{"network": "mobile"}).IsWifi())
}

func TestClassify_Timestamps(t *testing.T) {
	ev := Classify(map[string]string{"now": "1700000000000", "timestamp": "1690000000500"})
	assert.Equal(t, time.UnixMilli(1700000000000), ev.SubmittedAt)
	assert.Equal(t, time.UnixMilli(1690000000500), ev.OccurredAt)
	assert.Equal(t, ev.OccurredAt, ev.Time())

	ev = Classify(map[string]string{"now": "1700000000000"})
	assert.True(t, ev.OccurredAt.IsZero())
	assert.Equal(t, ev.SubmittedAt, ev.Time())

	ev = Classify(map[string]string{"now": "yesterday", "timestamp": "12ab"})
	assert.True(t, ev.SubmittedAt.IsZero())
	assert.True(t, ev.OccurredAt.IsZero())
	assert.True(t, ev.Time().IsZero())
}

func TestClassify_PhoneAndIdentity(t *testing.T) {
	ev := Classify(map[string]string{"phone_number": "  +22376123456 ", "from": "+1000"})
	assert.Equal(t, "+22376123456", ev.PhoneNumber)
	assert.True(t, ev.HasPhoneNumber())
	assert.Equal(t, "+1000", ev.Identity)

	ev = Classify(map[string]string{"phone_number": "   "})
	assert.False(t, ev.HasPhoneNumber())
	assert.False(t, ev.HasIdentity())
}

func TestClassify_IsPureAndCopiesInput(t *testing.T) {
	raw := map[string]string{"action": "incoming", "message_type": "sms", "now": "1000", "phone_number": "+1"}
	a := Classify(raw)
	b := Classify(raw)
	assert.Equal(t, a, b)

	raw["action"] = "test"
	assert.False(t, a.IsTest())
	assert.Equal(t, "incoming", a.Raw()["action"])

	copied := a.Raw()
	copied["action"] = "changed"
	assert.Equal(t, "incoming", a.Raw()["action"])
}

func TestTestPayload(t *testing.T) {
	now := time.Unix(1700000000, 0)
	payload := TestPayload(now)

	assert.Equal(t, "test", payload["action"])
	assert.Equal(t, "1700000000000", payload["now"])
	assert.Equal(t, "unknown", payload["phone_number"])
	assert.Equal(t, "10000", payload["send_limit"])
	assert.Equal(t, "30", payload["version"])
	assert.True(t, Classify(payload).IsTest())
}
