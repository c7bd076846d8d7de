package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"fondarelay/internal/event"
	"fondarelay/internal/models"
)

type staticConnectivity bool

func (s staticConnectivity) IsWorking(string) bool { return bool(s) }

func allPermissions() models.Permissions {
	return models.Permissions{Outgoing: true, SMS: true, MMS: true, Call: true, SendStatus: true, DeviceStatus: true, Sent: true}
}

func TestDecide_TestPingAlwaysSuppressed(t *testing.T) {
	tenant := &models.Tenant{Slug: "acme", Permissions: allPermissions()}
	ev := event.Classify(map[string]string{"action": "test"})

	for _, working := range []bool{true, false} {
		for _, pending := range []bool{true, false} {
			assert.Equal(t, Suppress, Decide(tenant, ev, staticConnectivity(working), pending))
		}
	}
}

func TestDecide_CategoryMatrix(t *testing.T) {
	events := map[string]map[string]string{
		"outgoing":      {"action": "outgoing"},
		"sms":           {"action": "incoming", "message_type": "sms"},
		"mms":           {"action": "incoming", "message_type": "mms"},
		"call":          {"action": "incoming", "message_type": "call"},
		"send_status":   {"action": "send_status"},
		"device_status": {"action": "device_status"},
		"sent":          {"action": "forward_sent"},
	}
	single := map[string]models.Permissions{
		"outgoing":      {Outgoing: true},
		"sms":           {SMS: true},
		"mms":           {MMS: true},
		"call":          {Call: true},
		"send_status":   {SendStatus: true},
		"device_status": {DeviceStatus: true},
		"sent":          {Sent: true},
	}

	for permName, perms := range single {
		for eventName, raw := range events {
			tenant := &models.Tenant{Slug: "acme", Permissions: perms}
			got := Decide(tenant, event.Classify(raw), staticConnectivity(true), false)

			want := Suppress
			if permName == eventName {
				want = Forward
			}
			assert.Equal(t, want, got, "permission %s, event %s", permName, eventName)
		}
	}
}

func TestDecide_UnknownActionSuppressed(t *testing.T) {
	tenant := &models.Tenant{Slug: "acme", Permissions: allPermissions()}
	assert.Equal(t, Suppress, Decide(tenant, event.Classify(map[string]string{"action": "amqp_started"}), staticConnectivity(true), false))
	assert.Equal(t, Suppress, Decide(tenant, event.Classify(map[string]string{"action": "incoming", "message_type": "fax"}), staticConnectivity(true), false))
}

func TestDecide_OutgoingWhileServerDown(t *testing.T) {
	tenant := &models.Tenant{Slug: "acme", Permissions: models.Permissions{Outgoing: true}}
	outgoing := event.Classify(map[string]string{"action": "outgoing"})

	tests := []struct {
		name    string
		working bool
		pending bool
		want    Decision
	}{
		{"down with backlog", false, true, Suppress},
		{"down without backlog", false, false, Forward},
		{"up with backlog", true, true, Forward},
		{"up without backlog", true, false, Forward},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Decide(tenant, outgoing, staticConnectivity(tt.working), tt.pending))
		})
	}
}

func TestDecide_IncomingUnaffectedByBacklog(t *testing.T) {
	tenant := &models.Tenant{Slug: "acme", Permissions: models.Permissions{SMS: true}}
	sms := event.Classify(map[string]string{"action": "incoming", "message_type": "sms"})

	assert.Equal(t, Forward, Decide(tenant, sms, staticConnectivity(false), true))
}

func TestMatchedCategory(t *testing.T) {
	name, ok := MatchedCategory(models.Permissions{Call: true}, event.Classify(map[string]string{"action": "incoming", "message_type": "call"}))
	assert.True(t, ok)
	assert.Equal(t, "call", name)

	_, ok = MatchedCategory(models.Permissions{}, event.Classify(map[string]string{"action": "incoming", "message_type": "call"}))
	assert.False(t, ok)
}
