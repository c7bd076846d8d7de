package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTenant_Timeout(t *testing.T) {
	tenant := &Tenant{TimeoutSec: 2.5}
	assert.Equal(t, 2500*time.Millisecond, tenant.Timeout())
}

func TestTenant_HasAutomaticReply(t *testing.T) {
	tests := []struct {
		name    string
		enabled bool
		text    string
		want    bool
	}{
		{"enabled with text", true, "thanks", true},
		{"enabled without text", true, "", false},
		{"disabled with text", false, "thanks", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tenant := &Tenant{AutomaticReply: tt.enabled, AutomaticReplyText: tt.text}
			assert.Equal(t, tt.want, tenant.HasAutomaticReply())
		})
	}
}

func TestTenant_SecretNotSerialized(t *testing.T) {
	tenant := &Tenant{Slug: "acme", UpstreamRelaySecret: "s3cret"}
	data, err := json.Marshal(tenant)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "s3cret")
}

func TestStalledMessage_Decode(t *testing.T) {
	toServer := &StalledMessage{
		TenantSlug: "acme",
		ID:         7,
		Payload:    json.RawMessage(`{"action":"incoming","from":"+1000"}`),
	}
	raw, err := toServer.Event()
	require.NoError(t, err)
	assert.Equal(t, "+1000", raw["from"])
	assert.Equal(t, "acme#7", toServer.String())

	toDevice := &StalledMessage{Payload: json.RawMessage(`[{"to":"+1","message":"a"},{"to":"+2","message":"b"}]`)}
	_, err = toDevice.Event()
	assert.Error(t, err)

	toServer.Status = QueueStatusPending
	assert.True(t, toServer.IsPending())
	toServer.Status = QueueStatusSent
	assert.False(t, toServer.IsPending())
}
