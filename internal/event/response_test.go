package event

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fondarelay/internal/models"
)

func toJSON(t *testing.T, v interface{}) string {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return string(b)
}

func TestAutomaticReply(t *testing.T) {
	tenant := &models.Tenant{AutomaticReply: true, AutomaticReplyText: "thanks"}
	incoming := Classify(map[string]string{"action": "incoming", "message_type": "sms", "from": "+1000"})

	item, ok := AutomaticReply(tenant, incoming)
	require.True(t, ok)
	assert.Equal(t, models.Item{"to": "+1000", "message": "thanks"}, item)

	_, ok = AutomaticReply(tenant, Classify(map[string]string{"action": "outgoing", "from": "+1000"}))
	assert.False(t, ok)

	_, ok = AutomaticReply(tenant, Classify(map[string]string{"action": "incoming"}))
	assert.False(t, ok)

	_, ok = AutomaticReply(&models.Tenant{AutomaticReply: true}, incoming)
	assert.False(t, ok)

	_, ok = AutomaticReply(&models.Tenant{AutomaticReplyText: "thanks"}, incoming)
	assert.False(t, ok)
}

func TestBuildResponse(t *testing.T) {
	assert.JSONEq(t, `{"events":[],"phone_number":null}`, toJSON(t, BuildResponse(nil, "")))

	items := []models.Item{{"to": "+1", "message": "a"}}
	assert.JSONEq(t,
		`{"events":[{"event":"send","messages":[{"to":"+1","message":"a"}]}],"phone_number":"+2"}`,
		toJSON(t, BuildResponse(items, "+2")))
}

func TestMergeResponse(t *testing.T) {
	items := []models.Item{{"to": "+1", "message": "queued"}}

	tests := []struct {
		name  string
		body  string
		items []models.Item
		want  string
	}{
		{
			name:  "appends to existing messages",
			body:  `{"events":[{"event":"send","messages":[{"to":"+9","message":"server"}]}],"extra":1}`,
			items: items,
			want:  `{"events":[{"event":"send","messages":[{"to":"+9","message":"server"},{"to":"+1","message":"queued"}]}],"extra":1}`,
		},
		{
			name:  "adds send event when events empty",
			body:  `{"events":[]}`,
			items: items,
			want:  `{"events":[{"event":"send","messages":[{"to":"+1","message":"queued"}]}]}`,
		},
		{
			name:  "events not a list",
			body:  `{"events":"nope"}`,
			items: nil,
			want:  `{"events":[]}`,
		},
		{
			name:  "missing events",
			body:  `{"ok":true}`,
			items: items,
			want:  `{"ok":true,"events":[{"event":"send","messages":[{"to":"+1","message":"queued"}]}]}`,
		},
		{
			name:  "first event without messages",
			body:  `{"events":[{"event":"send"}]}`,
			items: items,
			want:  `{"events":[{"event":"send","messages":[{"to":"+1","message":"queued"}]}]}`,
		},
		{
			name:  "first event not an object",
			body:  `{"events":["x"]}`,
			items: items,
			want:  `{"events":[{"event":"send","messages":[{"to":"+1","message":"queued"}]},"x"]}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			merged, err := MergeResponse([]byte(tt.body), tt.items)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, toJSON(t, merged))
		})
	}
}

func TestMergeResponse_Malformed(t *testing.T) {
	for _, body := range []string{"", "not json", "[1,2]", "null"} {
		_, err := MergeResponse([]byte(body), nil)
		assert.Error(t, err, body)
	}
}

func TestParseReply(t *testing.T) {
	reply, err := ParseReply([]byte(`{"events":[{"event":"send","messages":[{"to":"+1","message":"hi"},{"to":"+2","message":"yo"}]}],"phone_number":"+3"}`))
	require.NoError(t, err)
	assert.Len(t, reply.Messages, 2)
	assert.Equal(t, "+1", reply.Messages[0]["to"])
	assert.Equal(t, "+3", reply.PhoneNumber)

	reply, err = ParseReply([]byte(`{"events":[]}`))
	require.NoError(t, err)
	assert.Empty(t, reply.Messages)
	assert.Empty(t, reply.PhoneNumber)

	reply, err = ParseReply([]byte(`{"phone_number":null}`))
	require.NoError(t, err)
	assert.Empty(t, reply.Messages)

	for _, body := range []string{"oops", `{"events":{}}`, `{"events":[{"messages":"x"}]}`, `{"events":[{"messages":[1]}]}`, `{"events":[{"messages":[null]}]}`} {
		_, err := ParseReply([]byte(body))
		assert.Error(t, err, body)
	}
}

func TestCollectMessages(t *testing.T) {
	items, err := CollectMessages([]byte(`{"events":[{"event":"send","messages":[{"to":"+1","message":"a"}]},{"event":"send","messages":[{"to":"+2","message":"b"},{"to":"+3","message":"c"}]}]}`))
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, "a", items[0]["message"])
	assert.Equal(t, "b", items[1]["message"])
	assert.Equal(t, "+3", items[2]["to"])

	items, err = CollectMessages([]byte(`{"events":[]}`))
	require.NoError(t, err)
	assert.Empty(t, items)

	items, err = CollectMessages([]byte(`{"events":[{"event":"send"},{"messages":[{"to":"+1"}]}]}`))
	require.NoError(t, err)
	assert.Len(t, items, 1)

	for _, body := range []string{
		"oops",
		`[]`,
		`{"events":{}}`,
		`{"events":[1]}`,
		`{"events":[{"event":"settings","settings":{}}]}`,
		`{"events":[{"event":"send","messages":[{"to":"+1"}]},{"event":"send","messages":[null]}]}`,
	} {
		_, err := CollectMessages([]byte(body))
		assert.Error(t, err, body)
	}
}
