package event

import (
	"encoding/json"
	"fmt"

	"fondarelay/internal/models"
)

const (
	eventSend   = "send"
	keyEvents   = "events"
	keyEvent    = "event"
	keyMessages = "messages"
)

// AutomaticReply builds the reply item addressed to the event originator.
func AutomaticReply(tenant *models.Tenant, ev *Event) (models.Item, bool) {
	if !tenant.HasAutomaticReply() || !ev.IsIncoming() || !ev.HasIdentity() {
		return nil, false
	}
	return models.Item{"to": ev.Identity, "message": tenant.AutomaticReplyText}, true
}

// BuildResponse is the standalone device response:
//
//	{"events": [{"event": "send", "messages": [...]}], "phone_number": ...}
//
// The send event is only present when there are items.
func BuildResponse(items []models.Item, phoneNumber string) map[string]interface{} {
	events := []interface{}{}
	if len(items) > 0 {
		events = append(events, newSendEvent(items))
	}

	var phone interface{}
	if phoneNumber != "" {
		phone = phoneNumber
	}
	return map[string]interface{}{
		keyEvents:        events,
		FieldPhoneNumber: phone,
	}
}

// MergeResponse appends items to events[0].messages of a server reply,
// keeping everything the server sent. A reply that is not a JSON object
// returns an error.
func MergeResponse(body []byte, items []models.Item) (map[string]interface{}, error) {
	var doc map[string]interface{}
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("server reply is not a JSON object: %w", err)
	}
	if doc == nil {
		return nil, fmt.Errorf("server reply is null")
	}

	events, ok := doc[keyEvents].([]interface{})
	if !ok {
		events = []interface{}{}
	}

	if len(items) > 0 {
		events = mergeIntoFirst(events, items)
	}
	doc[keyEvents] = events
	return doc, nil
}

func mergeIntoFirst(events []interface{}, items []models.Item) []interface{} {
	if len(events) == 0 {
		return append(events, newSendEvent(items))
	}

	first, ok := events[0].(map[string]interface{})
	if !ok {
		return append([]interface{}{newSendEvent(items)}, events...)
	}

	switch messages := first[keyMessages].(type) {
	case nil:
		first[keyMessages] = toInterfaces(items)
	case []interface{}:
		first[keyMessages] = append(messages, toInterfaces(items)...)
	default:
		return append([]interface{}{newSendEvent(items)}, events...)
	}
	return events
}

func newSendEvent(items []models.Item) map[string]interface{} {
	return map[string]interface{}{
		keyEvent:    eventSend,
		keyMessages: toInterfaces(items),
	}
}

func toInterfaces(items []models.Item) []interface{} {
	out := make([]interface{}, len(items))
	for i, item := range items {
		out[i] = item
	}
	return out
}

// Reply is the structured part of a server reply the relay acts upon.
type Reply struct {
	Messages    []models.Item
	PhoneNumber string
}

// ParseReply reads events[0].messages and the optional phone_number from a
// server reply. Messages that are not JSON objects make the reply malformed.
func ParseReply(body []byte) (*Reply, error) {
	var doc struct {
		Events      []json.RawMessage `json:"events"`
		PhoneNumber interface{}       `json:"phone_number"`
	}
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode server reply: %w", err)
	}

	reply := &Reply{}
	if phone, ok := doc.PhoneNumber.(string); ok {
		reply.PhoneNumber = phone
	}
	if len(doc.Events) == 0 {
		return reply, nil
	}

	var first struct {
		Messages []models.Item `json:"messages"`
	}
	if err := json.Unmarshal(doc.Events[0], &first); err != nil {
		return nil, fmt.Errorf("failed to decode first reply event: %w", err)
	}
	for _, m := range first.Messages {
		if m == nil {
			return nil, fmt.Errorf("reply message is not an object")
		}
	}
	reply.Messages = first.Messages
	return reply, nil
}

// CollectMessages returns the items of every send event in a device-bound
// document, in order. An event of another kind, or a message that is not a
// JSON object, makes the document malformed.
func CollectMessages(body []byte) ([]models.Item, error) {
	var doc struct {
		Events []json.RawMessage `json:"events"`
	}
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode events document: %w", err)
	}

	var items []models.Item
	for i, raw := range doc.Events {
		var ev struct {
			Event    string        `json:"event"`
			Messages []models.Item `json:"messages"`
		}
		if err := json.Unmarshal(raw, &ev); err != nil {
			return nil, fmt.Errorf("failed to decode event %d: %w", i, err)
		}
		if ev.Event != "" && ev.Event != eventSend {
			return nil, fmt.Errorf("event %d has unsupported kind %q", i, ev.Event)
		}
		for _, m := range ev.Messages {
			if m == nil {
				return nil, fmt.Errorf("event %d carries a message that is not an object", i)
			}
		}
		items = append(items, ev.Messages...)
	}
	return items, nil
}
