// Package policy decides whether a device event is forwarded to its tenant
// server.
package policy

import (
	"fondarelay/internal/event"
	"fondarelay/internal/models"
)

// Decision is the outcome of Decide.
type Decision string

const (
	Forward  Decision = "forward"
	Suppress Decision = "suppress"
)

// Connectivity is the part of the tracker the policy reads.
type Connectivity interface {
	IsWorking(slug string) bool
}

type category struct {
	name      string
	permitted func(models.Permissions) bool
	matches   func(*event.Event) bool
}

// categories maps each transfer permission to the event predicate it enables.
var categories = []category{
	{"outgoing", func(p models.Permissions) bool { return p.Outgoing }, (*event.Event).IsOutgoing},
	{"sms", func(p models.Permissions) bool { return p.SMS }, (*event.Event).IsSMS},
	{"mms", func(p models.Permissions) bool { return p.MMS }, (*event.Event).IsMMS},
	{"call", func(p models.Permissions) bool { return p.Call }, (*event.Event).IsCall},
	{"send_status", func(p models.Permissions) bool { return p.SendStatus }, (*event.Event).IsSendStatus},
	{"device_status", func(p models.Permissions) bool { return p.DeviceStatus }, (*event.Event).IsDeviceStatus},
	{"sent", func(p models.Permissions) bool { return p.Sent }, (*event.Event).IsForwardedSent},
}

// Decide applies, in order: test pings are never forwarded; an outgoing
// event is held back while the server is down and an earlier event is
// still queued for it; otherwise the event is forwarded when its category
// is permitted.
func Decide(tenant *models.Tenant, ev *event.Event, conn Connectivity, hasPendingTowardServer bool) Decision {
	if ev.IsTest() {
		return Suppress
	}

	if ev.IsOutgoing() && tenant.Permissions.Outgoing && !conn.IsWorking(tenant.Slug) && hasPendingTowardServer {
		return Suppress
	}

	if _, ok := MatchedCategory(tenant.Permissions, ev); ok {
		return Forward
	}
	return Suppress
}

// MatchedCategory returns the first permitted category the event belongs to.
func MatchedCategory(perms models.Permissions, ev *event.Event) (string, bool) {
	for _, c := range categories {
		if c.permitted(perms) && c.matches(ev) {
			return c.name, true
		}
	}
	return "", false
}
