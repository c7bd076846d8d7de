package models

import "time"

// Tenant is a configured project owning one device-facing webhook and one
// server URL. The slug is its immutable identity.
type Tenant struct {
	Slug                string      `json:"slug" yaml:"slug"`
	Name                string      `json:"name" yaml:"name"`
	URL                 string      `json:"url" yaml:"url"`
	TimeoutSec          float64     `json:"timeout_sec" yaml:"timeout_sec"`
	MaxItems            int         `json:"max_items" yaml:"max_items"`
	Permissions         Permissions `json:"permissions" yaml:"permissions"`
	AutomaticReply      bool        `json:"automatic_reply" yaml:"automatic_reply"`
	AutomaticReplyText  string      `json:"automatic_reply_text" yaml:"automatic_reply_text"`
	ReplySamePhone      bool        `json:"reply_same_phone" yaml:"reply_same_phone"`
	UpstreamRelayURL    string      `json:"upstream_relay_url,omitempty" yaml:"upstream_relay_url"`
	UpstreamRelaySecret string      `json:"-" yaml:"upstream_relay_secret"`
	CreatedAt           time.Time   `json:"created_at" yaml:"-"`
	UpdatedAt           time.Time   `json:"updated_at" yaml:"-"`
}

// Permissions is the per-category transfer matrix. Entries are independent.
type Permissions struct {
	Outgoing     bool `json:"outgoing" yaml:"outgoing"`
	SMS          bool `json:"sms" yaml:"sms"`
	MMS          bool `json:"mms" yaml:"mms"`
	Call         bool `json:"call" yaml:"call"`
	SendStatus   bool `json:"send_status" yaml:"send_status"`
	DeviceStatus bool `json:"device_status" yaml:"device_status"`
	Sent         bool `json:"sent" yaml:"sent"`
}

// Timeout returns the network timeout used for every send to this tenant's server.
func (t *Tenant) Timeout() time.Duration {
	return time.Duration(t.TimeoutSec * float64(time.Second))
}

// HasAutomaticReply reports whether an automatic reply should be synthesized
// for incoming events.
func (t *Tenant) HasAutomaticReply() bool {
	return t.AutomaticReply && t.AutomaticReplyText != ""
}

// HasUpstreamRelay reports whether a second-hop relay is configured.
func (t *Tenant) HasUpstreamRelay() bool {
	return t.UpstreamRelayURL != ""
}
