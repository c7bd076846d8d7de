package event

import (
	"strconv"
	"time"

	"fondarelay/internal/constants"
)

// TestPayload is the benign status ping used to probe a tenant server.
func TestPayload(now time.Time) map[string]string {
	return map[string]string{
		FieldAction:        ActionTest,
		"battery":          constants.TestPayloadBattery,
		"log":              "",
		FieldNetwork:       NetworkWifi,
		FieldNow:           strconv.FormatInt(now.Unix()*1000, 10),
		"phone_id":         "",
		FieldPhoneNumber:   constants.TestPayloadPhoneNumber,
		"phone_token":      "",
		"power":            constants.TestPayloadPower,
		"send_limit":       constants.TestPayloadSendLimit,
		"settings_version": constants.TestPayloadSettingsVersion,
		"version":          constants.TestPayloadVersion,
	}
}
