package database

// Tenant queries
const (
	UpsertTenantQuery = `
		INSERT INTO tenants (
			slug, name, url, timeout_sec, max_items,
			transfer_outgoing, transfer_sms, transfer_mms, transfer_call,
			transfer_send_status, transfer_device_status, transfer_sent,
			automatic_reply, automatic_reply_text, reply_same_phone,
			upstream_relay_url, upstream_relay_secret, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(slug) DO UPDATE SET
			name = excluded.name,
			url = excluded.url,
			timeout_sec = excluded.timeout_sec,
			max_items = excluded.max_items,
			transfer_outgoing = excluded.transfer_outgoing,
			transfer_sms = excluded.transfer_sms,
			transfer_mms = excluded.transfer_mms,
			transfer_call = excluded.transfer_call,
			transfer_send_status = excluded.transfer_send_status,
			transfer_device_status = excluded.transfer_device_status,
			transfer_sent = excluded.transfer_sent,
			automatic_reply = excluded.automatic_reply,
			automatic_reply_text = excluded.automatic_reply_text,
			reply_same_phone = excluded.reply_same_phone,
			upstream_relay_url = excluded.upstream_relay_url,
			upstream_relay_secret = excluded.upstream_relay_secret
	`

	selectTenantColumns = `
		SELECT slug, name, url, timeout_sec, max_items,
			   transfer_outgoing, transfer_sms, transfer_mms, transfer_call,
			   transfer_send_status, transfer_device_status, transfer_sent,
			   automatic_reply, automatic_reply_text, reply_same_phone,
			   upstream_relay_url, upstream_relay_secret, created_at, updated_at
		FROM tenants
	`

	SelectTenantBySlugQuery = selectTenantColumns + `WHERE slug = ?`

	SelectAllTenantsQuery = selectTenantColumns + `ORDER BY slug`
)

// Stalled message queries
const (
	InsertStalledMessageQuery = `
		INSERT INTO stalled_messages (
			tenant_slug, direction, status, phone_number, payload,
			created_at, originated_at, altered_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	selectStalledColumns = `
		SELECT id, tenant_slug, direction, status, phone_number, payload,
			   created_at, originated_at, altered_at
		FROM stalled_messages
	`

	ExistsPendingQuery = `
		SELECT EXISTS (
			SELECT 1 FROM stalled_messages
			WHERE tenant_slug = ? AND direction = ? AND status = 'pending'
		)
	`

	CountPendingQuery = `
		SELECT COUNT(*) FROM stalled_messages
		WHERE tenant_slug = ? AND direction = ? AND status = 'pending'
	`

	SelectPendingQuery = selectStalledColumns + `
		WHERE tenant_slug = ? AND direction = ? AND status = 'pending'
		ORDER BY originated_at ASC, created_at ASC, id ASC
	`

	SelectPendingTowardDeviceUntaggedQuery = selectStalledColumns + `
		WHERE tenant_slug = ? AND direction = 'toward_device' AND status = 'pending'
		  AND phone_number = ''
		ORDER BY originated_at ASC, created_at ASC, id ASC
	`

	SelectPendingTowardDeviceWithTagQuery = selectStalledColumns + `
		WHERE tenant_slug = ? AND direction = 'toward_device' AND status = 'pending'
		  AND (phone_number = '' OR phone_number = ?)
		ORDER BY originated_at ASC, created_at ASC, id ASC
	`

	SelectStalledMessageByIDQuery = selectStalledColumns + `WHERE id = ?`

	// Updates only touch pending rows so a concurrent writer can never move
	// a sent message.
	UpdateStalledMessageQuery = `
		UPDATE stalled_messages
		SET status = ?, payload = ?, altered_at = ?
		WHERE id = ? AND status = 'pending'
	`

	UpdateStalledStatusQuery = `
		UPDATE stalled_messages
		SET status = ?, altered_at = ?
		WHERE id = ? AND status = 'pending'
	`

	TouchStalledMessageQuery = `
		UPDATE stalled_messages
		SET altered_at = ?
		WHERE id = ? AND status = 'pending'
	`

	SelectTenantsWithPendingQuery = `
		SELECT DISTINCT tenant_slug FROM stalled_messages
		WHERE direction = ? AND status = 'pending'
		ORDER BY tenant_slug
	`
)
