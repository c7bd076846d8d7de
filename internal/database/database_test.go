package database

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fondarelay/internal/models"
)

func setupTestDB(t *testing.T) *Database {
	t.Helper()
	db, err := New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func testTenant(slug string) *models.Tenant {
	return &models.Tenant{
		Slug:                slug,
		Name:                "Tenant " + slug,
		URL:                 "http://server.example/" + slug,
		TimeoutSec:          2.5,
		MaxItems:            10,
		Permissions:         models.Permissions{SMS: true, Outgoing: true},
		AutomaticReply:      true,
		AutomaticReplyText:  "thanks",
		ReplySamePhone:      true,
		UpstreamRelayURL:    "http://relay.example/hop",
		UpstreamRelaySecret: "s3cret",
	}
}

func insertMessage(t *testing.T, db *Database, slug string, dir models.Direction, phone, payload string, originated time.Time) *models.StalledMessage {
	t.Helper()
	now := time.Now()
	msg := &models.StalledMessage{
		TenantSlug:   slug,
		Direction:    dir,
		Status:       models.QueueStatusPending,
		PhoneNumber:  phone,
		Payload:      json.RawMessage(payload),
		CreatedAt:    now,
		OriginatedAt: originated,
		AlteredAt:    now,
	}
	require.NoError(t, db.InsertStalledMessage(context.Background(), msg))
	require.NotZero(t, msg.ID)
	return msg
}

func TestNew_InvalidPath(t *testing.T) {
	_, err := New("")
	assert.Error(t, err)

	_, err = New("../escape.db")
	assert.Error(t, err)
}

func TestTenants_SaveGetList(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	missing, err := db.GetTenant(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	require.NoError(t, db.SaveTenant(ctx, testTenant("beta")))
	require.NoError(t, db.SaveTenant(ctx, testTenant("alpha")))

	got, err := db.GetTenant(ctx, "alpha")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Tenant alpha", got.Name)
	assert.Equal(t, 2.5, got.TimeoutSec)
	assert.True(t, got.Permissions.SMS)
	assert.True(t, got.Permissions.Outgoing)
	assert.False(t, got.Permissions.MMS)
	assert.True(t, got.ReplySamePhone)
	assert.Equal(t, "s3cret", got.UpstreamRelaySecret)

	tenants, err := db.ListTenants(ctx)
	require.NoError(t, err)
	require.Len(t, tenants, 2)
	assert.Equal(t, "alpha", tenants[0].Slug)
	assert.Equal(t, "beta", tenants[1].Slug)
}

func TestTenants_UpsertKeepsSlug(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	tenant := testTenant("acme")
	require.NoError(t, db.SaveTenant(ctx, tenant))

	tenant.Name = "Renamed"
	tenant.Permissions.MMS = true
	require.NoError(t, db.SaveTenant(ctx, tenant))

	tenants, err := db.ListTenants(ctx)
	require.NoError(t, err)
	require.Len(t, tenants, 1)
	assert.Equal(t, "Renamed", tenants[0].Name)
	assert.True(t, tenants[0].Permissions.MMS)
}

func TestStalledMessages_PendingQueries(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	require.NoError(t, db.SaveTenant(ctx, testTenant("acme")))

	assert.False(t, db.EncryptionEnabled())

	has, err := db.HasPending(ctx, "acme", models.DirectionTowardServer)
	require.NoError(t, err)
	assert.False(t, has)

	pending, err := db.ListPending(ctx, "acme", models.DirectionTowardServer)
	require.NoError(t, err)
	assert.Empty(t, pending)

	base := time.Now().Add(-time.Hour)
	second := insertMessage(t, db, "acme", models.DirectionTowardServer, "", `{"action":"incoming"}`, base.Add(time.Minute))
	first := insertMessage(t, db, "acme", models.DirectionTowardServer, "+1000", `{"action":"outgoing"}`, base)

	has, err = db.HasPending(ctx, "acme", models.DirectionTowardServer)
	require.NoError(t, err)
	assert.True(t, has)

	count, err := db.CountPending(ctx, "acme", models.DirectionTowardServer)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	pending, err = db.ListPending(ctx, "acme", models.DirectionTowardServer)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, first.ID, pending[0].ID)
	assert.Equal(t, second.ID, pending[1].ID)
	assert.Equal(t, "+1000", pending[0].PhoneNumber)
	assert.JSONEq(t, `{"action":"outgoing"}`, string(pending[0].Payload))

	towardDevice, err := db.ListPending(ctx, "acme", models.DirectionTowardDevice)
	require.NoError(t, err)
	assert.Empty(t, towardDevice)

	slugs, err := db.TenantsWithPending(ctx, models.DirectionTowardServer)
	require.NoError(t, err)
	assert.Equal(t, []string{"acme"}, slugs)

	require.NoError(t, db.MarkSent(ctx, first.ID, time.Now()))
	require.NoError(t, db.Touch(ctx, second.ID, time.Now()))

	pending, err = db.ListPending(ctx, "acme", models.DirectionTowardServer)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, second.ID, pending[0].ID)

	sent, err := db.GetStalledMessage(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, models.QueueStatusSent, sent.Status)

	missing, err := db.GetStalledMessage(ctx, 9999)
	require.NoError(t, err)
	assert.Nil(t, missing)

	err = db.MarkSent(ctx, first.ID, time.Now())
	assert.ErrorIs(t, err, ErrConcurrentUpdate)
}

func TestStalledMessages_ListPendingTowardDevice(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	require.NoError(t, db.SaveTenant(ctx, testTenant("acme")))

	base := time.Now().Add(-time.Hour)
	untagged := insertMessage(t, db, "acme", models.DirectionTowardDevice, "", `[{"n":1}]`, base.Add(2*time.Minute))
	tagged := insertMessage(t, db, "acme", models.DirectionTowardDevice, "+1000", `[{"n":2}]`, base)
	insertMessage(t, db, "acme", models.DirectionTowardDevice, "+2000", `[{"n":3}]`, base)

	onlyUntagged, err := db.ListPendingTowardDevice(ctx, "acme", "+1000", false)
	require.NoError(t, err)
	require.Len(t, onlyUntagged, 1)
	assert.Equal(t, untagged.ID, onlyUntagged[0].ID)

	withTag, err := db.ListPendingTowardDevice(ctx, "acme", "+1000", true)
	require.NoError(t, err)
	require.Len(t, withTag, 2)
	assert.Equal(t, tagged.ID, withTag[0].ID)
	assert.Equal(t, untagged.ID, withTag[1].ID)
}

func TestApplyDrain_Transactional(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	require.NoError(t, db.SaveTenant(ctx, testTenant("acme")))

	a := insertMessage(t, db, "acme", models.DirectionTowardDevice, "", `[1,2]`, time.Now())
	b := insertMessage(t, db, "acme", models.DirectionTowardDevice, "", `[3,4,5]`, time.Now())

	now := time.Now()
	require.NoError(t, db.ApplyDrain(ctx, []models.DrainUpdate{
		{ID: a.ID, Status: models.QueueStatusSent, Payload: json.RawMessage(`[1,2]`), AlteredAt: now},
		{ID: b.ID, Status: models.QueueStatusPending, Payload: json.RawMessage(`[5]`), AlteredAt: now},
	}))

	gotA, err := db.GetStalledMessage(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.QueueStatusSent, gotA.Status)

	gotB, err := db.GetStalledMessage(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.QueueStatusPending, gotB.Status)
	assert.JSONEq(t, `[5]`, string(gotB.Payload))

	// a is already sent, so the whole batch must roll back
	err = db.ApplyDrain(ctx, []models.DrainUpdate{
		{ID: b.ID, Status: models.QueueStatusSent, Payload: json.RawMessage(`[5]`), AlteredAt: now},
		{ID: a.ID, Status: models.QueueStatusSent, Payload: json.RawMessage(`[]`), AlteredAt: now},
	})
	assert.ErrorIs(t, err, ErrConcurrentUpdate)

	gotB, err = db.GetStalledMessage(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.QueueStatusPending, gotB.Status)
}

func TestStalledMessages_Encrypted(t *testing.T) {
	enableEncryption(t)
	db := setupTestDB(t)
	ctx := context.Background()
	assert.True(t, db.EncryptionEnabled())
	require.NoError(t, db.SaveTenant(ctx, testTenant("acme")))

	insertMessage(t, db, "acme", models.DirectionTowardDevice, "+1000", `[{"to":"+1000"}]`, time.Now())

	var rawPayload, rawPhone string
	require.NoError(t, db.db.QueryRow(`SELECT payload, phone_number FROM stalled_messages`).Scan(&rawPayload, &rawPhone))
	assert.NotContains(t, rawPayload, "+1000")
	assert.NotEqual(t, "+1000", rawPhone)

	msgs, err := db.ListPendingTowardDevice(ctx, "acme", "+1000", true)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "+1000", msgs[0].PhoneNumber)
	assert.JSONEq(t, `[{"to":"+1000"}]`, string(msgs[0].Payload))

	tenant, err := db.GetTenant(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, "s3cret", tenant.UpstreamRelaySecret)
}
