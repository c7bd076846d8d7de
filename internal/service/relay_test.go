package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"fondarelay/internal/connectivity"
	apperrors "fondarelay/internal/errors"
	"fondarelay/internal/event"
	"fondarelay/internal/models"
)

func incomingSMS() map[string]string {
	return map[string]string{
		"action":       "incoming",
		"message_type": "sms",
		"phone_number": "+2000",
		"from":         "+1000",
		"message":      "hello",
		"timestamp":    "1700000000000",
		"now":          "1700000001000",
	}
}

func TestRelay_ForwardMergesBacklogIntoServerReply(t *testing.T) {
	tenant := newTenant("acme")
	tenant.Permissions.SMS = true
	h := newHarness(t, tenant)
	ctx := context.Background()

	h.tracker.Update("acme", connectivity.StatusWorking)
	_, err := h.queue.EnqueueTowardDevice(ctx, "acme", []models.Item{{"to": "+3000", "message": "queued"}}, "")
	require.NoError(t, err)

	raw := incomingSMS()
	h.sender.On("PostForm", mock.Anything, tenant.URL, raw, tenant.Timeout()).
		Return(jsonResponse(`{"events":[{"event":"send","messages":[{"to":"+4000","message":"from server"}]}],"extra":"kept"}`), nil).Once()

	doc, err := h.relay().HandleDeviceEvent(ctx, "acme", raw)
	require.NoError(t, err)
	h.sender.AssertExpectations(t)

	assert.Equal(t, "kept", doc["extra"])
	resp := decodeResponse(t, doc)
	require.Len(t, resp.Events, 1)
	require.Len(t, resp.Events[0].Messages, 2)
	assert.Equal(t, "from server", resp.Events[0].Messages[0]["message"])
	assert.Equal(t, "queued", resp.Events[0].Messages[1]["message"])

	pending, err := h.db.HasPending(ctx, "acme", models.DirectionTowardDevice)
	require.NoError(t, err)
	assert.False(t, pending)
	assert.Equal(t, connectivity.StatusWorking, h.tracker.Status("acme"))
}

func TestRelay_SendFailureQueuesEvent(t *testing.T) {
	tenant := newTenant("acme")
	tenant.Permissions.SMS = true
	h := newHarness(t, tenant)
	ctx := context.Background()

	h.tracker.Update("acme", connectivity.StatusWorking)
	_, err := h.queue.EnqueueTowardDevice(ctx, "acme", []models.Item{{"to": "+3000", "message": "queued"}}, "")
	require.NoError(t, err)

	h.sender.On("PostForm", mock.Anything, tenant.URL, mock.Anything, tenant.Timeout()).
		Return(nil, apperrors.NewTransportError(tenant.URL, 0, errors.New("i/o timeout"))).Once()

	doc, err := h.relay().HandleDeviceEvent(ctx, "acme", incomingSMS())
	require.NoError(t, err)

	assert.Equal(t, connectivity.StatusNotWorking, h.tracker.Status("acme"))

	queued, err := h.db.ListPending(ctx, "acme", models.DirectionTowardServer)
	require.NoError(t, err)
	require.Len(t, queued, 1)
	msg := queued[0]
	assert.Equal(t, models.QueueStatusPending, msg.Status)
	stored, err := msg.Event()
	require.NoError(t, err)
	assert.Equal(t, "hello", stored["message"])

	resp := decodeResponse(t, doc)
	require.NotNil(t, resp.PhoneNumber)
	assert.Equal(t, "+2000", *resp.PhoneNumber)
	require.Len(t, resp.Events, 1)
	assert.Equal(t, "send", resp.Events[0].Event)
	require.Len(t, resp.Events[0].Messages, 1)
	assert.Equal(t, "queued", resp.Events[0].Messages[0]["message"])
}

func TestRelay_OutgoingSuppressedWhileBacklogStalled(t *testing.T) {
	tenant := newTenant("acme")
	tenant.Permissions.Outgoing = true
	h := newHarness(t, tenant)
	ctx := context.Background()

	h.tracker.Update("acme", connectivity.StatusNotWorking)
	_, err := h.queue.EnqueueTowardServer(ctx, "acme", event.Classify(map[string]string{"action": "outgoing", "phone_number": "+2000"}))
	require.NoError(t, err)

	doc, err := h.relay().HandleDeviceEvent(ctx, "acme", map[string]string{"action": "outgoing", "phone_number": "+2000"})
	require.NoError(t, err)

	h.sender.AssertNotCalled(t, "PostForm", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	count, err := h.db.CountPending(ctx, "acme", models.DirectionTowardServer)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Empty(t, decodeResponse(t, doc).Events)
}

func TestRelay_OutgoingAttemptedWhenNothingPending(t *testing.T) {
	tenant := newTenant("acme")
	tenant.Permissions.Outgoing = true
	h := newHarness(t, tenant)
	ctx := context.Background()

	h.tracker.Update("acme", connectivity.StatusNotWorking)
	h.sender.On("PostForm", mock.Anything, tenant.URL, mock.Anything, tenant.Timeout()).
		Return(nil, errors.New("connection refused")).Once()

	_, err := h.relay().HandleDeviceEvent(ctx, "acme", map[string]string{"action": "outgoing", "phone_number": "+2000"})
	require.NoError(t, err)

	h.sender.AssertExpectations(t)
	count, err := h.db.CountPending(ctx, "acme", models.DirectionTowardServer)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestRelay_OutgoingFailureDoesNotDuplicateStalledBacklog(t *testing.T) {
	tenant := newTenant("acme")
	tenant.Permissions.Outgoing = true
	h := newHarness(t, tenant)
	ctx := context.Background()

	h.tracker.Update("acme", connectivity.StatusWorking)
	_, err := h.queue.EnqueueTowardServer(ctx, "acme", event.Classify(map[string]string{"action": "outgoing"}))
	require.NoError(t, err)

	h.sender.On("PostForm", mock.Anything, tenant.URL, mock.Anything, tenant.Timeout()).
		Return(nil, errors.New("connection refused")).Once()

	_, err = h.relay().HandleDeviceEvent(ctx, "acme", map[string]string{"action": "outgoing"})
	require.NoError(t, err)

	count, err := h.db.CountPending(ctx, "acme", models.DirectionTowardServer)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Equal(t, connectivity.StatusNotWorking, h.tracker.Status("acme"))
}

func TestRelay_AutomaticReplyAppendedAfterBacklog(t *testing.T) {
	tenant := newTenant("acme")
	tenant.AutomaticReply = true
	tenant.AutomaticReplyText = "thanks"
	h := newHarness(t, tenant)
	ctx := context.Background()

	_, err := h.queue.EnqueueTowardDevice(ctx, "acme", []models.Item{{"to": "+3000", "message": "queued"}}, "")
	require.NoError(t, err)

	doc, err := h.relay().HandleDeviceEvent(ctx, "acme", incomingSMS())
	require.NoError(t, err)

	h.sender.AssertNotCalled(t, "PostForm", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	resp := decodeResponse(t, doc)
	require.Len(t, resp.Events, 1)
	require.Len(t, resp.Events[0].Messages, 2)
	assert.Equal(t, "queued", resp.Events[0].Messages[0]["message"])
	assert.Equal(t, map[string]interface{}{"to": "+1000", "message": "thanks"}, resp.Events[0].Messages[1])
}

func TestRelay_UnparseableServerReplyReturnsBacklogOnly(t *testing.T) {
	tenant := newTenant("acme")
	tenant.Permissions.SMS = true
	h := newHarness(t, tenant)
	ctx := context.Background()

	_, err := h.queue.EnqueueTowardDevice(ctx, "acme", []models.Item{{"to": "+3000", "message": "queued"}}, "")
	require.NoError(t, err)
	h.sender.On("PostForm", mock.Anything, tenant.URL, mock.Anything, tenant.Timeout()).
		Return(jsonResponse("OK"), nil).Once()

	doc, err := h.relay().HandleDeviceEvent(ctx, "acme", incomingSMS())
	require.NoError(t, err)

	assert.NotContains(t, doc, "extra")
	resp := decodeResponse(t, doc)
	require.Len(t, resp.Events, 1)
	require.Len(t, resp.Events[0].Messages, 1)
	assert.Equal(t, "queued", resp.Events[0].Messages[0]["message"])
	assert.Equal(t, connectivity.StatusWorking, h.tracker.Status("acme"))
}

func TestRelay_TestEventNeverForwarded(t *testing.T) {
	tenant := newTenant("acme")
	tenant.Permissions = models.Permissions{Outgoing: true, SMS: true, MMS: true, Call: true, SendStatus: true, DeviceStatus: true, Sent: true}
	h := newHarness(t, tenant)

	doc, err := h.relay().HandleDeviceEvent(context.Background(), "acme", event.TestPayload(time.Now()))
	require.NoError(t, err)

	h.sender.AssertNotCalled(t, "PostForm", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	assert.Empty(t, decodeResponse(t, doc).Events)
}

func TestRelay_UnknownTenant(t *testing.T) {
	h := newHarness(t)

	_, err := h.relay().HandleDeviceEvent(context.Background(), "missing", incomingSMS())
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeTenantNotFound))
	assert.Equal(t, connectivity.StatusUnknown, h.tracker.Status("missing"))
}

func TestRelay_TenantLookupFailure(t *testing.T) {
	h := newHarness(t)
	store := &mockTenantStore{}
	store.On("GetTenant", mock.Anything, "acme").Return(nil, errors.New("disk I/O error"))

	relay := NewRelay(store, h.queue, h.tracker, h.sender, quietLogger())
	_, err := relay.HandleDeviceEvent(context.Background(), "acme", incomingSMS())
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeDatabaseQuery))
}
