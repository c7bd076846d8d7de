// Package queue is the durable two-direction stalled message queue kept per
// tenant.
package queue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/sirupsen/logrus"

	"fondarelay/internal/constants"
	apperrors "fondarelay/internal/errors"
	"fondarelay/internal/event"
	"fondarelay/internal/metrics"
	"fondarelay/internal/models"
	"fondarelay/internal/privacy"
)

// Store is the persistence collaborator. Guarded updates must only touch
// pending rows and ApplyDrain must be atomic.
type Store interface {
	InsertStalledMessage(ctx context.Context, msg *models.StalledMessage) error
	HasPending(ctx context.Context, slug string, direction models.Direction) (bool, error)
	CountPending(ctx context.Context, slug string, direction models.Direction) (int, error)
	ListPending(ctx context.Context, slug string, direction models.Direction) ([]*models.StalledMessage, error)
	GetStalledMessage(ctx context.Context, id int64) (*models.StalledMessage, error)
	ListPendingTowardDevice(ctx context.Context, slug, phone string, includeTagged bool) ([]*models.StalledMessage, error)
	ApplyDrain(ctx context.Context, updates []models.DrainUpdate) error
	MarkSent(ctx context.Context, id int64, at time.Time) error
	Touch(ctx context.Context, id int64, at time.Time) error
	TenantsWithPending(ctx context.Context, direction models.Direction) ([]string, error)
}

type Queue struct {
	store  Store
	drains *TenantLocks
	now    func() time.Time
	logger *logrus.Logger
}

func New(store Store, logger *logrus.Logger) *Queue {
	if logger == nil {
		logger = logrus.New()
	}
	return &Queue{
		store:  store,
		drains: NewTenantLocks(),
		now:    time.Now,
		logger: logger,
	}
}

// EnqueueTowardServer stores the raw device event for a later retry. The
// message is tagged with the event's phone number when present.
func (q *Queue) EnqueueTowardServer(ctx context.Context, slug string, ev *event.Event) (*models.StalledMessage, error) {
	payload, err := json.Marshal(ev.Raw())
	if err != nil {
		return nil, apperrors.NewQueueError("encode toward-server payload", slug, err)
	}

	now := q.now()
	originated := ev.Time()
	if originated.IsZero() {
		originated = now
	}

	msg := &models.StalledMessage{
		TenantSlug:   slug,
		Direction:    models.DirectionTowardServer,
		Status:       models.QueueStatusPending,
		PhoneNumber:  ev.PhoneNumber,
		Payload:      payload,
		CreatedAt:    now,
		OriginatedAt: originated,
		AlteredAt:    now,
	}
	if err := q.insert(ctx, msg); err != nil {
		return nil, err
	}
	q.refreshPendingGauge(ctx, slug)
	return msg, nil
}

// EnqueueTowardDevice stores a batch of items returned by a server for the
// next device contact. An empty phone leaves the message untagged.
func (q *Queue) EnqueueTowardDevice(ctx context.Context, slug string, items []models.Item, phone string) (*models.StalledMessage, error) {
	if items == nil {
		items = []models.Item{}
	}
	payload, err := json.Marshal(items)
	if err != nil {
		return nil, apperrors.NewQueueError("encode toward-device payload", slug, err)
	}

	now := q.now()
	msg := &models.StalledMessage{
		TenantSlug:   slug,
		Direction:    models.DirectionTowardDevice,
		Status:       models.QueueStatusPending,
		PhoneNumber:  phone,
		Payload:      payload,
		CreatedAt:    now,
		OriginatedAt: now,
		AlteredAt:    now,
	}
	if err := q.insert(ctx, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// RecordReply enqueues items toward the device, or does nothing when there
// are none.
func (q *Queue) RecordReply(ctx context.Context, slug string, items []models.Item, phone string) (*models.StalledMessage, error) {
	if len(items) == 0 {
		return nil, nil
	}
	return q.EnqueueTowardDevice(ctx, slug, items, phone)
}

func (q *Queue) insert(ctx context.Context, msg *models.StalledMessage) error {
	if err := q.store.InsertStalledMessage(ctx, msg); err != nil {
		return apperrors.NewQueueError("enqueue", msg.TenantSlug, err).
			WithContext("direction", string(msg.Direction))
	}

	metrics.IncrementCounter(metrics.QueueEnqueuedTotal, map[string]string{"direction": string(msg.Direction)}, "Messages stored in the stalled queue")
	q.logger.WithFields(logrus.Fields{
		"tenant":       msg.TenantSlug,
		"message_id":   msg.ID,
		"direction":    msg.Direction,
		"phone_number": privacy.MaskPhoneNumber(msg.PhoneNumber),
	}).Info("Message queued")
	return nil
}

// DrainTowardDevice returns up to maxItems pending items for a device
// contact, oldest first. Untagged messages are always eligible; messages
// tagged with phone are eligible only when the tenant replies to the same
// phone. maxItems <= 0 uses the tenant's batch size.
func (q *Queue) DrainTowardDevice(ctx context.Context, tenant *models.Tenant, maxItems int, phone string) ([]models.Item, error) {
	if maxItems <= 0 {
		maxItems = tenant.MaxItems
	}
	if maxItems <= 0 {
		maxItems = constants.DefaultMaxItems
	}

	unlock := q.drains.Lock(tenant.Slug)
	defer unlock()

	messages, err := q.store.ListPendingTowardDevice(ctx, tenant.Slug, phone, tenant.ReplySamePhone)
	if err != nil {
		return nil, apperrors.NewQueueError("list toward-device", tenant.Slug, err)
	}
	if len(messages) == 0 {
		return nil, nil
	}

	sortForDrain(messages)
	plan := planDrain(messages, maxItems, q.now())
	for id, skipErr := range plan.skipped {
		q.logger.WithError(skipErr).WithFields(logrus.Fields{
			"tenant":     tenant.Slug,
			"message_id": id,
		}).Warn("Skipping undecodable queued message")
	}

	if err := q.store.ApplyDrain(ctx, plan.updates); err != nil {
		return nil, apperrors.NewQueueError("drain toward-device", tenant.Slug, err)
	}

	if len(plan.items) > 0 {
		metrics.AddToCounter(metrics.QueueDrainedItemsTotal, float64(len(plan.items)), nil, "Items delivered to devices from the stalled queue")
		q.logger.WithFields(logrus.Fields{
			"tenant":       tenant.Slug,
			"count":        len(plan.items),
			"messages":     len(plan.updates),
			"phone_number": privacy.MaskPhoneNumber(phone),
		}).Debug("Drained toward-device backlog")
	}
	return plan.items, nil
}

// HasPendingTowardServer is an indexed existence check.
func (q *Queue) HasPendingTowardServer(ctx context.Context, slug string) (bool, error) {
	pending, err := q.store.HasPending(ctx, slug, models.DirectionTowardServer)
	if err != nil {
		return false, apperrors.NewQueueError("check pending", slug, err)
	}
	return pending, nil
}

// PendingTowardServer lists the tenant's server-bound backlog, oldest first.
func (q *Queue) PendingTowardServer(ctx context.Context, slug string) ([]*models.StalledMessage, error) {
	messages, err := q.store.ListPending(ctx, slug, models.DirectionTowardServer)
	if err != nil {
		return nil, apperrors.NewQueueError("list toward-server", slug, err)
	}
	return messages, nil
}

// Get reloads a message; nil means it no longer exists.
func (q *Queue) Get(ctx context.Context, msg *models.StalledMessage) (*models.StalledMessage, error) {
	current, err := q.store.GetStalledMessage(ctx, msg.ID)
	if err != nil {
		return nil, apperrors.NewQueueError("load message", msg.TenantSlug, err).WithContext("message_id", msg.ID)
	}
	return current, nil
}

// MarkSent moves a message to sent. It never returns to pending.
func (q *Queue) MarkSent(ctx context.Context, msg *models.StalledMessage) error {
	now := q.now()
	if err := q.store.MarkSent(ctx, msg.ID, now); err != nil {
		return apperrors.NewQueueError("mark sent", msg.TenantSlug, err).WithContext("message_id", msg.ID)
	}
	msg.Status = models.QueueStatusSent
	msg.AlteredAt = now
	if msg.Direction == models.DirectionTowardServer {
		q.refreshPendingGauge(ctx, msg.TenantSlug)
	}
	return nil
}

// MarkAttempted records a failed delivery attempt; the message stays pending.
func (q *Queue) MarkAttempted(ctx context.Context, msg *models.StalledMessage) error {
	now := q.now()
	if err := q.store.Touch(ctx, msg.ID, now); err != nil {
		return apperrors.NewQueueError("record attempt", msg.TenantSlug, err).WithContext("message_id", msg.ID)
	}
	msg.AlteredAt = now
	return nil
}

// PendingTowardServerTenants lists tenants with server-bound backlog.
func (q *Queue) PendingTowardServerTenants(ctx context.Context) ([]string, error) {
	slugs, err := q.store.TenantsWithPending(ctx, models.DirectionTowardServer)
	if err != nil {
		return nil, apperrors.NewQueueError("list pending tenants", "", err)
	}
	return slugs, nil
}

func (q *Queue) refreshPendingGauge(ctx context.Context, slug string) {
	count, err := q.store.CountPending(ctx, slug, models.DirectionTowardServer)
	if err != nil {
		q.logger.WithError(err).WithField("tenant", slug).Debug("Failed to count pending messages")
		return
	}
	metrics.SetGauge(metrics.QueuePendingTowardServer, float64(count), map[string]string{"tenant": slug}, "Pending toward-server messages")
}
