package service

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"fondarelay/internal/connectivity"
	apperrors "fondarelay/internal/errors"
	"fondarelay/internal/event"
	"fondarelay/internal/metrics"
	"fondarelay/internal/models"
	"fondarelay/internal/policy"
	"fondarelay/internal/queue"
	"fondarelay/internal/tracing"
	"fondarelay/internal/transport"
)

// Relay handles one device contact end to end: classify, decide, send,
// fall back to the queue, and answer with the device-bound backlog.
type Relay struct {
	tenants TenantStore
	queue   *queue.Queue
	tracker *connectivity.Tracker
	sender  transport.Sender
	logger  *logrus.Logger
}

func NewRelay(tenants TenantStore, q *queue.Queue, tracker *connectivity.Tracker, sender transport.Sender, logger *logrus.Logger) *Relay {
	if logger == nil {
		logger = logrus.New()
	}
	return &Relay{
		tenants: tenants,
		queue:   q,
		tracker: tracker,
		sender:  sender,
		logger:  logger,
	}
}

// HandleDeviceEvent returns the JSON document for the device. Transport
// failures toward the tenant server are absorbed into the queue; only an
// unknown tenant or a persistence failure is returned as an error.
func (r *Relay) HandleDeviceEvent(ctx context.Context, slug string, raw map[string]string) (map[string]interface{}, error) {
	ctx, span := tracing.StartSpan(ctx, "relay.device_event", tracing.AttrTenant.String(slug))
	defer span.End()

	tenant, err := loadTenant(ctx, r.tenants, slug)
	if err != nil {
		tracing.RecordError(ctx, err)
		return nil, err
	}

	ev := event.Classify(raw)
	autoReply, hasAutoReply := event.AutomaticReply(tenant, ev)

	pending, err := r.queue.HasPendingTowardServer(ctx, tenant.Slug)
	if err != nil {
		tracing.RecordError(ctx, err)
		return nil, err
	}

	decision := policy.Decide(tenant, ev, r.tracker, pending)
	metrics.IncrementCounter(metrics.RelayEventsTotal, map[string]string{"decision": string(decision)}, "Device events by forwarding decision")
	tracing.AddSpanAttributes(ctx, tracing.AttrAction.String(ev.Action), tracing.AttrDecision.String(string(decision)))

	log := LogWithContext(ctx, r.logger).WithFields(logrus.Fields{
		LogFieldTenant:      tenant.Slug,
		LogFieldAction:      ev.Action,
		LogFieldDecision:    decision,
		LogFieldPhoneNumber: LogPhone(ctx, ev.PhoneNumber),
	})

	if decision == policy.Suppress {
		log.Debug("Skipping forward: suppressed by policy")
		return r.standaloneResponse(ctx, tenant, ev, autoReply, hasAutoReply)
	}

	start := time.Now()
	resp, sendErr := r.sender.PostForm(ctx, tenant.URL, ev.Raw(), tenant.Timeout())
	log = log.WithField(LogFieldDuration, time.Since(start).Milliseconds())

	if sendErr != nil {
		r.tracker.Update(tenant.Slug, connectivity.StatusNotWorking)
		metrics.IncrementCounter(metrics.RelaySendFailuresTotal, map[string]string{"tenant": tenant.Slug}, "Failed sends to tenant servers")
		apperrors.LogRetryableError(log, sendErr, "Failed to forward device event, queueing locally")

		if ev.IsOutgoing() && pending {
			log.Debug("Skipping enqueue: outgoing backlog already stalled")
		} else if _, err := r.queue.EnqueueTowardServer(ctx, tenant.Slug, ev); err != nil {
			apperrors.LogError(log, err, "Failed to queue device event")
			tracing.RecordError(ctx, err)
			return nil, err
		}
		return r.standaloneResponse(ctx, tenant, ev, autoReply, hasAutoReply)
	}

	r.tracker.Update(tenant.Slug, connectivity.StatusWorking)

	backlog, err := r.backlog(ctx, tenant, ev, autoReply, hasAutoReply)
	if err != nil {
		return nil, err
	}

	merged, err := event.MergeResponse(resp.Body, backlog)
	if err != nil {
		log.WithError(apperrors.NewMalformedReplyError("unmergeable server reply", err)).
			Debug("Server reply not mergeable, returning backlog only")
		return event.BuildResponse(backlog, ev.PhoneNumber), nil
	}

	log.WithField(LogFieldCount, len(backlog)).Info("Forwarded device event")
	return merged, nil
}

func (r *Relay) standaloneResponse(ctx context.Context, tenant *models.Tenant, ev *event.Event, autoReply models.Item, hasAutoReply bool) (map[string]interface{}, error) {
	backlog, err := r.backlog(ctx, tenant, ev, autoReply, hasAutoReply)
	if err != nil {
		return nil, err
	}
	return event.BuildResponse(backlog, ev.PhoneNumber), nil
}

// backlog drains the device-bound queue for the contacting phone and
// appends the automatic reply, if any, after the queued items.
func (r *Relay) backlog(ctx context.Context, tenant *models.Tenant, ev *event.Event, autoReply models.Item, hasAutoReply bool) ([]models.Item, error) {
	items, err := r.queue.DrainTowardDevice(ctx, tenant, 0, ev.PhoneNumber)
	if err != nil {
		tracing.RecordError(ctx, err)
		return nil, err
	}
	if hasAutoReply {
		items = append(items, autoReply)
	}
	tracing.AddSpanAttributes(ctx, tracing.AttrItems.Int(len(items)))
	return items, nil
}
