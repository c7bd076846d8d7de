package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"fondarelay/internal/connectivity"
	apperrors "fondarelay/internal/errors"
	"fondarelay/internal/event"
	"fondarelay/internal/metrics"
	"fondarelay/internal/models"
	"fondarelay/internal/queue"
	"fondarelay/internal/tracing"
	"fondarelay/internal/transport"
)

// ErrUndecodablePayload marks a queued message that can never be resent.
var ErrUndecodablePayload = errors.New("queued payload cannot be decoded")

// Reconciler retries server-bound backlog one message at a time, oldest
// first, and queues whatever the server replies for the devices. Work on
// one tenant is serialized; different tenants run concurrently.
type Reconciler struct {
	tenants TenantStore
	queue   *queue.Queue
	tracker *connectivity.Tracker
	sender  transport.Sender
	locks   *queue.TenantLocks
	logger  *logrus.Logger
}

// SweepResult summarizes one sweep.
type SweepResult struct {
	RunID   string         `json:"run_id"`
	Tenants int            `json:"tenants"`
	Sent    map[string]int `json:"sent"`
	Failed  []string       `json:"failed,omitempty"`
}

// PingResult is the outcome of an on-demand ping.
type PingResult struct {
	Tenant         string              `json:"tenant"`
	Status         connectivity.Status `json:"status"`
	AlreadyWorking bool                `json:"already_working"`
	Sent           int                 `json:"sent"`
}

func NewReconciler(tenants TenantStore, q *queue.Queue, tracker *connectivity.Tracker, sender transport.Sender, logger *logrus.Logger) *Reconciler {
	if logger == nil {
		logger = logrus.New()
	}
	return &Reconciler{
		tenants: tenants,
		queue:   q,
		tracker: tracker,
		sender:  sender,
		locks:   queue.NewTenantLocks(),
		logger:  logger,
	}
}

// Sweep makes one pass over every tenant with pending server-bound messages.
func (r *Reconciler) Sweep(ctx context.Context) (*SweepResult, error) {
	result := &SweepResult{RunID: uuid.NewString(), Sent: map[string]int{}}
	log := r.logger.WithField(LogFieldRunID, result.RunID)

	ctx, span := tracing.StartSpan(ctx, "reconcile.sweep")
	defer span.End()

	slugs, err := r.queue.PendingTowardServerTenants(ctx)
	if err != nil {
		apperrors.LogError(log, err, "Failed to list tenants with pending messages")
		return nil, err
	}
	result.Tenants = len(slugs)
	if len(slugs) == 0 {
		return result, nil
	}

	log.WithField(LogFieldCount, len(slugs)).Info("Starting reconcile sweep")

	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, slug := range slugs {
		wg.Add(1)
		go func(slug string) {
			defer wg.Done()

			tenant, err := loadTenant(ctx, r.tenants, slug)
			if err == nil {
				var sent int
				sent, err = r.drainTenant(ctx, tenant)
				mu.Lock()
				result.Sent[slug] = sent
				mu.Unlock()
			}
			if err != nil {
				apperrors.LogError(log, err, "Failed to reconcile tenant", logrus.Fields{LogFieldTenant: slug})
				mu.Lock()
				result.Failed = append(result.Failed, slug)
				mu.Unlock()
			}
		}(slug)
	}
	wg.Wait()

	log.WithFields(logrus.Fields{
		LogFieldCount: len(slugs),
		"failed":      len(result.Failed),
	}).Info("Completed reconcile sweep")
	return result, nil
}

// Ping probes a tenant unless it is already known to be working. When the
// probe succeeds the tenant's whole server-bound backlog is retried.
func (r *Reconciler) Ping(ctx context.Context, slug string) (*PingResult, error) {
	tenant, err := loadTenant(ctx, r.tenants, slug)
	if err != nil {
		return nil, err
	}

	result := &PingResult{Tenant: tenant.Slug}
	if r.tracker.IsWorking(tenant.Slug) {
		result.Status = connectivity.StatusWorking
		result.AlreadyWorking = true
		return result, nil
	}

	result.Status = r.tracker.Probe(ctx, tenant, r.sender)
	if result.Status != connectivity.StatusWorking {
		return result, nil
	}

	result.Sent, err = r.drainTenant(ctx, tenant)
	return result, err
}

// drainTenant retries the tenant's pending messages oldest first until the
// backlog is exhausted or a send fails. Undecodable messages are skipped.
func (r *Reconciler) drainTenant(ctx context.Context, tenant *models.Tenant) (int, error) {
	unlock := r.locks.Lock(tenant.Slug)
	defer unlock()

	pending, err := r.queue.PendingTowardServer(ctx, tenant.Slug)
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, msg := range pending {
		if err := ctx.Err(); err != nil {
			return sent, err
		}

		// The ping command runs in its own process and may have delivered it.
		current, err := r.queue.Get(ctx, msg)
		if err != nil {
			return sent, err
		}
		if current == nil || !current.IsPending() {
			continue
		}

		delivered, err := r.RetryOne(ctx, tenant, current)
		if errors.Is(err, ErrUndecodablePayload) {
			continue
		}
		if delivered {
			sent++
		}
		if err != nil || !delivered {
			return sent, err
		}
	}
	return sent, nil
}

// RetryOne resends a single queued server-bound message. It reports
// whether the message was delivered. A failed send records the attempt
// and leaves the message pending; the reply is not parsed in that case.
// A payload that cannot be decoded yields ErrUndecodablePayload.
func (r *Reconciler) RetryOne(ctx context.Context, tenant *models.Tenant, msg *models.StalledMessage) (bool, error) {
	log := r.logger.WithFields(logrus.Fields{
		LogFieldTenant:    tenant.Slug,
		LogFieldMessageID: msg.ID,
	})

	raw, err := msg.Event()
	if err != nil {
		metrics.IncrementCounter(metrics.ReconcileSkippedTotal, map[string]string{"tenant": tenant.Slug}, "Queued messages skipped because their payload cannot be decoded")
		apperrors.LogError(log, err, "Skipping undecodable queued event")
		if markErr := r.queue.MarkAttempted(ctx, msg); markErr != nil {
			return false, markErr
		}
		return false, fmt.Errorf("%w: %v", ErrUndecodablePayload, err)
	}

	resp, sendErr := r.sender.PostForm(ctx, tenant.URL, raw, tenant.Timeout())
	if sendErr != nil {
		r.tracker.Update(tenant.Slug, connectivity.StatusNotWorking)
		metrics.IncrementCounter(metrics.ReconcileFailuresTotal, map[string]string{"tenant": tenant.Slug}, "Failed retries of queued messages")
		apperrors.LogRetryableError(log, sendErr, "Failed to retry queued message")
		if err := r.queue.MarkAttempted(ctx, msg); err != nil {
			return false, err
		}
		return false, nil
	}

	if err := r.queue.MarkSent(ctx, msg); err != nil {
		return false, err
	}
	r.tracker.Update(tenant.Slug, connectivity.StatusWorking)
	metrics.IncrementCounter(metrics.ReconcileSentTotal, map[string]string{"tenant": tenant.Slug}, "Queued messages delivered on retry")

	reply, err := event.ParseReply(resp.Body)
	if err != nil {
		log.WithError(err).Debug("Skipping reply: not a structured server reply")
		return true, nil
	}
	if _, err := r.queue.RecordReply(ctx, tenant.Slug, reply.Messages, reply.PhoneNumber); err != nil {
		return true, err
	}

	log.WithField(LogFieldCount, len(reply.Messages)).Info("Delivered queued message")
	return true, nil
}
