// Package connectivity tracks, per tenant, whether the tenant server was
// last seen reachable.
package connectivity

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"fondarelay/internal/event"
	"fondarelay/internal/metrics"
	"fondarelay/internal/models"
	"fondarelay/internal/transport"
)

// Status is the reachability of one tenant server.
type Status string

const (
	StatusUnknown    Status = "unknown"
	StatusWorking    Status = "working"
	StatusNotWorking Status = "not-working"
)

// Record is a snapshot of one tenant's state. LastUpdate is never before
// LastChange.
type Record struct {
	Status     Status    `json:"status"`
	LastChange time.Time `json:"last_change"`
	LastUpdate time.Time `json:"last_update"`
}

// Tracker owns the in-memory record of every tenant. Records are created
// lazily in the unknown state and live for the whole process.
type Tracker struct {
	mu      sync.RWMutex
	records map[string]*Record
	now     func() time.Time
	logger  *logrus.Logger
}

func NewTracker(logger *logrus.Logger) *Tracker {
	if logger == nil {
		logger = logrus.New()
	}
	return &Tracker{
		records: make(map[string]*Record),
		now:     time.Now,
		logger:  logger,
	}
}

// Init registers tenants in the unknown state. Existing records are kept.
func (t *Tracker) Init(slugs ...string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	for _, slug := range slugs {
		if _, ok := t.records[slug]; !ok {
			t.records[slug] = &Record{Status: StatusUnknown, LastChange: now, LastUpdate: now}
		}
	}
}

// Update records the outcome of a contact with the tenant server.
// LastChange only moves when the status actually changes.
func (t *Tracker) Update(slug string, status Status) {
	t.mu.Lock()
	now := t.now()
	rec, ok := t.records[slug]
	if !ok {
		rec = &Record{Status: StatusUnknown, LastChange: now}
		t.records[slug] = rec
	}
	previous := rec.Status
	if status != previous {
		rec.Status = status
		rec.LastChange = now
	}
	rec.LastUpdate = now
	t.mu.Unlock()

	working := 0.0
	if status == StatusWorking {
		working = 1
	}
	metrics.SetGauge(metrics.TenantServerWorking, working, map[string]string{"tenant": slug}, "Whether the tenant server was last seen reachable")

	if status != previous {
		t.logger.WithFields(logrus.Fields{
			"tenant": slug,
			"from":   previous,
			"to":     status,
		}).Info("Tenant connectivity changed")
	}
}

// Probe sends the synthetic test payload to the tenant server and records
// the result.
func (t *Tracker) Probe(ctx context.Context, tenant *models.Tenant, sender transport.Sender) Status {
	status := StatusWorking
	if _, err := sender.PostForm(ctx, tenant.URL, event.TestPayload(t.now()), tenant.Timeout()); err != nil {
		t.logger.WithError(err).WithField("tenant", tenant.Slug).Warn("Connectivity probe failed")
		status = StatusNotWorking
	}
	t.Update(tenant.Slug, status)
	return status
}

// ProbeAll probes every tenant concurrently and waits for all of them.
func (t *Tracker) ProbeAll(ctx context.Context, tenants []*models.Tenant, sender transport.Sender) map[string]Status {
	results := make(map[string]Status, len(tenants))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, tenant := range tenants {
		wg.Add(1)
		go func(tenant *models.Tenant) {
			defer wg.Done()
			status := t.Probe(ctx, tenant, sender)
			mu.Lock()
			results[tenant.Slug] = status
			mu.Unlock()
		}(tenant)
	}
	wg.Wait()
	return results
}

// Status returns unknown for tenants never seen.
func (t *Tracker) Status(slug string) Status {
	return t.Snapshot(slug).Status
}

func (t *Tracker) IsWorking(slug string) bool {
	return t.Status(slug) == StatusWorking
}

// DurationSinceChange is zero for tenants never seen.
func (t *Tracker) DurationSinceChange(slug string) time.Duration {
	rec := t.Snapshot(slug)
	if rec.LastChange.IsZero() {
		return 0
	}
	return t.now().Sub(rec.LastChange)
}

// Snapshot returns a copy of the tenant record.
func (t *Tracker) Snapshot(slug string) Record {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if rec, ok := t.records[slug]; ok {
		return *rec
	}
	return Record{Status: StatusUnknown}
}

// All returns a copy of every record keyed by slug.
func (t *Tracker) All() map[string]Record {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make(map[string]Record, len(t.records))
	for slug, rec := range t.records {
		out[slug] = *rec
	}
	return out
}
