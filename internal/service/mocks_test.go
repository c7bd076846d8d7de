package service

import (
	"context"
	"encoding/json"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"fondarelay/internal/connectivity"
	"fondarelay/internal/database"
	"fondarelay/internal/models"
	"fondarelay/internal/queue"
	"fondarelay/internal/transport"
)

type mockSender struct {
	mock.Mock
}

func (m *mockSender) PostForm(ctx context.Context, target string, form map[string]string, timeout time.Duration) (*transport.Response, error) {
	args := m.Called(ctx, target, form, timeout)
	if resp := args.Get(0); resp != nil {
		return resp.(*transport.Response), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockSender) PostJSON(ctx context.Context, target string, body interface{}, timeout time.Duration) (*transport.Response, error) {
	args := m.Called(ctx, target, body, timeout)
	if resp := args.Get(0); resp != nil {
		return resp.(*transport.Response), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockTenantStore struct {
	mock.Mock
}

func (m *mockTenantStore) GetTenant(ctx context.Context, slug string) (*models.Tenant, error) {
	args := m.Called(ctx, slug)
	if tenant := args.Get(0); tenant != nil {
		return tenant.(*models.Tenant), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockTenantStore) ListTenants(ctx context.Context) ([]*models.Tenant, error) {
	args := m.Called(ctx)
	if tenants := args.Get(0); tenants != nil {
		return tenants.([]*models.Tenant), args.Error(1)
	}
	return nil, args.Error(1)
}

type fakeSweeper struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeSweeper) Sweep(ctx context.Context) (*SweepResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &SweepResult{RunID: "run-test", Sent: map[string]int{}}, nil
}

func (f *fakeSweeper) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// harness wires the relay components against a temporary SQLite database.
type harness struct {
	db      *database.Database
	queue   *queue.Queue
	tracker *connectivity.Tracker
	sender  *mockSender
}

func newHarness(t *testing.T, tenants ...*models.Tenant) *harness {
	t.Helper()
	db, err := database.New(filepath.Join(t.TempDir(), "relay.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	for _, tenant := range tenants {
		require.NoError(t, db.SaveTenant(context.Background(), tenant))
	}

	logger := quietLogger()
	return &harness{
		db:      db,
		queue:   queue.New(db, logger),
		tracker: connectivity.NewTracker(logger),
		sender:  &mockSender{},
	}
}

func (h *harness) relay() *Relay {
	return NewRelay(h.db, h.queue, h.tracker, h.sender, quietLogger())
}

func (h *harness) reconciler() *Reconciler {
	return NewReconciler(h.db, h.queue, h.tracker, h.sender, quietLogger())
}

func (h *harness) secondHop(stripPrefix string) *SecondHop {
	return NewSecondHop(h.db, h.queue, h.sender, stripPrefix, quietLogger())
}

func newTenant(slug string) *models.Tenant {
	return &models.Tenant{
		Slug:       slug,
		Name:       "Tenant " + slug,
		URL:        "http://server.example/" + slug,
		TimeoutSec: 2,
		MaxItems:   10,
	}
}

func jsonResponse(body string) *transport.Response {
	return &transport.Response{StatusCode: 200, ContentType: "application/json", Body: []byte(body)}
}

// deviceResponse is the decoded shape of a device-facing reply.
type deviceResponse struct {
	Events []struct {
		Event    string                   `json:"event"`
		Messages []map[string]interface{} `json:"messages"`
	} `json:"events"`
	PhoneNumber *string `json:"phone_number"`
}

func decodeResponse(t *testing.T, doc map[string]interface{}) deviceResponse {
	t.Helper()
	data, err := json.Marshal(doc)
	require.NoError(t, err)
	var out deviceResponse
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}
