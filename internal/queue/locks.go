package queue

import "sync"

// TenantLocks hands out one mutex per tenant slug. Work for different
// tenants never contends.
type TenantLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewTenantLocks() *TenantLocks {
	return &TenantLocks{locks: make(map[string]*sync.Mutex)}
}

// Lock blocks until the tenant's mutex is held and returns its unlock func.
func (l *TenantLocks) Lock(slug string) func() {
	l.mu.Lock()
	m, ok := l.locks[slug]
	if !ok {
		m = &sync.Mutex{}
		l.locks[slug] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}
