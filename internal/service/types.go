package service

import (
	"context"

	"fondarelay/internal/models"
)

// TenantStore is read access to the configured tenants.
type TenantStore interface {
	GetTenant(ctx context.Context, slug string) (*models.Tenant, error)
	ListTenants(ctx context.Context) ([]*models.Tenant, error)
}
