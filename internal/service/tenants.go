package service

import (
	"context"

	apperrors "fondarelay/internal/errors"
	"fondarelay/internal/models"
)

// loadTenant resolves a slug to its tenant or a TENANT_NOT_FOUND error.
func loadTenant(ctx context.Context, store TenantStore, slug string) (*models.Tenant, error) {
	tenant, err := store.GetTenant(ctx, slug)
	if err != nil {
		return nil, apperrors.NewDatabaseError("load tenant", err).WithContext("tenant", slug)
	}
	if tenant == nil {
		return nil, apperrors.NewTenantNotFound(slug)
	}
	return tenant, nil
}
