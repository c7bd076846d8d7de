package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	apperrors "fondarelay/internal/errors"
	"fondarelay/internal/models"
	"fondarelay/internal/security"
	"fondarelay/internal/validation"

	"gopkg.in/yaml.v3"
)

// TenantsFile is the administrator-maintained tenant list:
//
//	tenants:
//	  - slug: acme
//	    name: Acme
//	    url: https://acme.example/sms
//	    permissions: {sms: true, outgoing: true}
type TenantsFile struct {
	Tenants []*models.Tenant `yaml:"tenants"`
}

// LoadTenantsFile reads and validates a tenants YAML file. Unset timeouts
// and batch sizes take the given defaults. Relay secrets written as
// ${VAR} are read from the environment.
func LoadTenantsFile(path string, defaultTimeoutSec, defaultMaxItems int) ([]*models.Tenant, error) {
	if err := security.ValidateFilePath(path); err != nil {
		return nil, fmt.Errorf("invalid tenants path: %w", err)
	}

	data, err := os.ReadFile(path) // #nosec G304 - Path validated by security.ValidateFilePath above
	if err != nil {
		return nil, err
	}
	return ParseTenants(data, defaultTimeoutSec, defaultMaxItems)
}

// ParseTenants decodes and validates tenants from YAML. Unknown keys are
// rejected so that typos in permission names do not silently disable a
// category.
func ParseTenants(data []byte, defaultTimeoutSec, defaultMaxItems int) ([]*models.Tenant, error) {
	var file TenantsFile
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse tenants file: %w", err)
	}

	seen := make(map[string]bool, len(file.Tenants))
	for i, tenant := range file.Tenants {
		if tenant == nil {
			return nil, fmt.Errorf("tenant %d is empty", i)
		}
		if tenant.TimeoutSec == 0 {
			tenant.TimeoutSec = float64(defaultTimeoutSec)
		}
		if tenant.MaxItems == 0 {
			tenant.MaxItems = defaultMaxItems
		}
		tenant.UpstreamRelaySecret = os.ExpandEnv(tenant.UpstreamRelaySecret)

		if err := validation.ValidateTenant(tenant); err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrCodeInvalidConfig, fmt.Sprintf("invalid tenant %d", i))
		}
		if seen[tenant.Slug] {
			return nil, apperrors.NewConfigError("tenants", fmt.Sprintf("duplicate tenant slug: %s", tenant.Slug))
		}
		seen[tenant.Slug] = true
	}
	return file.Tenants, nil
}
