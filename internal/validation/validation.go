package validation

import (
	"fmt"
	"net/url"
	"strings"
	"unicode"

	"fondarelay/internal/constants"
	"fondarelay/internal/errors"
	"fondarelay/internal/models"
)

// ValidateSlug checks a tenant slug: letters, digits, underscore, dash and dot.
func ValidateSlug(slug string) error {
	if slug == "" {
		return errors.NewValidationError("slug", slug, "cannot be empty")
	}
	if len(slug) > constants.MaxSlugLength {
		return errors.NewValidationError("slug", slug,
			fmt.Sprintf("too long (max %d characters)", constants.MaxSlugLength))
	}
	for _, char := range slug {
		if !unicode.IsLetter(char) && !unicode.IsDigit(char) && char != '_' && char != '-' && char != '.' {
			return errors.NewValidationError("slug", slug,
				"must contain only letters, numbers, underscores, dashes and dots")
		}
	}
	return nil
}

// ValidatePhoneNumber validates phone number format and length
func ValidatePhoneNumber(phone string) error {
	if phone == "" {
		return errors.NewValidationError("phone_number", phone, "cannot be empty")
	}

	cleaned := strings.TrimPrefix(phone, "+")
	if len(cleaned) < constants.MinPhoneNumberLength {
		return errors.NewValidationError("phone_number", phone,
			fmt.Sprintf("must be at least %d digits", constants.MinPhoneNumberLength))
	}
	if len(cleaned) > constants.MaxPhoneNumberLength {
		return errors.NewValidationError("phone_number", phone,
			fmt.Sprintf("too long (max %d digits)", constants.MaxPhoneNumberLength))
	}
	for _, char := range cleaned {
		if !unicode.IsDigit(char) {
			return errors.NewValidationError("phone_number", phone, "must contain only digits")
		}
	}
	return nil
}

// ValidateServerURL requires an absolute http(s) URL with a host.
func ValidateServerURL(field, raw string) error {
	if raw == "" {
		return errors.NewValidationError(field, raw, "cannot be empty")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return errors.NewValidationError(field, raw, "is not a valid URL")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.NewValidationError(field, raw, "must use http or https")
	}
	if u.Host == "" {
		return errors.NewValidationError(field, raw, "must include a host")
	}
	return nil
}

// ValidateTenant checks the administrator-provided tenant record.
func ValidateTenant(t *models.Tenant) error {
	if err := ValidateSlug(t.Slug); err != nil {
		return err
	}
	if t.Name == "" {
		return errors.NewValidationError("name", t.Name, "cannot be empty")
	}
	if len(t.Name) > constants.MaxTenantNameLength {
		return errors.NewValidationError("name", t.Name,
			fmt.Sprintf("too long (max %d characters)", constants.MaxTenantNameLength))
	}
	if err := ValidateServerURL("url", t.URL); err != nil {
		return err
	}
	if t.TimeoutSec < 0 {
		return errors.NewValidationError("timeout_sec", fmt.Sprint(t.TimeoutSec), "cannot be negative")
	}
	if t.MaxItems < 0 {
		return errors.NewValidationError("max_items", fmt.Sprint(t.MaxItems), "cannot be negative")
	}
	if t.UpstreamRelayURL != "" {
		if err := ValidateServerURL("upstream_relay_url", t.UpstreamRelayURL); err != nil {
			return err
		}
	}
	return nil
}
