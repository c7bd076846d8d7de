package service

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"

	apperrors "fondarelay/internal/errors"
	"fondarelay/internal/event"
	"fondarelay/internal/metrics"
	"fondarelay/internal/models"
	"fondarelay/internal/privacy"
	"fondarelay/internal/queue"
	"fondarelay/internal/security"
	"fondarelay/internal/tracing"
	"fondarelay/internal/transport"
	"fondarelay/internal/validation"
)

// Delivery is how a second-hop payload was handled.
type Delivery string

const (
	DeliveryDelivered Delivery = "delivered"
	DeliveryCached    Delivery = "cached"
)

// SecondHop accepts device-bound events from a peer relay. Events go on to
// the tenant's upstream relay when one is configured and reachable, and are
// otherwise cached for the next device contact.
type SecondHop struct {
	tenants     TenantStore
	queue       *queue.Queue
	sender      transport.Sender
	stripPrefix string
	logger      *logrus.Logger
}

func NewSecondHop(tenants TenantStore, q *queue.Queue, sender transport.Sender, stripPrefix string, logger *logrus.Logger) *SecondHop {
	if logger == nil {
		logger = logrus.New()
	}
	return &SecondHop{
		tenants:     tenants,
		queue:       q,
		sender:      sender,
		stripPrefix: stripPrefix,
		logger:      logger,
	}
}

// NormalizePhone strips a leading "+" and then the configured country prefix.
func (s *SecondHop) NormalizePhone(phone string) string {
	phone = strings.TrimSpace(phone)
	phone = strings.TrimPrefix(phone, "+")
	if s.stripPrefix != "" {
		phone = strings.TrimPrefix(phone, s.stripPrefix)
	}
	return phone
}

// Handle authenticates the caller and forwards or caches the payload.
func (s *SecondHop) Handle(ctx context.Context, slug, secret, phone string, body []byte) (Delivery, error) {
	ctx, span := tracing.StartSpan(ctx, "relay.second_hop", tracing.AttrTenant.String(slug))
	defer span.End()

	tenant, err := loadTenant(ctx, s.tenants, slug)
	if err != nil {
		return "", err
	}
	if !security.SecretsEqual(tenant.UpstreamRelaySecret, secret) {
		metrics.IncrementCounter(metrics.SecondHopTotal, map[string]string{"result": "forbidden"}, "Second-hop requests by result")
		return "", apperrors.NewForbidden(tenant.Slug)
	}

	items, err := event.CollectMessages(body)
	if err != nil {
		return "", apperrors.NewValidationError("body", "", "body must be a JSON object whose events are send events carrying message objects")
	}

	phone = s.NormalizePhone(phone)
	if phone != "" {
		if err := validation.ValidatePhoneNumber(phone); err != nil {
			return "", err
		}
	}
	log := LogWithContext(ctx, s.logger).WithFields(logrus.Fields{
		LogFieldTenant:      tenant.Slug,
		LogFieldPhoneNumber: LogPhone(ctx, phone),
		LogFieldCount:       len(items),
	})

	if tenant.HasUpstreamRelay() {
		if err := s.forward(ctx, tenant, phone, body); err != nil {
			apperrors.LogRetryableError(log, err, "Failed to reach upstream relay, caching events",
				logrus.Fields(privacy.MaskSensitiveFields(map[string]interface{}{
					"upstream_relay_url":    tenant.UpstreamRelayURL,
					"upstream_relay_secret": tenant.UpstreamRelaySecret,
				})))
		} else {
			metrics.IncrementCounter(metrics.SecondHopTotal, map[string]string{"result": string(DeliveryDelivered)}, "Second-hop requests by result")
			log.WithField(LogFieldDelivery, DeliveryDelivered).Info("Forwarded events to upstream relay")
			return DeliveryDelivered, nil
		}
	}

	// Nothing is written for a document without messages.
	if _, err := s.queue.RecordReply(ctx, tenant.Slug, items, phone); err != nil {
		apperrors.LogError(log, err, "Failed to cache second-hop events")
		return "", err
	}
	metrics.IncrementCounter(metrics.SecondHopTotal, map[string]string{"result": string(DeliveryCached)}, "Second-hop requests by result")
	log.WithField(LogFieldDelivery, DeliveryCached).Info("Cached second-hop events")
	return DeliveryCached, nil
}

func (s *SecondHop) forward(ctx context.Context, tenant *models.Tenant, phone string, body []byte) error {
	target, err := url.Parse(tenant.UpstreamRelayURL)
	if err != nil {
		return apperrors.NewTransportError(tenant.UpstreamRelayURL, 0, err)
	}
	query := target.Query()
	query.Set("secret", tenant.UpstreamRelaySecret)
	if phone != "" {
		query.Set("phone_number", phone)
	}
	target.RawQuery = query.Encode()

	_, err = s.sender.PostJSON(ctx, target.String(), json.RawMessage(body), tenant.Timeout())
	return err
}
