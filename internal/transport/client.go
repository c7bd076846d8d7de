// Package transport is the outbound send capability: HTTP posts to tenant
// servers and upstream relays with a per-call timeout.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	apperrors "fondarelay/internal/errors"
	"fondarelay/internal/metrics"
	"fondarelay/internal/privacy"
	"fondarelay/internal/tracing"
)

const (
	contentTypeForm = "application/x-www-form-urlencoded"
	contentTypeJSON = "application/json"
	userAgent       = "fondarelay/1.0"
	maxResponseSize = 1 << 20
)

// Response is a successful (2xx) reply.
type Response struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

// Sender posts payloads to a remote endpoint. Any transport error, timeout
// or non-2xx status is returned as a TRANSPORT AppError.
type Sender interface {
	PostForm(ctx context.Context, target string, form map[string]string, timeout time.Duration) (*Response, error)
	PostJSON(ctx context.Context, target string, body interface{}, timeout time.Duration) (*Response, error)
}

type Client struct {
	client *http.Client
	logger *logrus.Logger
}

// NewClient uses http.DefaultTransport when httpClient is nil. Timeouts are
// applied per call through the request context.
func NewClient(httpClient *http.Client, logger *logrus.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.WarnLevel)
	}
	return &Client{client: httpClient, logger: logger}
}

func (c *Client) PostForm(ctx context.Context, target string, form map[string]string, timeout time.Duration) (*Response, error) {
	values := url.Values{}
	for k, v := range form {
		values.Set(k, v)
	}
	return c.post(ctx, target, contentTypeForm, []byte(values.Encode()), timeout)
}

func (c *Client) PostJSON(ctx context.Context, target string, body interface{}, timeout time.Duration) (*Response, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	return c.post(ctx, target, contentTypeJSON, data, timeout)
}

func (c *Client) post(ctx context.Context, target, contentType string, body []byte, timeout time.Duration) (*Response, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	ctx, span := tracing.StartSpan(ctx, "transport.post")
	defer span.End()

	start := time.Now()
	defer func() {
		metrics.RecordTimer(metrics.RelaySendDuration, time.Since(start), nil, "Outbound send latency")
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return nil, apperrors.NewTransportError(privacy.MaskURL(target), 0, err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("User-Agent", userAgent)
	if requestID := tracing.GetRequestID(ctx); requestID != "" {
		req.Header.Set("X-Request-ID", requestID)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	c.logger.WithFields(logrus.Fields{
		"url":          privacy.MaskURL(target),
		"content_type": contentType,
		"timeout_ms":   timeout.Milliseconds(),
	}).Debug("Sending outbound request")

	resp, err := c.client.Do(req)
	if err != nil {
		tracing.RecordError(ctx, err)
		return nil, apperrors.NewTransportError(privacy.MaskURL(target), 0, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		tracing.RecordError(ctx, err)
		return nil, apperrors.NewTransportError(privacy.MaskURL(target), resp.StatusCode, fmt.Errorf("failed to read response body: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		statusErr := fmt.Errorf("unexpected status %d", resp.StatusCode)
		tracing.RecordError(ctx, statusErr)
		return nil, apperrors.NewTransportError(privacy.MaskURL(target), resp.StatusCode, statusErr)
	}

	return &Response{
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        respBody,
	}, nil
}
