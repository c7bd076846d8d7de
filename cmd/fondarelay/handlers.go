package main

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"fondarelay/internal/constants"
	apperrors "fondarelay/internal/errors"
	"fondarelay/internal/httputil"
	"fondarelay/internal/service"
	"fondarelay/internal/tracing"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// handleHome lists the configured tenants as plain text.
func (s *Server) handleHome() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenants, err := s.app.db.ListTenants(r.Context())
		if err != nil {
			s.writeError(w, r, apperrors.NewDatabaseError("list tenants", err))
			return
		}

		var b strings.Builder
		b.WriteString("Service is running OK.\n")
		for _, tenant := range tenants {
			fmt.Fprintf(&b, "%s:\t%s\n", tenant.Slug, tenant.Name)
		}

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(b.String()))
	}
}

func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.app.db.HealthCheck(r.Context()); err != nil {
			s.logger.WithError(err).Warn("Health check failed")
			_ = httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
		_ = httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": Version})
	}
}

// handleStatus reports the connectivity record of every known tenant.
func (s *Server) handleStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_ = httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
			"tenants": s.app.tracker.All(),
		})
	}
}

// handleDeviceEvent is the device-facing webhook. The device posts a form;
// the reply is always JSON, even when the tenant server is unreachable.
func (s *Server) handleDeviceEvent() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		slug := mux.Vars(r)["slug"]

		r.Body = http.MaxBytesReader(w, r.Body, constants.DefaultMaxRequestBodyBytes)
		if err := r.ParseForm(); err != nil {
			s.writeError(w, r, apperrors.NewValidationError("body", "", "must be a form-encoded payload"))
			return
		}

		doc, err := s.app.relay.HandleDeviceEvent(r.Context(), slug, formFields(r.PostForm))
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		_ = httputil.WriteJSON(w, http.StatusOK, doc)
	}
}

// formFields flattens a device form to one value per field. A repeated
// field keeps its last value.
func formFields(form url.Values) map[string]string {
	raw := make(map[string]string, len(form))
	for key, values := range form {
		if len(values) > 0 {
			raw[key] = values[len(values)-1]
		}
	}
	return raw
}

// handleSecondHop accepts device-bound events from a peer relay.
func (s *Server) handleSecondHop() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		slug := mux.Vars(r)["slug"]
		query := r.URL.Query()

		body, err := httputil.ReadBody(r, constants.DefaultMaxRequestBodyBytes)
		if err != nil {
			s.writeError(w, r, apperrors.NewValidationError("body", "", err.Error()))
			return
		}

		delivery, err := s.app.secondHop.Handle(r.Context(), slug, query.Get("secret"), query.Get("phone_number"), body)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		_ = httputil.WriteJSON(w, http.StatusAccepted, map[string]string{
			"status":   "accepted",
			"delivery": string(delivery),
		})
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	requestID := tracing.GetRequestID(r.Context())
	status := apperrors.HTTPStatusCode(err)

	entry := s.logger.WithFields(logrus.Fields{
		service.LogFieldRequestID:  requestID,
		service.LogFieldURL:        r.URL.Path,
		service.LogFieldStatusCode: status,
	})
	if status >= http.StatusInternalServerError {
		apperrors.LogError(entry, err, "Request failed")
	} else {
		apperrors.LogWarn(entry, err, "Request rejected")
	}

	_ = httputil.WriteJSON(w, status, apperrors.ToHTTPResponse(err, requestID))
}
