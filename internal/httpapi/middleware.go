// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Trailhead Contributors

package httpapi

import (
	"net/http"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/oops"

	"github.com/trailhead/trailhead/internal/auth"
)

// Metrics counts HTTP requests by route pattern and status.
type Metrics struct {
	Requests *prometheus.CounterVec
}

// NewMetrics creates and registers HTTP metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trailhead_http_requests_total",
				Help: "Total number of HTTP requests by route and status",
			},
			[]string{"route", "status"},
		),
	}
	reg.MustRegister(m.Requests)
	return m
}

// logRequests logs each request once it completes and records its metric.
func (a *api) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		if a.metrics != nil {
			a.metrics.Requests.WithLabelValues(route, strconv.Itoa(status)).Inc()
		}
		a.logger.InfoContext(r.Context(), "http request",
			"method", r.Method,
			"route", route,
			"status", status,
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
			"remote_addr", r.RemoteAddr,
		)
	})
}

// recoverPanics turns a handler panic into a 500 response.
func (a *api) recoverPanics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			a.logger.ErrorContext(r.Context(), "handler panic",
				"panic", rec,
				"stack", string(debug.Stack()),
				"request_id", middleware.GetReqID(r.Context()),
			)
			writeJSON(w, http.StatusInternalServerError, envelope{Status: statusError, Message: msgInternal})
		}()
		next.ServeHTTP(w, r)
	})
}

// credential reads the bearer token from the Authorization header, falling
// back to the jwt cookie.
func credential(r *http.Request) string {
	if token := auth.BearerToken(r.Header.Get("Authorization")); token != "" {
		return token
	}
	if c, err := r.Cookie(cookieName); err == nil && c.Value != "" {
		return c.Value
	}
	return ""
}

// authenticate requires a valid credential and stores the identity in the
// request context.
func (a *api) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := a.gate.Authenticate(r.Context(), credential(r))
		if err != nil {
			writeError(r.Context(), w, a.logger, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), id)))
	})
}

// restrictTo admits only identities holding one of roles. It must run after
// authenticate.
func (a *api) restrictTo(roles ...auth.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, err := auth.RequireRoles(r.Context(), roles...); err != nil {
				writeError(r.Context(), w, a.logger, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// identity returns the authenticated caller. Routes behind authenticate
// always have one.
func identity(r *http.Request) (*auth.Identity, error) {
	id, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		return nil, oops.Code(auth.CodeInternal).Errorf("route is missing authentication middleware")
	}
	return id, nil
}
