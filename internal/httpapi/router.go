// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Trailhead Contributors

// Package httpapi serves the user and authentication JSON API under
// /api/v1/users.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/oklog/ulid/v2"

	"github.com/trailhead/trailhead/internal/auth"
)

// BasePath prefixes every user route.
const BasePath = "/api/v1/users"

// AuthService is the slice of *auth.Service the handlers call.
type AuthService interface {
	Signup(ctx context.Context, in auth.SignupInput) (*auth.AuthResult, error)
	Login(ctx context.Context, email, password string) (*auth.AuthResult, error)
	RequestPasswordReset(ctx context.Context, email string) error
	ValidateResetToken(ctx context.Context, secret string) (auth.PublicUser, error)
	ResetPassword(ctx context.Context, secret, password, confirm string) (*auth.AuthResult, error)
	ChangePassword(ctx context.Context, userID ulid.ULID, current, password, confirm string) (*auth.AuthResult, error)
	UpdateProfile(ctx context.Context, userID ulid.ULID, upd auth.ProfileUpdate) (auth.PublicUser, error)
	Deactivate(ctx context.Context, userID ulid.ULID) error
	ListUsers(ctx context.Context, opts auth.ListOptions) ([]auth.PublicUser, error)
}

// Authenticator resolves a bearer credential to an identity.
type Authenticator interface {
	Authenticate(ctx context.Context, credential string) (*auth.Identity, error)
}

var (
	_ AuthService   = (*auth.Service)(nil)
	_ Authenticator = (*auth.Gate)(nil)
)

// Config holds HTTP-specific settings.
type Config struct {
	AllowedOrigins []string
	// CookieSecure marks the jwt cookie Secure.
	CookieSecure bool
}

// Option configures the API.
type Option func(*api)

// WithLogger sets the request and error logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *api) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithMetrics records request counts.
func WithMetrics(m *Metrics) Option {
	return func(a *api) {
		a.metrics = m
	}
}

// WithClock overrides the clock used for cookie expiry.
func WithClock(now func() time.Time) Option {
	return func(a *api) {
		a.now = now
	}
}

type api struct {
	svc     AuthService
	gate    Authenticator
	cfg     Config
	logger  *slog.Logger
	metrics *Metrics
	now     func() time.Time
}

// NewRouter builds the HTTP handler.
func NewRouter(svc AuthService, gate Authenticator, cfg Config, opts ...Option) http.Handler {
	a := &api{
		svc:    svc,
		gate:   gate,
		cfg:    cfg,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(a.logRequests)
	r.Use(a.recoverPanics)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.NotFound(a.notFound)
	r.MethodNotAllowed(a.notFound)

	r.Route(BasePath, func(r chi.Router) {
		r.Post("/signup", a.signup)
		r.Post("/login", a.login)
		r.Get("/logout", a.logout)
		r.Post("/forgotpassword", a.forgotPassword)
		r.Get("/resetpassword/{token}", a.checkResetToken)
		r.Patch("/resetpassword/{token}", a.resetPassword)

		r.Group(func(r chi.Router) {
			r.Use(a.authenticate)

			r.Patch("/updatepassword", a.updatePassword)
			r.Get("/me", a.me)
			r.Patch("/updateme", a.updateMe)
			r.Delete("/deleteme", a.deleteMe)

			r.With(a.restrictTo(auth.RoleAdmin, auth.RoleLeadGuide)).Get("/", a.listUsers)
		})
	})

	return r
}

func (a *api) notFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, envelope{
		Status:  statusFail,
		Message: "can't find " + r.URL.Path + " on this server",
	})
}
