// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Trailhead Contributors

// Package grpc guards gRPC services with the auth gate: bearer credentials in
// the authorization metadata are authenticated per call, and role rules are
// enforced per method.
package grpc

import (
	"context"
	"log/slog"

	"github.com/gobwas/glob"
	"github.com/samber/oops"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/trailhead/trailhead/internal/auth"
	"github.com/trailhead/trailhead/pkg/errutil"
)

// AuthorizationKey is the metadata key carrying "Bearer <token>".
const AuthorizationKey = "authorization"

// Authenticator resolves a bearer credential to an identity.
type Authenticator interface {
	Authenticate(ctx context.Context, credential string) (*auth.Identity, error)
}

// methodMatcher matches full method names such as /pkg.Service/Method.
// Patterns use '/' as the separator, so "/grpc.health.v1.Health/*" matches
// every method of the health service.
type methodMatcher []glob.Glob

func compileMethods(patterns []string) (methodMatcher, error) {
	m := make(methodMatcher, 0, len(patterns))
	for _, p := range patterns {
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, oops.In("grpc").With("pattern", p).Wrapf(err, "compile method pattern")
		}
		m = append(m, g)
	}
	return m, nil
}

func (m methodMatcher) match(method string) bool {
	for _, g := range m {
		if g.Match(method) {
			return true
		}
	}
	return false
}

// toStatus converts an auth error into a gRPC status. Internal failures are
// logged and reported without detail.
func toStatus(ctx context.Context, logger *slog.Logger, err error) error {
	switch auth.KindOf(err) {
	case auth.KindUnauthenticated, auth.KindInvalidCredentials:
		return status.Error(codes.Unauthenticated, err.Error())
	case auth.KindForbidden:
		return status.Error(codes.PermissionDenied, err.Error())
	default:
		errutil.LogErrorContext(ctx, logger, "grpc authentication failed", err)
		return status.Error(codes.Internal, "internal error")
	}
}

type guard struct {
	gate   Authenticator
	public methodMatcher
	logger *slog.Logger
}

func newGuard(gate Authenticator, logger *slog.Logger, publicMethods ...string) (*guard, error) {
	if gate == nil {
		return nil, oops.In("grpc").Errorf("authenticator is required")
	}
	public, err := compileMethods(publicMethods)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &guard{gate: gate, public: public, logger: logger}, nil
}

// check authenticates the call and returns a context carrying the identity.
func (g *guard) check(ctx context.Context, method string) (context.Context, error) {
	if g.public.match(method) {
		return ctx, nil
	}
	var credential string
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if values := md.Get(AuthorizationKey); len(values) > 0 {
			credential = auth.BearerToken(values[0])
		}
	}
	id, err := g.gate.Authenticate(ctx, credential)
	if err != nil {
		return nil, toStatus(ctx, g.logger, err)
	}
	return auth.WithIdentity(ctx, id), nil
}

// UnaryAuthInterceptor authenticates every unary call except those whose full
// method matches one of publicMethods.
func UnaryAuthInterceptor(gate Authenticator, logger *slog.Logger, publicMethods ...string) (grpc.UnaryServerInterceptor, error) {
	g, err := newGuard(gate, logger, publicMethods...)
	if err != nil {
		return nil, err
	}
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		ctx, err := g.check(ctx, info.FullMethod)
		if err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}, nil
}

// identityStream overrides the context of a server stream.
type identityStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *identityStream) Context() context.Context {
	return s.ctx
}

// StreamAuthInterceptor is the streaming counterpart of UnaryAuthInterceptor.
func StreamAuthInterceptor(gate Authenticator, logger *slog.Logger, publicMethods ...string) (grpc.StreamServerInterceptor, error) {
	g, err := newGuard(gate, logger, publicMethods...)
	if err != nil {
		return nil, err
	}
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		ctx, err := g.check(ss.Context(), info.FullMethod)
		if err != nil {
			return err
		}
		return handler(srv, &identityStream{ServerStream: ss, ctx: ctx})
	}, nil
}

// RoleRule restricts methods matching Pattern to Roles.
type RoleRule struct {
	Pattern string
	Roles   []auth.Role
}

type compiledRule struct {
	glob  glob.Glob
	roles []auth.Role
}

type roleGuard struct {
	rules  []compiledRule
	logger *slog.Logger
}

func newRoleGuard(logger *slog.Logger, rules []RoleRule) (*roleGuard, error) {
	compiled := make([]compiledRule, 0, len(rules))
	for _, r := range rules {
		g, err := glob.Compile(r.Pattern, '/')
		if err != nil {
			return nil, oops.In("grpc").With("pattern", r.Pattern).Wrapf(err, "compile role rule")
		}
		compiled = append(compiled, compiledRule{glob: g, roles: r.Roles})
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &roleGuard{rules: compiled, logger: logger}, nil
}

// check enforces the first rule matching method. Unmatched methods pass.
func (g *roleGuard) check(ctx context.Context, method string) error {
	for _, r := range g.rules {
		if !r.glob.Match(method) {
			continue
		}
		if _, err := auth.RequireRoles(ctx, r.roles...); err != nil {
			return toStatus(ctx, g.logger, err)
		}
		return nil
	}
	return nil
}

// RequireRoles enforces the first rule whose pattern matches the method.
// Methods matching no rule pass through. It must run after the auth
// interceptor.
func RequireRoles(logger *slog.Logger, rules ...RoleRule) (grpc.UnaryServerInterceptor, error) {
	g, err := newRoleGuard(logger, rules)
	if err != nil {
		return nil, err
	}
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if err := g.check(ctx, info.FullMethod); err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}, nil
}

// RequireStreamRoles is the streaming counterpart of RequireRoles.
func RequireStreamRoles(logger *slog.Logger, rules ...RoleRule) (grpc.StreamServerInterceptor, error) {
	g, err := newRoleGuard(logger, rules)
	if err != nil {
		return nil, err
	}
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		if err := g.check(ss.Context(), info.FullMethod); err != nil {
			return err
		}
		return handler(srv, ss)
	}, nil
}
