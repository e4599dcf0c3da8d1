// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Trailhead Contributors

package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/trailhead/trailhead/pkg/errutil"
)

// Identity is an authenticated caller, resolved fresh from the store for each
// request.
type Identity struct {
	UserID   ulid.ULID
	Role     Role
	User     PublicUser
	IssuedAt time.Time
}

// Gate resolves bearer tokens to identities and enforces role restrictions.
// It holds no per-request state and is safe for concurrent use.
type Gate struct {
	users  UserRepository
	tokens *TokenIssuer
	opts   options
}

// NewGate creates a Gate.
func NewGate(users UserRepository, tokens *TokenIssuer, opts ...Option) (*Gate, error) {
	if users == nil {
		return nil, oops.Errorf("users repository is required")
	}
	if tokens == nil {
		return nil, oops.Errorf("token issuer is required")
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Gate{users: users, tokens: tokens, opts: o}, nil
}

// Authenticate verifies a bearer credential and loads its user. Missing,
// malformed, forged and expired tokens, tokens whose user is gone or
// deactivated, and tokens issued before the last password change all fail
// with AUTH_UNAUTHENTICATED; the reason is only in the error context.
func (g *Gate) Authenticate(ctx context.Context, credential string) (_ *Identity, err error) {
	ctx, span := tracer.Start(ctx, "auth.Authenticate")
	defer func() { endSpan(span, err) }()

	if credential == "" {
		g.opts.metrics.authentication("missing")
		return nil, unauthenticated("missing")
	}

	claims, err := g.tokens.Verify(credential)
	if err != nil {
		reason := "invalid"
		if errutil.Code(err) == CodeTokenExpired {
			reason = "expired"
		}
		g.opts.metrics.authentication(reason)
		return nil, unauthenticated(reason)
	}

	user, err := g.users.GetByID(ctx, claims.SubjectID)
	if errors.Is(err, ErrNotFound) {
		g.opts.metrics.authentication("user_not_found")
		return nil, unauthenticated("user_not_found")
	}
	if err != nil {
		g.opts.metrics.authentication("error")
		return nil, internalError("get user by id", err)
	}
	if !user.Active {
		g.opts.metrics.authentication("user_inactive")
		return nil, unauthenticated("user_inactive")
	}
	if user.ChangedPasswordAfter(claims.IssuedAt) {
		g.opts.metrics.authentication("stale")
		g.opts.logger.InfoContext(ctx, "rejected token issued before password change",
			"user_id", user.ID.String())
		return nil, unauthenticated("stale")
	}

	g.opts.metrics.authentication("success")
	return &Identity{
		UserID:   user.ID,
		Role:     user.Role,
		User:     user.Public(),
		IssuedAt: claims.IssuedAt,
	}, nil
}

// Authorize returns AUTH_FORBIDDEN unless id holds one of roles. It is pure
// and never touches the store. Calling it with a nil identity is a programming
// error: authentication must run first.
func Authorize(id *Identity, roles ...Role) error {
	if id == nil {
		panic("auth: Authorize called without an authenticated identity")
	}
	if id.Role.In(roles...) {
		return nil
	}
	return oops.Code(CodeForbidden).
		With("role", string(id.Role)).
		Errorf(msgForbidden)
}

// BearerToken extracts the credential from an Authorization header value.
// The scheme is matched case-insensitively. It returns "" when the header is
// not a bearer credential or carries the literal "null" some clients send
// after logout.
func BearerToken(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	token = strings.TrimSpace(token)
	if token == "null" {
		return ""
	}
	return token
}

type identityKey struct{}

// WithIdentity returns a copy of ctx carrying id.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFromContext returns the identity stored by WithIdentity.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(*Identity)
	return id, ok && id != nil
}

// RequireRoles authorizes the identity carried by ctx. A context without one
// fails with AUTH_UNAUTHENTICATED.
func RequireRoles(ctx context.Context, roles ...Role) (*Identity, error) {
	id, ok := IdentityFromContext(ctx)
	if !ok {
		return nil, unauthenticated("missing")
	}
	if err := Authorize(id, roles...); err != nil {
		return nil, err
	}
	return id, nil
}
