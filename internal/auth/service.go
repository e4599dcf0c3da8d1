// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Trailhead Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/trailhead/trailhead/internal/mail"
	"github.com/trailhead/trailhead/pkg/errutil"
)

var tracer = otel.Tracer("github.com/trailhead/trailhead/internal/auth")

// dummyPasswordHash is verified against when a login names no user, so the
// failure takes as long as a wrong password. It matches no password.
//
//nolint:gosec // G101: intentionally fake hash, not a credential.
const dummyPasswordHash = "$argon2id$v=19$m=65536,t=1,p=4$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

// AuthResult is returned by every operation that logs a user in.
type AuthResult struct {
	Token     string
	ExpiresAt time.Time
	User      PublicUser
}

// Option configures a Service or Gate.
type Option func(*options)

type options struct {
	logger       *slog.Logger
	metrics      *Metrics
	now          func() time.Time
	resetWindow  time.Duration
	resetURLBase string
}

func defaultOptions() options {
	return options{
		logger:      slog.Default(),
		now:         time.Now,
		resetWindow: DefaultResetWindow,
	}
}

// WithLogger sets the logger. A nil logger is ignored.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMetrics records outcomes on m.
func WithMetrics(m *Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithClock overrides the clock used for reset expiry.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// WithResetWindow sets how long a reset token stays redeemable.
func WithResetWindow(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.resetWindow = d
		}
	}
}

// WithResetURLBase sets the link prefix mailed with reset tokens. The token is
// appended as the final path segment.
func WithResetURLBase(base string) Option {
	return func(o *options) {
		o.resetURLBase = strings.TrimRight(base, "/")
	}
}

// Service implements signup, login, and the password lifecycle. It holds no
// per-request state and is safe for concurrent use.
type Service struct {
	users  UserRepository
	hasher PasswordHasher
	tokens *TokenIssuer
	sender mail.Sender
	opts   options
}

// NewService creates a Service.
func NewService(users UserRepository, hasher PasswordHasher, tokens *TokenIssuer, sender mail.Sender, opts ...Option) (*Service, error) {
	if users == nil {
		return nil, oops.Errorf("users repository is required")
	}
	if hasher == nil {
		return nil, oops.Errorf("password hasher is required")
	}
	if tokens == nil {
		return nil, oops.Errorf("token issuer is required")
	}
	if sender == nil {
		return nil, oops.Errorf("mail sender is required")
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	return &Service{
		users:  users,
		hasher: hasher,
		tokens: tokens,
		sender: sender,
		opts:   o,
	}, nil
}

// Signup registers a customer and logs them in. A welcome message is sent on a
// best-effort basis.
func (s *Service) Signup(ctx context.Context, in SignupInput) (_ *AuthResult, err error) {
	ctx, span := tracer.Start(ctx, "auth.Signup")
	defer func() { endSpan(span, err) }()

	user, err := s.createUser(ctx, in, DefaultRole)
	if err != nil {
		s.opts.metrics.signup(string(KindOf(err)))
		return nil, err
	}
	s.opts.metrics.signup("success")

	if sendErr := s.sender.Send(ctx, welcomeMessage(user)); sendErr != nil {
		errutil.LogErrorContext(ctx, s.opts.logger, "welcome mail failed", sendErr)
	}

	return s.issue(user)
}

// CreateUser registers a user with an explicit role. It is the privileged path
// used by administrative tooling; it neither logs in nor sends mail.
func (s *Service) CreateUser(ctx context.Context, in SignupInput, role Role) (PublicUser, error) {
	user, err := s.createUser(ctx, in, role)
	if err != nil {
		return PublicUser{}, err
	}
	return user.Public(), nil
}

func (s *Service) createUser(ctx context.Context, in SignupInput, role Role) (*User, error) {
	in = in.Normalize()
	if err := in.Validate(); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, internalError("hash password", err)
	}

	user, err := NewUser(in, hash, role, s.opts.now())
	if err != nil {
		return nil, err
	}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, ErrEmailTaken) {
			return nil, validationError("email", "email is already registered")
		}
		return nil, internalError("create user", err)
	}

	s.opts.logger.InfoContext(ctx, "user created", "user_id", user.ID.String(), "role", string(role))
	return user, nil
}

// Login checks an email and password and issues a token. A missing field, an
// unknown or deactivated user, and a wrong password all produce the same
// error, and unknown users still pay for a hash verification.
func (s *Service) Login(ctx context.Context, email, password string) (_ *AuthResult, err error) {
	ctx, span := tracer.Start(ctx, "auth.Login")
	defer func() { endSpan(span, err) }()

	email = NormalizeEmail(email)
	if email == "" || password == "" {
		s.opts.metrics.login("invalid_credentials")
		return nil, invalidCredentials()
	}

	user, lookupErr := s.users.GetByEmail(ctx, email)
	if lookupErr != nil && !errors.Is(lookupErr, ErrNotFound) {
		s.opts.metrics.login("error")
		return nil, internalError("get user by email", lookupErr)
	}
	exists := lookupErr == nil && user.Active

	targetHash := dummyPasswordHash
	if exists {
		targetHash = user.PasswordHash
	}

	valid, verifyErr := s.hasher.Verify(password, targetHash)
	if verifyErr != nil && exists {
		s.opts.metrics.login("error")
		return nil, internalError("verify password", verifyErr)
	}

	if !exists || !valid {
		s.opts.metrics.login("invalid_credentials")
		s.opts.logger.InfoContext(ctx, "login failed")
		return nil, invalidCredentials()
	}

	if s.hasher.NeedsUpgrade(user.PasswordHash) {
		s.upgradeHash(ctx, user.ID, password)
	}

	s.opts.metrics.login("success")
	return s.issue(user)
}

// upgradeHash re-hashes an unchanged password with current parameters. Failure
// is logged; the login still succeeds.
func (s *Service) upgradeHash(ctx context.Context, id ulid.ULID, password string) {
	hash, err := s.hasher.Hash(password)
	if err == nil {
		err = s.users.RehashPassword(ctx, id, hash)
	}
	if err != nil {
		errutil.LogErrorContext(ctx, s.opts.logger, "password hash upgrade failed", err)
	}
}

// IssueResetToken stores a fresh reset token for the active user with email,
// superseding any outstanding one, and returns the plaintext secret. Unknown
// and deactivated users fail with AUTH_NOT_FOUND.
func (s *Service) IssueResetToken(ctx context.Context, email string) (string, *User, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return "", nil, validationError("email", "email is required")
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return "", nil, internalError("get user by email", err)
	}
	if err != nil || !user.Active {
		return "", nil, oops.Code(CodeNotFound).Errorf("there is no user with that email address")
	}

	token, hash, err := GenerateResetToken()
	if err != nil {
		return "", nil, internalError("generate reset token", err)
	}

	expiresAt := s.opts.now().Add(s.opts.resetWindow)
	if err := s.users.SetResetToken(ctx, user.ID, hash, expiresAt); err != nil {
		return "", nil, internalError("set reset token", err)
	}
	return token, user, nil
}

// RequestPasswordReset issues a reset token and mails the reset link. When
// delivery fails the token is cleared again and AUTH_DELIVERY_FAILED is
// returned.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) (err error) {
	ctx, span := tracer.Start(ctx, "auth.RequestPasswordReset")
	defer func() { endSpan(span, err) }()

	token, user, err := s.IssueResetToken(ctx, email)
	if err != nil {
		s.opts.metrics.reset("request", string(KindOf(err)))
		return err
	}

	if sendErr := s.sender.Send(ctx, resetMessage(user, s.resetLink(token), s.opts.resetWindow)); sendErr != nil {
		errutil.LogErrorContext(ctx, s.opts.logger, "reset mail delivery failed", sendErr)

		// The request may already be cancelled; the rollback must still run.
		// Only this request's token is revoked: a newer request may have
		// replaced it while the mail was in flight.
		if clearErr := s.users.RevokeResetToken(context.WithoutCancel(ctx), user.ID, HashResetToken(token)); clearErr != nil {
			s.opts.metrics.reset("request", string(KindInternal))
			return internalError("roll back reset token", clearErr)
		}
		s.opts.metrics.reset("request", string(KindDeliveryFailed))
		return oops.Code(CodeDeliveryFailed).
			With("user_id", user.ID.String()).
			Errorf("there was an error sending the email, try again later")
	}

	s.opts.metrics.reset("request", "success")
	s.opts.logger.InfoContext(ctx, "password reset requested", "user_id", user.ID.String())
	return nil
}

func (s *Service) resetLink(token string) string {
	if s.opts.resetURLBase == "" {
		return token
	}
	return s.opts.resetURLBase + "/" + token
}

// ValidateResetToken reports whether secret is an outstanding, unexpired reset
// token, without redeeming it.
func (s *Service) ValidateResetToken(ctx context.Context, secret string) (PublicUser, error) {
	if !validResetTokenFormat(secret) {
		return PublicUser{}, resetTokenInvalid()
	}

	user, err := s.users.GetByResetTokenHash(ctx, HashResetToken(secret))
	if errors.Is(err, ErrNotFound) {
		return PublicUser{}, resetTokenInvalid()
	}
	if err != nil {
		return PublicUser{}, internalError("get user by reset token", err)
	}
	return user.Public(), nil
}

// ResetPassword redeems a reset secret, sets the new password, and logs the
// user in. Redemption is a single compare-and-clear in the store, so a secret
// succeeds at most once even under concurrent use.
func (s *Service) ResetPassword(ctx context.Context, secret, password, confirm string) (_ *AuthResult, err error) {
	ctx, span := tracer.Start(ctx, "auth.ResetPassword")
	defer func() { endSpan(span, err) }()

	if !validResetTokenFormat(secret) {
		s.opts.metrics.reset("redeem", string(KindResetTokenInvalid))
		return nil, resetTokenInvalid()
	}
	if err := ValidatePassword(password, confirm); err != nil {
		s.opts.metrics.reset("redeem", string(KindValidation))
		return nil, err
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, internalError("hash password", err)
	}

	user, err := s.users.ConsumeResetToken(ctx, HashResetToken(secret), hash)
	if errors.Is(err, ErrNotFound) {
		s.opts.metrics.reset("redeem", string(KindResetTokenInvalid))
		return nil, resetTokenInvalid()
	}
	if err != nil {
		s.opts.metrics.reset("redeem", string(KindInternal))
		return nil, internalError("consume reset token", err)
	}

	s.opts.metrics.reset("redeem", "success")
	s.opts.logger.InfoContext(ctx, "password reset", "user_id", user.ID.String())
	return s.issue(user)
}

func resetTokenInvalid() error {
	return oops.Code(CodeResetTokenInvalid).Errorf(msgResetTokenInvalid)
}

// ChangePassword replaces the password of an authenticated user after checking
// the current one. Every token issued before the change stops authenticating;
// the returned token is issued after it.
func (s *Service) ChangePassword(ctx context.Context, userID ulid.ULID, current, password, confirm string) (_ *AuthResult, err error) {
	ctx, span := tracer.Start(ctx, "auth.ChangePassword")
	defer func() { endSpan(span, err) }()

	user, err := s.activeUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	if current == "" {
		return nil, oops.Code(CodeInvalidCredentials).Errorf("your current password is wrong")
	}
	valid, err := s.hasher.Verify(current, user.PasswordHash)
	if err != nil {
		return nil, internalError("verify password", err)
	}
	if !valid {
		return nil, oops.Code(CodeInvalidCredentials).Errorf("your current password is wrong")
	}

	if err := ValidatePassword(password, confirm); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, internalError("hash password", err)
	}

	updated, err := s.users.UpdatePassword(ctx, userID, hash)
	if err != nil {
		return nil, internalError("update password", err)
	}

	s.opts.logger.InfoContext(ctx, "password changed", "user_id", userID.String())
	return s.issue(updated)
}

// UpdateProfile changes the name and email of a user. Fields left nil keep
// their value.
func (s *Service) UpdateProfile(ctx context.Context, userID ulid.ULID, upd ProfileUpdate) (PublicUser, error) {
	user, err := s.activeUser(ctx, userID)
	if err != nil {
		return PublicUser{}, err
	}
	if upd.Name == nil && upd.Email == nil {
		return user.Public(), nil
	}

	name, email := user.Name, user.Email
	if upd.Name != nil {
		name = strings.TrimSpace(*upd.Name)
		if err := ValidateName(name); err != nil {
			return PublicUser{}, err
		}
	}
	if upd.Email != nil {
		email = NormalizeEmail(*upd.Email)
		if err := ValidateEmail(email); err != nil {
			return PublicUser{}, err
		}
	}

	updated, err := s.users.UpdateProfile(ctx, userID, name, email)
	if errors.Is(err, ErrEmailTaken) {
		return PublicUser{}, validationError("email", "email is already registered")
	}
	if err != nil {
		return PublicUser{}, internalError("update profile", err)
	}
	return updated.Public(), nil
}

// Deactivate marks a user inactive and drops any outstanding reset token. The
// user can no longer log in or authenticate.
func (s *Service) Deactivate(ctx context.Context, userID ulid.ULID) error {
	if err := s.users.SetActive(ctx, userID, false); err != nil {
		if errors.Is(err, ErrNotFound) {
			return oops.Code(CodeNotFound).With("user_id", userID.String()).Errorf("user not found")
		}
		return internalError("deactivate user", err)
	}
	if err := s.users.ClearResetToken(ctx, userID); err != nil {
		return internalError("clear reset token", err)
	}

	s.opts.logger.InfoContext(ctx, "user deactivated", "user_id", userID.String())
	return nil
}

// SetRole changes the role of the user with email.
func (s *Service) SetRole(ctx context.Context, email string, role Role) (PublicUser, error) {
	if !role.Valid() {
		return PublicUser{}, validationError("role", "unknown role %q", role)
	}

	user, err := s.users.GetByEmail(ctx, NormalizeEmail(email))
	if errors.Is(err, ErrNotFound) {
		return PublicUser{}, oops.Code(CodeNotFound).Errorf("there is no user with that email address")
	}
	if err != nil {
		return PublicUser{}, internalError("get user by email", err)
	}

	updated, err := s.users.SetRole(ctx, user.ID, role)
	if err != nil {
		return PublicUser{}, internalError("set role", err)
	}
	return updated.Public(), nil
}

// FindByEmail returns the public view of the user with email.
func (s *Service) FindByEmail(ctx context.Context, email string) (PublicUser, error) {
	user, err := s.users.GetByEmail(ctx, NormalizeEmail(email))
	if errors.Is(err, ErrNotFound) {
		return PublicUser{}, oops.Code(CodeNotFound).Errorf("there is no user with that email address")
	}
	if err != nil {
		return PublicUser{}, internalError("get user by email", err)
	}
	return user.Public(), nil
}

// ListUsers pages through all users.
func (s *Service) ListUsers(ctx context.Context, opts ListOptions) ([]PublicUser, error) {
	users, err := s.users.List(ctx, opts.normalized())
	if err != nil {
		return nil, internalError("list users", err)
	}

	out := make([]PublicUser, 0, len(users))
	for _, u := range users {
		out = append(out, u.Public())
	}
	return out, nil
}

func (s *Service) activeUser(ctx context.Context, id ulid.ULID) (*User, error) {
	user, err := s.users.GetByID(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, unauthenticated("user_not_found")
	}
	if err != nil {
		return nil, internalError("get user by id", err)
	}
	if !user.Active {
		return nil, unauthenticated("user_inactive")
	}
	return user, nil
}

func (s *Service) issue(user *User) (*AuthResult, error) {
	token, expiresAt, err := s.tokens.Issue(user.ID)
	if err != nil {
		return nil, internalError("issue token", err)
	}
	return &AuthResult{
		Token:     token,
		ExpiresAt: expiresAt,
		User:      user.Public(),
	}, nil
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(KindOf(err)))
	}
	span.End()
}
