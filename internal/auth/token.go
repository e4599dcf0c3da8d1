// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Trailhead Contributors

package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// MinSecretLength is the minimum signing secret size in bytes.
const MinSecretLength = 32

// Token verification error codes.
const (
	CodeTokenInvalid = "TOKEN_INVALID"
	CodeTokenExpired = "TOKEN_EXPIRED"
)

// TokenConfig configures bearer token signing. It is read once at startup and
// copied into the TokenIssuer, which never mutates it.
type TokenConfig struct {
	// Secret is the HMAC signing key.
	Secret []byte
	// TTL is how long an issued token stays valid.
	TTL time.Duration
	// Issuer is written to and required in the iss claim.
	Issuer string
}

// Validate checks the configuration.
func (c TokenConfig) Validate() error {
	if len(c.Secret) < MinSecretLength {
		return oops.Code("CONFIG_INVALID").
			With("field", "auth.jwt_secret").
			Errorf("token secret must be at least %d bytes", MinSecretLength)
	}
	if c.TTL <= 0 {
		return oops.Code("CONFIG_INVALID").
			With("field", "auth.token_ttl").
			Errorf("token TTL must be positive")
	}
	if c.Issuer == "" {
		return oops.Code("CONFIG_INVALID").
			With("field", "auth.issuer").
			Errorf("token issuer is required")
	}
	return nil
}

// Claims are the verified contents of a bearer token.
type Claims struct {
	SubjectID ulid.ULID
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// TokenIssuer signs and verifies HS256 bearer tokens. It is safe for
// concurrent use.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	issuer string
	now    func() time.Time
	parser *jwt.Parser
}

// TokenOption configures a TokenIssuer.
type TokenOption func(*TokenIssuer)

// WithTokenClock overrides the clock used for issuing and validating tokens.
func WithTokenClock(now func() time.Time) TokenOption {
	return func(t *TokenIssuer) {
		t.now = now
	}
}

// NewTokenIssuer creates a TokenIssuer from a validated copy of cfg.
func NewTokenIssuer(cfg TokenConfig, opts ...TokenOption) (*TokenIssuer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	t := &TokenIssuer{
		secret: append([]byte(nil), cfg.Secret...),
		ttl:    cfg.TTL,
		issuer: cfg.Issuer,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}

	t.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithIssuer(t.issuer),
		jwt.WithTimeFunc(t.now),
	)
	return t, nil
}

// TTL returns the configured token lifetime.
func (t *TokenIssuer) TTL() time.Duration {
	return t.ttl
}

// Issue signs a token for subject. It returns the token and its expiry.
func (t *TokenIssuer) Issue(subject ulid.ULID) (string, time.Time, error) {
	now := t.now()
	issuedAt := jwt.NewNumericDate(now)
	expiresAt := jwt.NewNumericDate(now.Add(t.ttl))

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   subject.String(),
		Issuer:    t.issuer,
		IssuedAt:  issuedAt,
		ExpiresAt: expiresAt,
	})
	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, oops.Code("TOKEN_SIGN_FAILED").With("subject", subject.String()).Wrap(err)
	}
	return signed, expiresAt.Time, nil
}

// Verify checks the signature, algorithm, issuer and expiry of raw in a single
// parse and returns its claims. Expired tokens fail with TOKEN_EXPIRED, every
// other failure with TOKEN_INVALID.
func (t *TokenIssuer) Verify(raw string) (*Claims, error) {
	var rc jwt.RegisteredClaims
	_, err := t.parser.ParseWithClaims(raw, &rc, func(*jwt.Token) (any, error) {
		return t.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, oops.Code(CodeTokenExpired).Errorf("token has expired")
		}
		return nil, oops.Code(CodeTokenInvalid).With("cause", err.Error()).Errorf("token is invalid")
	}

	// Staleness checks compare against iat, so it is mandatory here even
	// though RFC 7519 leaves it optional.
	if rc.IssuedAt == nil {
		return nil, oops.Code(CodeTokenInvalid).With("cause", "iat").Errorf("token is invalid")
	}

	subject, err := ulid.Parse(rc.Subject)
	if err != nil {
		return nil, oops.Code(CodeTokenInvalid).With("cause", "subject").Errorf("token is invalid")
	}

	return &Claims{
		SubjectID: subject,
		IssuedAt:  rc.IssuedAt.Time,
		ExpiresAt: rc.ExpiresAt.Time,
	}, nil
}
