// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Trailhead Contributors

package auth

import (
	"context"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"
)

// Field constraints.
const (
	MinNameLength     = 2
	MaxNameLength     = 20
	MinPasswordLength = 8
	MaxPasswordLength = 20
	MaxEmailLength    = 254
)

// User is a stored account. It carries credential material and must not be
// serialized across the system boundary; use Public for that.
type User struct {
	ID                  ulid.ULID
	Name                string
	Email               string
	PasswordHash        string
	Role                Role
	Active              bool
	PasswordChangedAt   *time.Time
	ResetTokenHash      *string
	ResetTokenExpiresAt *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// PublicUser is the outward representation of a user.
type PublicUser struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
}

// Public strips credential and reset fields.
func (u *User) Public() PublicUser {
	return PublicUser{
		ID:        u.ID.String(),
		Name:      u.Name,
		Email:     u.Email,
		Role:      u.Role,
		CreatedAt: u.CreatedAt,
	}
}

// ChangedPasswordAfter reports whether the password was changed after t.
// A user that never changed their password reports false.
func (u *User) ChangedPasswordAfter(t time.Time) bool {
	if u.PasswordChangedAt == nil {
		return false
	}
	return u.PasswordChangedAt.After(t)
}

// SignupInput is the profile supplied when creating a user.
type SignupInput struct {
	Name            string
	Email           string
	Password        string
	PasswordConfirm string
}

// ProfileUpdate holds the user-editable profile fields. Nil fields are left
// unchanged.
type ProfileUpdate struct {
	Name  *string
	Email *string
}

// ListOptions pages through users.
type ListOptions struct {
	Limit  int
	Offset int
}

// Default and maximum page sizes for listing users.
const (
	DefaultListLimit = 50
	MaxListLimit     = 200
)

func (o ListOptions) normalized() ListOptions {
	if o.Limit <= 0 {
		o.Limit = DefaultListLimit
	}
	if o.Limit > MaxListLimit {
		o.Limit = MaxListLimit
	}
	if o.Offset < 0 {
		o.Offset = 0
	}
	return o
}

// UserRepository persists users.
//
// Implementations write PasswordChangedAt themselves whenever they store a new
// password hash for an existing user, backdated by PasswordChangeBackdate. Create
// never sets it.
type UserRepository interface {
	// Create stores a new user. Returns ErrEmailTaken for a duplicate email.
	Create(ctx context.Context, user *User) error

	// GetByID returns ErrNotFound when no user has the id.
	GetByID(ctx context.Context, id ulid.ULID) (*User, error)

	// GetByEmail looks up a normalized email. Returns ErrNotFound when absent.
	GetByEmail(ctx context.Context, email string) (*User, error)

	// GetByResetTokenHash returns the user holding an unexpired reset token
	// with the given hash, or ErrNotFound.
	GetByResetTokenHash(ctx context.Context, tokenHash string) (*User, error)

	// UpdatePassword stores a new hash and stamps PasswordChangedAt.
	UpdatePassword(ctx context.Context, id ulid.ULID, passwordHash string) (*User, error)

	// RehashPassword replaces the stored hash of an unchanged password, for
	// hashing-parameter upgrades. PasswordChangedAt is left alone.
	RehashPassword(ctx context.Context, id ulid.ULID, passwordHash string) error

	// SetResetToken stores a reset token hash and expiry, replacing any
	// outstanding pair.
	SetResetToken(ctx context.Context, id ulid.ULID, tokenHash string, expiresAt time.Time) error

	// ClearResetToken removes any outstanding reset token.
	ClearResetToken(ctx context.Context, id ulid.ULID) error

	// RevokeResetToken clears the reset fields only while tokenHash is still
	// the outstanding token. A token already superseded or redeemed is left
	// alone and is not an error.
	RevokeResetToken(ctx context.Context, id ulid.ULID, tokenHash string) error

	// ConsumeResetToken atomically redeems an unexpired reset token: it stores
	// the new hash, stamps PasswordChangedAt and clears both reset fields.
	// Returns ErrNotFound if no unexpired token matches.
	ConsumeResetToken(ctx context.Context, tokenHash, passwordHash string) (*User, error)

	// UpdateProfile changes name and email. Returns ErrEmailTaken for a duplicate email.
	UpdateProfile(ctx context.Context, id ulid.ULID, name, email string) (*User, error)

	// SetActive flags a user as active or deactivated.
	SetActive(ctx context.Context, id ulid.ULID, active bool) error

	// SetRole changes the role of a user.
	SetRole(ctx context.Context, id ulid.ULID, role Role) (*User, error)

	// List returns users ordered by creation time.
	List(ctx context.Context, opts ListOptions) ([]*User, error)
}

// PasswordChangeBackdate is subtracted from the clock when stamping
// PasswordChangedAt, so a token minted in the same instant as the change (the
// one returned by the change itself) still passes the staleness check.
const PasswordChangeBackdate = time.Second

// NormalizeEmail trims and lower-cases an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateEmail checks a normalized email address.
func ValidateEmail(email string) error {
	if email == "" {
		return validationError("email", "email is required")
	}
	if len(email) > MaxEmailLength {
		return validationError("email", "email must be at most %d characters", MaxEmailLength)
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || !strings.Contains(email[strings.LastIndex(email, "@")+1:], ".") {
		return validationError("email", "invalid email")
	}
	return nil
}

// ValidateName checks a trimmed display name.
func ValidateName(name string) error {
	n := utf8.RuneCountInString(name)
	if n == 0 {
		return validationError("name", "name is required")
	}
	if n < MinNameLength || n > MaxNameLength {
		return validationError("name", "name must be between %d and %d characters", MinNameLength, MaxNameLength)
	}
	return nil
}

// ValidatePassword checks a new password and its confirmation.
func ValidatePassword(password, confirm string) error {
	n := utf8.RuneCountInString(password)
	if n == 0 {
		return validationError("password", "password is required")
	}
	if n < MinPasswordLength || n > MaxPasswordLength {
		return validationError("password", "password must be between %d and %d characters", MinPasswordLength, MaxPasswordLength)
	}
	if password != confirm {
		return validationError("passwordConfirm", "passwords do not match")
	}
	return nil
}

// Normalize trims the profile and normalizes the email.
func (in SignupInput) Normalize() SignupInput {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = NormalizeEmail(in.Email)
	return in
}

// Validate checks a normalized profile.
func (in SignupInput) Validate() error {
	if err := ValidateName(in.Name); err != nil {
		return err
	}
	if err := ValidateEmail(in.Email); err != nil {
		return err
	}
	return ValidatePassword(in.Password, in.PasswordConfirm)
}

// NewUser builds an active user from a validated profile and password hash.
func NewUser(in SignupInput, passwordHash string, role Role, now time.Time) (*User, error) {
	if passwordHash == "" {
		return nil, validationError("password", "password hash cannot be empty")
	}
	if !role.Valid() {
		return nil, validationError("role", "unknown role %q", role)
	}
	return &User{
		ID:           ulid.Make(),
		Name:         in.Name,
		Email:        in.Email,
		PasswordHash: passwordHash,
		Role:         role,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}
