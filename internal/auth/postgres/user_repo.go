// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Trailhead Contributors

// Package postgres stores auth users in PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/trailhead/trailhead/internal/auth"
)

// Pool is the subset of *pgxpool.Pool used by UserRepository. pgxmock pools
// satisfy it in tests.
type Pool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const userColumns = `id, name, email, password_hash, role, active,
	password_changed_at, reset_token_hash, reset_token_expires_at,
	created_at, updated_at`

// UserRepository implements auth.UserRepository using PostgreSQL.
type UserRepository struct {
	pool Pool
	now  func() time.Time
}

var _ auth.UserRepository = (*UserRepository)(nil)

// Option configures a UserRepository.
type Option func(*UserRepository)

// WithClock overrides the clock used for password change stamps and reset
// expiry comparisons.
func WithClock(now func() time.Time) Option {
	return func(r *UserRepository) {
		r.now = now
	}
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(pool Pool, opts ...Option) *UserRepository {
	r := &UserRepository{pool: pool, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}

func notFound(key string, value any) error {
	return oops.Code("USER_NOT_FOUND").With(key, value).Wrap(auth.ErrNotFound)
}

// Create stores a new user.
func (r *UserRepository) Create(ctx context.Context, user *auth.User) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO users (
			id, name, email, password_hash, role, active,
			password_changed_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		user.ID.String(),
		user.Name,
		user.Email,
		user.PasswordHash,
		string(user.Role),
		user.Active,
		user.PasswordChangedAt,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return oops.Code("USER_EMAIL_TAKEN").With("email", user.Email).Wrap(auth.ErrEmailTaken)
	}
	if err != nil {
		return oops.Code("USER_CREATE_FAILED").
			With("operation", "insert user").
			With("id", user.ID.String()).
			Wrap(err)
	}
	return nil
}

// GetByID retrieves a user by ID.
func (r *UserRepository) GetByID(ctx context.Context, id ulid.ULID) (*auth.User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id.String())

	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound("id", id.String())
	}
	if err != nil {
		return nil, oops.Code("USER_GET_BY_ID_FAILED").
			With("operation", "get user by id").
			With("id", id.String()).
			Wrap(err)
	}
	return user, nil
}

// GetByEmail retrieves a user by normalized email.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*auth.User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)

	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound("email", email)
	}
	if err != nil {
		return nil, oops.Code("USER_GET_BY_EMAIL_FAILED").
			With("operation", "get user by email").
			With("email", email).
			Wrap(err)
	}
	return user, nil
}

// GetByResetTokenHash retrieves the user holding an unexpired reset token.
func (r *UserRepository) GetByResetTokenHash(ctx context.Context, tokenHash string) (*auth.User, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+userColumns+` FROM users
		WHERE reset_token_hash = $1 AND reset_token_expires_at > $2
	`, tokenHash, r.now())

	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound("operation", "get user by reset token")
	}
	if err != nil {
		return nil, oops.Code("USER_GET_BY_RESET_TOKEN_FAILED").
			With("operation", "get user by reset token").
			Wrap(err)
	}
	return user, nil
}

// UpdatePassword stores a new password hash and stamps password_changed_at.
func (r *UserRepository) UpdatePassword(ctx context.Context, id ulid.ULID, passwordHash string) (*auth.User, error) {
	now := r.now()
	row := r.pool.QueryRow(ctx, `
		UPDATE users SET
			password_hash = $2,
			password_changed_at = $3,
			updated_at = $4
		WHERE id = $1
		RETURNING `+userColumns,
		id.String(), passwordHash, now.Add(-auth.PasswordChangeBackdate), now)

	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound("id", id.String())
	}
	if err != nil {
		return nil, oops.Code("USER_UPDATE_PASSWORD_FAILED").
			With("operation", "update password").
			With("id", id.String()).
			Wrap(err)
	}
	return user, nil
}

// RehashPassword replaces the hash without touching password_changed_at.
func (r *UserRepository) RehashPassword(ctx context.Context, id ulid.ULID, passwordHash string) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE users SET password_hash = $2, updated_at = $3
		WHERE id = $1
	`, id.String(), passwordHash, r.now())
	if err != nil {
		return oops.Code("USER_REHASH_FAILED").
			With("operation", "rehash password").
			With("id", id.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return notFound("id", id.String())
	}
	return nil
}

// SetResetToken stores a reset token hash and expiry, replacing any previous pair.
func (r *UserRepository) SetResetToken(ctx context.Context, id ulid.ULID, tokenHash string, expiresAt time.Time) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE users SET reset_token_hash = $2, reset_token_expires_at = $3
		WHERE id = $1
	`, id.String(), tokenHash, expiresAt)
	if err != nil {
		return oops.Code("USER_SET_RESET_TOKEN_FAILED").
			With("operation", "set reset token").
			With("id", id.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return notFound("id", id.String())
	}
	return nil
}

// ClearResetToken removes any outstanding reset token.
func (r *UserRepository) ClearResetToken(ctx context.Context, id ulid.ULID) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE users SET reset_token_hash = NULL, reset_token_expires_at = NULL
		WHERE id = $1
	`, id.String())
	if err != nil {
		return oops.Code("USER_CLEAR_RESET_TOKEN_FAILED").
			With("operation", "clear reset token").
			With("id", id.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return notFound("id", id.String())
	}
	return nil
}

// RevokeResetToken clears the reset fields only while tokenHash is still the
// outstanding token, so rolling back a failed delivery cannot wipe a token
// issued by a later request.
func (r *UserRepository) RevokeResetToken(ctx context.Context, id ulid.ULID, tokenHash string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE users SET reset_token_hash = NULL, reset_token_expires_at = NULL
		WHERE id = $1 AND reset_token_hash = $2
	`, id.String(), tokenHash)
	if err != nil {
		return oops.Code("USER_REVOKE_RESET_TOKEN_FAILED").
			With("operation", "revoke reset token").
			With("id", id.String()).
			Wrap(err)
	}
	return nil
}

// ConsumeResetToken redeems an unexpired reset token in one statement. Two
// concurrent redemptions of the same token serialize on the row lock and the
// second matches nothing.
func (r *UserRepository) ConsumeResetToken(ctx context.Context, tokenHash, passwordHash string) (*auth.User, error) {
	now := r.now()
	row := r.pool.QueryRow(ctx, `
		UPDATE users SET
			password_hash = $2,
			password_changed_at = $3,
			reset_token_hash = NULL,
			reset_token_expires_at = NULL,
			updated_at = $4
		WHERE reset_token_hash = $1
		  AND reset_token_expires_at > $4
		  AND active
		RETURNING `+userColumns,
		tokenHash, passwordHash, now.Add(-auth.PasswordChangeBackdate), now)

	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound("operation", "consume reset token")
	}
	if err != nil {
		return nil, oops.Code("USER_CONSUME_RESET_TOKEN_FAILED").
			With("operation", "consume reset token").
			Wrap(err)
	}
	return user, nil
}

// UpdateProfile changes name and email.
func (r *UserRepository) UpdateProfile(ctx context.Context, id ulid.ULID, name, email string) (*auth.User, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE users SET name = $2, email = $3, updated_at = $4
		WHERE id = $1
		RETURNING `+userColumns,
		id.String(), name, email, r.now())

	user, err := scanUser(row)
	if isUniqueViolation(err) {
		return nil, oops.Code("USER_EMAIL_TAKEN").With("email", email).Wrap(auth.ErrEmailTaken)
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound("id", id.String())
	}
	if err != nil {
		return nil, oops.Code("USER_UPDATE_PROFILE_FAILED").
			With("operation", "update profile").
			With("id", id.String()).
			Wrap(err)
	}
	return user, nil
}

// SetActive flags a user as active or deactivated.
func (r *UserRepository) SetActive(ctx context.Context, id ulid.ULID, active bool) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE users SET active = $2, updated_at = $3
		WHERE id = $1
	`, id.String(), active, r.now())
	if err != nil {
		return oops.Code("USER_SET_ACTIVE_FAILED").
			With("operation", "set active").
			With("id", id.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return notFound("id", id.String())
	}
	return nil
}

// SetRole changes the role of a user.
func (r *UserRepository) SetRole(ctx context.Context, id ulid.ULID, role auth.Role) (*auth.User, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE users SET role = $2, updated_at = $3
		WHERE id = $1
		RETURNING `+userColumns,
		id.String(), string(role), r.now())

	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound("id", id.String())
	}
	if err != nil {
		return nil, oops.Code("USER_SET_ROLE_FAILED").
			With("operation", "set role").
			With("id", id.String()).
			Wrap(err)
	}
	return user, nil
}

// List returns a page of users ordered by creation time.
func (r *UserRepository) List(ctx context.Context, opts auth.ListOptions) ([]*auth.User, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+userColumns+` FROM users
		ORDER BY created_at, id
		LIMIT $1 OFFSET $2
	`, opts.Limit, opts.Offset)
	if err != nil {
		return nil, oops.Code("USER_LIST_FAILED").With("operation", "list users").Wrap(err)
	}
	defer rows.Close()

	users := make([]*auth.User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, oops.Code("USER_LIST_FAILED").With("operation", "scan user").Wrap(err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("USER_LIST_FAILED").With("operation", "iterate users").Wrap(err)
	}
	return users, nil
}

// scanUser scans a single row into a User.
// Callers are responsible for handling pgx.ErrNoRows.
func scanUser(row pgx.Row) (*auth.User, error) {
	var (
		idStr string
		role  string
		user  auth.User
	)

	err := row.Scan(
		&idStr,
		&user.Name,
		&user.Email,
		&user.PasswordHash,
		&role,
		&user.Active,
		&user.PasswordChangedAt,
		&user.ResetTokenHash,
		&user.ResetTokenExpiresAt,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err //nolint:wrapcheck // callers wrap with operation context
	}

	user.ID, err = ulid.Parse(idStr)
	if err != nil {
		return nil, oops.With("operation", "parse user id").With("id", idStr).Wrap(err)
	}
	user.Role = auth.Role(role)
	return &user, nil
}
