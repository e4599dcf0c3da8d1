// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Trailhead Contributors

// Package authtest provides in-memory fakes for exercising the auth package
// without a database or mail transport.
package authtest

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/trailhead/trailhead/internal/auth"
	"github.com/trailhead/trailhead/internal/mail"
)

// Clock is a manually advanced clock.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock returns a clock stopped at start.
func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

// Now returns the current fake time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// UserStore is an in-memory auth.UserRepository with the same observable
// semantics as the postgres implementation.
type UserStore struct {
	mu    sync.Mutex
	now   func() time.Time
	users map[ulid.ULID]*auth.User
}

var _ auth.UserRepository = (*UserStore)(nil)

// NewUserStore creates an empty store. A nil clock uses time.Now.
func NewUserStore(now func() time.Time) *UserStore {
	if now == nil {
		now = time.Now
	}
	return &UserStore{now: now, users: make(map[ulid.ULID]*auth.User)}
}

func clone(u *auth.User) *auth.User {
	c := *u
	if u.PasswordChangedAt != nil {
		t := *u.PasswordChangedAt
		c.PasswordChangedAt = &t
	}
	if u.ResetTokenHash != nil {
		h := *u.ResetTokenHash
		c.ResetTokenHash = &h
	}
	if u.ResetTokenExpiresAt != nil {
		t := *u.ResetTokenExpiresAt
		c.ResetTokenExpiresAt = &t
	}
	return &c
}

func (s *UserStore) emailTaken(email string, except ulid.ULID) bool {
	for id, u := range s.users {
		if id != except && u.Email == email {
			return true
		}
	}
	return false
}

// Create implements auth.UserRepository.
func (s *UserStore) Create(_ context.Context, user *auth.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.emailTaken(user.Email, ulid.ULID{}) {
		return auth.ErrEmailTaken
	}
	s.users[user.ID] = clone(user)
	return nil
}

// GetByID implements auth.UserRepository.
func (s *UserStore) GetByID(_ context.Context, id ulid.ULID) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	return clone(u), nil
}

// GetByEmail implements auth.UserRepository.
func (s *UserStore) GetByEmail(_ context.Context, email string) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == email {
			return clone(u), nil
		}
	}
	return nil, auth.ErrNotFound
}

func (s *UserStore) byResetHash(tokenHash string) *auth.User {
	now := s.now()
	for _, u := range s.users {
		if u.ResetTokenHash != nil && *u.ResetTokenHash == tokenHash &&
			u.ResetTokenExpiresAt != nil && u.ResetTokenExpiresAt.After(now) {
			return u
		}
	}
	return nil
}

// GetByResetTokenHash implements auth.UserRepository.
func (s *UserStore) GetByResetTokenHash(_ context.Context, tokenHash string) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.byResetHash(tokenHash)
	if u == nil {
		return nil, auth.ErrNotFound
	}
	return clone(u), nil
}

func (s *UserStore) setPassword(u *auth.User, passwordHash string) {
	now := s.now()
	changed := now.Add(-auth.PasswordChangeBackdate)
	u.PasswordHash = passwordHash
	u.PasswordChangedAt = &changed
	u.UpdatedAt = now
}

// UpdatePassword implements auth.UserRepository.
func (s *UserStore) UpdatePassword(_ context.Context, id ulid.ULID, passwordHash string) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	s.setPassword(u, passwordHash)
	return clone(u), nil
}

// RehashPassword implements auth.UserRepository.
func (s *UserStore) RehashPassword(_ context.Context, id ulid.ULID, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return auth.ErrNotFound
	}
	u.PasswordHash = passwordHash
	return nil
}

// SetResetToken implements auth.UserRepository.
func (s *UserStore) SetResetToken(_ context.Context, id ulid.ULID, tokenHash string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return auth.ErrNotFound
	}
	u.ResetTokenHash = &tokenHash
	u.ResetTokenExpiresAt = &expiresAt
	return nil
}

// ClearResetToken implements auth.UserRepository.
func (s *UserStore) ClearResetToken(_ context.Context, id ulid.ULID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return auth.ErrNotFound
	}
	u.ResetTokenHash = nil
	u.ResetTokenExpiresAt = nil
	return nil
}

// RevokeResetToken implements auth.UserRepository.
func (s *UserStore) RevokeResetToken(_ context.Context, id ulid.ULID, tokenHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok || u.ResetTokenHash == nil || *u.ResetTokenHash != tokenHash {
		return nil
	}
	u.ResetTokenHash = nil
	u.ResetTokenExpiresAt = nil
	return nil
}

// ConsumeResetToken implements auth.UserRepository.
func (s *UserStore) ConsumeResetToken(_ context.Context, tokenHash, passwordHash string) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.byResetHash(tokenHash)
	if u == nil || !u.Active {
		return nil, auth.ErrNotFound
	}
	s.setPassword(u, passwordHash)
	u.ResetTokenHash = nil
	u.ResetTokenExpiresAt = nil
	return clone(u), nil
}

// UpdateProfile implements auth.UserRepository.
func (s *UserStore) UpdateProfile(_ context.Context, id ulid.ULID, name, email string) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	if s.emailTaken(email, id) {
		return nil, auth.ErrEmailTaken
	}
	u.Name = name
	u.Email = email
	u.UpdatedAt = s.now()
	return clone(u), nil
}

// SetActive implements auth.UserRepository.
func (s *UserStore) SetActive(_ context.Context, id ulid.ULID, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return auth.ErrNotFound
	}
	u.Active = active
	u.UpdatedAt = s.now()
	return nil
}

// SetRole implements auth.UserRepository.
func (s *UserStore) SetRole(_ context.Context, id ulid.ULID, role auth.Role) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	u.Role = role
	u.UpdatedAt = s.now()
	return clone(u), nil
}

// List implements auth.UserRepository.
func (s *UserStore) List(_ context.Context, opts auth.ListOptions) ([]*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := make([]*auth.User, 0, len(s.users))
	for _, u := range s.users {
		all = append(all, clone(u))
	}
	slices.SortFunc(all, func(a, b *auth.User) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return a.ID.Compare(b.ID)
	})
	if opts.Offset >= len(all) {
		return []*auth.User{}, nil
	}
	all = all[opts.Offset:]
	if opts.Limit > 0 && opts.Limit < len(all) {
		all = all[:opts.Limit]
	}
	return all, nil
}

// Outbox records sent messages and can be told to fail.
type Outbox struct {
	mu   sync.Mutex
	sent []mail.Message
	err  error
}

var _ mail.Sender = (*Outbox)(nil)

// Send records msg, or returns the configured failure.
func (o *Outbox) Send(_ context.Context, msg mail.Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err != nil {
		return o.err
	}
	o.sent = append(o.sent, msg)
	return nil
}

// FailWith makes every following Send return err. A nil err restores delivery.
func (o *Outbox) FailWith(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.err = err
}

// Sent returns a copy of the delivered messages.
func (o *Outbox) Sent() []mail.Message {
	o.mu.Lock()
	defer o.mu.Unlock()
	return slices.Clone(o.sent)
}

// Last returns the most recently delivered message.
func (o *Outbox) Last() (mail.Message, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.sent) == 0 {
		return mail.Message{}, false
	}
	return o.sent[len(o.sent)-1], true
}
