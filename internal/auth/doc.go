// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Trailhead Contributors

// Package auth provides password authentication and role-based access control
// for Trailhead.
//
// # Credentials
//
// Passwords are stored as argon2id hashes (Argon2idHasher). Users are created
// through NewUser, which takes an already validated SignupInput; repositories
// receive users built that way.
//
// # Tokens
//
// TokenIssuer signs stateless HS256 bearer tokens carrying the user id and the
// issue time. There is no session table. A token stops authenticating when it
// expires or when the user's password changes after it was issued: every
// store write of a new password stamps PasswordChangedAt, and Gate compares it
// against the token's iat.
//
// # Services
//
//   - Service - signup, login, password reset and password change
//   - Gate - bearer token authentication and role authorization
//
// Both are created with New* constructors that validate dependencies.
// Every error they return carries one of the Code* constants; KindOf maps it
// to the error taxonomy shown to clients.
package auth
