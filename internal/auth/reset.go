// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Trailhead Contributors

package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/samber/oops"
)

// Reset token configuration.
const (
	ResetTokenBytes    = 32 // 64 hex chars
	DefaultResetWindow = 10 * time.Minute
)

// GenerateResetToken creates a random reset secret and its hash.
// The plaintext goes to the user; only the hash is stored.
func GenerateResetToken() (token, hash string, err error) {
	tokenBytes := make([]byte, ResetTokenBytes)
	if _, err = rand.Read(tokenBytes); err != nil {
		return "", "", oops.Code("RESET_TOKEN_GENERATE_FAILED").Wrap(err)
	}

	token = hex.EncodeToString(tokenBytes)
	return token, HashResetToken(token), nil
}

// HashResetToken returns the hex sha256 of a reset secret, the form it is
// stored and looked up by.
func HashResetToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

// validResetTokenFormat reports whether token could have come from
// GenerateResetToken. Anything else is rejected before touching the store.
func validResetTokenFormat(token string) bool {
	if len(token) != ResetTokenBytes*2 {
		return false
	}
	_, err := hex.DecodeString(token)
	return err == nil
}
