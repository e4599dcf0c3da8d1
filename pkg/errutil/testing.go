// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Trailhead Contributors

package errutil

import (
	"testing"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// AssertErrorCode asserts that err carries code. oops reports the deepest code
// in a chain, so a coded error wrapped under another code reports the inner one.
func AssertErrorCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err, "expected an error with code %s", code)
	_, ok := oops.AsOops(err)
	require.True(t, ok, "expected oops error, got %T: %v", err, err)
	assert.Equal(t, code, Code(err), "error: %v", err)
}

// AssertErrorKind asserts that kindOf classifies err as want. It lets packages
// check their own error taxonomy without errutil importing them.
func AssertErrorKind[K comparable](t *testing.T, err error, kindOf func(error) K, want K) {
	t.Helper()
	require.Error(t, err, "expected an error of kind %v", want)
	assert.Equal(t, want, kindOf(err), "error: %v", err)
}

// AssertSameError asserts that got is indistinguishable from want to a caller:
// same code and same message. Context may differ; it is only logged.
func AssertSameError(t *testing.T, want, got error) {
	t.Helper()
	require.Error(t, want)
	require.Error(t, got)
	assert.Equal(t, Code(want), Code(got), "code of %v", got)
	assert.Equal(t, want.Error(), got.Error())
}

// AssertErrorContext asserts that err is an oops error whose merged context
// holds key with value.
func AssertErrorContext(t *testing.T, err error, key string, value any) {
	t.Helper()
	oopsErr, ok := oops.AsOops(err)
	require.True(t, ok, "expected oops error, got %T: %v", err, err)
	ctx := oopsErr.Context()
	require.Contains(t, ctx, key, "context: %v", ctx)
	assert.Equal(t, value, ctx[key])
}
