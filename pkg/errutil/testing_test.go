// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Trailhead Contributors

package errutil_test

import (
	"errors"
	"testing"

	"github.com/samber/oops"

	"github.com/trailhead/trailhead/pkg/errutil"
)

func TestAssertErrorCode(t *testing.T) {
	errutil.AssertErrorCode(t, oops.Code("AUTH_FORBIDDEN").Errorf("no"), "AUTH_FORBIDDEN")
}

func TestAssertErrorCode_DeepestCodeWins(t *testing.T) {
	inner := oops.Code("USER_CREATE_FAILED").Wrap(errors.New("connection reset"))
	err := oops.Code("AUTH_INTERNAL").With("operation", "create user").Wrap(inner)
	errutil.AssertErrorCode(t, err, "USER_CREATE_FAILED")
	errutil.AssertErrorContext(t, err, "operation", "create user")
}

func TestAssertErrorKind(t *testing.T) {
	kindOf := func(err error) string {
		if errutil.Code(err) == "AUTH_FORBIDDEN" {
			return "forbidden"
		}
		return "internal"
	}
	errutil.AssertErrorKind(t, oops.Code("AUTH_FORBIDDEN").Errorf("no"), kindOf, "forbidden")
	errutil.AssertErrorKind(t, errors.New("boom"), kindOf, "internal")
}

func TestAssertSameError(t *testing.T) {
	a := oops.Code("AUTH_INVALID_CREDENTIALS").With("reason", "unknown_user").Errorf("incorrect email or password")
	b := oops.Code("AUTH_INVALID_CREDENTIALS").With("reason", "wrong_password").Errorf("incorrect email or password")
	errutil.AssertSameError(t, a, b)
}

func TestAssertErrorContext(t *testing.T) {
	err := oops.With("user_id", "123").Errorf("test error")
	errutil.AssertErrorContext(t, err, "user_id", "123")
}
