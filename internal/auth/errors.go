// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Trailhead Contributors

package auth

import (
	"errors"

	"github.com/samber/oops"
)

// ErrNotFound is returned by repositories when a requested user does not exist.
var ErrNotFound = errors.New("not found")

// ErrEmailTaken is returned by repositories when an email is already registered.
var ErrEmailTaken = errors.New("email already registered")

// Error codes carried by oops errors returned from this package. They are the
// stable identifiers callers switch on; messages may change.
const (
	CodeValidation         = "AUTH_VALIDATION_FAILED"
	CodeInvalidCredentials = "AUTH_INVALID_CREDENTIALS"
	CodeUnauthenticated    = "AUTH_UNAUTHENTICATED"
	CodeForbidden          = "AUTH_FORBIDDEN"
	CodeNotFound           = "AUTH_NOT_FOUND"
	CodeResetTokenInvalid  = "AUTH_RESET_TOKEN_INVALID"
	CodeDeliveryFailed     = "AUTH_DELIVERY_FAILED"
	CodeInternal           = "AUTH_INTERNAL"
)

// Kind classifies an error into the operational taxonomy exposed to callers.
type Kind string

// Error kinds.
const (
	KindValidation         Kind = "validation"
	KindInvalidCredentials Kind = "invalid_credentials"
	KindUnauthenticated    Kind = "unauthenticated"
	KindForbidden          Kind = "forbidden"
	KindNotFound           Kind = "not_found"
	KindResetTokenInvalid  Kind = "invalid_or_expired_token"
	KindDeliveryFailed     Kind = "delivery_failed"
	KindInternal           Kind = "internal"
)

var kindsByCode = map[string]Kind{
	CodeValidation:         KindValidation,
	CodeInvalidCredentials: KindInvalidCredentials,
	CodeUnauthenticated:    KindUnauthenticated,
	CodeForbidden:          KindForbidden,
	CodeNotFound:           KindNotFound,
	CodeResetTokenInvalid:  KindResetTokenInvalid,
	CodeDeliveryFailed:     KindDeliveryFailed,
}

// KindOf returns the Kind of err. Errors without a recognised code, including
// plain errors and nil-coded oops errors, are KindInternal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return KindInternal
	}
	code, _ := oopsErr.Code().(string)
	if kind, found := kindsByCode[code]; found {
		return kind
	}
	return KindInternal
}

// Message texts shared by every path that produces the error, so callers
// cannot tell the paths apart.
const (
	msgInvalidCredentials = "incorrect email or password"
	msgUnauthenticated    = "you are not logged in, please log in to get access"
	msgForbidden          = "you do not have permission to perform this action"
	msgResetTokenInvalid  = "token is invalid or has expired"
)

func validationError(field, format string, args ...any) error {
	return oops.Code(CodeValidation).With("field", field).Errorf(format, args...)
}

func invalidCredentials() error {
	return oops.Code(CodeInvalidCredentials).Errorf(msgInvalidCredentials)
}

func unauthenticated(reason string) error {
	return oops.Code(CodeUnauthenticated).With("reason", reason).Errorf(msgUnauthenticated)
}

func internalError(operation string, err error) error {
	return oops.Code(CodeInternal).With("operation", operation).Wrap(err)
}
