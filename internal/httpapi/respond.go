// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Trailhead Contributors

package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/trailhead/trailhead/internal/auth"
	"github.com/trailhead/trailhead/pkg/errutil"
)

// Response status values.
const (
	statusSuccess = "success"
	statusFail    = "fail"
	statusError   = "error"
)

// Client-facing messages for server-side failures. Internal detail is logged,
// never returned.
const (
	msgInternal       = "something went very wrong"
	msgDeliveryFailed = "there was an error sending the email, try again later"
)

type envelope struct {
	Status  string `json:"status"`
	Token   string `json:"token,omitempty"`
	Message string `json:"message,omitempty"`
	Results *int   `json:"results,omitempty"`
	Data    any    `json:"data,omitempty"`
}

type userData struct {
	User auth.PublicUser `json:"user"`
}

type usersData struct {
	Users []auth.PublicUser `json:"users"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	//nolint:errcheck // client may disconnect, nothing to do
	json.NewEncoder(w).Encode(body)
}

// statusFor maps an error kind to its HTTP status.
func statusFor(kind auth.Kind) int {
	switch kind {
	case auth.KindValidation, auth.KindResetTokenInvalid:
		return http.StatusBadRequest
	case auth.KindInvalidCredentials, auth.KindUnauthenticated:
		return http.StatusUnauthorized
	case auth.KindForbidden:
		return http.StatusForbidden
	case auth.KindNotFound:
		return http.StatusNotFound
	case auth.KindDeliveryFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err. Client errors echo the error message; server errors
// are logged and replaced with a generic message.
func writeError(ctx context.Context, w http.ResponseWriter, logger *slog.Logger, err error) {
	kind := auth.KindOf(err)
	status := statusFor(kind)

	switch kind {
	case auth.KindInternal:
		errutil.LogErrorContext(ctx, logger, "request failed", err)
		writeJSON(w, status, envelope{Status: statusError, Message: msgInternal})
	case auth.KindDeliveryFailed:
		errutil.LogErrorContext(ctx, logger, "mail delivery failed", err)
		writeJSON(w, status, envelope{Status: statusError, Message: msgDeliveryFailed})
	default:
		writeJSON(w, status, envelope{Status: statusFail, Message: err.Error()})
	}
}
