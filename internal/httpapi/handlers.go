// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Trailhead Contributors

package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/trailhead/trailhead/internal/auth"
)

// cookieName carries the token for browser clients.
const cookieName = "jwt"

func (a *api) setTokenCookie(w http.ResponseWriter, res *auth.AuthResult) {
	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    res.Token,
		Path:     "/",
		Expires:  res.ExpiresAt,
		HttpOnly: true,
		Secure:   a.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// sendToken writes a logged-in response and its cookie.
func (a *api) sendToken(w http.ResponseWriter, status int, res *auth.AuthResult) {
	a.setTokenCookie(w, res)
	writeJSON(w, status, envelope{
		Status: statusSuccess,
		Token:  res.Token,
		Data:   userData{User: res.User},
	})
}

func (a *api) signup(w http.ResponseWriter, r *http.Request) {
	doc, err := readBody(w, r)
	if err != nil {
		writeError(r.Context(), w, a.logger, err)
		return
	}
	var req signupRequest
	if err := decode("signup", doc, &req); err != nil {
		writeError(r.Context(), w, a.logger, err)
		return
	}

	res, err := a.svc.Signup(r.Context(), auth.SignupInput{
		Name:            req.Name,
		Email:           req.Email,
		Password:        req.Password,
		PasswordConfirm: req.PasswordConfirm,
	})
	if err != nil {
		writeError(r.Context(), w, a.logger, err)
		return
	}
	a.sendToken(w, http.StatusCreated, res)
}

func (a *api) login(w http.ResponseWriter, r *http.Request) {
	doc, err := readBody(w, r)
	if err != nil {
		writeError(r.Context(), w, a.logger, err)
		return
	}
	var req loginRequest
	if err := decode("login", doc, &req); err != nil {
		writeError(r.Context(), w, a.logger, err)
		return
	}

	res, err := a.svc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(r.Context(), w, a.logger, err)
		return
	}
	a.sendToken(w, http.StatusOK, res)
}

func (a *api) logout(w http.ResponseWriter, _ *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    "",
		Path:     "/",
		Expires:  a.now().Add(-time.Hour),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   a.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, envelope{Status: statusSuccess})
}

func (a *api) forgotPassword(w http.ResponseWriter, r *http.Request) {
	doc, err := readBody(w, r)
	if err != nil {
		writeError(r.Context(), w, a.logger, err)
		return
	}
	var req forgotPasswordRequest
	if err := decode("forgot-password", doc, &req); err != nil {
		writeError(r.Context(), w, a.logger, err)
		return
	}

	if err := a.svc.RequestPasswordReset(r.Context(), req.Email); err != nil {
		writeError(r.Context(), w, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Status: statusSuccess, Message: "token sent to email"})
}

func (a *api) checkResetToken(w http.ResponseWriter, r *http.Request) {
	if _, err := a.svc.ValidateResetToken(r.Context(), chi.URLParam(r, "token")); err != nil {
		writeError(r.Context(), w, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Status: statusSuccess, Message: "token is valid"})
}

func (a *api) resetPassword(w http.ResponseWriter, r *http.Request) {
	doc, err := readBody(w, r)
	if err != nil {
		writeError(r.Context(), w, a.logger, err)
		return
	}
	var req resetPasswordRequest
	if err := decode("reset-password", doc, &req); err != nil {
		writeError(r.Context(), w, a.logger, err)
		return
	}

	res, err := a.svc.ResetPassword(r.Context(), chi.URLParam(r, "token"), req.Password, req.PasswordConfirm)
	if err != nil {
		writeError(r.Context(), w, a.logger, err)
		return
	}
	a.sendToken(w, http.StatusOK, res)
}

func (a *api) updatePassword(w http.ResponseWriter, r *http.Request) {
	id, err := identity(r)
	if err != nil {
		writeError(r.Context(), w, a.logger, err)
		return
	}
	doc, err := readBody(w, r)
	if err != nil {
		writeError(r.Context(), w, a.logger, err)
		return
	}
	var req updatePasswordRequest
	if err := decode("update-password", doc, &req); err != nil {
		writeError(r.Context(), w, a.logger, err)
		return
	}

	res, err := a.svc.ChangePassword(r.Context(), id.UserID, req.PasswordCurrent, req.Password, req.PasswordConfirm)
	if err != nil {
		writeError(r.Context(), w, a.logger, err)
		return
	}
	a.sendToken(w, http.StatusOK, res)
}

func (a *api) me(w http.ResponseWriter, r *http.Request) {
	id, err := identity(r)
	if err != nil {
		writeError(r.Context(), w, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Status: statusSuccess, Data: userData{User: id.User}})
}

func (a *api) updateMe(w http.ResponseWriter, r *http.Request) {
	id, err := identity(r)
	if err != nil {
		writeError(r.Context(), w, a.logger, err)
		return
	}
	doc, err := readBody(w, r)
	if err != nil {
		writeError(r.Context(), w, a.logger, err)
		return
	}
	if obj, ok := doc.(map[string]any); ok {
		for _, field := range []string{"password", "passwordConfirm"} {
			if _, present := obj[field]; present {
				writeError(r.Context(), w, a.logger,
					badRequest(field, "this route is not for password updates, please use /updatepassword"))
				return
			}
		}
	}
	var req updateMeRequest
	if err := decode("update-me", doc, &req); err != nil {
		writeError(r.Context(), w, a.logger, err)
		return
	}

	user, err := a.svc.UpdateProfile(r.Context(), id.UserID, auth.ProfileUpdate{Name: req.Name, Email: req.Email})
	if err != nil {
		writeError(r.Context(), w, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Status: statusSuccess, Data: userData{User: user}})
}

func (a *api) deleteMe(w http.ResponseWriter, r *http.Request) {
	id, err := identity(r)
	if err != nil {
		writeError(r.Context(), w, a.logger, err)
		return
	}
	if err := a.svc.Deactivate(r.Context(), id.UserID); err != nil {
		writeError(r.Context(), w, a.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) listUsers(w http.ResponseWriter, r *http.Request) {
	opts := auth.ListOptions{}
	for param, dst := range map[string]*int{"limit": &opts.Limit, "offset": &opts.Offset} {
		raw := r.URL.Query().Get(param)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(r.Context(), w, a.logger, badRequest(param, "%s must be a non-negative integer", param))
			return
		}
		*dst = n
	}

	users, err := a.svc.ListUsers(r.Context(), opts)
	if err != nil {
		writeError(r.Context(), w, a.logger, err)
		return
	}
	n := len(users)
	writeJSON(w, http.StatusOK, envelope{Status: statusSuccess, Results: &n, Data: usersData{Users: users}})
}
