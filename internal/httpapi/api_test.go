// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Trailhead Contributors

package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trailhead/trailhead/internal/auth"
	"github.com/trailhead/trailhead/internal/auth/authtest"
	"github.com/trailhead/trailhead/internal/httpapi"
)

const resetBase = "https://trailhead.test/api/v1/users/resetpassword"

type harness struct {
	t       *testing.T
	clock   *authtest.Clock
	users   *authtest.UserStore
	outbox  *authtest.Outbox
	svc     *auth.Service
	metrics *httpapi.Metrics
	logs    *bytes.Buffer
	handler http.Handler
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		t:      t,
		clock:  authtest.NewClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)),
		outbox: &authtest.Outbox{},
		logs:   &bytes.Buffer{},
	}
	h.users = authtest.NewUserStore(h.clock.Now)

	tokens, err := auth.NewTokenIssuer(auth.TokenConfig{
		Secret: []byte("0123456789abcdef0123456789abcdef"),
		TTL:    time.Hour,
		Issuer: "trailhead",
	}, auth.WithTokenClock(h.clock.Now))
	require.NoError(t, err)

	logger := slog.New(slog.NewJSONHandler(h.logs, nil))
	opts := []auth.Option{
		auth.WithClock(h.clock.Now),
		auth.WithLogger(logger),
		auth.WithResetURLBase(resetBase),
	}
	h.svc, err = auth.NewService(h.users, auth.NewArgon2idHasher(), tokens, h.outbox, opts...)
	require.NoError(t, err)
	gate, err := auth.NewGate(h.users, tokens, opts...)
	require.NoError(t, err)

	h.metrics = httpapi.NewMetrics(prometheus.NewRegistry())
	h.handler = httpapi.NewRouter(h.svc, gate,
		httpapi.Config{AllowedOrigins: []string{"https://app.trailhead.test"}, CookieSecure: true},
		httpapi.WithLogger(logger),
		httpapi.WithMetrics(h.metrics),
		httpapi.WithClock(h.clock.Now),
	)
	return h
}

type response struct {
	Code    int
	Header  http.Header
	Cookies []*http.Cookie
	Body    map[string]any
}

func (h *harness) do(method, path string, body any, token string) response {
	h.t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(h.t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)

	res := response{Code: rec.Code, Header: rec.Header(), Cookies: rec.Result().Cookies()}
	if rec.Body.Len() > 0 {
		require.NoError(h.t, json.Unmarshal(rec.Body.Bytes(), &res.Body), "body: %s", rec.Body.String())
	}
	return res
}

func (h *harness) signup(name, email, password string) string {
	h.t.Helper()
	res := h.do(http.MethodPost, "/api/v1/users/signup", map[string]any{
		"name": name, "email": email, "password": password, "passwordConfirm": password,
	}, "")
	require.Equal(h.t, http.StatusCreated, res.Code, "signup: %v", res.Body)
	return res.Body["token"].(string)
}

func userField(t *testing.T, res response, key string) any {
	t.Helper()
	data, ok := res.Body["data"].(map[string]any)
	require.True(t, ok, "no data: %v", res.Body)
	user, ok := data["user"].(map[string]any)
	require.True(t, ok, "no user: %v", res.Body)
	return user[key]
}

func jwtCookie(res response) *http.Cookie {
	for _, c := range res.Cookies {
		if c.Name == "jwt" {
			return c
		}
	}
	return nil
}

func TestSignup(t *testing.T) {
	h := newHarness(t)

	res := h.do(http.MethodPost, "/api/v1/users/signup", map[string]any{
		"name": "Alice", "email": "Alice@Example.com", "password": "pass1234",
		"passwordConfirm": "pass1234", "role": "admin",
	}, "")

	require.Equal(t, http.StatusCreated, res.Code)
	assert.Equal(t, "success", res.Body["status"])
	assert.NotEmpty(t, res.Body["token"])
	assert.Equal(t, "alice@example.com", userField(t, res, "email"))
	assert.Equal(t, "customer", userField(t, res, "role"), "requested role is ignored")
	assert.NotContains(t, res.Body["data"].(map[string]any)["user"], "passwordHash")

	cookie := jwtCookie(res)
	require.NotNil(t, cookie)
	assert.Equal(t, res.Body["token"], cookie.Value)
	assert.True(t, cookie.HttpOnly)
	assert.True(t, cookie.Secure)
}

func TestSignup_Validation(t *testing.T) {
	h := newHarness(t)

	tests := []struct {
		name    string
		body    any
		message string
	}{
		{"empty body", "", "request body is required"},
		{"malformed json", "{", "request body must be valid JSON"},
		{"missing field", map[string]any{"name": "Al", "email": "a@example.com", "password": "pass1234"}, "passwordConfirm is required"},
		{"wrong type", map[string]any{"name": 42, "email": "a@example.com", "password": "pass1234", "passwordConfirm": "pass1234"}, "name must be string"},
		{"mismatched", map[string]any{"name": "Al", "email": "a@example.com", "password": "pass1234", "passwordConfirm": "pass4321"}, "passwords do not match"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := h.do(http.MethodPost, "/api/v1/users/signup", tt.body, "")
			assert.Equal(t, http.StatusBadRequest, res.Code)
			assert.Equal(t, "fail", res.Body["status"])
			assert.Equal(t, tt.message, res.Body["message"])
		})
	}
}

func TestLogin(t *testing.T) {
	h := newHarness(t)
	h.signup("Alice", "alice@example.com", "pass1234")

	res := h.do(http.MethodPost, "/api/v1/users/login", map[string]any{"email": "alice@example.com", "password": "pass1234"}, "")
	require.Equal(t, http.StatusOK, res.Code)
	assert.NotEmpty(t, res.Body["token"])
	assert.NotNil(t, jwtCookie(res))

	wrong := h.do(http.MethodPost, "/api/v1/users/login", map[string]any{"email": "alice@example.com", "password": "nope1234"}, "")
	unknown := h.do(http.MethodPost, "/api/v1/users/login", map[string]any{"email": "bob@example.com", "password": "pass1234"}, "")
	assert.Equal(t, http.StatusUnauthorized, wrong.Code)
	assert.Equal(t, wrong.Code, unknown.Code)
	assert.Equal(t, wrong.Body, unknown.Body, "failures must be indistinguishable")

	for _, body := range []map[string]any{
		{"email": "alice@example.com"},
		{"password": "pass1234"},
		{},
	} {
		missing := h.do(http.MethodPost, "/api/v1/users/login", body, "")
		assert.Equal(t, wrong.Code, missing.Code, "missing field in %v", body)
		assert.Equal(t, wrong.Body, missing.Body, "missing field in %v", body)
	}
}

func TestLogout(t *testing.T) {
	h := newHarness(t)

	res := h.do(http.MethodGet, "/api/v1/users/logout", nil, "")
	require.Equal(t, http.StatusOK, res.Code)
	cookie := jwtCookie(res)
	require.NotNil(t, cookie)
	assert.Empty(t, cookie.Value)
	assert.Negative(t, cookie.MaxAge)
}

func TestProtectedRoutes(t *testing.T) {
	h := newHarness(t)
	token := h.signup("Alice", "alice@example.com", "pass1234")

	t.Run("bearer header", func(t *testing.T) {
		res := h.do(http.MethodGet, "/api/v1/users/me", nil, token)
		require.Equal(t, http.StatusOK, res.Code)
		assert.Equal(t, "Alice", userField(t, res, "name"))
	})

	t.Run("cookie fallback", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/users/me", nil)
		req.AddCookie(&http.Cookie{Name: "jwt", Value: token})
		rec := httptest.NewRecorder()
		h.handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("no credential", func(t *testing.T) {
		res := h.do(http.MethodGet, "/api/v1/users/me", nil, "")
		assert.Equal(t, http.StatusUnauthorized, res.Code)
		assert.Equal(t, "you are not logged in, please log in to get access", res.Body["message"])
	})

	t.Run("forged token", func(t *testing.T) {
		res := h.do(http.MethodGet, "/api/v1/users/me", nil, token+"x")
		assert.Equal(t, http.StatusUnauthorized, res.Code)
	})
}

func TestUpdateMe(t *testing.T) {
	h := newHarness(t)
	token := h.signup("Alice", "alice@example.com", "pass1234")

	res := h.do(http.MethodPatch, "/api/v1/users/updateme", map[string]any{"password": "newpass12"}, token)
	assert.Equal(t, http.StatusBadRequest, res.Code)
	assert.Contains(t, res.Body["message"], "/updatepassword")

	res = h.do(http.MethodPatch, "/api/v1/users/updateme", map[string]any{"name": "Alicia"}, token)
	require.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, "Alicia", userField(t, res, "name"))
	assert.Equal(t, "alice@example.com", userField(t, res, "email"))
}

func TestUpdatePassword(t *testing.T) {
	h := newHarness(t)
	token := h.signup("Alice", "alice@example.com", "pass1234")
	h.clock.Advance(5 * time.Second)

	res := h.do(http.MethodPatch, "/api/v1/users/updatepassword", map[string]any{
		"passwordCurrent": "wrong123", "password": "newpass12", "passwordConfirm": "newpass12",
	}, token)
	assert.Equal(t, http.StatusUnauthorized, res.Code)

	res = h.do(http.MethodPatch, "/api/v1/users/updatepassword", map[string]any{
		"passwordCurrent": "pass1234", "password": "newpass12", "passwordConfirm": "newpass12",
	}, token)
	require.Equal(t, http.StatusOK, res.Code)
	fresh := res.Body["token"].(string)

	assert.Equal(t, http.StatusUnauthorized, h.do(http.MethodGet, "/api/v1/users/me", nil, token).Code, "old token is stale")
	assert.Equal(t, http.StatusOK, h.do(http.MethodGet, "/api/v1/users/me", nil, fresh).Code)
}

func TestPasswordResetFlow(t *testing.T) {
	h := newHarness(t)
	h.signup("Alice", "alice@example.com", "pass1234")

	res := h.do(http.MethodPost, "/api/v1/users/forgotpassword", map[string]any{"email": "nobody@example.com"}, "")
	assert.Equal(t, http.StatusNotFound, res.Code)

	res = h.do(http.MethodPost, "/api/v1/users/forgotpassword", map[string]any{"email": "alice@example.com"}, "")
	require.Equal(t, http.StatusOK, res.Code)
	msg, ok := h.outbox.Last()
	require.True(t, ok)
	idx := strings.Index(msg.Body, resetBase+"/")
	require.GreaterOrEqual(t, idx, 0)
	secret := strings.Fields(msg.Body[idx+len(resetBase)+1:])[0]

	assert.Equal(t, http.StatusOK, h.do(http.MethodGet, "/api/v1/users/resetpassword/"+secret, nil, "").Code)

	body := map[string]any{"password": "newpass12", "passwordConfirm": "newpass12"}
	res = h.do(http.MethodPatch, "/api/v1/users/resetpassword/"+secret, body, "")
	require.Equal(t, http.StatusOK, res.Code)
	assert.NotEmpty(t, res.Body["token"])

	res = h.do(http.MethodPatch, "/api/v1/users/resetpassword/"+secret, body, "")
	assert.Equal(t, http.StatusBadRequest, res.Code, "secret is single use")
	assert.Equal(t, "token is invalid or has expired", res.Body["message"])
}

func TestForgotPassword_DeliveryFailure(t *testing.T) {
	h := newHarness(t)
	h.signup("Alice", "alice@example.com", "pass1234")
	h.outbox.FailWith(errors.New("smtp: 421 try later"))

	res := h.do(http.MethodPost, "/api/v1/users/forgotpassword", map[string]any{"email": "alice@example.com"}, "")
	assert.Equal(t, http.StatusBadGateway, res.Code)
	assert.Equal(t, "error", res.Body["status"])
	assert.NotContains(t, res.Body["message"], "421")
}

func TestDeleteMe(t *testing.T) {
	h := newHarness(t)
	token := h.signup("Alice", "alice@example.com", "pass1234")

	res := h.do(http.MethodDelete, "/api/v1/users/deleteme", nil, token)
	assert.Equal(t, http.StatusNoContent, res.Code)
	assert.Equal(t, http.StatusUnauthorized, h.do(http.MethodGet, "/api/v1/users/me", nil, token).Code)

	login := h.do(http.MethodPost, "/api/v1/users/login", map[string]any{"email": "alice@example.com", "password": "pass1234"}, "")
	assert.Equal(t, http.StatusUnauthorized, login.Code)
}

func TestListUsers_RestrictedToStaff(t *testing.T) {
	h := newHarness(t)
	customer := h.signup("Alice", "alice@example.com", "pass1234")
	lead := h.signup("Lena", "lena@example.com", "pass1234")
	_, err := h.svc.SetRole(context.Background(), "lena@example.com", auth.RoleLeadGuide)
	require.NoError(t, err)

	res := h.do(http.MethodGet, "/api/v1/users/", nil, customer)
	assert.Equal(t, http.StatusForbidden, res.Code)
	assert.Equal(t, "you do not have permission to perform this action", res.Body["message"])

	res = h.do(http.MethodGet, "/api/v1/users/?limit=1", nil, lead)
	require.Equal(t, http.StatusOK, res.Code)
	assert.InDelta(t, 1, res.Body["results"], 0)

	res = h.do(http.MethodGet, "/api/v1/users/?offset=-1", nil, lead)
	assert.Equal(t, http.StatusBadRequest, res.Code)
}

func TestNotFoundAndMetrics(t *testing.T) {
	h := newHarness(t)

	res := h.do(http.MethodGet, "/api/v1/tours", nil, "")
	assert.Equal(t, http.StatusNotFound, res.Code)
	assert.Equal(t, "can't find /api/v1/tours on this server", res.Body["message"])

	h.do(http.MethodGet, "/api/v1/users/me", nil, "")
	assert.InDelta(t, 1, testutil.ToFloat64(h.metrics.Requests.WithLabelValues("/api/v1/users/me", "401")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(h.metrics.Requests.WithLabelValues("unmatched", "404")), 0)
	assert.Contains(t, h.logs.String(), `"msg":"http request"`)
}

func TestCORS(t *testing.T) {
	h := newHarness(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/users/login", nil)
	req.Header.Set("Origin", "https://app.trailhead.test")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	assert.Equal(t, "https://app.trailhead.test", rec.Header().Get("Access-Control-Allow-Origin"))

	req.Header.Set("Origin", "https://evil.test")
	rec = httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

type panickingService struct {
	httpapi.AuthService
}

func (panickingService) Login(context.Context, string, string) (*auth.AuthResult, error) {
	panic("boom")
}

func TestPanicRecovery(t *testing.T) {
	var logs bytes.Buffer
	handler := httpapi.NewRouter(panickingService{}, nil, httpapi.Config{},
		httpapi.WithLogger(slog.New(slog.NewJSONHandler(&logs, nil))))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/users/login",
		strings.NewReader(`{"email":"a@example.com","password":"pass1234"}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "something went very wrong")
	assert.Contains(t, logs.String(), "handler panic")
}

func TestSchemas(t *testing.T) {
	schemas, err := httpapi.Schemas()
	require.NoError(t, err)
	assert.Len(t, schemas, len(httpapi.SchemaNames()))

	var signup map[string]any
	require.NoError(t, json.Unmarshal(schemas["signup"], &signup))
	assert.ElementsMatch(t, []any{"name", "email", "password", "passwordConfirm"}, signup["required"])

	var login map[string]any
	require.NoError(t, json.Unmarshal(schemas["login"], &login))
	assert.NotContains(t, login, "required", "missing login fields are reported as bad credentials")
	assert.Contains(t, login["properties"], "password")
}
