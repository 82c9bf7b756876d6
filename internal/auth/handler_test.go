package auth

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/solistry/auth-service/internal/profile"
	"github.com/solistry/auth-service/internal/rate"
)

// newTestServer wires the handler behind the same route guards the service
// binary uses.
func newTestServer(t *testing.T) (*httptest.Server, *testEnv) {
	t.Helper()

	env := newTestEnv(t)
	handler := NewHandler(env.service)

	client := redis.NewClient(&redis.Options{Addr: env.mr.Addr()})
	limiter := rate.New(client, "", map[string]rate.Rule{
		"login": {Max: 3, Window: time.Minute},
	})

	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/init", handler.Init)
	mux.HandleFunc("POST /auth/signup", handler.Signup)
	mux.Handle("POST /auth/signup/verify", RequireAuth(env.issuer, http.HandlerFunc(handler.SignupVerify)))
	mux.Handle("POST /auth/login", RateLimit(limiter, "login", http.HandlerFunc(handler.Login)))
	mux.HandleFunc("POST /auth/login/verify", handler.LoginVerify)
	mux.HandleFunc("POST /auth/refresh", handler.Refresh)
	mux.Handle("POST /auth/logout", RequireAuth(env.issuer, http.HandlerFunc(handler.Logout)))
	mux.Handle("GET /auth/validate", RequireAuth(env.issuer, http.HandlerFunc(handler.Validate)))
	mux.HandleFunc("POST /auth/forgot-password/otp", handler.ForgotPassword)
	mux.HandleFunc("POST /auth/forgot-password/verify", handler.ForgotPasswordVerify)
	mux.HandleFunc("POST /auth/reset-password", handler.ResetPassword)
	mux.HandleFunc("GET /auth/suspended", handler.Suspended)

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server, env
}

func postJSON(t *testing.T, server *httptest.Server, path, bearer string, body any) (*http.Response, map[string]any) {
	t.Helper()

	encoded, err := json.Marshal(body)
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost, server.URL+path, bytes.NewReader(encoded))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := server.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })

	var decoded map[string]any
	if resp.StatusCode != http.StatusNoContent {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	}
	return resp, decoded
}

func getJSON(t *testing.T, server *httptest.Server, path, bearer string) (*http.Response, map[string]any) {
	t.Helper()

	req, err := http.NewRequest(http.MethodGet, server.URL+path, nil)
	require.NoError(t, err)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := server.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })

	var decoded map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp, decoded
}

func TestSignupEndToEnd(t *testing.T) {
	server, env := newTestServer(t)

	// Bootstrap an anonymous session so the verify step can authenticate.
	resp, initBody := postJSON(t, server, "/auth/init", "", map[string]any{
		"capability": "no-attestation-capability",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	anonToken, _ := initBody["access_token"].(string)
	require.NotEmpty(t, anonToken)

	resp, _ = postJSON(t, server, "/auth/signup", "", map[string]any{
		"email": "alice@example.com",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	code := env.sender.next(t)

	resp, verifyBody := postJSON(t, server, "/auth/signup/verify", anonToken, map[string]any{
		"email":    "alice@example.com",
		"code":     code,
		"password": "correct horse battery",
		"name":     "Alice",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	access, _ := verifyBody["access_token"].(string)
	require.NotEmpty(t, access)
	require.Equal(t, "normal", verifyBody["role"])

	resp, validateBody := getJSON(t, server, "/auth/validate", access)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "normal", validateBody["role"])
	require.Equal(t, false, validateBody["anonymous"])
}

func TestSignupVerifyRequiresBearer(t *testing.T) {
	server, _ := newTestServer(t)

	resp, body := postJSON(t, server, "/auth/signup/verify", "", map[string]any{
		"email":    "alice@example.com",
		"code":     "123456",
		"password": "correct horse battery",
	})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	errObj, ok := body["error"].(map[string]any)
	require.True(t, ok, "error envelope missing: %v", body)
	require.Equal(t, "AuthRequired", errObj["code"])
}

func TestPasswordLengthBounds(t *testing.T) {
	server, env := newTestServer(t)

	resp, initBody := postJSON(t, server, "/auth/init", "", map[string]any{
		"capability": "no-attestation-capability",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	anonToken, _ := initBody["access_token"].(string)

	// A password past bcrypt's 72-byte input limit must be rejected as
	// validation, never reach the hasher and surface as a 500.
	overlong := strings.Repeat("p", 73)
	resp, body := postJSON(t, server, "/auth/signup/verify", anonToken, map[string]any{
		"email":    "alice@example.com",
		"code":     "123456",
		"password": overlong,
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	errObj, ok := body["error"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "ValidationError", errObj["code"])

	resp, body = postJSON(t, server, "/auth/reset-password", "", map[string]any{
		"reset_token":  "whatever-ticket",
		"new_password": overlong,
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	errObj, ok = body["error"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "ValidationError", errObj["code"])

	resp, _ = postJSON(t, server, "/auth/signup", "", map[string]any{
		"email": "alice@example.com",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	code := env.sender.next(t)

	// Exactly 72 bytes hashes fine end to end.
	resp, verifyBody := postJSON(t, server, "/auth/signup/verify", anonToken, map[string]any{
		"email":    "alice@example.com",
		"code":     code,
		"password": strings.Repeat("p", 72),
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.NotEmpty(t, verifyBody["access_token"])
}

func TestLoginValidationAndErrorEnvelope(t *testing.T) {
	server, _ := newTestServer(t)

	// Password required unless the client asked for an OTP login.
	resp, body := postJSON(t, server, "/auth/login", "", map[string]any{
		"email": "alice@example.com",
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	errObj, ok := body["error"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "ValidationError", errObj["code"])

	resp, body = postJSON(t, server, "/auth/login", "", map[string]any{
		"email":    "nobody@example.com",
		"password": "whatever password",
	})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	errObj, ok = body["error"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "InvalidCredentials", errObj["code"])
}

func TestLoginRateLimit(t *testing.T) {
	server, env := newTestServer(t)

	env.profiles.seed(profile.User{
		Identifier:   "alice@example.com",
		PasswordHash: mustHash(t, "correct horse battery"),
		Status:       profile.StatusActive,
	})

	body := map[string]any{"email": "alice@example.com", "password": "correct horse battery"}
	for i := 0; i < 3; i++ {
		resp, _ := postJSON(t, server, "/auth/login", "", body)
		require.Equal(t, http.StatusOK, resp.StatusCode, "request %d", i+1)
	}

	resp, errBody := postJSON(t, server, "/auth/login", "", body)
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	require.NotEmpty(t, resp.Header.Get("Retry-After"))
	errObj, ok := errBody["error"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "RateLimited", errObj["code"])
}

func TestSuspendedLoginEndToEnd(t *testing.T) {
	server, env := newTestServer(t)

	env.profiles.seed(profile.User{
		Identifier:   "suspended@example.com",
		PasswordHash: mustHash(t, "correct horse battery"),
		Status:       profile.StatusSuspended,
	})

	resp, body := postJSON(t, server, "/auth/login", "", map[string]any{
		"email":    "suspended@example.com",
		"password": "correct horse battery",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "suspended", body["action_required"])
	require.Equal(t, "/auth/suspended", body["redirect_to"])
	access, _ := body["access_token"].(string)
	require.NotEmpty(t, access)

	// The redirect target is reachable and names the support contact.
	resp, suspendedBody := getJSON(t, server, "/auth/suspended", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "suspended", suspendedBody["status"])
	require.NotEmpty(t, suspendedBody["contact"])
}

func TestRefreshAndLogoutEndToEnd(t *testing.T) {
	server, env := newTestServer(t)

	env.profiles.seed(profile.User{
		Identifier:   "alice@example.com",
		PasswordHash: mustHash(t, "correct horse battery"),
		Status:       profile.StatusActive,
	})

	resp, loginBody := postJSON(t, server, "/auth/login", "", map[string]any{
		"email":    "alice@example.com",
		"password": "correct horse battery",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	refresh, _ := loginBody["refresh_token"].(string)
	access, _ := loginBody["access_token"].(string)

	resp, refreshBody := postJSON(t, server, "/auth/refresh", "", map[string]any{
		"refresh_token": refresh,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	rotated, _ := refreshBody["refresh_token"].(string)
	require.NotEmpty(t, rotated)
	require.NotEqual(t, refresh, rotated)

	resp, _ = postJSON(t, server, "/auth/logout", access, map[string]any{
		"refresh_token": rotated,
	})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, errBody := postJSON(t, server, "/auth/refresh", "", map[string]any{
		"refresh_token": rotated,
	})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	errObj, ok := errBody["error"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "InvalidToken", errObj["code"])
}

func TestResetPasswordEndToEnd(t *testing.T) {
	server, env := newTestServer(t)

	env.profiles.seed(profile.User{
		Identifier:   "alice@example.com",
		PasswordHash: mustHash(t, "old password!"),
		Status:       profile.StatusActive,
	})

	resp, _ := postJSON(t, server, "/auth/forgot-password/otp", "", map[string]any{
		"email": "alice@example.com",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	code := env.sender.next(t)

	resp, verifyBody := postJSON(t, server, "/auth/forgot-password/verify", "", map[string]any{
		"email": "alice@example.com",
		"code":  code,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	ticket, _ := verifyBody["reset_token"].(string)
	require.NotEmpty(t, ticket)

	resp, _ = postJSON(t, server, "/auth/reset-password", "", map[string]any{
		"reset_token":  ticket,
		"new_password": "brand new password",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = postJSON(t, server, "/auth/login", "", map[string]any{
		"email":    "alice@example.com",
		"password": "brand new password",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRejectsUnknownJSONFields(t *testing.T) {
	server, _ := newTestServer(t)

	resp, body := postJSON(t, server, "/auth/init", "", map[string]any{
		"capability": "no-attestation-capability",
		"surprise":   true,
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	_, ok := body["error"].(map[string]any)
	require.True(t, ok)
}

func TestValidateRejectsGarbageToken(t *testing.T) {
	server, _ := newTestServer(t)

	resp, body := getJSON(t, server, "/auth/validate", "garbage-token")
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	errObj, ok := body["error"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "InvalidToken", errObj["code"])
}
