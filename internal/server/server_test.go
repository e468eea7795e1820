package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Chengenchong/PayLentine-Backend/internal/config"
	"github.com/Chengenchong/PayLentine-Backend/internal/identity"
	"github.com/Chengenchong/PayLentine-Backend/internal/logging"
)

type client struct {
	t   *testing.T
	srv *Server
}

func (c client) do(method, path, token, body string) (int, map[string]any) {
	c.t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := c.srv.App().Test(req, -1)
	require.NoError(c.t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(c.t, err)
	out := map[string]any{}
	if len(raw) > 0 {
		require.NoError(c.t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

func (c client) signup(phone, email string) (string, string) {
	c.t.Helper()
	status, body := c.do(http.MethodPost, "/api/v1/auth/register", "", `{"phone":"`+phone+`","email":"`+email+`","pin":"1234","device_id":"dev-`+phone+`"}`)
	require.Equal(c.t, http.StatusCreated, status, body)
	id := body["id"].(string)
	require.NoError(c.t, c.srv.container.Identity.SetTier(context.Background(), id, identity.TierOne))

	status, body = c.do(http.MethodPost, "/api/v1/auth/login", "", `{"phone":"`+phone+`","pin":"1234"}`)
	require.Equal(c.t, http.StatusOK, status, body)
	return id, body["access_token"].(string)
}

func newTestServer(t *testing.T) client {
	t.Helper()
	cfg := config.Config{
		AppName:         "test",
		AppEnv:          "test",
		DefaultCurrency: "USD",
		JWTSecret:       "a",
		RefreshSecret:   "r",
		ReverifySecret:  "v",
		AccessTokenTTL:  time.Minute,
		RefreshTokenTTL: time.Hour,
		ReverifyTTL:     time.Minute,
		PendingTTL:      time.Hour,
		SweepInterval:   time.Minute,
		IdempotencyTTL:  time.Minute,
		LoginRateLimit:  5,
	}
	srv, err := New(cfg, nil, nil, logging.Discard())
	require.NoError(t, err)
	return client{t: t, srv: srv}
}

func decimalField(t *testing.T, v any) decimal.Decimal {
	t.Helper()
	s, ok := v.(string)
	require.True(t, ok, "%v is not a string", v)
	return decimal.RequireFromString(s)
}

func TestApprovalFlowOverHTTP(t *testing.T) {
	c := newTestServer(t)
	_, aliceToken := c.signup("1001", "alice@example.com")
	bobID, bobToken := c.signup("1002", "bob@example.com")
	_, carolToken := c.signup("1003", "carol@example.com")

	status, body := c.do(http.MethodPost, "/api/v1/funding/card-in", aliceToken, `{"card_number":"4111111111111111","expiry":"12/29","cvv":"123","amount":"500.00"}`)
	require.Equal(t, http.StatusCreated, status, body)

	status, body = c.do(http.MethodPost, "/api/v1/wallets", bobToken, "")
	require.Equal(t, http.StatusCreated, status, body)

	status, body = c.do(http.MethodPut, "/api/v1/policy", aliceToken, `{"enabled":true,"threshold_amount":"100.00","approver_email":"carol@example.com"}`)
	require.Equal(t, http.StatusOK, status, body)

	status, body = c.do(http.MethodPost, "/api/v1/transfers", aliceToken, `{"recipient_id":"`+bobID+`","amount":"50.00","currency":"USD"}`)
	require.Equal(t, http.StatusCreated, status, body)

	status, body = c.do(http.MethodPost, "/api/v1/transfers", aliceToken, `{"recipient_id":"`+bobID+`","amount":"100.00","currency":"USD"}`)
	require.Equal(t, http.StatusAccepted, status, body)
	pendingID := body["pending"].(map[string]any)["id"].(string)

	status, body = c.do(http.MethodGet, "/api/v1/approvals/pending", carolToken, "")
	require.Equal(t, http.StatusOK, status, body)
	assert.Len(t, body["items"], 1)

	// only the approver may decide
	status, _ = c.do(http.MethodPost, "/api/v1/approvals/"+pendingID+"/approve", bobToken, "")
	assert.Equal(t, http.StatusForbidden, status)

	status, body = c.do(http.MethodPost, "/api/v1/approvals/"+pendingID+"/approve", carolToken, `{"message":"ok"}`)
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, "completed", body["execution"].(map[string]any)["status"])

	status, body = c.do(http.MethodGet, "/api/v1/wallets/USD/balance", aliceToken, "")
	require.Equal(t, http.StatusOK, status, body)
	assert.True(t, decimalField(t, body["balance"]).Equal(decimal.RequireFromString("350")))

	status, body = c.do(http.MethodGet, "/api/v1/wallets/USD/balance", bobToken, "")
	require.Equal(t, http.StatusOK, status, body)
	assert.True(t, decimalField(t, body["balance"]).Equal(decimal.RequireFromString("150")))

	status, body = c.do(http.MethodPost, "/api/v1/approvals/"+pendingID+"/reject", carolToken, `{"reason":"late"}`)
	assert.Equal(t, http.StatusConflict, status, body)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	c := newTestServer(t)
	status, body := c.do(http.MethodGet, "/api/v1/wallets", "", "")
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "401", body["code"])

	_, token := c.signup("2001", "dora@example.com")
	status, _ = c.do(http.MethodPost, "/api/v1/auth/logout", token, "")
	require.Equal(t, http.StatusOK, status)
	status, _ = c.do(http.MethodGet, "/api/v1/wallets", token, "")
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestHealthzInMemory(t *testing.T) {
	c := newTestServer(t)
	status, body := c.do(http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "disabled", body["status"].(map[string]any)["postgres"])
}
