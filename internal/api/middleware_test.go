package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func (e *testEnv) raw(method, path, body string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, req)
	return rr
}

func TestAuth_OrdersRequireBearer(t *testing.T) {
	env := newTestEnv(t, "secret123")
	order := `{"symbol":"BTCUSDT","action":"BUY","quantity":1,"price":100}`

	cases := []struct {
		name   string
		header map[string]string
		want   int
	}{
		{"no header", nil, http.StatusUnauthorized},
		{"wrong key", map[string]string{"Authorization": "Bearer wrong_key"}, http.StatusUnauthorized},
		{"basic scheme", map[string]string{"Authorization": "Basic secret123"}, http.StatusUnauthorized},
		{"bare key", map[string]string{"Authorization": "secret123"}, http.StatusUnauthorized},
		{"bearer", map[string]string{"Authorization": "Bearer secret123"}, http.StatusCreated},
	}
	for _, tc := range cases {
		rr := env.raw(http.MethodPost, env.userPath("/orders"), order, tc.header)
		if rr.Code != tc.want {
			t.Errorf("%s: expected %d, got %d (%s)", tc.name, tc.want, rr.Code, rr.Body.String())
		}
	}

	rr := env.raw(http.MethodGet, env.userPath("/trades"), "", map[string]string{"Authorization": "Bearer secret123"})
	if rr.Code != http.StatusOK || strings.Count(rr.Body.String(), `"symbol"`) != 1 {
		t.Fatalf("only the authorized order should have filled, got %d %s", rr.Code, rr.Body.String())
	}
}

func TestAuth_HealthBypassesKey(t *testing.T) {
	env := newTestEnv(t, "secret123")
	if rr := env.raw(http.MethodGet, "/health", "", nil); rr.Code != http.StatusOK {
		t.Fatalf("expected 200 for /health without auth, got %d", rr.Code)
	}
	if rr := env.raw(http.MethodGet, "/health/", "", nil); rr.Code != http.StatusUnauthorized {
		t.Fatalf("only the exact /health path is public, got %d", rr.Code)
	}
}

func TestAuth_OpenWhenNoKeyConfigured(t *testing.T) {
	env := newTestEnv(t, "")
	if rr := env.raw(http.MethodPost, "/v1/runs", "", nil); rr.Code != http.StatusOK {
		t.Fatalf("expected 200 when no API key configured, got %d", rr.Code)
	}
}

func TestCORS_SettingsPreflight(t *testing.T) {
	env := newTestEnvWithOrigin(t, "secret123", "https://desk.example.com")

	rr := env.raw(http.MethodOptions, env.userPath("/settings"), "", map[string]string{
		"Origin":                        "https://desk.example.com",
		"Access-Control-Request-Method": http.MethodPut,
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("preflight must not need a token, got %d", rr.Code)
	}
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "https://desk.example.com" {
		t.Fatalf("expected configured origin, got %q", got)
	}
	if !strings.Contains(rr.Header().Get("Access-Control-Allow-Methods"), http.MethodPut) {
		t.Fatalf("PUT missing from allowed methods: %q", rr.Header().Get("Access-Control-Allow-Methods"))
	}
	if !strings.Contains(rr.Header().Get("Access-Control-Allow-Headers"), "Authorization") {
		t.Fatal("Authorization must be an allowed header")
	}

	denied := env.raw(http.MethodPut, env.userPath("/settings"), `{"enabled":true}`, nil)
	if denied.Code != http.StatusUnauthorized || denied.Header().Get("Access-Control-Allow-Origin") == "" {
		t.Fatalf("401s should still carry CORS headers, got %d", denied.Code)
	}
}

func TestTradesDayFilterValidatesDate(t *testing.T) {
	env := newTestEnv(t, "")
	for _, day := range []string{"2024-13-01", "2024-1-5", "20240115", "2024/01/15"} {
		if rr := env.raw(http.MethodGet, env.userPath("/trades?day="+day), "", nil); rr.Code != http.StatusBadRequest {
			t.Errorf("day=%s: expected 400, got %d", day, rr.Code)
		}
	}
	if rr := env.raw(http.MethodGet, env.userPath("/trades?day=2024-02-29"), "", nil); rr.Code != http.StatusOK {
		t.Fatalf("leap day should be accepted, got %d", rr.Code)
	}
}

func TestParseLimit_ClampsToMax(t *testing.T) {
	cases := map[string]int{
		"":            25,
		"?limit=50":   50,
		"?limit=0":    25,
		"?limit=-5":   25,
		"?limit=abc":  25,
		"?limit=1000": maxQueryLimit,
		"?limit=5000": maxQueryLimit,
	}
	for query, want := range cases {
		req := httptest.NewRequest(http.MethodGet, "/v1/runs"+query, nil)
		if got := parseLimit(req, 25); got != want {
			t.Errorf("parseLimit(%q) = %d, want %d", query, got, want)
		}
	}
}
