package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/rcm/rcm/internal/config"
	"github.com/rcm/rcm/internal/domain/edi"
	"github.com/rcm/rcm/internal/platform/auth"
	"github.com/rcm/rcm/internal/platform/db"
	"github.com/rcm/rcm/internal/platform/metrics"
)

const testSigningKey = "test-signing-key"

func testConfig() *config.Config {
	return &config.Config{
		Env:            "production",
		AuthSigningKey: testSigningKey,
		DefaultCompany: "default",
		CORSOrigins:    []string{"http://localhost:3000"},
		RateLimitRPS:   1000,
		RateLimitBurst: 1000,
		RequestTimeout: 5 * time.Second,
		EDISenderID:    "RCMSENDER",
		EDIReceiverID:  "CLEARINGHOUSE",
		ReportMaxRows:  100,
		MetricsEnabled: true,
	}
}

func newTestServer() *echo.Echo {
	return newServer(testConfig(), nil, metrics.New(), zerolog.Nop())
}

func token(t *testing.T, subject string, roles ...string) string {
	t.Helper()
	claims := auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		CompanyID: "acme",
		Roles:     roles,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSigningKey))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return "Bearer " + signed
}

func serve(e *echo.Echo, method, path, authz, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if authz != "" {
		req.Header.Set("Authorization", authz)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestServer_Health(t *testing.T) {
	rec := serve(newTestServer(), http.MethodGet, "/health", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"version":"`+version+`"`) {
		t.Errorf("unexpected body %s", rec.Body.String())
	}
}

func TestServer_Metrics(t *testing.T) {
	e := newTestServer()
	serve(e, http.MethodGet, "/health", "", "")
	rec := serve(e, http.MethodGet, "/metrics", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestServer_RoutesRegistered(t *testing.T) {
	e := newTestServer()
	have := make(map[string]bool)
	for _, r := range e.Routes() {
		have[r.Method+" "+r.Path] = true
	}
	for _, want := range []string{
		"POST /api/v1/edi/eligibility",
		"POST /api/v1/edi/claim-status",
		"POST /api/v1/edi/claims",
		"POST /api/v1/edi/remittances",
		"POST /api/v1/edi/x12/:type",
		"GET /api/v1/edi/transactions/:id",
		"GET /api/v1/denials",
		"POST /api/v1/denials/triage",
		"POST /api/v1/denials/:id/analysis",
		"POST /api/v1/denials/:id/appeal",
		"GET /api/v1/denials/workspace",
		"POST /api/v1/bulk/status",
		"POST /api/v1/bulk/assign",
		"POST /api/v1/bulk/delete",
		"POST /api/v1/bulk/export",
		"GET /api/v1/reports",
		"POST /api/v1/reports",
		"PUT /api/v1/reports/:id",
		"DELETE /api/v1/reports/:id",
		"POST /api/v1/reports/:id/run",
		"POST /api/v1/reports/:id/export",
		"POST /api/v1/reports/preview",
		"GET /api/v1/audit",
		"POST /api/v1/audit",
	} {
		if !have[want] {
			t.Errorf("route %s not registered", want)
		}
	}
}

func TestServer_Auth(t *testing.T) {
	e := newTestServer()
	tests := []struct {
		name  string
		path  string
		authz string
		want  int
	}{
		{"no token", "/api/v1/bulk/delete", "", http.StatusUnauthorized},
		{"garbage token", "/api/v1/bulk/delete", "Bearer nope", http.StatusUnauthorized},
		{"billing cannot delete", "/api/v1/bulk/delete", token(t, "u1", "billing"), http.StatusForbidden},
		{"no role", "/api/v1/edi/x12/276", token(t, "u1"), http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(e, http.MethodPost, tt.path, tt.authz, `{}`)
			if rec.Code != tt.want {
				t.Errorf("expected %d, got %d: %s", tt.want, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestServer_GenerateX12(t *testing.T) {
	e := newTestServer()
	body := `{"claim_status":{"claim_id":"CLM-7","payer_id":"ACME"},"interchange_control":"42"}`
	rec := serve(e, http.MethodPost, "/api/v1/edi/x12/276", token(t, "u1", "billing"), body)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var out map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !strings.HasPrefix(out["content"], "ISA*") || !strings.Contains(out["content"], "000000042") {
		t.Errorf("unexpected content %q", out["content"])
	}
}

func TestRenderX12(t *testing.T) {
	cfg := edi.Config{SenderID: "S", ReceiverID: "R", Usage: "T"}
	out, err := renderX12(strings.NewReader(`{"claim_status":{"claim_id":"CLM-7","payer_id":"ACME"}}`), "276", cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(out, "ISA*") || !strings.Contains(out, "ST*276") {
		t.Errorf("unexpected output %q", out)
	}

	if _, err := renderX12(strings.NewReader(`{`), "276", cfg); err == nil {
		t.Error("expected decode error")
	}
	if _, err := renderX12(strings.NewReader(`{}`), "999", cfg); err == nil {
		t.Error("expected unknown type error")
	}
}

func TestPrintStatus(t *testing.T) {
	at := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	var buf bytes.Buffer
	printStatus(&buf, "public", []db.MigrationStatus{
		{Version: 1, Name: "001_claims.sql", Applied: true, AppliedAt: &at},
		{Version: 2, Name: "002_edi.sql"},
	})
	out := buf.String()
	if !strings.Contains(out, "2024-03-01 10:00:00") || !strings.Contains(out, "pending") {
		t.Errorf("unexpected output:\n%s", out)
	}
}

func TestRootCmd_Commands(t *testing.T) {
	root := rootCmd()
	for _, path := range [][]string{{"serve"}, {"migrate", "up"}, {"migrate", "status"}, {"reports", "import"}, {"x12", "render"}} {
		cmd, _, err := root.Find(path)
		if err != nil || cmd.Name() != path[len(path)-1] {
			t.Errorf("command %v not found: %v", path, err)
		}
	}
}

func TestEDIConfig_Usage(t *testing.T) {
	cfg := testConfig()
	if got := ediConfig(cfg).Usage; got != "P" {
		t.Errorf("production usage = %q", got)
	}
	cfg.Env = "staging"
	if got := ediConfig(cfg).Usage; got != "T" {
		t.Errorf("staging usage = %q", got)
	}
}
