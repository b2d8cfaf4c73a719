package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adamscao/certchain/internal/api"
	"github.com/adamscao/certchain/internal/certs"
	"github.com/adamscao/certchain/internal/config"
	"github.com/adamscao/certchain/internal/db"
	"github.com/adamscao/certchain/internal/db/repository"
	"github.com/adamscao/certchain/internal/ledger"
	"github.com/adamscao/certchain/internal/ledger/ledgertest"
	"github.com/adamscao/certchain/internal/logging"
	"github.com/adamscao/certchain/internal/models"
	"github.com/adamscao/certchain/internal/policy"
	"github.com/adamscao/certchain/internal/ratelimit"
)

const (
	adminToken = "test-admin-token"
	stream     = "certificates"
	adaID      = "1049a9bce6568580d3b3fd3fab921705c6adb18d09fa6f2827dab3bc4af0bf98"
)

type testServer struct {
	handler   http.Handler
	node      *ledgertest.Node
	certRepo  *repository.CertRepository
	auditRepo *repository.AuditRepository
}

func newTestServer(t *testing.T, mutate func(*config.Config)) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx := context.Background()

	cfg := config.Default()
	cfg.Admin.Token = adminToken
	cfg.Ledger.Stream = stream
	cfg.RateLimit.Enabled = true
	cfg.RateLimit.RequestsPerMinute = 100
	if mutate != nil {
		mutate(cfg)
	}

	database, err := db.New(filepath.Join(t.TempDir(), "certchain.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	require.NoError(t, db.RunMigrations(ctx, database))

	institutions := repository.NewInstitutionRepository(database.DB)
	require.NoError(t, institutions.Create(ctx, &models.Institution{
		Name:    "Analytical Engine Institute",
		Address: "12 Marylebone St, London",
	}))

	node := ledgertest.New(t)
	node.CreateStream(stream)

	registry := prometheus.NewRegistry()
	client, err := ledger.NewClient(ledger.Config{
		URL:      node.URL(),
		User:     ledgertest.User,
		Password: ledgertest.Password,
		Timeout:  time.Second,
	}, ledger.WithRegisterer(registry))
	require.NoError(t, err)
	t.Cleanup(client.Close)

	limiter, err := ratelimit.New(cfg.RateLimit)
	require.NoError(t, err)
	if limiter != nil {
		t.Cleanup(func() { limiter.Close() })
	}

	logger := logging.Discard()
	certRepo := repository.NewCertRepository(database.DB)
	auditRepo := repository.NewAuditRepository(database.DB)
	validator := policy.NewValidator(cfg)

	server := api.NewServer(cfg, logger, registry,
		certs.NewIssuer(certRepo, institutions, client, validator, stream),
		certs.NewVerifier(certRepo, client, stream),
		certs.NewRevoker(certRepo, client, validator, stream),
		certRepo, auditRepo, limiter,
	)

	return &testServer{
		handler:   server.Handler(),
		node:      node,
		certRepo:  certRepo,
		auditRepo: auditRepo,
	}
}

func (s *testServer) do(t *testing.T, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func admin() map[string]string {
	return map[string]string{"X-Admin-Token": adminToken}
}

func operator(name string) map[string]string {
	return map[string]string{"X-Admin-Token": adminToken, "X-Operator": name}
}

func adaBody() map[string]any {
	return map[string]any{
		"institution":   1,
		"student_name":  "Ada Lovelace",
		"student_id":    "S-1815",
		"student_email": "ada@example.edu",
		"course":        "Systems Design",
		"grade":         "A",
		"issue_date":    "2024-01-10",
		"metadata":      map[string]any{"cohort": "2024"},
	}
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, nil)
	rec := s.do(t, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode(t, rec)["status"])
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestAdminAuth(t *testing.T) {
	s := newTestServer(t, nil)

	rec := s.do(t, http.MethodPost, "/v1/certificates", adaBody(), nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, http.MethodPost, "/v1/certificates", adaBody(), map[string]string{"X-Admin-Token": "wrong"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, http.MethodPost, "/v1/certificates/"+adaID+"/revoke", nil, admin())
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "unauthorized", decode(t, rec)["error"])

	assert.Zero(t, s.node.Calls("publish"))
}

func TestIssueVerifyRevokeFlow(t *testing.T) {
	s := newTestServer(t, nil)

	rec := s.do(t, http.MethodPost, "/v1/certificates", adaBody(), admin())
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	issued := decode(t, rec)
	assert.Equal(t, adaID, issued["certificate_id"])
	assert.Equal(t, "ISSUED", issued["status"])
	assert.NotEmpty(t, issued["ledger_tx"])
	assert.Equal(t, "2024-01-10", issued["issue_date"])

	rec = s.do(t, http.MethodGet, "/v1/certificates/"+adaID, nil, admin())
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Ada Lovelace", decode(t, rec)["student_name"])

	rec = s.do(t, http.MethodPost, "/v1/certificates/verify", map[string]string{"certificate_id": adaID}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	verdict := decode(t, rec)
	assert.Equal(t, true, verdict["valid"])
	assert.Equal(t, "Certificate is valid", verdict["message"])
	assert.NotNil(t, verdict["ledger_payload"])

	rec = s.do(t, http.MethodPost, "/v1/certificates/"+adaID+"/revoke", nil, operator("registrar"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	revoked := decode(t, rec)
	assert.Equal(t, "REVOKED", revoked["status"])
	metadata := revoked["metadata"].(map[string]any)
	assert.Equal(t, "registrar", metadata["revokedBy"])

	rec = s.do(t, http.MethodGet, "/v1/certificates/"+adaID+"/verify", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	verdict = decode(t, rec)
	assert.Equal(t, false, verdict["valid"])
	assert.Equal(t, "revoked", verdict["reason"])

	rec = s.do(t, http.MethodPost, "/v1/certificates/"+adaID+"/revoke", nil, operator("registrar"))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "already_revoked", decode(t, rec)["error"])

	rec = s.do(t, http.MethodPost, "/v1/certificates", adaBody(), admin())
	assert.Equal(t, http.StatusConflict, rec.Code)

	logs, err := s.auditRepo.List(context.Background(), "", models.ActionCertRevoke, adaID, 10)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	for _, l := range logs {
		assert.Equal(t, "registrar", l.Actor)
	}

	issues, err := s.auditRepo.List(context.Background(), "", models.ActionCertIssue, "", 10)
	require.NoError(t, err)
	assert.Len(t, issues, 2)
}

func TestIssueErrors(t *testing.T) {
	s := newTestServer(t, nil)

	rec := s.do(t, http.MethodPost, "/v1/certificates", `{"institution": 1, "issue_date": "10/01/2024"}`, admin())
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_request", decode(t, rec)["error"])

	rec = s.do(t, http.MethodPost, "/v1/certificates", `{"institution": 1, "issue_date": "2024-01-10", "metadata": [1]}`, admin())
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	body := adaBody()
	body["student_name"] = ""
	rec = s.do(t, http.MethodPost, "/v1/certificates", body, admin())
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_error", decode(t, rec)["error"])

	body = adaBody()
	body["institution"] = 42
	rec = s.do(t, http.MethodPost, "/v1/certificates", body, admin())
	assert.Equal(t, http.StatusNotFound, rec.Code)

	s.node.Fail("publish", ledgertest.FailReject)
	rec = s.do(t, http.MethodPost, "/v1/certificates", adaBody(), admin())
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "ledger_rejected", decode(t, rec)["error"])

	s.node.Fail("publish", ledgertest.FailUnavailable)
	rec = s.do(t, http.MethodPost, "/v1/certificates", adaBody(), admin())
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "ledger_unavailable", decode(t, rec)["error"])

	_, err := s.certRepo.GetByCertificateID(context.Background(), adaID)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestGetAndVerifyMissing(t *testing.T) {
	s := newTestServer(t, nil)

	rec := s.do(t, http.MethodGet, "/v1/certificates/missing", nil, admin())
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodGet, "/v1/certificates/missing/verify", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	verdict := decode(t, rec)
	assert.Equal(t, false, verdict["valid"])
	assert.Equal(t, "not_found", verdict["reason"])
	assert.Nil(t, verdict["certificate"])

	rec = s.do(t, http.MethodPost, "/v1/certificates/verify", `{}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/v1/certificates/missing/revoke", nil, operator("registrar"))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestVerifyLedgerUnavailable(t *testing.T) {
	s := newTestServer(t, nil)

	rec := s.do(t, http.MethodPost, "/v1/certificates", adaBody(), admin())
	require.Equal(t, http.StatusCreated, rec.Code)

	s.node.Fail("liststreamkeyitems", ledgertest.FailUnavailable)
	rec = s.do(t, http.MethodGet, "/v1/certificates/"+adaID+"/verify", nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestLedgerList(t *testing.T) {
	s := newTestServer(t, nil)

	rec := s.do(t, http.MethodGet, "/v1/ledger/certificates", nil, admin())
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 0, decode(t, rec)["count"])

	rec = s.do(t, http.MethodPost, "/v1/certificates", adaBody(), admin())
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = s.do(t, http.MethodPost, "/v1/certificates/"+adaID+"/revoke", nil, operator("registrar"))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodGet, "/v1/ledger/certificates", nil, admin())
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.EqualValues(t, 2, body["count"])
	entries := body["entries"].([]any)
	last := entries[1].(map[string]any)
	assert.Equal(t, adaID, last["key"])
	assert.Equal(t, "REVOKED", last["payload"].(map[string]any)["status"])

	rec = s.do(t, http.MethodGet, "/v1/ledger/certificates?limit=1", nil, admin())
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, decode(t, rec)["count"])

	rec = s.do(t, http.MethodGet, "/v1/ledger/certificates?limit=zero", nil, admin())
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestVerifyRateLimit(t *testing.T) {
	s := newTestServer(t, func(cfg *config.Config) {
		cfg.RateLimit.RequestsPerMinute = 2
	})

	for i := 0; i < 2; i++ {
		rec := s.do(t, http.MethodGet, "/v1/certificates/missing/verify", nil, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "2", rec.Header().Get("RateLimit-Limit"))
	}

	rec := s.do(t, http.MethodGet, "/v1/certificates/missing/verify", nil, nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	// admin routes are not limited
	rec = s.do(t, http.MethodGet, "/v1/certificates/missing", nil, admin())
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestVerifyRateLimitIgnoresUntrustedForwardedFor(t *testing.T) {
	s := newTestServer(t, func(cfg *config.Config) {
		cfg.RateLimit.RequestsPerMinute = 2
	})

	limited := 0
	for i := 0; i < 20; i++ {
		headers := map[string]string{"X-Forwarded-For": fmt.Sprintf("203.0.113.%d", i)}
		rec := s.do(t, http.MethodGet, "/v1/certificates/missing/verify", nil, headers)
		if rec.Code == http.StatusTooManyRequests {
			limited++
		}
	}
	assert.Equal(t, 18, limited)

	rec := s.do(t, http.MethodPost, "/v1/certificates", adaBody(),
		map[string]string{"X-Admin-Token": adminToken, "X-Forwarded-For": "198.51.100.7"})
	require.Equal(t, http.StatusCreated, rec.Code)
	logs, err := s.auditRepo.List(context.Background(), "", models.ActionCertIssue, adaID, 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "192.0.2.1", logs[0].ClientIP)
}

func TestVerifyRateLimitBehindTrustedProxy(t *testing.T) {
	s := newTestServer(t, func(cfg *config.Config) {
		cfg.RateLimit.RequestsPerMinute = 2
		cfg.Server.TrustedProxies = []string{"192.0.2.0/24"}
	})

	for i := 0; i < 4; i++ {
		headers := map[string]string{"X-Forwarded-For": fmt.Sprintf("203.0.113.%d", i)}
		rec := s.do(t, http.MethodGet, "/v1/certificates/missing/verify", nil, headers)
		assert.Equal(t, http.StatusOK, rec.Code)
	}

	same := map[string]string{"X-Forwarded-For": "203.0.113.99"}
	for i := 0; i < 2; i++ {
		rec := s.do(t, http.MethodGet, "/v1/certificates/missing/verify", nil, same)
		require.Equal(t, http.StatusOK, rec.Code)
	}
	rec := s.do(t, http.MethodGet, "/v1/certificates/missing/verify", nil, same)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestRateLimitDisabled(t *testing.T) {
	s := newTestServer(t, func(cfg *config.Config) {
		cfg.RateLimit.Enabled = false
		cfg.RateLimit.RequestsPerMinute = 1
	})

	for i := 0; i < 3; i++ {
		rec := s.do(t, http.MethodGet, "/v1/certificates/missing/verify", nil, nil)
		assert.Equal(t, http.StatusOK, rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, nil)

	rec := s.do(t, http.MethodPost, "/v1/certificates", adaBody(), admin())
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = s.do(t, http.MethodGet, "/metrics", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `certchain_ledger_requests_total{method="publish",outcome="ok"} 1`), body)
	assert.Contains(t, body, "certchain_http_requests_total")
}
