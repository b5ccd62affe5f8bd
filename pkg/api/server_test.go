/*
2019 © Postgres.ai
*/

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitlab.com/postgres-ai/chegar/pkg/config"
	"gitlab.com/postgres-ai/chegar/pkg/models"
	"gitlab.com/postgres-ai/chegar/pkg/services/clients"
	"gitlab.com/postgres-ai/chegar/pkg/services/health"
	"gitlab.com/postgres-ai/chegar/pkg/services/solicitation"
	"gitlab.com/postgres-ai/chegar/pkg/services/sqlexec"
	"gitlab.com/postgres-ai/chegar/pkg/services/verification"
)

type fakeSubmitter struct {
	received []solicitation.Request
	outcome  solicitation.Outcome
	err      error
	panics   bool
}

func (f *fakeSubmitter) Submit(_ context.Context, req solicitation.Request) (solicitation.Outcome, error) {
	if f.panics {
		panic("unexpected state")
	}

	f.received = append(f.received, req)

	return f.outcome, f.err
}

type fakeClients struct {
	client       *models.Client
	solicitation *models.Solicitation
	err          error
}

func (f *fakeClients) FindSignup(context.Context, string) (*models.Solicitation, error) {
	return f.solicitation, f.err
}

func (f *fakeClients) FindClient(context.Context, string) (*models.Client, error) {
	return f.client, f.err
}

func (f *fakeClients) FindSolicitation(context.Context, string) (*models.Solicitation, error) {
	return f.solicitation, f.err
}

func (f *fakeClients) Login(context.Context, string, string) (*models.Client, error) {
	return f.client, f.err
}

func (f *fakeClients) RecoverEmail(context.Context, string) (string, error) {
	return "jo***@gmail.com", f.err
}

func (f *fakeClients) SendRecoveryCode(context.Context, string) error {
	return f.err
}

func (f *fakeClients) ChangePassword(context.Context, string, string, string) error {
	return f.err
}

func (f *fakeClients) SendEmailCode(context.Context, string) error {
	return f.err
}

func (f *fakeClients) VerifyEmailCode(context.Context, string, string) error {
	return f.err
}

type fakeHealth struct {
	status health.Status
}

func (f *fakeHealth) Check(context.Context) health.Status {
	return f.status
}

func (f *fakeHealth) Ready() error {
	if !f.status.Healthy {
		return errors.New(f.status.Detail)
	}

	return nil
}

func (f *fakeHealth) Uptime() string {
	return "1 minute"
}

type fakeMetrics struct {
	snapshot sqlexec.Snapshot
}

func (f *fakeMetrics) Metrics() sqlexec.Snapshot {
	return f.snapshot
}

type testDeps struct {
	submitter *fakeSubmitter
	clients   *fakeClients
	health    *fakeHealth
	metrics   *fakeMetrics
}

func newTestServer(cfg config.App) (*Server, *testDeps) {
	deps := &testDeps{
		submitter: &fakeSubmitter{},
		clients:   &fakeClients{},
		health:    &fakeHealth{status: health.Status{Healthy: true, Detail: "connected"}},
		metrics:   &fakeMetrics{snapshot: sqlexec.Snapshot{TotalRequests: 1200, SuccessfulRequests: 1200, SuccessRate: "100.00%"}},
	}

	return NewServer(cfg, Dependencies{
		Solicitations: deps.submitter,
		Clients:       deps.clients,
		Health:        deps.health,
		Metrics:       deps.metrics,
	}), deps
}

func defaultTestConfig() config.App {
	return config.App{
		AllowedOrigins: []string{"https://chegar-primeiro.netlify.app", "http://localhost:8888"},
	}
}

func doRequest(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader = http.NoBody
	if body != "" {
		reader = strings.NewReader(body)
	}

	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload), rec.Body.String())

	return payload
}

func TestSubmitSolicitation(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		srv, deps := newTestServer(defaultTestConfig())
		deps.submitter.outcome = solicitation.Outcome{Protocol: "20240517103000"}

		rec := doRequest(t, srv.Handler(), http.MethodPost, "/api/solicitacoes",
			`{"tipo":"manutencao","cpf":"12345678901","telefone":"11999999999","melhor_horario":"manhã"}`)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, map[string]interface{}{"success": true, "protocolo": "20240517103000"}, decode(t, rec))

		require.Len(t, deps.submitter.received, 1)
		assert.Equal(t, "manutencao", deps.submitter.received[0].Type)
		assert.Equal(t, "manhã", deps.submitter.received[0].PreferredTimeSlot)
	})

	t.Run("duplicate", func(t *testing.T) {
		srv, deps := newTestServer(defaultTestConfig())
		deps.submitter.outcome = solicitation.Outcome{AlreadyExists: true}

		rec := doRequest(t, srv.Handler(), http.MethodPost, "/api/solicitacoes", `{"tipo":"novo_cliente","cpf":"1","email":"a@a.com"}`)

		assert.Equal(t, http.StatusOK, rec.Code)

		payload := decode(t, rec)
		assert.Equal(t, false, payload["success"])
		assert.Equal(t, "ja_existe", payload["motivo"])
	})

	t.Run("validation failure", func(t *testing.T) {
		srv, deps := newTestServer(defaultTestConfig())
		deps.submitter.err = &solicitation.RequestError{Reason: "Campo obrigatório ausente: cpf"}

		rec := doRequest(t, srv.Handler(), http.MethodPost, "/api/solicitacoes", `{"tipo":"manutencao"}`)

		assert.Equal(t, http.StatusOK, rec.Code)

		payload := decode(t, rec)
		assert.Equal(t, false, payload["success"])
		assert.Equal(t, "Campo obrigatório ausente: cpf", payload["error"])
	})

	t.Run("database failure", func(t *testing.T) {
		srv, deps := newTestServer(defaultTestConfig())
		deps.submitter.err = errors.Wrap(&sqlexec.DatabaseError{Attempts: 4, Err: errors.New("ECONNRESET")}, "failed to save solicitation")

		rec := doRequest(t, srv.Handler(), http.MethodPost, "/api/solicitacoes", `{"tipo":"manutencao"}`)

		assert.Equal(t, http.StatusInternalServerError, rec.Code)

		payload := decode(t, rec)
		assert.Equal(t, false, payload["success"])
		assert.Equal(t, msgSaveFailed, payload["error"])
		assert.NotEmpty(t, payload["requestId"])
	})

	t.Run("malformed body", func(t *testing.T) {
		srv, _ := newTestServer(defaultTestConfig())

		rec := doRequest(t, srv.Handler(), http.MethodPost, "/api/solicitacoes", `{"tipo":`)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestRegisterForcesNewClient(t *testing.T) {
	srv, deps := newTestServer(defaultTestConfig())
	deps.submitter.outcome = solicitation.Outcome{Protocol: "20240517103000"}

	rec := doRequest(t, srv.Handler(), http.MethodPost, "/api/cadastrar", `{"tipo":"manutencao","cpf":"1","email":"a@a.com","senha":"x"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, deps.submitter.received, 1)
	assert.Equal(t, "novo_cliente", deps.submitter.received[0].Type)
	assert.Equal(t, "x", deps.submitter.received[0].Password)
}

func TestChangeServiceForcesType(t *testing.T) {
	srv, deps := newTestServer(defaultTestConfig())
	deps.submitter.outcome = solicitation.Outcome{Protocol: "20240517103000"}

	rec := doRequest(t, srv.Handler(), http.MethodPost, "/api/troca-servico",
		`{"nome_cliente":"João","cpf_ou_contrato":"12345678901","servico_atual":"300 Mega","novo_servico":"600 Mega"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]interface{}{"success": true, "protocolo": "20240517103000"}, decode(t, rec))

	require.Len(t, deps.submitter.received, 1)

	req := deps.submitter.received[0]
	assert.Equal(t, "troca_servico", req.Type)
	assert.Equal(t, "12345678901", req.CPF)
	assert.Equal(t, "João", req.ClientName)
	assert.Equal(t, "300 Mega", req.CurrentService)
	assert.Equal(t, "600 Mega", req.NewService)
}

func TestClientEndpoints(t *testing.T) {
	t.Run("client found", func(t *testing.T) {
		srv, deps := newTestServer(defaultTestConfig())
		deps.clients.client = &models.Client{CPF: "12345678901", Email: "joao@gmail.com"}

		rec := doRequest(t, srv.Handler(), http.MethodGet, "/api/cliente-completo/12345678901", "")

		assert.Equal(t, http.StatusOK, rec.Code)

		client := decode(t, rec)["cliente"].(map[string]interface{})
		assert.Equal(t, "12345678901", client["cpf"])
		assert.NotContains(t, client, "senha")
	})

	t.Run("client not found", func(t *testing.T) {
		srv, deps := newTestServer(defaultTestConfig())
		deps.clients.err = clients.ErrNotFound

		rec := doRequest(t, srv.Handler(), http.MethodGet, "/api/clientes/12345678901", "")

		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "Cliente não encontrado", decode(t, rec)["error"])
	})

	t.Run("signup found", func(t *testing.T) {
		srv, deps := newTestServer(defaultTestConfig())
		deps.clients.solicitation = &models.Solicitation{Type: "novo_cliente", CPF: "1", Protocol: "20240517103000"}

		rec := doRequest(t, srv.Handler(), http.MethodGet, "/api/clientes/1", "")

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "20240517103000", decode(t, rec)["cliente"].(map[string]interface{})["protocolo"])
	})

	t.Run("solicitation not found", func(t *testing.T) {
		srv, deps := newTestServer(defaultTestConfig())
		deps.clients.err = clients.ErrNotFound

		rec := doRequest(t, srv.Handler(), http.MethodGet, "/api/solicitacao/20240517103000", "")

		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "Solicitação não encontrada", decode(t, rec)["error"])
	})

	t.Run("login rejected", func(t *testing.T) {
		srv, deps := newTestServer(defaultTestConfig())
		deps.clients.err = clients.ErrInvalidCredentials

		rec := doRequest(t, srv.Handler(), http.MethodPost, "/api/login", `{"cpf":"1","senha":"errada"}`)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "CPF ou senha inválidos", decode(t, rec)["error"])
	})

	t.Run("masked e-mail", func(t *testing.T) {
		srv, _ := newTestServer(defaultTestConfig())

		rec := doRequest(t, srv.Handler(), http.MethodPost, "/api/recuperar-email", `{"cpf":"1"}`)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "jo***@gmail.com", decode(t, rec)["email"])
	})

	t.Run("invalid code", func(t *testing.T) {
		srv, deps := newTestServer(defaultTestConfig())
		deps.clients.err = verification.ErrInvalidCode

		rec := doRequest(t, srv.Handler(), http.MethodPost, "/api/trocar-senha", `{"cpf":"1","codigo":"000000","novaSenha":"segredo"}`)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "Código inválido ou expirado", decode(t, rec)["error"])
	})

	t.Run("invalid input", func(t *testing.T) {
		srv, deps := newTestServer(defaultTestConfig())
		deps.clients.err = &clients.InputError{Reason: "E-mail inválido"}

		rec := doRequest(t, srv.Handler(), http.MethodPost, "/api/enviar-codigo-email", `{"email":"x"}`)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "E-mail inválido", decode(t, rec)["error"])
	})

	t.Run("code verified", func(t *testing.T) {
		srv, _ := newTestServer(defaultTestConfig())

		rec := doRequest(t, srv.Handler(), http.MethodPost, "/api/validar-codigo-email", `{"email":"a@a.com","codigo":"123456"}`)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, true, decode(t, rec)["success"])
	})

	t.Run("infrastructure failure is hidden", func(t *testing.T) {
		srv, deps := newTestServer(defaultTestConfig())
		deps.clients.err = &sqlexec.TimeoutError{Timeout: 30 * time.Second}

		rec := doRequest(t, srv.Handler(), http.MethodPost, "/api/enviar-codigo-recuperacao", `{"cpf":"1"}`)

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, "Erro interno do servidor", decode(t, rec)["error"])
	})
}

func TestHealthEndpoints(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		srv, _ := newTestServer(defaultTestConfig())
		h := srv.Handler()

		rec := doRequest(t, h, http.MethodGet, "/api/health", "")
		assert.Equal(t, http.StatusOK, rec.Code)

		payload := decode(t, rec)
		assert.Equal(t, "healthy", payload["status"])
		assert.Equal(t, "1 minute", payload["uptime"])
		assert.Equal(t, float64(1200), payload["metrics"].(map[string]interface{})["totalRequests"])

		assert.Equal(t, http.StatusOK, doRequest(t, h, http.MethodGet, "/live", "").Code)
		assert.Equal(t, http.StatusOK, doRequest(t, h, http.MethodGet, "/ready", "").Code)
	})

	t.Run("unhealthy", func(t *testing.T) {
		srv, deps := newTestServer(defaultTestConfig())
		deps.health.status = health.Status{Healthy: false, Detail: "query timeout after 30s"}
		h := srv.Handler()

		rec := doRequest(t, h, http.MethodGet, "/api/health", "")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Equal(t, "unhealthy", decode(t, rec)["status"])

		assert.Equal(t, http.StatusServiceUnavailable, doRequest(t, h, http.MethodGet, "/ready", "").Code)
	})
}

func TestMetricsEndpoints(t *testing.T) {
	srv, _ := newTestServer(defaultTestConfig())
	h := srv.Handler()

	rec := doRequest(t, h, http.MethodGet, "/api/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "100.00%", decode(t, rec)["successRate"])

	rec = doRequest(t, h, http.MethodGet, "/api/metrics?format=table", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Total requests")
	assert.Contains(t, rec.Body.String(), "1,200")

	rec = doRequest(t, h, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "chegar_http_request_duration_seconds")
}

func TestRequestID(t *testing.T) {
	srv, _ := newTestServer(defaultTestConfig())
	h := srv.Handler()

	req := httptest.NewRequest(http.MethodGet, "/api/metrics", http.NoBody)
	req.Header.Set(RequestIDHeader, "req-42")

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "req-42", rec.Header().Get(RequestIDHeader))

	rec = doRequest(t, h, http.MethodGet, "/api/metrics", "")
	assert.Len(t, rec.Header().Get(RequestIDHeader), 20)
}

func TestPanicRecovery(t *testing.T) {
	srv, deps := newTestServer(defaultTestConfig())
	deps.submitter.panics = true

	rec := doRequest(t, srv.Handler(), http.MethodPost, "/api/solicitacoes", `{"tipo":"manutencao"}`)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	payload := decode(t, rec)
	assert.Equal(t, false, payload["success"])
	assert.Equal(t, "Erro interno do servidor", payload["error"])
	assert.Equal(t, rec.Header().Get(RequestIDHeader), payload["requestId"])
}

func TestCORS(t *testing.T) {
	srv, _ := newTestServer(defaultTestConfig())
	h := srv.Handler()

	preflight := func(origin string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodOptions, "/api/solicitacoes", http.NoBody)
		req.Header.Set("Origin", origin)
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		return rec
	}

	rec := preflight("https://chegar-primeiro.netlify.app")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://chegar-primeiro.netlify.app", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))

	rec = preflight("https://evil.example.com")
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRateLimit(t *testing.T) {
	cfg := defaultTestConfig()
	cfg.RateLimit = config.RateLimit{Enabled: true, RPS: 0.001, Burst: 2}
	cfg.TrustedProxies = []string{"192.0.2.1", "10.0.0.0/8"}

	srv, _ := newTestServer(cfg)
	h := srv.Handler()

	request := func(ip string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/metrics", http.NoBody)
		req.Header.Set("X-Forwarded-For", ip+", 10.0.0.1")

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		return rec
	}

	assert.Equal(t, http.StatusOK, request("203.0.113.7").Code)
	assert.Equal(t, http.StatusOK, request("203.0.113.7").Code)

	rec := request("203.0.113.7")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	assert.Equal(t, http.StatusOK, request("198.51.100.1").Code)

	// Probes are not limited.
	for i := 0; i < 5; i++ {
		req := httptest.NewRequest(http.MethodGet, "/live", http.NoBody)
		req.Header.Set("X-Forwarded-For", "203.0.113.7")

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	}
}

func TestRateLimitIgnoresForwardedForFromUntrustedPeer(t *testing.T) {
	cfg := defaultTestConfig()
	cfg.RateLimit = config.RateLimit{Enabled: true, RPS: 1, Burst: 1}

	srv, _ := newTestServer(cfg)
	h := srv.Handler()

	blocked := 0

	for i := 0; i < 20; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/metrics", http.NoBody)
		req.RemoteAddr = "198.51.100.20:40000"
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("203.0.113.%d", i))

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		if rec.Code == http.StatusTooManyRequests {
			blocked++
		}
	}

	assert.GreaterOrEqual(t, blocked, 18)
}

func TestClientIP(t *testing.T) {
	srv, _ := newTestServer(config.App{TrustedProxies: []string{"10.0.0.0/8", "192.0.2.1", "not-an-ip"}})

	testCases := []struct {
		caseName   string
		remoteAddr string
		forwarded  string
		expected   string
	}{
		{caseName: "untrusted peer", remoteAddr: "198.51.100.20:40000", forwarded: "203.0.113.7", expected: "198.51.100.20"},
		{caseName: "trusted peer without header", remoteAddr: "192.0.2.1:1234", expected: "192.0.2.1"},
		{caseName: "trusted peer", remoteAddr: "192.0.2.1:1234", forwarded: "203.0.113.7", expected: "203.0.113.7"},
		{caseName: "spoofed leading hop", remoteAddr: "10.1.2.3:1234", forwarded: "1.1.1.1, 203.0.113.7, 10.0.0.5", expected: "203.0.113.7"},
		{caseName: "only trusted hops", remoteAddr: "10.1.2.3:1234", forwarded: "10.0.0.5", expected: "10.1.2.3"},
	}

	for _, tc := range testCases {
		t.Run(tc.caseName, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/metrics", http.NoBody)
			req.RemoteAddr = tc.remoteAddr

			if tc.forwarded != "" {
				req.Header.Set("X-Forwarded-For", tc.forwarded)
			}

			assert.Equal(t, tc.expected, srv.clientIP(req))
		})
	}
}

func TestRateLimiterCleanup(t *testing.T) {
	l := newRateLimiter(1, 1)
	l.idleTTL = time.Millisecond

	_, ok := l.allow("a")
	assert.True(t, ok)
	assert.Equal(t, 1, l.size())

	time.Sleep(5 * time.Millisecond)
	l.cleanup()

	assert.Equal(t, 0, l.size())
}

func TestRenderMetrics(t *testing.T) {
	var buf bytes.Buffer

	renderMetrics(&buf, sqlexec.Snapshot{TotalRequests: 1234567, AverageResponseTime: 12.345, SuccessRate: "99.50%"})

	out := buf.String()
	assert.Contains(t, out, "1,234,567")
	assert.Contains(t, out, "12.35 ms")
	assert.Contains(t, out, "99.50%")
}
