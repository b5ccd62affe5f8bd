/*
2019 © Postgres.ai
*/

// Package api provides the HTTP API of the portal.
package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/heptiolabs/healthcheck"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"gitlab.com/postgres-ai/database-lab/v2/pkg/log"

	"gitlab.com/postgres-ai/chegar/pkg/config"
	"gitlab.com/postgres-ai/chegar/pkg/models"
	"gitlab.com/postgres-ai/chegar/pkg/services/health"
	"gitlab.com/postgres-ai/chegar/pkg/services/solicitation"
	"gitlab.com/postgres-ai/chegar/pkg/services/sqlexec"
)

const (
	readHeaderTimeout = 10 * time.Second

	// maxGoroutines fails the liveness check of a leaking process.
	maxGoroutines = 10000
)

// Submitter registers solicitations.
type Submitter interface {
	Submit(ctx context.Context, req solicitation.Request) (solicitation.Outcome, error)
}

// Clients provides client lookups and credential flows.
type Clients interface {
	FindSignup(ctx context.Context, cpf string) (*models.Solicitation, error)
	FindClient(ctx context.Context, cpf string) (*models.Client, error)
	FindSolicitation(ctx context.Context, protocol string) (*models.Solicitation, error)
	Login(ctx context.Context, cpf, password string) (*models.Client, error)
	RecoverEmail(ctx context.Context, cpf string) (string, error)
	SendRecoveryCode(ctx context.Context, cpf string) error
	ChangePassword(ctx context.Context, cpf, code, newPassword string) error
	SendEmailCode(ctx context.Context, email string) error
	VerifyEmailCode(ctx context.Context, email, code string) error
}

// HealthReporter checks the database availability.
type HealthReporter interface {
	Check(ctx context.Context) health.Status
	Ready() error
	Uptime() string
}

// MetricsSource provides SQL client metrics.
type MetricsSource interface {
	Metrics() sqlexec.Snapshot
}

// Dependencies groups the services used by handlers.
type Dependencies struct {
	Solicitations Submitter
	Clients       Clients
	Health        HealthReporter
	Metrics       MetricsSource
	Registry      *prometheus.Registry
}

// Server defines the HTTP API server.
type Server struct {
	cfg            config.App
	solicitations  Submitter
	clients        Clients
	health         HealthReporter
	metrics        MetricsSource
	registry       *prometheus.Registry
	requests       *prometheus.HistogramVec
	limiter        *rateLimiter
	trustedProxies []*net.IPNet
	httpSrv        *http.Server
}

// NewServer creates a new API server.
func NewServer(cfg config.App, deps Dependencies) *Server {
	registry := deps.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	requests := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "chegar",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "Duration of HTTP requests.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route", "status"})

	registry.MustRegister(requests, collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	s := &Server{
		cfg:            cfg,
		solicitations:  deps.Solicitations,
		clients:        deps.Clients,
		health:         deps.Health,
		metrics:        deps.Metrics,
		registry:       registry,
		requests:       requests,
		trustedProxies: parseTrustedProxies(cfg.TrustedProxies),
	}

	if cfg.RateLimit.Enabled {
		s.limiter = newRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst)
	}

	return s
}

// Handler builds the HTTP handler with all routes and middlewares.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/solicitacoes", s.submitSolicitation)
	mux.HandleFunc("POST /api/cadastrar", s.register)
	mux.HandleFunc("POST /api/troca-servico", s.changeService)
	mux.HandleFunc("GET /api/clientes/{cpf}", s.getSignup)
	mux.HandleFunc("GET /api/cliente-completo/{cpf}", s.getClient)
	mux.HandleFunc("GET /api/solicitacao/{protocolo}", s.getSolicitation)
	mux.HandleFunc("POST /api/login", s.login)
	mux.HandleFunc("POST /api/enviar-codigo-email", s.sendEmailCode)
	mux.HandleFunc("POST /api/validar-codigo-email", s.validateEmailCode)
	mux.HandleFunc("POST /api/recuperar-email", s.recoverEmail)
	mux.HandleFunc("POST /api/enviar-codigo-recuperacao", s.sendRecoveryCode)
	mux.HandleFunc("POST /api/trocar-senha", s.changePassword)
	mux.HandleFunc("GET /api/health", s.healthCheck)
	mux.HandleFunc("GET /api/metrics", s.sqlMetrics)

	probes := healthcheck.NewHandler()
	probes.AddLivenessCheck("goroutine-threshold", healthcheck.GoroutineCountCheck(maxGoroutines))
	probes.AddReadinessCheck("database", s.health.Ready)

	mux.Handle("GET /live", probes)
	mux.Handle("GET /ready", probes)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	var handler http.Handler = mux

	handler = s.rateLimit(handler)
	handler = s.cors(handler)
	handler = s.logRequests(handler)
	handler = recoverPanics(handler)
	handler = requestID(handler)

	return handler
}

// RunServer starts listening for requests.
func (s *Server) RunServer(ctx context.Context) error {
	if s.limiter != nil {
		s.limiter.runJanitor(ctx)
	}

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	log.Msg(fmt.Sprintf("Server start listening on %s", addr))

	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	return s.httpSrv.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}

	return s.httpSrv.Shutdown(ctx)
}
