/*
Chegar

2021 © Postgres.ai

Solicitation portal backend of an internet service provider.
*/

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"gitlab.com/postgres-ai/database-lab/v2/pkg/log"

	"gitlab.com/postgres-ai/chegar/pkg/api"
	"gitlab.com/postgres-ai/chegar/pkg/config"
	"gitlab.com/postgres-ai/chegar/pkg/services/clients"
	"gitlab.com/postgres-ai/chegar/pkg/services/health"
	"gitlab.com/postgres-ai/chegar/pkg/services/notifier"
	"gitlab.com/postgres-ai/chegar/pkg/services/solicitation"
	"gitlab.com/postgres-ai/chegar/pkg/services/sqlexec"
	"gitlab.com/postgres-ai/chegar/pkg/services/verification"
)

const (
	shutdownTimeout  = 30 * time.Second
	redisPingTimeout = 5 * time.Second

	configFilePath = "config/config.yml"
)

// ldflag variables.
var buildTime, version string

func main() {
	version := formatVersion()

	cfg, err := loadConfig(configFilePath)
	if err != nil {
		log.Fatal("failed to load config: ", err)
	}

	log.DEBUG = cfg.App.Debug

	log.Dbg("version: ", version)

	cfg.App.Version = version

	ctx, cancel := context.WithCancel(context.Background())
	shutdownCh := setShutdownListener()

	sqlClient, err := sqlexec.Open(ctx, cfg.SQL)
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to create an SQL client"))
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(sqlexec.NewCollector(sqlClient))

	queue := notifier.NewQueue(newMailer(cfg.Mail), cfg.Mail.QueueSize)
	queue.Start(ctx)

	codeStore, err := newCodeStore(ctx, cfg)
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to create a verification code store"))
	}

	codes := verification.NewService(codeStore, queue, cfg.Verification.TTL)

	var alerter health.Alerter
	if cfg.Health.SlackWebhook != "" {
		alerter = health.NewSlackAlerter(cfg.Health.SlackWebhook)
	}

	reporter := health.NewReporter(sqlClient, cfg.Health.Interval, alerter)
	go reporter.Run(ctx)

	server := api.NewServer(cfg.App, api.Dependencies{
		Solicitations: solicitation.NewService(sqlClient, queue),
		Clients:       clients.NewService(sqlClient, codes),
		Health:        reporter,
		Metrics:       sqlClient,
		Registry:      registry,
	})

	go setSighupListener(ctx, sqlClient)

	go func() {
		if err := server.RunServer(ctx); err != nil && err != http.ErrServerClosed {
			log.Fatal(err)
		}
	}()

	<-shutdownCh
	log.Dbg("shutdown request received")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Msg(err)
	}

	queue.Wait()

	if err := sqlClient.Close(); err != nil {
		log.Err("failed to close the SQL client: ", err)
	}
}

// loadConfig reads the config file when it exists. Environment variables override its values.
func loadConfig(configPath string) (*config.Config, error) {
	var cfg config.Config

	if _, err := os.Stat(configPath); err == nil {
		if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
			return nil, errors.Wrap(err, "failed to read a config file")
		}

		return &cfg, nil
	}

	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to read environment variables")
	}

	return &cfg, nil
}

func newMailer(cfg config.Mail) notifier.Mailer {
	if !cfg.Enabled() {
		log.Msg("EMAIL_USER or EMAIL_PASS is not set, notifications will only be logged")
		return notifier.LogMailer{}
	}

	return notifier.NewSMTPMailer(cfg)
}

func newCodeStore(ctx context.Context, cfg *config.Config) (verification.Store, error) {
	switch cfg.Verification.Store {
	case config.StoreMemory, "":
		return verification.NewMemoryStore(), nil

	case config.StoreRedis:
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})

		pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
		defer cancel()

		if err := rdb.Ping(pingCtx).Err(); err != nil {
			return nil, errors.Wrapf(err, "failed to connect to Redis at %s", cfg.Redis.Addr)
		}

		return verification.NewRedisStore(rdb, cfg.Redis.Prefix), nil

	default:
		return nil, errors.Errorf("unknown verification store given: %q", cfg.Verification.Store)
	}
}

func formatVersion() string {
	return version + "-" + buildTime
}

func setShutdownListener() chan os.Signal {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	return c
}

// setSighupListener dumps the SQL client metrics.
func setSighupListener(ctx context.Context, sqlClient *sqlexec.Client) {
	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGHUP)

	for {
		select {
		case <-ctx.Done():
			return
		case <-c:
			m := sqlClient.Metrics()
			log.Msg(fmt.Sprintf("SQL metrics: total=%d ok=%d failed=%d retries=%d rate=%s avg=%.2fms active=%d queued=%d",
				m.TotalRequests, m.SuccessfulRequests, m.FailedRequests, m.TotalRetries,
				m.SuccessRate, m.AverageResponseTime, m.ActiveRequests, m.QueuedRequests))
		}
	}
}
