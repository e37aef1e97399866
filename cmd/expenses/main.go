package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"expenses/internal/amqp"
	"expenses/internal/auth"
	"expenses/internal/backend"
	"expenses/internal/cache"
	"expenses/internal/cli"
	"expenses/internal/export/xlsx"
	apphttp "expenses/internal/http"
	"expenses/internal/listing"
	"expenses/internal/records"
	"expenses/internal/services"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger("server")
	cfg := cli.LoadAndValidateConfig(logger)

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid store configuration", "error", err)
		os.Exit(1)
	}
	openCtx, cancelOpen := context.WithTimeout(context.Background(), 30*time.Second)
	store, err := backend.NewFactory(logger).CreateBackend(openCtx, backendCfg)
	cancelOpen()
	if err != nil {
		logger.Error("Failed to open store", "error", err, "driver", cfg.StoreDriver)
		os.Exit(1)
	}

	opts := []services.Option{
		services.WithListingCache(cfg.WeeksCacheTTL, cfg.WeeksCacheSize),
	}
	if cfg.AMQPURL != "" {
		publisher, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			// Events are best-effort; the API works without them.
			logger.Warn("AMQP unavailable, week events disabled", "error", err)
		} else {
			opts = append(opts, services.WithPublisher(publisher), services.WithCloser(publisher))
			logger.Info("Publishing week events", "exchange", cfg.AMQPExchange)
		}
	}
	opts = append(opts, services.WithCloser(store))

	weeks := services.NewWeekService(
		records.New(store.Store, records.WithPageSize(cfg.ListPageSize)),
		listing.New(store.Store,
			listing.WithPageSize(cfg.ListPageSize),
			listing.WithFetchConcurrency(cfg.ListFetchConcurrency)),
		opts...,
	)

	var janitor *cache.Janitor
	if caches := weeks.Caches(); len(caches) > 0 {
		janitor = cache.NewJanitor(caches...)
		janitor.Start(cfg.WeeksCacheTTL)
	}

	exporter := xlsx.New(cfg.TemplatePath)
	if !exporter.Enabled() {
		logger.Warn("TEMPLATE_PATH not set, XLSX export disabled")
	}

	var authn *auth.Authenticator
	if cfg.AuthEnabled() {
		authn = auth.New(cfg.AuthUser, cfg.AuthPass, cfg.TokenSecret, cfg.TokenTTL)
		logger.Info("API authentication enabled", "user", cfg.AuthUser)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	srv, err := apphttp.NewServer(":"+cfg.Port, apphttp.Options{
		Weeks:          weeks,
		Exporter:       exporter,
		Auth:           authn,
		Ready:          store.Ping,
		Registry:       reg,
		TrustedProxies: cfg.TrustedProxies,
		WritesPerMin:   cfg.WriteRatePerMinute,
	})
	if err != nil {
		logger.Error("Failed to build HTTP server", "error", err)
		os.Exit(1)
	}

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		if janitor != nil {
			janitor.Stop()
		}
		if err := weeks.Close(); err != nil {
			logger.Error("Failed to release resources", "error", err)
		}
	})

	go func() {
		logger.Info("Starting expenses server",
			"port", cfg.Port,
			"driver", cfg.StoreDriver,
			"export", exporter.Enabled(),
			"auth", authn.Enabled())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server error", "error", err, "port", cfg.Port)
			os.Exit(1)
		}
	}()

	cli.WaitForShutdown(ctx, done)
	slog.Info("Server stopped gracefully")
}
