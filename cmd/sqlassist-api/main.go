package main

import (
	"context"
	"database/sql"
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sqlassist/sqlassist/internal/api"
	"github.com/sqlassist/sqlassist/internal/api/uistatic"
	"github.com/sqlassist/sqlassist/internal/completion"
	"github.com/sqlassist/sqlassist/internal/config"
	"github.com/sqlassist/sqlassist/internal/gateway"
	"github.com/sqlassist/sqlassist/internal/journal"
	"github.com/sqlassist/sqlassist/internal/observability"
	s3store "github.com/sqlassist/sqlassist/internal/storage/s3"
)

func main() {
	envFile := strings.TrimSpace(os.Getenv("SQLASSIST_ENV_FILE"))
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Error("failed to load env file", slog.String("path", envFile), slog.Any("error", err))
		os.Exit(1)
	}

	cfg, err := config.LoadFromEnv("sqlassist-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)

	db, err := openDatabase(cfg)
	if err != nil {
		logger.Error("failed to open database", slog.Any("error", err))
		os.Exit(1)
	}
	gw := gateway.New(db)
	defer func() { _ = gw.Close() }()

	pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	if err := gw.Ping(pingCtx); err != nil {
		logger.Warn("database is not reachable yet", slog.String("driver", cfg.Database.Driver), slog.Any("error", err))
	}
	cancelPing()

	deps := api.Dependencies{
		Logger:   logger,
		Executor: gw,
		UI:       uistatic.Handler(os.DirFS(cfg.UI.PublicDir)),
	}

	if cfg.AI.APIKey == "" {
		logger.Warn("AI API key is not set; /generate_sql will fail")
	} else {
		client, err := completion.NewOpenAIClient(completion.OpenAIConfig{
			BaseURL:     cfg.AI.BaseURL,
			APIKey:      cfg.AI.APIKey,
			Model:       cfg.AI.Model,
			Temperature: cfg.AI.Temperature,
			Timeout:     cfg.AI.Timeout,
		})
		if err != nil {
			logger.Error("failed to initialize completion client", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("completion client ready", slog.String("base_url", cfg.AI.BaseURL), slog.String("model", client.Model()))
		deps.Completer = client
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		queryJournal *journal.Journal
		journalDone  sync.WaitGroup
	)
	if cfg.Journal.Enabled {
		queryJournal, err = openJournal(ctx, cfg, logger)
		if err != nil {
			logger.Error("failed to initialize query journal", slog.Any("error", err))
			os.Exit(1)
		}
		deps.Journal = queryJournal
		journalDone.Add(1)
		go func() {
			defer journalDone.Done()
			queryJournal.Run(ctx)
		}()
	}

	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      api.NewHandler(deps),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	var metricsServer *http.Server
	if cfg.HTTP.MetricsAddr != "" {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("GET /metrics", promhttp.Handler())
		metricsServer = &http.Server{Addr: cfg.HTTP.MetricsAddr, Handler: metricsMux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			logger.Info("starting metrics server", slog.String("addr", cfg.HTTP.MetricsAddr))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", slog.Any("error", err))
			}
		}()
	}

	serveErr := runServer(ctx, logger, server, 10*time.Second)
	if serveErr != nil {
		logger.Error("api server stopped", slog.Any("error", serveErr))
	}
	stop()

	cleanupCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if metricsServer != nil {
		_ = metricsServer.Shutdown(cleanupCtx)
	}
	if queryJournal != nil {
		journalDone.Wait()
		if err := queryJournal.Flush(cleanupCtx); err != nil {
			logger.Error("final journal flush failed", slog.Any("error", err))
		}
		if dropped := queryJournal.Dropped(); dropped > 0 {
			logger.Warn("journal entries were dropped", slog.Int64("count", dropped))
		}
	}
	if serveErr != nil {
		cancel()
		_ = gw.Close()
		os.Exit(1)
	}
}

func openDatabase(cfg config.Config) (*sql.DB, error) {
	if cfg.Database.Driver == config.DriverDuckDB {
		return gateway.OpenDuckDB(cfg.Database.DuckDBPath)
	}
	return gateway.OpenPostgres(gateway.PostgresConfig{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		Database:        cfg.Database.Name,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
}

func openJournal(ctx context.Context, cfg config.Config, logger *slog.Logger) (*journal.Journal, error) {
	store, err := s3store.New(ctx, s3store.Config{
		Endpoint:         cfg.ObjectStore.Endpoint,
		Region:           cfg.ObjectStore.Region,
		Bucket:           cfg.ObjectStore.Bucket,
		AccessKeyID:      cfg.ObjectStore.AccessKeyID,
		SecretAccessKey:  cfg.ObjectStore.SecretAccessKey,
		UseSSL:           cfg.ObjectStore.UseSSL,
		Prefix:           cfg.ObjectStore.Prefix,
		AutoCreateBucket: cfg.ObjectStore.AutoCreateBucket,
	})
	if err != nil {
		return nil, err
	}
	return journal.New(store, logger, journal.Config{
		Service:       cfg.Service.Name,
		FlushInterval: cfg.Journal.FlushInterval,
		BatchSize:     cfg.Journal.BatchSize,
		MaxBuffered:   cfg.Journal.MaxBuffered,
	})
}
