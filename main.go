package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/metalake-io/insight-engine/pkg/aggregate"
	"github.com/metalake-io/insight-engine/pkg/apperrors"
	"github.com/metalake-io/insight-engine/pkg/catalog"
	"github.com/metalake-io/insight-engine/pkg/charts"
	"github.com/metalake-io/insight-engine/pkg/config"
	"github.com/metalake-io/insight-engine/pkg/database"
	"github.com/metalake-io/insight-engine/pkg/handlers"
	"github.com/metalake-io/insight-engine/pkg/kpi"
	"github.com/metalake-io/insight-engine/pkg/lock"
	"github.com/metalake-io/insight-engine/pkg/logging"
	"github.com/metalake-io/insight-engine/pkg/metrics"
	"github.com/metalake-io/insight-engine/pkg/models"
	"github.com/metalake-io/insight-engine/pkg/scheduler"
	"github.com/metalake-io/insight-engine/pkg/secrets"
	"github.com/metalake-io/insight-engine/pkg/sink"
	"github.com/metalake-io/insight-engine/pkg/workflow"
)

// Version is set at build time via ldflags
var Version = "dev"

const listenAddr = ":8080"

func main() {
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.NewLogger(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	if err := run(cfg, logger); err != nil {
		logger.Fatal("insight-engine exited", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("Starting insight-engine",
		zap.String("version", cfg.Version),
		zap.String("env", cfg.Env),
		zap.String("catalog", cfg.Catalog.HostPort))

	wfCfg, err := workflow.LoadConfig(cfg.WorkflowConfigPath)
	if err != nil {
		return err
	}

	token, err := resolveCatalogToken(ctx, cfg, wfCfg, logger)
	if err != nil {
		return err
	}
	catalogClient := catalog.NewHTTPClient(cfg.Catalog.HostPort, token, logger)

	dataSink, cleanup, err := buildSink(ctx, cfg, wfCfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	indexLock, err := buildLock(cfg, logger)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	engineMetrics := metrics.New(registry)

	wf, err := workflow.Create(wfCfg, catalogClient, dataSink, logger,
		workflow.WithLock(indexLock),
		workflow.WithMetrics(engineMetrics))
	if err != nil {
		return err
	}

	engine := aggregate.NewEngine(dataSink, charts.NewRegistry(), logger)
	evaluator := kpi.NewEvaluator(engine, catalogClient, logger)

	sched := scheduler.New(wf, evaluator, cfg.Scheduler.CronSpec, logger).WithMetrics(engineMetrics)
	if cfg.Scheduler.Enabled {
		if err := sched.Start(); err != nil {
			return err
		}
		defer sched.Stop()
	}

	mux := http.NewServeMux()
	handlers.NewHealthHandler(cfg, logger).RegisterRoutes(mux)
	handlers.NewWorkflowHandler(wf, sched, engine, logger).RegisterRoutes(mux)
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	server := &http.Server{
		Addr:              listenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Listening", zap.String("addr", listenAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	wf.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// resolveCatalogToken picks the catalog JWT from, in order: engine config,
// the workflow definition, the configured secrets provider. A token the
// provider cannot find leaves the client unauthenticated, which is fine for
// catalogs that allow it.
func resolveCatalogToken(ctx context.Context, cfg *config.Config, wfCfg *models.WorkflowConfig, logger *zap.Logger) (string, error) {
	if cfg.Catalog.JWTToken != "" {
		return cfg.Catalog.JWTToken, nil
	}
	if token := wfCfg.WorkflowConfig.OpenMetadataServerConfig.SecurityConfig.JWTToken; token != "" {
		return token, nil
	}

	var provider secrets.Provider
	switch cfg.Secrets.Provider {
	case "aws":
		aws, err := secrets.NewAWSProvider(ctx, cfg.Secrets.Region, logger)
		if err != nil {
			return "", err
		}
		provider = aws
	default:
		provider = secrets.NewEnvProvider()
	}

	secretID, err := secrets.BuildSecretID(cfg.Secrets.ClusterPrefix, "catalog", "jwt-token")
	if err != nil {
		return "", err
	}

	token, err := provider.ResolveSecret(ctx, secretID)
	if errors.Is(err, apperrors.ErrNotFound) {
		logger.Warn("Catalog token not found, proceeding unauthenticated",
			zap.String("secret_id", secretID))
		return "", nil
	}
	return token, err
}

// buildSink constructs the sink named by the workflow definition. The
// returned cleanup releases any connection pool it opened.
func buildSink(ctx context.Context, cfg *config.Config, wfCfg *models.WorkflowConfig, logger *zap.Logger) (sink.Sink, func(), error) {
	noop := func() {}

	switch wfCfg.Sink.Type {
	case workflow.SinkTypePostgres:
		if err := database.Migrate(wfCfg.Sink.Config.DatabaseDSN, cfg.Database.MigrationsPath, logger); err != nil {
			return nil, noop, fmt.Errorf("migrate report schema: %w", err)
		}
		db, err := database.NewConnection(ctx, &database.Config{
			URL:            wfCfg.Sink.Config.DatabaseDSN,
			MaxConnections: cfg.Database.MaxConnections,
		})
		if err != nil {
			return nil, noop, err
		}
		return sink.NewPostgresSink(db, logger), db.Close, nil
	default:
		// The workflow definition names the ES node; credentials and scheme
		// come from engine config.
		address := cfg.Elasticsearch.Address()
		if wfCfg.Sink.Config.ESHost != "" {
			address = fmt.Sprintf("%s://%s:%d",
				cfg.Elasticsearch.Scheme, wfCfg.Sink.Config.ESHost, wfCfg.Sink.Config.ESPort)
		}
		es, err := sink.NewElasticsearchSink(
			[]string{address},
			cfg.Elasticsearch.User,
			cfg.Elasticsearch.Password,
			logger,
		)
		if err != nil {
			return nil, noop, err
		}
		return es, noop, nil
	}
}

// buildLock returns a distributed lock when Redis is configured and a
// process-local one otherwise.
func buildLock(cfg *config.Config, logger *zap.Logger) (lock.Lock, error) {
	client, err := database.NewRedisClient(&cfg.Redis)
	if err != nil {
		return nil, err
	}
	if client == nil {
		return lock.NewLocalLock(), nil
	}
	return lock.NewRedisLock(client, logger), nil
}
