package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	httpAdapter "github.com/iho/treasury/internal/adapter/http"
	"github.com/iho/treasury/internal/adapter/http/handler"
	"github.com/iho/treasury/internal/adapter/http/middleware"
	redisRepo "github.com/iho/treasury/internal/adapter/repository/redis"
	"github.com/iho/treasury/internal/app"
	"github.com/iho/treasury/internal/infrastructure/auth"
	"github.com/iho/treasury/internal/infrastructure/config"
	"github.com/iho/treasury/internal/infrastructure/eventpublisher"
	"github.com/iho/treasury/internal/infrastructure/logger"
	"github.com/iho/treasury/internal/infrastructure/metrics"
	"github.com/iho/treasury/internal/infrastructure/redis"
	"github.com/iho/treasury/internal/usecase"
)

const limiterIdleTimeout = 10 * time.Minute

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	logger := logger.New(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	if err := run(ctx, cfg, logger, reg); err != nil {
		logger.Error().Err(err).Msg("server exited with error")
		os.Exit(1)
	}
}

// run serves until ctx is cancelled, then drains in-flight requests.
func run(ctx context.Context, cfg *config.Config, logger zerolog.Logger, reg *prometheus.Registry) error {
	srv, err := newServer(ctx, cfg, logger, reg)
	if err != nil {
		return err
	}
	defer srv.Close()

	workers, cancelWorkers := context.WithCancel(ctx)
	defer cancelWorkers()
	srv.startWorkers(workers)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.HTTPPort),
		Handler:      srv.handler,
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("port", cfg.HTTPPort).Str("storage", cfg.StorageDriver).Msg("starting server")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info().Msg("server stopped")
	return nil
}

// server is the assembled application: storage, optional Redis, the HTTP
// handler and the background workers that share them.
type server struct {
	logger    zerolog.Logger
	metrics   *metrics.Metrics
	storage   *app.Storage
	redis     *goredis.Client
	kafka     *eventpublisher.KafkaPublisher
	limiter   *middleware.RateLimiter
	publisher *eventpublisher.EventPublisher
	handler   http.Handler
}

func newServer(ctx context.Context, cfg *config.Config, logger zerolog.Logger, reg *prometheus.Registry) (*server, error) {
	m := metrics.New(reg)
	s := &server{logger: logger, metrics: m}

	storage, err := app.OpenStorage(ctx, cfg, logger, m)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}
	s.storage = storage
	if storage.Pool != nil {
		logger.Info().Msg("connected to postgres")
	}

	opts, err := app.OptionsFromConfig(cfg, storage.Repos)
	if err != nil {
		s.Close()
		return nil, err
	}
	opts.Metrics = m
	opts.Logger = logger

	var idempotency usecase.IdempotencyStore
	if cfg.RedisURL != "" {
		client, err := redis.NewClient(ctx, redis.Config{URL: cfg.RedisURL, PoolSize: cfg.RedisPoolSize})
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		s.redis = client
		opts.Cache = redisRepo.NewCache(client, m.RedisErrors)
		idempotency = redisRepo.NewIdempotencyStore(client)
		logger.Info().Msg("connected to redis")
	} else {
		logger.Warn().Msg("redis disabled; idempotency keys and status cache are off")
	}

	svc, err := app.NewServices(opts)
	if err != nil {
		s.Close()
		return nil, err
	}

	deps := map[string]handler.Pinger{}
	if storage.Pool != nil {
		deps["postgres"] = storage.Pool
	}
	if s.redis != nil {
		client := s.redis
		deps["redis"] = handler.PingFunc(func(ctx context.Context) error { return client.Ping(ctx).Err() })
	}

	var verifier middleware.TokenVerifier
	if cfg.AuthEnabled {
		verifier = auth.NewJWTManager(cfg.JWTSecret, cfg.JWTExpiration)
	} else {
		logger.Warn().Msg("authentication disabled")
	}

	if cfg.RateLimitRPS > 0 {
		s.limiter = middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, m.RateLimitHits)
	}

	if cfg.OutboxEnabled {
		var pub eventpublisher.Publisher = eventpublisher.NewLogPublisher(logger)
		if len(cfg.KafkaBrokers) > 0 {
			s.kafka = eventpublisher.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
			pub = s.kafka
		}
		s.publisher = eventpublisher.NewEventPublisher(eventpublisher.Config{
			OutboxRepo: storage.Repos.Outbox,
			Publisher:  pub,
			Logger:     logger,
			Published:  m.OutboxPublished,
			BatchSize:  cfg.OutboxBatchSize,
			Interval:   cfg.OutboxInterval,
			Retention:  cfg.OutboxRetention,
		})
	}

	s.handler = httpAdapter.NewRouter(httpAdapter.RouterConfig{
		AccountHandler:        handler.NewAccountHandler(svc.Accounts),
		TransactionHandler:    handler.NewTransactionHandler(svc.Transactions, svc.Engine),
		RuleHandler:           handler.NewRuleHandler(svc.Rules),
		ReconciliationHandler: handler.NewReconciliationHandler(svc.Reconciliations),
		AuditHandler:          handler.NewAuditHandler(svc.Audit),
		HealthHandler:         handler.NewHealthHandler(deps),
		IdempotencyStore:      idempotency,
		IdempotencyTTL:        cfg.IdempotencyTTL,
		TokenVerifier:         verifier,
		RateLimiter:           s.limiter,
		Metrics:               m,
		Gatherer:              reg,
		Logger:                logger,
	})

	return s, nil
}

// startWorkers launches the outbox relay and limiter cleanup. They stop
// when ctx is cancelled.
func (s *server) startWorkers(ctx context.Context) {
	if s.publisher != nil {
		go func() {
			if err := s.publisher.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Error().Err(err).Msg("event publisher stopped")
			}
		}()
	}
	if s.limiter != nil {
		go s.limiter.RunCleanup(ctx, limiterIdleTimeout)
	}
}

// Close releases connections in reverse order of acquisition.
func (s *server) Close() {
	if s.kafka != nil {
		if err := s.kafka.Close(); err != nil {
			s.logger.Warn().Err(err).Msg("failed to close kafka writer")
		}
	}
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			s.logger.Warn().Err(err).Msg("failed to close redis client")
		}
	}
	if s.storage != nil {
		s.storage.Close()
	}
}
