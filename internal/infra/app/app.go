package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/arklim/social-platform-guard/internal/core/port"
	"github.com/arklim/social-platform-guard/internal/infra/config"
	"github.com/arklim/social-platform-guard/internal/infra/database"
	kafkainfra "github.com/arklim/social-platform-guard/internal/infra/kafka"
	"github.com/arklim/social-platform-guard/internal/infra/logger"
	"github.com/arklim/social-platform-guard/internal/infra/notification"
	redisinfra "github.com/arklim/social-platform-guard/internal/infra/redis"
	"github.com/arklim/social-platform-guard/internal/infra/telemetry"
	postgresrepo "github.com/arklim/social-platform-guard/internal/repository/postgres"
	redisrepo "github.com/arklim/social-platform-guard/internal/repository/redis"
	"github.com/arklim/social-platform-guard/internal/transport/http/middleware"
	"github.com/arklim/social-platform-guard/internal/transport/http/routes"
	"github.com/arklim/social-platform-guard/internal/usecase"
)

type Application struct {
	cfg    *config.AppConfig
	engine *gin.Engine
	logger *zap.Logger
	pool   *pgxpool.Pool
	redis  *redisinfra.Client
	tracer *telemetry.TracerProvider
}

func New(ctx context.Context, cfg *config.AppConfig) (*Application, error) {
	log, err := logger.New(cfg.App.Env)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	if _, err := telemetry.Attach(ctx, cfg); err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	var tracer *telemetry.TracerProvider
	if cfg.Telemetry.OTLPEndpoint != "" {
		tracer, err = telemetry.NewTracerProvider(ctx, cfg.Telemetry, log)
		if err != nil {
			log.Warn("failed to init tracer provider, tracing disabled", zap.Error(err))
			tracer = nil
		}
	}

	pool, err := database.NewPostgresPool(ctx, cfg.Postgres, log)
	if err != nil {
		return nil, fmt.Errorf("init postgres: %w", err)
	}

	redisClient, err := redisinfra.NewClient(cfg.Redis, log)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("init redis: %w", err)
	}

	maxActive := cfg.Guard.MaxActiveSessions
	if maxActive <= 0 {
		maxActive = usecase.DefaultMaxActiveSessions
	}

	repos := postgresrepo.NewRepositories(pool, maxActive)

	challengeStore := redisrepo.NewChallengeStore(redisClient.Client(), cfg.Redis.ChallengePrefix)
	codeStore := redisrepo.NewOtpCodeStore(redisClient.Client(), cfg.Redis.OtpCodePrefix)

	// Initialize Kafka event publisher
	var eventPublisher port.EventPublisher
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaProducer, err := kafkainfra.NewProducer(cfg.Kafka, log)
		if err != nil {
			log.Warn("failed to init kafka producer, using stub publisher", zap.Error(err))
			eventPublisher = kafkainfra.NewStubPublisher(log)
		} else {
			eventPublisher = kafkainfra.NewEventPublisher(kafkaProducer, cfg.App, log)
			log.Info("kafka event publisher initialized", zap.Strings("brokers", cfg.Kafka.Brokers))
		}
	} else {
		log.Info("kafka brokers not configured, using stub publisher")
		eventPublisher = kafkainfra.NewStubPublisher(log)
	}

	dispatcher := notification.NewLoggingCodeDispatcher(log)

	challengeService := usecase.NewChallengeService(challengeStore, codeStore, dispatcher, eventPublisher, log, usecase.ChallengeConfig{
		TTL:         cfg.Guard.OtpTTL,
		ProofTTL:    cfg.Guard.ProofTTL,
		MaxAttempts: cfg.Guard.OtpMaxAttempts,
		CodeLength:  cfg.Guard.OtpCodeLength,
	})

	classifier := usecase.NewRiskClassifier(cfg.Guard.SimilarityFloor)

	admissionService := usecase.NewAdmissionService(repos.Sessions, repos.History, classifier, challengeService, eventPublisher, log, usecase.AdmissionConfig{
		MaxActiveSessions:   maxActive,
		RecentCountryWindow: cfg.Guard.RecentCountryWindow,
	})

	sessionService := usecase.NewSessionService(repos.Sessions, eventPublisher, log)

	metrics, err := middleware.NewHTTPMetrics(middleware.HTTPMetricsOptions{})
	if err != nil {
		log.Warn("failed to init http metrics", zap.Error(err))
		metrics = nil
	}

	engine := routes.Register(routes.Dependencies{
		Config:   cfg,
		Logger:   log,
		Metrics:  metrics,
		Database: pool,
		Cache:    redisClient,
		Services: routes.ServiceSet{
			Admission: admissionService,
			Sessions:  sessionService,
		},
	})

	return &Application{
		cfg:    cfg,
		engine: engine,
		logger: log,
		pool:   pool,
		redis:  redisClient,
		tracer: tracer,
	}, nil
}

func (a *Application) Run(ctx context.Context) error {
	defer func() {
		_ = a.logger.Sync()
	}()
	defer func() {
		if a.pool != nil {
			a.pool.Close()
		}
	}()
	defer func() {
		if a.redis != nil {
			_ = a.redis.Close()
		}
	}()
	defer func() {
		if a.tracer != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = a.tracer.Shutdown(shutdownCtx)
		}
	}()

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", a.cfg.App.Host, a.cfg.App.Port),
		Handler:           a.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	a.logger.Info("starting session guard API",
		zap.String("env", a.cfg.App.Env),
		zap.String("address", srv.Addr),
	)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- fmt.Errorf("run server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}
		return nil
	case err := <-serverErrCh:
		return err
	}
}
