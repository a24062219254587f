package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"github.com/passportlabs/scorer/internal/config"
	"github.com/passportlabs/scorer/internal/domain"
	"github.com/passportlabs/scorer/internal/infrastructure/providers"
	"github.com/passportlabs/scorer/internal/infrastructure/repository"
	"github.com/passportlabs/scorer/internal/observability"
	"github.com/passportlabs/scorer/internal/present/rest"
	restmiddleware "github.com/passportlabs/scorer/internal/present/rest/middleware"
	"github.com/passportlabs/scorer/internal/service"
	"github.com/passportlabs/scorer/internal/usecase"
)

func main() {

	configPath := os.Getenv("SCORER_CONFIG")
	if configPath == "" {
		configPath = "config.yaml"
	}

	conf, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if conf.Server.EnableTrace {
		shutdown, err := observability.SetupTraceProvider(ctx, conf.Server.TraceEndpoint, "scorer")
		if err != nil {
			slog.Error("failed to set up tracing", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer func() {
			flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			shutdown(flushCtx)
		}()
	}

	db, err := providers.NewDatabase(conf.Server)
	if err != nil {
		slog.Error("failed to connect database", slog.String("error", err.Error()))
		os.Exit(1)
	}

	err = providers.MigrateDatabase(db)
	if err != nil {
		slog.Error("failed to migrate database", slog.String("error", err.Error()))
		os.Exit(1)
	}

	rdb := providers.NewRedis(conf.Server)
	mc := providers.NewMemcache(conf.Server.MemcachedAddr)

	stampRepo := repository.NewStampRepository(db)
	scoreRepo := repository.NewScoreRepository(db, mc)
	communityRepo := repository.NewCommunityRepository(db)
	weightRepo := repository.NewWeightConfigRepository(db)
	dedupRepo := repository.NewDedupIndexRepository(db)
	revocationRepo := repository.NewRevocationRepository(db)
	nonceRepo := repository.NewNonceRepository(rdb)
	sessionRepo := repository.NewSessionRepository(rdb)
	queueRepo := repository.NewJobQueueRepository(rdb)

	eventService := service.NewEventService(rdb)

	dedupUsecase := usecase.NewDedupUsecase(dedupRepo)
	scoringUsecase := usecase.NewScoringUsecase(
		stampRepo,
		scoreRepo,
		communityRepo,
		weightRepo,
		revocationRepo,
		dedupUsecase,
		queueRepo,
		eventService,
	)

	weightRepo.OnActivate(func(cfg domain.WeightConfiguration) {
		err := scoringUsecase.OnWeightConfigActivated(context.Background(), cfg)
		if err != nil {
			slog.Error("weight activation fanout failed", slog.String("error", err.Error()))
		}
	})

	authService := service.NewAuthService(
		nonceRepo,
		sessionRepo,
		conf.Scorer.AllowedDomains,
		conf.Scorer.NonceTTL(),
		conf.Scorer.SessionTTL(),
		conf.Scorer.VerifyBudget(),
	)

	credentialService := service.NewCredentialService(
		stampRepo,
		scoringUsecase,
		service.StaticKeyResolver(conf.Scorer.TrustedIssuers),
		conf.Scorer.VerifyBudget(),
	)

	adminService := service.NewAdminService(weightRepo, communityRepo, revocationRepo)

	for i := 0; i < conf.Scorer.WorkerCount(); i++ {
		worker := service.NewRescoreWorker(queueRepo, scoringUsecase)
		go worker.Run(ctx)
	}

	e := echo.New()
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	if conf.Server.EnableTrace {
		e.Use(otelecho.Middleware("scorer"))
	}

	authMiddleware := restmiddleware.NewAuthMiddleware(authService)
	e.Use(authMiddleware.IdentifyRequester)

	handler := rest.NewHandler(
		authService,
		credentialService,
		adminService,
		scoringUsecase,
		eventService,
		conf.Scorer.AdminKey,
	)
	handler.RegisterRoutes(e)

	bind := conf.Server.Bind
	if bind == "" {
		bind = ":8000"
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		e.Shutdown(shutdownCtx)
	}()

	e.Logger.Fatal(e.Start(bind))
}
