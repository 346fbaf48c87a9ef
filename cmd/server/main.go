package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/edupaila/community-server-go/internal/config"
	"github.com/edupaila/community-server-go/internal/database"
	"github.com/edupaila/community-server-go/internal/handler"
	"github.com/edupaila/community-server-go/internal/jobs"
	"github.com/edupaila/community-server-go/internal/mailer"
	"github.com/edupaila/community-server-go/internal/metrics"
	"github.com/edupaila/community-server-go/internal/middleware"
	"github.com/edupaila/community-server-go/internal/model"
	"github.com/edupaila/community-server-go/internal/redis"
	"github.com/edupaila/community-server-go/internal/repository"
	"github.com/edupaila/community-server-go/internal/service"
	"github.com/edupaila/community-server-go/internal/sse"
	"github.com/edupaila/community-server-go/internal/token"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	setLogLevel(cfg.LogLevel)

	isProduction := cfg.IsProduction()
	if err := cfg.Validate(isProduction); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), config.DBPingTimeout)
	if err := db.Ping(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to ping database")
	}
	cancel()
	log.Info().Msg("database connected")

	if cfg.RunMigrations {
		ctx, cancel := context.WithTimeout(context.Background(), config.MigrationTimeout)
		if err := db.Migrate(ctx); err != nil {
			log.Fatal().Err(err).Msg("failed to run migrations")
		}
		cancel()
	}

	redisClient, err := redis.NewClient(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer redisClient.Close()
	log.Info().Msg("redis connected")

	accountRepo := repository.NewAccountRepository(db.DB)
	passcodeRepo := repository.NewPasscodeRepository(db.DB)
	broadcastRepo := repository.NewBroadcastRepository(db.DB)

	broker := sse.NewBroker(redisClient)
	defer broker.Close()

	gateway := mailer.NewGateway(mailer.Config{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUser,
		Password: cfg.SMTPPass,
		From:     cfg.SMTPFrom,
		Timeout:  cfg.SMTPTimeout(),
	})

	var tokenOpts []token.Option
	if cfg.AuthTestMode && !isProduction {
		log.Warn().Msg("AUTH_TEST_MODE is enabled: the fixed test token is accepted as an admin session")
		tokenOpts = append(tokenOpts, token.WithTestMode(token.TestMode{
			Token: cfg.AuthTestToken,
			Identity: token.Identity{
				OwnerID:      "test-mode",
				OwnerAddress: "test-mode@localhost",
				Role:         model.RoleAdmin,
			},
		}))
	}
	issuer, err := token.NewIssuer(cfg.TokenSecret, cfg.TokenTTL(), tokenOpts...)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create token issuer")
	}

	rateLimiter := service.NewRateLimiter(redisClient.Client)
	passcodeStore := service.NewPasscodeStore(passcodeRepo, db)
	otpService := service.NewOTPService(accountRepo, passcodeStore, gateway, issuer, rateLimiter, service.OTPConfig{
		CodeTTL:                cfg.CodeTTL(),
		AllowAdminSelfRegister: cfg.AllowAdminSelfRegister,
		RequestLimit:           cfg.OTPRequestLimit,
		RequestWindow:          cfg.OTPRequestWindow(),
	})
	broadcastService := service.NewBroadcastService(accountRepo, broadcastRepo, gateway, broker)

	authMiddleware := middleware.NewAuthMiddleware(issuer)
	ipLimiter := service.NewRateLimiter(redisClient.Client).FailOpen()
	authIPLimit := middleware.NewIPRateLimitMiddleware(ipLimiter, config.AuthIPRateLimit, config.AuthIPRateWindow, "auth")
	verifyLimiter := middleware.NewVerifyAttemptLimiter(middleware.DefaultVerifyMaxAttempts, middleware.DefaultVerifyWindow)
	bodyLimitMiddleware := middleware.NewBodyLimitMiddleware(cfg.MaxBodyBytes)
	securityHeadersMiddleware := middleware.NewSecurityHeadersMiddleware(isProduction)

	otpHandler := handler.NewOTPHandler(otpService, verifyLimiter)
	eventsHandler := handler.NewEventsHandler(broker)
	broadcastHandler := handler.NewBroadcastHandler(broadcastService, authMiddleware.RequireAdmin, eventsHandler)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(metrics.Middleware)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(config.ServerRequestTimeout))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   cfg.CORSAllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
			ExposedHeaders:   []string{"Retry-After"},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}
	r.Use(bodyLimitMiddleware.Handler)
	r.Use(securityHeadersMiddleware.Handler)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]any{
			"status":    "ok",
			"timestamp": time.Now().UnixMilli(),
		})
	})
	r.Handle("/metrics", metrics.Handler())

	r.Route("/otp", func(r chi.Router) {
		r.Use(authIPLimit.Handler)
		r.Mount("/", otpHandler.AdminRoutes())
	})

	r.Route("/auth", func(r chi.Router) {
		r.Use(authIPLimit.Handler)
		r.Mount("/", otpHandler.MemberRoutes())
	})

	r.Mount("/broadcast", broadcastHandler.Routes())

	cleanupJob := jobs.NewCleanupJob(passcodeRepo, config.CleanupJobInterval, config.UsedPasscodeRetention)
	cleanupJob.Start()
	defer cleanupJob.Stop()

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  config.ServerReadTimeout,
		WriteTimeout: 0,
		IdleTimeout:  config.ServerIdleTimeout,
	}

	go func() {
		log.Info().Str("addr", cfg.Addr()).Str("env", cfg.AppEnv).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.ServerShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}

func setLogLevel(level string) {
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
