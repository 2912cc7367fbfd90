package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"account-access-service/internal/config"
	"account-access-service/internal/handlers"
	"account-access-service/internal/metrics"
	"account-access-service/internal/middleware"
	"account-access-service/internal/models"
	natsclient "account-access-service/internal/nats"
	redisclient "account-access-service/internal/redis"
	"account-access-service/internal/repository"
	"account-access-service/internal/resolver"
	"account-access-service/internal/services"
)

func main() {
	logger := newLogger()
	cfg := config.New()

	if cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := initDatabase(cfg.Database)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to database")
	}
	if err := autoMigrate(db); err != nil {
		logger.WithError(err).Fatal("Failed to run migrations")
	}

	// Redis is advisory; the service runs without it.
	redisCache, err := redisclient.NewClient(cfg.Redis, logger)
	if err != nil {
		logger.WithError(err).Warn("Redis unavailable, running without summary cache")
		redisCache = nil
	}

	// NATS is best-effort; events are skipped when it is down.
	events, err := natsclient.NewClient(cfg.NATS.URL, logger)
	if err != nil {
		logger.WithError(err).Warn("NATS unavailable, running without event publishing")
		events = nil
	}

	m := metrics.New()

	accountRepo := repository.NewAccountRepository(db)
	membershipRepo := repository.NewMembershipRepository(db)
	tokenRepo := repository.NewTokenRepository(db)
	userRepo := repository.NewUserRepository(db)
	activityRepo := repository.NewActivityRepository(db)

	sessions, err := services.NewSessionService(sessionConfig(cfg, logger))
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize session service")
	}
	identity := services.NewIdentityService(userRepo)
	accessService := services.NewAccessService(accountRepo, membershipRepo, activityRepo, redisCache, events, m, logger)
	tokenService := services.NewTokenService(tokenRepo, accountRepo, activityRepo, events, m, cfg.Token, logger)
	onboardingService := services.NewOnboardingService(tokenService, identity, sessions, accountRepo, logger)
	setupService := services.NewSetupService(accountRepo, events, logger)

	healthHandler := handlers.NewHealthHandler(db)
	accessHandler := handlers.NewAccessHandler(accessService)
	tokenHandler := handlers.NewTokenHandler(tokenService)
	onboardingHandler := handlers.NewOnboardingHandler(onboardingService)
	setupHandler := handlers.NewSetupHandler(accessService, setupService)

	router := setupRouter(cfg, logger, m, sessions,
		healthHandler, accessHandler, tokenHandler, onboardingHandler, setupHandler)

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.WithField("addr", srv.Addr).Info("Starting account-access-service")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("Server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Forced shutdown")
	}

	events.Close()
	if redisCache != nil {
		if err := redisCache.Close(); err != nil {
			logger.WithError(err).Warn("Failed to close Redis")
		}
	}
	logger.Info("Server stopped")
}

func newLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	if level, err := logrus.ParseLevel(os.Getenv("LOG_LEVEL")); err == nil {
		logger.SetLevel(level)
	}
	return logger
}

// sessionConfig fills development defaults for missing JWT secrets so local
// runs work out of the box. Production must configure real secrets.
func sessionConfig(cfg *config.Config, logger *logrus.Logger) config.SessionConfig {
	sc := cfg.Session
	if cfg.App.Environment != "production" {
		if sc.AccessSecret == "" {
			sc.AccessSecret = "dev-access-secret"
			logger.Warn("JWT_ACCESS_SECRET not set, using development default")
		}
		if sc.RefreshSecret == "" {
			sc.RefreshSecret = "dev-refresh-secret"
			logger.Warn("JWT_REFRESH_SECRET not set, using development default")
		}
	}
	return sc
}

func setupRouter(
	cfg *config.Config,
	logger *logrus.Logger,
	m *metrics.Metrics,
	sessions *services.SessionService,
	healthHandler *handlers.HealthHandler,
	accessHandler *handlers.AccessHandler,
	tokenHandler *handlers.TokenHandler,
	onboardingHandler *handlers.OnboardingHandler,
	setupHandler *handlers.SetupHandler,
) *gin.Engine {
	router := gin.New()

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = []string{
		"https://" + cfg.URL.BaseDomain,
		"https://app." + cfg.URL.BaseDomain,
		"http://localhost:3000",
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.AllowCredentials = true

	router.Use(cors.New(corsConfig))
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.StructuredLogger(logger))
	router.Use(middleware.Metrics(m))

	router.GET("/health", healthHandler.Health)
	router.GET("/ready", healthHandler.Ready)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	tenantResolver := resolver.New(cfg.URL.BaseDomain)

	api := router.Group("/api/v1")
	{
		onboarding := api.Group("/onboarding")
		{
			onboarding.POST("/redeem", onboardingHandler.Redeem)
			onboarding.GET("/tokens/:tokenId", tokenHandler.Validate)
		}

		authed := api.Group("")
		authed.Use(middleware.AuthRequired(sessions))
		{
			authed.GET("/accounts", accessHandler.ListAccounts)

			account := authed.Group("/accounts/:account")
			account.Use(middleware.TenantExtraction(tenantResolver))
			{
				account.GET("/context", accessHandler.GetContext)
				account.GET("/members", accessHandler.ListMembers)
				account.PUT("/members/:memberId/role", accessHandler.ChangeRole)
				account.POST("/members/:memberId/deactivate", accessHandler.DeactivateMember)
				account.GET("/activity", accessHandler.ListActivity)
				account.POST("/setup", setupHandler.Complete)
			}
		}
	}

	internal := router.Group("/internal")
	internal.Use(middleware.InternalOnly(cfg.App.InternalSecret))
	{
		internal.POST("/tokens", tokenHandler.Generate)
		internal.POST("/tokens/:tokenId/revoke", tokenHandler.Revoke)
	}

	return router
}

func initDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Name, cfg.SSLMode)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database handle: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

func autoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Account{},
		&models.AccountProfile{},
		&models.Membership{},
		&models.PostSaleToken{},
		&models.AccessView{},
		&models.User{},
		&models.ActivityLog{},
	)
}
