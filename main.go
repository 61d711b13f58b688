// api/main.go
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"funnelsight/api/config"
	"funnelsight/api/database"
	"funnelsight/api/detect"
	"funnelsight/api/handlers"
	"funnelsight/api/middleware"
	"funnelsight/api/notify"
	"funnelsight/api/source"
	"funnelsight/api/store"
	"funnelsight/api/sync"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("no .env file loaded")
	}

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if os.Getenv("GIN_MODE") == "release" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	cfg := config.Load()

	dbClient, err := database.NewPostgresDB()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize PostgreSQL")
	}
	defer dbClient.Close()

	chClient, err := database.NewClickHouseDB()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize ClickHouse")
	}
	defer chClient.Close()

	redisClient, err := database.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize Redis")
	}
	defer redisClient.Close()

	// Stores.
	userStore := store.NewUserStore(dbClient.DB)
	funnelStore := store.NewFunnelStore(dbClient.DB)
	stepStore := store.NewStepStore(dbClient.DB)
	aggregateStore := store.NewAggregateStore(dbClient.DB)
	alertStore := store.NewAlertStore(dbClient.DB)
	syncLogStore := store.NewSyncLogStore(dbClient.DB)
	entryStore := store.NewEntryStore(dbClient.DB)
	archiveStore := store.NewArchiveStore(chClient)
	runLock := store.NewRunLock(redisClient)

	// Pipeline.
	sourceClient := source.NewClient(cfg.Source, log.Logger)
	runner := sync.NewRunner(
		sourceClient, archiveStore, funnelStore, stepStore, aggregateStore,
		syncLogStore, runLock, cfg.FunnelName, cfg.Source.FormID,
		cfg.RunBudget, log.Logger,
	)
	notifier := notify.NewSlackNotifier(cfg.SlackWebhookURL, log.Logger)
	detector := detect.NewDetector(aggregateStore, stepStore, alertStore, notifier, detect.DefaultThresholds(), log.Logger)

	// Handlers.
	authHandlers := handlers.NewAuthHandlers(userStore)
	syncHandlers := handlers.NewSyncHandlers(runner, cfg.RunBudget)
	alertHandlers := handlers.NewAlertHandlers(detector, funnelStore, alertStore)
	webhookHandlers := handlers.NewWebhookHandlers(entryStore, cfg.WebhookSecret)
	statsHandlers := handlers.NewStatsHandlers(aggregateStore, archiveStore, funnelStore, syncLogStore)

	r := gin.Default()
	r.Use(middleware.CORSMiddleware())

	api := r.Group("/api")
	{
		api.POST("/signup", authHandlers.Signup)
		api.POST("/login", authHandlers.Login)
		api.POST("/logout", authHandlers.Logout)

		api.POST("/webhooks/events", webhookHandlers.HandleEvent)

		triggers := api.Group("/")
		triggers.Use(middleware.TriggerAuth(cfg.CronSecret, cfg.DashboardOrigin))
		{
			triggers.GET("/sync/funnel", syncHandlers.TriggerSync)
			triggers.GET("/alerts/check", alertHandlers.CheckAlerts)
		}

		protected := api.Group("/")
		protected.Use(middleware.AuthRequired())
		{
			protected.GET("/stats/steps", statsHandlers.GetStepStats)
			protected.GET("/stats/funnel", statsHandlers.GetFunnelStats)
			protected.GET("/stats/coverage", statsHandlers.GetCoverage)
			protected.GET("/stats/sync-logs", statsHandlers.GetSyncLogs)
			protected.GET("/stats/alerts", alertHandlers.ListAlerts)
			protected.POST("/alerts/:id/status", alertHandlers.UpdateAlertStatus)
		}
	}

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Msg("API server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("API server failed to start")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server exiting")
}
