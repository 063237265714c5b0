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

	"live-quiz-service/config"
	"live-quiz-service/internal/catalog"
	"live-quiz-service/internal/handlers"
	"live-quiz-service/internal/registry"
	"live-quiz-service/internal/repository"
	ws "live-quiz-service/internal/websocket"
	"live-quiz-service/pkg/cache"
	"live-quiz-service/pkg/database"
	"live-quiz-service/pkg/messaging"
)

func main() {
	_ = godotenv.Load()
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	cfg := config.Load()
	log.Info().Msg("configuration loaded")

	pgClient, err := database.NewPostgresClient(&cfg.DB)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to PostgreSQL")
	}
	log.Info().Msg("connected to PostgreSQL")
	defer pgClient.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := pgClient.InitSchema(ctx); err != nil {
		log.Warn().Err(err).Msg("failed to initialize PostgreSQL schema")
	} else {
		log.Info().Msg("PostgreSQL schema initialized")
	}
	cancel()

	var redisClient *cache.RedisClient
	if cfg.Redis.Enabled {
		redisClient, err = cache.NewRedisClient(&cfg.Redis)
		if err != nil {
			log.Warn().Err(err).Msg("failed to connect to Redis, continuing without quiz cache")
			redisClient = nil
		} else {
			log.Info().Msg("connected to Redis")
			defer redisClient.Close()
		}
	}

	var publisher registry.Publisher
	if cfg.Rabbit.Enabled {
		rabbitClient, err := messaging.NewRabbitMQClient(&cfg.Rabbit)
		if err != nil {
			log.Warn().Err(err).Msg("failed to connect to RabbitMQ, continuing without session events")
		} else {
			log.Info().Msg("connected to RabbitMQ")
			defer rabbitClient.Close()
			publisher = rabbitClient
		}
	}

	sessionRepo := repository.NewSessionRepository(pgClient.GetDB())
	quizCatalog := catalog.NewQuizCatalog(pgClient.GetDB())

	rooms := registry.New(registry.Config{
		Catalog:         quizCatalog,
		Store:           sessionRepo,
		Cache:           redisClient,
		Publisher:       publisher,
		HostTokenSecret: cfg.Game.HostTokenSecret,
	})

	hub := ws.NewHub(rooms)
	go hub.Run()
	log.Info().Msg("websocket hub started")

	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "Quiz App Backend Running"})
	})

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"service": "live-quiz-service",
		})
	})

	router.GET("/ready", func(c *gin.Context) {
		if err := pgClient.GetDB().PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status":       "ready",
			"active_rooms": rooms.ActiveRooms(),
		})
	})

	wsHandler := handlers.NewWebSocketHandler(hub)
	router.GET("/ws", wsHandler.HandleWebSocket)

	quizHandler := handlers.NewQuizHandler(quizCatalog)
	router.GET("/quizzes", quizHandler.ListQuizzes)
	router.POST("/quizzes", quizHandler.CreateQuiz)

	exportHandler := handlers.NewExportHandler(sessionRepo, quizCatalog, redisClient)
	router.GET("/export/:roomID", exportHandler.HandleExport)

	srv := &http.Server{
		Addr:              ":" + cfg.Server.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 60 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.Server.HTTPPort).Msg("HTTP server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	log.Info().Msg("live quiz service stopped")
}
