package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/arogya-labs/teleconsult/internal/appointments"
	"github.com/arogya-labs/teleconsult/internal/config"
	"github.com/arogya-labs/teleconsult/internal/database"
	"github.com/arogya-labs/teleconsult/internal/handlers"
	"github.com/arogya-labs/teleconsult/internal/push"
	"github.com/arogya-labs/teleconsult/internal/signaling"
	"github.com/arogya-labs/teleconsult/internal/turn"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const AppVersion = "1.0.0"

func main() {
	cfg := config.Load()

	level := slog.LevelInfo
	if cfg.LogLevel == "debug" {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	logger.Info(fmt.Sprintf("Teleconsult Server v%s", AppVersion))

	db, err := database.Initialize(cfg.DBPath)
	if err != nil {
		logger.Error("failed to initialize database", "error", err)
		return
	}

	turnServer, err := turn.Start(cfg.TURNPort, cfg.TURNRealm, cfg.TURNPublicIP, logger)
	if err != nil {
		logger.Error("failed to start TURN server", "error", err)
		return
	}
	defer turnServer.Close()

	appts := appointments.NewService(db)
	pushService := push.NewService(db, cfg.VAPIDKeys, logger)
	alerter := push.NewJoinAlerter(appts, pushService, logger)

	hub := signaling.NewHub(appts, alerter, cfg.RoomTTL, logger)
	defer hub.Close()

	h := handlers.New(
		cfg,
		db,
		appts,
		hub,
		pushService,
		turnServer,
		websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	)

	router := setupRouter(h, cfg, logger)

	server := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("HTTP server starting", "port", cfg.HTTPPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown failed", "error", err)
	}
}

func setupRouter(h *handlers.Handlers, cfg *config.Config, logger *slog.Logger) *gin.Engine {
	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(slogGinLogger(logger))

	// CORS middleware for the web app.
	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	api := router.Group("/api")
	{
		api.POST("/auth/register", h.Register)
		api.POST("/auth/login", h.Login)
		api.GET("/turn-config", h.GetTURNConfig)
		api.GET("/vapid-key", h.GetVAPIDPublicKey)
		api.GET("/ws", h.HandleWebSocket)

		authed := api.Group("", h.AuthRequired())
		{
			authed.POST("/appointments", h.CreateAppointment)
			authed.GET("/appointments", h.ListAppointments)
			authed.GET("/appointments/:appointment_id", h.GetAppointment)
			authed.POST("/appointments/:appointment_id/confirm", h.ConfirmAppointment)
			authed.POST("/push/subscribe", h.SubscribePush)
		}
	}

	return router
}
