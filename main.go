package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"support-chat/internal/auth"
	"support-chat/internal/config"
	"support-chat/internal/db"
	"support-chat/internal/handlers"
	"support-chat/internal/logging"
	"support-chat/internal/middleware"
	"support-chat/internal/observability"
	"support-chat/internal/presence"
	"support-chat/internal/rabbitmq"
	"support-chat/internal/repositories"
	"support-chat/internal/rpc"
	"support-chat/internal/telemetry"
	"support-chat/internal/ws"
)

const serviceName = "support-chat"

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Setup("info", "production")
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	logging.Setup(cfg.LogLevel, cfg.Environment)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.SetupTracing(ctx, cfg.OTLPEndpoint, serviceName, cfg.Environment)
	if err != nil {
		log.Warn().Err(err).Msg("tracing disabled")
	}

	database, err := db.Connect(ctx, cfg.DBDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to db")
	}
	defer database.Close()

	publisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange)
	defer publisher.Close()
	observability.SetPublisher(publisher)
	log.Info().Str("mode", rabbitmq.PublisherMode(publisher)).Str("reason", rabbitmq.PublisherNoopReason(publisher)).Msg("event publisher ready")
	audit := telemetry.NewAuditEmitter(publisher, observability.RoutingAudit, serviceName, cfg.Environment)

	conversationRepo := repositories.NewConversationRepo(database)
	messageRepo := repositories.NewMessageRepo(database)
	threadRepo := repositories.NewThreadRepo(database)

	buffer := ws.NewBuffer(cfg.Buffer.MaxPerRoom, cfg.Buffer.Retention)
	go buffer.RunPruner(ctx, cfg.Buffer.PruneCron)
	hub := ws.NewHub(presence.NewRegistry(), buffer, messageRepo, conversationRepo)

	verifier := auth.NewJWTVerifier([]byte(cfg.JWTSecret))
	supportHandler := handlers.NewSupportHandler(threadRepo, conversationRepo, messageRepo, hub)
	adminHandler := handlers.NewAdminHandler(threadRepo, conversationRepo, messageRepo, hub, audit)
	readStateHandler := handlers.NewReadStateHandler(repositories.NewReadStateRepo(database))
	userHandler := handlers.NewUserHandler(repositories.NewUserRepo(database))
	wsHandler := ws.NewHandler(ctx, hub, verifier, ws.Limits{
		EventsPerSecond: cfg.WSLimiter.EventsPerSecond,
		Burst:           cfg.WSLimiter.Burst,
	})

	if cfg.Environment != "development" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	// middlewares
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(otelgin.Middleware(serviceName))
	router.Use(observability.HTTPMetricsMiddleware())

	router.GET("/healthz", func(c *gin.Context) {
		if err := database.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	authMiddleware := middleware.AuthMiddleware(verifier)

	router.GET("/messages", authMiddleware, supportHandler.GetMessages)
	router.POST("/messages", authMiddleware, supportHandler.PostMessage)
	router.GET("/messages/unread", authMiddleware, supportHandler.GetUnread)
	router.GET("/messages/broadcasts", authMiddleware, supportHandler.GetBroadcasts)

	admin := router.Group("/admin", authMiddleware, middleware.RequireAdmin())
	admin.GET("/conversations", adminHandler.ListConversations)
	admin.POST("/conversations", adminHandler.StartConversation)
	admin.POST("/conversations/bulk-delete", adminHandler.BulkDeleteConversations)
	admin.GET("/conversations/:id/messages", adminHandler.GetConversationMessages)
	admin.POST("/conversations/:id/messages", adminHandler.Reply)
	admin.DELETE("/conversations/:id", adminHandler.DeleteConversation)
	admin.DELETE("/conversations/:id/messages", adminHandler.ClearConversation)
	admin.POST("/conversations/:id/read", readStateHandler.MarkRead)
	admin.DELETE("/messages/:id", adminHandler.DeleteMessage)
	admin.POST("/messages/bulk-delete", adminHandler.BulkDeleteMessages)
	admin.POST("/broadcast", adminHandler.Broadcast)
	admin.DELETE("/identities", adminHandler.PurgeIdentity)
	admin.GET("/presence", adminHandler.Presence)
	admin.GET("/users/:id", userHandler.GetUser)
	handlers.RegisterDebugRoutes(admin, hub, audit, cfg.DebugRoutes)

	router.GET("/ws", wsHandler.Handle)

	listener, err := rpc.Listen(":" + cfg.GRPCPort)
	if err != nil {
		log.Fatal().Err(err).Msg("grpc listen failed")
	}
	grpcServer := rpc.NewServer(listener, rpc.NewService(conversationRepo, hub, audit))
	grpcDone := make(chan error, 1)
	go func() { grpcDone <- grpcServer.Serve(ctx) }()

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("http server error")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown failed")
	}
	if err := <-grpcDone; err != nil {
		log.Error().Err(err).Msg("grpc server error")
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("tracing shutdown failed")
	}
}
