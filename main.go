package main

import (
	"context"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"messaging-service/internal/auth"
	"messaging-service/internal/config"
	"messaging-service/internal/db"
	"messaging-service/internal/dispatch"
	"messaging-service/internal/handlers"
	"messaging-service/internal/middleware"
	"messaging-service/internal/observability"
	"messaging-service/internal/rabbitmq"
	"messaging-service/internal/registry"
	"messaging-service/internal/repositories"
	"messaging-service/internal/stats"
	"messaging-service/internal/telemetry"
	"messaging-service/internal/tracing"
	"messaging-service/internal/ws"
)

const serviceName = "messaging-service"

func main() {
	cfg := config.Load()
	ctx := context.Background()

	shutdownTracing, err := tracing.Init(ctx, cfg.OTLPEndpoint, serviceName, cfg.Environment)
	if err != nil {
		log.Fatalf("failed to init tracing: %v", err)
	}
	defer shutdownTracing(ctx)

	database, err := db.Connect(cfg.DBDSN)
	if err != nil {
		log.Fatalf("failed to connect to db: %v", err)
	}

	publisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange)
	defer publisher.Close()
	emitter := telemetry.NewAuditEmitter(publisher, "audit.messaging", serviceName, cfg.Environment)

	resolver := auth.NewJWTResolver(cfg.JWTSecret)

	convRepo := repositories.NewConversationRepo(database)
	msgRepo := repositories.NewMessageRepo(database)

	reg := registry.New()
	dispatcher := dispatch.New(reg)

	convHandler := handlers.NewConversationHandler(convRepo, msgRepo, dispatcher, emitter)
	adminHandler := handlers.NewAdminHandler(dispatcher)
	wsHandler := ws.NewHandler(reg, resolver, emitter)

	if cfg.AMQPURL != "" {
		consumer, err := stats.NewConsumer(cfg.AMQPURL, cfg.AMQPExchange, cfg.StatsQueue, dispatcher)
		if err != nil {
			log.Printf("stats consumer disabled: %v", err)
		} else {
			defer consumer.Close()
			go func() {
				if err := consumer.Run(ctx); err != nil {
					log.Printf("stats consumer stopped: %v", err)
				}
			}()
		}
	}

	router := gin.Default()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(serviceName))
	router.Use(observability.HTTPMetricsMiddleware())

	authMiddleware := middleware.AuthMiddleware(resolver)

	// The first path segment after /conversations is an identity for the
	// list endpoint and a conversation id everywhere else, mirroring the
	// public API; gin needs a single param name for the position.
	router.GET("/conversations/:id", authMiddleware, convHandler.ListConversations)
	router.POST("/conversations", authMiddleware, convHandler.CreateConversation)
	router.GET("/conversations/:id/messages", authMiddleware, convHandler.GetMessages)
	router.POST("/conversations/:id/messages", authMiddleware, convHandler.PostMessage)
	router.PUT("/conversations/:id/read", authMiddleware, convHandler.MarkRead)
	router.DELETE("/conversations/:id", authMiddleware, convHandler.ArchiveConversation)

	router.POST("/internal/broadcasts/:role", authMiddleware, adminHandler.Broadcast)

	router.GET("/ws", wsHandler.Handle)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	handlers.RegisterDebugRoutes(router, emitter, cfg.DebugRoutes)

	if err := router.Run(":" + cfg.Port); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
