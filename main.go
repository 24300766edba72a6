package main

import (
	"context"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"chat-sync/internal/cache"
	"chat-sync/internal/db"
	"chat-sync/internal/handlers"
	"chat-sync/internal/middleware"
	"chat-sync/internal/observability"
	"chat-sync/internal/rabbitmq"
	"chat-sync/internal/realtime"
	"chat-sync/internal/session"
	"chat-sync/internal/store"
	"chat-sync/internal/telemetry"
)

func main() {
	database, err := db.Connect()
	if err != nil {
		log.Fatalf("failed to connect to db: %v", err)
	}

	var cacheStore cache.Store
	redisAddr := getEnv("REDIS_ADDR", "localhost:6379")
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	redisStore, err := cache.NewRedis(redisAddr, os.Getenv("REDIS_PASSWORD"), redisDB)
	if err != nil {
		log.Printf("redis unavailable, using in-memory cache: %v", err)
		cacheStore = cache.NewMemory()
	} else {
		cacheStore = redisStore
		defer redisStore.Close()
	}

	cacheTTL, err := time.ParseDuration(getEnv("CONV_CACHE_TTL", "10m"))
	if err != nil {
		log.Fatalf("invalid CONV_CACHE_TTL: %v", err)
	}
	convCache := cache.NewConversationCache(cacheStore, cacheTTL)

	publisher := rabbitmq.NewPublisher(os.Getenv("AMQP_URL"), getEnv("AMQP_EXCHANGE", "sync_events"))
	defer publisher.Close()
	log.Printf("event publisher mode=%s", rabbitmq.PublisherMode(publisher))
	emitter := telemetry.NewEmitter(publisher, "chat-sync")

	var realtimeClient *realtime.Client
	realtimeURL := getEnv("REALTIME_URL", "")
	if realtimeURL != "" {
		realtimeClient, err = realtime.Dial(context.Background(), realtimeURL, os.Getenv("REALTIME_TOKEN"))
		if err != nil {
			log.Fatalf("failed to connect to realtime transport: %v", err)
		}
		defer realtimeClient.Close()
	} else {
		log.Printf("realtime transport disabled: empty REALTIME_URL")
	}

	pgStore := store.NewPostgres(database)
	registry := session.NewRegistry(session.Deps{
		ConvStore: pgStore,
		MsgStore:  pgStore,
		Cache:     convCache,
		Realtime:  realtimeClient,
		Emitter:   emitter,
	})
	defer registry.Close()

	syncHandler := handlers.NewSyncHandler(registry, pgStore)

	router := gin.Default()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("chat-sync"))
	router.Use(observability.HTTPMetricsMiddleware())

	authMiddleware := middleware.AuthMiddleware([]byte(getEnv("JWT_SECRET", "dev-secret")))

	router.GET("/conversations", authMiddleware, syncHandler.ListConversations)
	router.GET("/conversations/search", authMiddleware, syncHandler.SearchConversations)
	router.POST("/conversations", authMiddleware, syncHandler.AddConversation)
	router.DELETE("/conversations/:channel_id", authMiddleware, syncHandler.RemoveConversation)
	router.POST("/conversations/:channel_id/read", authMiddleware, syncHandler.MarkRead)
	router.GET("/conversations/:channel_id/messages", authMiddleware, syncHandler.OpenConversation)
	router.POST("/conversations/:channel_id/messages", authMiddleware, syncHandler.SendMessage)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	port := getEnv("PORT", "8083")
	if err := router.Run(":" + port); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}
