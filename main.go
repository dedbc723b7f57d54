package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	_ "go.uber.org/automaxprocs"

	"messenger-service/internal/auth"
	"messenger-service/internal/config"
	"messenger-service/internal/db"
	grpcserver "messenger-service/internal/grpc"
	"messenger-service/internal/handlers"
	"messenger-service/internal/limits"
	"messenger-service/internal/logger"
	"messenger-service/internal/middleware"
	"messenger-service/internal/observability"
	"messenger-service/internal/rabbitmq"
	"messenger-service/internal/repositories"
	"messenger-service/internal/telemetry"
	"messenger-service/internal/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.ServiceName, cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.InitTracing(ctx, cfg.OTLPEndpoint, cfg.ServiceName, cfg.Environment)
	if err != nil {
		log.Warn().Err(err).Msg("tracing disabled")
		shutdownTracing = func(context.Context) error { return nil }
	}

	database, err := db.Connect(ctx, cfg.DBDSN, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to db")
	}
	defer database.Close()

	messageRepo := repositories.NewMessageRepo(database)
	presenceRepo := repositories.NewPresenceRepo(database)
	var userRepo repositories.UserRepository = repositories.NewUserRepo(database)
	var counter limits.Counter = limits.NewMemoryCounter()

	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("redis unavailable, using in-memory counters")
			_ = rdb.Close()
		} else {
			defer rdb.Close()
			counter = limits.NewRedisCounter(rdb, cfg.ConnCounterTTL)
			userRepo = repositories.NewCachedUserRepo(userRepo, rdb, cfg.UserCacheTTL, log)
			log.Info().Str("addr", cfg.RedisAddr).Msg("redis connected")
		}
	}

	// Nobody is connected to a fresh process.
	if err := presenceRepo.ResetPresence(ctx); err != nil {
		log.Warn().Err(err).Msg("reset presence")
	}
	store := repositories.NewStore(messageRepo, presenceRepo, userRepo)

	publisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange, log)
	defer publisher.Close()
	observability.SetPublisher(publisher)
	log.Info().
		Str("mode", rabbitmq.PublisherMode(publisher)).
		Str("noop_reason", rabbitmq.PublisherNoopReason(publisher)).
		Msg("event publisher ready")
	audit := telemetry.NewAuditEmitter(publisher, cfg.AuditRouting, cfg.ServiceName, cfg.Environment, log)

	limiter := limits.New(limits.Config{
		MaxConnections: cfg.MaxConnectionsPerUser,
		Counter:        counter,
		MessageRate:    cfg.MessageRate,
		MessageBurst:   cfg.MessageBurst,
		Logger:         log,
	})
	go limiter.Run(ctx)

	hub := ws.NewHub(store, limiter, ws.Config{
		Session: ws.SessionConfig{
			SendQueueSize: cfg.SendQueueSize,
			WriteTimeout:  cfg.WriteTimeout,
			PongTimeout:   cfg.PongTimeout,
			MaxFrameBytes: cfg.MaxFrameBytes,
		},
		MaxMessageLength: cfg.MaxMessageLength,
	}, log)
	authenticator := auth.NewJWTAuthenticator(cfg.JWTSecret, cfg.JWTIssuer)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	// middlewares
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(cfg.ServiceName))
	router.Use(observability.HTTPMetricsMiddleware())

	router.GET("/healthz", handlers.Health(database, hub.Registry()))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	authMiddleware := middleware.AuthMiddleware(authenticator)
	handlers.RegisterDebugRoutes(router, audit, hub.Registry(), cfg.DebugRoutes, authMiddleware)
	chatHandler := handlers.NewChatHandler(messageRepo, userRepo, hub, log)

	api := router.Group("/api", authMiddleware)
	api.GET("/users", chatHandler.ListUsers)
	api.GET("/messages/:user_id", chatHandler.GetMessages)
	api.GET("/conversations", chatHandler.ListConversations)
	api.GET("/unread", chatHandler.UnreadCount)

	router.GET("/ws", ws.NewHandler(hub, authenticator, audit, log).Handle)

	httpSrv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	grpcSrv := grpcserver.NewServer(log)
	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		log.Fatal().Err(err).Str("addr", cfg.GRPCAddr).Msg("grpc listen")
	}
	go func() {
		if err := grpcSrv.Serve(lis); err != nil {
			log.Error().Err(err).Msg("grpc server error")
			stop()
		}
	}()

	go func() {
		log.Info().Str("port", cfg.Port).Msg("http listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("server error")
			stop()
		}
	}()
	grpcSrv.SetServing(true)

	<-ctx.Done()
	log.Info().Msg("shutting down")
	grpcSrv.SetServing(false)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
	defer cancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("http shutdown")
	}
	// Hijacked websocket connections are not tracked by http.Server.
	if err := hub.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("hub shutdown")
	}
	grpcSrv.Stop(shutdownCtx)
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("tracing shutdown")
	}
}
