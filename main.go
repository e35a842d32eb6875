package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.uber.org/zap"
	grpc "google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"class-chat-service/internal/auth"
	"class-chat-service/internal/chat"
	"class-chat-service/internal/config"
	"class-chat-service/internal/db"
	grpcclient "class-chat-service/internal/grpc"
	"class-chat-service/internal/handlers"
	"class-chat-service/internal/logging"
	"class-chat-service/internal/middleware"
	"class-chat-service/internal/observability"
	"class-chat-service/internal/presence"
	"class-chat-service/internal/rabbitmq"
	"class-chat-service/internal/repositories"
	"class-chat-service/internal/telemetry"
	"class-chat-service/internal/ws"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.SetupTracing(ctx, cfg.ServiceName, cfg.Tracing.Endpoint, cfg.Tracing.SampleRatio)
	if err != nil {
		logger.Fatal("failed to set up tracing", zap.Error(err))
	}

	database, err := db.Connect(cfg.DB.Driver, cfg.DB.DSN)
	if err != nil {
		logger.Fatal("failed to connect to db", zap.Error(err))
	}
	defer database.Close()

	classRepo := repositories.NewClassRepo(database)
	messageRepo := repositories.NewMessageRepo(database)

	auditPublisher := rabbitmq.NewPublisher(cfg.Audit.AMQPURL, cfg.Audit.Exchange, logger)
	defer auditPublisher.Close()
	logger.Info("audit publisher ready",
		zap.String("mode", rabbitmq.PublisherMode(auditPublisher)),
		zap.String("noop_reason", rabbitmq.PublisherNoopReason(auditPublisher)),
	)
	auditEmitter := telemetry.NewAuditEmitter(auditPublisher, cfg.Audit.RoutingKey, cfg.ServiceName, cfg.Environment, logger)

	eventPublisher := newEventPublisher(cfg, logger)
	if eventPublisher != nil {
		observability.SetPublisher(eventPublisher)
		defer eventPublisher.Close()
	}

	identity, closeIdentity := newIdentityProvider(cfg, logger)
	defer closeIdentity()

	svc := chat.NewService(classRepo, classRepo, messageRepo,
		chat.WithAuditor(auditEmitter),
		chat.WithLogger(logger),
	)

	hubOpts := []ws.HubOption{ws.WithLogger(logger)}
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn("redis unavailable, presence stays local", zap.Error(err))
		} else {
			hubOpts = append(hubOpts, ws.WithPresence(presence.NewRedisStore(rdb, cfg.Redis.Prefix, cfg.Redis.PresenceTTL)))
		}
	}
	hub := ws.NewHub(svc, cfg.LiveChannel(), hubOpts...)
	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	go hub.Run(hubCtx)

	chatHandler := handlers.NewChatHandler(svc, hub)
	chatWS := ws.NewChatWebSocketHandler(hub, identity, cfg.HTTP.AllowedOrigins, logger)

	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(
		gin.Recovery(),
		otelgin.Middleware(cfg.ServiceName),
		middleware.RequestID(),
		middleware.AccessLog(logger),
		observability.HTTPMetricsMiddleware(),
	)

	router.GET("/healthz", func(c *gin.Context) {
		if err := database.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/ws", chatWS.Handle)

	api := router.Group("/", middleware.AuthMiddleware(identity))
	chatHandler.RegisterRoutes(api)
	handlers.RegisterDebugRoutes(api, hub, auditEmitter, cfg.Debug)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTP.Port,
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	go func() {
		logger.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	stopHub()
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Warn("tracing shutdown", zap.Error(err))
	}
}

func newEventPublisher(cfg *config.Config, logger *zap.Logger) observability.Publisher {
	switch cfg.Events.Transport {
	case "amqp":
		p, err := observability.NewAMQPPublisher(cfg.Events.AMQPURL, cfg.Events.Exchange)
		if err != nil {
			logger.Warn("chat events disabled", zap.String("transport", "amqp"), zap.Error(err))
			return nil
		}
		return p
	case "kafka":
		p, err := observability.NewKafkaPublisher(cfg.Events.KafkaBrokers, cfg.Events.KafkaTopic)
		if err != nil {
			logger.Warn("chat events disabled", zap.String("transport", "kafka"), zap.Error(err))
			return nil
		}
		return p
	default:
		return nil
	}
}

func newIdentityProvider(cfg *config.Config, logger *zap.Logger) (middleware.IdentityProvider, func()) {
	if cfg.Auth.Mode != "grpc" {
		return auth.NewJWTProvider(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer), func() {}
	}

	conn, err := grpc.NewClient(cfg.Auth.GRPCAddr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
		grpc.WithUnaryInterceptor(observability.GRPCClientMetricsUnaryInterceptor()),
	)
	if err != nil {
		logger.Fatal("failed to connect to identity grpc", zap.Error(err))
	}
	return grpcclient.NewIdentityClient(conn, cfg.Auth.GRPCTimeout, logger), func() { _ = conn.Close() }
}
