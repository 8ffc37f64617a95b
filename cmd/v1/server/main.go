package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"github.com/thaasbai/coordinator/internal/v1/admin"
	"github.com/thaasbai/coordinator/internal/v1/admission"
	"github.com/thaasbai/coordinator/internal/v1/bus"
	"github.com/thaasbai/coordinator/internal/v1/config"
	"github.com/thaasbai/coordinator/internal/v1/coordinator"
	"github.com/thaasbai/coordinator/internal/v1/health"
	"github.com/thaasbai/coordinator/internal/v1/logging"
	"github.com/thaasbai/coordinator/internal/v1/matchmaking"
	"github.com/thaasbai/coordinator/internal/v1/middleware"
	"github.com/thaasbai/coordinator/internal/v1/rooms"
	"github.com/thaasbai/coordinator/internal/v1/sessions"
	"github.com/thaasbai/coordinator/internal/v1/tracing"
	"github.com/thaasbai/coordinator/internal/v1/transport"
)

func main() {
	// Try multiple paths so `go run ./cmd/v1/server` and a container image
	// both pick up a local .env.
	for _, path := range []string{".env", "../../../.env", "../../.env"} {
		if err := godotenv.Load(path); err == nil {
			break
		}
	}

	cfg, err := config.ValidateEnv()
	if err != nil {
		// Logger is not up yet; write the validation report directly.
		os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}

	// Warn-and-above log entries are retained for a week in memory, feeding
	// the admin log endpoints.
	logRing := logging.NewRing(1000, 7*24*time.Hour)
	if err := logging.Initialize(cfg.Development(), logRing); err != nil {
		os.Stderr.WriteString("failed to initialize logger: " + err.Error() + "\n")
		os.Exit(1)
	}

	ctx := context.Background()
	cfg.LogSummary(ctx)

	shutdownTracing, err := tracing.Setup(ctx, cfg.OTLPEndpoint)
	if err != nil {
		logging.Error(ctx, "failed to set up tracing, continuing without it", zap.Error(err))
		shutdownTracing = func(context.Context) error { return nil }
	}

	// Redis is optional. Without it the coordinator runs single-instance and
	// room announcements stay local.
	var busService *bus.Service
	var redisClient *redis.Client
	if cfg.RedisEnabled {
		busService, err = bus.NewService(cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			logging.Error(ctx, "failed to connect to redis, running single-instance", zap.Error(err))
			busService = nil
		} else {
			redisClient = busService.Client()
			logging.Info(ctx, "redis announce bus initialized", zap.String("addr", cfg.RedisAddr))
		}
	}

	sessionReg := sessions.NewRegistry()
	roomReg := rooms.NewRegistry()
	queues := matchmaking.New()

	guard, err := admission.NewGuard(cfg, sessionReg, redisClient)
	if err != nil {
		logging.Fatal(ctx, "failed to build admission guard", zap.Error(err))
	}

	coord := coordinator.New(sessionReg, roomReg, queues, guard, busService)
	coord.StartJanitor()

	hub := transport.NewHub(coord, cfg.AllowedOrigins)

	if cfg.Development() {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CorrelationID())
	if cfg.OTLPEndpoint != "" {
		router.Use(otelgin.Middleware(tracing.ServiceName))
	}

	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowHeaders = append(corsConfig.AllowHeaders,
		"Authorization", "X-Admin-Password", middleware.HeaderXCorrelationID)
	router.Use(cors.New(corsConfig))

	router.GET("/ws", hub.ServeWs)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	var busPinger health.BusPinger
	if busService != nil {
		busPinger = busService
	}
	healthHandler := health.NewHandler(coord, sessionReg, busPinger)
	router.GET("/", healthHandler.Liveness)
	router.GET("/healthz", healthHandler.Liveness)
	router.GET("/health/ready", healthHandler.Readiness)

	// Unauthenticated admin endpoints share a per-IP budget.
	publicLimit, err := middleware.RateLimit("30-M", redisClient)
	if err != nil {
		logging.Fatal(ctx, "failed to build http rate limiter", zap.Error(err))
	}
	adminHandler := admin.NewHandler(cfg, coord, logRing)
	adminHandler.Register(router, publicLimit)

	srv := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logging.Info(ctx, "coordinator listening", zap.Int("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Error(ctx, "server failed", zap.Error(err))
			syscall.Kill(os.Getpid(), syscall.SIGTERM)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logging.Info(ctx, "shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := coord.Shutdown(shutdownCtx); err != nil {
		logging.Error(ctx, "coordinator shutdown error", zap.Error(err))
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Error(ctx, "server forced to shutdown", zap.Error(err))
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logging.Error(ctx, "tracing shutdown error", zap.Error(err))
	}
	if busService != nil {
		if err := busService.Close(); err != nil {
			logging.Error(ctx, "failed to close redis connection", zap.Error(err))
		}
	}

	logging.Info(ctx, "coordinator exited")
}
