package main

import (
	"context"
	"encoding/base64"
	"net/http"
	"os/signal"
	"runtime"
	"strconv"
	"syscall"
	"time"

	"github.com/Laisky/errors/v2"
	gmw "github.com/Laisky/gin-middlewares/v6"
	glog "github.com/Laisky/go-utils/v5/log"
	"github.com/Laisky/zap"
	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	_ "github.com/joho/godotenv/autoload"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/one-chat/one-chat/common"
	"github.com/one-chat/one-chat/common/client"
	"github.com/one-chat/one-chat/common/config"
	"github.com/one-chat/one-chat/common/ctxkey"
	"github.com/one-chat/one-chat/common/graceful"
	"github.com/one-chat/one-chat/common/logger"
	"github.com/one-chat/one-chat/common/ratelimit"
	"github.com/one-chat/one-chat/controller"
	"github.com/one-chat/one-chat/middleware"
	"github.com/one-chat/one-chat/model"
	"github.com/one-chat/one-chat/monitor"
	"github.com/one-chat/one-chat/relay/access"
	"github.com/one-chat/one-chat/relay/catalog"
	"github.com/one-chat/one-chat/relay/tokenizer"
	"github.com/one-chat/one-chat/relay/upstream"
	"github.com/one-chat/one-chat/router"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	common.Init()
	logger.SetupLogger()
	logger.Logger.Info("One Chat started", zap.String("version", common.Version))

	if config.GinMode != gin.DebugMode {
		gin.SetMode(gin.ReleaseMode)
	}
	if config.APIKey == "" {
		logger.Logger.Warn("API_KEY is not set, upstream calls will be unauthenticated")
	}

	if err := model.InitDB(); err != nil {
		logger.Logger.Fatal("database init error", zap.Error(err))
	}
	defer func() {
		if err := model.CloseDB(); err != nil {
			logger.Logger.Error("failed to close database", zap.Error(err))
		}
	}()
	store := model.NewStore(model.DB, config.ConversationCacheTTL)

	if err := common.InitRedisClient(ctx); err != nil {
		logger.Logger.Fatal("failed to initialize Redis", zap.Error(err))
	}
	ledger := newLedger(ctx)

	registry, exists, err := access.LoadFile(config.CodesFile)
	if err != nil {
		logger.Logger.Fatal("failed to load premium codes", zap.String("path", config.CodesFile), zap.Error(err))
	}
	if !exists {
		logger.Logger.Warn("premium codes file not found, every user is on the free tier",
			zap.String("path", config.CodesFile))
	}
	logger.Logger.Info("premium codes loaded", zap.Int("count", registry.Len()))

	if config.EnablePrometheusMetrics {
		if err := monitor.InitPrometheusMonitoring(prometheus.DefaultRegisterer, common.Version, runtime.Version()); err != nil {
			logger.Logger.Fatal("failed to initialize Prometheus monitoring", zap.Error(err))
		}
		logger.Logger.Info("Prometheus monitoring initialized")
	}

	tokenizer.Init()
	client.Init()

	relay := controller.NewRelay(store, catalog.FromConfig(), registry, upstream.NewFromConfig())

	logLevel := glog.LevelInfo
	if config.DebugEnabled {
		logLevel = glog.LevelDebug
	}

	server := gin.New()
	server.RedirectTrailingSlash = false
	server.MaxMultipartMemory = config.MaxUploadBytes() + 1<<20
	server.Use(
		gmw.NewLoggerMiddleware(
			gmw.WithLoggerMwColored(),
			gmw.WithLevel(logLevel.String()),
			gmw.WithLogger(logger.Logger.Named("gin")),
		),
		middleware.RequestId(),
		middleware.RelayPanicRecover(),
		newCORS(),
	)
	server.Use(sessions.Sessions("session", newSessionStore()))

	router.SetRouter(server, relay, ledger)

	port := config.ServerPort
	if port == "" {
		port = strconv.Itoa(*common.Port)
	}
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           server,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Logger.Info("server started", zap.String("address", "http://localhost:"+port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Logger.Fatal("failed to start HTTP server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Logger.Info("shutdown signal received, draining")
	graceful.SetDraining()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Logger.Error("server shutdown incomplete", zap.Error(err))
	}
	if err := graceful.Drain(shutdownCtx); err != nil {
		logger.Logger.Error("pending tasks not drained", zap.Error(err))
	}
	logger.Logger.Info("server stopped")
}

// newLedger picks the shared redis ledger when redis is up, else an in-process one.
func newLedger(ctx context.Context) ratelimit.Ledger {
	if common.IsRedisEnabled() {
		logger.Logger.Info("rate limit ledger backed by Redis")
		return ratelimit.NewRedis(common.RDB, config.RateLimitKeyPrefix, config.RateLimitRequests, config.RateLimitWindow)
	}

	mem := ratelimit.NewMemory(config.RateLimitRequests, config.RateLimitWindow)
	mem.StartJanitor(ctx, config.RateLimitWindow)
	return mem
}

func newSessionStore() cookie.Store {
	var store cookie.Store
	secret, err := base64.StdEncoding.DecodeString(config.SessionSecret)
	if err != nil {
		logger.Logger.Info("session secret is not base64 encoded, using raw value instead")
		store = cookie.NewStore([]byte(config.SessionSecret))
	} else {
		store = cookie.NewStore(secret, secret)
	}

	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   config.CookieMaxAgeHours * 3600,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   config.EnableCookieSecure,
	})
	return store
}

func newCORS() gin.HandlerFunc {
	cfg := cors.DefaultConfig()
	cfg.AllowCredentials = true
	cfg.AllowHeaders = append(cfg.AllowHeaders, middleware.AccessCodeHeader, controller.ConversationHintHeader)
	cfg.ExposeHeaders = []string{ctxkey.RequestId}
	if len(config.CORSAllowedOrigins) > 0 {
		cfg.AllowOrigins = config.CORSAllowedOrigins
	} else {
		cfg.AllowOriginFunc = func(string) bool { return true }
	}
	return cors.New(cfg)
}
