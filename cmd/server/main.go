package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"snapkit/internal/api"
	"snapkit/internal/config"
	"snapkit/internal/llm"
	"snapkit/internal/model"
	"snapkit/internal/pool"
	"snapkit/internal/service"
	"snapkit/internal/storage"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

func main() {
	// 初始化配置
	cfg, err := config.ParseConfig()
	if err != nil {
		logrus.WithError(err).Error("Failed to parse config")
		os.Exit(1)
	}

	// 初始化logger
	logrus.SetFormatter(&logrus.JSONFormatter{})
	logrus.SetLevel(cfg.LogrusLevel())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repo, err := model.InitRepository(&cfg)
	if err != nil {
		logrus.WithError(err).Fatal("failed to initialise repository")
	}

	if err := model.SeedPoolKeys(ctx, repo, cfg); err != nil {
		logrus.WithError(err).Warn("failed to seed pool keys")
	}

	store, err := storage.NewStorage(cfg)
	if err != nil {
		logrus.WithError(err).Fatal("failed to initialise storage")
	}

	var poolOpts []pool.Option
	if strings.EqualFold(strings.TrimSpace(cfg.PoolCursor), config.PoolCursorRedis) {
		client, err := pool.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			logrus.WithError(err).Fatal("failed to connect to redis")
		}
		defer client.Close()
		poolOpts = append(poolOpts, pool.WithCursor(pool.NewRedisCursor(client, pool.WithCursorKey(cfg.RedisCursorKey))))
	}
	credentials := pool.New(repo, poolOpts...)

	generator, err := llm.NewGenerator(cfg)
	if err != nil {
		logrus.WithError(err).Fatal("failed to initialise generator")
	}

	generations := service.NewGenerationService(repo, credentials, generator, store, service.GenerationOptions{
		MaxAttempts:    cfg.GenerationMaxAttempts,
		Backoff:        cfg.RetryBackoff(),
		CallTimeout:    cfg.GenerationTimeout(),
		CommitTimeout:  service.DefaultGenerationOptions().CommitTimeout,
		StrictQuota:    cfg.QuotaStrict,
		MaxUploadBytes: cfg.MaxUploadBytes(),
	})
	history := service.NewHistoryService(repo, store)

	httpHandler, err := api.NewHTTPHandler(cfg, repo, store, generations, history)
	if err != nil {
		logrus.WithError(err).Fatal("failed to initialise http handler")
	}

	// 设置Gin模式
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	// 添加中间件
	r.Use(api.LoggingMiddleware())
	r.Use(api.CORSMiddleware(cfg.CORSAllowedOrigins))
	r.Use(gin.Recovery())

	httpHandler.RegisterRoutes(r)
	r.NoRoute(func(c *gin.Context) {
		api.NotFound(c, api.ErrCodeNotFound, "route not found")
	})

	if localProvider, ok := store.(storage.LocalBaseDirProvider); ok {
		publicPrefix := strings.TrimSpace(cfg.StoragePublicBaseURL)
		if publicPrefix == "" {
			publicPrefix = "/files"
		}
		if !strings.HasPrefix(publicPrefix, "http://") && !strings.HasPrefix(publicPrefix, "https://") {
			if !strings.HasPrefix(publicPrefix, "/") {
				publicPrefix = "/" + publicPrefix
			}
			r.Static(publicPrefix, localProvider.LocalBaseDir())
		}
	}

	serverHost := fmt.Sprintf("0.0.0.0:%s", cfg.HTTPPort)
	httpServer := &http.Server{
		Addr:         serverHost,
		Handler:      r,
		ReadTimeout:  2 * time.Minute,
		WriteTimeout: cfg.GenerationTimeout()*time.Duration(cfg.GenerationMaxAttempts) + time.Minute,
		IdleTimeout:  2 * time.Minute,
	}

	go func() {
		logrus.WithFields(logrus.Fields{
			"host":        serverHost,
			"driver":      cfg.GenerationDriver,
			"pool_cursor": cfg.PoolCursor,
			"storage":     cfg.StorageType,
		}).Info("server starting")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.WithError(err).Fatal("server failed")
		}
	}()

	<-ctx.Done()
	logrus.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Error("graceful shutdown failed")
	}
}
