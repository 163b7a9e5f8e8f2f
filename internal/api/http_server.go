package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"snapkit/internal/auth"
	"snapkit/internal/config"
	"snapkit/internal/model"
	"snapkit/internal/service"
	"snapkit/internal/storage"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const requestTimeout = 5 * time.Second

// HTTPHandler HTTP 请求处理器
type HTTPHandler struct {
	cfg         config.Config
	repo        model.Repository
	storage     storage.Storage
	authManager *auth.Manager

	// 服务层
	generations *service.GenerationService
	history     *service.HistoryService
}

// NewHTTPHandler 创建 HTTP 处理器实例
func NewHTTPHandler(cfg config.Config, repo model.Repository, store storage.Storage, generations *service.GenerationService, history *service.HistoryService) (*HTTPHandler, error) {
	if repo == nil {
		return nil, errors.New("repository is required")
	}
	expiry := time.Duration(cfg.JWTExpirationMinutes) * time.Minute
	authManager, err := auth.NewManager(cfg.JWTSecret, cfg.JWTIssuer, expiry)
	if err != nil {
		return nil, err
	}

	return &HTTPHandler{
		cfg:         cfg,
		repo:        repo,
		storage:     store,
		authManager: authManager,
		generations: generations,
		history:     history,
	}, nil
}

// RegisterRoutes 注册全部 API 路由
func (h *HTTPHandler) RegisterRoutes(r gin.IRouter) {
	r.GET("/health", h.Health)

	apiGroup := r.Group("/api")

	authGroup := apiGroup.Group("/auth")
	authGroup.GET("/status", h.AuthStatus)
	authGroup.POST("/register", h.Register)
	authGroup.POST("/login", h.Login)
	authGroup.GET("/me", h.AuthMiddleware(), h.Me)

	protected := apiGroup.Group("")
	protected.Use(h.AuthMiddleware())
	protected.POST("/generations", h.CreateGeneration)
	protected.GET("/generations", h.ListGenerations)
	protected.GET("/generations/:id", h.GetGeneration)
	protected.DELETE("/generations/:id", h.DeleteGeneration)

	profile := protected.Group("/profile")
	profile.GET("/usage", h.GetUsage)
	profile.PUT("/api-key", h.SetOwnAPIKey)
	profile.DELETE("/api-key", h.ClearOwnAPIKey)
	profile.DELETE("", h.DeleteAccount)

	admin := protected.Group("/admin")
	admin.Use(h.RequireAdmin())
	admin.GET("/users", h.ListUsers)
	admin.POST("/users", h.CreateUser)
	admin.PATCH("/users/:id", h.UpdateUser)
	admin.DELETE("/users/:id", h.DeleteUser)

	admin.GET("/pool-keys", h.ListPoolKeys)
	admin.POST("/pool-keys", h.CreatePoolKey)
	admin.PATCH("/pool-keys/:id", h.UpdatePoolKey)
	admin.DELETE("/pool-keys/:id", h.DeletePoolKey)
}

// parseIDParam 解析路径中的正整数 id
func parseIDParam(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(strings.TrimSpace(c.Param(name)), 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

// Health 同时探测数据库，数据库不可用时返回 503
func (h *HTTPHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()
	if _, err := h.repo.CountUsers(ctx); err != nil {
		logrus.WithError(err).Warn("health check: database unreachable")
		ServiceUnavailable(c, "database unreachable")
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
