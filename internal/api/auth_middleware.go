package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"snapkit/internal/entity"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const currentUserContextKey = "current-user"

// RequestUser 是经过认证的调用方，由 AuthMiddleware 放入 gin 上下文
type RequestUser struct {
	ID    uint
	Email string
	Role  string
}

func (u *RequestUser) IsAdmin() bool {
	return u != nil && (u.Role == entity.UserRoleAdmin || u.Role == entity.UserRoleSuperAdmin)
}

func (u *RequestUser) IsSuperAdmin() bool {
	return u != nil && u.Role == entity.UserRoleSuperAdmin
}

func abortWith(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, APIError{Code: code, Message: message})
}

// bearerToken 提取 "Authorization: Bearer <token>"，scheme 不区分大小写
func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// AuthMiddleware 校验 JWT 并重新加载用户，停用或已删除的账户立即失效
func (h *HTTPHandler) AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			abortWith(c, http.StatusUnauthorized, ErrCodeUnauthorized, "missing bearer token")
			return
		}

		claims, err := h.authManager.ParseToken(token)
		if err != nil {
			logrus.WithError(err).WithField("client_ip", c.ClientIP()).Debug("rejected bearer token")
			abortWith(c, http.StatusUnauthorized, ErrCodeSessionExpired, "session invalid or expired")
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		user, err := h.repo.GetUserByID(ctx, claims.UserID)
		cancel()
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			abortWith(c, http.StatusUnauthorized, ErrCodeUserNotFound, "account no longer exists")
			return
		case err != nil:
			logrus.WithError(err).WithField("user_id", claims.UserID).Error("failed to load authenticated user")
			abortWith(c, http.StatusInternalServerError, ErrCodeInternalError, "failed to verify session")
			return
		case !user.IsActive:
			abortWith(c, http.StatusForbidden, ErrCodeUserDisabled, "account disabled")
			return
		}

		c.Set(currentUserContextKey, &RequestUser{ID: user.ID, Email: user.Email, Role: user.Role})
		c.Next()
	}
}

// RequireAdmin 必须挂在 AuthMiddleware 之后
func (h *HTTPHandler) RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !CurrentUser(c).IsAdmin() {
			abortWith(c, http.StatusForbidden, ErrCodeForbidden, "admin role required")
			return
		}
		c.Next()
	}
}

// CurrentUser 未认证时返回 nil
func CurrentUser(c *gin.Context) *RequestUser {
	value, _ := c.Get(currentUserContextKey)
	user, _ := value.(*RequestUser)
	return user
}
