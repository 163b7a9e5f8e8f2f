package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"snapkit/internal/entity"
	"snapkit/internal/entity/converter"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const maxOwnKeyLength = 512

// GetUsage 返回当前用户的免费额度与自有密钥状态
func (h *HTTPHandler) GetUsage(c *gin.Context) {
	user := CurrentUser(c)

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	snapshot, err := h.repo.GetUsageSnapshot(ctx, user.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, ErrCodeUserNotFound, "user not found")
			return
		}
		logrus.WithError(err).WithField("user_id", user.ID).Error("failed to read usage")
		ErrorResponse(c, http.StatusServiceUnavailable, ErrCodeServiceBusy, "service busy, please try again later")
		return
	}

	c.JSON(http.StatusOK, converter.UsageStatsFromSnapshot(*snapshot))
}

// SetOwnAPIKey 保存用户自带的生成密钥；设置后生成不再消耗免费额度
func (h *HTTPHandler) SetOwnAPIKey(c *gin.Context) {
	user := CurrentUser(c)

	var req entity.OwnAPIKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		MissingField(c, "api_key")
		return
	}
	key := strings.TrimSpace(req.APIKey)
	if key == "" {
		MissingField(c, "api_key")
		return
	}
	if len(key) > maxOwnKeyLength || strings.ContainsAny(key, " \t\r\n") {
		BadRequest(c, ErrCodeInvalidRequest, "api_key is malformed")
		return
	}

	h.updateOwnKey(c, user.ID, key)
}

func (h *HTTPHandler) ClearOwnAPIKey(c *gin.Context) {
	h.updateOwnKey(c, CurrentUser(c).ID, "")
}

func (h *HTTPHandler) updateOwnKey(c *gin.Context, userID uint, key string) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	if err := h.repo.UpdateUser(ctx, userID, entity.UserUpdates{GeminiAPIKey: &key}); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, ErrCodeUserNotFound, "user not found")
			return
		}
		logrus.WithError(err).WithField("user_id", userID).Error("failed to update own api key")
		InternalError(c, "failed to update api key")
		return
	}

	dbUser, err := h.repo.GetUserByID(ctx, userID)
	if err != nil {
		logrus.WithError(err).WithField("user_id", userID).Error("failed to reload user after key update")
		InternalError(c, "failed to load profile")
		return
	}

	logrus.WithFields(logrus.Fields{"user_id": userID, "has_own_key": key != ""}).Info("own api key updated")
	c.JSON(http.StatusOK, converter.UsageStatsFromUser(dbUser))
}

// DeleteAccount 删除当前用户及其全部生成记录
func (h *HTTPHandler) DeleteAccount(c *gin.Context) {
	user := CurrentUser(c)
	if user.IsSuperAdmin() {
		Forbidden(c, "super admin cannot be deleted")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	if err := h.history.DeleteAccount(ctx, user.ID); err != nil {
		ServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
