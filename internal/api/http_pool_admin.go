package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"snapkit/internal/entity"
	"snapkit/internal/entity/converter"
	"snapkit/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ListPoolKeys 列出密钥池，密钥只返回尾号
func (h *HTTPHandler) ListPoolKeys(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	keys, err := h.repo.ListPoolKeys(ctx, true)
	if err != nil {
		logrus.WithError(err).Error("failed to list pool keys")
		InternalError(c, "failed to load pool keys")
		return
	}
	c.JSON(http.StatusOK, gin.H{"keys": converter.PoolKeysToSummaries(keys)})
}

func (h *HTTPHandler) CreatePoolKey(c *gin.Context) {
	var req entity.PoolKeyCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		MissingField(c, "api_key")
		return
	}
	secret := strings.TrimSpace(req.APIKey)
	if secret == "" {
		MissingField(c, "api_key")
		return
	}

	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}
	key := &entity.DbPoolKey{
		Name:     strings.TrimSpace(req.Name),
		APIKey:   secret,
		IsActive: active,
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	if err := h.repo.CreatePoolKey(ctx, key); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			BadRequest(c, ErrCodePoolKeyExists, "pool key already exists")
			return
		}
		logrus.WithError(err).Error("failed to create pool key")
		InternalError(c, "failed to create pool key")
		return
	}

	logrus.WithFields(logrus.Fields{
		"pool_key_id": key.ID,
		"key_hint":    utils.MaskSecret(key.APIKey),
		"admin_id":    CurrentUser(c).ID,
	}).Info("pool key created")
	c.JSON(http.StatusCreated, converter.PoolKeyToSummary(key))
}

func (h *HTTPHandler) UpdatePoolKey(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		BadRequest(c, ErrCodeInvalidRequest, "invalid pool key id")
		return
	}

	var req entity.PoolKeyUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		InvalidPayload(c)
		return
	}

	updates := entity.PoolKeyUpdates{IsActive: req.IsActive}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		updates.Name = &name
	}
	if req.APIKey != nil {
		secret := strings.TrimSpace(*req.APIKey)
		if secret == "" {
			BadRequest(c, ErrCodeInvalidRequest, "api_key must not be empty")
			return
		}
		updates.APIKey = &secret
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	if err := h.repo.UpdatePoolKey(ctx, id, updates); err != nil {
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			NotFound(c, ErrCodePoolKeyNotFound, "pool key not found")
		case errors.Is(err, gorm.ErrDuplicatedKey):
			BadRequest(c, ErrCodePoolKeyExists, "pool key already exists")
		default:
			logrus.WithError(err).WithField("pool_key_id", id).Error("failed to update pool key")
			InternalError(c, "failed to update pool key")
		}
		return
	}

	key, err := h.repo.GetPoolKey(ctx, id)
	if err != nil {
		logrus.WithError(err).WithField("pool_key_id", id).Error("failed to reload pool key")
		InternalError(c, "failed to load pool key")
		return
	}
	c.JSON(http.StatusOK, converter.PoolKeyToSummary(key))
}

func (h *HTTPHandler) DeletePoolKey(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		BadRequest(c, ErrCodeInvalidRequest, "invalid pool key id")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	if err := h.repo.DeletePoolKey(ctx, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, ErrCodePoolKeyNotFound, "pool key not found")
			return
		}
		logrus.WithError(err).WithField("pool_key_id", id).Error("failed to delete pool key")
		InternalError(c, "failed to delete pool key")
		return
	}
	c.Status(http.StatusNoContent)
}
