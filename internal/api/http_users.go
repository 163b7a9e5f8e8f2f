package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"snapkit/internal/auth"
	"snapkit/internal/entity"
	"snapkit/internal/entity/converter"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

func (h *HTTPHandler) ListUsers(c *gin.Context) {
	var query entity.UserQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		BadRequest(c, ErrCodeInvalidRequest, "invalid query parameters")
		return
	}
	query.Normalize(20, 100)

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	users, meta, err := h.repo.ListUsers(ctx, &query)
	if err != nil {
		logrus.WithError(err).Error("failed to list users")
		InternalError(c, "failed to load users")
		return
	}

	c.JSON(http.StatusOK, entity.UserListResponse{
		Users: converter.UsersToSummaries(users),
		Meta:  meta,
	})
}

func (h *HTTPHandler) CreateUser(c *gin.Context) {
	requestUser := CurrentUser(c)

	var req entity.UserCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		InvalidPayload(c)
		return
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" {
		MissingField(c, "email")
		return
	}

	role := sanitizeRole(req.Role)
	if role == "" {
		BadRequest(c, ErrCodeInvalidRequest, "invalid role")
		return
	}
	if role == entity.UserRoleAdmin && !requestUser.IsSuperAdmin() {
		Forbidden(c, "only super admin can create admin users")
		return
	}

	password := strings.TrimSpace(req.Password)
	if password == "" {
		MissingField(c, "password")
		return
	}

	limit := h.cfg.FreeGenerationsLimit
	if req.GenerationsLimit != nil {
		if *req.GenerationsLimit < 0 {
			BadRequest(c, ErrCodeInvalidRequest, "generations_limit must not be negative")
			return
		}
		limit = *req.GenerationsLimit
	}

	hash, err := auth.HashPassword(password)
	if errors.Is(err, auth.ErrPasswordTooLong) {
		BadRequest(c, ErrCodeInvalidRequest, err.Error())
		return
	}
	if err != nil {
		logrus.WithError(err).Error("failed to hash password for new user")
		InternalError(c, "failed to create user")
		return
	}

	isActive := true
	if req.IsActive != nil {
		isActive = *req.IsActive
	}

	user := &entity.DbUser{
		Email:            email,
		DisplayName:      strings.TrimSpace(req.DisplayName),
		PasswordHash:     hash,
		Role:             role,
		IsActive:         isActive,
		GenerationsLimit: limit,
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	if err := h.repo.CreateUser(ctx, user); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			BadRequest(c, ErrCodeEmailExists, "email already registered")
			return
		}
		logrus.WithError(err).Error("failed to create user")
		InternalError(c, "failed to create user")
		return
	}

	c.JSON(http.StatusCreated, converter.UserToSummary(user))
}

// UpdateUser 修改用户资料。管理员可调整免费额度上限或重置已用次数。
func (h *HTTPHandler) UpdateUser(c *gin.Context) {
	requestUser := CurrentUser(c)

	id, ok := parseIDParam(c, "id")
	if !ok {
		BadRequest(c, ErrCodeInvalidRequest, "invalid user id")
		return
	}

	var req entity.UserUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		InvalidPayload(c)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	dbUser, err := h.repo.GetUserByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, ErrCodeUserNotFound, "user not found")
			return
		}
		logrus.WithError(err).Error("failed to load user for update")
		InternalError(c, "failed to update user")
		return
	}

	if dbUser.Role == entity.UserRoleSuperAdmin && requestUser.ID != dbUser.ID {
		Forbidden(c, "super admin cannot be modified")
		return
	}

	var updates entity.UserUpdates

	if req.DisplayName != nil {
		name := strings.TrimSpace(*req.DisplayName)
		updates.DisplayName = &name
	}

	if req.Password != nil {
		password := strings.TrimSpace(*req.Password)
		if password == "" {
			BadRequest(c, ErrCodeInvalidRequest, "password must not be empty")
			return
		}
		hash, err := auth.HashPassword(password)
		if errors.Is(err, auth.ErrPasswordTooLong) {
			BadRequest(c, ErrCodeInvalidRequest, err.Error())
			return
		}
		if err != nil {
			logrus.WithError(err).Error("failed to hash password for update")
			InternalError(c, "failed to update user")
			return
		}
		updates.PasswordHash = &hash
	}

	if req.Role != nil {
		if !requestUser.IsSuperAdmin() {
			Forbidden(c, "only super admin can change roles")
			return
		}
		targetRole := sanitizeRole(*req.Role)
		if targetRole == "" {
			BadRequest(c, ErrCodeInvalidRequest, "invalid role")
			return
		}
		updates.Role = &targetRole
	}

	if req.IsActive != nil {
		if dbUser.Role == entity.UserRoleSuperAdmin {
			BadRequest(c, ErrCodeInvalidRequest, "super admin must remain active")
			return
		}
		if dbUser.Role == entity.UserRoleAdmin && !requestUser.IsSuperAdmin() {
			Forbidden(c, "only super admin can change admin status")
			return
		}
		updates.IsActive = req.IsActive
	}

	if req.GenerationsLimit != nil {
		if *req.GenerationsLimit < 0 {
			BadRequest(c, ErrCodeInvalidRequest, "generations_limit must not be negative")
			return
		}
		updates.GenerationsLimit = req.GenerationsLimit
	}
	updates.ResetUsage = req.ResetUsage

	if updates.IsEmpty() {
		c.JSON(http.StatusOK, converter.UserToSummary(dbUser))
		return
	}

	if err := h.repo.UpdateUser(ctx, dbUser.ID, updates); err != nil {
		logrus.WithError(err).Error("failed to update user")
		InternalError(c, "failed to update user")
		return
	}

	updated, err := h.repo.GetUserByID(ctx, dbUser.ID)
	if err != nil {
		logrus.WithError(err).Error("failed to reload user after update")
		InternalError(c, "failed to load updated user")
		return
	}

	if req.GenerationsLimit != nil || req.ResetUsage {
		logrus.WithFields(logrus.Fields{
			"admin_id":          requestUser.ID,
			"user_id":           updated.ID,
			"generations_limit": updated.GenerationsLimit,
			"reset_usage":       req.ResetUsage,
		}).Info("user quota adjusted")
	}
	c.JSON(http.StatusOK, converter.UserToSummary(updated))
}

// DeleteUser 删除用户及其生成记录，存储中的图片尽力清理
func (h *HTTPHandler) DeleteUser(c *gin.Context) {
	requestUser := CurrentUser(c)

	id, ok := parseIDParam(c, "id")
	if !ok {
		BadRequest(c, ErrCodeInvalidRequest, "invalid user id")
		return
	}

	if requestUser.ID == id {
		BadRequest(c, ErrCodeCannotDeleteSelf, "cannot delete current user")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	dbUser, err := h.repo.GetUserByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, ErrCodeUserNotFound, "user not found")
			return
		}
		logrus.WithError(err).Error("failed to load user for deletion")
		InternalError(c, "failed to delete user")
		return
	}

	if dbUser.Role == entity.UserRoleSuperAdmin {
		Forbidden(c, "super admin cannot be deleted")
		return
	}
	if dbUser.Role == entity.UserRoleAdmin && !requestUser.IsSuperAdmin() {
		Forbidden(c, "only super admin can delete admin user")
		return
	}

	if err := h.history.DeleteAccount(ctx, id); err != nil {
		ServiceError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func sanitizeRole(role string) string {
	switch strings.ToLower(strings.TrimSpace(role)) {
	case entity.UserRoleAdmin:
		return entity.UserRoleAdmin
	case entity.UserRoleUser:
		return entity.UserRoleUser
	default:
		return ""
	}
}
