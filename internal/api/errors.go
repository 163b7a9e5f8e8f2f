package api

import (
	"errors"
	"net/http"

	"snapkit/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// 错误码定义
const (
	// 通用错误码
	ErrCodeInvalidRequest     = "ERR_INVALID_REQUEST"
	ErrCodeUnauthorized       = "ERR_UNAUTHORIZED"
	ErrCodeForbidden          = "ERR_FORBIDDEN"
	ErrCodeNotFound           = "ERR_NOT_FOUND"
	ErrCodeInternalError      = "ERR_INTERNAL_ERROR"
	ErrCodeServiceUnavailable = "ERR_SERVICE_UNAVAILABLE"

	// 认证错误码
	ErrCodeInvalidCredentials = "ERR_INVALID_CREDENTIALS"
	ErrCodeEmailExists        = "ERR_EMAIL_EXISTS"
	ErrCodeRegistrationClosed = "ERR_REGISTRATION_CLOSED"
	ErrCodeUserDisabled       = "ERR_USER_DISABLED"
	ErrCodeSessionExpired     = "ERR_SESSION_EXPIRED"

	// 资源错误码
	ErrCodeRecordNotFound  = "ERR_RECORD_NOT_FOUND"
	ErrCodeUserNotFound    = "ERR_USER_NOT_FOUND"
	ErrCodePoolKeyNotFound = "ERR_POOL_KEY_NOT_FOUND"
	ErrCodePoolKeyExists   = "ERR_POOL_KEY_EXISTS"

	// 业务逻辑错误码
	ErrCodeMissingField     = "ERR_MISSING_FIELD"
	ErrCodeCannotDeleteSelf = "ERR_CANNOT_DELETE_SELF"
	ErrCodeGenerationFailed = "ERR_GENERATION_FAILED"
	ErrCodeQuotaExhausted   = "ERR_QUOTA_EXHAUSTED"
	ErrCodeRateLimited      = "ERR_RATE_LIMITED"
	ErrCodeServiceBusy      = "ERR_SERVICE_BUSY"
)

// APIError 统一的 API 错误响应结构
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// ErrorResponse 返回统一格式的错误响应
func ErrorResponse(c *gin.Context, status int, code string, message string) {
	c.JSON(status, APIError{
		Code:    code,
		Message: message,
	})
}

// ErrorResponseWithDetails 返回带详情的错误响应
func ErrorResponseWithDetails(c *gin.Context, status int, code string, message string, details any) {
	c.JSON(status, APIError{
		Code:    code,
		Message: message,
		Details: details,
	})
}

// 常用错误响应快捷函数

// BadRequest 400 错误请求
func BadRequest(c *gin.Context, code string, message string) {
	ErrorResponse(c, http.StatusBadRequest, code, message)
}

// Unauthorized 401 未授权
func Unauthorized(c *gin.Context, message string) {
	ErrorResponse(c, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

// Forbidden 403 禁止访问
func Forbidden(c *gin.Context, message string) {
	ErrorResponse(c, http.StatusForbidden, ErrCodeForbidden, message)
}

// NotFound 404 资源不存在
func NotFound(c *gin.Context, code string, message string) {
	ErrorResponse(c, http.StatusNotFound, code, message)
}

// InternalError 500 服务器内部错误
func InternalError(c *gin.Context, message string) {
	ErrorResponse(c, http.StatusInternalServerError, ErrCodeInternalError, message)
}

// ServiceUnavailable 503 服务不可用
func ServiceUnavailable(c *gin.Context, message string) {
	ErrorResponse(c, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, message)
}

// MissingField 缺少必填字段
func MissingField(c *gin.Context, field string) {
	ErrorResponseWithDetails(c, http.StatusBadRequest, ErrCodeMissingField, field+" is required", gin.H{"field": field})
}

// InvalidPayload 无效的请求体
func InvalidPayload(c *gin.Context) {
	ErrorResponse(c, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid request payload")
}

// ServiceError 将服务层错误映射为统一响应。上游与存储细节只写日志，不返回给客户端。
func ServiceError(c *gin.Context, err error) {
	var quotaErr *service.QuotaError
	switch {
	case errors.As(err, &quotaErr):
		ErrorResponseWithDetails(c, http.StatusPaymentRequired, ErrCodeQuotaExhausted,
			"free generations used up, add your own API key to keep generating",
			gin.H{"used": quotaErr.Used, "limit": quotaErr.Limit})
	case errors.Is(err, service.ErrInsufficientQuota):
		ErrorResponse(c, http.StatusPaymentRequired, ErrCodeQuotaExhausted,
			"free generations used up, add your own API key to keep generating")
	case errors.Is(err, service.ErrInvalidInput):
		BadRequest(c, ErrCodeInvalidRequest, err.Error())
	case errors.Is(err, service.ErrForbidden):
		Forbidden(c, "access denied")
	case errors.Is(err, service.ErrNotFound):
		NotFound(c, ErrCodeRecordNotFound, "record not found")
	case errors.Is(err, service.ErrRateLimited):
		logrus.WithError(err).Warn("generation rate limited")
		ErrorResponse(c, http.StatusServiceUnavailable, ErrCodeRateLimited, "the service is under heavy load, please try again later")
	case errors.Is(err, service.ErrPoolExhausted), errors.Is(err, service.ErrStorageUnavailable):
		logrus.WithError(err).Error("service busy")
		ErrorResponse(c, http.StatusServiceUnavailable, ErrCodeServiceBusy, "service busy, please try again later")
	case errors.Is(err, service.ErrUpstreamFailure):
		logrus.WithError(err).Error("generation failed")
		ErrorResponse(c, http.StatusBadGateway, ErrCodeGenerationFailed, "generation failed, please try again")
	default:
		logrus.WithError(err).Error("unexpected service error")
		InternalError(c, "internal server error")
	}
}
