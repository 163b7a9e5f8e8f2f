package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"snapkit/internal/service"

	"github.com/gin-gonic/gin"
)

func TestErrorResponse(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name           string
		status         int
		code           string
		message        string
		expectedStatus int
	}{
		{name: "BadRequest", status: http.StatusBadRequest, code: ErrCodeInvalidRequest, message: "invalid request", expectedStatus: http.StatusBadRequest},
		{name: "NotFound", status: http.StatusNotFound, code: ErrCodePoolKeyNotFound, message: "pool key not found", expectedStatus: http.StatusNotFound},
		{name: "InternalError", status: http.StatusInternalServerError, code: ErrCodeInternalError, message: "boom", expectedStatus: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)

			ErrorResponse(c, tt.status, tt.code, tt.message)

			if w.Code != tt.expectedStatus {
				t.Errorf("expected status %d, got %d", tt.expectedStatus, w.Code)
			}

			var response APIError
			if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
				t.Fatalf("failed to unmarshal response: %v", err)
			}
			if response.Code != tt.code {
				t.Errorf("expected code %s, got %s", tt.code, response.Code)
			}
			if response.Message != tt.message {
				t.Errorf("expected message %s, got %s", tt.message, response.Message)
			}
		})
	}
}

func TestMissingFieldCarriesDetails(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	MissingField(c, "image")

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, w.Code)
	}
	var response struct {
		Code    string            `json:"code"`
		Details map[string]string `json:"details"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if response.Code != ErrCodeMissingField || response.Details["field"] != "image" {
		t.Errorf("unexpected response %+v", response)
	}
}

func TestServiceError(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"quota", &service.QuotaError{Used: 3, Limit: 3}, http.StatusPaymentRequired, ErrCodeQuotaExhausted},
		{"strict quota", fmt.Errorf("commit: %w", service.ErrInsufficientQuota), http.StatusPaymentRequired, ErrCodeQuotaExhausted},
		{"rate limited", &service.GenerationError{Kind: service.ErrRateLimited, Source: "pool", Attempts: 3}, http.StatusServiceUnavailable, ErrCodeRateLimited},
		{"pool exhausted", &service.GenerationError{Kind: service.ErrPoolExhausted}, http.StatusServiceUnavailable, ErrCodeServiceBusy},
		{"storage", fmt.Errorf("%w: db down", service.ErrStorageUnavailable), http.StatusServiceUnavailable, ErrCodeServiceBusy},
		{"upstream", &service.GenerationError{Kind: service.ErrUpstreamFailure, Err: errors.New("500")}, http.StatusBadGateway, ErrCodeGenerationFailed},
		{"forbidden", fmt.Errorf("generation 1: %w", service.ErrForbidden), http.StatusForbidden, ErrCodeForbidden},
		{"not found", fmt.Errorf("generation 1: %w", service.ErrNotFound), http.StatusNotFound, ErrCodeRecordNotFound},
		{"invalid", fmt.Errorf("%w: empty image", service.ErrInvalidInput), http.StatusBadRequest, ErrCodeInvalidRequest},
		{"unknown", errors.New("unexpected"), http.StatusInternalServerError, ErrCodeInternalError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)

			ServiceError(c, tt.err)

			if w.Code != tt.status {
				t.Errorf("expected status %d, got %d", tt.status, w.Code)
			}
			var response APIError
			if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
				t.Fatalf("failed to unmarshal response: %v", err)
			}
			if response.Code != tt.code {
				t.Errorf("expected code %s, got %s", tt.code, response.Code)
			}
		})
	}
}

func TestServiceErrorQuotaDetails(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	ServiceError(c, &service.QuotaError{Used: 3, Limit: 3})

	var response struct {
		Details map[string]int `json:"details"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if response.Details["used"] != 3 || response.Details["limit"] != 3 {
		t.Errorf("unexpected details %+v", response.Details)
	}
}
