package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	volcModel "github.com/volcengine/volcengine-go-sdk/service/arkruntime/model"
	"google.golang.org/api/googleapi"
)

// FailureKind 外部调用失败的分类，只有 RateLimited 会触发换 key 重试
type FailureKind int

const (
	FailureOther FailureKind = iota
	FailureRateLimited
)

func (k FailureKind) String() string {
	if k == FailureRateLimited {
		return "rate_limited"
	}
	return "other"
}

// ErrMalformedResponse marks a model reply that is not a valid social kit.
var ErrMalformedResponse = errors.New("malformed model response")

// UpstreamError is a non-2xx reply from a REST driver.
type UpstreamError struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s http %d: %s", e.Provider, e.StatusCode, e.Message)
}

// 429 必须是独立的数字，避免命中请求 id 或 token 数
var statusTooManyPattern = regexp.MustCompile(`\b429\b`)

var rateLimitMarkers = []string{
	"quota",
	"rate limit",
	"ratelimit",
	"resource_exhausted",
	"resource exhausted",
	"too many requests",
	"limit exceeded",
}

// Classify 判断一次失败是否为限流/额度类错误。
// 超时、取消、解析失败、鉴权失败等一律视为 FailureOther。
func Classify(err error) FailureKind {
	if err == nil {
		return FailureOther
	}
	if errors.Is(err, ErrMalformedResponse) || errors.Is(err, ErrMissingCredential) ||
		errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return FailureOther
	}

	var upstream *UpstreamError
	if errors.As(err, &upstream) && upstream.StatusCode == http.StatusTooManyRequests {
		return FailureRateLimited
	}
	var gErr *googleapi.Error
	if errors.As(err, &gErr) && gErr.Code == http.StatusTooManyRequests {
		return FailureRateLimited
	}
	var arkErr *volcModel.APIError
	if errors.As(err, &arkErr) && arkErr.HTTPStatusCode == http.StatusTooManyRequests {
		return FailureRateLimited
	}

	msg := strings.ToLower(err.Error())
	if statusTooManyPattern.MatchString(msg) {
		return FailureRateLimited
	}
	for _, marker := range rateLimitMarkers {
		if strings.Contains(msg, marker) {
			return FailureRateLimited
		}
	}
	return FailureOther
}
