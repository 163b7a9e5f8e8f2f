package llm

import (
	"context"
	"strings"
	"unicode/utf8"

	"snapkit/internal/utils"

	"github.com/sirupsen/logrus"
)

// 日志里的上游响应最多保留这么多字符
const previewRunes = 120

// providerLogger 只记录密钥尾号，不记录明文
func providerLogger(ctx context.Context, driver, model, credential string) *logrus.Entry {
	entry := logrus.WithField("driver", driver)
	if ctx != nil {
		entry = entry.WithContext(ctx)
	}
	if model = strings.TrimSpace(model); model != "" {
		entry = entry.WithField("model", model)
	}
	if credential != "" {
		entry = entry.WithField("key_hint", utils.MaskSecret(credential))
	}
	return entry
}

func logSnippet(value string) string {
	value = strings.TrimSpace(value)
	if utf8.RuneCountInString(value) <= previewRunes {
		return value
	}
	return string([]rune(value)[:previewRunes]) + "..."
}
