package utils

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"mime"
	"net/http"
	"strings"
)

// DecodeMediaPayload decodes an inline base64 or data URL payload and returns
// the raw bytes together with the sniffed image MIME type.
func DecodeMediaPayload(payload string) ([]byte, string, error) {
	trimmed := strings.TrimSpace(payload)
	if trimmed == "" {
		return nil, "", fmt.Errorf("empty media payload")
	}

	declared, base64Payload := SplitDataURL(trimmed)
	base64Payload = strings.TrimSpace(base64Payload)
	if base64Payload == "" {
		return nil, "", fmt.Errorf("empty base64 payload")
	}

	data, err := base64.StdEncoding.DecodeString(base64Payload)
	if err != nil {
		return nil, "", fmt.Errorf("decode base64: %w", err)
	}

	mimeType := DetectImageMime(data)
	if mimeType == "" && IsSupportedImageMime(declared) {
		mimeType = normalizeMime(declared)
	}
	return data, mimeType, nil
}

// DetectImageMime 根据文件头识别图片类型，无法识别时返回空字符串。
func DetectImageMime(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	// http.DetectContentType 不识别 HEIC
	if len(data) >= 12 && bytes.Equal(data[4:8], []byte("ftyp")) {
		brand := string(data[8:12])
		switch brand {
		case "heic", "heix", "hevc", "hevx":
			return "image/heic"
		case "mif1", "msf1", "heif":
			return "image/heif"
		}
	}
	detected := normalizeMime(http.DetectContentType(data))
	if IsSupportedImageMime(detected) {
		return detected
	}
	return ""
}

// IsSupportedImageMime reports whether the multimodal backends accept the type.
func IsSupportedImageMime(mimeType string) bool {
	switch normalizeMime(mimeType) {
	case "image/png", "image/jpeg", "image/webp", "image/gif", "image/heic", "image/heif":
		return true
	default:
		return false
	}
}

func ExtensionFromMime(mimeType string) string {
	switch normalizeMime(mimeType) {
	case "image/png":
		return "png"
	case "image/jpeg":
		return "jpg"
	case "image/webp":
		return "webp"
	case "image/gif":
		return "gif"
	case "image/heic":
		return "heic"
	case "image/heif":
		return "heif"
	default:
		return ""
	}
}

func normalizeMime(mimeType string) string {
	mimeType = strings.TrimSpace(mimeType)
	if mimeType == "" {
		return ""
	}
	if parsed, _, err := mime.ParseMediaType(mimeType); err == nil {
		mimeType = parsed
	}
	mimeType = strings.ToLower(mimeType)
	if mimeType == "image/jpg" {
		return "image/jpeg"
	}
	return mimeType
}
