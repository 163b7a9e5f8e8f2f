package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"snapkit/internal/entity"
)

// ParseSocialKit decodes the model's text reply into a validated SocialKitResult.
// Markdown code fences around the JSON are tolerated.
func ParseSocialKit(text string) (*entity.SocialKitResult, error) {
	payload := stripCodeFence(text)
	if payload == "" {
		return nil, fmt.Errorf("%w: empty reply", ErrMalformedResponse)
	}

	var result entity.SocialKitResult
	if err := json.Unmarshal([]byte(payload), &result); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if err := result.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return &result, nil
}

func stripCodeFence(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```")
	if idx := strings.IndexByte(trimmed, '\n'); idx >= 0 {
		// 去掉 ```json 这类语言标记
		trimmed = trimmed[idx+1:]
	} else {
		trimmed = strings.TrimPrefix(trimmed, "json")
	}
	trimmed = strings.TrimSpace(trimmed)
	trimmed = strings.TrimSuffix(trimmed, "```")
	return strings.TrimSpace(trimmed)
}
