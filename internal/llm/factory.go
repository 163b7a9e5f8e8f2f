package llm

import (
	"fmt"
	"net/http"
	"strings"

	"snapkit/internal/config"

	"google.golang.org/api/option"
)

// NewGenerator instantiates the Generator selected by GENERATION_DRIVER.
func NewGenerator(cfg config.Config) (Generator, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.GenerationDriver))
	model := strings.TrimSpace(cfg.GenerationModel)
	baseURL := strings.TrimSpace(cfg.GenerationBaseURL)

	switch driver {
	case "", DriverGemini:
		var opts []option.ClientOption
		if baseURL != "" {
			opts = append(opts, option.WithEndpoint(baseURL))
		}
		return NewGeminiGenerator(model, opts...), nil
	case DriverGeminiHTTP:
		return NewGeminiHTTPGenerator(&http.Client{}, baseURL, model), nil
	case DriverOpenAI:
		if model == "" {
			return nil, fmt.Errorf("GENERATION_MODEL is required for driver %s", driver)
		}
		return NewOpenAIGenerator(&http.Client{}, baseURL, model), nil
	case DriverVolcengine:
		if model == "" {
			return nil, fmt.Errorf("GENERATION_MODEL is required for driver %s", driver)
		}
		return NewVolcengineGenerator(baseURL, model), nil
	default:
		return nil, fmt.Errorf("unsupported generation driver: %s", cfg.GenerationDriver)
	}
}
