package llm

import (
	"context"
	"errors"
	"strings"

	"snapkit/internal/entity"
)

const (
	DriverGemini     = "gemini"
	DriverGeminiHTTP = "gemini_http"
	DriverOpenAI     = "openai"
	DriverVolcengine = "volcengine"
)

var ErrMissingCredential = errors.New("generation credential is empty")

// ImageInput is the source photo handed to the model.
type ImageInput struct {
	Data     []byte
	MimeType string
}

// Generator turns one photo into a social media kit using the given credential.
// Implementations must honour ctx cancellation and must not retry on their own.
type Generator interface {
	Generate(ctx context.Context, credential string, image ImageInput, cfg entity.SocialKitConfig) (*entity.SocialKitResult, error)
}

// GeneratorFunc adapts a plain function to Generator.
type GeneratorFunc func(ctx context.Context, credential string, image ImageInput, cfg entity.SocialKitConfig) (*entity.SocialKitResult, error)

func (f GeneratorFunc) Generate(ctx context.Context, credential string, image ImageInput, cfg entity.SocialKitConfig) (*entity.SocialKitResult, error) {
	return f(ctx, credential, image, cfg)
}

func checkInput(credential string, image ImageInput) error {
	if strings.TrimSpace(credential) == "" {
		return ErrMissingCredential
	}
	if len(image.Data) == 0 {
		return errors.New("image data is empty")
	}
	return nil
}
