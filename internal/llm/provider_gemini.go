package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"snapkit/internal/entity"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const defaultGeminiModel = "gemini-2.0-flash"

// GeminiGenerator 通过官方 genai SDK 调用 Gemini，每次调用用传入的 key 新建客户端。
type GeminiGenerator struct {
	model   string
	options []option.ClientOption
}

func NewGeminiGenerator(model string, opts ...option.ClientOption) *GeminiGenerator {
	if strings.TrimSpace(model) == "" {
		model = defaultGeminiModel
	}
	return &GeminiGenerator{model: model, options: opts}
}

func (g *GeminiGenerator) Generate(ctx context.Context, credential string, image ImageInput, cfg entity.SocialKitConfig) (*entity.SocialKitResult, error) {
	if err := checkInput(credential, image); err != nil {
		return nil, err
	}
	logger := providerLogger(ctx, DriverGemini, g.model, credential)

	opts := append([]option.ClientOption{option.WithAPIKey(credential)}, g.options...)
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gemini create client: %w", err)
	}
	defer client.Close()

	model := client.GenerativeModel(g.model)
	model.SystemInstruction = genai.NewUserContent(genai.Text(systemInstruction(cfg)))
	model.ResponseMIMEType = "application/json"
	model.ResponseSchema = responseSchema()

	resp, err := model.GenerateContent(ctx,
		genai.Blob{MIMEType: fallbackMime(image.MimeType), Data: image.Data},
		genai.Text(userPrompt),
	)
	if err != nil {
		var blocked *genai.BlockedError
		if errors.As(err, &blocked) {
			logger.WithError(err).Warn("gemini_generate_blocked")
		}
		return nil, fmt.Errorf("gemini generate content: %w", err)
	}

	text := responseText(resp)
	logger.WithField("reply_preview", logSnippet(text)).Debug("gemini_generate_reply")
	return ParseSocialKit(text)
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	var b strings.Builder
	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				b.WriteString(string(text))
			}
		}
		if b.Len() > 0 {
			break
		}
	}
	return b.String()
}
