package llm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"snapkit/internal/entity"

	"github.com/sirupsen/logrus"
)

// Gemini REST endpoint, used when the SDK is not wanted or a gateway fronts Gemini.
const geminiGenerateEndpoint = "https://generativelanguage.googleapis.com/v1beta/models/%s:generateContent"

// Request payload pieces ----------------------------------------------------
type (
	geminiInlineData struct {
		MimeType string `json:"mimeType,omitempty"`
		Data     string `json:"data,omitempty"`
	}
	geminiPart struct {
		Text       string            `json:"text,omitempty"`
		InlineData *geminiInlineData `json:"inlineData,omitempty"`
	}
	geminiContent struct {
		Role  string       `json:"role,omitempty"`
		Parts []geminiPart `json:"parts"`
	}
	geminiGenerationConfig struct {
		ResponseMimeType string         `json:"responseMimeType,omitempty"`
		ResponseSchema   map[string]any `json:"responseSchema,omitempty"`
	}
	geminiRequest struct {
		Contents          []geminiContent         `json:"contents"`
		SystemInstruction *geminiContent          `json:"systemInstruction,omitempty"`
		GenerationConfig  *geminiGenerationConfig `json:"generationConfig,omitempty"`
	}
)

// Response payload pieces ---------------------------------------------------
type (
	geminiCandidate struct {
		FinishReason string        `json:"finishReason,omitempty"`
		Content      geminiContent `json:"content"`
	}
	geminiError struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	}
	geminiResponse struct {
		Candidates []geminiCandidate `json:"candidates"`
		Error      *geminiError      `json:"error,omitempty"`
	}
)

// GeminiHTTPGenerator calls the generateContent REST endpoint directly.
type GeminiHTTPGenerator struct {
	httpClient *http.Client
	endpoint   string
	model      string
}

func NewGeminiHTTPGenerator(httpClient *http.Client, endpoint, model string) *GeminiHTTPGenerator {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if strings.TrimSpace(model) == "" {
		model = defaultGeminiModel
	}
	return &GeminiHTTPGenerator{httpClient: httpClient, endpoint: endpoint, model: model}
}

func (g *GeminiHTTPGenerator) Generate(ctx context.Context, credential string, image ImageInput, cfg entity.SocialKitConfig) (*entity.SocialKitResult, error) {
	if err := checkInput(credential, image); err != nil {
		return nil, err
	}
	logger := providerLogger(ctx, DriverGeminiHTTP, g.model, credential)

	reqBody := geminiRequest{
		Contents: []geminiContent{
			{
				Role: "user",
				Parts: []geminiPart{
					{InlineData: &geminiInlineData{
						MimeType: fallbackMime(image.MimeType),
						Data:     base64.StdEncoding.EncodeToString(image.Data),
					}},
					{Text: userPrompt},
				},
			},
		},
		SystemInstruction: &geminiContent{Parts: []geminiPart{{Text: systemInstruction(cfg)}}},
		GenerationConfig: &geminiGenerationConfig{
			ResponseMimeType: "application/json",
			ResponseSchema:   schemaToMap(responseSchema()),
		},
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("gemini marshal request: %w", err)
	}

	targetURL := resolveGeminiEndpoint(g.endpoint, g.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, targetURL, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("gemini create request: %w", err)
	}
	// key 放在 header 里，避免出现在 URL 日志中
	req.Header.Set("x-goog-api-key", credential)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gemini send request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("gemini read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		logger.WithFields(logrus.Fields{
			"status": resp.StatusCode,
			"body":   logSnippet(string(raw)),
		}).Warn("gemini generate content http error")
		return nil, &UpstreamError{Provider: DriverGeminiHTTP, StatusCode: resp.StatusCode, Message: geminiErrorMessage(raw)}
	}

	var decoded geminiResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("%w: gemini envelope: %v", ErrMalformedResponse, err)
	}
	if decoded.Error != nil && strings.TrimSpace(decoded.Error.Message) != "" {
		return nil, &UpstreamError{Provider: DriverGeminiHTTP, StatusCode: decoded.Error.Code, Message: decoded.Error.Message}
	}

	var b strings.Builder
	for _, cand := range decoded.Candidates {
		for _, part := range cand.Content.Parts {
			b.WriteString(part.Text)
		}
		if b.Len() > 0 {
			break
		}
		if cand.FinishReason != "" {
			logger.WithField("finish_reason", cand.FinishReason).Warn("gemini candidate without text")
		}
	}
	text := b.String()
	logger.WithField("reply_preview", logSnippet(text)).Debug("gemini_generate_reply")
	return ParseSocialKit(text)
}

func geminiErrorMessage(raw []byte) string {
	var decoded geminiResponse
	if err := json.Unmarshal(raw, &decoded); err == nil && decoded.Error != nil {
		if decoded.Error.Status != "" {
			return decoded.Error.Status + ": " + decoded.Error.Message
		}
		return decoded.Error.Message
	}
	return logSnippet(string(raw))
}

// fallbackMime normalizes empty/unknown mime types to a sensible default.
func fallbackMime(mimeType string) string {
	v := strings.TrimSpace(mimeType)
	if v == "" {
		return "image/jpeg"
	}
	if idx := strings.Index(v, ";"); idx > 0 {
		return strings.TrimSpace(v[:idx])
	}
	return v
}

// resolveGeminiEndpoint builds the request URL from a provided endpoint template or base URL.
// - If endpoint contains "%s", it is treated as a fmt template and will be formatted with model.
// - If endpoint is a bare base URL, the default Gemini suffix is appended.
// - If empty, fall back to the public Gemini endpoint.
func resolveGeminiEndpoint(endpoint, model string) string {
	base := strings.TrimSpace(endpoint)
	if base == "" {
		return fmt.Sprintf(geminiGenerateEndpoint, model)
	}
	if strings.Contains(base, "%s") {
		return fmt.Sprintf(base, model)
	}
	base = strings.TrimRight(base, "/")
	return fmt.Sprintf("%s/v1beta/models/%s:generateContent", base, model)
}
