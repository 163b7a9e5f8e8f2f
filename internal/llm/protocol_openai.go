package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"snapkit/internal/entity"
	"snapkit/internal/utils"

	"github.com/sirupsen/logrus"
)

const defaultOpenAIEndpoint = "https://api.openai.com/v1/chat/completions"

type orImageURL struct {
	URL string `json:"url"`
}

type orMsgPart struct {
	Type     string      `json:"type"` // "text" | "image_url"
	Text     string      `json:"text,omitempty"`
	ImageURL *orImageURL `json:"image_url,omitempty"`
}

type orMessage struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"`
}

type orResponseFormat struct {
	Type string `json:"type"`
}

type orRequest struct {
	Model          string            `json:"model"`
	Messages       []orMessage       `json:"messages"`
	ResponseFormat *orResponseFormat `json:"response_format,omitempty"`
}

type orChoice struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
	FinishReason string `json:"finish_reason"`
}

type orResponse struct {
	Choices []orChoice `json:"choices"`
	Error   *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    any    `json:"code"`
	} `json:"error,omitempty"`
}

// OpenAIGenerator 适配 OpenAI 兼容的 chat/completions 接口（OpenRouter、AiHubMix 等网关）。
type OpenAIGenerator struct {
	httpClient *http.Client
	endpoint   string
	model      string
}

func NewOpenAIGenerator(httpClient *http.Client, endpoint, model string) *OpenAIGenerator {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		endpoint = defaultOpenAIEndpoint
	} else if !strings.HasSuffix(endpoint, "/chat/completions") {
		endpoint = strings.TrimRight(endpoint, "/") + "/chat/completions"
	}
	return &OpenAIGenerator{httpClient: httpClient, endpoint: endpoint, model: model}
}

func makeUserMessage(prompt, imageURL string) orMessage {
	return orMessage{Role: "user", Content: []orMsgPart{
		{Type: "image_url", ImageURL: &orImageURL{URL: imageURL}},
		{Type: "text", Text: prompt},
	}}
}

func (o *OpenAIGenerator) Generate(ctx context.Context, credential string, image ImageInput, cfg entity.SocialKitConfig) (*entity.SocialKitResult, error) {
	if err := checkInput(credential, image); err != nil {
		return nil, err
	}
	logger := providerLogger(ctx, DriverOpenAI, o.model, credential)

	reqBody := orRequest{
		Model: o.model,
		Messages: []orMessage{
			{Role: "system", Content: systemInstruction(cfg)},
			makeUserMessage(userPrompt, utils.EncodeDataURL(fallbackMime(image.MimeType), image.Data)),
		},
		ResponseFormat: &orResponseFormat{Type: "json_object"},
	}
	bs, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("openai marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.endpoint, bytes.NewReader(bs))
	if err != nil {
		return nil, fmt.Errorf("openai create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+credential)
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("openai send request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("openai read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		logger.WithFields(logrus.Fields{
			"status": resp.StatusCode,
			"body":   logSnippet(string(raw)),
		}).Warn("openai chat completion http error")
		return nil, &UpstreamError{Provider: DriverOpenAI, StatusCode: resp.StatusCode, Message: logSnippet(string(raw))}
	}

	var decoded orResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("%w: openai envelope: %v", ErrMalformedResponse, err)
	}
	if decoded.Error != nil && decoded.Error.Message != "" {
		return nil, &UpstreamError{Provider: DriverOpenAI, StatusCode: resp.StatusCode, Message: decoded.Error.Message}
	}
	if len(decoded.Choices) == 0 {
		return nil, fmt.Errorf("%w: no choices", ErrMalformedResponse)
	}

	text := decoded.Choices[0].Message.Content
	logger.WithField("reply_preview", logSnippet(text)).Debug("openai_generate_reply")
	return ParseSocialKit(text)
}
