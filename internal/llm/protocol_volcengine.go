package llm

import (
	"context"
	"fmt"
	"strings"

	"snapkit/internal/entity"
	"snapkit/internal/utils"

	"github.com/volcengine/volcengine-go-sdk/service/arkruntime"
	volcModel "github.com/volcengine/volcengine-go-sdk/service/arkruntime/model"
	"github.com/volcengine/volcengine-go-sdk/volcengine"
)

//文档:https://www.volcengine.com/docs/82379/1494384

// VolcengineGenerator 通过方舟 arkruntime 的对话接口调用视觉理解模型。
type VolcengineGenerator struct {
	baseURL string
	model   string
}

func NewVolcengineGenerator(baseURL, model string) *VolcengineGenerator {
	return &VolcengineGenerator{baseURL: strings.TrimSpace(baseURL), model: model}
}

func (v *VolcengineGenerator) Generate(ctx context.Context, credential string, image ImageInput, cfg entity.SocialKitConfig) (*entity.SocialKitResult, error) {
	if err := checkInput(credential, image); err != nil {
		return nil, err
	}
	logger := providerLogger(ctx, DriverVolcengine, v.model, credential)

	var client *arkruntime.Client
	if v.baseURL != "" {
		client = arkruntime.NewClientWithApiKey(credential, arkruntime.WithBaseUrl(v.baseURL))
	} else {
		client = arkruntime.NewClientWithApiKey(credential)
	}

	req := volcModel.CreateChatCompletionRequest{
		Model: v.model,
		Messages: []*volcModel.ChatCompletionMessage{
			{
				Role: volcModel.ChatMessageRoleSystem,
				Content: &volcModel.ChatCompletionMessageContent{
					StringValue: volcengine.String(systemInstruction(cfg)),
				},
			},
			{
				Role: volcModel.ChatMessageRoleUser,
				Content: &volcModel.ChatCompletionMessageContent{
					ListValue: []*volcModel.ChatCompletionMessageContentPart{
						{
							Type: volcModel.ChatCompletionMessageContentPartTypeImageURL,
							ImageURL: &volcModel.ChatMessageImageURL{
								URL: utils.EncodeDataURL(fallbackMime(image.MimeType), image.Data),
							},
						},
						{
							Type: volcModel.ChatCompletionMessageContentPartTypeText,
							Text: userPrompt,
						},
					},
				},
			},
		},
	}

	resp, err := client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("volcengine chat completion: %w", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == nil || resp.Choices[0].Message.Content.StringValue == nil {
		return nil, fmt.Errorf("%w: volcengine reply has no content", ErrMalformedResponse)
	}

	text := *resp.Choices[0].Message.Content.StringValue
	logger.WithField("reply_preview", logSnippet(text)).Debug("volcengine_generate_reply")
	return ParseSocialKit(text)
}
