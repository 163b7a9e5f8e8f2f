package llm

import (
	"fmt"
	"strings"

	"snapkit/internal/entity"

	"github.com/google/generative-ai-go/genai"
)

const userPrompt = "Generate a comprehensive social media kit for this image."

// systemInstruction 所有驱动共用的系统提示词
func systemInstruction(cfg entity.SocialKitConfig) string {
	var b strings.Builder
	b.WriteString("You are an expert Social Media Manager and Content Strategist.\n")
	b.WriteString("Your goal is to analyze the provided image and generate a complete social media kit.\n\n")
	b.WriteString("Configuration:\n")
	fmt.Fprintf(&b, "- Tone: %s\n", cfg.Tone)
	fmt.Fprintf(&b, "- Include Emojis: %t\n", cfg.IncludeEmoji)
	fmt.Fprintf(&b, "- Language: %s\n", cfg.Language)
	if len(cfg.Platforms) > 0 {
		fmt.Fprintf(&b, "- Target platforms: %s\n", strings.Join(cfg.Platforms, ", "))
	}
	b.WriteString("\nIMPORTANT RULES:\n")
	b.WriteString("1. Captions must be SHORT and EFFECTIVE. Avoid long paragraphs. Use a punchy 1-2 sentence body.\n")
	b.WriteString("2. Hooks must stop the scroll.\n")
	b.WriteString("3. Video scripts should be fast-paced.\n")
	b.WriteString("4. Respond with a single JSON object matching the response schema and nothing else.\n")
	b.WriteString("\nDeliverables:\n")
	b.WriteString("1. Visual analysis of the image (summary, mood, keywords).\n")
	b.WriteString("2. 3 distinct caption variations (Instagram, Generic, Story).\n")
	fmt.Fprintf(&b, "3. 3 sets of hashtags with categories %q, %q and %q.\n",
		entity.HashtagCategoryReach, entity.HashtagCategoryNiche, entity.HashtagCategoryCommunity)
	b.WriteString("4. Video scripts for TikTok and YouTube Shorts with a timestamped scene breakdown.\n")
	b.WriteString("5. A short and professional LinkedIn post.\n")
	b.WriteString("6. A Twitter/X thread of 3-5 tweets.\n")
	return b.String()
}

func stringSchema() *genai.Schema {
	return &genai.Schema{Type: genai.TypeString}
}

func stringArraySchema() *genai.Schema {
	return &genai.Schema{Type: genai.TypeArray, Items: stringSchema()}
}

func videoScriptSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"title": stringSchema(),
			"hook":  stringSchema(),
			"scene_breakdown": {
				Type: genai.TypeArray,
				Items: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"timestamp": stringSchema(),
						"visual":    stringSchema(),
						"audio":     stringSchema(),
					},
					Required: []string{"timestamp", "visual", "audio"},
				},
			},
			"cta": stringSchema(),
		},
		Required: []string{"title", "hook", "scene_breakdown", "cta"},
	}
}

// responseSchema 与 entity.SocialKitResult 一一对应
func responseSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"analysis": {
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"summary":  stringSchema(),
					"mood":     stringSchema(),
					"keywords": stringArraySchema(),
				},
				Required: []string{"summary", "mood", "keywords"},
			},
			"captions": {
				Type: genai.TypeArray,
				Items: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"platform": stringSchema(),
						"hook":     stringSchema(),
						"text":     stringSchema(),
						"cta":      stringSchema(),
					},
					Required: []string{"platform", "hook", "text", "cta"},
				},
			},
			"hashtags": {
				Type: genai.TypeArray,
				Items: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"category": {
							Type: genai.TypeString,
							Enum: []string{entity.HashtagCategoryReach, entity.HashtagCategoryNiche, entity.HashtagCategoryCommunity},
						},
						"tags": stringArraySchema(),
					},
					Required: []string{"category", "tags"},
				},
			},
			"scripts": {
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"tiktok": videoScriptSchema(),
					"shorts": videoScriptSchema(),
				},
				Required: []string{"tiktok", "shorts"},
			},
			"linkedin_post":  stringSchema(),
			"twitter_thread": stringArraySchema(),
		},
		Required: []string{"analysis", "captions", "hashtags", "scripts", "linkedin_post", "twitter_thread"},
	}
}

// schemaToMap 将 genai.Schema 转成 REST 接口使用的 JSON 结构
func schemaToMap(s *genai.Schema) map[string]any {
	if s == nil {
		return nil
	}
	out := map[string]any{"type": schemaTypeName(s.Type)}
	if s.Description != "" {
		out["description"] = s.Description
	}
	if s.Nullable {
		out["nullable"] = true
	}
	if len(s.Enum) > 0 {
		out["enum"] = s.Enum
	}
	if s.Items != nil {
		out["items"] = schemaToMap(s.Items)
	}
	if len(s.Properties) > 0 {
		props := make(map[string]any, len(s.Properties))
		for name, prop := range s.Properties {
			props[name] = schemaToMap(prop)
		}
		out["properties"] = props
	}
	if len(s.Required) > 0 {
		out["required"] = s.Required
	}
	return out
}

func schemaTypeName(t genai.Type) string {
	switch t {
	case genai.TypeString:
		return "STRING"
	case genai.TypeNumber:
		return "NUMBER"
	case genai.TypeInteger:
		return "INTEGER"
	case genai.TypeBoolean:
		return "BOOLEAN"
	case genai.TypeArray:
		return "ARRAY"
	case genai.TypeObject:
		return "OBJECT"
	default:
		return "TYPE_UNSPECIFIED"
	}
}
