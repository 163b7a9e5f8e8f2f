package entity

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"

	"snapkit/internal/entity/common"
)

const (
	TonePlayful       = "playful"
	ToneProfessional  = "professional"
	ToneMinimal       = "minimal"
	ToneInspirational = "inspirational"
	ToneFunny         = "funny"
)

var validTones = map[string]struct{}{
	TonePlayful:       {},
	ToneProfessional:  {},
	ToneMinimal:       {},
	ToneInspirational: {},
	ToneFunny:         {},
}

var DefaultPlatforms = []string{"Instagram", "TikTok", "LinkedIn", "Twitter"}

const (
	maxLanguageLength = 40
	maxPlatforms      = 10
)

// SocialKitConfig 生成配置，随生成记录一起持久化。
type SocialKitConfig struct {
	Tone         string   `json:"tone"`
	Platforms    []string `json:"platforms"`
	IncludeEmoji bool     `json:"include_emoji"`
	Language     string   `json:"language"`
}

// DefaultSocialKitConfig returns the configuration used when the client sends none.
func DefaultSocialKitConfig() SocialKitConfig {
	return SocialKitConfig{
		Tone:         TonePlayful,
		Platforms:    append([]string(nil), DefaultPlatforms...),
		IncludeEmoji: true,
		Language:     "English",
	}
}

// Normalize trims fields and fills blanks with defaults. IncludeEmoji is left as given.
func (c *SocialKitConfig) Normalize() {
	c.Tone = strings.ToLower(strings.TrimSpace(c.Tone))
	if c.Tone == "" {
		c.Tone = TonePlayful
	}
	c.Language = strings.TrimSpace(c.Language)
	if c.Language == "" {
		c.Language = "English"
	}
	platforms := make([]string, 0, len(c.Platforms))
	seen := make(map[string]struct{}, len(c.Platforms))
	for _, p := range c.Platforms {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		key := strings.ToLower(p)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		platforms = append(platforms, p)
	}
	if len(platforms) == 0 {
		platforms = append(platforms, DefaultPlatforms...)
	}
	c.Platforms = platforms
}

func (c SocialKitConfig) Validate() error {
	if _, ok := validTones[c.Tone]; !ok {
		return fmt.Errorf("unsupported tone %q", c.Tone)
	}
	if len([]rune(c.Language)) > maxLanguageLength {
		return fmt.Errorf("language must be at most %d characters", maxLanguageLength)
	}
	if len(c.Platforms) > maxPlatforms {
		return fmt.Errorf("at most %d platforms are supported", maxPlatforms)
	}
	return nil
}

func (c SocialKitConfig) Value() (driver.Value, error) {
	return common.JSONValue(c)
}

func (c *SocialKitConfig) Scan(value interface{}) error {
	return common.ScanJSON(value, c)
}

type ImageAnalysis struct {
	Summary  string   `json:"summary"`
	Mood     string   `json:"mood"`
	Keywords []string `json:"keywords"`
}

type CaptionVariation struct {
	Platform string `json:"platform"`
	Hook     string `json:"hook"`
	Text     string `json:"text"`
	CTA      string `json:"cta"`
}

const (
	HashtagCategoryReach     = "Reach (High Vol)"
	HashtagCategoryNiche     = "Niche (Targeted)"
	HashtagCategoryCommunity = "Community (Low Vol)"
)

type HashtagSet struct {
	Category string   `json:"category"`
	Tags     []string `json:"tags"`
}

type SceneBeat struct {
	Timestamp string `json:"timestamp"`
	Visual    string `json:"visual"`
	Audio     string `json:"audio"`
}

type VideoScript struct {
	Title          string      `json:"title"`
	Hook           string      `json:"hook"`
	SceneBreakdown []SceneBeat `json:"scene_breakdown"`
	CTA            string      `json:"cta"`
}

type VideoScripts struct {
	TikTok VideoScript `json:"tiktok"`
	Shorts VideoScript `json:"shorts"`
}

// SocialKitResult 模型返回的完整社媒素材包，结构固定。
type SocialKitResult struct {
	Analysis      ImageAnalysis      `json:"analysis"`
	Captions      []CaptionVariation `json:"captions"`
	Hashtags      []HashtagSet       `json:"hashtags"`
	Scripts       VideoScripts       `json:"scripts"`
	LinkedInPost  string             `json:"linkedin_post"`
	TwitterThread []string           `json:"twitter_thread"`
}

// Validate checks the fields every consumer relies on. Optional prose such as
// hooks and CTAs may be empty.
func (r *SocialKitResult) Validate() error {
	if r == nil {
		return errors.New("result is empty")
	}
	var problems []string
	if strings.TrimSpace(r.Analysis.Summary) == "" {
		problems = append(problems, "analysis.summary is empty")
	}
	if len(r.Captions) == 0 {
		problems = append(problems, "captions is empty")
	}
	for i, c := range r.Captions {
		if strings.TrimSpace(c.Text) == "" {
			problems = append(problems, fmt.Sprintf("captions[%d].text is empty", i))
		}
	}
	if len(r.Hashtags) == 0 {
		problems = append(problems, "hashtags is empty")
	}
	for i, h := range r.Hashtags {
		if len(h.Tags) == 0 {
			problems = append(problems, fmt.Sprintf("hashtags[%d].tags is empty", i))
		}
	}
	if strings.TrimSpace(r.Scripts.TikTok.Title) == "" && strings.TrimSpace(r.Scripts.TikTok.Hook) == "" {
		problems = append(problems, "scripts.tiktok is empty")
	}
	if strings.TrimSpace(r.Scripts.Shorts.Title) == "" && strings.TrimSpace(r.Scripts.Shorts.Hook) == "" {
		problems = append(problems, "scripts.shorts is empty")
	}
	if strings.TrimSpace(r.LinkedInPost) == "" {
		problems = append(problems, "linkedin_post is empty")
	}
	if len(r.TwitterThread) == 0 {
		problems = append(problems, "twitter_thread is empty")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid social kit: %s", strings.Join(problems, "; "))
	}
	return nil
}

func (r SocialKitResult) Value() (driver.Value, error) {
	return common.JSONValue(r)
}

func (r *SocialKitResult) Scan(value interface{}) error {
	return common.ScanJSON(value, r)
}
