package entity

import "time"

const (
	CredentialSourceOwn  = "own"
	CredentialSourcePool = "pool"
)

// DbImage 已上传的源图片，PublicID 为对象存储中的 key。
type DbImage struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UserID    uint      `gorm:"column:user_id;index;not null" json:"user_id"`
	URL       string    `gorm:"column:url;type:varchar(1024);not null" json:"url"`
	PublicID  string    `gorm:"column:public_id;type:varchar(512);not null" json:"public_id"`
	MimeType  string    `gorm:"column:mime_type;type:varchar(100)" json:"mime_type"`
	SizeBytes int64     `gorm:"column:size_bytes" json:"size_bytes"`
}

func (DbImage) TableName() string {
	return "images"
}

// DbGeneration 一次成功的生成记录。
type DbGeneration struct {
	ID               uint            `gorm:"primarykey" json:"id"`
	CreatedAt        time.Time       `gorm:"index:idx_generation_user_created,priority:2" json:"created_at"`
	UserID           uint            `gorm:"column:user_id;not null;index:idx_generation_user_created,priority:1" json:"user_id"`
	ImageID          uint            `gorm:"column:image_id;index;not null" json:"image_id"`
	Image            *DbImage        `gorm:"foreignKey:ImageID" json:"image,omitempty"`
	Inputs           SocialKitConfig `gorm:"column:inputs;type:text" json:"inputs"`
	Results          SocialKitResult `gorm:"column:results;type:text" json:"results"`
	CredentialSource string          `gorm:"column:credential_source;type:varchar(16);not null" json:"credential_source"`
	PoolKeyID        *uint           `gorm:"column:pool_key_id;index" json:"pool_key_id,omitempty"`
	Attempts         int             `gorm:"column:attempts;not null;default:1" json:"attempts"`
}

func (DbGeneration) TableName() string {
	return "generations"
}

// GenerationCommit 生成成功后需要在同一事务内落库的全部内容。
type GenerationCommit struct {
	Image       DbImage
	Generation  DbGeneration
	ChargeQuota bool
	StrictQuota bool
}

type GenerationQuery struct {
	BaseParams
	UserID uint `json:"-" form:"-"`
}

type GenerationImage struct {
	URL      string `json:"url"`
	PublicID string `json:"public_id"`
}

type GenerationItem struct {
	ID               uint            `json:"id"`
	CreatedAt        time.Time       `json:"created_at"`
	UserID           uint            `json:"user_id"`
	Image            GenerationImage `json:"image"`
	Config           SocialKitConfig `json:"config"`
	Result           SocialKitResult `json:"result"`
	CredentialSource string          `json:"credential_source"`
	PoolKeyID        *uint           `json:"pool_key_id,omitempty"`
	Attempts         int             `json:"attempts"`
}

type GenerationListResponse struct {
	Generations []GenerationItem `json:"generations"`
	Meta        *Meta            `json:"meta"`
}

// GenerateRequest JSON 形式的生成请求，Image 为 base64 或 data URL。
type GenerateRequest struct {
	Image        string   `json:"image" binding:"required"`
	Tone         string   `json:"tone"`
	Platforms    []string `json:"platforms"`
	IncludeEmoji *bool    `json:"include_emoji"`
	Language     string   `json:"language"`
}

type GenerateResponse struct {
	Generation               GenerationItem `json:"generation"`
	Attempts                 int            `json:"attempts"`
	FreeGenerationsRemaining *int           `json:"free_generations_remaining,omitempty"`
}
