package entity

import (
	"strings"
	"time"
)

const (
	UserRoleSuperAdmin = "super_admin"
	UserRoleAdmin      = "admin"
	UserRoleUser       = "user"
)

// DbUser represents a persisted user account together with its free-tier ledger.
type DbUser struct {
	ID           uint      `gorm:"primarykey" json:"id"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	Email        string    `gorm:"column:email;type:varchar(255);uniqueIndex;not null" json:"email"`
	PasswordHash string    `gorm:"column:password_hash;type:varchar(255);not null" json:"-"`
	DisplayName  string    `gorm:"column:display_name;type:varchar(255)" json:"display_name"`
	Role         string    `gorm:"column:role;type:varchar(50);index;not null" json:"role"`
	IsActive     bool      `gorm:"column:is_active;not null" json:"is_active"`

	// 用户自带的生成密钥，空字符串表示未设置
	GeminiAPIKey     string     `gorm:"column:gemini_api_key;type:varchar(512);not null;default:''" json:"-"`
	GenerationsUsed  int        `gorm:"column:generations_used;not null;default:0" json:"generations_used"`
	GenerationsLimit int        `gorm:"column:generations_limit;not null;default:3" json:"generations_limit"`
	QuotaExhaustedAt *time.Time `gorm:"column:quota_exhausted_at" json:"quota_exhausted_at,omitempty"`
}

// TableName overrides default pluralised name.
func (DbUser) TableName() string {
	return "users"
}

func (u *DbUser) IsAdmin() bool {
	return u != nil && (u.Role == UserRoleAdmin || u.Role == UserRoleSuperAdmin)
}

func (u *DbUser) HasOwnCredential() bool {
	return u != nil && strings.TrimSpace(u.GeminiAPIKey) != ""
}

// UsageSnapshot 是账本在某一时刻的只读视图。
type UsageSnapshot struct {
	UserID        uint
	Used          int
	Limit         int
	OwnCredential string
	ExhaustedAt   *time.Time
}

func (s UsageSnapshot) HasOwnCredential() bool {
	return strings.TrimSpace(s.OwnCredential) != ""
}

// UserSummary is a lightweight user description returned to clients.
type UserSummary struct {
	ID          uint       `json:"id"`
	Email       string     `json:"email"`
	DisplayName string     `json:"display_name"`
	Role        string     `json:"role"`
	IsActive    bool       `json:"is_active"`
	Usage       UsageStats `json:"usage"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// UsageStats 面向客户端的免费额度统计。
type UsageStats struct {
	Used           int        `json:"used"`
	Limit          int        `json:"limit"`
	Remaining      int        `json:"remaining"`
	ExhaustedAt    *time.Time `json:"exhausted_at,omitempty"`
	HasOwnKey      bool       `json:"has_own_key"`
	OwnKeyHint     string     `json:"own_key_hint,omitempty"`
	CanUseFreeTier bool       `json:"can_use_free_tier"`
}

// UserQuery supports listing users with pagination.
type UserQuery struct {
	BaseParams
	Role    string `json:"role" form:"role" query:"role"`
	Keyword string `json:"keyword" form:"keyword" query:"keyword"`
}

// AuthStatusResponse indicates whether the system already has users.
type AuthStatusResponse struct {
	HasUser           bool `json:"has_user"`
	AllowRegistration bool `json:"allow_registration"`
}

type AuthLoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type AuthRegisterRequest struct {
	Email       string `json:"email" binding:"required,email"`
	Password    string `json:"password" binding:"required,min=8"`
	DisplayName string `json:"display_name"`
}

type AuthResponse struct {
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expires_at"`
	User      UserSummary `json:"user"`
}

type UserCreateRequest struct {
	Email            string `json:"email" binding:"required,email"`
	Password         string `json:"password" binding:"required,min=8"`
	DisplayName      string `json:"display_name"`
	Role             string `json:"role" binding:"required"`
	IsActive         *bool  `json:"is_active"`
	GenerationsLimit *int   `json:"generations_limit"`
}

type UserUpdateRequest struct {
	DisplayName      *string `json:"display_name,omitempty"`
	Role             *string `json:"role,omitempty"`
	Password         *string `json:"password,omitempty"`
	IsActive         *bool   `json:"is_active,omitempty"`
	GenerationsLimit *int    `json:"generations_limit,omitempty"`
	ResetUsage       bool    `json:"reset_usage,omitempty"`
}

type UserListResponse struct {
	Users []UserSummary `json:"users"`
	Meta  *Meta         `json:"meta"`
}

type OwnAPIKeyRequest struct {
	APIKey string `json:"api_key" binding:"required"`
}
