package entity

import "time"

// DbPoolKey 管理员提供的共享生成密钥，参与轮询。
type DbPoolKey struct {
	ID               uint       `gorm:"primarykey" json:"id"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
	Name             string     `gorm:"column:name;type:varchar(100)" json:"name"`
	APIKey           string     `gorm:"column:api_key;type:varchar(512);uniqueIndex;not null" json:"-"`
	IsActive         bool       `gorm:"column:is_active;not null;index" json:"is_active"`
	LeaseCount       int64      `gorm:"column:lease_count;not null;default:0" json:"lease_count"`
	RateLimitedCount int64      `gorm:"column:rate_limited_count;not null;default:0" json:"rate_limited_count"`
	LastLeasedAt     *time.Time `gorm:"column:last_leased_at" json:"last_leased_at,omitempty"`
}

func (DbPoolKey) TableName() string {
	return "pool_keys"
}

// PoolCursorID is the primary key of the single cursor row.
const PoolCursorID = 1

// DbPoolCursor 全局轮询游标，只有一行。
type DbPoolCursor struct {
	ID        uint  `gorm:"primarykey"`
	Position  int64 `gorm:"column:position;not null;default:0"`
	UpdatedAt time.Time
}

func (DbPoolCursor) TableName() string {
	return "pool_cursor"
}

type PoolKeySummary struct {
	ID               uint       `json:"id"`
	Name             string     `json:"name"`
	KeyHint          string     `json:"key_hint"`
	IsActive         bool       `json:"is_active"`
	LeaseCount       int64      `json:"lease_count"`
	RateLimitedCount int64      `json:"rate_limited_count"`
	LastLeasedAt     *time.Time `json:"last_leased_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

type PoolKeyCreateRequest struct {
	Name     string `json:"name"`
	APIKey   string `json:"api_key" binding:"required"`
	IsActive *bool  `json:"is_active"`
}

type PoolKeyUpdateRequest struct {
	Name     *string `json:"name,omitempty"`
	APIKey   *string `json:"api_key,omitempty"`
	IsActive *bool   `json:"is_active,omitempty"`
}
