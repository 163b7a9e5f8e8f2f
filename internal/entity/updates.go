package entity

// UserUpdates 用户更新字段
type UserUpdates struct {
	DisplayName      *string
	Role             *string
	PasswordHash     *string
	IsActive         *bool
	GeminiAPIKey     *string
	GenerationsLimit *int
	// ResetUsage 清零已用次数并清除耗尽时间
	ResetUsage bool
}

// ToMap 转换为 GORM 更新 map（内部使用）
func (u UserUpdates) ToMap() map[string]interface{} {
	updates := make(map[string]interface{})
	if u.DisplayName != nil {
		updates["display_name"] = *u.DisplayName
	}
	if u.Role != nil {
		updates["role"] = *u.Role
	}
	if u.PasswordHash != nil {
		updates["password_hash"] = *u.PasswordHash
	}
	if u.IsActive != nil {
		updates["is_active"] = *u.IsActive
	}
	if u.GeminiAPIKey != nil {
		updates["gemini_api_key"] = *u.GeminiAPIKey
	}
	if u.GenerationsLimit != nil {
		updates["generations_limit"] = *u.GenerationsLimit
	}
	if u.ResetUsage {
		updates["generations_used"] = 0
		updates["quota_exhausted_at"] = nil
	}
	return updates
}

// IsEmpty 检查是否没有任何更新字段
func (u UserUpdates) IsEmpty() bool {
	return len(u.ToMap()) == 0
}

// PoolKeyUpdates 密钥池条目更新字段
type PoolKeyUpdates struct {
	Name     *string
	APIKey   *string
	IsActive *bool
}

// ToMap 转换为 GORM 更新 map（内部使用）
func (u PoolKeyUpdates) ToMap() map[string]interface{} {
	updates := make(map[string]interface{})
	if u.Name != nil {
		updates["name"] = *u.Name
	}
	if u.APIKey != nil {
		updates["api_key"] = *u.APIKey
	}
	if u.IsActive != nil {
		updates["is_active"] = *u.IsActive
	}
	return updates
}

// IsEmpty 检查是否没有任何更新字段
func (u PoolKeyUpdates) IsEmpty() bool {
	return len(u.ToMap()) == 0
}
