package converter

import (
	"snapkit/internal/entity"
	"snapkit/internal/utils"
)

// PoolKeyToSummary 只暴露密钥尾号。
func PoolKeyToSummary(k *entity.DbPoolKey) entity.PoolKeySummary {
	if k == nil {
		return entity.PoolKeySummary{}
	}
	return entity.PoolKeySummary{
		ID:               k.ID,
		Name:             k.Name,
		KeyHint:          utils.MaskSecret(k.APIKey),
		IsActive:         k.IsActive,
		LeaseCount:       k.LeaseCount,
		RateLimitedCount: k.RateLimitedCount,
		LastLeasedAt:     k.LastLeasedAt,
		CreatedAt:        k.CreatedAt,
		UpdatedAt:        k.UpdatedAt,
	}
}

func PoolKeysToSummaries(keys []entity.DbPoolKey) []entity.PoolKeySummary {
	out := make([]entity.PoolKeySummary, len(keys))
	for i := range keys {
		out[i] = PoolKeyToSummary(&keys[i])
	}
	return out
}
