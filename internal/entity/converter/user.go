package converter

import (
	"snapkit/internal/entity"
	"snapkit/internal/utils"
)

// UserToSummary converts an entity.DbUser to entity.UserSummary.
func UserToSummary(u *entity.DbUser) entity.UserSummary {
	if u == nil {
		return entity.UserSummary{}
	}
	return entity.UserSummary{
		ID:          u.ID,
		Email:       u.Email,
		DisplayName: u.DisplayName,
		Role:        u.Role,
		IsActive:    u.IsActive,
		Usage:       UsageStatsFromUser(u),
		CreatedAt:   u.CreatedAt,
		UpdatedAt:   u.UpdatedAt,
	}
}

// UsersToSummaries converts a slice of entity.DbUser to entity.UserSummary.
func UsersToSummaries(users []entity.DbUser) []entity.UserSummary {
	summaries := make([]entity.UserSummary, len(users))
	for i := range users {
		summaries[i] = UserToSummary(&users[i])
	}
	return summaries
}

func UsageStatsFromUser(u *entity.DbUser) entity.UsageStats {
	if u == nil {
		return entity.UsageStats{}
	}
	return UsageStatsFromSnapshot(entity.UsageSnapshot{
		UserID:        u.ID,
		Used:          u.GenerationsUsed,
		Limit:         u.GenerationsLimit,
		OwnCredential: u.GeminiAPIKey,
		ExhaustedAt:   u.QuotaExhaustedAt,
	})
}

// UsageStatsFromSnapshot 计算剩余次数，剩余不会小于 0。
func UsageStatsFromSnapshot(s entity.UsageSnapshot) entity.UsageStats {
	remaining := s.Limit - s.Used
	if remaining < 0 {
		remaining = 0
	}
	stats := entity.UsageStats{
		Used:           s.Used,
		Limit:          s.Limit,
		Remaining:      remaining,
		ExhaustedAt:    s.ExhaustedAt,
		HasOwnKey:      s.HasOwnCredential(),
		CanUseFreeTier: remaining > 0,
	}
	if stats.HasOwnKey {
		stats.OwnKeyHint = utils.MaskSecret(s.OwnCredential)
	}
	return stats
}
