package sql

import (
	"context"
	"errors"
	"fmt"
	"time"

	"snapkit/internal/entity"

	"gorm.io/gorm"
)

// quota_exhausted_at 必须写在 generations_used 之前：MySQL 按顺序求值 SET，
// 后面的表达式会看到已更新的列值。
const incrementUsageSQL = `UPDATE users SET
	quota_exhausted_at = CASE WHEN quota_exhausted_at IS NULL AND generations_used + 1 >= generations_limit THEN ? ELSE quota_exhausted_at END,
	generations_used = generations_used + 1,
	updated_at = ?
	WHERE id = ?`

const strictUsageCondition = ` AND generations_used < generations_limit`

// GetUsageSnapshot reads the ledger row directly from the database.
func (r *GormRepository) GetUsageSnapshot(ctx context.Context, userID uint) (*entity.UsageSnapshot, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	if userID == 0 {
		return nil, fmt.Errorf("invalid user id")
	}
	var user entity.DbUser
	err := r.db.WithContext(ctx).
		Select("id", "generations_used", "generations_limit", "gemini_api_key", "quota_exhausted_at").
		First(&user, userID).Error
	if err != nil {
		return nil, err
	}
	return &entity.UsageSnapshot{
		UserID:        user.ID,
		Used:          user.GenerationsUsed,
		Limit:         user.GenerationsLimit,
		OwnCredential: user.GeminiAPIKey,
		ExhaustedAt:   user.QuotaExhaustedAt,
	}, nil
}

// IncrementGenerationsUsed atomically adds one generation to the ledger.
// With strict set the increment only applies while used < limit.
func (r *GormRepository) IncrementGenerationsUsed(ctx context.Context, userID uint, strict bool) error {
	if err := r.ready(); err != nil {
		return err
	}
	return incrementUsage(r.db.WithContext(ctx), userID, strict, time.Now())
}

func incrementUsage(db *gorm.DB, userID uint, strict bool, now time.Time) error {
	if userID == 0 {
		return fmt.Errorf("invalid user id")
	}
	stmt := incrementUsageSQL
	if strict {
		stmt += strictUsageCondition
	}
	result := db.Exec(stmt, now, now, userID)
	if result.Error != nil {
		return fmt.Errorf("increment usage: %w", result.Error)
	}
	if result.RowsAffected > 0 {
		return nil
	}
	if !strict {
		return gorm.ErrRecordNotFound
	}

	var count int64
	if err := db.Model(&entity.DbUser{}).Where("id = ?", userID).Count(&count).Error; err != nil {
		return fmt.Errorf("check user: %w", err)
	}
	if count == 0 {
		return gorm.ErrRecordNotFound
	}
	return ErrQuotaExhausted
}

// IsNotFound reports whether err means the row does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
