package sql

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"snapkit/internal/entity"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LeaseNextPoolKey advances the shared cursor and returns the key it now points at.
// The cursor UPDATE holds a row lock until commit, so concurrent leases from any
// number of processes observe distinct positions.
func (r *GormRepository) LeaseNextPoolKey(ctx context.Context) (*entity.DbPoolKey, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}

	var leased *entity.DbPoolKey
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		position, err := advanceCursor(tx)
		if err != nil {
			return err
		}
		key, err := pickActiveKey(tx, position)
		if err != nil {
			return err
		}
		if err := markLeased(tx, key.ID); err != nil {
			return err
		}
		leased = key
		return nil
	})
	if err != nil {
		return nil, err
	}
	return leased, nil
}

// GetActivePoolKeyAt returns the active key for an externally advanced cursor position.
func (r *GormRepository) GetActivePoolKeyAt(ctx context.Context, position int64) (*entity.DbPoolKey, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	db := r.db.WithContext(ctx)
	key, err := pickActiveKey(db, position)
	if err != nil {
		return nil, err
	}
	if err := markLeased(db, key.ID); err != nil {
		return nil, err
	}
	return key, nil
}

// RecordPoolKeyRateLimited bumps the rate limit counter of a key.
func (r *GormRepository) RecordPoolKeyRateLimited(ctx context.Context, id uint) error {
	if err := r.ready(); err != nil {
		return err
	}
	return r.db.WithContext(ctx).Model(&entity.DbPoolKey{}).Where("id = ?", id).
		UpdateColumn("rate_limited_count", gorm.Expr("rate_limited_count + 1")).Error
}

func advanceCursor(tx *gorm.DB) (int64, error) {
	bump := func() (int64, error) {
		result := tx.Model(&entity.DbPoolCursor{}).Where("id = ?", entity.PoolCursorID).
			UpdateColumns(map[string]interface{}{
				"position":   gorm.Expr("position + 1"),
				"updated_at": time.Now(),
			})
		return result.RowsAffected, result.Error
	}

	affected, err := bump()
	if err != nil {
		return 0, fmt.Errorf("advance pool cursor: %w", err)
	}
	if affected == 0 {
		if err := EnsurePoolCursor(tx); err != nil {
			return 0, err
		}
		if _, err := bump(); err != nil {
			return 0, fmt.Errorf("advance pool cursor: %w", err)
		}
	}

	var cursor entity.DbPoolCursor
	if err := tx.Take(&cursor, entity.PoolCursorID).Error; err != nil {
		return 0, fmt.Errorf("read pool cursor: %w", err)
	}
	return cursor.Position, nil
}

// EnsurePoolCursor creates the cursor row if it does not exist yet.
func EnsurePoolCursor(db *gorm.DB) error {
	cursor := entity.DbPoolCursor{ID: entity.PoolCursorID, UpdatedAt: time.Now()}
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&cursor).Error; err != nil {
		return fmt.Errorf("create pool cursor: %w", err)
	}
	return nil
}

// pickActiveKey maps a 1-based cursor position onto the active keys ordered by id.
func pickActiveKey(db *gorm.DB, position int64) (*entity.DbPoolKey, error) {
	var total int64
	if err := db.Model(&entity.DbPoolKey{}).Where("is_active = ?", true).Count(&total).Error; err != nil {
		return nil, fmt.Errorf("count pool keys: %w", err)
	}
	if total == 0 {
		return nil, ErrPoolEmpty
	}

	offset := (position - 1) % total
	if offset < 0 {
		offset += total
	}

	var key entity.DbPoolKey
	err := db.Where("is_active = ?", true).Order("id ASC").Offset(int(offset)).Limit(1).Take(&key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		// 计数和读取之间密钥被停用
		return nil, ErrPoolEmpty
	}
	if err != nil {
		return nil, fmt.Errorf("load pool key: %w", err)
	}
	return &key, nil
}

func markLeased(db *gorm.DB, id uint) error {
	now := time.Now()
	err := db.Model(&entity.DbPoolKey{}).Where("id = ?", id).UpdateColumns(map[string]interface{}{
		"lease_count":    gorm.Expr("lease_count + 1"),
		"last_leased_at": now,
	}).Error
	if err != nil {
		return fmt.Errorf("record lease: %w", err)
	}
	return nil
}

// CreatePoolKey persists a new pool key.
func (r *GormRepository) CreatePoolKey(ctx context.Context, key *entity.DbPoolKey) error {
	if err := r.ready(); err != nil {
		return err
	}
	if key == nil || strings.TrimSpace(key.APIKey) == "" {
		return fmt.Errorf("pool key is empty")
	}
	key.APIKey = strings.TrimSpace(key.APIKey)
	return r.db.WithContext(ctx).Create(key).Error
}

// EnsurePoolKey inserts the key unless a row with the same secret exists.
func (r *GormRepository) EnsurePoolKey(ctx context.Context, key *entity.DbPoolKey) (bool, error) {
	if err := r.ready(); err != nil {
		return false, err
	}
	if key == nil || strings.TrimSpace(key.APIKey) == "" {
		return false, fmt.Errorf("pool key is empty")
	}
	key.APIKey = strings.TrimSpace(key.APIKey)
	result := r.db.WithContext(ctx).Where("api_key = ?", key.APIKey).FirstOrCreate(key)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// UpdatePoolKey applies partial updates to a pool key.
func (r *GormRepository) UpdatePoolKey(ctx context.Context, id uint, updates entity.PoolKeyUpdates) error {
	if err := r.ready(); err != nil {
		return err
	}
	return updateByID[entity.DbPoolKey](ctx, r.db, id, updates)
}

func (r *GormRepository) DeletePoolKey(ctx context.Context, id uint) error {
	if err := r.ready(); err != nil {
		return err
	}
	return deleteByID[entity.DbPoolKey](r.db.WithContext(ctx), id)
}

func (r *GormRepository) GetPoolKey(ctx context.Context, id uint) (*entity.DbPoolKey, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	return findByID[entity.DbPoolKey](ctx, r.db, id)
}

// ListPoolKeys returns pool keys ordered by id.
func (r *GormRepository) ListPoolKeys(ctx context.Context, includeInactive bool) ([]entity.DbPoolKey, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	query := r.db.WithContext(ctx).Model(&entity.DbPoolKey{})
	if !includeInactive {
		query = query.Where("is_active = ?", true)
	}
	var keys []entity.DbPoolKey
	if err := query.Order("id ASC").Find(&keys).Error; err != nil {
		return nil, err
	}
	return keys, nil
}
