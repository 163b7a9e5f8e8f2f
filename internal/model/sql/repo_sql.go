package sql

import (
	"context"
	"errors"
	"fmt"

	"snapkit/internal/entity"

	"gorm.io/gorm"
)

var (
	// ErrPoolEmpty 没有任何可用的池密钥
	ErrPoolEmpty = errors.New("no active pool keys")
	// ErrQuotaExhausted 严格模式下条件自增未命中
	ErrQuotaExhausted = errors.New("generation quota exhausted")
	// ErrForbidden 记录不属于请求用户
	ErrForbidden = errors.New("record belongs to another user")

	errNotInitialised = fmt.Errorf("repository not initialised")
)

// GormRepository implements Repository using GORM
type GormRepository struct {
	db *gorm.DB
}

// NewGormRepository creates a new repository instance
func NewGormRepository(db *gorm.DB) *GormRepository {
	return &GormRepository{db: db}
}

func (r *GormRepository) ready() error {
	if r == nil || r.db == nil {
		return errNotInitialised
	}
	return nil
}

// columnUpdates 由 entity.UserUpdates、entity.PoolKeyUpdates 实现
type columnUpdates interface {
	ToMap() map[string]interface{}
}

// findByID 加载单条记录，不存在时返回 gorm.ErrRecordNotFound
func findByID[T any](ctx context.Context, db *gorm.DB, id uint, preload ...string) (*T, error) {
	if id == 0 {
		return nil, gorm.ErrRecordNotFound
	}
	query := db.WithContext(ctx)
	for _, assoc := range preload {
		query = query.Preload(assoc)
	}
	var row T
	if err := query.First(&row, id).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

// updateByID 应用部分更新。值未变化时 RowsAffected 为 0，需要再确认记录是否存在。
func updateByID[T any](ctx context.Context, db *gorm.DB, id uint, updates columnUpdates) error {
	values := updates.ToMap()
	if len(values) == 0 {
		_, err := findByID[T](ctx, db, id)
		return err
	}
	if id == 0 {
		return gorm.ErrRecordNotFound
	}
	result := db.WithContext(ctx).Model(new(T)).Where("id = ?", id).Updates(values)
	if result.Error != nil || result.RowsAffected > 0 {
		return result.Error
	}
	var count int64
	if err := db.WithContext(ctx).Model(new(T)).Where("id = ?", id).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// deleteByID 删除单条记录，不存在时返回 gorm.ErrRecordNotFound
func deleteByID[T any](db *gorm.DB, id uint) error {
	result := db.Delete(new(T), id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// findPage 先计数再取当前页，page 与 pageSize 按 20/100 归一化。
// 关联在计数之后才预加载。
func findPage[T any](query *gorm.DB, params entity.BaseParams, order string, preload ...string) ([]T, *entity.Meta, error) {
	params.Normalize(20, 100)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, nil, err
	}
	for _, assoc := range preload {
		query = query.Preload(assoc)
	}
	var rows []T
	offset := int((params.Page - 1) * params.PageSize)
	if err := query.Order(order).Offset(offset).Limit(int(params.PageSize)).Find(&rows).Error; err != nil {
		return nil, nil, err
	}
	return rows, &entity.Meta{Total: total, Page: params.Page, PageSize: params.PageSize}, nil
}
