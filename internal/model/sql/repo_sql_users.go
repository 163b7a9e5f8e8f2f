package sql

import (
	"context"
	"fmt"
	"strings"

	"snapkit/internal/entity"

	"gorm.io/gorm"
)

func (r *GormRepository) CreateUser(ctx context.Context, user *entity.DbUser) error {
	if err := r.ready(); err != nil {
		return err
	}
	if user == nil {
		return fmt.Errorf("user is nil")
	}
	return r.db.WithContext(ctx).Create(user).Error
}

// UpdateUser applies partial updates; a missing user yields gorm.ErrRecordNotFound.
func (r *GormRepository) UpdateUser(ctx context.Context, id uint, updates entity.UserUpdates) error {
	if err := r.ready(); err != nil {
		return err
	}
	return updateByID[entity.DbUser](ctx, r.db, id, updates)
}

// GetUserByEmail 忽略大小写匹配邮箱
func (r *GormRepository) GetUserByEmail(ctx context.Context, email string) (*entity.DbUser, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, gorm.ErrRecordNotFound
	}
	var user entity.DbUser
	if err := r.db.WithContext(ctx).Where("LOWER(email) = ?", email).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *GormRepository) GetUserByID(ctx context.Context, id uint) (*entity.DbUser, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	return findByID[entity.DbUser](ctx, r.db, id)
}

// ListUsers 按 id 倒序分页，Keyword 匹配邮箱或昵称
func (r *GormRepository) ListUsers(ctx context.Context, params *entity.UserQuery) ([]entity.DbUser, *entity.Meta, error) {
	if err := r.ready(); err != nil {
		return nil, nil, err
	}
	if params == nil {
		params = &entity.UserQuery{}
	}

	query := r.db.WithContext(ctx).Model(&entity.DbUser{})
	if role := strings.TrimSpace(params.Role); role != "" {
		query = query.Where("role = ?", role)
	}
	if keyword := strings.ToLower(strings.TrimSpace(params.Keyword)); keyword != "" {
		like := "%" + keyword + "%"
		query = query.Where("LOWER(email) LIKE ? OR LOWER(display_name) LIKE ?", like, like)
	}
	return findPage[entity.DbUser](query, params.BaseParams, "id DESC")
}

// DeleteUser removes a user together with its generations and images.
// The removed image rows are returned so the caller can release stored assets.
func (r *GormRepository) DeleteUser(ctx context.Context, id uint) ([]entity.DbImage, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	if id == 0 {
		return nil, fmt.Errorf("invalid user id")
	}

	var images []entity.DbImage
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := deleteByID[entity.DbUser](tx, id); err != nil {
			return err
		}
		if err := tx.Where("user_id = ?", id).Delete(&entity.DbGeneration{}).Error; err != nil {
			return fmt.Errorf("delete generations: %w", err)
		}
		if err := tx.Where("user_id = ?", id).Find(&images).Error; err != nil {
			return fmt.Errorf("load images: %w", err)
		}
		if err := tx.Where("user_id = ?", id).Delete(&entity.DbImage{}).Error; err != nil {
			return fmt.Errorf("delete images: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return images, nil
}

func (r *GormRepository) CountUsers(ctx context.Context) (int64, error) {
	if err := r.ready(); err != nil {
		return 0, err
	}
	var count int64
	err := r.db.WithContext(ctx).Model(&entity.DbUser{}).Count(&count).Error
	return count, err
}
