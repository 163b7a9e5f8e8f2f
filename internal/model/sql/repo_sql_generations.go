package sql

import (
	"context"
	"errors"
	"fmt"
	"time"

	"snapkit/internal/entity"

	"gorm.io/gorm"
)

// CommitGeneration stores the image, the generation record and, when requested,
// the ledger increment in a single transaction.
func (r *GormRepository) CommitGeneration(ctx context.Context, commit *entity.GenerationCommit) (*entity.DbGeneration, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	if commit == nil {
		return nil, fmt.Errorf("commit is nil")
	}
	if commit.Generation.UserID == 0 {
		return nil, fmt.Errorf("generation has no owner")
	}

	image := commit.Image
	generation := commit.Generation
	image.UserID = generation.UserID

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if commit.ChargeQuota {
			if err := incrementUsage(tx, generation.UserID, commit.StrictQuota, time.Now()); err != nil {
				return err
			}
		}
		if err := tx.Create(&image).Error; err != nil {
			return fmt.Errorf("insert image: %w", err)
		}
		generation.ImageID = image.ID
		generation.Image = nil
		if err := tx.Create(&generation).Error; err != nil {
			return fmt.Errorf("insert generation: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	generation.Image = &image
	return &generation, nil
}

// ListGenerations returns a user's generations, newest first.
func (r *GormRepository) ListGenerations(ctx context.Context, params *entity.GenerationQuery) ([]entity.DbGeneration, *entity.Meta, error) {
	if err := r.ready(); err != nil {
		return nil, nil, err
	}
	if params == nil || params.UserID == 0 {
		return nil, nil, fmt.Errorf("user is required")
	}

	query := r.db.WithContext(ctx).Model(&entity.DbGeneration{}).Where("user_id = ?", params.UserID)
	return findPage[entity.DbGeneration](query, params.BaseParams, "created_at DESC, id DESC", "Image")
}

// GetGeneration loads a generation with its image.
func (r *GormRepository) GetGeneration(ctx context.Context, id uint) (*entity.DbGeneration, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	generation, err := findByID[entity.DbGeneration](ctx, r.db, id, "Image")
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("load generation %d: %w", id, err)
	}
	return generation, err
}

// DeleteGeneration removes a generation owned by userID. When no other generation
// references its image, the image row is removed too and returned so the caller
// can delete the stored asset.
func (r *GormRepository) DeleteGeneration(ctx context.Context, id, userID uint) (*entity.DbImage, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	if id == 0 {
		return nil, gorm.ErrRecordNotFound
	}

	var orphan *entity.DbImage
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var generation entity.DbGeneration
		if err := tx.First(&generation, id).Error; err != nil {
			return err
		}
		if generation.UserID != userID {
			return ErrForbidden
		}
		if err := tx.Delete(&entity.DbGeneration{}, generation.ID).Error; err != nil {
			return fmt.Errorf("delete generation: %w", err)
		}

		var refs int64
		if err := tx.Model(&entity.DbGeneration{}).Where("image_id = ?", generation.ImageID).Count(&refs).Error; err != nil {
			return fmt.Errorf("count image references: %w", err)
		}
		if refs > 0 {
			return nil
		}

		var image entity.DbImage
		err := tx.First(&image, generation.ImageID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("load image: %w", err)
		}
		if err := tx.Delete(&entity.DbImage{}, image.ID).Error; err != nil {
			return fmt.Errorf("delete image: %w", err)
		}
		orphan = &image
		return nil
	})
	if err != nil {
		return nil, err
	}
	return orphan, nil
}
