package service

import (
	"context"
	"errors"
	"fmt"

	"snapkit/internal/entity"
	"snapkit/internal/entity/converter"
	"snapkit/internal/model"
	"snapkit/internal/storage"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// HistoryStore 生成记录的读取与删除
type HistoryStore interface {
	ListGenerations(ctx context.Context, params *entity.GenerationQuery) ([]entity.DbGeneration, *entity.Meta, error)
	GetGeneration(ctx context.Context, id uint) (*entity.DbGeneration, error)
	DeleteGeneration(ctx context.Context, id, userID uint) (*entity.DbImage, error)
	DeleteUser(ctx context.Context, id uint) ([]entity.DbImage, error)
}

// Requester identifies who is asking for a record.
type Requester struct {
	UserID  uint
	IsAdmin bool
}

// HistoryService 用户生成历史的查询与删除，删除后尽力清理存储中的图片。
type HistoryService struct {
	store   HistoryStore
	storage storage.Storage
}

func NewHistoryService(store HistoryStore, objects storage.Storage) *HistoryService {
	return &HistoryService{store: store, storage: objects}
}

// List returns the user's generations newest first.
func (s *HistoryService) List(ctx context.Context, userID uint, params entity.BaseParams) (*entity.GenerationListResponse, error) {
	query := &entity.GenerationQuery{BaseParams: params, UserID: userID}
	generations, meta, err := s.store.ListGenerations(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: list generations: %v", ErrStorageUnavailable, err)
	}
	return &entity.GenerationListResponse{
		Generations: converter.GenerationsToItems(generations, s.storage.PublicURL),
		Meta:        meta,
	}, nil
}

func (s *HistoryService) Get(ctx context.Context, id uint, who Requester) (*entity.GenerationItem, error) {
	generation, err := s.store.GetGeneration(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("generation %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get generation: %v", ErrStorageUnavailable, err)
	}
	if generation.UserID != who.UserID && !who.IsAdmin {
		return nil, fmt.Errorf("generation %d: %w", id, ErrForbidden)
	}
	item := converter.GenerationToItem(generation, s.storage.PublicURL)
	return &item, nil
}

// Delete removes a record owned by userID. The stored image is deleted after
// the record; a storage failure is logged and not returned.
func (s *HistoryService) Delete(ctx context.Context, id, userID uint) error {
	image, err := s.store.DeleteGeneration(ctx, id, userID)
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("generation %d: %w", id, ErrNotFound)
	case errors.Is(err, model.ErrForbidden):
		return fmt.Errorf("generation %d: %w", id, ErrForbidden)
	case err != nil:
		return fmt.Errorf("%w: delete generation: %v", ErrStorageUnavailable, err)
	}

	if image != nil {
		s.deleteAssets(ctx, []entity.DbImage{*image})
	}
	logrus.WithFields(logrus.Fields{"generation_id": id, "user_id": userID}).Info("generation deleted")
	return nil
}

// DeleteAccount removes the user with all generations and images.
func (s *HistoryService) DeleteAccount(ctx context.Context, userID uint) error {
	images, err := s.store.DeleteUser(ctx, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("user %d: %w", userID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("%w: delete user: %v", ErrStorageUnavailable, err)
	}
	s.deleteAssets(ctx, images)
	logrus.WithFields(logrus.Fields{"user_id": userID, "images": len(images)}).Info("account deleted")
	return nil
}

func (s *HistoryService) deleteAssets(ctx context.Context, images []entity.DbImage) {
	if s.storage == nil {
		return
	}
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()
	for _, image := range images {
		if image.PublicID == "" {
			continue
		}
		if err := s.storage.Delete(cleanupCtx, image.PublicID); err != nil {
			logrus.WithError(err).WithFields(logrus.Fields{
				"image_id":  image.ID,
				"public_id": image.PublicID,
			}).Warn("failed to delete stored image, degraded path")
		}
	}
}
