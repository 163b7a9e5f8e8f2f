package model

import (
	"context"

	"snapkit/internal/entity"
	"snapkit/internal/model/sql"
)

var (
	ErrPoolEmpty      = sql.ErrPoolEmpty
	ErrQuotaExhausted = sql.ErrQuotaExhausted
	ErrForbidden      = sql.ErrForbidden
)

// Repository 定义数据库操作接口
type Repository interface {
	// 用户管理
	CreateUser(ctx context.Context, user *entity.DbUser) error
	UpdateUser(ctx context.Context, id uint, updates entity.UserUpdates) error
	GetUserByEmail(ctx context.Context, email string) (*entity.DbUser, error)
	GetUserByID(ctx context.Context, id uint) (*entity.DbUser, error)
	ListUsers(ctx context.Context, params *entity.UserQuery) ([]entity.DbUser, *entity.Meta, error)
	DeleteUser(ctx context.Context, id uint) ([]entity.DbImage, error)
	CountUsers(ctx context.Context) (int64, error)

	// 免费额度账本
	GetUsageSnapshot(ctx context.Context, userID uint) (*entity.UsageSnapshot, error)
	IncrementGenerationsUsed(ctx context.Context, userID uint, strict bool) error

	// 密钥池
	LeaseNextPoolKey(ctx context.Context) (*entity.DbPoolKey, error)
	GetActivePoolKeyAt(ctx context.Context, position int64) (*entity.DbPoolKey, error)
	RecordPoolKeyRateLimited(ctx context.Context, id uint) error
	CreatePoolKey(ctx context.Context, key *entity.DbPoolKey) error
	EnsurePoolKey(ctx context.Context, key *entity.DbPoolKey) (bool, error)
	UpdatePoolKey(ctx context.Context, id uint, updates entity.PoolKeyUpdates) error
	DeletePoolKey(ctx context.Context, id uint) error
	GetPoolKey(ctx context.Context, id uint) (*entity.DbPoolKey, error)
	ListPoolKeys(ctx context.Context, includeInactive bool) ([]entity.DbPoolKey, error)

	// 生成记录
	CommitGeneration(ctx context.Context, commit *entity.GenerationCommit) (*entity.DbGeneration, error)
	ListGenerations(ctx context.Context, params *entity.GenerationQuery) ([]entity.DbGeneration, *entity.Meta, error)
	GetGeneration(ctx context.Context, id uint) (*entity.DbGeneration, error)
	DeleteGeneration(ctx context.Context, id, userID uint) (*entity.DbImage, error)
}

var _ Repository = (*sql.GormRepository)(nil)
