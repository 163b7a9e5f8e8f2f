package storage

import (
	"context"
	"fmt"
	"strings"

	"snapkit/internal/config"
)

const (
	TypeLocal = "local"
	TypeS3    = "s3"
	TypeOSS   = "oss"
	TypeCOS   = "cos"
	TypeR2    = "r2"
)

// SaveOptions 控制对象 key 与元数据。
//
// Category 为 key 的第一段，Extension 不含前导点，BaseName 为空时使用时间戳。
// ContentType 为空时写入 application/octet-stream。
type SaveOptions struct {
	Category    string
	Extension   string
	BaseName    string
	ContentType string
}

// Storage 持久化上传的图片并返回对象 key。
// Delete 对不存在的对象返回 nil。
type Storage interface {
	Save(ctx context.Context, data []byte, opts SaveOptions) (string, error)
	Delete(ctx context.Context, key string) error
	PublicURL(key string) string
}

// LocalBaseDirProvider 由可直接通过 HTTP 静态目录提供文件的驱动实现。
type LocalBaseDirProvider interface {
	LocalBaseDir() string
}

// NewStorage 根据 STORAGE_TYPE 实例化存储后端。
func NewStorage(cfg config.Config) (Storage, error) {
	urls := publicURLBuilder{baseURL: cfg.StoragePublicBaseURL}
	switch strings.ToLower(strings.TrimSpace(cfg.StorageType)) {
	case "", TypeLocal:
		return NewLocalStorage(cfg.StorageLocalDir, cfg.StoragePublicBaseURL)
	case TypeS3:
		return NewS3Storage(s3TargetFromConfig(cfg), urls)
	case TypeR2:
		target, err := r2TargetFromConfig(cfg)
		if err != nil {
			return nil, err
		}
		return NewS3Storage(target, urls)
	case TypeOSS:
		return NewOSSStorage(cfg, urls)
	case TypeCOS:
		return NewCOSStorage(cfg, urls)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.StorageType)
	}
}

// publicURLBuilder 将对象 key 拼接到 STORAGE_PUBLIC_BASE_URL 之后
type publicURLBuilder struct {
	baseURL string
}

func (b publicURLBuilder) PublicURL(key string) string {
	key = strings.TrimLeft(strings.TrimSpace(key), "/")
	if key == "" {
		return ""
	}
	base := strings.TrimRight(strings.TrimSpace(b.baseURL), "/")
	if base == "" {
		return "/" + key
	}
	return base + "/" + key
}
