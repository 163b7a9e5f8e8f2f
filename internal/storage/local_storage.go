package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// LocalStorage 把图片写到本地目录，由 HTTP 静态路由对外提供。
type LocalStorage struct {
	publicURLBuilder
	keys    objectKeys
	baseDir string
}

// NewLocalStorage creates the base directory when missing.
func NewLocalStorage(baseDir, publicBaseURL string) (*LocalStorage, error) {
	baseDir = strings.TrimSpace(baseDir)
	if baseDir == "" {
		baseDir = "datas/images"
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &LocalStorage{
		publicURLBuilder: publicURLBuilder{baseURL: publicBaseURL},
		keys:             newObjectKeys(""),
		baseDir:          baseDir,
	}, nil
}

func (s *LocalStorage) LocalBaseDir() string {
	return s.baseDir
}

func (s *LocalStorage) Save(ctx context.Context, data []byte, opts SaveOptions) (string, error) {
	if err := checkSave(ctx, data); err != nil {
		return "", err
	}

	key := s.keys.build(opts)
	target, err := s.resolve(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", fmt.Errorf("create dir: %w", err)
	}
	// 写临时文件后改名，读方不会看到半个文件
	tmp := target + ".part"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("write file: %w", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("rename file: %w", err)
	}
	return key, nil
}

func (s *LocalStorage) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	target, err := s.resolve(key)
	if err != nil {
		return err
	}
	if err := os.Remove(target); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove file: %w", err)
	}
	return nil
}

// resolve maps a key to a path under baseDir. Keys cannot escape it.
func (s *LocalStorage) resolve(key string) (string, error) {
	key, err := normalizeKey(key)
	if err != nil {
		return "", err
	}
	cleaned := strings.TrimPrefix(path.Clean("/"+key), "/")
	if cleaned == "" {
		return "", errEmptyKey
	}
	return filepath.Join(s.baseDir, filepath.FromSlash(cleaned)), nil
}

var (
	_ Storage              = (*LocalStorage)(nil)
	_ LocalBaseDirProvider = (*LocalStorage)(nil)
)
