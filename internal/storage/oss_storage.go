package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"snapkit/internal/config"

	"github.com/aliyun/aliyun-oss-go-sdk/oss"
)

type ossStorage struct {
	publicURLBuilder
	keys   objectKeys
	bucket *oss.Bucket
}

// NewOSSStorage opens an Aliyun OSS bucket.
func NewOSSStorage(cfg config.Config, urls publicURLBuilder) (Storage, error) {
	var (
		endpoint = strings.TrimSpace(cfg.StorageOSSEndpoint)
		name     = strings.TrimSpace(cfg.StorageOSSBucket)
		id       = strings.TrimSpace(cfg.StorageOSSAccessKeyID)
		secret   = strings.TrimSpace(cfg.StorageOSSAccessKeySecret)
	)
	switch {
	case endpoint == "":
		return nil, errors.New("storage: missing OSS endpoint")
	case name == "":
		return nil, errors.New("storage: missing OSS bucket")
	case id == "" || secret == "":
		return nil, errors.New("storage: missing OSS credentials")
	}

	client, err := oss.New(endpoint, id, secret)
	if err != nil {
		return nil, fmt.Errorf("storage: OSS client: %w", err)
	}
	bucket, err := client.Bucket(name)
	if err != nil {
		return nil, fmt.Errorf("storage: OSS bucket %q: %w", name, err)
	}
	return &ossStorage{
		publicURLBuilder: urls,
		keys:             newObjectKeys(cfg.StorageOSSPrefix),
		bucket:           bucket,
	}, nil
}

func (s *ossStorage) Save(ctx context.Context, data []byte, opts SaveOptions) (string, error) {
	if err := checkSave(ctx, data); err != nil {
		return "", err
	}
	key := s.keys.build(opts)
	err := s.bucket.PutObject(key, bytes.NewReader(data),
		oss.WithContext(ctx),
		oss.ContentType(contentTypeOf(opts)),
		oss.CacheControl(immutableCacheControl),
	)
	if err != nil {
		return "", fmt.Errorf("put object: %w", err)
	}
	return key, nil
}

// Delete is idempotent; OSS answers 204 for missing keys.
func (s *ossStorage) Delete(ctx context.Context, key string) error {
	key, err := normalizeKey(key)
	if err != nil {
		return err
	}
	if err := s.bucket.DeleteObject(key, oss.WithContext(ctx)); err != nil {
		return fmt.Errorf("delete object: %w", err)
	}
	return nil
}

var _ Storage = (*ossStorage)(nil)
