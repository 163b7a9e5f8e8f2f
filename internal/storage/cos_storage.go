package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"snapkit/internal/config"

	"github.com/tencentyun/cos-go-sdk-v5"
)

type cosStorage struct {
	publicURLBuilder
	keys   objectKeys
	client *cos.Client
}

// NewCOSStorage opens a Tencent COS bucket addressed by its bucket URL.
func NewCOSStorage(cfg config.Config, urls publicURLBuilder) (Storage, error) {
	raw := strings.TrimSpace(cfg.StorageCOSBucketURL)
	if raw == "" {
		return nil, errors.New("storage: missing COS bucket URL")
	}
	bucketURL, err := url.Parse(raw)
	if err != nil || bucketURL.Host == "" {
		return nil, fmt.Errorf("storage: invalid COS bucket URL %q", raw)
	}
	id := strings.TrimSpace(cfg.StorageCOSSecretID)
	secret := strings.TrimSpace(cfg.StorageCOSSecretKey)
	if id == "" || secret == "" {
		return nil, errors.New("storage: missing COS credentials")
	}

	httpClient := &http.Client{Transport: &cos.AuthorizationTransport{SecretID: id, SecretKey: secret}}
	return &cosStorage{
		publicURLBuilder: urls,
		keys:             newObjectKeys(cfg.StorageCOSPrefix),
		client:           cos.NewClient(&cos.BaseURL{BucketURL: bucketURL}, httpClient),
	}, nil
}

func (s *cosStorage) Save(ctx context.Context, data []byte, opts SaveOptions) (string, error) {
	if err := checkSave(ctx, data); err != nil {
		return "", err
	}
	key := s.keys.build(opts)
	resp, err := s.client.Object.Put(ctx, key, bytes.NewReader(data), &cos.ObjectPutOptions{
		ObjectPutHeaderOptions: &cos.ObjectPutHeaderOptions{
			ContentType:   contentTypeOf(opts),
			CacheControl:  immutableCacheControl,
			ContentLength: int64(len(data)),
		},
	})
	drainCOS(resp)
	if err != nil {
		return "", fmt.Errorf("put object: %w", err)
	}
	return key, nil
}

func (s *cosStorage) Delete(ctx context.Context, key string) error {
	key, err := normalizeKey(key)
	if err != nil {
		return err
	}
	resp, err := s.client.Object.Delete(ctx, key)
	drainCOS(resp)
	if err != nil && !cos.IsNotFoundError(err) {
		return fmt.Errorf("delete object: %w", err)
	}
	return nil
}

func drainCOS(resp *cos.Response) {
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
}

var _ Storage = (*cosStorage)(nil)
