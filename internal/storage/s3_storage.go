package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"snapkit/internal/config"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// 对象 key 含随机名，内容不会变化
const immutableCacheControl = "public, max-age=31536000, immutable"

// s3Target 描述一个 S3 协议的存储桶，S3 与 R2 共用
type s3Target struct {
	Name            string
	Bucket          string
	Prefix          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	ForcePathStyle  bool
}

func s3TargetFromConfig(cfg config.Config) s3Target {
	return s3Target{
		Name:            "S3",
		Bucket:          cfg.StorageS3Bucket,
		Prefix:          cfg.StorageS3Prefix,
		Region:          cfg.StorageS3Region,
		Endpoint:        cfg.StorageS3Endpoint,
		AccessKeyID:     cfg.StorageS3AccessKeyID,
		SecretAccessKey: cfg.StorageS3SecretAccessKey,
		SessionToken:    cfg.StorageS3SessionToken,
		ForcePathStyle:  cfg.StorageS3ForcePathStyle,
	}
}

// r2TargetFromConfig 在未配置 endpoint 时由 account id 推出 R2 地址
func r2TargetFromConfig(cfg config.Config) (s3Target, error) {
	endpoint := strings.TrimSpace(cfg.StorageR2Endpoint)
	if endpoint == "" {
		accountID := strings.TrimSpace(cfg.StorageR2AccountID)
		if accountID == "" {
			return s3Target{}, errors.New("storage: missing R2 endpoint or account id")
		}
		endpoint = fmt.Sprintf("https://%s.r2.cloudflarestorage.com", accountID)
	}
	region := strings.TrimSpace(cfg.StorageR2Region)
	if region == "" {
		region = "auto"
	}
	return s3Target{
		Name:            "R2",
		Bucket:          cfg.StorageR2Bucket,
		Prefix:          cfg.StorageR2Prefix,
		Region:          region,
		Endpoint:        endpoint,
		AccessKeyID:     cfg.StorageR2AccessKeyID,
		SecretAccessKey: cfg.StorageR2SecretAccessKey,
		ForcePathStyle:  true,
	}, nil
}

func (t s3Target) validate() error {
	switch {
	case strings.TrimSpace(t.Bucket) == "":
		return fmt.Errorf("storage: missing %s bucket", t.Name)
	case strings.TrimSpace(t.Region) == "":
		return fmt.Errorf("storage: missing %s region", t.Name)
	case strings.TrimSpace(t.AccessKeyID) == "" || strings.TrimSpace(t.SecretAccessKey) == "":
		return fmt.Errorf("storage: missing %s credentials", t.Name)
	}
	return nil
}

type s3Storage struct {
	publicURLBuilder
	keys   objectKeys
	client *s3.Client
	bucket string
}

// NewS3Storage connects to an S3-compatible bucket.
func NewS3Storage(target s3Target, urls publicURLBuilder) (Storage, error) {
	if err := target.validate(); err != nil {
		return nil, err
	}

	awsCfg := aws.Config{
		Region: strings.TrimSpace(target.Region),
		Credentials: aws.NewCredentialsCache(credentials.NewStaticCredentialsProvider(
			strings.TrimSpace(target.AccessKeyID),
			strings.TrimSpace(target.SecretAccessKey),
			strings.TrimSpace(target.SessionToken),
		)),
	}
	endpoint := strings.TrimSpace(target.Endpoint)
	if endpoint != "" && !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		endpoint = "https://" + endpoint
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = target.ForcePathStyle
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})

	return &s3Storage{
		publicURLBuilder: urls,
		keys:             newObjectKeys(target.Prefix),
		client:           client,
		bucket:           strings.TrimSpace(target.Bucket),
	}, nil
}

func (s *s3Storage) Save(ctx context.Context, data []byte, opts SaveOptions) (string, error) {
	if err := checkSave(ctx, data); err != nil {
		return "", err
	}
	key := s.keys.build(opts)
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(contentTypeOf(opts)),
		CacheControl:  aws.String(immutableCacheControl),
	})
	if err != nil {
		return "", fmt.Errorf("put object: %w", err)
	}
	return key, nil
}

func (s *s3Storage) Delete(ctx context.Context, key string) error {
	key, err := normalizeKey(key)
	if err != nil {
		return err
	}
	_, err = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil && !isS3NotFound(err) {
		return fmt.Errorf("delete object: %w", err)
	}
	return nil
}

func isS3NotFound(err error) bool {
	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return true
	}
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch strings.ToLower(apiErr.ErrorCode()) {
		case "notfound", "nosuchkey":
			return true
		}
	}
	var respErr interface{ HTTPStatusCode() int }
	return errors.As(err, &respErr) && respErr.HTTPStatusCode() == http.StatusNotFound
}

var _ Storage = (*s3Storage)(nil)
