package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"snapkit/internal/entity"
	"snapkit/internal/llm"
	"snapkit/internal/model"
	"snapkit/internal/pool"
	"snapkit/internal/quota"
	"snapkit/internal/storage"
	"snapkit/internal/utils"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const (
	uploadCategory       = "uploads"
	defaultCommitTimeout = 10 * time.Second
	cleanupTimeout       = 15 * time.Second
)

// GenerationStore 生成流程依赖的账本与记录存储
type GenerationStore interface {
	GetUsageSnapshot(ctx context.Context, userID uint) (*entity.UsageSnapshot, error)
	CommitGeneration(ctx context.Context, commit *entity.GenerationCommit) (*entity.DbGeneration, error)
}

// CredentialPool is satisfied by *pool.Pool.
type CredentialPool interface {
	Lease(ctx context.Context) (pool.Lease, error)
	ReportRateLimited(ctx context.Context, keyID uint)
}

type GenerationOptions struct {
	MaxAttempts    int
	Backoff        time.Duration
	CallTimeout    time.Duration
	CommitTimeout  time.Duration
	StrictQuota    bool
	MaxUploadBytes int64
}

// DefaultGenerationOptions 三次尝试，间隔 300ms，单次调用 60s
func DefaultGenerationOptions() GenerationOptions {
	return GenerationOptions{
		MaxAttempts:    3,
		Backoff:        300 * time.Millisecond,
		CallTimeout:    60 * time.Second,
		CommitTimeout:  defaultCommitTimeout,
		MaxUploadBytes: 10 << 20,
	}
}

// GenerationService 生成准入与密钥轮换控制器
type GenerationService struct {
	store     GenerationStore
	pool      CredentialPool
	generator llm.Generator
	storage   storage.Storage
	opts      GenerationOptions

	sleep func(ctx context.Context, d time.Duration) error
}

// NewGenerationService 创建生成服务实例
func NewGenerationService(store GenerationStore, credentials CredentialPool, generator llm.Generator, objects storage.Storage, opts GenerationOptions) *GenerationService {
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	if opts.CommitTimeout <= 0 {
		opts.CommitTimeout = defaultCommitTimeout
	}
	return &GenerationService{
		store:     store,
		pool:      credentials,
		generator: generator,
		storage:   objects,
		opts:      opts,
		sleep:     sleepContext,
	}
}

type GenerateInput struct {
	UserID uint
	Image  []byte
	Config entity.SocialKitConfig
}

type GenerateOutput struct {
	Generation *entity.DbGeneration
	Source     string
	Attempts   int
	// FreeGenerationsRemaining 提交后重新读取，读取失败时为 nil
	FreeGenerationsRemaining *int
}

// Generate runs admission, the external call with key rotation, and the commit.
// Nothing is written to the ledger or the record store unless the external call
// succeeded, and both writes land in one transaction.
func (s *GenerationService) Generate(ctx context.Context, in GenerateInput) (*GenerateOutput, error) {
	mimeType, err := s.validateImage(in.Image)
	if err != nil {
		return nil, err
	}
	cfg := in.Config
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, invalidInput("%v", err)
	}

	snapshot, err := s.store.GetUsageSnapshot(ctx, in.UserID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("user %d: %w", in.UserID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read usage: %v", ErrStorageUnavailable, err)
	}

	decision := quota.Decide(quota.FromUsage(*snapshot))
	logger := logrus.WithContext(ctx).WithFields(logrus.Fields{
		"user_id":  in.UserID,
		"decision": decision.String(),
		"used":     snapshot.Used,
		"limit":    snapshot.Limit,
	})
	if decision == quota.Deny {
		logger.Info("generation denied, free tier exhausted")
		return nil, &QuotaError{Used: snapshot.Used, Limit: snapshot.Limit}
	}

	key, err := s.storage.Save(ctx, in.Image, storage.SaveOptions{
		Category:    uploadCategory,
		Extension:   utils.ExtensionFromMime(mimeType),
		BaseName:    utils.GenerateUUID(),
		ContentType: mimeType,
	})
	if err != nil {
		logger.WithError(err).Error("failed to upload source image")
		return nil, &GenerationError{Kind: ErrStorageUnavailable, Err: err}
	}

	image := llm.ImageInput{Data: in.Image, MimeType: mimeType}
	var (
		result    *entity.SocialKitResult
		source    string
		poolKeyID uint
		attempts  int
	)
	switch decision {
	case quota.UseOwn:
		source = entity.CredentialSourceOwn
		attempts = 1
		result, err = s.generateWithOwnKey(ctx, in.UserID, snapshot.OwnCredential, image, cfg)
	default:
		source = entity.CredentialSourcePool
		result, poolKeyID, attempts, err = s.generateWithPool(ctx, in.UserID, image, cfg)
	}
	if err != nil {
		s.discardUpload(ctx, key)
		return nil, err
	}

	commit := &entity.GenerationCommit{
		Image: entity.DbImage{
			UserID:    in.UserID,
			URL:       s.storage.PublicURL(key),
			PublicID:  key,
			MimeType:  mimeType,
			SizeBytes: int64(len(in.Image)),
		},
		Generation: entity.DbGeneration{
			UserID:           in.UserID,
			Inputs:           cfg,
			Results:          *result,
			CredentialSource: source,
			Attempts:         attempts,
		},
		ChargeQuota: decision == quota.UsePool,
		StrictQuota: s.opts.StrictQuota,
	}
	if poolKeyID != 0 {
		id := poolKeyID
		commit.Generation.PoolKeyID = &id
	}

	// 外部调用已完成，提交不再受客户端取消影响
	commitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.CommitTimeout)
	defer cancel()
	generation, err := s.store.CommitGeneration(commitCtx, commit)
	if err != nil {
		s.discardUpload(ctx, key)
		if errors.Is(err, model.ErrQuotaExhausted) {
			logger.Info("free tier exhausted by a concurrent generation")
			return nil, &QuotaError{Used: snapshot.Limit, Limit: snapshot.Limit}
		}
		logger.WithError(err).Error("failed to commit generation")
		return nil, &GenerationError{Kind: ErrStorageUnavailable, Source: source, Attempts: attempts, PoolKeyID: poolKeyID, Err: err}
	}

	logger.WithFields(logrus.Fields{
		"generation_id": generation.ID,
		"source":        source,
		"attempts":      attempts,
		"pool_key_id":   poolKeyID,
	}).Info("generation committed")

	return &GenerateOutput{
		Generation:               generation,
		Source:                   source,
		Attempts:                 attempts,
		FreeGenerationsRemaining: s.remaining(commitCtx, in.UserID),
	}, nil
}

func (s *GenerationService) validateImage(data []byte) (string, error) {
	if len(data) == 0 {
		return "", invalidInput("image is required")
	}
	if s.opts.MaxUploadBytes > 0 && int64(len(data)) > s.opts.MaxUploadBytes {
		return "", invalidInput("image exceeds %d bytes", s.opts.MaxUploadBytes)
	}
	mimeType := utils.DetectImageMime(data)
	if !utils.IsSupportedImageMime(mimeType) {
		return "", invalidInput("unsupported image type %q", mimeType)
	}
	return mimeType, nil
}

// generateWithOwnKey makes exactly one call. Failures on a user's own key are
// never retried and never touch the pool.
func (s *GenerationService) generateWithOwnKey(ctx context.Context, userID uint, credential string, image llm.ImageInput, cfg entity.SocialKitConfig) (*entity.SocialKitResult, error) {
	result, err := s.call(ctx, credential, image, cfg)
	if err == nil {
		return result, nil
	}
	kind := llm.Classify(err)
	logrus.WithContext(ctx).WithError(err).WithFields(logrus.Fields{
		"user_id":        userID,
		"source":         entity.CredentialSourceOwn,
		"attempt":        1,
		"classification": kind.String(),
	}).Warn("generation attempt failed")
	return nil, &GenerationError{Kind: failureSentinel(kind), Source: entity.CredentialSourceOwn, Attempts: 1, Err: err}
}

// generateWithPool leases a fresh key for every attempt. Only rate limit
// failures are retried, at most MaxAttempts times in total.
func (s *GenerationService) generateWithPool(ctx context.Context, userID uint, image llm.ImageInput, cfg entity.SocialKitConfig) (*entity.SocialKitResult, uint, int, error) {
	var (
		lastErr error
		lastKey uint
	)
	for attempt := 1; attempt <= s.opts.MaxAttempts; attempt++ {
		lease, err := s.pool.Lease(ctx)
		if err != nil {
			genErr := &GenerationError{Kind: ErrStorageUnavailable, Source: entity.CredentialSourcePool, Attempts: attempt - 1, PoolKeyID: lastKey, Err: err}
			if errors.Is(err, pool.ErrExhausted) {
				genErr.Kind = ErrPoolExhausted
				genErr.Err = nil
			}
			logrus.WithContext(ctx).WithError(err).WithField("user_id", userID).Error("failed to lease pool key")
			return nil, 0, attempt - 1, genErr
		}

		result, err := s.call(ctx, lease.Credential, image, cfg)
		if err == nil {
			return result, lease.KeyID, attempt, nil
		}

		kind := llm.Classify(err)
		logrus.WithContext(ctx).WithError(err).WithFields(logrus.Fields{
			"user_id":        userID,
			"source":         entity.CredentialSourcePool,
			"pool_key_id":    lease.KeyID,
			"attempt":        attempt,
			"classification": kind.String(),
		}).Warn("generation attempt failed")

		if kind != llm.FailureRateLimited {
			return nil, lease.KeyID, attempt, &GenerationError{Kind: ErrUpstreamFailure, Source: entity.CredentialSourcePool, Attempts: attempt, PoolKeyID: lease.KeyID, Err: err}
		}
		s.pool.ReportRateLimited(ctx, lease.KeyID)
		lastErr, lastKey = err, lease.KeyID

		if attempt < s.opts.MaxAttempts {
			if err := s.sleep(ctx, s.opts.Backoff); err != nil {
				return nil, lastKey, attempt, &GenerationError{Kind: ErrUpstreamFailure, Source: entity.CredentialSourcePool, Attempts: attempt, PoolKeyID: lastKey, Err: err}
			}
		}
	}
	return nil, lastKey, s.opts.MaxAttempts, &GenerationError{
		Kind:      ErrRateLimited,
		Source:    entity.CredentialSourcePool,
		Attempts:  s.opts.MaxAttempts,
		PoolKeyID: lastKey,
		Err:       lastErr,
	}
}

func (s *GenerationService) call(ctx context.Context, credential string, image llm.ImageInput, cfg entity.SocialKitConfig) (*entity.SocialKitResult, error) {
	callCtx := ctx
	if s.opts.CallTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, s.opts.CallTimeout)
		defer cancel()
	}
	return s.generator.Generate(callCtx, credential, image, cfg)
}

// discardUpload 尽力删除已上传但未入库的图片
func (s *GenerationService) discardUpload(ctx context.Context, key string) {
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()
	if err := s.storage.Delete(cleanupCtx, key); err != nil {
		logrus.WithError(err).WithField("public_id", key).Warn("failed to delete orphaned upload, degraded path")
	}
}

func (s *GenerationService) remaining(ctx context.Context, userID uint) *int {
	snapshot, err := s.store.GetUsageSnapshot(ctx, userID)
	if err != nil {
		logrus.WithError(err).WithField("user_id", userID).Warn("failed to re-read usage after commit")
		return nil
	}
	left := quota.FromUsage(*snapshot).Remaining()
	return &left
}

func failureSentinel(kind llm.FailureKind) error {
	if kind == llm.FailureRateLimited {
		return ErrRateLimited
	}
	return ErrUpstreamFailure
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
