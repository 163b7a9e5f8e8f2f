package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"snapkit/internal/entity"
	"snapkit/internal/llm"
	"snapkit/internal/model"
	"snapkit/internal/pool"
	"snapkit/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var jpegBytes = []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00}

func sampleResult() *entity.SocialKitResult {
	return &entity.SocialKitResult{
		Analysis: entity.ImageAnalysis{Summary: "a cat", Mood: "calm"},
		Captions: []entity.CaptionVariation{{Platform: "Instagram", Text: "meow"}},
		Hashtags: []entity.HashtagSet{{Category: entity.HashtagCategoryReach, Tags: []string{"#cat"}}},
		Scripts: entity.VideoScripts{
			TikTok: entity.VideoScript{Title: "cat"},
			Shorts: entity.VideoScript{Title: "cat"},
		},
		LinkedInPost:  "cats at work",
		TwitterThread: []string{"1/ cat"},
	}
}

// fakeLedger keeps a single user's ledger and the committed records in memory.
type fakeLedger struct {
	mu          sync.Mutex
	snapshot    entity.UsageSnapshot
	snapshotErr error
	commitErr   error
	commits     []*entity.GenerationCommit
	nextID      uint
}

func (f *fakeLedger) GetUsageSnapshot(_ context.Context, userID uint) (*entity.UsageSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.snapshotErr != nil {
		return nil, f.snapshotErr
	}
	snap := f.snapshot
	snap.UserID = userID
	return &snap, nil
}

func (f *fakeLedger) CommitGeneration(ctx context.Context, commit *entity.GenerationCommit) (*entity.DbGeneration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.commitErr != nil {
		return nil, f.commitErr
	}
	if commit.ChargeQuota {
		if commit.StrictQuota && f.snapshot.Used >= f.snapshot.Limit {
			return nil, model.ErrQuotaExhausted
		}
		f.snapshot.Used++
	}
	f.commits = append(f.commits, commit)
	f.nextID++
	generation := commit.Generation
	generation.ID = f.nextID
	image := commit.Image
	generation.Image = &image
	return &generation, nil
}

type fakePool struct {
	mu          sync.Mutex
	keys        []pool.Lease
	next        int
	leases      []uint
	rateLimited []uint
	leaseErr    error
}

func newFakePool(n int) *fakePool {
	p := &fakePool{}
	for i := 1; i <= n; i++ {
		p.keys = append(p.keys, pool.Lease{KeyID: uint(i), Credential: fmt.Sprintf("pool-key-%d", i)})
	}
	return p
}

func (p *fakePool) Lease(context.Context) (pool.Lease, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.leaseErr != nil {
		return pool.Lease{}, p.leaseErr
	}
	if len(p.keys) == 0 {
		return pool.Lease{}, pool.ErrExhausted
	}
	lease := p.keys[p.next%len(p.keys)]
	p.next++
	p.leases = append(p.leases, lease.KeyID)
	return lease, nil
}

func (p *fakePool) ReportRateLimited(_ context.Context, keyID uint) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rateLimited = append(p.rateLimited, keyID)
}

// scriptedGenerator returns the scripted errors in order, then succeeds.
type scriptedGenerator struct {
	mu          sync.Mutex
	errs        []error
	credentials []string
}

func (g *scriptedGenerator) Generate(ctx context.Context, credential string, _ llm.ImageInput, _ entity.SocialKitConfig) (*entity.SocialKitResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.credentials = append(g.credentials, credential)
	if len(g.errs) > 0 {
		err := g.errs[0]
		g.errs = g.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	return sampleResult(), nil
}

func (g *scriptedGenerator) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.credentials)
}

type memStorage struct {
	mu        sync.Mutex
	objects   map[string][]byte
	saveErr   error
	deleteErr error
	deleted   []string
}

func newMemStorage() *memStorage {
	return &memStorage{objects: map[string][]byte{}}
}

func (m *memStorage) Save(_ context.Context, data []byte, opts storage.SaveOptions) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return "", m.saveErr
	}
	key := fmt.Sprintf("%s/%s.%s", opts.Category, opts.BaseName, opts.Extension)
	m.objects[key] = data
	return key, nil
}

func (m *memStorage) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, key)
	if m.deleteErr != nil {
		return m.deleteErr
	}
	delete(m.objects, key)
	return nil
}

func (m *memStorage) PublicURL(key string) string {
	return "/files/" + key
}

func (m *memStorage) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}

func rateLimitErr() error {
	return &llm.UpstreamError{Provider: "test", StatusCode: 429, Message: "RESOURCE_EXHAUSTED"}
}

type harness struct {
	ledger  *fakeLedger
	pool    *fakePool
	gen     *scriptedGenerator
	storage *memStorage
	sleeps  []time.Duration
	svc     *GenerationService
}

func newHarness(t *testing.T, snapshot entity.UsageSnapshot, poolSize int, errs ...error) *harness {
	t.Helper()
	h := &harness{
		ledger:  &fakeLedger{snapshot: snapshot},
		pool:    newFakePool(poolSize),
		gen:     &scriptedGenerator{errs: errs},
		storage: newMemStorage(),
	}
	opts := DefaultGenerationOptions()
	opts.CallTimeout = time.Second
	h.svc = NewGenerationService(h.ledger, h.pool, h.gen, h.storage, opts)
	h.svc.sleep = func(ctx context.Context, d time.Duration) error {
		h.sleeps = append(h.sleeps, d)
		return ctx.Err()
	}
	return h
}

func input() GenerateInput {
	return GenerateInput{UserID: 7, Image: jpegBytes, Config: entity.SocialKitConfig{}}
}

func TestGenerateUsesPoolAndChargesOnce(t *testing.T) {
	h := newHarness(t, entity.UsageSnapshot{Used: 0, Limit: 3}, 3)

	out, err := h.svc.Generate(context.Background(), input())
	require.NoError(t, err)

	assert.Equal(t, entity.CredentialSourcePool, out.Source)
	assert.Equal(t, 1, out.Attempts)
	require.NotNil(t, out.FreeGenerationsRemaining)
	assert.Equal(t, 2, *out.FreeGenerationsRemaining)
	require.Len(t, h.ledger.commits, 1)
	commit := h.ledger.commits[0]
	assert.True(t, commit.ChargeQuota)
	require.NotNil(t, commit.Generation.PoolKeyID)
	assert.Equal(t, uint(1), *commit.Generation.PoolKeyID)
	assert.Equal(t, entity.TonePlayful, commit.Generation.Inputs.Tone)
	assert.Equal(t, "image/jpeg", commit.Image.MimeType)
	assert.Equal(t, "/files/"+commit.Image.PublicID, commit.Image.URL)
	assert.Equal(t, 1, h.storage.count())
}

func TestGenerateRotatesKeysOnRateLimit(t *testing.T) {
	h := newHarness(t, entity.UsageSnapshot{Used: 0, Limit: 3}, 3, rateLimitErr(), rateLimitErr())

	out, err := h.svc.Generate(context.Background(), input())
	require.NoError(t, err)

	assert.Equal(t, 3, out.Attempts)
	assert.Equal(t, []string{"pool-key-1", "pool-key-2", "pool-key-3"}, h.gen.credentials)
	assert.Equal(t, []uint{1, 2}, h.pool.rateLimited)
	assert.Equal(t, []time.Duration{300 * time.Millisecond, 300 * time.Millisecond}, h.sleeps)
	require.Len(t, h.ledger.commits, 1)
	assert.Equal(t, uint(3), *h.ledger.commits[0].Generation.PoolKeyID)
	assert.Equal(t, 3, h.ledger.commits[0].Generation.Attempts)
	assert.Equal(t, 1, h.ledger.snapshot.Used)
}

func TestGenerateStopsAfterMaxAttempts(t *testing.T) {
	h := newHarness(t, entity.UsageSnapshot{Used: 1, Limit: 3}, 5, rateLimitErr(), rateLimitErr(), rateLimitErr(), rateLimitErr())

	_, err := h.svc.Generate(context.Background(), input())
	require.Error(t, err)

	assert.ErrorIs(t, err, ErrRateLimited)
	var genErr *GenerationError
	require.ErrorAs(t, err, &genErr)
	assert.Equal(t, 3, genErr.Attempts)
	assert.Equal(t, uint(3), genErr.PoolKeyID)
	assert.Equal(t, 3, h.gen.calls())
	assert.Len(t, h.sleeps, 2)
	assert.Empty(t, h.ledger.commits)
	assert.Equal(t, 1, h.ledger.snapshot.Used)
	assert.Equal(t, 0, h.storage.count(), "upload is cleaned up")
}

func TestGenerateDoesNotRetryOtherFailures(t *testing.T) {
	h := newHarness(t, entity.UsageSnapshot{Used: 0, Limit: 3}, 3,
		&llm.UpstreamError{Provider: "test", StatusCode: 400, Message: "invalid image"})

	_, err := h.svc.Generate(context.Background(), input())
	assert.ErrorIs(t, err, ErrUpstreamFailure)
	assert.Equal(t, 1, h.gen.calls())
	assert.Empty(t, h.pool.rateLimited)
	assert.Empty(t, h.sleeps)
	assert.Empty(t, h.ledger.commits)
}

func TestGenerateTimeoutIsNotRetried(t *testing.T) {
	h := newHarness(t, entity.UsageSnapshot{Used: 0, Limit: 3}, 3)
	h.svc.opts.CallTimeout = 20 * time.Millisecond
	h.svc.generator = llm.GeneratorFunc(func(ctx context.Context, _ string, _ llm.ImageInput, _ entity.SocialKitConfig) (*entity.SocialKitResult, error) {
		<-ctx.Done()
		return nil, fmt.Errorf("send request: %w", ctx.Err())
	})

	_, err := h.svc.Generate(context.Background(), input())
	assert.ErrorIs(t, err, ErrUpstreamFailure)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, []uint{1}, h.pool.leases)
}

func TestGenerateOwnKeyBypassesPoolAndQuota(t *testing.T) {
	h := newHarness(t, entity.UsageSnapshot{Used: 3, Limit: 3, OwnCredential: "user-key"}, 3)

	out, err := h.svc.Generate(context.Background(), input())
	require.NoError(t, err)

	assert.Equal(t, entity.CredentialSourceOwn, out.Source)
	assert.Equal(t, []string{"user-key"}, h.gen.credentials)
	assert.Empty(t, h.pool.leases)
	require.Len(t, h.ledger.commits, 1)
	assert.False(t, h.ledger.commits[0].ChargeQuota)
	assert.Nil(t, h.ledger.commits[0].Generation.PoolKeyID)
	assert.Equal(t, 3, h.ledger.snapshot.Used)
}

func TestGenerateOwnKeyNeverRetries(t *testing.T) {
	h := newHarness(t, entity.UsageSnapshot{Used: 0, Limit: 3, OwnCredential: "user-key"}, 3, rateLimitErr())

	_, err := h.svc.Generate(context.Background(), input())
	require.Error(t, err)

	assert.ErrorIs(t, err, ErrRateLimited)
	var genErr *GenerationError
	require.ErrorAs(t, err, &genErr)
	assert.Equal(t, entity.CredentialSourceOwn, genErr.Source)
	assert.Equal(t, 1, h.gen.calls())
	assert.Empty(t, h.pool.leases)
	assert.Empty(t, h.pool.rateLimited)
	assert.Empty(t, h.sleeps)
}

func TestGenerateDeniedWithoutSideEffects(t *testing.T) {
	h := newHarness(t, entity.UsageSnapshot{Used: 3, Limit: 3}, 3)

	_, err := h.svc.Generate(context.Background(), input())
	require.Error(t, err)

	assert.ErrorIs(t, err, ErrInsufficientQuota)
	var quotaErr *QuotaError
	require.ErrorAs(t, err, &quotaErr)
	assert.Equal(t, 3, quotaErr.Used)
	assert.Equal(t, 0, h.gen.calls())
	assert.Empty(t, h.pool.leases)
	assert.Equal(t, 0, h.storage.count())
	assert.Empty(t, h.ledger.commits)
}

func TestGenerateLastFreeGeneration(t *testing.T) {
	h := newHarness(t, entity.UsageSnapshot{Used: 2, Limit: 3}, 2)

	out, err := h.svc.Generate(context.Background(), input())
	require.NoError(t, err)
	require.NotNil(t, out.FreeGenerationsRemaining)
	assert.Equal(t, 0, *out.FreeGenerationsRemaining)

	_, err = h.svc.Generate(context.Background(), input())
	assert.ErrorIs(t, err, ErrInsufficientQuota)
	assert.Equal(t, 1, h.gen.calls())
}

func TestGeneratePoolExhausted(t *testing.T) {
	h := newHarness(t, entity.UsageSnapshot{Used: 0, Limit: 3}, 0)

	_, err := h.svc.Generate(context.Background(), input())
	assert.ErrorIs(t, err, ErrPoolExhausted)
	assert.Equal(t, 0, h.gen.calls())
	assert.Equal(t, 0, h.storage.count())
}

func TestGenerateUploadFailure(t *testing.T) {
	h := newHarness(t, entity.UsageSnapshot{Used: 0, Limit: 3}, 3)
	h.storage.saveErr = errors.New("bucket offline")

	_, err := h.svc.Generate(context.Background(), input())
	assert.ErrorIs(t, err, ErrStorageUnavailable)
	assert.Equal(t, 0, h.gen.calls())
}

func TestGenerateCommitFailureCleansUp(t *testing.T) {
	h := newHarness(t, entity.UsageSnapshot{Used: 0, Limit: 3}, 3)
	h.ledger.commitErr = errors.New("database is locked")

	_, err := h.svc.Generate(context.Background(), input())
	assert.ErrorIs(t, err, ErrStorageUnavailable)
	assert.Equal(t, 0, h.storage.count())
	assert.Len(t, h.storage.deleted, 1)
}

func TestGenerateStrictQuotaRace(t *testing.T) {
	h := newHarness(t, entity.UsageSnapshot{Used: 2, Limit: 3}, 3)
	h.svc.opts.StrictQuota = true
	// 另一个请求在本次外部调用期间用掉了最后一次额度
	h.svc.generator = llm.GeneratorFunc(func(context.Context, string, llm.ImageInput, entity.SocialKitConfig) (*entity.SocialKitResult, error) {
		h.ledger.mu.Lock()
		h.ledger.snapshot.Used = 3
		h.ledger.mu.Unlock()
		return sampleResult(), nil
	})

	_, err := h.svc.Generate(context.Background(), input())
	assert.ErrorIs(t, err, ErrInsufficientQuota)
	assert.Empty(t, h.ledger.commits)
	assert.Equal(t, 0, h.storage.count())
}

func TestGenerateCommitSurvivesClientCancel(t *testing.T) {
	h := newHarness(t, entity.UsageSnapshot{Used: 0, Limit: 3}, 3)
	ctx, cancel := context.WithCancel(context.Background())
	h.svc.generator = llm.GeneratorFunc(func(context.Context, string, llm.ImageInput, entity.SocialKitConfig) (*entity.SocialKitResult, error) {
		cancel()
		return sampleResult(), nil
	})

	out, err := h.svc.Generate(ctx, input())
	require.NoError(t, err)
	assert.NotZero(t, out.Generation.ID)
	assert.Equal(t, 1, h.ledger.snapshot.Used)
}

func TestGenerateInvalidInput(t *testing.T) {
	tests := []struct {
		name string
		in   GenerateInput
	}{
		{name: "empty image", in: GenerateInput{UserID: 1}},
		{name: "not an image", in: GenerateInput{UserID: 1, Image: []byte("hello world, plain text")}},
		{name: "bad tone", in: GenerateInput{UserID: 1, Image: jpegBytes, Config: entity.SocialKitConfig{Tone: "angry"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, entity.UsageSnapshot{Limit: 3}, 1)
			_, err := h.svc.Generate(context.Background(), tt.in)
			assert.ErrorIs(t, err, ErrInvalidInput)
			assert.Equal(t, 0, h.gen.calls())
		})
	}

	t.Run("too large", func(t *testing.T) {
		h := newHarness(t, entity.UsageSnapshot{Limit: 3}, 1)
		h.svc.opts.MaxUploadBytes = 4
		_, err := h.svc.Generate(context.Background(), input())
		assert.ErrorIs(t, err, ErrInvalidInput)
	})
}

func TestGenerateSnapshotErrors(t *testing.T) {
	h := newHarness(t, entity.UsageSnapshot{}, 1)
	h.ledger.snapshotErr = fmt.Errorf("get usage: %w", gorm.ErrRecordNotFound)
	_, err := h.svc.Generate(context.Background(), input())
	assert.ErrorIs(t, err, ErrNotFound)

	h.ledger.snapshotErr = errors.New("connection refused")
	_, err = h.svc.Generate(context.Background(), input())
	assert.ErrorIs(t, err, ErrStorageUnavailable)
}

func TestSleepContext(t *testing.T) {
	assert.NoError(t, sleepContext(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sleepContext(ctx, time.Hour), context.Canceled)
}
