package sql_test

import (
	"context"
	"strings"
	"sync"
	"testing"

	"snapkit/internal/entity"
	"snapkit/internal/model"
	"snapkit/internal/model/sql"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestRepo(t *testing.T) (*sql.GormRepository, *gorm.DB) {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	repo, db, err := model.NewSQLiteMemoryRepository(name)
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return repo, db
}

func createUser(t *testing.T, repo *sql.GormRepository, email string, used, limit int) *entity.DbUser {
	t.Helper()
	user := &entity.DbUser{
		Email:            email,
		PasswordHash:     "hash",
		Role:             entity.UserRoleUser,
		IsActive:         true,
		GenerationsUsed:  used,
		GenerationsLimit: limit,
	}
	require.NoError(t, repo.CreateUser(context.Background(), user))
	return user
}

func createKeys(t *testing.T, repo *sql.GormRepository, secrets ...string) []entity.DbPoolKey {
	t.Helper()
	keys := make([]entity.DbPoolKey, 0, len(secrets))
	for _, secret := range secrets {
		key := entity.DbPoolKey{Name: secret, APIKey: secret, IsActive: true}
		require.NoError(t, repo.CreatePoolKey(context.Background(), &key))
		keys = append(keys, key)
	}
	return keys
}

func sampleCommit(userID uint, charge bool) *entity.GenerationCommit {
	return &entity.GenerationCommit{
		Image: entity.DbImage{URL: "/files/uploads/a.png", PublicID: "uploads/a.png", MimeType: "image/png"},
		Generation: entity.DbGeneration{
			UserID:           userID,
			Inputs:           entity.DefaultSocialKitConfig(),
			Results:          entity.SocialKitResult{LinkedInPost: "post"},
			CredentialSource: entity.CredentialSourcePool,
			Attempts:         1,
		},
		ChargeQuota: charge,
	}
}

func TestLeaseNextPoolKeyRoundRobin(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()
	keys := createKeys(t, repo, "key-a", "key-b", "key-c")

	seen := map[uint]int{}
	for i := 0; i < len(keys); i++ {
		leased, err := repo.LeaseNextPoolKey(ctx)
		require.NoError(t, err)
		seen[leased.ID]++
	}
	for _, key := range keys {
		assert.Equal(t, 1, seen[key.ID], "key %s should be leased exactly once", key.Name)
	}

	next, err := repo.LeaseNextPoolKey(ctx)
	require.NoError(t, err)
	assert.Equal(t, keys[0].ID, next.ID, "rotation wraps to the first key")

	stored, err := repo.GetPoolKey(ctx, keys[0].ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, stored.LeaseCount)
	assert.NotNil(t, stored.LastLeasedAt)
}

func TestLeaseNextPoolKeySkipsInactive(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()
	keys := createKeys(t, repo, "key-a", "key-b")
	inactive := false
	require.NoError(t, repo.UpdatePoolKey(ctx, keys[0].ID, entity.PoolKeyUpdates{IsActive: &inactive}))

	for i := 0; i < 3; i++ {
		leased, err := repo.LeaseNextPoolKey(ctx)
		require.NoError(t, err)
		assert.Equal(t, keys[1].ID, leased.ID)
	}
}

func TestLeaseNextPoolKeyEmptyPool(t *testing.T) {
	repo, _ := newTestRepo(t)
	_, err := repo.LeaseNextPoolKey(context.Background())
	assert.ErrorIs(t, err, sql.ErrPoolEmpty)
}

func TestLeaseNextPoolKeyConcurrent(t *testing.T) {
	repo, _ := newTestRepo(t)
	keys := createKeys(t, repo, "key-a", "key-b", "key-c")

	const rounds = 10
	var (
		mu   sync.Mutex
		wg   sync.WaitGroup
		seen = map[uint]int{}
	)
	for i := 0; i < rounds*len(keys); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			leased, err := repo.LeaseNextPoolKey(context.Background())
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			seen[leased.ID]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	for _, key := range keys {
		assert.Equal(t, rounds, seen[key.ID])
	}
}

func TestGetActivePoolKeyAt(t *testing.T) {
	repo, _ := newTestRepo(t)
	keys := createKeys(t, repo, "key-a", "key-b")

	tests := []struct {
		position int64
		want     uint
	}{
		{position: 1, want: keys[0].ID},
		{position: 2, want: keys[1].ID},
		{position: 3, want: keys[0].ID},
		{position: 0, want: keys[1].ID},
	}
	for _, tt := range tests {
		key, err := repo.GetActivePoolKeyAt(context.Background(), tt.position)
		require.NoError(t, err)
		assert.Equal(t, tt.want, key.ID, "position %d", tt.position)
	}
}

func TestEnsurePoolKeyIsIdempotent(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	created, err := repo.EnsurePoolKey(ctx, &entity.DbPoolKey{Name: "a", APIKey: " secret ", IsActive: false})
	require.NoError(t, err)
	assert.True(t, created)

	created, err = repo.EnsurePoolKey(ctx, &entity.DbPoolKey{Name: "b", APIKey: "secret", IsActive: true})
	require.NoError(t, err)
	assert.False(t, created)

	keys, err := repo.ListPoolKeys(ctx, true)
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.Equal(t, "a", keys[0].Name)
	assert.False(t, keys[0].IsActive)
}

func TestIncrementGenerationsUsedSetsExhaustedAt(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()
	user := createUser(t, repo, "a@example.com", 1, 3)

	require.NoError(t, repo.IncrementGenerationsUsed(ctx, user.ID, false))
	snap, err := repo.GetUsageSnapshot(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, snap.Used)
	assert.Nil(t, snap.ExhaustedAt)

	require.NoError(t, repo.IncrementGenerationsUsed(ctx, user.ID, false))
	snap, err = repo.GetUsageSnapshot(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, snap.Used)
	require.NotNil(t, snap.ExhaustedAt)
	firstExhausted := *snap.ExhaustedAt

	// 非严格模式允许超额，耗尽时间只写一次
	require.NoError(t, repo.IncrementGenerationsUsed(ctx, user.ID, false))
	snap, err = repo.GetUsageSnapshot(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, snap.Used)
	require.NotNil(t, snap.ExhaustedAt)
	assert.True(t, firstExhausted.Equal(*snap.ExhaustedAt))
}

func TestIncrementGenerationsUsedStrict(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()
	user := createUser(t, repo, "a@example.com", 3, 3)

	err := repo.IncrementGenerationsUsed(ctx, user.ID, true)
	assert.ErrorIs(t, err, sql.ErrQuotaExhausted)

	snap, err := repo.GetUsageSnapshot(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, snap.Used)

	err = repo.IncrementGenerationsUsed(ctx, 9999, true)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
	err = repo.IncrementGenerationsUsed(ctx, 9999, false)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestIncrementGenerationsUsedConcurrentNeverLosesUpdates(t *testing.T) {
	repo, _ := newTestRepo(t)
	user := createUser(t, repo, "a@example.com", 0, 100)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, repo.IncrementGenerationsUsed(context.Background(), user.ID, false))
		}()
	}
	wg.Wait()

	snap, err := repo.GetUsageSnapshot(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, 20, snap.Used)
}

func TestCommitGenerationChargesOnce(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()
	user := createUser(t, repo, "a@example.com", 2, 3)

	gen, err := repo.CommitGeneration(ctx, sampleCommit(user.ID, true))
	require.NoError(t, err)
	assert.NotZero(t, gen.ID)
	require.NotNil(t, gen.Image)
	assert.Equal(t, gen.ImageID, gen.Image.ID)

	snap, err := repo.GetUsageSnapshot(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, snap.Used)
	assert.NotNil(t, snap.ExhaustedAt)

	stored, err := repo.GetGeneration(ctx, gen.ID)
	require.NoError(t, err)
	assert.Equal(t, "post", stored.Results.LinkedInPost)
	assert.Equal(t, entity.TonePlayful, stored.Inputs.Tone)
	require.NotNil(t, stored.Image)
	assert.Equal(t, "uploads/a.png", stored.Image.PublicID)
}

func TestCommitGenerationWithoutChargeLeavesLedger(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()
	user := createUser(t, repo, "a@example.com", 3, 3)

	commit := sampleCommit(user.ID, false)
	commit.Generation.CredentialSource = entity.CredentialSourceOwn
	_, err := repo.CommitGeneration(ctx, commit)
	require.NoError(t, err)

	snap, err := repo.GetUsageSnapshot(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, snap.Used)
}

func TestCommitGenerationStrictRollsBack(t *testing.T) {
	repo, db := newTestRepo(t)
	ctx := context.Background()
	user := createUser(t, repo, "a@example.com", 3, 3)

	commit := sampleCommit(user.ID, true)
	commit.StrictQuota = true
	_, err := repo.CommitGeneration(ctx, commit)
	assert.ErrorIs(t, err, sql.ErrQuotaExhausted)

	var images, generations int64
	require.NoError(t, db.Model(&entity.DbImage{}).Count(&images).Error)
	require.NoError(t, db.Model(&entity.DbGeneration{}).Count(&generations).Error)
	assert.Zero(t, images)
	assert.Zero(t, generations)
}

func TestListGenerationsNewestFirst(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()
	owner := createUser(t, repo, "a@example.com", 0, 10)
	other := createUser(t, repo, "b@example.com", 0, 10)

	var ids []uint
	for i := 0; i < 3; i++ {
		gen, err := repo.CommitGeneration(ctx, sampleCommit(owner.ID, false))
		require.NoError(t, err)
		ids = append(ids, gen.ID)
	}
	_, err := repo.CommitGeneration(ctx, sampleCommit(other.ID, false))
	require.NoError(t, err)

	gens, meta, err := repo.ListGenerations(ctx, &entity.GenerationQuery{UserID: owner.ID})
	require.NoError(t, err)
	require.Len(t, gens, 3)
	assert.EqualValues(t, 3, meta.Total)
	assert.Equal(t, ids[2], gens[0].ID)
	assert.Equal(t, ids[0], gens[2].ID)
	assert.NotNil(t, gens[0].Image)
}

func TestDeleteGenerationOwnership(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()
	owner := createUser(t, repo, "a@example.com", 0, 10)
	intruder := createUser(t, repo, "b@example.com", 0, 10)

	gen, err := repo.CommitGeneration(ctx, sampleCommit(owner.ID, false))
	require.NoError(t, err)

	_, err = repo.DeleteGeneration(ctx, gen.ID, intruder.ID)
	assert.ErrorIs(t, err, sql.ErrForbidden)
	_, err = repo.GetGeneration(ctx, gen.ID)
	require.NoError(t, err, "record must survive a forbidden delete")

	orphan, err := repo.DeleteGeneration(ctx, gen.ID, owner.ID)
	require.NoError(t, err)
	require.NotNil(t, orphan)
	assert.Equal(t, "uploads/a.png", orphan.PublicID)

	_, err = repo.GetGeneration(ctx, gen.ID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	_, err = repo.DeleteGeneration(ctx, gen.ID, owner.ID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestDeleteGenerationKeepsSharedImage(t *testing.T) {
	repo, db := newTestRepo(t)
	ctx := context.Background()
	owner := createUser(t, repo, "a@example.com", 0, 10)

	first, err := repo.CommitGeneration(ctx, sampleCommit(owner.ID, false))
	require.NoError(t, err)
	second := entity.DbGeneration{
		UserID:           owner.ID,
		ImageID:          first.ImageID,
		CredentialSource: entity.CredentialSourceOwn,
		Attempts:         1,
	}
	require.NoError(t, db.Create(&second).Error)

	orphan, err := repo.DeleteGeneration(ctx, first.ID, owner.ID)
	require.NoError(t, err)
	assert.Nil(t, orphan, "image still referenced by another generation")
}

func TestDeleteUserCascades(t *testing.T) {
	repo, db := newTestRepo(t)
	ctx := context.Background()
	user := createUser(t, repo, "a@example.com", 0, 10)
	_, err := repo.CommitGeneration(ctx, sampleCommit(user.ID, false))
	require.NoError(t, err)

	images, err := repo.DeleteUser(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, images, 1)

	var generations int64
	require.NoError(t, db.Model(&entity.DbGeneration{}).Count(&generations).Error)
	assert.Zero(t, generations)

	_, err = repo.DeleteUser(ctx, user.ID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestUpdateUserResetUsage(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()
	user := createUser(t, repo, "a@example.com", 2, 3)
	require.NoError(t, repo.IncrementGenerationsUsed(ctx, user.ID, false))

	limit := 10
	require.NoError(t, repo.UpdateUser(ctx, user.ID, entity.UserUpdates{GenerationsLimit: &limit, ResetUsage: true}))

	snap, err := repo.GetUsageSnapshot(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, snap.Used)
	assert.Equal(t, 10, snap.Limit)
	assert.Nil(t, snap.ExhaustedAt)

	assert.ErrorIs(t, repo.UpdateUser(ctx, 9999, entity.UserUpdates{GenerationsLimit: &limit}), gorm.ErrRecordNotFound)
}
