package storage

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"snapkit/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedKeys(prefix string) objectKeys {
	k := newObjectKeys(prefix)
	k.now = func() time.Time { return time.Date(2024, 3, 9, 23, 30, 0, 0, time.UTC) }
	return k
}

func TestObjectKeysBuild(t *testing.T) {
	tests := []struct {
		name   string
		prefix string
		opts   SaveOptions
		want   string
	}{
		{name: "cleans tokens", opts: SaveOptions{Category: "Uploads", BaseName: "Abc Def!", Extension: ".PNG"}, want: "uploads/2024/03/09/abc-def.png"},
		{name: "prefix", prefix: " /tenant/a/ ", opts: SaveOptions{Category: "gen", BaseName: "x", Extension: "jpg"}, want: "tenant/a/gen/2024/03/09/x.jpg"},
		{name: "path traversal stripped", opts: SaveOptions{Category: "../etc", BaseName: "../../passwd", Extension: "txt"}, want: "etc/2024/03/09/passwd.txt"},
		{name: "unicode dropped", opts: SaveOptions{Category: "图片", BaseName: "照片", Extension: "webp"}, want: "misc/2024/03/09/1710027000000000000.webp"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, fixedKeys(tt.prefix).build(tt.opts))
		})
	}
}

func TestObjectKeysFallback(t *testing.T) {
	got := newObjectKeys("").build(SaveOptions{})
	assert.Regexp(t, regexp.MustCompile(`^misc/\d{4}/\d{2}/\d{2}/\d+\.bin$`), got)
}

func TestCleanToken(t *testing.T) {
	assert.Equal(t, "abc_1-2", cleanToken(" ABC_1-2 "))
	assert.Equal(t, "", cleanToken("../"))
	assert.Equal(t, "ae", cleanToken("aé e"))
}

func TestNormalizeKey(t *testing.T) {
	key, err := normalizeKey("  /a/b.png ")
	require.NoError(t, err)
	assert.Equal(t, "a/b.png", key)

	_, err = normalizeKey(" / ")
	assert.ErrorIs(t, err, errEmptyKey)
}

func TestContentTypeOf(t *testing.T) {
	assert.Equal(t, "image/png", contentTypeOf(SaveOptions{ContentType: "image/png"}))
	assert.Equal(t, defaultContentType, contentTypeOf(SaveOptions{}))
}

func TestR2TargetFromConfig(t *testing.T) {
	target, err := r2TargetFromConfig(config.Config{StorageR2AccountID: "acc", StorageR2Bucket: "b"})
	require.NoError(t, err)
	assert.Equal(t, "https://acc.r2.cloudflarestorage.com", target.Endpoint)
	assert.Equal(t, "auto", target.Region)
	assert.True(t, target.ForcePathStyle)

	_, err = r2TargetFromConfig(config.Config{StorageR2Bucket: "b"})
	assert.Error(t, err)
}

func TestS3TargetValidate(t *testing.T) {
	_, err := NewS3Storage(s3Target{Name: "S3", Bucket: "b", Region: "us-east-1"}, publicURLBuilder{})
	assert.ErrorContains(t, err, "credentials")

	store, err := NewS3Storage(s3Target{
		Name: "S3", Bucket: "b", Region: "us-east-1", Endpoint: "minio.local:9000",
		AccessKeyID: "id", SecretAccessKey: "secret",
	}, publicURLBuilder{baseURL: "https://cdn.example.com"})
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/a.png", store.PublicURL("a.png"))
}

func TestNewStorageRejectsUnknownType(t *testing.T) {
	_, err := NewStorage(config.Config{StorageType: "ftp"})
	assert.Error(t, err)
}

func TestPublicURL(t *testing.T) {
	tests := []struct {
		base string
		key  string
		want string
	}{
		{base: "/files", key: "uploads/a.png", want: "/files/uploads/a.png"},
		{base: "https://cdn.example.com/", key: "/uploads/a.png", want: "https://cdn.example.com/uploads/a.png"},
		{base: "", key: "uploads/a.png", want: "/uploads/a.png"},
		{base: "/files", key: "", want: ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, publicURLBuilder{baseURL: tt.base}.PublicURL(tt.key))
	}
}

func TestLocalStorageSaveAndDelete(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocalStorage(dir, "/files")
	require.NoError(t, err)

	ctx := context.Background()
	key, err := store.Save(ctx, []byte("image-bytes"), SaveOptions{Category: "uploads", BaseName: "photo-1", Extension: "jpg"})
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^uploads/\d{4}/\d{2}/\d{2}/photo-1\.jpg$`), key)

	data, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(key)))
	require.NoError(t, err)
	assert.Equal(t, "image-bytes", string(data))
	assert.Equal(t, "/files/"+key, store.PublicURL(key))

	require.NoError(t, store.Delete(ctx, key))
	_, err = os.Stat(filepath.Join(dir, filepath.FromSlash(key)))
	assert.True(t, os.IsNotExist(err))

	// 重复删除不报错
	assert.NoError(t, store.Delete(ctx, key))
}

func TestLocalStorageRejectsEmpty(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir(), "")
	require.NoError(t, err)

	_, err = store.Save(context.Background(), nil, SaveOptions{})
	assert.Error(t, err)
	assert.Error(t, store.Delete(context.Background(), " "))
}

func TestLocalStorageDeleteStaysInsideBaseDir(t *testing.T) {
	root := t.TempDir()
	outside := filepath.Join(root, "outside.txt")
	require.NoError(t, os.WriteFile(outside, []byte("keep"), 0o644))

	store, err := NewLocalStorage(filepath.Join(root, "images"), "")
	require.NoError(t, err)

	require.NoError(t, store.Delete(context.Background(), "../outside.txt"))
	_, err = os.Stat(outside)
	assert.NoError(t, err)
}
