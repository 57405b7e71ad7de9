package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatefs/gatefs/pkg/gateway/models"
)

// createTestStore creates an in-memory SQLite store for testing.
func createTestStore(t *testing.T) *GORMStore {
	t.Helper()
	s, err := New(&Config{
		Type:   DatabaseTypeSQLite,
		SQLite: SQLiteConfig{Path: ":memory:"},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func createTestStorageConfig(t *testing.T, s *GORMStore) *models.StorageConfig {
	t.Helper()
	cfg := &models.StorageConfig{
		Name:            "primary-" + time.Now().Format("150405.000000000"),
		ProviderType:    "generic",
		Endpoint:        "http://localhost:9000",
		Bucket:          "gatefs",
		AccessKeyID:     "sealed-access",
		SecretAccessKey: "sealed-secret",
		PathStyle:       true,
	}
	_, err := s.CreateStorageConfig(context.Background(), cfg)
	require.NoError(t, err)
	return cfg
}

func TestConfigDefaults(t *testing.T) {
	t.Run("default type is sqlite", func(t *testing.T) {
		cfg := &Config{}
		cfg.ApplyDefaults()
		assert.Equal(t, DatabaseTypeSQLite, cfg.Type)
		assert.NotEmpty(t, cfg.SQLite.Path)
	})

	t.Run("invalid type rejected", func(t *testing.T) {
		_, err := New(&Config{Type: "invalid"})
		assert.Error(t, err)
	})
}

func TestAPIKeyOperations(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	t.Run("create and fetch by key", func(t *testing.T) {
		key := &models.APIKey{
			Name:      "ci-key",
			Key:       "gk_abc123",
			Mount:     true,
			BasicPath: "/team-a",
		}
		id, err := s.CreateAPIKey(ctx, key)
		require.NoError(t, err)
		assert.NotEmpty(t, id)

		got, err := s.GetAPIKeyByKey(ctx, "gk_abc123")
		require.NoError(t, err)
		assert.Equal(t, "ci-key", got.Name)
		assert.Equal(t, "/team-a", got.BasicPath)
		assert.True(t, got.Mount)
		assert.False(t, got.Text)
	})

	t.Run("duplicate name rejected", func(t *testing.T) {
		_, err := s.CreateAPIKey(ctx, &models.APIKey{Name: "ci-key", Key: "gk_other"})
		assert.ErrorIs(t, err, models.ErrAPIKeyExists)
	})

	t.Run("unknown key", func(t *testing.T) {
		_, err := s.GetAPIKeyByKey(ctx, "gk_missing")
		assert.ErrorIs(t, err, models.ErrAPIKeyNotFound)
	})

	t.Run("expired key is lazily deleted", func(t *testing.T) {
		past := time.Now().Add(-time.Hour)
		_, err := s.CreateAPIKey(ctx, &models.APIKey{
			Name:      "stale",
			Key:       "gk_stale",
			ExpiresAt: &past,
		})
		require.NoError(t, err)

		_, err = s.GetAPIKeyByKey(ctx, "gk_stale")
		assert.ErrorIs(t, err, models.ErrAPIKeyExpired)

		// Row is gone afterwards.
		_, err = s.GetAPIKeyByKey(ctx, "gk_stale")
		assert.ErrorIs(t, err, models.ErrAPIKeyNotFound)
	})

	t.Run("touch last used", func(t *testing.T) {
		key, err := s.GetAPIKeyByKey(ctx, "gk_abc123")
		require.NoError(t, err)

		now := time.Now().UTC().Truncate(time.Second)
		require.NoError(t, s.TouchAPIKey(ctx, key.ID, now))

		got, err := s.GetAPIKeyByKey(ctx, "gk_abc123")
		require.NoError(t, err)
		require.NotNil(t, got.LastUsed)
		assert.WithinDuration(t, now, *got.LastUsed, time.Second)
	})
}

func TestMountOperations(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	sc := createTestStorageConfig(t, s)

	t.Run("create normalises path", func(t *testing.T) {
		m := &models.Mount{
			Name:            "docs",
			MountPath:       "//docs///",
			StorageConfigID: sc.ID,
		}
		_, err := s.CreateMount(ctx, m)
		require.NoError(t, err)
		assert.Equal(t, "/docs", m.MountPath)
	})

	t.Run("create with unknown storage config fails", func(t *testing.T) {
		_, err := s.CreateMount(ctx, &models.Mount{
			Name:            "bad",
			MountPath:       "/bad",
			StorageConfigID: "missing",
		})
		assert.ErrorIs(t, err, models.ErrStorageConfigNotFound)
	})

	t.Run("list preloads storage config newest first", func(t *testing.T) {
		_, err := s.CreateMount(ctx, &models.Mount{
			Name:            "media",
			MountPath:       "/media",
			StorageConfigID: sc.ID,
		})
		require.NoError(t, err)

		mounts, err := s.ListMounts(ctx)
		require.NoError(t, err)
		require.Len(t, mounts, 2)
		assert.Equal(t, sc.Bucket, mounts[0].StorageConfig.Bucket)
	})

	t.Run("delete mount clears dir mtimes", func(t *testing.T) {
		mounts, err := s.ListMounts(ctx)
		require.NoError(t, err)
		m := mounts[0]

		require.NoError(t, s.TouchDirModTimes(ctx, m.ID, []string{"/", "/a"}, time.Now()))
		require.NoError(t, s.DeleteMount(ctx, m.ID))

		times, err := s.GetDirModTimes(ctx, m.ID, []string{"/", "/a"})
		require.NoError(t, err)
		assert.Empty(t, times)
	})
}

func TestStorageConfigDeleteInUse(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	sc := createTestStorageConfig(t, s)

	_, err := s.CreateMount(ctx, &models.Mount{
		Name:            "docs",
		MountPath:       "/docs",
		StorageConfigID: sc.ID,
	})
	require.NoError(t, err)

	assert.ErrorIs(t, s.DeleteStorageConfig(ctx, sc.ID), models.ErrStorageConfigInUse)
}

func TestSettings(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_, err := s.GetSetting(ctx, models.SettingWebDAVUploadMode)
	assert.ErrorIs(t, err, models.ErrSettingNotFound)

	require.NoError(t, s.SetSetting(ctx, models.SettingWebDAVUploadMode, models.UploadModeDirect))
	v, err := s.GetSetting(ctx, models.SettingWebDAVUploadMode)
	require.NoError(t, err)
	assert.Equal(t, models.UploadModeDirect, v)

	// Upsert overwrites.
	require.NoError(t, s.SetSetting(ctx, models.SettingWebDAVUploadMode, models.UploadModeMultipart))
	v, err = s.GetSetting(ctx, models.SettingWebDAVUploadMode)
	require.NoError(t, err)
	assert.Equal(t, models.UploadModeMultipart, v)
}

func TestDirModTimes(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	first := time.Now().Add(-time.Minute).UTC()
	require.NoError(t, s.TouchDirModTimes(ctx, "m1", []string{"/", "/docs"}, first))

	second := time.Now().UTC()
	require.NoError(t, s.TouchDirModTimes(ctx, "m1", []string{"/docs"}, second))

	times, err := s.GetDirModTimes(ctx, "m1", []string{"/", "/docs", "/other"})
	require.NoError(t, err)
	require.Len(t, times, 2)
	assert.WithinDuration(t, first, times["/"], time.Second)
	assert.WithinDuration(t, second, times["/docs"], time.Second)
}

func TestSharedFiles(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	sc := createTestStorageConfig(t, s)

	file := &models.SharedFile{
		Slug:            "a1b2c3",
		ObjectKey:       "uploads/report.pdf",
		StorageConfigID: sc.ID,
		Filename:        "report.pdf",
		Size:            1024,
		Mimetype:        "application/pdf",
	}
	_, err := s.CreateSharedFile(ctx, file)
	require.NoError(t, err)

	got, err := s.GetSharedFileBySlug(ctx, "a1b2c3")
	require.NoError(t, err)
	assert.Equal(t, "report.pdf", got.Filename)

	// Missing etag is allowed.
	assert.Empty(t, got.ETag)

	require.NoError(t, s.DeleteSharedFile(ctx, got.ID))
	_, err = s.GetSharedFileBySlug(ctx, "a1b2c3")
	assert.ErrorIs(t, err, models.ErrSharedFileNotFound)
}
