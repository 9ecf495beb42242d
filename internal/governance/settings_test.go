package governance

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type memorySettingsRepo struct {
	rows     map[string]Settings
	getCalls int
	upserts  int
	fail     error
}

func newMemorySettingsRepo() *memorySettingsRepo {
	return &memorySettingsRepo{rows: make(map[string]Settings)}
}

func (r *memorySettingsRepo) Get(ctx context.Context, tenantID string) (Settings, error) {
	r.getCalls++
	if r.fail != nil {
		return Settings{}, r.fail
	}
	s, ok := r.rows[tenantID]
	if !ok {
		return Settings{}, ErrSettingsNotFound
	}
	return s, nil
}

func (r *memorySettingsRepo) Upsert(ctx context.Context, s Settings) error {
	r.upserts++
	if r.fail != nil {
		return r.fail
	}
	r.rows[s.TenantID] = s
	return nil
}

func newTestSettingsService(t *testing.T, repo SettingsRepository) *SettingsService {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewSettingsService(repo, client, time.Minute, nil)
}

func TestSettingsGetFallsBackToDefaults(t *testing.T) {
	repo := newMemorySettingsRepo()
	svc := newTestSettingsService(t, repo)

	got, err := svc.Get(context.Background(), "t1")
	require.NoError(t, err)
	require.Equal(t, DefaultSettings("t1"), got)
}

func TestSettingsGetCaches(t *testing.T) {
	repo := newMemorySettingsRepo()
	custom := DefaultSettings("t1")
	custom.MaxConcurrentRuns = 7
	repo.rows["t1"] = custom
	svc := newTestSettingsService(t, repo)
	ctx := context.Background()

	first, err := svc.Get(ctx, "t1")
	require.NoError(t, err)
	second, err := svc.Get(ctx, "t1")
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Equal(t, 1, repo.getCalls, "second read must come from cache")
}

func TestSettingsUpdateRequiresCapability(t *testing.T) {
	repo := newMemorySettingsRepo()
	svc := newTestSettingsService(t, repo)

	d, err := svc.Update(context.Background(), "DPO", DefaultSettings("t1"))
	require.NoError(t, err)
	require.Equal(t, CodeSettingsForbidden, d.Code)
	require.Zero(t, repo.upserts)

	d, err = svc.Update(context.Background(), "TENANT_ADMIN", DefaultSettings("t1"))
	require.NoError(t, err)
	require.True(t, d.Allowed)
	require.Equal(t, 1, repo.upserts)
}

func TestSettingsUpdateInvalidatesCache(t *testing.T) {
	repo := newMemorySettingsRepo()
	svc := newTestSettingsService(t, repo)
	ctx := context.Background()

	_, err := svc.Get(ctx, "t1")
	require.NoError(t, err)

	changed := DefaultSettings("t1")
	changed.CopilotEnabled = false
	d, err := svc.Update(ctx, "TENANT_ADMIN", changed)
	require.NoError(t, err)
	require.True(t, d.Allowed)

	got, err := svc.Get(ctx, "t1")
	require.NoError(t, err)
	require.False(t, got.CopilotEnabled)
}

func TestSettingsUpdateRejectsInvalidCeilings(t *testing.T) {
	repo := newMemorySettingsRepo()
	svc := newTestSettingsService(t, repo)

	bad := DefaultSettings("t1")
	bad.MaxConcurrentRuns = 0
	_, err := svc.Update(context.Background(), "TENANT_ADMIN", bad)
	require.Error(t, err)
}

func TestSettingsResetRestoresDefaults(t *testing.T) {
	repo := newMemorySettingsRepo()
	custom := DefaultSettings("t1")
	custom.CopilotEnabled = false
	repo.rows["t1"] = custom
	svc := newTestSettingsService(t, repo)
	ctx := context.Background()

	d, err := svc.Reset(ctx, "SUPER_ADMIN", "t1")
	require.NoError(t, err)
	require.True(t, d.Allowed)

	got, err := svc.Get(ctx, "t1")
	require.NoError(t, err)
	require.Equal(t, DefaultSettings("t1"), got)
	require.Contains(t, repo.rows, "t1", "reset overwrites, never deletes")
}

func TestSettingsGetPropagatesRepoErrors(t *testing.T) {
	repo := newMemorySettingsRepo()
	repo.fail = errors.New("pg down")
	svc := newTestSettingsService(t, repo)

	_, err := svc.Get(context.Background(), "t1")
	require.Error(t, err)
}
