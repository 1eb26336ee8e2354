package stagetrust

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRoleRef(t *testing.T) {
	ref := NewRoleRef(StageAlpha, "UmbroVercelAlpha", "arn:aws:iam::123456789012:role/UmbroVercelAlpha", testProviderARN)

	assert.Contains(t, ref.ID, "stage-role-Alpha-")
	assert.Equal(t, StageAlpha, ref.Stage)
	assert.True(t, ref.Owned)
	assert.Equal(t, StateStoreVersion, ref.Version)
	assert.False(t, ref.CreatedAt.IsZero())
}

func TestMemoryStateStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStateStore()
	ref := NewRoleRef(StageAlpha, "UmbroVercelAlpha", "arn:aws:iam::123456789012:role/UmbroVercelAlpha", testProviderARN)

	require.NoError(t, store.Save(ctx, ref))

	got, err := store.Get(ctx, ref.ID)
	require.NoError(t, err)
	assert.Equal(t, ref.RoleARN, got.RoleARN)

	exists, err := store.Exists(ctx, ref.ID)
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, store.Delete(ctx, ref.ID))
	_, err = store.Get(ctx, ref.ID)
	require.Error(t, err)
	assert.True(t, IsCategory(err, ErrCategoryNotFound))

	// Deleting again is idempotent.
	require.NoError(t, store.Delete(ctx, ref.ID))
}

func TestMemoryStateStoreListFilter(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStateStore()

	alpha := NewRoleRef(StageAlpha, "UmbroVercelAlpha", "arn:a", testProviderARN)
	prod := NewRoleRef(StageProduction, "UmbroVercelProduction", "arn:p", testProviderARN)
	require.NoError(t, store.Save(ctx, alpha))
	require.NoError(t, store.Save(ctx, prod))

	all, err := store.List(ctx, ListFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	prodOnly, err := store.List(ctx, ListFilter{Stage: StageProduction})
	require.NoError(t, err)
	require.Len(t, prodOnly, 1)
	assert.Equal(t, prod.ID, prodOnly[0].ID)
}

func TestFileStateStorePersistsAcrossLoads(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "state.json")

	store, err := NewFileStateStore(path)
	require.NoError(t, err)

	ref := NewRoleRef(StageBeta, "UmbroVercelBeta", "arn:b", testProviderARN)
	require.NoError(t, store.Save(ctx, ref))

	reloaded, err := NewFileStateStore(path)
	require.NoError(t, err)

	got, err := reloaded.Get(ctx, ref.ID)
	require.NoError(t, err)
	assert.Equal(t, StageBeta, got.Stage)
	assert.Equal(t, "arn:b", got.RoleARN)
	assert.True(t, got.Owned)
}

func TestFileStateStoreMissingFileIsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent.json")

	store, err := NewFileStateStore(path)
	require.NoError(t, err)

	refs, err := store.List(context.Background(), ListFilter{})
	require.NoError(t, err)
	assert.Empty(t, refs)
}
