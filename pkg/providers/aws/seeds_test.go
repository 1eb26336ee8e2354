package aws

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umbrohq/stagetrust/pkg/stagetrust"
)

type fakeSeeds struct {
	seeds map[string]string
}

func (f *fakeSeeds) Seed(_ context.Context, name string) (string, error) {
	seed, ok := f.seeds[name]
	if !ok {
		return "", stagetrust.ErrNotFound("secretsmanager:secret", name)
	}
	return seed, nil
}

func TestSeedSecretName(t *testing.T) {
	assert.Equal(t, "umbro/seeds/production", SeedSecretName(stagetrust.StageProduction))
	assert.Equal(t, "umbro/seeds/alpha", SeedSecretName(stagetrust.StageAlpha))
	assert.Equal(t, "umbro/seeds/alpha", SeedSecretName(stagetrust.StageDevelopment))
	assert.Equal(t, "umbro/seeds/alpha", SeedSecretName(stagetrust.StageGamma))
}

func TestResolveSeedPrefersConfig(t *testing.T) {
	cfg := testConfig(stagetrust.StageAlpha)
	cfg.Seed = "from-environment"
	p := New(WithSeedSource(&fakeSeeds{seeds: map[string]string{
		"umbro/seeds/alpha": "from-store",
	}}))

	seed, err := p.ResolveSeed(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, "from-environment", seed)
}

func TestResolveSeedFallsBackToStore(t *testing.T) {
	cfg := testConfig(stagetrust.StageProduction)
	p := New(WithSeedSource(&fakeSeeds{seeds: map[string]string{
		"umbro/seeds/production": "from-store",
	}}))

	seed, err := p.ResolveSeed(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, "from-store", seed)
}

func TestResolveSeedMissingSecret(t *testing.T) {
	cfg := testConfig(stagetrust.StageAlpha)
	p := New(WithSeedSource(&fakeSeeds{seeds: map[string]string{}}))

	_, err := p.ResolveSeed(context.Background(), cfg)
	require.Error(t, err)
	assert.True(t, stagetrust.IsCategory(err, stagetrust.ErrCategoryNotFound))
}

func TestResolveSeedNoStoreConfigured(t *testing.T) {
	cfg := testConfig(stagetrust.StageAlpha)
	p := New()

	_, err := p.ResolveSeed(context.Background(), cfg)
	require.Error(t, err)
	assert.True(t, stagetrust.IsCategory(err, stagetrust.ErrCategoryConfiguration))
	// The missing variable is named without echoing any value.
	assert.Contains(t, err.Error(), stagetrust.EnvSeedAlpha)
}
