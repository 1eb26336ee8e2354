package aws

import (
	"context"
	"fmt"

	"github.com/umbrohq/stagetrust/pkg/stagetrust"
)

// SeedSource retrieves derivation seeds from a secret store.
type SeedSource interface {
	Seed(ctx context.Context, secretName string) (string, error)
}

// SeedSecretName returns the secret store name holding the seed for
// a stage's class. Production has its own seed; every other stage
// shares the non-production one.
func SeedSecretName(stage stagetrust.Stage) string {
	if stage.IsProduction() {
		return "umbro/seeds/production"
	}
	return "umbro/seeds/alpha"
}

// ResolveSeed returns the derivation seed for the configured stage.
// A seed already present in the configuration (from the environment)
// wins; otherwise the secret store is consulted. The returned value
// must never be logged.
func (p *Provider) ResolveSeed(ctx context.Context, cfg *stagetrust.Config) (string, error) {
	if cfg.Seed != "" {
		return cfg.Seed, nil
	}
	if p.seeds == nil {
		return "", stagetrust.ErrConfiguration(fmt.Sprintf("%s is not set and no seed store is configured", stagetrust.SeedEnvVar(cfg.Stage))).
			WithStage(cfg.Stage).WithOperation("resolve_seed")
	}

	name := SeedSecretName(cfg.Stage)
	seed, err := p.seeds.Seed(ctx, name)
	if err != nil {
		if stagetrust.IsCategory(err, stagetrust.ErrCategoryNotFound) {
			return "", stagetrust.ErrNotFound("secretsmanager:secret", name).
				WithCause(err).WithStage(cfg.Stage)
		}
		return "", stagetrust.ErrNetwork("failed to read seed secret").
			WithCause(err).WithStage(cfg.Stage).WithResource("secretsmanager:secret", name)
	}
	if seed == "" {
		return "", stagetrust.ErrConfiguration("seed secret is empty").
			WithStage(cfg.Stage).WithResource("secretsmanager:secret", name)
	}
	return seed, nil
}
