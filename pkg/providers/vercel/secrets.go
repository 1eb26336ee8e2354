package vercel

import (
	"context"

	"github.com/umbrohq/stagetrust/pkg/stagetrust"
)

// SyncDerivedSecret derives the stage's auth secret from the
// configured seed and pushes it to the platform project under every
// alias the application reads, scoped to the stage's external
// environments. The derived value is stored encrypted and never
// logged. Returns the variable names that were written.
func (c *Client) SyncDerivedSecret(ctx context.Context, cfg *stagetrust.Config, deriver *stagetrust.SecretDeriver) ([]string, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.RequireSeed(); err != nil {
		return nil, err
	}

	secret, err := deriver.Derive(cfg.Seed, cfg.Stage)
	if err != nil {
		return nil, err
	}

	targets := cfg.Stage.ExternalEnvironments()
	var written []string
	for _, name := range stagetrust.SecretAliases() {
		if err := c.UpsertEnvironmentVariable(ctx, cfg.Project, name, secret, targets, true); err != nil {
			return written, err
		}
		written = append(written, name)
	}
	return written, nil
}
