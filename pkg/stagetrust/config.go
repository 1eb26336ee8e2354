package stagetrust

import "fmt"

// Environment variable names read once at process start. The pure
// functions in this package never touch the process environment;
// the orchestrator builds a Config up front and passes it in.
const (
	EnvStage           = "UMBRO_STAGE"
	EnvOrg             = "UMBRO_ORG"
	EnvProject         = "UMBRO_PROJECT"
	EnvRolePrefix      = "UMBRO_ROLE_PREFIX"
	EnvOIDCProviderARN = "UMBRO_OIDC_PROVIDER_ARN"
	EnvStackName       = "UMBRO_STACK_NAME"
	EnvSeedAlpha       = "UMBRO_SEED_ALPHA"
	EnvSeedProduction  = "UMBRO_SEED_PRODUCTION"
	EnvVercelToken     = "VERCEL_TOKEN"
	EnvVercelTeamID    = "VERCEL_TEAM_ID"
)

// DefaultRolePrefix is the fixed prefix for stage role labels.
const DefaultRolePrefix = "UmbroVercel"

// SeedEnvVar returns the environment variable holding the derivation
// seed for a stage's class. There is one seed per stage-class:
// Production has its own, every pre-production stage shares the
// Alpha-class seed.
func SeedEnvVar(stage Stage) string {
	if stage.IsProduction() {
		return EnvSeedProduction
	}
	return EnvSeedAlpha
}

// Config carries every input the deployment tooling needs for one
// stage. It is constructed once at process start; nothing below the
// CLI reads the process environment.
type Config struct {
	// Stage is the deployment stage this run operates on.
	Stage Stage

	// Seed is the secret derivation seed for the stage's class,
	// sourced from a secret store. Never logged.
	Seed string

	// Org is the platform organization slug claims are scoped to.
	Org string

	// Project is the platform project name claims are scoped to.
	Project string

	// RolePrefix is the fixed prefix for role labels. Defaults to
	// DefaultRolePrefix when empty.
	RolePrefix string

	// OIDCProviderARN is the ARN of the IAM OIDC provider for the
	// deployment platform.
	OIDCProviderARN string

	// StackName is the CloudFormation stack whose outputs are
	// copied to the platform's environment-variable store.
	StackName string

	// VercelToken authenticates against the platform API. Never
	// logged.
	VercelToken string

	// VercelTeamID scopes platform API calls, if set.
	VercelTeamID string
}

// FromEnv constructs a Config from a lookup function, typically
// os.Getenv. Validation is separate so callers can require only the
// fields their operation needs.
func FromEnv(lookup func(string) string) (*Config, error) {
	stage, err := ParseStage(lookup(EnvStage))
	if err != nil {
		return nil, err
	}
	return &Config{
		Stage:           stage,
		Seed:            lookup(SeedEnvVar(stage)),
		Org:             lookup(EnvOrg),
		Project:         lookup(EnvProject),
		RolePrefix:      lookup(EnvRolePrefix),
		OIDCProviderARN: lookup(EnvOIDCProviderARN),
		StackName:       lookup(EnvStackName),
		VercelToken:     lookup(EnvVercelToken),
		VercelTeamID:    lookup(EnvVercelTeamID),
	}, nil
}

// Validate checks the identity-scoping inputs every operation needs.
// Error messages name the missing variable but never echo values.
func (c *Config) Validate() error {
	if c.Stage == "" {
		return ErrConfiguration(fmt.Sprintf("%s is not set", EnvStage))
	}
	if c.Org == "" {
		return ErrConfiguration(fmt.Sprintf("%s is not set", EnvOrg)).WithStage(c.Stage)
	}
	if c.Project == "" {
		return ErrConfiguration(fmt.Sprintf("%s is not set", EnvProject)).WithStage(c.Stage)
	}
	return nil
}

// RequireSeed checks that the seed for the stage's class is present.
// Callers that only build trust conditions do not need it.
func (c *Config) RequireSeed() error {
	if c.Seed == "" {
		return ErrConfiguration(fmt.Sprintf("%s is not set", SeedEnvVar(c.Stage))).
			WithStage(c.Stage)
	}
	return nil
}

// RequireVercel checks that the platform API inputs are present.
func (c *Config) RequireVercel() error {
	if c.VercelToken == "" {
		return ErrConfiguration(fmt.Sprintf("%s is not set", EnvVercelToken)).
			WithStage(c.Stage)
	}
	return nil
}

// RoleLabelPrefix returns the configured role prefix, falling back
// to DefaultRolePrefix.
func (c *Config) RoleLabelPrefix() string {
	if c.RolePrefix == "" {
		return DefaultRolePrefix
	}
	return c.RolePrefix
}

// TrustConditionForStage derives the full trust condition for the
// configured stage: the org-scoped audience plus one subject claim
// per external environment the stage maps to.
func (c *Config) TrustConditionForStage() (TrustCondition, error) {
	if err := c.Validate(); err != nil {
		return TrustCondition{}, err
	}
	claims, err := BuildSubjectClaims(c.Org, c.Project, c.Stage.ExternalEnvironments())
	if err != nil {
		return TrustCondition{}, err
	}
	return BuildTrustCondition(Audience(c.Org), claims)
}
