// Package aws manages the AWS side of the stage trust tooling: IAM
// roles with platform-scoped OIDC trust policies, CloudFormation
// stack outputs, seed retrieval, and baseline stage resources.
package aws

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/umbrohq/stagetrust/pkg/stagetrust"
)

// IAMAPI abstracts the IAM operations the provider needs, for
// testing against fakes.
type IAMAPI interface {
	// Role operations
	GetRole(ctx context.Context, roleName string) (*Role, error)
	CreateRole(ctx context.Context, input *CreateRoleInput) (*Role, error)
	UpdateAssumeRolePolicy(ctx context.Context, roleName string, policy string) error
	DeleteRole(ctx context.Context, roleName string) error

	// Policy attachment operations
	AttachRolePolicy(ctx context.Context, roleName, policyARN string) error
	DetachRolePolicy(ctx context.Context, roleName, policyARN string) error
	ListAttachedRolePolicies(ctx context.Context, roleName string) ([]string, error)

	// OIDC provider operations
	GetOpenIDConnectProvider(ctx context.Context, arn string) (*OIDCProvider, error)
}

// Role represents an IAM role.
type Role struct {
	ARN                      string
	RoleName                 string
	AssumeRolePolicyDocument string
	Description              string
	MaxSessionDuration       int32
}

// OIDCProvider represents an IAM OIDC identity provider.
type OIDCProvider struct {
	ARN          string
	URL          string
	ClientIDList []string
}

// CreateRoleInput contains parameters for creating an IAM role.
type CreateRoleInput struct {
	RoleName                 string
	AssumeRolePolicyDocument string
	Description              string
	MaxSessionDuration       int32
	Tags                     map[string]string
}

// Provider manages stage roles and supporting AWS resources.
type Provider struct {
	iam     IAMAPI
	outputs OutputsAPI
	seeds   SeedSource
	tables  TableAPI
	buckets BucketAPI
	state   stagetrust.StateStore
}

// ProviderOption configures the Provider.
type ProviderOption func(*Provider)

// WithIAM sets the IAM client.
func WithIAM(api IAMAPI) ProviderOption {
	return func(p *Provider) { p.iam = api }
}

// WithOutputs sets the CloudFormation outputs reader.
func WithOutputs(api OutputsAPI) ProviderOption {
	return func(p *Provider) { p.outputs = api }
}

// WithSeedSource sets the seed source.
func WithSeedSource(src SeedSource) ProviderOption {
	return func(p *Provider) { p.seeds = src }
}

// WithTables sets the DynamoDB table client.
func WithTables(api TableAPI) ProviderOption {
	return func(p *Provider) { p.tables = api }
}

// WithBuckets sets the S3 bucket client.
func WithBuckets(api BucketAPI) ProviderOption {
	return func(p *Provider) { p.buckets = api }
}

// WithStateStore sets the state store. Defaults to an in-memory
// store, which is only useful for tests.
func WithStateStore(s stagetrust.StateStore) ProviderOption {
	return func(p *Provider) { p.state = s }
}

// New creates a new Provider.
func New(opts ...ProviderOption) *Provider {
	p := &Provider{state: stagetrust.NewMemoryStateStore()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// SetupOptions configures a SetupStageRole operation.
type SetupOptions struct {
	// DryRun if true, reports what would be done without changes.
	DryRun bool

	// PolicyARNs are managed policies to attach to the role.
	PolicyARNs []string

	// Description overrides the generated role description.
	Description string

	// MaxSessionDuration is the session cap in seconds (defaults
	// to 3600).
	MaxSessionDuration int32

	// Tags to apply to the created role.
	Tags map[string]string
}

// DeleteOptions configures a DeleteStageRole operation.
type DeleteOptions struct {
	// Force if true, deletes roles not recorded as owned.
	Force bool
}

// SetupStageRole creates or updates the IAM role for the configured
// stage with a trust policy pinned to the platform's audience and
// the stage's subject claims. It is idempotent: re-running with the
// same configuration converges on the same role.
func (p *Provider) SetupStageRole(ctx context.Context, cfg *stagetrust.Config, opts SetupOptions) (*stagetrust.RoleRef, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.OIDCProviderARN == "" {
		return nil, stagetrust.ErrConfiguration(fmt.Sprintf("%s is not set", stagetrust.EnvOIDCProviderARN)).
			WithStage(cfg.Stage).WithOperation("setup_stage_role")
	}

	// Label collisions must be rejected before any identity exists.
	if err := stagetrust.UniqueRoleLabels(cfg.RoleLabelPrefix(), stagetrust.Stages()); err != nil {
		return nil, err
	}

	cond, err := cfg.TrustConditionForStage()
	if err != nil {
		return nil, err
	}
	policyJSON, err := stagetrust.AssumeRolePolicyJSON(cfg.OIDCProviderARN, cond)
	if err != nil {
		return nil, err
	}

	roleName := cfg.Stage.RoleLabel(cfg.RoleLabelPrefix())

	existing, err := p.iam.GetRole(ctx, roleName)
	roleExists := err == nil && existing != nil
	if err != nil && !stagetrust.IsCategory(err, stagetrust.ErrCategoryNotFound) {
		return nil, stagetrust.ErrPermission("failed to look up role").
			WithCause(err).WithStage(cfg.Stage).WithResource("iam:role", roleName)
	}

	if opts.DryRun {
		ref := stagetrust.NewRoleRef(cfg.Stage, roleName, "", cfg.OIDCProviderARN)
		if roleExists {
			ref.RoleARN = existing.ARN
		}
		return &ref, nil
	}

	var roleARN string
	var created bool
	if roleExists {
		if err := p.iam.UpdateAssumeRolePolicy(ctx, roleName, policyJSON); err != nil {
			return nil, stagetrust.ErrPermission("failed to update role trust policy").
				WithCause(err).WithStage(cfg.Stage).WithResource("iam:role", roleName)
		}
		roleARN = existing.ARN
	} else {
		description := opts.Description
		if description == "" {
			description = fmt.Sprintf("Deployment role for the %s stage, assumable by %s/%s platform deployments",
				cfg.Stage, cfg.Org, cfg.Project)
		}
		maxDuration := opts.MaxSessionDuration
		if maxDuration == 0 {
			maxDuration = 3600
		}

		role, err := p.iam.CreateRole(ctx, &CreateRoleInput{
			RoleName:                 roleName,
			AssumeRolePolicyDocument: policyJSON,
			Description:              description,
			MaxSessionDuration:       maxDuration,
			Tags:                     mergeTags(opts.Tags),
		})
		if err != nil {
			return nil, stagetrust.ErrPermission("failed to create role").
				WithCause(err).WithStage(cfg.Stage).WithResource("iam:role", roleName)
		}
		roleARN = role.ARN
		created = true
	}

	for _, policyARN := range opts.PolicyARNs {
		if err := p.iam.AttachRolePolicy(ctx, roleName, policyARN); err != nil {
			attachErr := stagetrust.ErrPermission("failed to attach policy").
				WithCause(err).WithStage(cfg.Stage).WithResource("iam:policy", policyARN)
			if !created {
				return nil, attachErr
			}
			// Roll back the role we just created.
			if delErr := p.iam.DeleteRole(ctx, roleName); delErr != nil {
				return nil, &stagetrust.RollbackError{
					OriginalError:     attachErr,
					RollbackErrors:    []error{delErr},
					OrphanedResources: []string{roleARN},
				}
			}
			return nil, attachErr
		}
	}

	ref := stagetrust.NewRoleRef(cfg.Stage, roleName, roleARN, cfg.OIDCProviderARN)
	ref.Owned = created
	if err := p.state.Save(ctx, ref); err != nil {
		// The role exists either way; surface the bookkeeping
		// failure without undoing the setup.
		fmt.Printf("warning: failed to save role state: %v\n", err)
	}

	return &ref, nil
}

// DeleteStageRole removes a stage role and its policy attachments.
// Only roles recorded as owned are deleted unless Force is set.
// Deleting an already-deleted role succeeds.
func (p *Provider) DeleteStageRole(ctx context.Context, ref stagetrust.RoleRef, opts DeleteOptions) error {
	if !ref.Owned && !opts.Force {
		return stagetrust.ErrPermission("role was not created by this tooling; use Force to override").
			WithStage(ref.Stage).WithResource("iam:role", ref.RoleLabel)
	}

	attached, err := p.iam.ListAttachedRolePolicies(ctx, ref.RoleLabel)
	if err == nil {
		for _, policyARN := range attached {
			if err := p.iam.DetachRolePolicy(ctx, ref.RoleLabel, policyARN); err != nil {
				return stagetrust.ErrPermission("failed to detach policy").
					WithCause(err).WithStage(ref.Stage).WithResource("iam:policy", policyARN)
			}
		}
	}

	if err := p.iam.DeleteRole(ctx, ref.RoleLabel); err != nil {
		if !stagetrust.IsCategory(err, stagetrust.ErrCategoryNotFound) {
			return stagetrust.ErrPermission("failed to delete role").
				WithCause(err).WithStage(ref.Stage).WithResource("iam:role", ref.RoleLabel)
		}
	}

	if err := p.state.Delete(ctx, ref.ID); err != nil {
		fmt.Printf("warning: failed to remove role from state: %v\n", err)
	}

	return nil
}

// Validators returns the validation checks for a stage role: the
// role exists, its live trust policy pins the expected audience and
// subjects, and the OIDC provider accepts the audience.
func (p *Provider) Validators(cfg *stagetrust.Config) ([]stagetrust.Validator, error) {
	cond, err := cfg.TrustConditionForStage()
	if err != nil {
		return nil, err
	}
	return []stagetrust.Validator{
		&roleExistsValidator{iam: p.iam},
		&trustPolicyPinnedValidator{iam: p.iam, providerARN: cfg.OIDCProviderARN, expected: cond},
		&audienceRegisteredValidator{iam: p.iam, providerARN: cfg.OIDCProviderARN, audience: cond.Audience},
	}, nil
}

// State returns the provider's state store.
func (p *Provider) State() stagetrust.StateStore {
	return p.state
}

func mergeTags(tags map[string]string) map[string]string {
	result := make(map[string]string, len(tags)+1)
	for k, v := range tags {
		result[k] = v
	}
	result["managed-by"] = "stagetrust"
	return result
}

// Validators

type roleExistsValidator struct {
	iam IAMAPI
}

func (v *roleExistsValidator) ID() string          { return "role_exists" }
func (v *roleExistsValidator) Name() string        { return "Stage Role Exists" }
func (v *roleExistsValidator) Description() string { return "Checks if the stage IAM role exists" }

func (v *roleExistsValidator) Validate(ctx context.Context, ref stagetrust.RoleRef) stagetrust.ValidationCheck {
	start := time.Now()
	check := stagetrust.ValidationCheck{
		ID:          v.ID(),
		Name:        v.Name(),
		Description: v.Description(),
		Severity:    stagetrust.SeverityCritical,
		Evidence:    map[string]interface{}{"role_name": ref.RoleLabel},
	}

	role, err := v.iam.GetRole(ctx, ref.RoleLabel)
	if err != nil {
		check.Status = stagetrust.CheckStatusFailed
		check.Evidence["error"] = err.Error()
		check.Remediation = "Run setup-trust for this stage"
		check.Duration = time.Since(start)
		return check
	}

	check.Status = stagetrust.CheckStatusPassed
	check.Evidence["role_arn"] = role.ARN
	check.Duration = time.Since(start)
	return check
}

type trustPolicyPinnedValidator struct {
	iam         IAMAPI
	providerARN string
	expected    stagetrust.TrustCondition
}

func (v *trustPolicyPinnedValidator) ID() string   { return "trust_policy_pinned" }
func (v *trustPolicyPinnedValidator) Name() string { return "Trust Policy Pinned" }
func (v *trustPolicyPinnedValidator) Description() string {
	return "Checks that the live trust policy pins both the audience and the stage's subject claims"
}

func (v *trustPolicyPinnedValidator) Validate(ctx context.Context, ref stagetrust.RoleRef) stagetrust.ValidationCheck {
	start := time.Now()
	check := stagetrust.ValidationCheck{
		ID:          v.ID(),
		Name:        v.Name(),
		Description: v.Description(),
		Severity:    stagetrust.SeverityCritical,
		Evidence:    map[string]interface{}{"role_name": ref.RoleLabel},
	}

	role, err := v.iam.GetRole(ctx, ref.RoleLabel)
	if err != nil {
		check.Status = stagetrust.CheckStatusFailed
		check.Evidence["error"] = err.Error()
		check.Remediation = "Run setup-trust for this stage"
		check.Duration = time.Since(start)
		return check
	}

	aud, subs, err := decodeTrustConditions(role.AssumeRolePolicyDocument, v.providerARN)
	if err != nil {
		check.Status = stagetrust.CheckStatusFailed
		check.Evidence["error"] = err.Error()
		check.Remediation = "Trust policy is malformed; run setup-trust to rewrite it"
		check.Duration = time.Since(start)
		return check
	}

	check.Evidence["audience"] = aud
	check.Evidence["subjects"] = subs

	if aud != v.expected.Audience {
		check.Status = stagetrust.CheckStatusFailed
		check.Remediation = "Audience claim is not pinned to the expected value; run setup-trust"
		check.Duration = time.Since(start)
		return check
	}
	if !sameClaimSet(subs, v.expected.Subjects) {
		check.Status = stagetrust.CheckStatusFailed
		check.Remediation = "Subject claims do not match the stage's environments; run setup-trust"
		check.Duration = time.Since(start)
		return check
	}

	check.Status = stagetrust.CheckStatusPassed
	check.Duration = time.Since(start)
	return check
}

type audienceRegisteredValidator struct {
	iam         IAMAPI
	providerARN string
	audience    string
}

func (v *audienceRegisteredValidator) ID() string   { return "audience_registered" }
func (v *audienceRegisteredValidator) Name() string { return "Audience Registered" }
func (v *audienceRegisteredValidator) Description() string {
	return "Checks that the OIDC provider lists the platform audience as a client ID"
}

func (v *audienceRegisteredValidator) Validate(ctx context.Context, ref stagetrust.RoleRef) stagetrust.ValidationCheck {
	start := time.Now()
	check := stagetrust.ValidationCheck{
		ID:          v.ID(),
		Name:        v.Name(),
		Description: v.Description(),
		Severity:    stagetrust.SeverityError,
		Evidence:    map[string]interface{}{"oidc_provider_arn": v.providerARN},
	}

	provider, err := v.iam.GetOpenIDConnectProvider(ctx, v.providerARN)
	if err != nil {
		check.Status = stagetrust.CheckStatusFailed
		check.Evidence["error"] = err.Error()
		check.Remediation = "Create the OIDC provider for the deployment platform"
		check.Duration = time.Since(start)
		return check
	}

	for _, clientID := range provider.ClientIDList {
		if clientID == v.audience {
			check.Status = stagetrust.CheckStatusPassed
			check.Duration = time.Since(start)
			return check
		}
	}

	check.Status = stagetrust.CheckStatusFailed
	check.Evidence["client_ids"] = provider.ClientIDList
	check.Remediation = fmt.Sprintf("Add %s to the OIDC provider's client ID list", v.audience)
	check.Duration = time.Since(start)
	return check
}

// decodeTrustConditions extracts the pinned audience and subject
// claims from an assume-role policy document. IAM returns the
// document URL-encoded; plain JSON is accepted too.
func decodeTrustConditions(document, providerARN string) (audience string, subjects []string, err error) {
	if unescaped, uerr := url.QueryUnescape(document); uerr == nil {
		document = unescaped
	}

	var policy struct {
		Statement []struct {
			Condition map[string]map[string]interface{} `json:"Condition"`
		} `json:"Statement"`
	}
	if err := json.Unmarshal([]byte(document), &policy); err != nil {
		return "", nil, fmt.Errorf("failed to parse trust policy: %w", err)
	}

	for _, stmt := range policy.Statement {
		equals, ok := stmt.Condition["StringEquals"]
		if !ok {
			continue
		}
		if v, ok := equals[providerARN+":aud"]; ok {
			if s, ok := v.(string); ok {
				audience = s
			}
		}
		if v, ok := equals[providerARN+":sub"]; ok {
			switch s := v.(type) {
			case string:
				subjects = []string{s}
			case []interface{}:
				for _, item := range s {
					if str, ok := item.(string); ok {
						subjects = append(subjects, str)
					}
				}
			}
		}
	}

	if audience == "" && subjects == nil {
		return "", nil, fmt.Errorf("trust policy has no condition for provider %s", providerARN)
	}
	return audience, subjects, nil
}

func sameClaimSet(got, want []string) bool {
	if len(got) != len(want) {
		return false
	}
	set := make(map[string]bool, len(want))
	for _, w := range want {
		set[w] = true
	}
	for _, g := range got {
		if !set[g] {
			return false
		}
	}
	return true
}
