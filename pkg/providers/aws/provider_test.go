package aws

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umbrohq/stagetrust/pkg/stagetrust"
)

const testProviderARN = "arn:aws:iam::123456789012:oidc-provider/oidc.vercel.com"

func testConfig(stage stagetrust.Stage) *stagetrust.Config {
	return &stagetrust.Config{
		Stage:           stage,
		Org:             "umbro",
		Project:         "umbro-web",
		OIDCProviderARN: testProviderARN,
	}
}

type fakeIAM struct {
	roles     map[string]*Role
	policies  map[string][]string
	oidc      *OIDCProvider
	failOn    string
	createErr error
}

func newFakeIAM() *fakeIAM {
	return &fakeIAM{
		roles:    make(map[string]*Role),
		policies: make(map[string][]string),
	}
}

func (f *fakeIAM) GetRole(_ context.Context, roleName string) (*Role, error) {
	if f.failOn == "GetRole" {
		return nil, fmt.Errorf("access denied")
	}
	role, ok := f.roles[roleName]
	if !ok {
		return nil, stagetrust.ErrNotFound("iam:role", roleName)
	}
	return role, nil
}

func (f *fakeIAM) CreateRole(_ context.Context, input *CreateRoleInput) (*Role, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	role := &Role{
		ARN:                      "arn:aws:iam::123456789012:role/" + input.RoleName,
		RoleName:                 input.RoleName,
		AssumeRolePolicyDocument: input.AssumeRolePolicyDocument,
		Description:              input.Description,
		MaxSessionDuration:       input.MaxSessionDuration,
	}
	f.roles[input.RoleName] = role
	return role, nil
}

func (f *fakeIAM) UpdateAssumeRolePolicy(_ context.Context, roleName, policy string) error {
	role, ok := f.roles[roleName]
	if !ok {
		return stagetrust.ErrNotFound("iam:role", roleName)
	}
	role.AssumeRolePolicyDocument = policy
	return nil
}

func (f *fakeIAM) DeleteRole(_ context.Context, roleName string) error {
	if f.failOn == "DeleteRole" {
		return fmt.Errorf("access denied")
	}
	if _, ok := f.roles[roleName]; !ok {
		return stagetrust.ErrNotFound("iam:role", roleName)
	}
	delete(f.roles, roleName)
	return nil
}

func (f *fakeIAM) AttachRolePolicy(_ context.Context, roleName, policyARN string) error {
	if f.failOn == "AttachRolePolicy" {
		return fmt.Errorf("access denied")
	}
	f.policies[roleName] = append(f.policies[roleName], policyARN)
	return nil
}

func (f *fakeIAM) DetachRolePolicy(_ context.Context, roleName, policyARN string) error {
	attached := f.policies[roleName]
	for i, arn := range attached {
		if arn == policyARN {
			f.policies[roleName] = append(attached[:i], attached[i+1:]...)
			return nil
		}
	}
	return stagetrust.ErrNotFound("iam:policy", policyARN)
}

func (f *fakeIAM) ListAttachedRolePolicies(_ context.Context, roleName string) ([]string, error) {
	return f.policies[roleName], nil
}

func (f *fakeIAM) GetOpenIDConnectProvider(_ context.Context, arn string) (*OIDCProvider, error) {
	if f.oidc == nil || f.oidc.ARN != arn {
		return nil, stagetrust.ErrNotFound("iam:oidc-provider", arn)
	}
	return f.oidc, nil
}

func TestSetupStageRoleCreatesRole(t *testing.T) {
	fake := newFakeIAM()
	p := New(WithIAM(fake))

	ref, err := p.SetupStageRole(context.Background(), testConfig(stagetrust.StageAlpha), SetupOptions{})
	require.NoError(t, err)

	assert.Equal(t, "UmbroVercelAlpha", ref.RoleLabel)
	assert.True(t, ref.Owned)
	assert.NotEmpty(t, ref.RoleARN)

	role := fake.roles["UmbroVercelAlpha"]
	require.NotNil(t, role)
	assert.Contains(t, role.AssumeRolePolicyDocument, "sts:AssumeRoleWithWebIdentity")
	assert.Contains(t, role.AssumeRolePolicyDocument, "owner:umbro:project:umbro-web:environment:development")
	assert.Contains(t, role.AssumeRolePolicyDocument, "owner:umbro:project:umbro-web:environment:preview")
	assert.Contains(t, role.AssumeRolePolicyDocument, "https://vercel.com/umbro")
}

func TestSetupStageRoleUpdatesExistingRole(t *testing.T) {
	fake := newFakeIAM()
	fake.roles["UmbroVercelProduction"] = &Role{
		ARN:                      "arn:aws:iam::123456789012:role/UmbroVercelProduction",
		RoleName:                 "UmbroVercelProduction",
		AssumeRolePolicyDocument: `{"Version":"2012-10-17","Statement":[]}`,
	}
	p := New(WithIAM(fake))

	ref, err := p.SetupStageRole(context.Background(), testConfig(stagetrust.StageProduction), SetupOptions{})
	require.NoError(t, err)

	// Not created by us, so not owned.
	assert.False(t, ref.Owned)
	assert.Contains(t, fake.roles["UmbroVercelProduction"].AssumeRolePolicyDocument,
		"owner:umbro:project:umbro-web:environment:production")
}

func TestSetupStageRoleIdempotent(t *testing.T) {
	fake := newFakeIAM()
	p := New(WithIAM(fake))
	cfg := testConfig(stagetrust.StageBeta)

	first, err := p.SetupStageRole(context.Background(), cfg, SetupOptions{})
	require.NoError(t, err)
	second, err := p.SetupStageRole(context.Background(), cfg, SetupOptions{})
	require.NoError(t, err)

	assert.Equal(t, first.RoleARN, second.RoleARN)
	assert.Len(t, fake.roles, 1)
}

func TestSetupStageRoleRequiresProviderARN(t *testing.T) {
	cfg := testConfig(stagetrust.StageAlpha)
	cfg.OIDCProviderARN = ""
	p := New(WithIAM(newFakeIAM()))

	_, err := p.SetupStageRole(context.Background(), cfg, SetupOptions{})
	require.Error(t, err)
	assert.True(t, stagetrust.IsCategory(err, stagetrust.ErrCategoryConfiguration))
}

func TestSetupStageRoleDryRun(t *testing.T) {
	fake := newFakeIAM()
	p := New(WithIAM(fake))

	_, err := p.SetupStageRole(context.Background(), testConfig(stagetrust.StageGamma), SetupOptions{DryRun: true})
	require.NoError(t, err)
	assert.Empty(t, fake.roles)
}

func TestSetupStageRoleRollsBackOnAttachFailure(t *testing.T) {
	fake := newFakeIAM()
	fake.failOn = "AttachRolePolicy"
	p := New(WithIAM(fake))

	_, err := p.SetupStageRole(context.Background(), testConfig(stagetrust.StageAlpha), SetupOptions{
		PolicyARNs: []string{"arn:aws:iam::aws:policy/ReadOnlyAccess"},
	})
	require.Error(t, err)
	assert.Empty(t, fake.roles, "created role should be rolled back")
}

func TestSetupStageRoleReportsOrphanOnRollbackFailure(t *testing.T) {
	fake := newFakeIAM()
	fake.failOn = "AttachRolePolicy"
	p := New(WithIAM(fake))

	// Make rollback fail too by stacking failures: AttachRolePolicy
	// fails, then DeleteRole fails.
	fakeBoth := &doubleFailIAM{fakeIAM: fake}
	p = New(WithIAM(fakeBoth))

	_, err := p.SetupStageRole(context.Background(), testConfig(stagetrust.StageAlpha), SetupOptions{
		PolicyARNs: []string{"arn:aws:iam::aws:policy/ReadOnlyAccess"},
	})
	require.Error(t, err)

	var rbErr *stagetrust.RollbackError
	require.ErrorAs(t, err, &rbErr)
	assert.NotEmpty(t, rbErr.OrphanedResources)
}

type doubleFailIAM struct {
	*fakeIAM
}

func (f *doubleFailIAM) AttachRolePolicy(context.Context, string, string) error {
	return fmt.Errorf("access denied")
}

func (f *doubleFailIAM) DeleteRole(context.Context, string) error {
	return fmt.Errorf("access denied")
}

func TestDeleteStageRoleRefusesUnowned(t *testing.T) {
	p := New(WithIAM(newFakeIAM()))
	ref := stagetrust.NewRoleRef(stagetrust.StageAlpha, "UmbroVercelAlpha", "arn", testProviderARN)
	ref.Owned = false

	err := p.DeleteStageRole(context.Background(), ref, DeleteOptions{})
	require.Error(t, err)
	assert.True(t, stagetrust.IsCategory(err, stagetrust.ErrCategoryPermission))
}

func TestDeleteStageRoleDetachesAndDeletes(t *testing.T) {
	fake := newFakeIAM()
	p := New(WithIAM(fake))
	cfg := testConfig(stagetrust.StageAlpha)

	ref, err := p.SetupStageRole(context.Background(), cfg, SetupOptions{
		PolicyARNs: []string{"arn:aws:iam::aws:policy/ReadOnlyAccess"},
	})
	require.NoError(t, err)

	err = p.DeleteStageRole(context.Background(), *ref, DeleteOptions{})
	require.NoError(t, err)
	assert.Empty(t, fake.roles)
	assert.Empty(t, fake.policies[ref.RoleLabel])
}

func TestDeleteStageRoleIdempotent(t *testing.T) {
	fake := newFakeIAM()
	p := New(WithIAM(fake))

	ref := stagetrust.NewRoleRef(stagetrust.StageAlpha, "UmbroVercelAlpha", "arn", testProviderARN)
	ref.Owned = true

	// Role never existed; delete still succeeds.
	err := p.DeleteStageRole(context.Background(), ref, DeleteOptions{})
	require.NoError(t, err)
}

func TestValidatorsPassOnConvergedRole(t *testing.T) {
	fake := newFakeIAM()
	fake.oidc = &OIDCProvider{
		ARN:          testProviderARN,
		URL:          "https://oidc.vercel.com",
		ClientIDList: []string{"https://vercel.com/umbro"},
	}
	p := New(WithIAM(fake))
	cfg := testConfig(stagetrust.StageAlpha)

	ref, err := p.SetupStageRole(context.Background(), cfg, SetupOptions{})
	require.NoError(t, err)

	validators, err := p.Validators(cfg)
	require.NoError(t, err)

	report := stagetrust.RunValidation(context.Background(), *ref, validators)
	assert.True(t, report.IsValid(), "failed checks: %v", report.FailedChecks())
}

func TestValidatorsDetectDriftedTrustPolicy(t *testing.T) {
	fake := newFakeIAM()
	fake.oidc = &OIDCProvider{
		ARN:          testProviderARN,
		ClientIDList: []string{"https://vercel.com/umbro"},
	}
	p := New(WithIAM(fake))
	cfg := testConfig(stagetrust.StageAlpha)

	ref, err := p.SetupStageRole(context.Background(), cfg, SetupOptions{})
	require.NoError(t, err)

	// Drift: someone rewrote the policy to trust a different project.
	drifted := fake.roles[ref.RoleLabel]
	drifted.AssumeRolePolicyDocument = fmt.Sprintf(
		`{"Version":"2012-10-17","Statement":[{"Effect":"Allow","Principal":{"Federated":"%s"},"Action":"sts:AssumeRoleWithWebIdentity","Condition":{"StringEquals":{"%s:aud":"https://vercel.com/umbro","%s:sub":"owner:umbro:project:other:environment:preview"}}}]}`,
		testProviderARN, testProviderARN, testProviderARN)

	validators, err := p.Validators(cfg)
	require.NoError(t, err)

	report := stagetrust.RunValidation(context.Background(), *ref, validators)
	assert.False(t, report.IsValid())
}

func TestValidatorsDetectMissingAudience(t *testing.T) {
	fake := newFakeIAM()
	fake.oidc = &OIDCProvider{
		ARN:          testProviderARN,
		ClientIDList: []string{"https://vercel.com/someone-else"},
	}
	p := New(WithIAM(fake))
	cfg := testConfig(stagetrust.StageAlpha)

	ref, err := p.SetupStageRole(context.Background(), cfg, SetupOptions{})
	require.NoError(t, err)

	validators, err := p.Validators(cfg)
	require.NoError(t, err)

	report := stagetrust.RunValidation(context.Background(), *ref, validators)
	assert.False(t, report.IsValid())

	failed := report.FailedChecks()
	require.Len(t, failed, 1)
	assert.Equal(t, "audience_registered", failed[0].ID)
}

func TestDecodeTrustConditionsURLEncoded(t *testing.T) {
	// IAM returns the policy document URL-encoded.
	plain := fmt.Sprintf(
		`{"Version":"2012-10-17","Statement":[{"Condition":{"StringEquals":{"%s:aud":"https://vercel.com/umbro","%s:sub":["owner:umbro:project:umbro-web:environment:development","owner:umbro:project:umbro-web:environment:preview"]}}}]}`,
		testProviderARN, testProviderARN)

	aud, subs, err := decodeTrustConditions(plain, testProviderARN)
	require.NoError(t, err)
	assert.Equal(t, "https://vercel.com/umbro", aud)
	assert.Len(t, subs, 2)
}

func TestDecodeTrustConditionsScalarSubject(t *testing.T) {
	doc := fmt.Sprintf(
		`{"Version":"2012-10-17","Statement":[{"Condition":{"StringEquals":{"%s:aud":"https://vercel.com/umbro","%s:sub":"owner:umbro:project:umbro-web:environment:production"}}}]}`,
		testProviderARN, testProviderARN)

	aud, subs, err := decodeTrustConditions(doc, testProviderARN)
	require.NoError(t, err)
	assert.Equal(t, "https://vercel.com/umbro", aud)
	assert.Equal(t, []string{"owner:umbro:project:umbro-web:environment:production"}, subs)
}
