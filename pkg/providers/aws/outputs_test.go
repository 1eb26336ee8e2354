package aws

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umbrohq/stagetrust/pkg/stagetrust"
)

type fakeOutputs struct {
	outputs map[string]string
	err     error
}

func (f *fakeOutputs) StackOutputs(context.Context, string) (map[string]string, error) {
	return f.outputs, f.err
}

type recordingSink struct {
	vars    map[string]string
	targets map[string][]string
	failOn  string
}

func newRecordingSink() *recordingSink {
	return &recordingSink{vars: make(map[string]string), targets: make(map[string][]string)}
}

func (s *recordingSink) UpsertEnvironmentVariable(_ context.Context, _, key, value string, targets []string, _ bool) error {
	if s.failOn == key {
		return fmt.Errorf("upstream rejected %s", key)
	}
	s.vars[key] = value
	s.targets[key] = targets
	return nil
}

func TestCopyStackOutputs(t *testing.T) {
	cfg := testConfig(stagetrust.StageAlpha)
	cfg.StackName = "umbro-alpha"
	p := New(WithIAM(newFakeIAM()), WithOutputs(&fakeOutputs{outputs: map[string]string{
		"ApiURL":       "https://api.alpha.example.com",
		"UserPoolId":   "us-east-1_abc123",
		"AssetsBucket": "umbro-alpha-assets",
	}}))
	sink := newRecordingSink()

	copied, err := p.CopyStackOutputs(context.Background(), cfg, sink)
	require.NoError(t, err)
	assert.Equal(t, 3, copied)

	assert.Equal(t, "https://api.alpha.example.com", sink.vars["API_URL"])
	assert.Equal(t, "us-east-1_abc123", sink.vars["USER_POOL_ID"])
	assert.Equal(t, "umbro-alpha-assets", sink.vars["ASSETS_BUCKET"])

	// Alpha maps to both external environments.
	assert.ElementsMatch(t, []string{"development", "preview"}, sink.targets["API_URL"])
}

func TestCopyStackOutputsProductionTargets(t *testing.T) {
	cfg := testConfig(stagetrust.StageProduction)
	cfg.StackName = "umbro-production"
	p := New(WithIAM(newFakeIAM()), WithOutputs(&fakeOutputs{outputs: map[string]string{
		"ApiURL": "https://api.example.com",
	}}))
	sink := newRecordingSink()

	_, err := p.CopyStackOutputs(context.Background(), cfg, sink)
	require.NoError(t, err)
	assert.Equal(t, []string{"production"}, sink.targets["API_URL"])
}

func TestCopyStackOutputsRequiresStackName(t *testing.T) {
	cfg := testConfig(stagetrust.StageAlpha)
	p := New(WithIAM(newFakeIAM()), WithOutputs(&fakeOutputs{}))

	_, err := p.CopyStackOutputs(context.Background(), cfg, newRecordingSink())
	require.Error(t, err)
	assert.True(t, stagetrust.IsCategory(err, stagetrust.ErrCategoryConfiguration))
}

func TestCopyStackOutputsWrapsSinkFailure(t *testing.T) {
	cfg := testConfig(stagetrust.StageAlpha)
	cfg.StackName = "umbro-alpha"
	p := New(WithIAM(newFakeIAM()), WithOutputs(&fakeOutputs{outputs: map[string]string{
		"ApiURL": "https://api.alpha.example.com",
	}}))
	sink := newRecordingSink()
	sink.failOn = "API_URL"

	_, err := p.CopyStackOutputs(context.Background(), cfg, sink)
	require.Error(t, err)
	assert.True(t, stagetrust.IsCategory(err, stagetrust.ErrCategoryNetwork))
}

func TestEnvVarName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"ApiURL", "API_URL"},
		{"UserPoolId", "USER_POOL_ID"},
		{"AssetsBucket", "ASSETS_BUCKET"},
		{"DBHost", "DB_HOST"},
		{"url", "URL"},
		{"API", "API"},
		{"some-output", "SOME_OUTPUT"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, envVarName(tt.in), "input %q", tt.in)
	}
}
