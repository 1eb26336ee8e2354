package aws

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/umbrohq/stagetrust/pkg/stagetrust"
)

// OutputsAPI reads deployed CloudFormation stack outputs.
type OutputsAPI interface {
	StackOutputs(ctx context.Context, stackName string) (map[string]string, error)
}

// EnvSink receives environment variables on the deployment platform
// side. The Vercel client implements this.
type EnvSink interface {
	UpsertEnvironmentVariable(ctx context.Context, project, key, value string, targets []string, sensitive bool) error
}

// CopyStackOutputs reads the configured stack's outputs and writes
// each one as an environment variable on the platform project,
// targeted at the stage's external environments. Output keys are
// converted from CamelCase to UPPER_SNAKE form.
func (p *Provider) CopyStackOutputs(ctx context.Context, cfg *stagetrust.Config, sink EnvSink) (int, error) {
	if err := cfg.Validate(); err != nil {
		return 0, err
	}
	if cfg.StackName == "" {
		return 0, stagetrust.ErrConfiguration(fmt.Sprintf("%s is not set", stagetrust.EnvStackName)).
			WithStage(cfg.Stage).WithOperation("copy_stack_outputs")
	}
	if p.outputs == nil {
		return 0, stagetrust.ErrInternal("no stack outputs reader configured").
			WithOperation("copy_stack_outputs")
	}

	outputs, err := p.outputs.StackOutputs(ctx, cfg.StackName)
	if err != nil {
		return 0, stagetrust.ErrNetwork("failed to read stack outputs").
			WithCause(err).WithStage(cfg.Stage).WithResource("cloudformation:stack", cfg.StackName)
	}

	targets := cfg.Stage.ExternalEnvironments()
	copied := 0
	for key, value := range outputs {
		name := envVarName(key)
		if err := sink.UpsertEnvironmentVariable(ctx, cfg.Project, name, value, targets, false); err != nil {
			return copied, stagetrust.ErrNetwork("failed to write environment variable").
				WithCause(err).WithStage(cfg.Stage).WithResource("env:var", name)
		}
		copied++
	}
	return copied, nil
}

// envVarName converts a CamelCase stack output key to an
// UPPER_SNAKE environment variable name. Runs of capitals are kept
// together, so "ApiURL" becomes "API_URL".
func envVarName(key string) string {
	var b strings.Builder
	runes := []rune(key)
	for i, r := range runes {
		if unicode.IsUpper(r) && i > 0 {
			prevLower := unicode.IsLower(runes[i-1])
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if prevLower || (unicode.IsUpper(runes[i-1]) && nextLower) {
				b.WriteByte('_')
			}
		}
		if r == '-' || r == ' ' {
			b.WriteByte('_')
			continue
		}
		b.WriteRune(unicode.ToUpper(r))
	}
	return b.String()
}
