package stagetrust

import (
	"strings"
	"unicode"
)

// Stage identifies a deployment environment tier. The set of stages
// is closed: ParseStage rejects anything outside it, so a typo'd
// stage name can never reach the environment mapping.
type Stage string

const (
	StageDevelopment Stage = "Development"
	StageAlpha       Stage = "Alpha"
	StageBeta        Stage = "Beta"
	StageGamma       Stage = "Gamma"
	StageProduction  Stage = "Production"
	StageRoot        Stage = "Root"
	StagePipeline    Stage = "Pipeline"
)

// Stages returns every enumerated stage, in promotion order.
func Stages() []Stage {
	return []Stage{
		StageDevelopment,
		StageAlpha,
		StageBeta,
		StageGamma,
		StageProduction,
		StageRoot,
		StagePipeline,
	}
}

// ParseStage parses a stage label case-insensitively. An
// unrecognized label fails with an invalid-stage error rather than
// silently defaulting.
func ParseStage(label string) (Stage, error) {
	for _, s := range Stages() {
		if strings.EqualFold(label, string(s)) {
			return s, nil
		}
	}
	return "", ErrInvalidStage(label).WithOperation("parse_stage")
}

// IsProduction reports whether the stage is the production tier.
func (s Stage) IsProduction() bool {
	return s == StageProduction
}

// ExternalEnvironments maps the stage to the external platform
// environments whose deployments may assume the stage's role. The
// mapping is total over the stage enum:
//   - Alpha (pre-production) maps to both development and preview,
//     because platform deployments for either land on Alpha infra
//   - Production maps to exactly {"production"} via the explicit
//     rule; it must never reach the fallback
//   - every other stage maps to its own lowercased name
//
// Order is stable for reproducibility; the consuming trust policy
// treats the result as a set.
func (s Stage) ExternalEnvironments() []string {
	switch s {
	case StageAlpha:
		return []string{"development", "preview"}
	case StageProduction:
		return []string{"production"}
	default:
		return []string{strings.ToLower(string(s))}
	}
}

// RoleLabel returns the human-readable identifier for the stage's
// role: the fixed prefix followed by the capitalized stage name.
func (s Stage) RoleLabel(prefix string) string {
	return prefix + capitalize(strings.ToLower(string(s)))
}

// UniqueRoleLabels verifies that no two stages produce the same role
// label under the given prefix. Collisions are a configuration error
// and must be rejected before any identity resource is created.
func UniqueRoleLabels(prefix string, stages []Stage) error {
	seen := make(map[string]Stage, len(stages))
	for _, s := range stages {
		label := s.RoleLabel(prefix)
		if prev, ok := seen[label]; ok && prev != s {
			return ErrAmbiguousRoleLabel(label, prev, s)
		}
		seen[label] = s
	}
	return nil
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	r := []rune(s)
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}
