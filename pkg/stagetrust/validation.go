package stagetrust

import (
	"context"
	"regexp"
	"time"
)

// Severity indicates the severity level of a validation check.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// CheckStatus indicates the result of a validation check.
type CheckStatus string

const (
	CheckStatusPassed  CheckStatus = "passed"
	CheckStatusFailed  CheckStatus = "failed"
	CheckStatusSkipped CheckStatus = "skipped"
)

// ValidationCheck represents a single validation check result.
type ValidationCheck struct {
	// ID is a unique identifier for this check type.
	ID string `json:"id"`

	// Name is a human-readable name for the check.
	Name string `json:"name"`

	// Description explains what this check validates.
	Description string `json:"description"`

	// Status is the check result.
	Status CheckStatus `json:"status"`

	// Severity indicates how serious a failure would be.
	Severity Severity `json:"severity"`

	// Evidence contains data supporting the check result. It must
	// never contain seed material or derived secret values.
	Evidence map[string]interface{} `json:"evidence,omitempty"`

	// Remediation contains steps to fix a failed check.
	Remediation string `json:"remediation,omitempty"`

	// Duration is how long the check took to run.
	Duration time.Duration `json:"duration"`
}

// ValidationReport contains the results of validating a stage role.
type ValidationReport struct {
	// Ref identifies the validated role.
	Ref RoleRef `json:"ref"`

	// Checks contains all validation check results.
	Checks []ValidationCheck `json:"checks"`

	// Summary provides aggregate status.
	Summary ValidationSummary `json:"summary"`

	// ValidatedAt is when validation was performed.
	ValidatedAt time.Time `json:"validated_at"`
}

// ValidationSummary provides aggregate validation statistics.
type ValidationSummary struct {
	TotalChecks   int  `json:"total_checks"`
	PassedChecks  int  `json:"passed_checks"`
	FailedChecks  int  `json:"failed_checks"`
	SkippedChecks int  `json:"skipped_checks"`
	IsValid       bool `json:"is_valid"`
}

// IsValid returns true if no check of error severity or above failed.
func (r *ValidationReport) IsValid() bool {
	for _, check := range r.Checks {
		if check.Status == CheckStatusFailed &&
			(check.Severity == SeverityError || check.Severity == SeverityCritical) {
			return false
		}
	}
	return true
}

// FailedChecks returns only the checks that failed.
func (r *ValidationReport) FailedChecks() []ValidationCheck {
	var failed []ValidationCheck
	for _, check := range r.Checks {
		if check.Status == CheckStatusFailed {
			failed = append(failed, check)
		}
	}
	return failed
}

// Validator performs validation checks on stage roles. Concrete
// validators live with the provider that can reach the resource.
type Validator interface {
	// ID returns the unique identifier for this validator.
	ID() string

	// Name returns a human-readable name.
	Name() string

	// Description returns what this validator checks.
	Description() string

	// Validate performs the validation check.
	Validate(ctx context.Context, ref RoleRef) ValidationCheck
}

// RunValidation executes validators against a role reference and
// assembles the report.
func RunValidation(ctx context.Context, ref RoleRef, validators []Validator) *ValidationReport {
	report := &ValidationReport{
		Ref:         ref,
		Checks:      make([]ValidationCheck, 0, len(validators)),
		ValidatedAt: time.Now(),
	}

	for _, v := range validators {
		if ctx.Err() != nil {
			check := ValidationCheck{
				ID:          v.ID(),
				Name:        v.Name(),
				Description: v.Description(),
				Status:      CheckStatusSkipped,
				Severity:    SeverityWarning,
				Remediation: "Validation cancelled before this check ran",
			}
			report.Checks = append(report.Checks, check)
			continue
		}
		report.Checks = append(report.Checks, v.Validate(ctx, ref))
	}

	for _, check := range report.Checks {
		report.Summary.TotalChecks++
		switch check.Status {
		case CheckStatusPassed:
			report.Summary.PassedChecks++
		case CheckStatusFailed:
			report.Summary.FailedChecks++
		case CheckStatusSkipped:
			report.Summary.SkippedChecks++
		}
	}
	report.Summary.IsValid = report.IsValid()

	return report
}

// derivedSecretPattern is the shape every derived secret must have.
var derivedSecretPattern = regexp.MustCompile(`^[0-9a-f]{64}$`)

// ValidDerivedSecret reports whether a value has the exact shape of
// a derived secret: 64 lowercase hex characters.
func ValidDerivedSecret(value string) bool {
	return derivedSecretPattern.MatchString(value)
}
