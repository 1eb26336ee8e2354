package stagetrust

import "fmt"

// audienceBase is the deployment platform's audience URI prefix.
const audienceBase = "https://vercel.com/"

// Audience returns the audience claim value for an organization:
// the platform URI scoped to the org slug.
func Audience(org string) string {
	return audienceBase + org
}

// SubjectClaim builds the colon-delimited subject claim identifying
// one external deployment context.
func SubjectClaim(org, project, environment string) string {
	return fmt.Sprintf("owner:%s:project:%s:environment:%s", org, project, environment)
}

// BuildSubjectClaims constructs one subject claim per environment
// name, preserving input order. Order matters only for
// reproducibility; the eventual trust condition is a set match.
func BuildSubjectClaims(org, project string, environments []string) ([]string, error) {
	if org == "" {
		return nil, ErrConfiguration("organization slug is empty").
			WithOperation("build_subject_claims")
	}
	if project == "" {
		return nil, ErrConfiguration("project name is empty").
			WithOperation("build_subject_claims")
	}
	if len(environments) == 0 {
		return nil, ErrConfiguration("no external environments given").
			WithOperation("build_subject_claims")
	}

	claims := make([]string, 0, len(environments))
	for _, env := range environments {
		claims = append(claims, SubjectClaim(org, project, env))
	}
	return claims, nil
}

// TrustCondition pins the audience and subject claims a federated
// caller must present to assume a role. Both must be pinned:
// omitting either widens the trust policy to an unacceptably broad
// set of callers, so BuildTrustCondition is the only constructor.
type TrustCondition struct {
	// Audience is the expected audience claim value.
	Audience string

	// Subjects are the acceptable subject claim values, in the
	// order the claims were built.
	Subjects []string
}

// BuildTrustCondition builds a TrustCondition from an audience value
// and a non-empty set of subject claims.
func BuildTrustCondition(audience string, subjects []string) (TrustCondition, error) {
	if audience == "" {
		return TrustCondition{}, ErrConfiguration("trust condition audience is empty").
			WithOperation("build_trust_condition")
	}
	if len(subjects) == 0 {
		return TrustCondition{}, ErrConfiguration("trust condition has no subject claims").
			WithOperation("build_trust_condition")
	}
	return TrustCondition{
		Audience: audience,
		Subjects: append([]string(nil), subjects...),
	}, nil
}

// SubjectValue returns the condition value for the subject claim: a
// scalar string for exactly one claim, a list for more than one. The
// consuming policy format distinguishes exact-match from any-of-match
// syntactically, so the collapsing is required.
func (c TrustCondition) SubjectValue() interface{} {
	if len(c.Subjects) == 1 {
		return c.Subjects[0]
	}
	return append([]string(nil), c.Subjects...)
}
