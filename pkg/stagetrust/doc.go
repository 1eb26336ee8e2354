// Package stagetrust provides per-stage secret derivation and the
// stage-to-deployment-platform identity mapping used to build
// audience and subject scoped OIDC trust policies.
//
// # Overview
//
// stagetrust is the core of the umbro deployment tooling. For every
// deployment stage it can:
//   - derive a deterministic per-stage secret from a seed held in a
//     secret store (HMAC-SHA256 with a fixed domain-separation tag)
//   - map the stage to the external platform environments that are
//     allowed to assume the stage's AWS role
//   - build the trust condition (audience + subject claims) attached
//     to the role's federated trust policy
//
// # Core Concepts
//
// ## Stages
//
// A Stage is one of a closed set of deployment environment tiers
// (Development, Alpha, Beta, Gamma, Production, Root, Pipeline).
// Every stage maps to at least one external platform environment;
// Production always maps to exactly {"production"}.
//
// ## Trust Conditions
//
// A TrustCondition pins both the audience claim and the subject
// claim(s) a federated caller must present. Omitting either would
// widen the trust policy to an unacceptably broad set of callers, so
// BuildTrustCondition refuses to build a half-pinned condition.
//
// ## Derived Secrets
//
// A SecretDeriver turns (seed, stage) into a 64-character lowercase
// hex secret. The derivation mixes a fixed "<namespace>|<purpose>|"
// tag into the HMAC message so the same seed reused for another
// purpose yields an unrelated value. Seeds and derived secrets are
// never logged and never persisted by this package.
//
// ## State Store
//
// The StateStore tracks roles created by this tooling and their
// ownership, so deletion only touches resources the tooling created.
//
// # Usage
//
//	stage, err := stagetrust.ParseStage("Alpha")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	claims, err := stagetrust.BuildSubjectClaims("acme", "widget", stage.ExternalEnvironments())
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	cond, err := stagetrust.BuildTrustCondition(stagetrust.Audience("acme"), claims)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	secret, err := stagetrust.NewSecretDeriver().Derive(seed, stage)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// The AWS and Vercel providers under pkg/providers consume the
// condition and the derived secret; this package performs no I/O.
package stagetrust
