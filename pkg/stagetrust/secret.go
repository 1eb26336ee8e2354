package stagetrust

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

const (
	// DefaultNamespace is the fixed application tag mixed into every
	// derivation message. Together with the purpose it provides
	// domain separation: the same seed used for another purpose in
	// the same system yields an unrelated secret.
	DefaultNamespace = "umbro"

	// DefaultPurpose identifies what the derived value is for.
	DefaultPurpose = "nextauth"

	// PrimarySecretName is the configuration-variable name the
	// derived secret is published under.
	PrimarySecretName = "NEXTAUTH_SECRET"

	// LegacySecretName is the legacy-compatible alias; it always
	// receives the identical value.
	LegacySecretName = "AUTH_SECRET"
)

// SecretAliases returns the configuration-variable names the derived
// secret is published under, primary first. Both names receive the
// same value.
func SecretAliases() []string {
	return []string{PrimarySecretName, LegacySecretName}
}

// SecretDeriver derives deterministic per-stage secrets from a seed.
// It is pure: no state, no I/O, no randomness, no clock dependency.
type SecretDeriver struct {
	// Namespace is the application tag in the derivation message.
	Namespace string

	// Purpose is the purpose tag in the derivation message.
	Purpose string
}

// NewSecretDeriver creates a SecretDeriver with the umbro/nextauth
// domain-separation tags.
func NewSecretDeriver() *SecretDeriver {
	return &SecretDeriver{
		Namespace: DefaultNamespace,
		Purpose:   DefaultPurpose,
	}
}

// Derive computes HMAC-SHA256(key=seed, message="<ns>|<purpose>|<stage>")
// and returns the digest as 64 lowercase hex characters.
//
// The seed must be non-empty; the caller is responsible for sourcing
// a high-entropy seed (at least 32 characters recommended) from a
// secret store. Presence is the only thing checked here. Rotating
// the seed invalidates every secret previously derived from it.
//
// Neither the seed nor the derived value may ever be logged.
func (d *SecretDeriver) Derive(seed string, stage Stage) (string, error) {
	if seed == "" {
		return "", ErrConfiguration("derivation seed is empty").
			WithOperation("derive_secret").
			WithStage(stage)
	}

	mac := hmac.New(sha256.New, []byte(seed))
	mac.Write([]byte(d.message(stage)))
	return hex.EncodeToString(mac.Sum(nil)), nil
}

// message builds the domain-separated HMAC message for a stage.
func (d *SecretDeriver) message(stage Stage) string {
	return d.Namespace + "|" + d.Purpose + "|" + string(stage)
}
