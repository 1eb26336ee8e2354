package stagetrust

import "encoding/json"

// BuildAssumeRolePolicy builds the federated trust-policy document
// for an IAM role: the given OIDC provider as the principal,
// sts:AssumeRoleWithWebIdentity as the action, and a StringEquals
// condition pinning both the audience and subject claims. The
// subject value is a scalar for a single claim and a list otherwise.
func BuildAssumeRolePolicy(oidcProviderARN string, cond TrustCondition) (map[string]interface{}, error) {
	if oidcProviderARN == "" {
		return nil, ErrConfiguration("OIDC provider ARN is empty").
			WithOperation("build_assume_role_policy")
	}
	if cond.Audience == "" || len(cond.Subjects) == 0 {
		return nil, ErrConfiguration("trust condition must pin both audience and subject").
			WithOperation("build_assume_role_policy")
	}

	condition := map[string]interface{}{
		"StringEquals": map[string]interface{}{
			oidcProviderARN + ":aud": cond.Audience,
			oidcProviderARN + ":sub": cond.SubjectValue(),
		},
	}

	return map[string]interface{}{
		"Version": "2012-10-17",
		"Statement": []map[string]interface{}{
			{
				"Effect": "Allow",
				"Principal": map[string]string{
					"Federated": oidcProviderARN,
				},
				"Action":    "sts:AssumeRoleWithWebIdentity",
				"Condition": condition,
			},
		},
	}, nil
}

// AssumeRolePolicyJSON builds the trust-policy document and marshals
// it to the JSON form the IAM API accepts.
func AssumeRolePolicyJSON(oidcProviderARN string, cond TrustCondition) (string, error) {
	policy, err := BuildAssumeRolePolicy(oidcProviderARN, cond)
	if err != nil {
		return "", err
	}
	data, err := json.Marshal(policy)
	if err != nil {
		return "", ErrInternal("failed to marshal trust policy").WithCause(err)
	}
	return string(data), nil
}
