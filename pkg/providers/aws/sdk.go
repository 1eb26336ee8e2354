package aws

import (
	"context"
	"errors"
	"fmt"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	iamtypes "github.com/aws/aws-sdk-go-v2/service/iam/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	smtypes "github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"

	"github.com/umbrohq/stagetrust/pkg/stagetrust"
)

// SDKClients bundles the real AWS service clients behind the
// provider's narrow interfaces.
type SDKClients struct {
	IAM     IAMAPI
	Outputs OutputsAPI
	Seeds   SeedSource
	Tables  TableAPI
	Buckets BucketAPI
}

// NewSDKClients loads the default AWS configuration and constructs
// service clients for every interface the provider consumes.
func NewSDKClients(ctx context.Context, region string) (*SDKClients, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{}
	if region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, stagetrust.ErrConfiguration("failed to load AWS configuration").WithCause(err)
	}
	return &SDKClients{
		IAM:     &iamSDK{client: iam.NewFromConfig(cfg)},
		Outputs: &cfnSDK{client: cloudformation.NewFromConfig(cfg)},
		Seeds:   &smSDK{client: secretsmanager.NewFromConfig(cfg)},
		Tables:  &ddbSDK{client: dynamodb.NewFromConfig(cfg)},
		Buckets: &s3SDK{client: s3.NewFromConfig(cfg)},
	}, nil
}

type iamSDK struct {
	client *iam.Client
}

func (s *iamSDK) GetRole(ctx context.Context, roleName string) (*Role, error) {
	out, err := s.client.GetRole(ctx, &iam.GetRoleInput{RoleName: awssdk.String(roleName)})
	if err != nil {
		var nse *iamtypes.NoSuchEntityException
		if errors.As(err, &nse) {
			return nil, stagetrust.ErrNotFound("iam:role", roleName).WithCause(err)
		}
		return nil, err
	}
	role := &Role{
		ARN:      awssdk.ToString(out.Role.Arn),
		RoleName: awssdk.ToString(out.Role.RoleName),
	}
	if out.Role.AssumeRolePolicyDocument != nil {
		role.AssumeRolePolicyDocument = *out.Role.AssumeRolePolicyDocument
	}
	if out.Role.Description != nil {
		role.Description = *out.Role.Description
	}
	if out.Role.MaxSessionDuration != nil {
		role.MaxSessionDuration = *out.Role.MaxSessionDuration
	}
	return role, nil
}

func (s *iamSDK) CreateRole(ctx context.Context, input *CreateRoleInput) (*Role, error) {
	var tags []iamtypes.Tag
	for k, v := range input.Tags {
		tags = append(tags, iamtypes.Tag{Key: awssdk.String(k), Value: awssdk.String(v)})
	}
	out, err := s.client.CreateRole(ctx, &iam.CreateRoleInput{
		RoleName:                 awssdk.String(input.RoleName),
		AssumeRolePolicyDocument: awssdk.String(input.AssumeRolePolicyDocument),
		Description:              awssdk.String(input.Description),
		MaxSessionDuration:       awssdk.Int32(input.MaxSessionDuration),
		Tags:                     tags,
	})
	if err != nil {
		var eae *iamtypes.EntityAlreadyExistsException
		if errors.As(err, &eae) {
			return nil, stagetrust.ErrConflict("iam:role", input.RoleName).WithCause(err)
		}
		return nil, err
	}
	return &Role{
		ARN:                      awssdk.ToString(out.Role.Arn),
		RoleName:                 awssdk.ToString(out.Role.RoleName),
		AssumeRolePolicyDocument: input.AssumeRolePolicyDocument,
	}, nil
}

func (s *iamSDK) UpdateAssumeRolePolicy(ctx context.Context, roleName, policy string) error {
	_, err := s.client.UpdateAssumeRolePolicy(ctx, &iam.UpdateAssumeRolePolicyInput{
		RoleName:       awssdk.String(roleName),
		PolicyDocument: awssdk.String(policy),
	})
	return err
}

func (s *iamSDK) DeleteRole(ctx context.Context, roleName string) error {
	_, err := s.client.DeleteRole(ctx, &iam.DeleteRoleInput{RoleName: awssdk.String(roleName)})
	if err != nil {
		var nse *iamtypes.NoSuchEntityException
		if errors.As(err, &nse) {
			return stagetrust.ErrNotFound("iam:role", roleName).WithCause(err)
		}
	}
	return err
}

func (s *iamSDK) AttachRolePolicy(ctx context.Context, roleName, policyARN string) error {
	_, err := s.client.AttachRolePolicy(ctx, &iam.AttachRolePolicyInput{
		RoleName:  awssdk.String(roleName),
		PolicyArn: awssdk.String(policyARN),
	})
	return err
}

func (s *iamSDK) DetachRolePolicy(ctx context.Context, roleName, policyARN string) error {
	_, err := s.client.DetachRolePolicy(ctx, &iam.DetachRolePolicyInput{
		RoleName:  awssdk.String(roleName),
		PolicyArn: awssdk.String(policyARN),
	})
	return err
}

func (s *iamSDK) ListAttachedRolePolicies(ctx context.Context, roleName string) ([]string, error) {
	var arns []string
	paginator := iam.NewListAttachedRolePoliciesPaginator(s.client, &iam.ListAttachedRolePoliciesInput{
		RoleName: awssdk.String(roleName),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, p := range page.AttachedPolicies {
			arns = append(arns, awssdk.ToString(p.PolicyArn))
		}
	}
	return arns, nil
}

func (s *iamSDK) GetOpenIDConnectProvider(ctx context.Context, arn string) (*OIDCProvider, error) {
	out, err := s.client.GetOpenIDConnectProvider(ctx, &iam.GetOpenIDConnectProviderInput{
		OpenIDConnectProviderArn: awssdk.String(arn),
	})
	if err != nil {
		var nse *iamtypes.NoSuchEntityException
		if errors.As(err, &nse) {
			return nil, stagetrust.ErrNotFound("iam:oidc-provider", arn).WithCause(err)
		}
		return nil, err
	}
	return &OIDCProvider{
		ARN:          arn,
		URL:          awssdk.ToString(out.Url),
		ClientIDList: out.ClientIDList,
	}, nil
}

type cfnSDK struct {
	client *cloudformation.Client
}

func (s *cfnSDK) StackOutputs(ctx context.Context, stackName string) (map[string]string, error) {
	out, err := s.client.DescribeStacks(ctx, &cloudformation.DescribeStacksInput{
		StackName: awssdk.String(stackName),
	})
	if err != nil {
		return nil, err
	}
	if len(out.Stacks) == 0 {
		return nil, stagetrust.ErrNotFound("cloudformation:stack", stackName)
	}
	outputs := make(map[string]string)
	for _, o := range out.Stacks[0].Outputs {
		outputs[awssdk.ToString(o.OutputKey)] = awssdk.ToString(o.OutputValue)
	}
	return outputs, nil
}

type smSDK struct {
	client *secretsmanager.Client
}

func (s *smSDK) Seed(ctx context.Context, secretName string) (string, error) {
	out, err := s.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: awssdk.String(secretName),
	})
	if err != nil {
		var rnf *smtypes.ResourceNotFoundException
		if errors.As(err, &rnf) {
			return "", stagetrust.ErrNotFound("secretsmanager:secret", secretName).WithCause(err)
		}
		return "", err
	}
	if out.SecretString == nil {
		return "", stagetrust.ErrInternal("secret has no string value").
			WithResource("secretsmanager:secret", secretName)
	}
	return *out.SecretString, nil
}

type ddbSDK struct {
	client *dynamodb.Client
}

func (s *ddbSDK) TableExists(ctx context.Context, name string) (bool, error) {
	_, err := s.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: awssdk.String(name),
	})
	if err != nil {
		var rnf *ddbtypes.ResourceNotFoundException
		if errors.As(err, &rnf) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *ddbSDK) CreateTable(ctx context.Context, name string) error {
	_, err := s.client.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName:   awssdk.String(name),
		BillingMode: ddbtypes.BillingModePayPerRequest,
		AttributeDefinitions: []ddbtypes.AttributeDefinition{
			{AttributeName: awssdk.String("pk"), AttributeType: ddbtypes.ScalarAttributeTypeS},
			{AttributeName: awssdk.String("sk"), AttributeType: ddbtypes.ScalarAttributeTypeS},
		},
		KeySchema: []ddbtypes.KeySchemaElement{
			{AttributeName: awssdk.String("pk"), KeyType: ddbtypes.KeyTypeHash},
			{AttributeName: awssdk.String("sk"), KeyType: ddbtypes.KeyTypeRange},
		},
	})
	if err != nil {
		var riu *ddbtypes.ResourceInUseException
		if errors.As(err, &riu) {
			return stagetrust.ErrConflict("dynamodb:table", name).WithCause(err)
		}
	}
	return err
}

type s3SDK struct {
	client *s3.Client
}

func (s *s3SDK) BucketExists(ctx context.Context, name string) (bool, error) {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: awssdk.String(name)})
	if err != nil {
		var nf *s3types.NotFound
		if errors.As(err, &nf) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check bucket %s: %w", name, err)
	}
	return true, nil
}

func (s *s3SDK) CreateBucket(ctx context.Context, name string) error {
	_, err := s.client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: awssdk.String(name)})
	if err != nil {
		var owned *s3types.BucketAlreadyOwnedByYou
		if errors.As(err, &owned) {
			return stagetrust.ErrConflict("s3:bucket", name).WithCause(err)
		}
	}
	return err
}
