package aws

import (
	"context"
	"fmt"
	"strings"

	"github.com/umbrohq/stagetrust/pkg/stagetrust"
)

// TableAPI manages per-stage DynamoDB tables.
type TableAPI interface {
	TableExists(ctx context.Context, name string) (bool, error)
	CreateTable(ctx context.Context, name string) error
}

// BucketAPI manages per-stage S3 buckets.
type BucketAPI interface {
	BucketExists(ctx context.Context, name string) (bool, error)
	CreateBucket(ctx context.Context, name string) error
}

// TableName returns the per-stage session table name.
func TableName(stage stagetrust.Stage) string {
	return fmt.Sprintf("umbro-%s-sessions", strings.ToLower(string(stage)))
}

// BucketName returns the per-stage asset bucket name. Bucket names
// are globally scoped, so the org slug is part of the name.
func BucketName(org string, stage stagetrust.Stage) string {
	return fmt.Sprintf("%s-umbro-%s-assets", strings.ToLower(org), strings.ToLower(string(stage)))
}

// StageResources reports what EnsureStageResources created or found.
type StageResources struct {
	TableName     string
	TableCreated  bool
	BucketName    string
	BucketCreated bool
}

// EnsureStageResources creates the baseline per-stage resources the
// application expects: a session table and an asset bucket. Existing
// resources are left untouched, so re-running is safe.
func (p *Provider) EnsureStageResources(ctx context.Context, cfg *stagetrust.Config) (*StageResources, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if p.tables == nil || p.buckets == nil {
		return nil, stagetrust.ErrInternal("resource clients are not configured").
			WithOperation("ensure_stage_resources")
	}

	result := &StageResources{
		TableName:  TableName(cfg.Stage),
		BucketName: BucketName(cfg.Org, cfg.Stage),
	}

	exists, err := p.tables.TableExists(ctx, result.TableName)
	if err != nil {
		return nil, stagetrust.ErrNetwork("failed to check table").
			WithCause(err).WithStage(cfg.Stage).WithResource("dynamodb:table", result.TableName)
	}
	if !exists {
		if err := p.tables.CreateTable(ctx, result.TableName); err != nil {
			if !stagetrust.IsCategory(err, stagetrust.ErrCategoryConflict) {
				return nil, stagetrust.ErrPermission("failed to create table").
					WithCause(err).WithStage(cfg.Stage).WithResource("dynamodb:table", result.TableName)
			}
		} else {
			result.TableCreated = true
		}
	}

	exists, err = p.buckets.BucketExists(ctx, result.BucketName)
	if err != nil {
		return nil, stagetrust.ErrNetwork("failed to check bucket").
			WithCause(err).WithStage(cfg.Stage).WithResource("s3:bucket", result.BucketName)
	}
	if !exists {
		if err := p.buckets.CreateBucket(ctx, result.BucketName); err != nil {
			if !stagetrust.IsCategory(err, stagetrust.ErrCategoryConflict) {
				return nil, stagetrust.ErrPermission("failed to create bucket").
					WithCause(err).WithStage(cfg.Stage).WithResource("s3:bucket", result.BucketName)
			}
		} else {
			result.BucketCreated = true
		}
	}

	return result, nil
}
