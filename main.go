// Package main is the entry point for the stagetrust CLI.
//
// The CLI manages the trust relationship between AWS deployment
// stages and the external deployment platform: IAM roles with
// OIDC-pinned trust policies, derived auth secrets, stack output
// propagation, and baseline stage resources.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/umbrohq/stagetrust/pkg/providers/aws"
	"github.com/umbrohq/stagetrust/pkg/providers/vercel"
	"github.com/umbrohq/stagetrust/pkg/stagetrust"
)

const (
	exitError           = 1
	exitValidationError = 2
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitError)
	}
}

func run(args []string) error {
	if len(args) == 0 {
		printUsage()
		return nil
	}

	// Setup context with signal handling
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		cancel()
	}()

	cmd := args[0]
	cmdArgs := args[1:]

	switch cmd {
	case "setup-trust":
		return cmdSetupTrust(ctx, cmdArgs)
	case "sync-secrets":
		return cmdSyncSecrets(ctx, cmdArgs)
	case "copy-outputs":
		return cmdCopyOutputs(ctx, cmdArgs)
	case "ensure-resources":
		return cmdEnsureResources(ctx, cmdArgs)
	case "validate":
		return cmdValidate(ctx, cmdArgs)
	case "delete":
		return cmdDelete(ctx, cmdArgs)
	case "list":
		return cmdList(ctx, cmdArgs)
	case "version":
		return cmdVersion()
	case "help", "-h", "--help":
		printUsage()
		return nil
	default:
		return fmt.Errorf("unknown command: %s\nRun 'stagetrust help' for usage", cmd)
	}
}

func printUsage() {
	fmt.Println(`stagetrust - Stage-scoped deployment trust for AWS and Vercel

Usage:
  stagetrust <command> [options]

Commands:
  setup-trust       Create or update the stage's IAM role and OIDC trust policy
  sync-secrets      Derive the stage's auth secret and push it to the platform
  copy-outputs      Copy CloudFormation stack outputs to platform env vars
  ensure-resources  Create the stage's baseline table and bucket if missing
  validate          Check the live trust configuration against expectations
  delete            Delete a managed stage role
  list              List managed stage roles
  version           Show version information
  help              Show this help message

Configuration is read from the environment:
  UMBRO_STAGE              Deployment stage (Development, Alpha, Beta, Gamma,
                           Production, Root, Pipeline)
  UMBRO_ORG                Platform organization slug
  UMBRO_PROJECT            Platform project name
  UMBRO_OIDC_PROVIDER_ARN  ARN of the platform's IAM OIDC provider
  UMBRO_ROLE_PREFIX        Role label prefix (default: UmbroVercel)
  UMBRO_STACK_NAME         CloudFormation stack for copy-outputs
  UMBRO_SEED_ALPHA         Derivation seed for pre-production stages
  UMBRO_SEED_PRODUCTION    Derivation seed for the Production stage
  VERCEL_TOKEN             Platform API token
  VERCEL_TEAM_ID           Platform team scope (optional)

Common Options:
  --stage <name>          Override UMBRO_STAGE
  --region <region>       AWS region
  --state <path>          State file path (default: ~/.stagetrust/state.json)
  --dry-run               Show what would be done without making changes

Setup Options:
  --policy-arns <arns>    Comma-separated managed policy ARNs to attach

Delete Options:
  --ref <id>              Role reference ID (from 'list')
  --force                 Delete even non-owned roles
  --yes                   Skip confirmation prompt

List Options:
  -o, --output <format>   Output format: table or json (default: table)
  --filter-stage <name>   Only show roles for one stage

Examples:
  # Create the Alpha stage role trusting preview deployments
  UMBRO_STAGE=Alpha stagetrust setup-trust

  # Push the derived auth secret to the platform project
  UMBRO_STAGE=Alpha stagetrust sync-secrets

  # Copy stack outputs into platform environment variables
  UMBRO_STAGE=Alpha UMBRO_STACK_NAME=umbro-alpha stagetrust copy-outputs

  # Validate the Production trust configuration
  UMBRO_STAGE=Production stagetrust validate

  # Delete a managed role
  stagetrust delete --ref stage-role-alpha-1a2b3c4d --yes`)
}

// commonOpts are shared by every command that talks to AWS.
type commonOpts struct {
	stage     string
	region    string
	statePath string
	dryRun    bool
}

// parseCommon consumes shared flags and returns the rest.
func parseCommon(args []string) (*commonOpts, []string, error) {
	opts := &commonOpts{
		statePath: stagetrust.DefaultStateStorePath(),
	}
	var rest []string

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--stage":
			if i+1 >= len(args) {
				return nil, nil, fmt.Errorf("--stage requires an argument")
			}
			opts.stage = args[i+1]
			i++
		case "--region":
			if i+1 >= len(args) {
				return nil, nil, fmt.Errorf("--region requires an argument")
			}
			opts.region = args[i+1]
			i++
		case "--state":
			if i+1 >= len(args) {
				return nil, nil, fmt.Errorf("--state requires a path argument")
			}
			opts.statePath = args[i+1]
			i++
		case "--dry-run":
			opts.dryRun = true
		default:
			rest = append(rest, args[i])
		}
	}

	return opts, rest, nil
}

// loadConfig builds the stage configuration from the environment,
// applying the --stage override before parsing.
func loadConfig(opts *commonOpts) (*stagetrust.Config, error) {
	lookup := os.Getenv
	if opts.stage != "" {
		lookup = func(key string) string {
			if key == stagetrust.EnvStage {
				return opts.stage
			}
			return os.Getenv(key)
		}
	}
	return stagetrust.FromEnv(lookup)
}

// newProvider wires the real AWS clients and the file state store.
func newProvider(ctx context.Context, opts *commonOpts) (*aws.Provider, error) {
	clients, err := aws.NewSDKClients(ctx, opts.region)
	if err != nil {
		return nil, err
	}
	stateStore, err := stagetrust.NewFileStateStore(opts.statePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize state store: %w", err)
	}
	return aws.New(
		aws.WithIAM(clients.IAM),
		aws.WithOutputs(clients.Outputs),
		aws.WithSeedSource(clients.Seeds),
		aws.WithTables(clients.Tables),
		aws.WithBuckets(clients.Buckets),
		aws.WithStateStore(stateStore),
	), nil
}

func newVercelClient(cfg *stagetrust.Config) (*vercel.Client, error) {
	if err := cfg.RequireVercel(); err != nil {
		return nil, err
	}
	var opts []vercel.ClientOption
	if cfg.VercelTeamID != "" {
		opts = append(opts, vercel.WithTeamID(cfg.VercelTeamID))
	}
	return vercel.NewClient(cfg.VercelToken, opts...)
}

func cmdSetupTrust(ctx context.Context, args []string) error {
	opts, rest, err := parseCommon(args)
	if err != nil {
		return err
	}

	var policyARNs []string
	for i := 0; i < len(rest); i++ {
		switch rest[i] {
		case "--policy-arns":
			if i+1 >= len(rest) {
				return fmt.Errorf("--policy-arns requires an argument")
			}
			for _, arn := range strings.Split(rest[i+1], ",") {
				if arn = strings.TrimSpace(arn); arn != "" {
					policyARNs = append(policyARNs, arn)
				}
			}
			i++
		default:
			return fmt.Errorf("unknown option: %s", rest[i])
		}
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	provider, err := newProvider(ctx, opts)
	if err != nil {
		return err
	}

	if opts.dryRun {
		fmt.Println("Dry-run mode: no changes will be made")
	}

	ref, err := provider.SetupStageRole(ctx, cfg, aws.SetupOptions{
		DryRun:     opts.dryRun,
		PolicyARNs: policyARNs,
	})
	if err != nil {
		return fmt.Errorf("setup failed: %w", err)
	}

	if opts.dryRun {
		fmt.Printf("Would converge role %s for stage %s\n", ref.RoleLabel, ref.Stage)
		return nil
	}

	fmt.Println("\n=== Setup Complete ===")
	fmt.Printf("Role: %s\n", ref.RoleLabel)
	fmt.Printf("ARN: %s\n", ref.RoleARN)
	fmt.Printf("Stage: %s\n", ref.Stage)
	fmt.Printf("Trusted environments: %v\n", ref.Stage.ExternalEnvironments())
	return nil
}

func cmdSyncSecrets(ctx context.Context, args []string) error {
	opts, rest, err := parseCommon(args)
	if err != nil {
		return err
	}
	if len(rest) > 0 {
		return fmt.Errorf("unknown option: %s", rest[0])
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}

	// Fall back to the seed store when the env var is absent.
	if cfg.Seed == "" {
		provider, err := newProvider(ctx, opts)
		if err != nil {
			return err
		}
		seed, err := provider.ResolveSeed(ctx, cfg)
		if err != nil {
			return err
		}
		cfg.Seed = seed
	}

	client, err := newVercelClient(cfg)
	if err != nil {
		return err
	}

	if opts.dryRun {
		fmt.Printf("Would sync %v to project %s for environments %v\n",
			stagetrust.SecretAliases(), cfg.Project, cfg.Stage.ExternalEnvironments())
		return nil
	}

	written, err := client.SyncDerivedSecret(ctx, cfg, stagetrust.NewSecretDeriver())
	if err != nil {
		return fmt.Errorf("secret sync failed: %w", err)
	}

	fmt.Printf("Synced %d secrets to %s: %v\n", len(written), cfg.Project, written)
	return nil
}

func cmdCopyOutputs(ctx context.Context, args []string) error {
	opts, rest, err := parseCommon(args)
	if err != nil {
		return err
	}
	if len(rest) > 0 {
		return fmt.Errorf("unknown option: %s", rest[0])
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	provider, err := newProvider(ctx, opts)
	if err != nil {
		return err
	}
	client, err := newVercelClient(cfg)
	if err != nil {
		return err
	}

	if opts.dryRun {
		fmt.Printf("Would copy outputs of stack %s to project %s\n", cfg.StackName, cfg.Project)
		return nil
	}

	copied, err := provider.CopyStackOutputs(ctx, cfg, client)
	if err != nil {
		return fmt.Errorf("copy failed after %d variables: %w", copied, err)
	}

	fmt.Printf("Copied %d stack outputs to %s\n", copied, cfg.Project)
	return nil
}

func cmdEnsureResources(ctx context.Context, args []string) error {
	opts, rest, err := parseCommon(args)
	if err != nil {
		return err
	}
	if len(rest) > 0 {
		return fmt.Errorf("unknown option: %s", rest[0])
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	provider, err := newProvider(ctx, opts)
	if err != nil {
		return err
	}

	if opts.dryRun {
		fmt.Printf("Would ensure table %s and bucket %s\n",
			aws.TableName(cfg.Stage), aws.BucketName(cfg.Org, cfg.Stage))
		return nil
	}

	result, err := provider.EnsureStageResources(ctx, cfg)
	if err != nil {
		return fmt.Errorf("ensure failed: %w", err)
	}

	fmt.Printf("Table %s: %s\n", result.TableName, existedOrCreated(result.TableCreated))
	fmt.Printf("Bucket %s: %s\n", result.BucketName, existedOrCreated(result.BucketCreated))
	return nil
}

func existedOrCreated(created bool) string {
	if created {
		return "created"
	}
	return "already exists"
}

func cmdValidate(ctx context.Context, args []string) error {
	opts, rest, err := parseCommon(args)
	if err != nil {
		return err
	}
	if len(rest) > 0 {
		return fmt.Errorf("unknown option: %s", rest[0])
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	provider, err := newProvider(ctx, opts)
	if err != nil {
		return err
	}

	validators, err := provider.Validators(cfg)
	if err != nil {
		return err
	}

	ref := stagetrust.NewRoleRef(cfg.Stage,
		cfg.Stage.RoleLabel(cfg.RoleLabelPrefix()), "", cfg.OIDCProviderARN)

	fmt.Printf("Validating stage %s (role %s)\n", cfg.Stage, ref.RoleLabel)

	report := stagetrust.RunValidation(ctx, ref, validators)

	fmt.Println("\n=== Validation Report ===")
	fmt.Printf("Valid: %t\n", report.IsValid())
	fmt.Printf("Checks: %d passed, %d failed, %d skipped\n",
		report.Summary.PassedChecks,
		report.Summary.FailedChecks,
		report.Summary.SkippedChecks)

	for _, check := range report.Checks {
		status := "✓"
		switch check.Status {
		case stagetrust.CheckStatusFailed:
			status = "✗"
		case stagetrust.CheckStatusSkipped:
			status = "○"
		}

		fmt.Printf("\n%s %s [%s]\n", status, check.Name, check.Severity)
		if check.Status == stagetrust.CheckStatusFailed && check.Remediation != "" {
			fmt.Printf("  Remediation: %s\n", check.Remediation)
		}
	}

	if !report.IsValid() {
		os.Exit(exitValidationError)
	}

	return nil
}

func cmdDelete(ctx context.Context, args []string) error {
	opts, rest, err := parseCommon(args)
	if err != nil {
		return err
	}

	var refID string
	var force, yes bool
	for i := 0; i < len(rest); i++ {
		switch rest[i] {
		case "--ref":
			if i+1 >= len(rest) {
				return fmt.Errorf("--ref requires an ID argument")
			}
			refID = rest[i+1]
			i++
		case "--force":
			force = true
		case "--yes", "-y":
			yes = true
		default:
			return fmt.Errorf("unknown option: %s", rest[i])
		}
	}
	if refID == "" {
		return fmt.Errorf("--ref is required")
	}

	stateStore, err := stagetrust.NewFileStateStore(opts.statePath)
	if err != nil {
		return fmt.Errorf("failed to initialize state store: %w", err)
	}

	ref, err := stateStore.Get(ctx, refID)
	if err != nil {
		return fmt.Errorf("role not found: %w", err)
	}

	// Confirmation
	if !yes && !opts.dryRun {
		fmt.Printf("About to delete role: %s\n", ref.RoleLabel)
		fmt.Printf("Stage: %s, ARN: %s\n", ref.Stage, ref.RoleARN)
		fmt.Print("\nAre you sure? [y/N]: ")

		var response string
		fmt.Scanln(&response)
		if response != "y" && response != "Y" && response != "yes" {
			fmt.Println("Cancelled")
			return nil
		}
	}

	if opts.dryRun {
		fmt.Printf("Would delete role %s and its policy attachments\n", ref.RoleLabel)
		return nil
	}

	provider, err := newProvider(ctx, opts)
	if err != nil {
		return err
	}

	if err := provider.DeleteStageRole(ctx, *ref, aws.DeleteOptions{Force: force}); err != nil {
		return fmt.Errorf("delete failed: %w", err)
	}

	fmt.Printf("Successfully deleted role: %s\n", ref.RoleLabel)
	return nil
}

func cmdList(ctx context.Context, args []string) error {
	opts, rest, err := parseCommon(args)
	if err != nil {
		return err
	}

	output := "table"
	var stageFilter string
	for i := 0; i < len(rest); i++ {
		switch rest[i] {
		case "--output", "-o":
			if i+1 >= len(rest) {
				return fmt.Errorf("--output requires an argument")
			}
			output = rest[i+1]
			i++
		case "--filter-stage":
			if i+1 >= len(rest) {
				return fmt.Errorf("--filter-stage requires an argument")
			}
			stageFilter = rest[i+1]
			i++
		default:
			return fmt.Errorf("unknown option: %s", rest[i])
		}
	}

	stateStore, err := stagetrust.NewFileStateStore(opts.statePath)
	if err != nil {
		return fmt.Errorf("failed to initialize state store: %w", err)
	}

	filter := stagetrust.ListFilter{}
	if stageFilter != "" {
		stage, err := stagetrust.ParseStage(stageFilter)
		if err != nil {
			return err
		}
		filter.Stage = stage
	}

	refs, err := stateStore.List(ctx, filter)
	if err != nil {
		return fmt.Errorf("failed to list roles: %w", err)
	}

	if len(refs) == 0 {
		fmt.Println("No managed roles found")
		return nil
	}

	switch output {
	case "json":
		data, _ := json.MarshalIndent(refs, "", "  ")
		fmt.Println(string(data))
	case "table":
		fmt.Printf("%-36s %-12s %-24s %-6s %s\n", "ID", "STAGE", "ROLE", "OWNED", "CREATED")
		for _, ref := range refs {
			owned := "no"
			if ref.Owned {
				owned = "yes"
			}
			fmt.Printf("%-36s %-12s %-24s %-6s %s\n",
				ref.ID,
				ref.Stage,
				ref.RoleLabel,
				owned,
				ref.CreatedAt.Format("2006-01-02"),
			)
		}
	default:
		return fmt.Errorf("unknown output format: %s", output)
	}

	return nil
}

func cmdVersion() error {
	fmt.Println("stagetrust version 0.3.0")
	fmt.Println("  Stages: Development, Alpha, Beta, Gamma, Production, Root, Pipeline")
	fmt.Println("  Providers: aws, vercel")
	return nil
}
