package cmd

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/epam/syndicate-rule-engine-sub000/internal/container"
	"github.com/epam/syndicate-rule-engine-sub000/internal/credentials"
	"github.com/epam/syndicate-rule-engine-sub000/internal/executor"
	"github.com/epam/syndicate-rule-engine-sub000/internal/model"
	"github.com/epam/syndicate-rule-engine-sub000/internal/quota"
	"github.com/epam/syndicate-rule-engine-sub000/internal/tenantconfig"
)

// Exit codes of the one-shot controller process.
const (
	exitFailed        = 1
	exitLicenseDenied = 2
)

// exitError carries a process exit code alongside the error main reports.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }
func (e *exitError) ExitCode() int { return e.code }

// ExitCode maps an Execute error to the process exit code.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return exitFailed
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute one scan job to completion and exit",
	Long: `Run drives a single scan job end to end: acquire the tenant lock,
pre-authorize licensed rulesets with the quota broker, resolve
credentials, plan policies per region, execute each region in an
isolated worker process, and publish shards, deltas and statistics.

The process exits 0 on SUCCEEDED, 1 on FAILED, and 2 when the license
broker denied the job.`,
	RunE: runScan,
}

func init() {
	runCmd.Flags().String("tenant", "", "tenant name to scan (or set TENANT_NAME)")
	runCmd.Flags().String("cloud", "", "tenant cloud for ad hoc runs without a tenant database: AWS, AZURE, GOOGLE or KUBERNETES")
	runCmd.Flags().String("project-id", "", "tenant account/subscription/project id for ad hoc runs")
	runCmd.Flags().StringSlice("ruleset", nil, "ruleset to scan as name@version or name@version:license-key (repeatable)")
	runCmd.Flags().StringSlice("rules", nil, "allowlist of rule names to scan")
	runCmd.Flags().StringSlice("regions", nil, "regions to scan (or set TARGET_REGIONS)")

	viper.BindPFlag("job.tenant_flag", runCmd.Flags().Lookup("tenant"))

	rootCmd.AddCommand(runCmd)
}

func runScan(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := container.New(ctx, containerOptions())
	if err != nil {
		return err
	}
	defer c.Close()

	tenant, platform, err := resolveTarget(ctx, cmd, c)
	if err != nil {
		return err
	}

	job, created, err := prepareJob(ctx, cmd, c, tenant, platform)
	if err != nil {
		return err
	}
	if viper.GetBool("debug") {
		fmt.Printf("[run] job %s (%s) tenant %s cloud %s\n", job.ID, job.Kind, tenant.Name, tenant.Cloud)
	}

	bundle, err := c.Resolver.Resolve(ctx, credentials.Request{
		Job:                  job,
		Tenant:               tenant,
		Platform:             platform,
		AllowManagementCreds: viper.GetBool("credentials.allow_management"),
		EphemeralKey:         viper.GetString("job.credentials_key"),
	})
	if err != nil {
		// The job record must still reach a terminal state even though
		// the pipeline never started.
		job.Reason = model.ReasonNoCredentials
		job.Status = model.JobFailed
		if created || job.Kind != model.JobScheduled {
			_ = c.Jobs.UpdateStatus(ctx, job.ID, model.JobFailed, model.ReasonNoCredentials)
		}
		return &exitError{code: exitFailed, err: fmt.Errorf("resolve credentials: %w", err)}
	}
	defer func() {
		if err := bundle.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "cleanup: %v\n", err)
		}
	}()

	// The resolved credentials travel only in the worker's environment;
	// this process's own environment stays untouched.
	launcher := executor.NativeLauncher{Env: bundle.Env}
	if pool, ok := c.Controller.Executor.Launcher.(*executor.ManagedPoolLauncher); ok {
		pool.Delegate = launcher
	} else {
		c.Controller.Executor.Launcher = launcher
	}

	runErr := c.Controller.Run(ctx, job, tenant)
	switch {
	case runErr == nil:
		return nil
	case job.Reason == model.ReasonLicenseDenied:
		return &exitError{code: exitLicenseDenied, err: runErr}
	default:
		return &exitError{code: exitFailed, err: runErr}
	}
}

func containerOptions() container.Options {
	return container.Options{
		DataDir:          viper.GetString("data_dir"),
		S3Bucket:         viper.GetString("store.s3_bucket"),
		GCSBucket:        viper.GetString("store.gcs_bucket"),
		AWSRegion:        viper.GetString("aws.default_region"),
		PostgresDSN:      viper.GetString("store.postgres_dsn"),
		MySQLDSN:         viper.GetString("store.mysql_dsn"),
		BrokerURL:        quota.ResolveBrokerURL(),
		BrokerToken:      quota.ResolveBrokerToken(),
		ShardCount:       viper.GetInt("store.shard_count"),
		EnableS3SelfHeal: viper.GetBool("store.s3_self_heal"),
		ExecutorMode:     viper.GetString("executor.mode"),
		SecretKey:        secretKey(),
		Debug:            viper.GetBool("debug"),
	}
}

// secretKey decodes the hex-encoded envelope key enabling the secret
// store; an absent or malformed key just leaves the store disabled.
func secretKey() []byte {
	raw := strings.TrimSpace(viper.GetString("secrets.key"))
	if raw == "" {
		return nil
	}
	key, err := hex.DecodeString(raw)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ignoring malformed secrets key: %v\n", err)
		return nil
	}
	return key
}


// resolveTarget finds the tenant (and platform, for Kubernetes scans) this
// run should scan: from the tenant database when one is configured, or
// assembled from flags for ad hoc runs without one.
func resolveTarget(ctx context.Context, cmd *cobra.Command, c *container.Container) (model.Tenant, *model.Platform, error) {
	name := viper.GetString("job.tenant")
	if flagName := viper.GetString("job.tenant_flag"); flagName != "" {
		name = flagName
	}
	if name == "" {
		return model.Tenant{}, nil, errors.New("no tenant: pass --tenant or set TENANT_NAME")
	}

	tenant, err := c.Tenants.Tenant(ctx, name)
	if errors.Is(err, tenantconfig.ErrNotFound) {
		cloud := model.Cloud(strings.ToUpper(cmd.Flag("cloud").Value.String()))
		if !cloud.Valid() {
			return model.Tenant{}, nil, fmt.Errorf("tenant %s not in the tenant database and --cloud not given", name)
		}
		regions, _ := cmd.Flags().GetStringSlice("regions")
		tenant = model.Tenant{
			Name:              name,
			Cloud:             cloud,
			ProjectID:         cmd.Flag("project-id").Value.String(),
			Active:            true,
			ConfiguredRegions: regions,
		}
	} else if err != nil {
		return model.Tenant{}, nil, fmt.Errorf("resolve tenant %s: %w", name, err)
	}

	platformID := viper.GetString("job.platform_id")
	if platformID == "" {
		return tenant, nil, nil
	}
	platform, err := c.Tenants.Platform(ctx, platformID)
	if err != nil {
		return model.Tenant{}, nil, fmt.Errorf("resolve platform %s: %w", platformID, err)
	}
	return tenant, platform, nil
}

// prepareJob assembles the Job this run drives from flags and config. For
// a pre-created record (JOB_ID) only its id and stored submission time are
// reused; otherwise a fresh record is created, except for scheduled jobs
// whose record the controller creates itself.
func prepareJob(ctx context.Context, cmd *cobra.Command, c *container.Container, tenant model.Tenant, platform *model.Platform) (*model.Job, bool, error) {
	kind := model.JobKind(viper.GetString("job.type"))
	switch kind {
	case model.JobStandard, model.JobScheduled, model.JobEventDriven:
	default:
		return nil, false, fmt.Errorf("unknown JOB_TYPE %q", kind)
	}

	rulesets, err := parseRulesetFlags(cmd)
	if err != nil {
		return nil, false, err
	}

	job := &model.Job{
		ID:                viper.GetString("job.id"),
		TenantName:        tenant.Name,
		CustomerName:      tenant.CustomerName,
		Kind:              kind,
		Status:            model.JobStarting,
		SubmittedAt:       time.Now(),
		Rulesets:          rulesets,
		Regions:           targetRegions(cmd),
		DisabledRules:     tenant.DisabledRules,
		ScheduledRuleName: viper.GetString("job.scheduled_name"),
	}
	if rules, _ := cmd.Flags().GetStringSlice("rules"); len(rules) > 0 {
		job.RulesToScan = rules
	}
	if platform != nil {
		job.PlatformID = platform.ID
	}
	if minutes := viper.GetInt("job.lifetime_minutes"); minutes > 0 {
		job.JobLifetime = time.Duration(minutes) * time.Minute
	}

	if job.ID != "" {
		// Pre-created by the submitting collaborator; trust its record for
		// submission time so the deadline is measured from submission,
		// not from when the orchestrator got around to starting us.
		if existing, err := c.Jobs.Get(ctx, job.ID); err == nil && !existing.SubmittedAt.IsZero() {
			job.SubmittedAt = existing.SubmittedAt
		}
		return job, false, nil
	}

	job.ID = uuid.NewString()
	if kind == model.JobScheduled {
		// The controller creates the record for scheduled jobs.
		return job, false, nil
	}
	if err := c.Jobs.Create(ctx, job); err != nil {
		return nil, false, fmt.Errorf("create job record: %w", err)
	}
	return job, true, nil
}

// parseRulesetFlags parses --ruleset entries of the form "name@version" or
// "name@version:license-key".
func parseRulesetFlags(cmd *cobra.Command) ([]model.RulesetRef, error) {
	raw, _ := cmd.Flags().GetStringSlice("ruleset")
	out := make([]model.RulesetRef, 0, len(raw))
	for _, entry := range raw {
		ref := model.RulesetRef{}
		spec := entry
		if before, license, ok := strings.Cut(entry, ":"); ok {
			spec = before
			ref.LicenseKey = license
		}
		name, version, ok := strings.Cut(spec, "@")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid --ruleset %q: want name@version", entry)
		}
		ref.Name = name
		ref.Version = version
		out = append(out, ref)
	}
	return out, nil
}

func targetRegions(cmd *cobra.Command) []string {
	if regions, _ := cmd.Flags().GetStringSlice("regions"); len(regions) > 0 {
		return regions
	}
	raw := strings.TrimSpace(viper.GetString("job.target_regions"))
	if raw == "" {
		return nil
	}
	var out []string
	for _, r := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(r); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
