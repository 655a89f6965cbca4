// Package joblifecycle owns the Job state machine (STARTING -> RUNNING ->
// {SUCCEEDED|FAILED}), license pre-authorization, the tenant lock's strict
// acquire/unconditional release discipline, and the finalization order
// that publishes a finished job's results.
package joblifecycle

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/epam/syndicate-rule-engine-sub000/internal/cloudrunner"
	"github.com/epam/syndicate-rule-engine-sub000/internal/executor"
	"github.com/epam/syndicate-rule-engine-sub000/internal/jobstore"
	"github.com/epam/syndicate-rule-engine-sub000/internal/lock"
	"github.com/epam/syndicate-rule-engine-sub000/internal/model"
	"github.com/epam/syndicate-rule-engine-sub000/internal/objectstore"
	"github.com/epam/syndicate-rule-engine-sub000/internal/policyloader"
	"github.com/epam/syndicate-rule-engine-sub000/internal/quota"
	"github.com/epam/syndicate-rule-engine-sub000/internal/statistics"
)

// Config carries the deployment tunables: shard partition count, the S3
// self-heal feature flag, and the AWS default region fallback it needs.
type Config struct {
	ShardCount       int
	EnableS3SelfHeal bool
	DefaultRegion    string
}

// Scheduler is told when a scheduled job's record reaches RUNNING, so the
// owning scheduler entry's last_execution_time reflects this run.
type Scheduler interface {
	TouchLastExecution(ctx context.Context, entryName string, at time.Time) error
}

// Controller drives one Job end to end. It holds no job-scoped state of
// its own; every field here is a shared collaborator threaded in once by
// internal/container, never a package-level singleton.
type Controller struct {
	Jobs     jobstore.JobStore
	Locks    lock.Store
	Broker   quota.Broker // nil if no licensed rulesets are ever submitted
	Sched    Scheduler    // nil unless scheduled jobs are submitted
	Loader   *policyloader.Loader
	Executor *executor.Executor
	Runners  *cloudrunner.Registry
	Objects  objectstore.ObjectStore
	Stats    *statistics.Store
	Config   Config
}

func jobResultPrefix(jobID string) string   { return fmt.Sprintf("jobs/%s/result/", jobID) }
func latestPrefix(tenantName string) string { return fmt.Sprintf("tenants/%s/latest/", tenantName) }
func differencePrefix(jobID string) string  { return fmt.Sprintf("jobs/%s/difference/", jobID) }

// Run executes job against tenant to completion, always leaving the Job
// record in a terminal status and the tenant lock released, regardless of
// where in the pipeline a failure occurs — including a panic, which is
// recovered into FAILED/INTERNAL rather than left to unwind past the lock.
func (c *Controller) Run(ctx context.Context, job *model.Job, tenant model.Tenant) (runErr error) {
	if job.Kind == model.JobScheduled {
		if err := c.Jobs.Create(ctx, job); err != nil {
			return fmt.Errorf("joblifecycle: create scheduled job record: %w", err)
		}
	}

	lockRegions := job.Regions
	if len(lockRegions) == 0 {
		lockRegions = []string{model.GlobalLocation}
	}
	if err := c.Locks.Acquire(ctx, model.Lock{TenantName: tenant.Name, JobID: job.ID, Regions: lockRegions}); err != nil {
		log.Printf("[joblifecycle] job %s: lock held: %v", job.ID, err)
		return c.fail(ctx, job, model.ReasonLockHeld, err)
	}

	defer func() {
		// Release and notify even when ctx itself is what failed.
		bg := context.WithoutCancel(ctx)
		if relErr := c.Locks.Release(bg, tenant.Name, job.ID); relErr != nil {
			log.Printf("[joblifecycle] job %s: lock release failed: %v", job.ID, relErr)
		}
		if c.Broker != nil {
			if err := c.Broker.UpdateJob(bg, job); err != nil {
				log.Printf("[joblifecycle] job %s: quota broker notify failed: %v", job.ID, err)
			}
		}
	}()
	defer func() {
		if r := recover(); r != nil {
			runErr = c.fail(ctx, job, model.ReasonInternal, fmt.Errorf("panic: %v", r))
		}
	}()

	if err := c.preAuthorize(ctx, job, tenant); err != nil {
		var denied *quota.ErrDenied
		reason := model.ReasonInternal
		if errors.As(err, &denied) {
			reason = model.ReasonLicenseDenied
		}
		return c.fail(ctx, job, reason, err)
	}

	now := time.Now()
	job.StartedAt = &now
	job.Status = model.JobRunning
	if err := c.Jobs.UpdateStatus(ctx, job.ID, model.JobRunning, model.ReasonNone); err != nil {
		log.Printf("[joblifecycle] job %s: persist RUNNING failed: %v", job.ID, err)
	}
	if job.Kind == model.JobScheduled && job.ScheduledRuleName != "" && c.Sched != nil {
		if err := c.Sched.TouchLastExecution(ctx, job.ScheduledRuleName, now); err != nil {
			log.Printf("[joblifecycle] job %s: scheduler touch failed: %v", job.ID, err)
		}
	}

	plan, err := c.Loader.Load(ctx, tenant, job)
	if err != nil {
		reason := model.ReasonInternal
		if errors.Is(err, policyloader.ErrNoLoadablePolicies) {
			reason = model.ReasonNoLoadablePolicy
		}
		return c.fail(ctx, job, reason, err)
	}

	results := c.Executor.Run(ctx, job, tenant, plan)

	if err := ctx.Err(); err != nil {
		// Host-induced termination (orchestrator soft timeout). The
		// executor has already stopped spawning; record the job as timed
		// out rather than pretending the tail was scanned.
		return c.fail(ctx, job, model.ReasonTimeExceeded, err)
	}

	if err := c.finalize(ctx, job, tenant, plan, results); err != nil {
		return c.fail(ctx, job, model.ReasonInternal, err)
	}

	if allDeadlineSkipped(results) {
		return c.fail(ctx, job, model.ReasonTimeExceeded, errors.New("deadline exceeded before any region completed"))
	}

	stopped := time.Now()
	job.StoppedAt = &stopped
	job.Status = model.JobSucceeded
	if err := c.Jobs.UpdateStatus(ctx, job.ID, model.JobSucceeded, model.ReasonNone); err != nil {
		log.Printf("[joblifecycle] job %s: persist SUCCEEDED failed: %v", job.ID, err)
	}
	log.Printf("[joblifecycle] job %s: finished in %s across %d locations", job.ID, stopped.Sub(now).Round(time.Millisecond), len(results))
	return nil
}

// allDeadlineSkipped reports whether the deadline tripped before a single
// location ran; finalization still happened, but the job itself counts as
// timed out.
func allDeadlineSkipped(results []executor.LocationResult) bool {
	if len(results) == 0 {
		return false
	}
	for _, r := range results {
		if !r.DeadlineSkipped {
			return false
		}
	}
	return true
}

// fail transitions job to FAILED with reason, persists it, and returns a
// wrapped error for the caller. Finalization steps already performed are
// never undone.
func (c *Controller) fail(ctx context.Context, job *model.Job, reason model.FailureReason, cause error) error {
	stopped := time.Now()
	job.StoppedAt = &stopped
	job.Status = model.JobFailed
	job.Reason = reason
	if err := c.Jobs.UpdateStatus(context.WithoutCancel(ctx), job.ID, model.JobFailed, reason); err != nil {
		log.Printf("[joblifecycle] job %s: persist FAILED failed: %v", job.ID, err)
	}
	return fmt.Errorf("joblifecycle: job %s failed (%s): %w", job.ID, reason, cause)
}

// preAuthorize submits the job's licensed rulesets to the quota broker, if
// any, and rewrites job.Rulesets with the exact versions and content
// locations the broker authorized. A job with no licensed rulesets, or no
// broker configured, is a no-op.
func (c *Controller) preAuthorize(ctx context.Context, job *model.Job, tenant model.Tenant) error {
	licensed := map[string][]string{}
	for _, r := range job.Rulesets {
		if r.Licensed() {
			licensed[r.LicenseKey] = append(licensed[r.LicenseKey], r.Name)
		}
	}
	if len(licensed) == 0 || c.Broker == nil {
		return nil
	}

	resp, err := c.Broker.PreAuthorize(ctx, quota.PreAuthorizeRequest{
		JobID:        job.ID,
		CustomerName: tenant.CustomerName,
		TenantName:   tenant.Name,
		RulesetMap:   licensed,
	})
	if err != nil {
		return fmt.Errorf("preauthorize: %w", err)
	}

	authorizedVersion := make(map[string]string)
	for _, auth := range resp.Authorizations {
		for _, rs := range auth.Rulesets {
			authorizedVersion[rs.Name] = rs.Version
		}
	}
	for i, r := range job.Rulesets {
		if v, ok := authorizedVersion[r.Name]; ok {
			job.Rulesets[i].Version = v
		}
		if uri, ok := resp.RulesetContent[r.Name]; ok {
			job.Rulesets[i].ContentURI = uri
		}
	}
	return nil
}
