package joblifecycle

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/epam/syndicate-rule-engine-sub000/internal/cloudrunner"
	"github.com/epam/syndicate-rule-engine-sub000/internal/executor"
	"github.com/epam/syndicate-rule-engine-sub000/internal/lock"
	"github.com/epam/syndicate-rule-engine-sub000/internal/model"
	"github.com/epam/syndicate-rule-engine-sub000/internal/objectstore"
	"github.com/epam/syndicate-rule-engine-sub000/internal/policyloader"
	"github.com/epam/syndicate-rule-engine-sub000/internal/quota"
	"github.com/epam/syndicate-rule-engine-sub000/internal/shardstore"
	"github.com/epam/syndicate-rule-engine-sub000/internal/statistics"
)

type fakeJobs struct {
	created []string
	status  map[string]model.JobStatus
	reason  map[string]model.FailureReason
}

func newFakeJobs() *fakeJobs {
	return &fakeJobs{status: map[string]model.JobStatus{}, reason: map[string]model.FailureReason{}}
}

func (f *fakeJobs) Create(_ context.Context, job *model.Job) error {
	f.created = append(f.created, job.ID)
	return nil
}

func (f *fakeJobs) UpdateStatus(_ context.Context, jobID string, status model.JobStatus, reason model.FailureReason) error {
	f.status[jobID] = status
	f.reason[jobID] = reason
	return nil
}

func (f *fakeJobs) Get(_ context.Context, jobID string) (*model.Job, error) {
	return &model.Job{ID: jobID, Status: f.status[jobID], Reason: f.reason[jobID]}, nil
}

type fakeSource map[string]model.RulesetContent

func (f fakeSource) Fetch(_ context.Context, ref string) (model.RulesetContent, error) {
	c, ok := f[ref]
	if !ok {
		return model.RulesetContent{}, errors.New("no such ruleset")
	}
	return c, nil
}

type fakeLauncher struct{ calls int }

func (f *fakeLauncher) Launch(_ context.Context, req executor.WorkerRequest) (executor.WorkerResult, error) {
	f.calls++
	result := executor.WorkerResult{}
	for _, p := range req.Policies {
		result.NSuccessful++
		result.Parts = append(result.Parts, model.ShardPart{
			Policy:   p.Name,
			Location: req.Region,
		})
	}
	return result, nil
}

func newTestController(t *testing.T, jobs *fakeJobs, source fakeSource, launcher *fakeLauncher, broker quota.Broker) (*Controller, string) {
	t.Helper()
	dir := t.TempDir()
	objects := objectstore.NewFSStore(dir)
	registry := cloudrunner.DefaultRegistry()
	return &Controller{
		Jobs:     jobs,
		Locks:    lock.NewMemStore(),
		Broker:   broker,
		Loader:   policyloader.NewLoader(source, registry),
		Executor: &executor.Executor{Launcher: launcher, WorkDir: dir + "/work", Concurrency: 1},
		Runners:  registry,
		Objects:  objects,
		Stats:    statistics.NewStore(objects),
		Config:   Config{ShardCount: 1},
	}, dir
}

func TestControllerRunSucceeds(t *testing.T) {
	jobs := newFakeJobs()
	source := fakeSource{
		"rulesets/standard/1.json": {Policies: []model.Policy{
			{Name: "R_s3_global", ResourceType: "aws.s3"},
			{Name: "R_ec2_regional", ResourceType: "aws.ec2-instance"},
		}},
	}
	launcher := &fakeLauncher{}
	ctrl, dir := newTestController(t, jobs, source, launcher, nil)
	_ = dir

	job := &model.Job{
		ID:       "job-1",
		Kind:     model.JobStandard,
		Rulesets: []model.RulesetRef{{Name: "standard", Version: "1"}},
	}
	tenant := model.Tenant{Name: "acme-aws", Cloud: model.AWS, ConfiguredRegions: []string{"eu-west-1"}}

	if err := ctrl.Run(context.Background(), job, tenant); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if job.Status != model.JobSucceeded {
		t.Fatalf("Status = %q, want SUCCEEDED", job.Status)
	}
	if jobs.status["job-1"] != model.JobSucceeded {
		t.Fatalf("persisted status = %q, want SUCCEEDED", jobs.status["job-1"])
	}
	if launcher.calls == 0 {
		t.Fatal("expected at least one worker launch")
	}

	statsItems, err := ctrl.Stats.Read(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("Stats.Read: %v", err)
	}
	if len(statsItems) == 0 {
		t.Fatal("expected statistics items to be written")
	}
}

func TestControllerRunFailsWhenLockHeld(t *testing.T) {
	jobs := newFakeJobs()
	ctrl, _ := newTestController(t, jobs, fakeSource{}, &fakeLauncher{}, nil)

	if err := ctrl.Locks.Acquire(context.Background(), model.Lock{TenantName: "acme-aws", JobID: "other-job"}); err != nil {
		t.Fatalf("seed Acquire: %v", err)
	}

	job := &model.Job{ID: "job-2", Kind: model.JobStandard}
	tenant := model.Tenant{Name: "acme-aws", Cloud: model.AWS}

	err := ctrl.Run(context.Background(), job, tenant)
	if err == nil {
		t.Fatal("expected error when lock is held by another job")
	}
	if job.Status != model.JobFailed || job.Reason != model.ReasonLockHeld {
		t.Fatalf("job = %+v, want FAILED/LOCK_HELD", job)
	}
}

func TestControllerRunFailsWithNoLoadablePolicies(t *testing.T) {
	jobs := newFakeJobs()
	ctrl, _ := newTestController(t, jobs, fakeSource{}, &fakeLauncher{}, nil)

	job := &model.Job{ID: "job-3", Kind: model.JobStandard, Rulesets: []model.RulesetRef{{Name: "missing", Version: "1"}}}
	tenant := model.Tenant{Name: "acme-aws", Cloud: model.AWS}

	err := ctrl.Run(context.Background(), job, tenant)
	if err == nil {
		t.Fatal("expected error for empty plan")
	}
	if job.Status != model.JobFailed || job.Reason != model.ReasonNoLoadablePolicy {
		t.Fatalf("job = %+v, want FAILED/NO_LOADABLE_POLICIES", job)
	}
}

type denyingBroker struct{}

func (denyingBroker) PreAuthorize(context.Context, quota.PreAuthorizeRequest) (quota.PreAuthorizeResponse, error) {
	return quota.PreAuthorizeResponse{}, &quota.ErrDenied{Message: "quota exceeded"}
}

func (denyingBroker) UpdateJob(context.Context, *model.Job) error { return nil }

func TestControllerRunFailsWhenLicenseDenied(t *testing.T) {
	jobs := newFakeJobs()
	source := fakeSource{
		"rulesets/standard/1.json": {Policies: []model.Policy{{Name: "R_s3_global", ResourceType: "aws.s3"}}},
	}
	ctrl, _ := newTestController(t, jobs, source, &fakeLauncher{}, denyingBroker{})

	job := &model.Job{
		ID:       "job-4",
		Kind:     model.JobStandard,
		Rulesets: []model.RulesetRef{{Name: "standard", Version: "1", LicenseKey: "lk-1"}},
	}
	tenant := model.Tenant{Name: "acme-aws", Cloud: model.AWS}

	err := ctrl.Run(context.Background(), job, tenant)
	if err == nil {
		t.Fatal("expected error for denied license")
	}
	if job.Status != model.JobFailed || job.Reason != model.ReasonLicenseDenied {
		t.Fatalf("job = %+v, want FAILED/LM_DID_NOT_ALLOW", job)
	}
}

type fakeScheduler struct {
	touched map[string]bool
}

func (f *fakeScheduler) TouchLastExecution(_ context.Context, entryName string, _ time.Time) error {
	if f.touched == nil {
		f.touched = map[string]bool{}
	}
	f.touched[entryName] = true
	return nil
}

func TestControllerScheduledJobCreatesRecordAndTouchesScheduler(t *testing.T) {
	jobs := newFakeJobs()
	source := fakeSource{
		"rulesets/standard/1.json": {Policies: []model.Policy{{Name: "R_s3_global", ResourceType: "aws.s3"}}},
	}
	ctrl, _ := newTestController(t, jobs, source, &fakeLauncher{}, nil)
	sched := &fakeScheduler{}
	ctrl.Sched = sched

	job := &model.Job{
		ID:                "job-5",
		Kind:              model.JobScheduled,
		ScheduledRuleName: "nightly-acme",
		Rulesets:          []model.RulesetRef{{Name: "standard", Version: "1"}},
	}
	tenant := model.Tenant{Name: "acme-aws", Cloud: model.AWS}

	if err := ctrl.Run(context.Background(), job, tenant); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(jobs.created) != 1 || jobs.created[0] != "job-5" {
		t.Fatalf("scheduled job record not created: %v", jobs.created)
	}
	if !sched.touched["nightly-acme"] {
		t.Fatal("scheduler entry's last execution was not touched")
	}
}

func TestControllerDeadlineBeforeAnyRegionIsTimeout(t *testing.T) {
	jobs := newFakeJobs()
	source := fakeSource{
		"rulesets/standard/1.json": {Policies: []model.Policy{{Name: "R_ec2", ResourceType: "aws.ec2-instance"}}},
	}
	launcher := &fakeLauncher{}
	ctrl, _ := newTestController(t, jobs, source, launcher, nil)

	job := &model.Job{
		ID:          "job-6",
		Kind:        model.JobStandard,
		SubmittedAt: time.Now().Add(-time.Hour),
		JobLifetime: time.Minute,
		Rulesets:    []model.RulesetRef{{Name: "standard", Version: "1"}},
	}
	tenant := model.Tenant{Name: "acme-aws", Cloud: model.AWS, ConfiguredRegions: []string{"eu-west-1"}}

	err := ctrl.Run(context.Background(), job, tenant)
	if err == nil {
		t.Fatal("expected TIMEOUT error when the deadline passed before any region ran")
	}
	if launcher.calls != 0 {
		t.Fatalf("no worker should have been spawned, got %d calls", launcher.calls)
	}
	if job.Status != model.JobFailed || job.Reason != model.ReasonTimeExceeded {
		t.Fatalf("job = %+v, want FAILED/TIMEOUT", job)
	}

	// Finalization still ran: the statistics artifact exists and every
	// planned rule is accounted for as SKIPPED.
	items, readErr := ctrl.Stats.Read(context.Background(), "job-6")
	if readErr != nil {
		t.Fatalf("Stats.Read: %v", readErr)
	}
	if len(items) == 0 {
		t.Fatal("expected SKIPPED statistics for the unscanned tail")
	}
	for _, item := range items {
		if item.ErrorType != model.ErrorSkipped {
			t.Fatalf("want SKIPPED, got %+v", item)
		}
	}
}

func TestControllerLockReleasedAfterTerminal(t *testing.T) {
	jobs := newFakeJobs()
	source := fakeSource{
		"rulesets/standard/1.json": {Policies: []model.Policy{{Name: "R_s3_global", ResourceType: "aws.s3"}}},
	}
	ctrl, _ := newTestController(t, jobs, source, &fakeLauncher{}, nil)

	job := &model.Job{ID: "job-7", Kind: model.JobStandard, Rulesets: []model.RulesetRef{{Name: "standard", Version: "1"}}}
	tenant := model.Tenant{Name: "acme-aws", Cloud: model.AWS}

	if err := ctrl.Run(context.Background(), job, tenant); err != nil {
		t.Fatalf("Run: %v", err)
	}

	// The tenant must be lockable again immediately.
	if err := ctrl.Locks.Acquire(context.Background(), model.Lock{TenantName: "acme-aws", JobID: "job-8"}); err != nil {
		t.Fatalf("lock still held after finalization: %v", err)
	}
}

func TestFinalizePreservesUnrelatedLatestShards(t *testing.T) {
	jobs := newFakeJobs()
	source := fakeSource{
		"rulesets/standard/1.json": {Policies: []model.Policy{{Name: "R_ec2", ResourceType: "aws.ec2-instance"}}},
	}
	launcher := &fakeLauncher{}
	ctrl, _ := newTestController(t, jobs, source, launcher, nil)
	const shardCount = 4
	ctrl.Config = Config{ShardCount: shardCount}

	tenant := model.Tenant{Name: "acme-aws", Cloud: model.AWS, ConfiguredRegions: []string{"eu-west-1"}}

	// Seed the tenant's latest collection with a part whose location
	// hashes outside every shard this job will touch.
	jobIndexes := map[int]bool{
		shardstore.ShardIndex(model.GlobalLocation, shardCount): true,
		shardstore.ShardIndex("eu-west-1", shardCount):          true,
	}
	otherLocation := ""
	for _, cand := range []string{"us-east-1", "us-west-2", "ap-south-1", "sa-east-1", "ca-central-1", "eu-north-1", "ap-northeast-1", "af-south-1"} {
		if !jobIndexes[shardstore.ShardIndex(cand, shardCount)] {
			otherLocation = cand
			break
		}
	}
	if otherLocation == "" {
		t.Skip("every candidate location collides with the job's shards")
	}
	seed := shardstore.NewStore(ctrl.Objects, latestPrefix(tenant.Name), shardCount)
	seed.Collection.PutParts(model.ShardPart{
		Policy:    "R_historical",
		Location:  otherLocation,
		Resources: []map[string]interface{}{{"id": "kept"}},
	})
	if err := seed.WriteAll(context.Background()); err != nil {
		t.Fatalf("seed latest: %v", err)
	}
	if err := seed.WriteMeta(context.Background()); err != nil {
		t.Fatalf("seed latest meta: %v", err)
	}

	job := &model.Job{
		ID:       "job-9",
		Kind:     model.JobStandard,
		Rulesets: []model.RulesetRef{{Name: "standard", Version: "1"}},
	}
	if err := ctrl.Run(context.Background(), job, tenant); err != nil {
		t.Fatalf("Run: %v", err)
	}

	latest := shardstore.NewStore(ctrl.Objects, latestPrefix(tenant.Name), shardCount)
	all, err := latest.FetchAll(context.Background())
	if err != nil {
		t.Fatalf("FetchAll latest: %v", err)
	}
	byPolicy := map[string]bool{}
	for _, p := range all {
		byPolicy[p.Policy] = true
	}
	if !byPolicy["R_historical"] {
		t.Fatalf("finalize destroyed latest data in a shard the job never touched: %+v", all)
	}
	if !byPolicy["R_ec2"] {
		t.Fatalf("job's own part missing from latest: %+v", all)
	}
}
