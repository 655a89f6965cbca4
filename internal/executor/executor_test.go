package executor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/epam/syndicate-rule-engine-sub000/internal/model"
	"github.com/epam/syndicate-rule-engine-sub000/internal/policyloader"
)

type fakeLauncher struct {
	calls []WorkerRequest
	fail  map[string]error
	nSucc map[string]int
}

func (f *fakeLauncher) Launch(_ context.Context, req WorkerRequest) (WorkerResult, error) {
	f.calls = append(f.calls, req)
	if err, ok := f.fail[req.Region]; ok {
		return WorkerResult{}, err
	}
	return WorkerResult{NSuccessful: f.nSucc[req.Region]}, nil
}

func TestExecutorRunsEveryLocation(t *testing.T) {
	launcher := &fakeLauncher{nSucc: map[string]int{model.GlobalLocation: 1, "eu-west-1": 2, "eu-central-1": 3}}
	ex := &Executor{Launcher: launcher, WorkDir: "/tmp/work", Concurrency: 1}

	job := &model.Job{}
	tenant := model.Tenant{Cloud: model.AWS}
	plan := policyloader.Plan{
		Locations:        []string{model.GlobalLocation, "eu-central-1", "eu-west-1"},
		GlobalPolicies:   []model.Policy{{Name: "R_global"}},
		RegionalPolicies: []model.Policy{{Name: "R_regional"}},
	}

	results := ex.Run(context.Background(), job, tenant, plan)
	if len(results) != 3 {
		t.Fatalf("want 3 results, got %d", len(results))
	}
	if len(launcher.calls) != 3 {
		t.Fatalf("want 3 launch calls, got %d", len(launcher.calls))
	}
	for _, r := range results {
		if r.Location == model.GlobalLocation && r.Result.NSuccessful != 1 {
			t.Fatalf("global result = %+v", r.Result)
		}
	}
}

func TestExecutorDeadlineSkipsRemaining(t *testing.T) {
	launcher := &fakeLauncher{}
	ex := &Executor{Launcher: launcher, WorkDir: "/tmp/work", Concurrency: 1}

	job := &model.Job{SubmittedAt: time.Now().Add(-time.Hour), JobLifetime: time.Minute}
	tenant := model.Tenant{Cloud: model.AWS}
	plan := policyloader.Plan{
		Locations:        []string{model.GlobalLocation, "eu-west-1"},
		GlobalPolicies:   []model.Policy{{Name: "R_global"}},
		RegionalPolicies: []model.Policy{{Name: "R_regional"}},
	}

	results := ex.Run(context.Background(), job, tenant, plan)
	if len(launcher.calls) != 0 {
		t.Fatalf("deadline already passed, want 0 launch calls, got %d", len(launcher.calls))
	}
	for _, r := range results {
		if len(r.Result.Failed) != 1 || r.Result.Failed[0].ErrorType != model.ErrorSkipped {
			t.Fatalf("want SKIPPED result for %s, got %+v", r.Location, r.Result)
		}
		if r.Result.Failed[0].Message != "time exceeded" {
			t.Fatalf("want 'time exceeded' message, got %q", r.Result.Failed[0].Message)
		}
	}
}

func TestExecutorWorkerStartFailureIsInternal(t *testing.T) {
	launcher := &fakeLauncher{fail: map[string]error{"eu-west-1": errors.New("exec: no such file")}}
	ex := &Executor{Launcher: launcher, WorkDir: "/tmp/work"}

	job := &model.Job{}
	tenant := model.Tenant{Cloud: model.AWS}
	plan := policyloader.Plan{
		Locations:        []string{"eu-west-1"},
		RegionalPolicies: []model.Policy{{Name: "R_regional"}},
	}

	results := ex.Run(context.Background(), job, tenant, plan)
	if len(results) != 1 || len(results[0].Result.Failed) != 1 {
		t.Fatalf("results = %+v", results)
	}
	if results[0].Result.Failed[0].ErrorType != model.ErrorInternal {
		t.Fatalf("want INTERNAL, got %v", results[0].Result.Failed[0].ErrorType)
	}
}

type fakeEvaluator struct {
	errs map[string]error
}

func (f fakeEvaluator) Evaluate(_ model.Cloud, _ string, policy model.Policy) ([]map[string]interface{}, error) {
	if err, ok := f.errs[policy.Name]; ok {
		return nil, err
	}
	return []map[string]interface{}{{"id": policy.Name}}, nil
}

func classifyCredentials(raw error) model.ErrorType {
	if raw == nil {
		return model.ErrorNone
	}
	return model.ErrorCredentials
}

func TestRunPoliciesShortCircuitsAfterCredentialsError(t *testing.T) {
	req := WorkerRequest{
		Region: "eu-west-1",
		Policies: []model.Policy{
			{Name: "R_1"},
			{Name: "R_2"},
			{Name: "R_3"},
		},
	}
	eval := fakeEvaluator{errs: map[string]error{"R_2": errors.New("credentials expired")}}

	result := RunPolicies(req, eval, classifyCredentials)

	if result.NSuccessful != 1 {
		t.Fatalf("want 1 success (R_1), got %d", result.NSuccessful)
	}
	if len(result.Failed) != 2 {
		t.Fatalf("want 2 failures, got %+v", result.Failed)
	}
	if result.Failed[0].Policy != "R_2" || result.Failed[0].ErrorType != model.ErrorCredentials {
		t.Fatalf("first failure = %+v", result.Failed[0])
	}
	if result.Failed[1].Policy != "R_3" || result.Failed[1].ErrorType != model.ErrorSkipped {
		t.Fatalf("second failure should be SKIPPED: %+v", result.Failed[1])
	}
}

func TestRunPoliciesAzureTagsPseudoRegion(t *testing.T) {
	req := WorkerRequest{
		Cloud:    model.Azure,
		Region:   model.GlobalLocation,
		Policies: []model.Policy{{Name: "R_azure_storage"}},
	}
	result := RunPolicies(req, fakeEvaluator{}, classifyCredentials)

	if len(result.Parts) != 1 || result.Parts[0].Location != model.AzurePseudoRegion {
		t.Fatalf("want part tagged %q, got %+v", model.AzurePseudoRegion, result.Parts)
	}
}

func TestRunPoliciesAWSTagsRealRegion(t *testing.T) {
	req := WorkerRequest{
		Cloud:    model.AWS,
		Region:   "eu-west-1",
		Policies: []model.Policy{{Name: "R_ec2"}},
	}
	result := RunPolicies(req, fakeEvaluator{}, classifyCredentials)

	if len(result.Parts) != 1 || result.Parts[0].Location != "eu-west-1" {
		t.Fatalf("want part tagged eu-west-1, got %+v", result.Parts)
	}
}
