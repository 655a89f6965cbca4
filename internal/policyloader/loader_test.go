package policyloader

import (
	"context"
	"errors"
	"testing"

	"github.com/epam/syndicate-rule-engine-sub000/internal/cloudrunner"
	"github.com/epam/syndicate-rule-engine-sub000/internal/model"
)

type fakeSource map[string]model.RulesetContent

func (f fakeSource) Fetch(_ context.Context, ref string) (model.RulesetContent, error) {
	c, ok := f[ref]
	if !ok {
		return model.RulesetContent{}, errors.New("no such ruleset")
	}
	return c, nil
}

func TestLoadAWSStandardPlan(t *testing.T) {
	source := fakeSource{
		"rulesets/standard/1.json": {Policies: []model.Policy{
			{Name: "R_s3_global", ResourceType: "aws.s3"},
			{Name: "R_ec2_regional", ResourceType: "aws.ec2-instance"},
			{Name: "R_rds_regional", ResourceType: "aws.rds-instance"},
		}},
	}
	loader := NewLoader(source, cloudrunner.DefaultRegistry())

	tenant := model.Tenant{Name: "t1", Cloud: model.AWS, ConfiguredRegions: []string{"eu-west-1", "eu-central-1"}}
	job := &model.Job{
		Rulesets: []model.RulesetRef{{Name: "standard", Version: "1"}},
	}

	plan, err := loader.Load(context.Background(), tenant, job)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	wantLocations := []string{model.GlobalLocation, "eu-central-1", "eu-west-1"}
	if len(plan.Locations) != len(wantLocations) {
		t.Fatalf("locations = %v, want %v", plan.Locations, wantLocations)
	}
	for i, loc := range wantLocations {
		if plan.Locations[i] != loc {
			t.Fatalf("locations[%d] = %q, want %q", i, plan.Locations[i], loc)
		}
	}

	if len(plan.GlobalPolicies) != 1 || plan.GlobalPolicies[0].Name != "R_s3_global" {
		t.Fatalf("global policies = %+v", plan.GlobalPolicies)
	}
	if len(plan.RegionalPolicies) != 2 {
		t.Fatalf("regional policies = %+v", plan.RegionalPolicies)
	}
}

func TestLoadDedupeKeepsFirstAndWarns(t *testing.T) {
	source := fakeSource{
		"rulesets/licensed/1.json": {Policies: []model.Policy{
			{Name: "R_dup", ResourceType: "aws.s3", Description: "licensed version"},
		}},
		"rulesets/standard/1.json": {Policies: []model.Policy{
			{Name: "R_dup", ResourceType: "aws.s3", Description: "standard version"},
		}},
	}
	loader := NewLoader(source, cloudrunner.DefaultRegistry())

	tenant := model.Tenant{Name: "t1", Cloud: model.AWS}
	job := &model.Job{
		Rulesets: []model.RulesetRef{
			{Name: "standard", Version: "1"},
			{Name: "licensed", Version: "1", LicenseKey: "lic-1"},
		},
	}

	plan, err := loader.Load(context.Background(), tenant, job)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(plan.GlobalPolicies) != 1 {
		t.Fatalf("want exactly one surviving policy, got %+v", plan.GlobalPolicies)
	}
	if plan.GlobalPolicies[0].Description != "licensed version" {
		t.Fatalf("licensed ruleset should win dedupe: got %+v", plan.GlobalPolicies[0])
	}
	if len(job.Warnings) != 1 {
		t.Fatalf("want one duplicate warning, got %v", job.Warnings)
	}
}

func TestLoadExcludeAndKeep(t *testing.T) {
	source := fakeSource{
		"rulesets/standard/1.json": {Policies: []model.Policy{
			{Name: "R_a", ResourceType: "aws.s3"},
			{Name: "R_b", ResourceType: "aws.s3"},
			{Name: "R_c", ResourceType: "aws.s3"},
		}},
	}
	loader := NewLoader(source, cloudrunner.DefaultRegistry())

	tenant := model.Tenant{Name: "t1", Cloud: model.AWS}
	job := &model.Job{
		Rulesets:      []model.RulesetRef{{Name: "standard", Version: "1"}},
		DisabledRules: []string{"R_b"},
		RulesToScan:   []string{"R_a", "R_c"},
	}

	plan, err := loader.Load(context.Background(), tenant, job)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(plan.GlobalPolicies) != 2 {
		t.Fatalf("want R_a and R_c only, got %+v", plan.GlobalPolicies)
	}
}

func TestLoadEmptyPlanFails(t *testing.T) {
	source := fakeSource{
		"rulesets/standard/1.json": {Policies: []model.Policy{
			{Name: "R_a", ResourceType: "aws.s3"},
		}},
	}
	loader := NewLoader(source, cloudrunner.DefaultRegistry())

	tenant := model.Tenant{Name: "t1", Cloud: model.AWS}
	job := &model.Job{
		Rulesets:    []model.RulesetRef{{Name: "standard", Version: "1"}},
		RulesToScan: []string{"does-not-exist"},
	}

	_, err := loader.Load(context.Background(), tenant, job)
	if !errors.Is(err, ErrNoLoadablePolicies) {
		t.Fatalf("want ErrNoLoadablePolicies, got %v", err)
	}
}

func TestLoadAzureAlwaysGlobalNoRegions(t *testing.T) {
	source := fakeSource{
		"rulesets/standard/1.json": {Policies: []model.Policy{
			{Name: "R_storage", ResourceType: "azure.storage-account"},
		}},
	}
	loader := NewLoader(source, cloudrunner.DefaultRegistry())

	tenant := model.Tenant{Name: "t1", Cloud: model.Azure, ConfiguredRegions: []string{"westeurope"}}
	job := &model.Job{Rulesets: []model.RulesetRef{{Name: "standard", Version: "1"}}}

	plan, err := loader.Load(context.Background(), tenant, job)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(plan.Locations) != 1 || plan.Locations[0] != model.GlobalLocation {
		t.Fatalf("azure plan should be [GLOBAL] only, got %v", plan.Locations)
	}
	if len(plan.GlobalPolicies) != 1 {
		t.Fatalf("want 1 global policy, got %+v", plan.GlobalPolicies)
	}
}

func TestLoadUnfetchableRulesetWarnsAndContinues(t *testing.T) {
	source := fakeSource{
		"rulesets/good/1.json": {Policies: []model.Policy{
			{Name: "R_a", ResourceType: "aws.s3"},
		}},
	}
	loader := NewLoader(source, cloudrunner.DefaultRegistry())

	tenant := model.Tenant{Name: "t1", Cloud: model.AWS}
	job := &model.Job{
		Rulesets: []model.RulesetRef{
			{Name: "missing", Version: "1"},
			{Name: "good", Version: "1"},
		},
	}

	plan, err := loader.Load(context.Background(), tenant, job)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(plan.GlobalPolicies) != 1 {
		t.Fatalf("want the fetchable ruleset's policy to survive, got %+v", plan.GlobalPolicies)
	}
	if len(job.Warnings) != 1 {
		t.Fatalf("want one fetch-failure warning, got %v", job.Warnings)
	}
}

type fakeRegionLister struct {
	regions []string
	err     error
}

func (f fakeRegionLister) ListRegions(context.Context) ([]string, error) {
	return f.regions, f.err
}

func TestLoadListsRegionsWhenNoneConfigured(t *testing.T) {
	source := fakeSource{
		"rulesets/standard/1.json": {Policies: []model.Policy{
			{Name: "R_ec2", ResourceType: "aws.ec2-instance"},
		}},
	}
	loader := NewLoader(source, cloudrunner.DefaultRegistry())
	loader.Regions = fakeRegionLister{regions: []string{"us-east-1", "eu-west-1"}}

	tenant := model.Tenant{Name: "t1", Cloud: model.AWS}
	job := &model.Job{Rulesets: []model.RulesetRef{{Name: "standard", Version: "1"}}}

	plan, err := loader.Load(context.Background(), tenant, job)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := []string{model.GlobalLocation, "eu-west-1", "us-east-1"}
	if len(plan.Locations) != len(want) {
		t.Fatalf("locations = %v, want %v", plan.Locations, want)
	}
	for i := range want {
		if plan.Locations[i] != want[i] {
			t.Fatalf("locations[%d] = %q, want %q", i, plan.Locations[i], want[i])
		}
	}
}

func TestLoadRegionListingFailureWarnsAndScansGlobal(t *testing.T) {
	source := fakeSource{
		"rulesets/standard/1.json": {Policies: []model.Policy{
			{Name: "R_ec2", ResourceType: "aws.ec2-instance"},
		}},
	}
	loader := NewLoader(source, cloudrunner.DefaultRegistry())
	loader.Regions = fakeRegionLister{err: errors.New("describe regions denied")}

	tenant := model.Tenant{Name: "t1", Cloud: model.AWS}
	job := &model.Job{Rulesets: []model.RulesetRef{{Name: "standard", Version: "1"}}}

	plan, err := loader.Load(context.Background(), tenant, job)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(plan.Locations) != 1 || plan.Locations[0] != model.GlobalLocation {
		t.Fatalf("locations = %v, want [GLOBAL]", plan.Locations)
	}
	if len(job.Warnings) != 1 {
		t.Fatalf("want one region-listing warning, got %v", job.Warnings)
	}
}
