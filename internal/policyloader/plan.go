package policyloader

import (
	"sort"

	"github.com/epam/syndicate-rule-engine-sub000/internal/model"
)

// Plan is the output of region planning: which locations a job's executor
// will run over, and which policies apply at each one.
//
// Locations always starts with model.GlobalLocation. Region-scoped clouds
// (AWS) append the sorted, deduplicated union of the tenant's configured
// regions and the job's requested regions; region-unscoped clouds never
// append anything, since every policy is global for them.
type Plan struct {
	Locations        []string
	GlobalPolicies   []model.Policy
	RegionalPolicies []model.Policy
}

// PoliciesFor returns the policies that should run at location.
func (p Plan) PoliciesFor(location string) []model.Policy {
	if location == model.GlobalLocation {
		return p.GlobalPolicies
	}
	return p.RegionalPolicies
}

// Empty reports whether the plan carries no runnable policy at all, the
// "zero valid policies" edge case that fails a job with ReasonNoLoadablePolicy.
func (p Plan) Empty() bool {
	return len(p.GlobalPolicies) == 0 && len(p.RegionalPolicies) == 0
}

func buildLocations(runnerRegionScoped bool, tenantRegions, jobRegions []string) []string {
	locations := []string{model.GlobalLocation}
	if !runnerRegionScoped {
		return locations
	}

	seen := make(map[string]bool, len(tenantRegions)+len(jobRegions))
	var regions []string
	for _, r := range tenantRegions {
		if r == "" || seen[r] {
			continue
		}
		seen[r] = true
		regions = append(regions, r)
	}
	for _, r := range jobRegions {
		if r == "" || seen[r] {
			continue
		}
		seen[r] = true
		regions = append(regions, r)
	}
	sort.Strings(regions)
	return append(locations, regions...)
}
