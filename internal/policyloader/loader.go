// Package policyloader resolves a job's ruleset references into a
// deduplicated, filtered policy set, classifies each policy as global or
// regional per the tenant's cloud, and produces the Plan the executor runs
// against.
package policyloader

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/epam/syndicate-rule-engine-sub000/internal/cloudrunner"
	"github.com/epam/syndicate-rule-engine-sub000/internal/model"
)

// ErrNoLoadablePolicies is wrapped into the error Load returns when the plan
// ends up empty, so callers can match it with errors.Is and set
// model.ReasonNoLoadablePolicy.
var ErrNoLoadablePolicies = errors.New("no loadable policies")

// ContentRefFunc resolves a ruleset reference to the opaque content-ref a
// ContentSource understands. The default convention is the
// "rulesets/<name>/<version>.json" object-key layout.
type ContentRefFunc func(model.RulesetRef) string

func DefaultContentRef(r model.RulesetRef) string {
	return fmt.Sprintf("rulesets/%s/%s.json", r.Name, r.Version)
}

// Loader loads and plans policies for a job.
type Loader struct {
	Source     ContentSource
	Registry   *cloudrunner.Registry
	ContentRef ContentRefFunc
	// Regions, when set, is consulted for region-scoped clouds whose
	// tenant and job both name no region at all.
	Regions RegionLister
}

func NewLoader(source ContentSource, registry *cloudrunner.Registry) *Loader {
	return &Loader{Source: source, Registry: registry, ContentRef: DefaultContentRef}
}

// namedPolicy pairs a policy with metadata needed for dedupe ordering and
// diagnostics, without mutating model.Policy itself.
type namedPolicy struct {
	policy   model.Policy
	ruleset  string
	licensed bool
}

// Load fetches every ruleset named by job.Rulesets (licensed first),
// dedupes and filters the combined policy
// set, classifies each surviving policy as global or regional via the
// tenant's CloudRunner, and builds the region plan. Warnings (duplicate
// names, unparseable rulesets, unknown resource types) are appended to
// job.Warnings as they are discovered; Load never fails solely because one
// ruleset or policy was bad, only when the resulting plan is empty.
func (l *Loader) Load(ctx context.Context, tenant model.Tenant, job *model.Job) (Plan, error) {
	runner, ok := l.Registry.For(tenant.Cloud)
	if !ok {
		return Plan{}, fmt.Errorf("policyloader: no CloudRunner registered for cloud %q", tenant.Cloud)
	}

	ordered := l.collect(ctx, job)
	deduped := l.dedupe(ordered, job)
	filtered := l.filter(deduped, job)

	tenantRegions := tenant.ConfiguredRegions
	if runner.RegionScoped() && len(tenantRegions) == 0 && len(job.Regions) == 0 && l.Regions != nil {
		listed, err := l.Regions.ListRegions(ctx)
		if err != nil {
			job.Warnings = append(job.Warnings, fmt.Sprintf("region listing failed, scanning GLOBAL only: %v", err))
		}
		tenantRegions = listed
	}

	plan := Plan{Locations: buildLocations(runner.RegionScoped(), tenantRegions, job.Regions)}
	for _, np := range filtered {
		if np.policy.ResourceType == "" {
			job.Warnings = append(job.Warnings, fmt.Sprintf("policy %q: unknown resource-type, skipped", np.policy.Name))
			continue
		}
		if runner.IsGlobal(np.policy) {
			plan.GlobalPolicies = append(plan.GlobalPolicies, np.policy)
		} else {
			plan.RegionalPolicies = append(plan.RegionalPolicies, np.policy)
		}
	}

	if plan.Empty() {
		return plan, fmt.Errorf("policyloader: %w", ErrNoLoadablePolicies)
	}
	return plan, nil
}

// collect fetches every ruleset's content in order (licensed first), and
// flattens all of their policies into one ordered slice. A ruleset that
// fails to fetch or parse is recorded as a job warning and skipped; it
// does not abort the job, the same tolerance the executor extends to
// individual rule failures.
func (l *Loader) collect(ctx context.Context, job *model.Job) []namedPolicy {
	licensed := make([]model.RulesetRef, 0, len(job.Rulesets))
	standard := make([]model.RulesetRef, 0, len(job.Rulesets))
	for _, r := range job.Rulesets {
		if r.Licensed() {
			licensed = append(licensed, r)
		} else {
			standard = append(standard, r)
		}
	}

	var out []namedPolicy
	for _, r := range append(licensed, standard...) {
		ref := r.ContentURI
		if ref == "" {
			ref = l.ContentRef(r)
		}
		content, err := l.Source.Fetch(ctx, ref)
		if err != nil {
			log.Printf("[policyloader] ruleset %s@%s: %v", r.Name, r.Version, err)
			job.Warnings = append(job.Warnings, fmt.Sprintf("ruleset %s@%s: fetch/parse failed, skipped", r.Name, r.Version))
			continue
		}
		for _, p := range content.Policies {
			out = append(out, namedPolicy{policy: p, ruleset: r.Name, licensed: r.Licensed()})
		}
	}
	return out
}

// dedupe keeps the first occurrence of each policy name and records every
// later occurrence as a job warning.
func (l *Loader) dedupe(in []namedPolicy, job *model.Job) []namedPolicy {
	seen := make(map[string]bool, len(in))
	out := make([]namedPolicy, 0, len(in))
	for _, np := range in {
		if seen[np.policy.Name] {
			job.Warnings = append(job.Warnings, fmt.Sprintf("duplicate policy %q from ruleset %s, ignored", np.policy.Name, np.ruleset))
			continue
		}
		seen[np.policy.Name] = true
		out = append(out, np)
	}
	return out
}

// filter applies the tenant/customer exclude set and, if non-empty, the
// job's rules_to_scan allowlist.
func (l *Loader) filter(in []namedPolicy, job *model.Job) []namedPolicy {
	excluded := toSet(job.DisabledRules)
	keep := toSet(job.RulesToScan)

	out := make([]namedPolicy, 0, len(in))
	for _, np := range in {
		if excluded[np.policy.Name] {
			continue
		}
		if len(keep) > 0 && !keep[np.policy.Name] {
			continue
		}
		out = append(out, np)
	}
	return out
}

func toSet(names []string) map[string]bool {
	if len(names) == 0 {
		return nil
	}
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return set
}

