package joblifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/epam/syndicate-rule-engine-sub000/internal/executor"
	"github.com/epam/syndicate-rule-engine-sub000/internal/model"
	"github.com/epam/syndicate-rule-engine-sub000/internal/policyloader"
	"github.com/epam/syndicate-rule-engine-sub000/internal/shardstore"
	"github.com/epam/syndicate-rule-engine-sub000/internal/statistics"
)

// finalize publishes a finished job's results in a fixed order: job-result
// shards, latest fetch, self-heals, difference, latest merge, difference
// artifact, statistics. Each step is best-effort: a failure partway
// through still leaves the already completed steps' writes in place (the
// job result key is this run's ground truth; latest is only ever
// eventually consistent).
func (c *Controller) finalize(ctx context.Context, job *model.Job, tenant model.Tenant, plan policyloader.Plan, results []executor.LocationResult) error {
	shardCount := c.Config.ShardCount
	if shardCount <= 0 {
		shardCount = shardstore.DefaultShardCount
	}

	// Step 1: materialize the job's own collection at its stable result key.
	jobStore := shardstore.NewStore(c.Objects, jobResultPrefix(job.ID), shardCount)
	populateCollection(jobStore.Collection, plan, results, c.runnerFor(job, tenant))
	if err := jobStore.WriteAll(ctx); err != nil {
		return fmt.Errorf("write job result shards: %w", err)
	}
	if err := jobStore.WriteMeta(ctx); err != nil {
		return fmt.Errorf("write job result meta: %w", err)
	}

	// Step 2: fetch the tenant's latest collection, but only the shards
	// the merge below will touch, plus its meta sidecar. The job's Azure
	// pseudo-region parts are resolved first so the index set reflects
	// the locations actually being merged, not the scanner's placeholder.
	resolvedJob := shardstore.ResolveAzurePseudoRegion(jobStore.Collection)

	latestStore := shardstore.NewStore(c.Objects, latestPrefix(tenant.Name), shardCount)
	latestStore.EnableS3SelfHeal = c.Config.EnableS3SelfHeal
	latestStore.DefaultRegion = c.Config.DefaultRegion

	indexes := touchedIndexes(resolvedJob, shardCount)
	latestParts, err := latestStore.FetchByIndexes(ctx, indexesList(indexes))
	if err != nil {
		return fmt.Errorf("fetch latest shards: %w", err)
	}
	latestMeta, err := latestStore.FetchMeta(ctx)
	if err != nil {
		return fmt.Errorf("fetch latest meta: %w", err)
	}
	latestStore.Collection.PutParts(latestParts...)
	for policy, m := range latestMeta {
		latestStore.Collection.PutMeta(policy, m)
	}

	// Step 3: self-heal the fetched latest parts. Re-regionalized s3
	// buckets can land in shards the fetch above didn't cover; those
	// shards must be loaded too before latest is rebuilt, or the rewrite
	// below would replace them with only the migrated parts.
	if c.Config.EnableS3SelfHeal {
		healed := shardstore.ReRegionalizeS3(latestStore.Collection.FetchAll(), latestStore.Collection.FetchMeta(), defaultRegionOr(c.Config.DefaultRegion))

		extra := map[int]bool{}
		for _, p := range healed {
			if idx := shardstore.ShardIndex(p.Location, shardCount); !indexes[idx] {
				extra[idx] = true
				indexes[idx] = true
			}
		}
		if len(extra) > 0 {
			moreParts, err := latestStore.FetchByIndexes(ctx, indexesList(extra))
			if err != nil {
				return fmt.Errorf("fetch latest shards for self-heal: %w", err)
			}
			latestStore.Collection.PutParts(moreParts...)
			healed = shardstore.ReRegionalizeS3(latestStore.Collection.FetchAll(), latestStore.Collection.FetchMeta(), defaultRegionOr(c.Config.DefaultRegion))
		}

		latestStore.Collection = shardstore.NewShardsCollection(shardCount)
		latestStore.Collection.PutParts(healed...)
		for policy, m := range latestMeta {
			latestStore.Collection.PutMeta(policy, m)
		}
	}

	// Step 4: difference = job collection (post-resolve) minus latest,
	// before the merge below mutates latest.
	difference := resolvedJob.Diff(latestStore.Collection)

	// Step 5: merge job into latest; write latest + its meta.
	latestStore.Collection.Update(resolvedJob)
	if err := latestStore.WriteAll(ctx); err != nil {
		return fmt.Errorf("write latest shards: %w", err)
	}
	if err := latestStore.WriteMeta(ctx); err != nil {
		return fmt.Errorf("write latest meta: %w", err)
	}

	// Step 6: write the difference artifact for event-driven jobs only;
	// standard and scheduled jobs discard it.
	if job.Kind == model.JobEventDriven && difference.Len() > 0 {
		diffStore := shardstore.NewStore(c.Objects, differencePrefix(job.ID), shardCount)
		diffStore.Collection = difference
		if err := diffStore.WriteAll(ctx); err != nil {
			return fmt.Errorf("write difference shards: %w", err)
		}
		if err := diffStore.WriteMeta(ctx); err != nil {
			return fmt.Errorf("write difference meta: %w", err)
		}
	}

	// Step 7: write the statistics artifact.
	if c.Stats != nil {
		start := job.SubmittedAt
		end := time.Now()
		if job.StartedAt != nil {
			start = *job.StartedAt
		}
		items := statistics.Build(job, results, start, end)
		if err := c.Stats.Write(ctx, job.ID, items); err != nil {
			return fmt.Errorf("write statistics: %w", err)
		}
	}

	// Step 8 (transition/release/notify) happens in Run's caller and defer.
	return nil
}

// runnerFor resolves the CloudRunner used to classify plan policies into
// meta's is_global flag; a Kubernetes platform job always uses the
// Kubernetes runner regardless of the parent tenant's own cloud.
func (c *Controller) runnerFor(job *model.Job, tenant model.Tenant) func(model.Policy) bool {
	cloud := tenant.Cloud
	if job.PlatformID != "" {
		cloud = model.Kubernetes
	}
	runner, ok := c.Runners.For(cloud)
	if !ok {
		return func(model.Policy) bool { return false }
	}
	return runner.IsGlobal
}

// populateCollection fills collection with every successful and failed
// part from results, plus a meta entry per planned policy.
func populateCollection(collection *shardstore.ShardsCollection, plan policyloader.Plan, results []executor.LocationResult, isGlobal func(model.Policy) bool) {
	for _, lr := range results {
		collection.PutParts(lr.Result.Parts...)
		for _, f := range lr.Result.Failed {
			collection.PutPart(model.ShardPart{
				Policy:       f.Policy,
				Location:     f.Region,
				Timestamp:    time.Now(),
				ErrorType:    f.ErrorType,
				ErrorMessage: f.Message,
			})
		}
	}
	for _, p := range plan.GlobalPolicies {
		collection.PutMeta(p.Name, model.PolicyMeta{ResourceType: p.ResourceType, Description: p.Description, IsGlobal: isGlobal(p)})
	}
	for _, p := range plan.RegionalPolicies {
		collection.PutMeta(p.Name, model.PolicyMeta{ResourceType: p.ResourceType, Description: p.Description, IsGlobal: isGlobal(p)})
	}
}

// touchedIndexes returns the set of shard indexes collection's parts hash
// into, so the latest collection only loads the shards this job could
// possibly affect.
func touchedIndexes(collection *shardstore.ShardsCollection, shardCount int) map[int]bool {
	out := make(map[int]bool)
	for _, p := range collection.FetchAll() {
		out[shardstore.ShardIndex(p.Location, shardCount)] = true
	}
	return out
}

func indexesList(set map[int]bool) []int {
	out := make([]int, 0, len(set))
	for idx := range set {
		out = append(out, idx)
	}
	return out
}

func defaultRegionOr(region string) string {
	if region == "" {
		return "us-east-1"
	}
	return region
}
