package executor

import (
	"context"
	"sync"
	"time"

	"github.com/epam/syndicate-rule-engine-sub000/internal/model"
	"github.com/epam/syndicate-rule-engine-sub000/internal/policyloader"
)

// LocationResult is one location's worker outcome, or a synthetic
// all-SKIPPED result if the location was never spawned because the job's
// deadline had already passed.
type LocationResult struct {
	Location string
	Result   WorkerResult
	// DeadlineSkipped marks a location whose worker was never spawned
	// because the job's deadline had already passed by then.
	DeadlineSkipped bool
}

// Executor runs a job's plan across all of its locations, amortizing
// scanning-engine memory growth by spawning one worker process per
// location: the kernel reclaims whatever the engine leaked when the
// worker exits.
type Executor struct {
	Launcher Launcher
	WorkDir  string
	// Concurrency is how many locations may have an in-flight worker at
	// once. 1 (the default) processes regions sequentially, the legacy
	// memory-containment mode; the resource-collector path sets it higher.
	Concurrency int
}

// Run spawns a worker for every location in plan, honoring job's absolute
// deadline: once the deadline has passed, no further worker is spawned and
// the remaining locations' policies are emitted as SKIPPED with reason
// "time exceeded". Results are returned in plan.Locations order regardless
// of completion order.
//
// GLOBAL always runs to completion before any other location is spawned
// (some providers' global resources are referenced by regional rules);
// every other location then fans out under the configured concurrency.
func (e *Executor) Run(ctx context.Context, job *model.Job, tenant model.Tenant, plan policyloader.Plan) []LocationResult {
	concurrency := e.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	results := make([]LocationResult, len(plan.Locations))
	deadline, hasDeadline := job.Deadline()

	run := func(i int, location string) {
		policies := plan.PoliciesFor(location)

		if hasDeadline && time.Now().After(deadline) {
			results[i] = LocationResult{Location: location, Result: skippedResult(location, policies, "time exceeded"), DeadlineSkipped: true}
			return
		}

		req := WorkerRequest{
			Policies: policies,
			WorkDir:  e.WorkDir + "/" + location,
			Cloud:    workerCloud(job, tenant),
			Region:   location,
		}
		result, err := e.Launcher.Launch(ctx, req)
		if err != nil {
			result = internalFailureResult(location, policies, err.Error())
		}
		results[i] = LocationResult{Location: location, Result: result}
	}

	rest := plan.Locations
	offset := 0
	if len(rest) > 0 && rest[0] == model.GlobalLocation {
		run(0, model.GlobalLocation)
		rest = rest[1:]
		offset = 1
	}
	runConcurrent(rest, offset, run, concurrency)
	return results
}

// runConcurrent fans locations out across a bounded pool of goroutines,
// each calling run(offset+i, location); run itself is responsible for
// writing its result into the caller's results slice.
func runConcurrent(locations []string, offset int, run func(i int, location string), concurrency int) {
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	for i, location := range locations {
		i, location := i, location
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			run(offset+i, location)
		}()
	}
	wg.Wait()
}

// workerCloud reports the cloud a worker should scan as. Platform
// (Kubernetes) jobs always scan as model.Kubernetes regardless of the
// parent tenant's own cloud.
func workerCloud(job *model.Job, tenant model.Tenant) model.Cloud {
	if job.PlatformID != "" {
		return model.Kubernetes
	}
	return tenant.Cloud
}

func skippedResult(location string, policies []model.Policy, reason string) WorkerResult {
	result := WorkerResult{}
	for _, p := range policies {
		result.Failed = append(result.Failed, WorkerFailure{
			Region:    location,
			Policy:    p.Name,
			ErrorType: model.ErrorSkipped,
			Message:   reason,
		})
	}
	return result
}

// internalFailureResult is used when the worker process itself failed to
// start or complete its handshake: non-zero exit means every planned rule
// in that region counts as an INTERNAL failure.
func internalFailureResult(location string, policies []model.Policy, message string) WorkerResult {
	result := WorkerResult{}
	for _, p := range policies {
		result.Failed = append(result.Failed, WorkerFailure{
			Region:    location,
			Policy:    p.Name,
			ErrorType: model.ErrorInternal,
			Message:   message,
		})
	}
	return result
}
