// Package executor drives a job's region plan through short-lived worker
// processes: one spawn per location, a JSON stdin/stdout worker contract,
// the credentials short-circuit rule, and the deadline-driven time budget.
package executor

import (
	"time"

	"github.com/epam/syndicate-rule-engine-sub000/internal/model"
)

// WorkerRequest is the JSON document written to a worker process's stdin.
type WorkerRequest struct {
	Policies []model.Policy `json:"policies"`
	WorkDir  string         `json:"work_dir"`
	Cloud    model.Cloud    `json:"cloud"`
	Region   string         `json:"region"`
}

// WorkerFailure is one entry of WorkerResult.Failed: the (region, policy)
// key spelled out, since Go JSON maps can't carry a composite key directly.
type WorkerFailure struct {
	Region    string          `json:"region"`
	Policy    string          `json:"policy"`
	ErrorType model.ErrorType `json:"error_type"`
	Message   string          `json:"message"`
	Trace     string          `json:"trace,omitempty"`
}

// WorkerResult is the JSON document a worker process writes to stdout.
type WorkerResult struct {
	NSuccessful int               `json:"n_successful"`
	Failed      []WorkerFailure   `json:"failed"`
	Parts       []model.ShardPart `json:"parts"`
}

// Evaluator is the injected scanning engine. The engine itself lives
// outside this repo; this is the seam a real engine plugs into, and a
// deterministic fake stands in for tests and local runs.
type Evaluator interface {
	Evaluate(cloud model.Cloud, region string, policy model.Policy) ([]map[string]interface{}, error)
}

// ErrorClassifier maps a raw evaluator error onto the shared taxonomy; in
// production this is a cloudrunner.CloudRunner.ClassifyError bound to the
// request's cloud.
type ErrorClassifier func(raw error) model.ErrorType

// RunPolicies evaluates every policy in req sequentially against eval,
// applying the short-circuit rule: the first CREDENTIALS error in this
// region/location marks every remaining not-yet-evaluated policy as
// SKIPPED with the same reason. Since one worker process handles exactly
// one location, this never needs to reach across locations — the "GLOBAL
// does not short-circuit other regions" rule falls out for free because
// each location is a separate worker invocation.
func RunPolicies(req WorkerRequest, eval Evaluator, classify ErrorClassifier) WorkerResult {
	result := WorkerResult{}
	shortCircuited := false
	var shortCircuitReason string

	for _, policy := range req.Policies {
		if shortCircuited {
			result.Failed = append(result.Failed, WorkerFailure{
				Region:    req.Region,
				Policy:    policy.Name,
				ErrorType: model.ErrorSkipped,
				Message:   shortCircuitReason,
			})
			continue
		}

		resources, err := eval.Evaluate(req.Cloud, req.Region, policy)
		if err != nil {
			errType := classify(err)
			result.Failed = append(result.Failed, WorkerFailure{
				Region:    req.Region,
				Policy:    policy.Name,
				ErrorType: errType,
				Message:   err.Error(),
			})
			if errType == model.ErrorCredentials {
				shortCircuited = true
				shortCircuitReason = err.Error()
			}
			continue
		}

		result.NSuccessful++
		result.Parts = append(result.Parts, model.ShardPart{
			Policy:    policy.Name,
			Location:  partLocation(req),
			Timestamp: time.Now(),
			Resources: resources,
			ErrorType: model.ErrorNone,
		})
	}

	return result
}

// partLocation is the location a successful ShardPart is tagged with.
// Azure findings are tagged with the scanning engine's pseudo-region
// rather than the plan's GLOBAL location, since each resource carries its
// true region in its own body and internal/shardstore resolves it from
// there at merge time.
func partLocation(req WorkerRequest) string {
	if req.Cloud == model.Azure {
		return model.AzurePseudoRegion
	}
	return req.Region
}
