// Package cloudrunner dispatches cloud-specific behavior through a small
// interface implemented once per model.Cloud: policy classification and
// error-taxonomy mapping live on the runner for a cloud rather than on
// type switches scattered through the pipeline.
package cloudrunner

import "github.com/epam/syndicate-rule-engine-sub000/internal/model"

// CloudRunner classifies policies for one cloud and maps that cloud's raw
// worker errors onto the shared error taxonomy.
type CloudRunner interface {
	Cloud() model.Cloud

	// IsGlobal reports whether a policy for this cloud runs at most once
	// regardless of how many regions are in the plan.
	IsGlobal(p model.Policy) bool

	// RegionScoped reports whether this cloud's plan enumerates regions at
	// all. Non-AWS clouds are always false: their plan is always [GLOBAL].
	RegionScoped() bool

	// ClassifyError maps a raw error surfaced by the worker/scanning engine
	// into the shared taxonomy. Implementations inspect provider-specific
	// signatures (HTTP status, SDK error codes, exec exit codes) to do so.
	ClassifyError(raw error) model.ErrorType
}

// Registry looks up the CloudRunner for a model.Cloud. It is built once by
// internal/container and threaded through the pipeline; nothing holds a
// package-level instance.
type Registry struct {
	runners map[model.Cloud]CloudRunner
}

func NewRegistry(runners ...CloudRunner) *Registry {
	r := &Registry{runners: make(map[model.Cloud]CloudRunner, len(runners))}
	for _, rn := range runners {
		r.runners[rn.Cloud()] = rn
	}
	return r
}

func (r *Registry) For(c model.Cloud) (CloudRunner, bool) {
	rn, ok := r.runners[c]
	return rn, ok
}

// DefaultRegistry wires all four built-in runners, one per supported
// cloud.
func DefaultRegistry() *Registry {
	return NewRegistry(AWSRunner{}, AzureRunner{}, GoogleRunner{}, KubernetesRunner{})
}
