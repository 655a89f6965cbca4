// Package quota is the license quota broker client: pre-authorization of
// licensed rulesets before a job starts, and a status notification when it
// finishes.
package quota

import (
	"context"

	"github.com/epam/syndicate-rule-engine-sub000/internal/model"
)

// RulesetAuthorization is what the broker returns per tenant-linked-key:
// the exact ruleset versions it authorized for this job.
type RulesetAuthorization struct {
	TenantLinkKey string             `json:"tenant_link_key"`
	Rulesets      []model.RulesetRef `json:"rulesets"`
}

// PreAuthorizeRequest is submitted before a licensed job transitions to
// RUNNING.
type PreAuthorizeRequest struct {
	JobID        string
	CustomerName string
	TenantName   string
	// RulesetMap is tenant-link-key -> ruleset names.
	RulesetMap map[string][]string
}

// ErrDenied is returned by Broker.PreAuthorize when the broker rejects the
// job; the controller maps this to Job FAILED / ReasonLicenseDenied / exit
// code 2.
type ErrDenied struct {
	Message string
}

func (e *ErrDenied) Error() string { return "quota: denied: " + e.Message }

// PreAuthorizeResponse is the broker's grant: the exact ruleset versions
// it authorized per tenant-link-key, plus the resolved content location of
// each ruleset so the policy loader doesn't re-derive it.
type PreAuthorizeResponse struct {
	Authorizations []RulesetAuthorization `json:"authorizations"`
	RulesetContent map[string]string      `json:"ruleset_content,omitempty"`
}

// Broker pre-authorizes licensed jobs and reports their terminal status.
type Broker interface {
	PreAuthorize(ctx context.Context, req PreAuthorizeRequest) (PreAuthorizeResponse, error)
	UpdateJob(ctx context.Context, job *model.Job) error
}
