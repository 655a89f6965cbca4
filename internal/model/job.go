package model

import "time"

// JobStatus is the Job state machine's state, strictly monotone over
// STARTING -> RUNNING -> {SUCCEEDED|FAILED}.
type JobStatus string

const (
	JobStarting  JobStatus = "STARTING"
	JobRunning   JobStatus = "RUNNING"
	JobSucceeded JobStatus = "SUCCEEDED"
	JobFailed    JobStatus = "FAILED"
)

// Terminal reports whether status is one from which no further transition
// is permitted.
func (s JobStatus) Terminal() bool {
	return s == JobSucceeded || s == JobFailed
}

// FailureReason enumerates the known terminal-failure reasons a Job can
// carry. Values not listed here (e.g. a wrapped internal error string) are
// still legal in Job.Reason; this type only names the ones the controller
// and tests check for by value.
type FailureReason string

const (
	ReasonNone              FailureReason = ""
	ReasonLicenseDenied     FailureReason = "LM_DID_NOT_ALLOW"
	ReasonNoCredentials     FailureReason = "NO_CREDENTIALS"
	ReasonLockHeld          FailureReason = "LOCK_HELD"
	ReasonNoLoadablePolicy  FailureReason = "NO_LOADABLE_POLICIES"
	ReasonInternal          FailureReason = "INTERNAL"
	ReasonTimeExceeded      FailureReason = "TIMEOUT"
)

// JobKind distinguishes a Job submitted directly, one materialized from a
// scheduler entry, or one derived from an event-driven batch of change
// events (spec glossary: "event-driven job / BatchResults").
type JobKind string

const (
	JobStandard     JobKind = "standard"
	JobScheduled    JobKind = "scheduled"
	JobEventDriven  JobKind = "event-driven"
)

// Job is the unit of work the controller drives end to end.
type Job struct {
	ID           string
	TenantName   string
	CustomerName string
	Kind         JobKind
	Status       JobStatus
	SubmittedAt  time.Time
	StartedAt    *time.Time
	StoppedAt    *time.Time

	Rulesets      []RulesetRef
	Regions       []string
	RulesToScan   []string // allowlist; empty means "all"
	DisabledRules []string // tenant + customer exclude set, merged by the caller

	AffectedLicense   string // licensed ruleset's license key, if any
	ScheduledRuleName string // scheduler entry id, scheduled jobs only
	PlatformID        string // set iff this is a platform (Kubernetes) scan

	Reason   FailureReason
	Warnings []string // e.g. duplicate-policy-name warnings from the loader

	JobLifetime time.Duration // absolute deadline offset from SubmittedAt
}

// RulesetRef names a ruleset a job should scan; Version is resolved (by the
// quota broker, for licensed rulesets, or by the content source otherwise)
// before the job starts.
type RulesetRef struct {
	Name       string `json:"name"`
	Version    string `json:"version"`
	LicenseKey string `json:"license_key,omitempty"`
	// ContentURI, when set, is the resolved content location the quota
	// broker handed back for this ruleset; the policy loader uses it
	// directly instead of deriving a content-ref from name+version.
	ContentURI string `json:"content_uri,omitempty"`
}

func (r RulesetRef) Licensed() bool {
	return r.LicenseKey != ""
}

// Deadline returns the absolute time after which the executor must not
// spawn any further region worker. Zero JobLifetime means no deadline.
func (j *Job) Deadline() (time.Time, bool) {
	if j.JobLifetime <= 0 {
		return time.Time{}, false
	}
	return j.SubmittedAt.Add(j.JobLifetime), true
}
