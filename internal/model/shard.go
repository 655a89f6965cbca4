package model

import "time"

// ErrorType is the error taxonomy surfaced into StatisticsItem.ErrorType and
// (when a rule errored instead of producing resources) ShardPart.ErrorType.
type ErrorType string

const (
	ErrorNone        ErrorType = ""
	ErrorAccess      ErrorType = "ACCESS"
	ErrorCredentials ErrorType = "CREDENTIALS"
	ErrorClient      ErrorType = "CLIENT"
	ErrorInternal    ErrorType = "INTERNAL"
	ErrorSkipped     ErrorType = "SKIPPED"
)

// PartKey identifies a ShardPart within a collection. Last write by PartKey
// wins, both in a single job's collection and when merging into "latest".
type PartKey struct {
	Policy   string `json:"policy"`
	Location string `json:"location"` // region, or GlobalLocation
}

// ShardPart is the result of running one policy against one region (or
// GLOBAL). Exactly one of Resources or (ErrorType, ErrorMessage) is set,
// never both.
type ShardPart struct {
	Policy    string    `json:"policy"`
	Location  string    `json:"location"`
	Timestamp time.Time `json:"timestamp"`

	Resources []map[string]interface{} `json:"resources,omitempty"` // opaque resource documents

	ErrorType    ErrorType `json:"error_type,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
}

func (p ShardPart) Key() PartKey {
	return PartKey{Policy: p.Policy, Location: p.Location}
}

func (p ShardPart) IsError() bool {
	return p.ErrorType != ErrorNone
}

// PolicyMeta is the meta sidecar entry describing one policy across a
// ShardsCollection: its resource type and whether it is a global policy.
type PolicyMeta struct {
	ResourceType string `json:"resource_type"`
	Description  string `json:"description,omitempty"`
	IsGlobal     bool   `json:"is_global"`
}
