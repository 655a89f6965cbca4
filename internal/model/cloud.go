// Package model holds the entity types of the scan execution pipeline:
// Job, Tenant, Platform, Ruleset, Policy, ShardPart, StatisticsItem and
// Lock, plus the Cloud tagged union that replaces the source system's
// isinstance-based dispatch. ShardsCollection lives in internal/shardstore.
package model

// Cloud is the tagged union of cloud providers a tenant or platform can
// target. It replaces runtime isinstance checks on cloud/resource objects
// with a closed set switched on explicitly.
type Cloud string

const (
	AWS        Cloud = "AWS"
	Azure      Cloud = "AZURE"
	Google     Cloud = "GOOGLE"
	Kubernetes Cloud = "KUBERNETES"
)

func (c Cloud) Valid() bool {
	switch c {
	case AWS, Azure, Google, Kubernetes:
		return true
	}
	return false
}

// GlobalLocation is the sentinel location for non-regional findings.
const GlobalLocation = "GLOBAL"

// AzurePseudoRegion is the placeholder location the scanning engine emits
// for every Azure finding before this repo resolves the resource's real
// location (see ResolveAzurePseudoRegion in internal/shardstore).
const AzurePseudoRegion = "AzureCloud"

// PlatformType enumerates the kinds of Kubernetes-hosting platform a
// Platform entity can describe. A Platform always scans as Cloud ==
// Kubernetes regardless of its parent Tenant's cloud.
type PlatformType string

const (
	PlatformEKS         PlatformType = "EKS"
	PlatformAKS         PlatformType = "AKS"
	PlatformGKE         PlatformType = "GKE"
	PlatformSelfManaged PlatformType = "SELF_MANAGED"
)
