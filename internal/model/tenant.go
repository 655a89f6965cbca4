package model

// Tenant is the scan target: an AWS account, Azure subscription, GCP
// project, or Kubernetes cluster. ProjectID is opaque to the core — it is
// never parsed, only compared for the ambient-credentials principal match
// in internal/credentials.
type Tenant struct {
	Name              string
	Cloud             Cloud
	ProjectID         string
	Active            bool
	ConfiguredRegions []string
	CustomerName      string
	DisabledRules     []string
}

// Platform is a Kubernetes scan target hosted inside a Tenant. A Platform
// always scans as Cloud == Kubernetes, regardless of the parent Tenant's
// cloud (e.g. an EKS platform's parent tenant is an AWS account).
type Platform struct {
	ID         string
	TenantName string
	Type       PlatformType
	Name       string
	Region     string
	SecretRef  string // secret-store key for a staged kubeconfig/token, if any
}
