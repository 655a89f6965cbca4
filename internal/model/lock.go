package model

// Lock is the tenant-scoped mutual-exclusion record: at most one active Lock
// per TenantName at any moment, acquired at job start and released
// unconditionally on finalize (including crash/panic paths).
type Lock struct {
	TenantName string
	JobID      string
	Regions    []string
}
