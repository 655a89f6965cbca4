// Package credentials resolves scan credentials through
// a five-link chain that produces a short-lived, scope-limited credentials
// Bundle for one job, stopping at the first link that yields a non-empty
// result. Materialization (env vars, temp files, kubeconfigs) is
// provider-specific and lives in aws.go/azure.go/gcp.go/kubernetes.go;
// cleanup of anything the chain wrote to disk is bound to the job's scope.
package credentials

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/epam/syndicate-rule-engine-sub000/internal/model"
	"github.com/epam/syndicate-rule-engine-sub000/internal/secretstore"
)

// ErrNoCredentials is returned when every link in the chain is exhausted
// without a usable result; the controller maps it to NO_CREDENTIALS.
var ErrNoCredentials = errors.New("credentials: no source produced usable credentials")

// Bundle is the resolved output of the chain: environment variables to
// inject into the region-worker subprocess, plus any temp files (PEM,
// service-account JSON, kubeconfig) that must be removed when the job
// ends. Close is idempotent and safe to call even if Resolve failed
// partway through.
type Bundle struct {
	Env     map[string]string
	cleanup []func() error
}

func newBundle() *Bundle {
	return &Bundle{Env: map[string]string{}}
}

func (b *Bundle) addCleanup(fn func() error) {
	b.cleanup = append(b.cleanup, fn)
}

// writeTempFile writes data to a new temp file under os.TempDir, registers
// its removal with the bundle, and returns its path.
func (b *Bundle) writeTempFile(pattern string, data []byte) (string, error) {
	f, err := os.CreateTemp("", pattern)
	if err != nil {
		return "", fmt.Errorf("credentials: create temp file: %w", err)
	}
	path := f.Name()
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("credentials: write temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("credentials: close temp file: %w", err)
	}
	b.addCleanup(func() error { return os.Remove(path) })
	return path, nil
}

// Close runs every registered cleanup in reverse registration order,
// collecting (not short-circuiting on) individual failures.
func (b *Bundle) Close() error {
	var errs []error
	for i := len(b.cleanup) - 1; i >= 0; i-- {
		if err := b.cleanup[i](); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Request describes one job's need for credentials.
type Request struct {
	Job      *model.Job
	Tenant   model.Tenant
	Platform *model.Platform // non-nil for a Kubernetes platform scan

	// AllowManagementCreds mirrors the ALLOW_MANAGEMENT_CREDS env var:
	// only when true does chain step 3 run.
	AllowManagementCreds bool

	// EphemeralKey overrides the secret-store key chain link 1 reads,
	// for one-shot invocations handed a CREDENTIALS_KEY by their
	// submitter. Empty means the job-id-derived convention.
	EphemeralKey string
}

// ParentLink is the CUSTODIAN_ACCESS record: a tenant-linked application
// whose secret resolves to a role ARN / client secret / service-account
// JSON, depending on the tenant's cloud.
type ParentLink struct {
	Cloud model.Cloud

	AWSRoleARN string

	AzureClientID       string
	AzureClientSecret   string
	AzureTenantID       string
	AzureCertificatePEM []byte // set instead of ClientSecret for cert auth

	GCPServiceAccountJSON []byte
}

// ParentLinkSource resolves the tenant-linked parent record for step 2 of
// the chain. Implementations typically read a tenantconfig-managed mapping
// and the secret it names.
type ParentLinkSource interface {
	ParentLink(ctx context.Context, tenant model.Tenant) (*ParentLink, error)
}

// ManagementCredsSource resolves the customer's privileged credentials for
// step 3, gated by Request.AllowManagementCreds.
type ManagementCredsSource interface {
	ManagementCreds(ctx context.Context, tenant model.Tenant) (*ParentLink, error)
}

// AmbientPrincipal reports the host's ambient identity for step 4's
// principal-id match against the tenant's project id (AWS account id /
// Azure subscription id / GCP project id).
type AmbientPrincipal interface {
	PrincipalID(ctx context.Context, cloud model.Cloud) (string, error)
}

// Resolver drives the chain. Every field is an optional collaborator: a
// nil ParentLinks/Management/Ambient simply makes that link always miss.
type Resolver struct {
	Secrets     secretstore.SecretStore
	ParentLinks ParentLinkSource
	Management  ManagementCredsSource
	Ambient     AmbientPrincipal

	AWS   AWSMaterializer
	Azure AzureMaterializer
	K8s   KubernetesMaterializer
}

// ephemeralKey is the secret-store key convention for a job's staged
// one-shot credentials; CREDENTIALS_KEY names this key when the
// controller is invoked as a one-shot process.
func ephemeralKey(jobID string) string {
	return fmt.Sprintf("jobs/%s/ephemeral-credentials", jobID)
}

// Resolve runs the chain and returns a materialized Bundle. The caller
// must call Bundle.Close when the job ends, success or failure alike.
func (r *Resolver) Resolve(ctx context.Context, req Request) (*Bundle, error) {
	if bundle, ok, err := r.tryJobScoped(ctx, req); err != nil {
		return nil, err
	} else if ok {
		return bundle, nil
	}

	if bundle, ok, err := r.tryParentLink(ctx, req); err != nil {
		return nil, err
	} else if ok {
		return bundle, nil
	}

	if req.AllowManagementCreds {
		if bundle, ok, err := r.tryManagement(ctx, req); err != nil {
			return nil, err
		} else if ok {
			return bundle, nil
		}
	}

	if bundle, ok, err := r.tryAmbient(ctx, req); err != nil {
		return nil, err
	} else if ok {
		return bundle, nil
	}

	return nil, ErrNoCredentials
}

// tryJobScoped is chain link 1: a previously staged, single-use secret
// keyed by the job id.
func (r *Resolver) tryJobScoped(ctx context.Context, req Request) (*Bundle, bool, error) {
	if r.Secrets == nil {
		return nil, false, nil
	}
	taker, ok := r.Secrets.(interface {
		Take(context.Context, string) ([]byte, error)
	})
	if !ok {
		return nil, false, nil
	}
	key := req.EphemeralKey
	if key == "" {
		key = ephemeralKey(req.Job.ID)
	}
	raw, err := taker.Take(ctx, key)
	if err != nil {
		if errors.Is(err, secretstore.ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("credentials: job-scoped lookup: %w", err)
	}
	bundle, err := materializeEphemeral(ctx, r, req, raw)
	if err != nil {
		return nil, false, err
	}
	return bundle, true, nil
}

// tryParentLink is chain link 2: CUSTODIAN_ACCESS.
func (r *Resolver) tryParentLink(ctx context.Context, req Request) (*Bundle, bool, error) {
	if r.ParentLinks == nil {
		return nil, false, nil
	}
	link, err := r.ParentLinks.ParentLink(ctx, req.Tenant)
	if err != nil {
		return nil, false, fmt.Errorf("credentials: parent link lookup: %w", err)
	}
	if link == nil {
		return nil, false, nil
	}
	bundle, err := materializeParentLink(ctx, r, req, link)
	if err != nil {
		return nil, false, err
	}
	return bundle, true, nil
}

// tryManagement is chain link 3, only reached when AllowManagementCreds.
func (r *Resolver) tryManagement(ctx context.Context, req Request) (*Bundle, bool, error) {
	if r.Management == nil {
		return nil, false, nil
	}
	link, err := r.Management.ManagementCreds(ctx, req.Tenant)
	if err != nil {
		return nil, false, fmt.Errorf("credentials: management creds lookup: %w", err)
	}
	if link == nil {
		return nil, false, nil
	}
	bundle, err := materializeStatic(ctx, r, req, link)
	if err != nil {
		return nil, false, err
	}
	return bundle, true, nil
}

// tryAmbient is chain link 4: the host's own identity, used iff its
// principal id matches the tenant's project id.
func (r *Resolver) tryAmbient(ctx context.Context, req Request) (*Bundle, bool, error) {
	if r.Ambient == nil || req.Tenant.ProjectID == "" {
		return nil, false, nil
	}
	principal, err := r.Ambient.PrincipalID(ctx, req.Tenant.Cloud)
	if err != nil {
		return nil, false, fmt.Errorf("credentials: ambient principal lookup: %w", err)
	}
	if principal == "" || principal != req.Tenant.ProjectID {
		return nil, false, nil
	}
	return newBundle(), true, nil
}
