package credentials

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/epam/syndicate-rule-engine-sub000/internal/model"
)

// EphemeralPayload is the JSON shape a job-scoped ephemeral secret (chain
// link 1) is staged as. Exactly one of the provider fields is set,
// matching the tenant's cloud.
type EphemeralPayload struct {
	Cloud model.Cloud `json:"cloud"`

	AWS   *AWSStatic   `json:"aws,omitempty"`
	Azure *AzureStatic `json:"azure,omitempty"`
	GCP   *GCPStatic   `json:"gcp,omitempty"`
}

// materializeEphemeral decodes a staged secret and writes its env vars /
// temp files into a fresh Bundle.
func materializeEphemeral(ctx context.Context, r *Resolver, req Request, raw []byte) (*Bundle, error) {
	var payload EphemeralPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("credentials: decode ephemeral payload: %w", err)
	}
	bundle := newBundle()
	switch payload.Cloud {
	case model.AWS:
		if payload.AWS == nil {
			return nil, fmt.Errorf("credentials: ephemeral payload missing aws block")
		}
		applyAWSStatic(bundle, *payload.AWS)
	case model.Azure:
		if payload.Azure == nil {
			return nil, fmt.Errorf("credentials: ephemeral payload missing azure block")
		}
		if err := applyAzureStatic(bundle, *payload.Azure); err != nil {
			return nil, err
		}
	case model.Google:
		if payload.GCP == nil {
			return nil, fmt.Errorf("credentials: ephemeral payload missing gcp block")
		}
		if err := applyGCPStatic(bundle, *payload.GCP); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("credentials: ephemeral payload has unsupported cloud %q", payload.Cloud)
	}
	if err := finishBundle(ctx, r, req, bundle); err != nil {
		return nil, err
	}
	return bundle, nil
}

// materializeParentLink dispatches chain link 2 (CUSTODIAN_ACCESS) by the
// tenant's cloud. AWS issues a cached AssumeRole call; the other clouds
// use the parent record's static secret directly.
func materializeParentLink(ctx context.Context, r *Resolver, req Request, link *ParentLink) (*Bundle, error) {
	bundle := newBundle()
	switch link.Cloud {
	case model.AWS:
		if link.AWSRoleARN == "" {
			return nil, fmt.Errorf("credentials: parent link missing aws role arn")
		}
		if r.AWS == nil {
			return nil, fmt.Errorf("credentials: no AWS materializer configured")
		}
		static, err := r.AWS.AssumeRole(ctx, link.AWSRoleARN, req.Job.ID)
		if err != nil {
			return nil, fmt.Errorf("credentials: assume role %s: %w", link.AWSRoleARN, err)
		}
		applyAWSStatic(bundle, static)
	case model.Azure:
		static := AzureStatic{
			ClientID:       link.AzureClientID,
			ClientSecret:   link.AzureClientSecret,
			TenantID:       link.AzureTenantID,
			CertificatePEM: link.AzureCertificatePEM,
		}
		if err := applyAzureStatic(bundle, static); err != nil {
			return nil, err
		}
	case model.Google:
		if err := applyGCPStatic(bundle, GCPStatic{ServiceAccountJSON: link.GCPServiceAccountJSON}); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("credentials: parent link has unsupported cloud %q", link.Cloud)
	}
	if err := finishBundle(ctx, r, req, bundle); err != nil {
		return nil, err
	}
	return bundle, nil
}

// materializeStatic is chain link 3 (management credentials): the same
// static-secret application as a parent link, minus AssumeRole, since
// management credentials are already the privileged identity itself.
func materializeStatic(ctx context.Context, r *Resolver, req Request, link *ParentLink) (*Bundle, error) {
	bundle := newBundle()
	switch link.Cloud {
	case model.AWS:
		applyAWSStatic(bundle, AWSStatic{RoleARN: link.AWSRoleARN})
	case model.Azure:
		static := AzureStatic{
			ClientID:       link.AzureClientID,
			ClientSecret:   link.AzureClientSecret,
			TenantID:       link.AzureTenantID,
			CertificatePEM: link.AzureCertificatePEM,
		}
		if err := applyAzureStatic(bundle, static); err != nil {
			return nil, err
		}
	case model.Google:
		if err := applyGCPStatic(bundle, GCPStatic{ServiceAccountJSON: link.GCPServiceAccountJSON}); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("credentials: management creds has unsupported cloud %q", link.Cloud)
	}
	if err := finishBundle(ctx, r, req, bundle); err != nil {
		return nil, err
	}
	return bundle, nil
}

// finishBundle runs the Kubernetes platform materialization step, which
// applies regardless of which chain link produced the underlying cloud
// credentials (an EKS platform needs its parent tenant's AWS credentials
// already in bundle.Env to call DescribeCluster).
func finishBundle(ctx context.Context, r *Resolver, req Request, bundle *Bundle) error {
	if req.Platform == nil || r.K8s == nil {
		return nil
	}
	return r.K8s.Materialize(ctx, req, bundle)
}
