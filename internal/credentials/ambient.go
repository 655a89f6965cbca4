package credentials

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/epam/syndicate-rule-engine-sub000/internal/model"
)

// HostAmbientPrincipal resolves the chain's ambient link: the host's own
// instance-profile/subscription identity, used only if it matches the
// tenant's project id.
type HostAmbientPrincipal struct {
	AWS *STSAmbientPrincipal

	// AzureSubscriptionID and GCPProjectID come straight from the host's
	// environment: the ambient identity for clouds where minting a full
	// client on demand isn't needed just to report an id.
	AzureSubscriptionID string
	GCPProjectID        string

	// GCPServiceAccountPath, if set, is parsed to extract the ambient
	// project id instead of trusting GCPProjectID directly — this is the
	// "parsed and principal-matched using golang.org/x/oauth2/google" path.
	GCPServiceAccountPath string
}

// NewHostAmbientPrincipal builds a HostAmbientPrincipal from the host's
// environment.
func NewHostAmbientPrincipal(aws *STSAmbientPrincipal, gcpServiceAccountPath string) *HostAmbientPrincipal {
	return &HostAmbientPrincipal{
		AWS:                   aws,
		AzureSubscriptionID:   resolveAmbientAzureSubscriptionID(),
		GCPProjectID:          resolveAmbientGCPProjectID(),
		GCPServiceAccountPath: gcpServiceAccountPath,
	}
}

func (h *HostAmbientPrincipal) PrincipalID(ctx context.Context, cloud model.Cloud) (string, error) {
	switch cloud {
	case model.AWS:
		if h.AWS == nil {
			return "", nil
		}
		return h.AWS.accountID(ctx)
	case model.Azure:
		return h.AzureSubscriptionID, nil
	case model.Google:
		if h.GCPServiceAccountPath != "" {
			raw, err := os.ReadFile(h.GCPServiceAccountPath)
			if err != nil {
				return "", fmt.Errorf("ambient: read gcp service account: %w", err)
			}
			return gcpProjectIDFromServiceAccount(ctx, raw)
		}
		return h.GCPProjectID, nil
	default:
		return "", nil
	}
}

// resolveAmbientGCPProjectID checks the GCP project env vars in priority
// order, so HostAmbientPrincipal can be built without a viper dependency
// on config already bound.
func resolveAmbientGCPProjectID() string {
	for _, key := range []string{"GCP_PROJECT", "GOOGLE_CLOUD_PROJECT", "GCLOUD_PROJECT"} {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			return v
		}
	}
	return ""
}

// resolveAmbientAzureSubscriptionID checks the subscription env vars in
// priority order.
func resolveAmbientAzureSubscriptionID() string {
	for _, key := range []string{"AZURE_SUBSCRIPTION_ID", "AZ_SUBSCRIPTION_ID"} {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			return v
		}
	}
	return ""
}
