package credentials

import (
	"context"
	"encoding/json"
	"fmt"

	"golang.org/x/oauth2/google"
)

// GCPStatic is a service-account identity.
type GCPStatic struct {
	ServiceAccountJSON []byte `json:"service_account_json"`
}

// applyGCPStatic writes the service-account JSON to a temp file and
// points GOOGLE_APPLICATION_CREDENTIALS at it.
func applyGCPStatic(bundle *Bundle, static GCPStatic) error {
	if len(static.ServiceAccountJSON) == 0 {
		return fmt.Errorf("credentials: empty gcp service account json")
	}
	path, err := bundle.writeTempFile("gcp-sa-*.json", static.ServiceAccountJSON)
	if err != nil {
		return err
	}
	bundle.Env["GOOGLE_APPLICATION_CREDENTIALS"] = path
	return nil
}

// gcpProjectIDFromServiceAccount parses project_id out of a service
// account JSON document via golang.org/x/oauth2/google, used by the
// ambient chain link to principal-match the host's own service account
// against the tenant's project id.
func gcpProjectIDFromServiceAccount(ctx context.Context, raw []byte) (string, error) {
	creds, err := google.CredentialsFromJSON(ctx, raw)
	if err != nil {
		return "", fmt.Errorf("gcp: parse service account json: %w", err)
	}
	if creds.ProjectID != "" {
		return creds.ProjectID, nil
	}
	var minimal struct {
		ProjectID string `json:"project_id"`
	}
	if err := json.Unmarshal(raw, &minimal); err != nil {
		return "", fmt.Errorf("gcp: parse project_id: %w", err)
	}
	return minimal.ProjectID, nil
}
