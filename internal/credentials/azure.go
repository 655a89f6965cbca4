package credentials

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// AzureStatic is a service principal identity: either client-secret or
// certificate-based, never both.
type AzureStatic struct {
	ClientID       string `json:"client_id"`
	ClientSecret   string `json:"client_secret,omitempty"`
	TenantID       string `json:"tenant_id"`
	CertificatePEM []byte `json:"certificate_pem,omitempty"`
}

// applyAzureStatic writes the client id/tenant id env vars and either the
// client secret env var or, for certificate-based credentials, a temp PEM
// path that the bundle removes when the job ends.
func applyAzureStatic(bundle *Bundle, static AzureStatic) error {
	bundle.Env["AZURE_CLIENT_ID"] = static.ClientID
	bundle.Env["AZURE_TENANT_ID"] = static.TenantID
	if len(static.CertificatePEM) > 0 {
		path, err := bundle.writeTempFile("azure-cert-*.pem", static.CertificatePEM)
		if err != nil {
			return err
		}
		bundle.Env["AZURE_CLIENT_CERTIFICATE_PATH"] = path
		return nil
	}
	bundle.Env["AZURE_CLIENT_SECRET"] = static.ClientSecret
	return nil
}

// AzureMaterializer mints an AAD access token from a resolved service
// principal identity's client-credentials grant, used for the AKS bearer
// token minting path. It speaks to the OAuth2 v2.0 token endpoint
// directly; a bare token exchange doesn't warrant an SDK client.
type AzureMaterializer interface {
	AccessToken(ctx context.Context, static AzureStatic, scope string) (string, error)
}

// HTTPAzureMaterializer is the production AzureMaterializer.
type HTTPAzureMaterializer struct {
	HTTPClient *http.Client
}

func NewHTTPAzureMaterializer() *HTTPAzureMaterializer {
	return &HTTPAzureMaterializer{HTTPClient: &http.Client{Timeout: 30 * time.Second}}
}

type azureTokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
	Error       string `json:"error"`
	ErrorDesc   string `json:"error_description"`
}

func (m *HTTPAzureMaterializer) AccessToken(ctx context.Context, static AzureStatic, scope string) (string, error) {
	if static.ClientSecret == "" {
		return "", fmt.Errorf("azure: client-credentials token exchange requires a client secret, not a certificate")
	}
	endpoint := fmt.Sprintf("https://login.microsoftonline.com/%s/oauth2/v2.0/token", static.TenantID)
	form := url.Values{
		"client_id":     {static.ClientID},
		"client_secret": {static.ClientSecret},
		"scope":         {scope},
		"grant_type":    {"client_credentials"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewBufferString(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("azure token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := m.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("azure token exchange: %w", err)
	}
	defer resp.Body.Close()

	var parsed azureTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("azure token response: %w", err)
	}
	if parsed.Error != "" {
		return "", fmt.Errorf("azure token exchange denied: %s: %s", parsed.Error, parsed.ErrorDesc)
	}
	if parsed.AccessToken == "" {
		return "", fmt.Errorf("azure token exchange: empty access token")
	}
	return parsed.AccessToken, nil
}
