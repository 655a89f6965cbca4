package credentials

import (
	"context"
	"encoding/base64"
	"fmt"

	container "cloud.google.com/go/container/apiv1"
	"cloud.google.com/go/container/apiv1/containerpb"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/eks"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	smithyhttp "github.com/aws/smithy-go/transport/http"

	"github.com/epam/syndicate-rule-engine-sub000/internal/model"
	"github.com/epam/syndicate-rule-engine-sub000/internal/secretstore"
)

// KubernetesMaterializer fills in the Kubernetes-specific half of a
// Bundle for a Platform scan: either fetching an already-staged kubeconfig
// or minting a short-lived bearer token for EKS/GKE/AKS.
type KubernetesMaterializer interface {
	Materialize(ctx context.Context, req Request, bundle *Bundle) error
}

// ClusterMaterializer is the production KubernetesMaterializer.
type ClusterMaterializer struct {
	Secrets secretstore.SecretStore
	EKS     *eks.Client
	GKE     *container.ClusterManagerClient
	Azure   AzureMaterializer
}

func (m *ClusterMaterializer) Materialize(ctx context.Context, req Request, bundle *Bundle) error {
	platform := req.Platform
	if platform == nil {
		return nil
	}

	if platform.SecretRef != "" {
		return m.stagedKubeconfig(ctx, platform, bundle)
	}

	var token string
	var endpoint, caData string
	var err error

	switch platform.Type {
	case model.PlatformEKS:
		token, endpoint, caData, err = m.mintEKSToken(ctx, platform, bundle)
	case model.PlatformGKE:
		token, endpoint, caData, err = m.mintGKEToken(ctx, platform, bundle)
	case model.PlatformAKS:
		token, endpoint, caData, err = m.mintAKSToken(ctx, platform, bundle)
	default:
		return fmt.Errorf("credentials: platform %s has no kubeconfig and no minting path for type %s", platform.ID, platform.Type)
	}
	if err != nil {
		return fmt.Errorf("credentials: mint %s token: %w", platform.Type, err)
	}

	return writeSyntheticKubeconfig(bundle, platform.Name, endpoint, caData, token)
}

// stagedKubeconfig fetches a pre-staged kubeconfig from the secret store
// by Platform.SecretRef, merging in a bearer token if one is also staged.
func (m *ClusterMaterializer) stagedKubeconfig(ctx context.Context, platform *model.Platform, bundle *Bundle) error {
	if m.Secrets == nil {
		return fmt.Errorf("credentials: no secret store configured for staged kubeconfig")
	}
	raw, err := m.Secrets.Get(ctx, platform.SecretRef)
	if err != nil {
		return fmt.Errorf("credentials: fetch staged kubeconfig %s: %w", platform.SecretRef, err)
	}

	tokenKey := platform.SecretRef + "-bearer-token"
	if tokenRaw, err := m.Secrets.Get(ctx, tokenKey); err == nil {
		merged, mergeErr := mergeBearerToken(raw, string(tokenRaw))
		if mergeErr != nil {
			return fmt.Errorf("credentials: merge bearer token into kubeconfig: %w", mergeErr)
		}
		raw = merged
	}

	path, err := bundle.writeTempFile("kubeconfig-*.yaml", raw)
	if err != nil {
		return err
	}
	bundle.Env["KUBECONFIG"] = path
	return nil
}

// mintEKSToken implements the documented aws-iam-authenticator protocol: a
// presigned STS GetCallerIdentity URL, tagged with the cluster name via
// the x-k8s-aws-id header, base64url-encoded behind a "k8s-aws-v1." prefix.
func (m *ClusterMaterializer) mintEKSToken(ctx context.Context, platform *model.Platform, bundle *Bundle) (token, endpoint, caData string, err error) {
	if m.EKS == nil {
		return "", "", "", fmt.Errorf("no EKS client configured")
	}
	out, err := m.EKS.DescribeCluster(ctx, &eks.DescribeClusterInput{Name: aws.String(platform.Name)})
	if err != nil {
		return "", "", "", fmt.Errorf("describe cluster: %w", err)
	}
	endpoint = aws.ToString(out.Cluster.Endpoint)
	if out.Cluster.CertificateAuthority != nil {
		caData = aws.ToString(out.Cluster.CertificateAuthority.Data)
	}

	cfg, err := config.LoadDefaultConfig(ctx, config.WithCredentialsProvider(staticAWSCredentialsProvider(AWSStatic{
		AccessKeyID:     bundle.Env["AWS_ACCESS_KEY_ID"],
		SecretAccessKey: bundle.Env["AWS_SECRET_ACCESS_KEY"],
		SessionToken:    bundle.Env["AWS_SESSION_TOKEN"],
	})))
	if err != nil {
		return "", "", "", fmt.Errorf("load aws config for presign: %w", err)
	}
	stsClient := sts.NewFromConfig(cfg)
	presignClient := sts.NewPresignClient(stsClient)

	presigned, err := presignClient.PresignGetCallerIdentity(ctx, &sts.GetCallerIdentityInput{}, func(o *sts.PresignOptions) {
		o.ClientOptions = append(o.ClientOptions, sts.WithAPIOptions(
			smithyhttp.SetHeaderValue("x-k8s-aws-id", platform.Name),
		))
	})
	if err != nil {
		return "", "", "", fmt.Errorf("presign get caller identity: %w", err)
	}
	token = "k8s-aws-v1." + base64.RawURLEncoding.EncodeToString([]byte(presigned.URL))
	return token, endpoint, caData, nil
}

// mintGKEToken fetches cluster connection info and mints a GCP OAuth2
// access token from the service-account file named by the bundle's
// GOOGLE_APPLICATION_CREDENTIALS, used as the bearer credential; GKE
// authenticates via a plain OAuth2 token, no separate signing step.
func (m *ClusterMaterializer) mintGKEToken(ctx context.Context, platform *model.Platform, bundle *Bundle) (token, endpoint, caData string, err error) {
	if m.GKE == nil {
		return "", "", "", fmt.Errorf("no GKE client configured")
	}
	name := fmt.Sprintf("projects/%s/locations/%s/clusters/%s", platform.TenantName, platform.Region, platform.Name)
	cluster, err := m.GKE.GetCluster(ctx, &containerpb.GetClusterRequest{Name: name})
	if err != nil {
		return "", "", "", fmt.Errorf("get cluster: %w", err)
	}
	endpoint = cluster.GetEndpoint()
	if cluster.GetMasterAuth() != nil {
		caData = cluster.GetMasterAuth().GetClusterCaCertificate()
	}

	accessToken, err := gcpAccessToken(ctx, bundle.Env["GOOGLE_APPLICATION_CREDENTIALS"])
	if err != nil {
		return "", "", "", err
	}
	return accessToken, endpoint, caData, nil
}

// mintAKSToken uses the resolved Azure service principal's
// client-credentials exchange, scoped to the AKS server application id,
// as the bearer token.
func (m *ClusterMaterializer) mintAKSToken(ctx context.Context, platform *model.Platform, bundle *Bundle) (token, endpoint, caData string, err error) {
	if m.Azure == nil {
		return "", "", "", fmt.Errorf("no Azure materializer configured")
	}
	static := AzureStatic{
		ClientID:     bundle.Env["AZURE_CLIENT_ID"],
		ClientSecret: bundle.Env["AZURE_CLIENT_SECRET"],
		TenantID:     bundle.Env["AZURE_TENANT_ID"],
	}
	const aksServerAppScope = "6dae42f8-4368-4678-94ff-3960e28e3630/.default"
	token, err = m.Azure.AccessToken(ctx, static, aksServerAppScope)
	if err != nil {
		return "", "", "", fmt.Errorf("aks token exchange: %w", err)
	}
	// AKS API server endpoint/CA are not fetched here: unlike EKS/GKE,
	// the cluster's FQDN is a stable, predictable value the caller
	// already has from Platform.Name, and the CA is distributed via the
	// cluster's own kubeconfig publication, outside this resolver's scope.
	endpoint = fmt.Sprintf("https://%s.hcp.%s.azmk8s.io", platform.Name, platform.Region)
	return token, endpoint, "", nil
}

func gcpAccessToken(ctx context.Context, credentialsPath string) (string, error) {
	if credentialsPath == "" {
		return "", fmt.Errorf("no GOOGLE_APPLICATION_CREDENTIALS set")
	}
	tok, err := oauth2TokenFromServiceAccountFile(ctx, credentialsPath)
	if err != nil {
		return "", fmt.Errorf("gcp access token: %w", err)
	}
	return tok, nil
}
