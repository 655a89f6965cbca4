package credentials

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awssdkcreds "github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

// assumeRoleRefreshMargin is the before-expiry window that forces a fresh
// AssumeRole call rather than serving a cached one.
const assumeRoleRefreshMargin = 15 * time.Minute

// AWSStatic is the materialized form of a set of AWS credentials: either
// session credentials (access key/secret/token) or, for management creds
// supplied only as a role ARN, a bare ARN with no session material yet.
type AWSStatic struct {
	AccessKeyID     string `json:"access_key_id,omitempty"`
	SecretAccessKey string `json:"secret_access_key,omitempty"`
	SessionToken    string `json:"session_token,omitempty"`
	Region          string `json:"region,omitempty"`
	RoleARN         string `json:"role_arn,omitempty"`
}

// applyAWSStatic writes the standard AWS SDK environment variables into
// bundle. A zero Region is left unset so the worker falls back to
// AWS_DEFAULT_REGION/the SDK's own default chain.
func applyAWSStatic(bundle *Bundle, static AWSStatic) {
	if static.AccessKeyID != "" {
		bundle.Env["AWS_ACCESS_KEY_ID"] = static.AccessKeyID
	}
	if static.SecretAccessKey != "" {
		bundle.Env["AWS_SECRET_ACCESS_KEY"] = static.SecretAccessKey
	}
	if static.SessionToken != "" {
		bundle.Env["AWS_SESSION_TOKEN"] = static.SessionToken
	}
	if static.Region != "" {
		bundle.Env["AWS_DEFAULT_REGION"] = static.Region
	}
	if static.RoleARN != "" {
		bundle.Env["AWS_ROLE_ARN"] = static.RoleARN
	}
}

// AWSMaterializer issues and caches AssumeRole credentials for the
// tenant-linked parent chain link.
type AWSMaterializer interface {
	AssumeRole(ctx context.Context, roleARN, sessionNameSeed string) (AWSStatic, error)
}

type cachedAssumeRole struct {
	static     AWSStatic
	expiration time.Time
}

// STSMaterializer is the production AWSMaterializer, backed by
// aws-sdk-go-v2/service/sts. One instance is shared across jobs so the
// 15-minute refresh cache is effective across the process lifetime.
type STSMaterializer struct {
	Client *sts.Client

	mu    sync.Mutex
	cache map[string]cachedAssumeRole
}

func NewSTSMaterializer(client *sts.Client) *STSMaterializer {
	return &STSMaterializer{Client: client, cache: map[string]cachedAssumeRole{}}
}

func (m *STSMaterializer) AssumeRole(ctx context.Context, roleARN, sessionNameSeed string) (AWSStatic, error) {
	m.mu.Lock()
	if cached, ok := m.cache[roleARN]; ok && time.Until(cached.expiration) > assumeRoleRefreshMargin {
		m.mu.Unlock()
		return cached.static, nil
	}
	m.mu.Unlock()

	out, err := m.Client.AssumeRole(ctx, &sts.AssumeRoleInput{
		RoleArn:         aws.String(roleARN),
		RoleSessionName: aws.String(sessionName(sessionNameSeed)),
	})
	if err != nil {
		return AWSStatic{}, fmt.Errorf("sts assume role: %w", err)
	}

	static := AWSStatic{
		AccessKeyID:     aws.ToString(out.Credentials.AccessKeyId),
		SecretAccessKey: aws.ToString(out.Credentials.SecretAccessKey),
		SessionToken:    aws.ToString(out.Credentials.SessionToken),
	}

	m.mu.Lock()
	m.cache[roleARN] = cachedAssumeRole{static: static, expiration: *out.Credentials.Expiration}
	m.mu.Unlock()

	return static, nil
}

// sessionName derives an IAM-safe role session name from a job id, since
// job ids may contain characters AssumeRole's session name charset rejects.
func sessionName(seed string) string {
	const maxLen = 64
	name := "scan-" + seed
	if len(name) > maxLen {
		name = name[:maxLen]
	}
	return name
}

// STSAmbientPrincipal resolves the host's ambient AWS identity for chain
// link 4 via GetCallerIdentity.
type STSAmbientPrincipal struct {
	Client *sts.Client
}

func (p *STSAmbientPrincipal) accountID(ctx context.Context) (string, error) {
	out, err := p.Client.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return "", fmt.Errorf("sts get caller identity: %w", err)
	}
	return aws.ToString(out.Account), nil
}

// staticAWSCredentialsProvider adapts an AWSStatic into the SDK's
// credentials.StaticCredentialsProvider, used by the EKS/STS presign calls
// the Kubernetes materializer makes against the tenant's own AWS identity.
func staticAWSCredentialsProvider(static AWSStatic) aws.CredentialsProvider {
	return awssdkcreds.NewStaticCredentialsProvider(static.AccessKeyID, static.SecretAccessKey, static.SessionToken)
}
