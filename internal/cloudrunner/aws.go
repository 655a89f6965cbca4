package cloudrunner

import (
	"errors"
	"strings"

	awshttp "github.com/aws/smithy-go/transport/http"
	"github.com/epam/syndicate-rule-engine-sub000/internal/model"
)

// multiRegionalResourceTypes are built-in metadata for resource types whose
// provider API returns the same result regardless of region (IAM, Route53,
// CloudFront, WAF classic, etc.).
var multiRegionalResourceTypes = map[string]bool{
	"aws.iam":                 true,
	"aws.iam-user":            true,
	"aws.iam-role":            true,
	"aws.iam-policy":          true,
	"aws.cloudfront":          true,
	"aws.route53":             true,
	"aws.route53-hosted-zone": true,
	"aws.waf":                 true,
	"aws.waf-classic":         true,
	"aws.organizations":       true,
	"aws.account":             true,
}

// AWSRunner implements CloudRunner for model.AWS.
type AWSRunner struct{}

func (AWSRunner) Cloud() model.Cloud { return model.AWS }
func (AWSRunner) RegionScoped() bool { return true }

func (AWSRunner) IsGlobal(p model.Policy) bool {
	if v, present := p.GlobalHint(); present {
		return v
	}
	if multiRegionalResourceTypes[strings.ToLower(p.ResourceType)] {
		return true
	}
	return awsResourceService(p.ResourceType) == "s3"
}

// awsResourceService extracts the service component from a resource type
// like "aws.s3" or "aws.s3-bucket" -> "s3": an optional "aws." prefix is
// dropped and the rest is cut at the first '-' or '.', so a bare "s3" also
// yields "s3".
func awsResourceService(resourceType string) string {
	rt := strings.ToLower(strings.TrimSpace(resourceType))
	rt = strings.TrimPrefix(rt, "aws.")
	if idx := strings.IndexAny(rt, "-."); idx >= 0 {
		rt = rt[:idx]
	}
	return rt
}

func (AWSRunner) ClassifyError(raw error) model.ErrorType {
	if raw == nil {
		return model.ErrorNone
	}

	var respErr *awshttp.ResponseError
	if errors.As(raw, &respErr) {
		switch respErr.HTTPStatusCode() {
		case 403:
			return model.ErrorAccess
		case 401:
			return model.ErrorCredentials
		case 400, 404, 409, 429:
			return model.ErrorClient
		}
	}

	msg := strings.ToLower(raw.Error())
	switch {
	case strings.Contains(msg, "accessdenied"), strings.Contains(msg, "unauthorized"), strings.Contains(msg, "is not authorized"):
		return model.ErrorAccess
	case strings.Contains(msg, "expiredtoken"), strings.Contains(msg, "invalidclienttokenid"), strings.Contains(msg, "could not be found") && strings.Contains(msg, "credentials"):
		return model.ErrorCredentials
	case strings.Contains(msg, "throttl"), strings.Contains(msg, "invalidparameter"), strings.Contains(msg, "validationerror"):
		return model.ErrorClient
	default:
		return model.ErrorInternal
	}
}
