package cloudrunner

import (
	"strings"

	"github.com/epam/syndicate-rule-engine-sub000/internal/model"
)

// KubernetesRunner implements CloudRunner for model.Kubernetes. A Platform
// scan always uses this runner, regardless of the parent tenant's cloud.
type KubernetesRunner struct{}

func (KubernetesRunner) Cloud() model.Cloud { return model.Kubernetes }
func (KubernetesRunner) RegionScoped() bool { return false }
func (KubernetesRunner) IsGlobal(model.Policy) bool { return true }

func (KubernetesRunner) ClassifyError(raw error) model.ErrorType {
	if raw == nil {
		return model.ErrorNone
	}
	msg := strings.ToLower(raw.Error())
	switch {
	case strings.Contains(msg, "forbidden"):
		return model.ErrorAccess
	case strings.Contains(msg, "unauthorized"), strings.Contains(msg, "token has expired"), strings.Contains(msg, "x509"):
		return model.ErrorCredentials
	case strings.Contains(msg, "toomanyrequests"), strings.Contains(msg, "invalid"):
		return model.ErrorClient
	default:
		return model.ErrorInternal
	}
}
