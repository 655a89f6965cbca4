package cloudrunner

import (
	"strings"

	"github.com/epam/syndicate-rule-engine-sub000/internal/model"
)

// GoogleRunner implements CloudRunner for model.Google. Like Azure, all GCP
// policies are global — the plan is always [GLOBAL].
type GoogleRunner struct{}

func (GoogleRunner) Cloud() model.Cloud { return model.Google }
func (GoogleRunner) RegionScoped() bool { return false }
func (GoogleRunner) IsGlobal(model.Policy) bool { return true }

func (GoogleRunner) ClassifyError(raw error) model.ErrorType {
	if raw == nil {
		return model.ErrorNone
	}
	msg := strings.ToLower(raw.Error())
	switch {
	case strings.Contains(msg, "permission_denied"), strings.Contains(msg, "permissiondenied"), strings.Contains(msg, "403"):
		return model.ErrorAccess
	case strings.Contains(msg, "unauthenticated"), strings.Contains(msg, "invalid_grant"), strings.Contains(msg, "401"):
		return model.ErrorCredentials
	case strings.Contains(msg, "resource_exhausted"), strings.Contains(msg, "invalid_argument"), strings.Contains(msg, "429"):
		return model.ErrorClient
	default:
		return model.ErrorInternal
	}
}
