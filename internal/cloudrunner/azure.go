package cloudrunner

import (
	"strings"

	"github.com/epam/syndicate-rule-engine-sub000/internal/model"
)

// AzureRunner implements CloudRunner for model.Azure. All non-AWS policies
// are global: the plan never enumerates regions, it is
// always [GLOBAL], and the findings' real Azure region is resolved from
// each resource's location field afterwards (see internal/shardstore's
// pseudo-region handling).
type AzureRunner struct{}

func (AzureRunner) Cloud() model.Cloud { return model.Azure }
func (AzureRunner) RegionScoped() bool { return false }
func (AzureRunner) IsGlobal(model.Policy) bool { return true }

func (AzureRunner) ClassifyError(raw error) model.ErrorType {
	if raw == nil {
		return model.ErrorNone
	}
	msg := strings.ToLower(raw.Error())
	switch {
	case strings.Contains(msg, "authorizationfailed"), strings.Contains(msg, "forbidden"):
		return model.ErrorAccess
	case strings.Contains(msg, "invalidauthenticationtoken"), strings.Contains(msg, "expired"):
		return model.ErrorCredentials
	case strings.Contains(msg, "badrequest"), strings.Contains(msg, "toomanyrequests"):
		return model.ErrorClient
	default:
		return model.ErrorInternal
	}
}
