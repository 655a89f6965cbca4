package model

// Ruleset is a published, versioned bundle of policies.
type Ruleset struct {
	Name       string
	Version    string
	LicenseKey string
	Cloud      Cloud
	RuleIDs    []string
	ContentRef string // object-store path or content-source URI
}

func (r Ruleset) Licensed() bool {
	return r.LicenseKey != ""
}

// RulesetContent is the parsed top-level shape of a fetched ruleset
// document: {"policies": [...]}.
type RulesetContent struct {
	Policies []Policy `json:"policies" yaml:"policies"`
}

// Policy is a named declarative check targeting one resource type in one
// cloud. FilterDSL is an opaque blob handed to the external scanning
// engine; this repo never interprets it.
type Policy struct {
	Name         string          `json:"name" yaml:"name"`
	ResourceType string          `json:"resource" yaml:"resource"`
	FilterDSL    interface{}     `json:"filters,omitempty" yaml:"filters,omitempty"`
	IsGlobalHint *bool           `json:"is_global,omitempty" yaml:"is_global,omitempty"`
	Description  string          `json:"description,omitempty" yaml:"description,omitempty"`
}

// GlobalHint reports the policy's own classification hint, if the document
// carried one.
func (p Policy) GlobalHint() (value bool, present bool) {
	if p.IsGlobalHint == nil {
		return false, false
	}
	return *p.IsGlobalHint, true
}
