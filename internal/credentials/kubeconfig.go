package credentials

import (
	"context"
	"fmt"
	"os"

	"golang.org/x/oauth2/google"
	"gopkg.in/yaml.v3"
)

// kubeconfigCluster mirrors the subset of the standard kubeconfig schema
// this package needs to synthesize; the parts it never writes (exec
// plugins, proxy-url, etc.) are intentionally absent.
type kubeconfigCluster struct {
	Name    string `yaml:"name"`
	Cluster struct {
		Server                   string `yaml:"server"`
		CertificateAuthorityData string `yaml:"certificate-authority-data,omitempty"`
	} `yaml:"cluster"`
}

type kubeconfigUser struct {
	Name string `yaml:"name"`
	User struct {
		Token string `yaml:"token"`
	} `yaml:"user"`
}

type kubeconfigContext struct {
	Name    string `yaml:"name"`
	Context struct {
		Cluster string `yaml:"cluster"`
		User    string `yaml:"user"`
	} `yaml:"context"`
}

type kubeconfig struct {
	APIVersion     string              `yaml:"apiVersion"`
	Kind           string              `yaml:"kind"`
	Clusters       []kubeconfigCluster `yaml:"clusters"`
	Users          []kubeconfigUser    `yaml:"users"`
	Contexts       []kubeconfigContext `yaml:"contexts"`
	CurrentContext string              `yaml:"current-context"`
}

// writeSyntheticKubeconfig builds a single-cluster/single-user kubeconfig
// referencing a bearer token and writes it to a job-scoped temp file.
func writeSyntheticKubeconfig(bundle *Bundle, name, endpoint, caData, token string) error {
	cfg := kubeconfig{
		APIVersion:     "v1",
		Kind:           "Config",
		CurrentContext: name,
	}
	cluster := kubeconfigCluster{Name: name}
	cluster.Cluster.Server = endpoint
	cluster.Cluster.CertificateAuthorityData = caData
	cfg.Clusters = []kubeconfigCluster{cluster}

	user := kubeconfigUser{Name: name}
	user.User.Token = token
	cfg.Users = []kubeconfigUser{user}

	ctxEntry := kubeconfigContext{Name: name}
	ctxEntry.Context.Cluster = name
	ctxEntry.Context.User = name
	cfg.Contexts = []kubeconfigContext{ctxEntry}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal synthetic kubeconfig: %w", err)
	}
	path, err := bundle.writeTempFile("kubeconfig-*.yaml", data)
	if err != nil {
		return err
	}
	bundle.Env["KUBECONFIG"] = path
	return nil
}

// mergeBearerToken parses an existing kubeconfig and adds a new user
// (named "<first-cluster>-bearer") and context referencing the
// kubeconfig's first cluster, then makes that context current. This is
// the merge performed when both a staged bearer token and a staged
// kubeconfig exist for the same platform.
func mergeBearerToken(raw []byte, token string) ([]byte, error) {
	var cfg kubeconfig
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse kubeconfig: %w", err)
	}
	if len(cfg.Clusters) == 0 {
		return nil, fmt.Errorf("kubeconfig has no clusters to merge a bearer token into")
	}
	clusterName := cfg.Clusters[0].Name

	userName := clusterName + "-bearer"
	user := kubeconfigUser{Name: userName}
	user.User.Token = token
	cfg.Users = append(cfg.Users, user)

	contextName := clusterName + "-bearer-context"
	ctxEntry := kubeconfigContext{Name: contextName}
	ctxEntry.Context.Cluster = clusterName
	ctxEntry.Context.User = userName
	cfg.Contexts = append(cfg.Contexts, ctxEntry)
	cfg.CurrentContext = contextName

	return yaml.Marshal(cfg)
}

// oauth2TokenFromServiceAccountFile mints an access token scoped to the
// cloud-platform API from a service account JSON file, used for GKE
// bearer-token minting.
func oauth2TokenFromServiceAccountFile(ctx context.Context, path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read service account file: %w", err)
	}
	creds, err := google.CredentialsFromJSON(ctx, raw, "https://www.googleapis.com/auth/cloud-platform")
	if err != nil {
		return "", fmt.Errorf("parse service account credentials: %w", err)
	}
	tok, err := creds.TokenSource.Token()
	if err != nil {
		return "", fmt.Errorf("mint access token: %w", err)
	}
	return tok.AccessToken, nil
}
