package credentials

import (
	"os"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestWriteSyntheticKubeconfig(t *testing.T) {
	bundle := newBundle()
	defer bundle.Close()

	if err := writeSyntheticKubeconfig(bundle, "my-cluster", "https://endpoint", "base64ca", "bearer-token"); err != nil {
		t.Fatalf("writeSyntheticKubeconfig: %v", err)
	}
	path := bundle.Env["KUBECONFIG"]
	if path == "" {
		t.Fatal("expected KUBECONFIG to be set")
	}

	var cfg kubeconfig
	raw := mustReadFile(t, path)
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		t.Fatalf("parse generated kubeconfig: %v", err)
	}
	if len(cfg.Clusters) != 1 || cfg.Clusters[0].Cluster.Server != "https://endpoint" {
		t.Fatalf("clusters = %+v", cfg.Clusters)
	}
	if cfg.CurrentContext != "my-cluster" {
		t.Fatalf("current-context = %q", cfg.CurrentContext)
	}
}

func TestMergeBearerTokenAddsContextWithoutLosingCluster(t *testing.T) {
	base := []byte(`
apiVersion: v1
kind: Config
clusters:
  - name: staged-cluster
    cluster:
      server: https://staged-endpoint
contexts:
  - name: staged-context
    context:
      cluster: staged-cluster
      user: staged-user
users:
  - name: staged-user
    user:
      token: old-token
current-context: staged-context
`)
	merged, err := mergeBearerToken(base, "new-bearer-token")
	if err != nil {
		t.Fatalf("mergeBearerToken: %v", err)
	}

	var cfg kubeconfig
	if err := yaml.Unmarshal(merged, &cfg); err != nil {
		t.Fatalf("parse merged kubeconfig: %v", err)
	}
	if len(cfg.Clusters) != 1 || cfg.Clusters[0].Name != "staged-cluster" {
		t.Fatalf("expected the original cluster to survive the merge, got %+v", cfg.Clusters)
	}
	if cfg.CurrentContext != "staged-cluster-bearer-context" {
		t.Fatalf("current-context = %q, want the merged bearer context", cfg.CurrentContext)
	}
	found := false
	for _, u := range cfg.Users {
		if u.User.Token == "new-bearer-token" {
			found = true
		}
	}
	if !found {
		t.Fatal("expected the new bearer token to appear among users")
	}
	if !strings.Contains(cfg.Contexts[len(cfg.Contexts)-1].Context.Cluster, "staged-cluster") {
		t.Fatalf("merged context = %+v", cfg.Contexts[len(cfg.Contexts)-1])
	}
}

func mustReadFile(t *testing.T, path string) []byte {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return data
}
