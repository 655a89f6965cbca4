package tenantconfig

import (
	"context"
	"errors"
	"testing"

	"github.com/epam/syndicate-rule-engine-sub000/internal/model"
)

func TestStaticStoreTenantLookup(t *testing.T) {
	store := &StaticStore{
		Tenants: map[string]model.Tenant{
			"acme-aws": {Name: "acme-aws", Cloud: model.AWS, ProjectID: "123456789012"},
		},
	}

	got, err := store.Tenant(context.Background(), "acme-aws")
	if err != nil {
		t.Fatalf("Tenant: %v", err)
	}
	if got.ProjectID != "123456789012" {
		t.Fatalf("tenant = %+v", got)
	}

	if _, err := store.Tenant(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestStaticStorePlatformLookup(t *testing.T) {
	store := &StaticStore{
		Platforms: map[string]model.Platform{
			"p-1": {ID: "p-1", TenantName: "acme-aws", Type: model.PlatformEKS, Region: "eu-west-1"},
		},
	}

	got, err := store.Platform(context.Background(), "p-1")
	if err != nil {
		t.Fatalf("Platform: %v", err)
	}
	if got.Type != model.PlatformEKS {
		t.Fatalf("platform = %+v", got)
	}

	if _, err := store.Platform(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestSplitCSV(t *testing.T) {
	cases := []struct {
		in   string
		want int
	}{
		{"", 0},
		{"  ", 0},
		{"eu-west-1", 1},
		{"eu-west-1,eu-central-1", 2},
		{"eu-west-1, ,eu-central-1,", 2},
	}
	for _, c := range cases {
		if got := splitCSV(c.in); len(got) != c.want {
			t.Fatalf("splitCSV(%q) = %v, want %d entries", c.in, got, c.want)
		}
	}
}
