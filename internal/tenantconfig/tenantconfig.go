// Package tenantconfig reads the tenant/customer configuration the scan
// pipeline consumes but never owns: which cloud and project a tenant
// targets, which regions it is activated for, which rules it or its
// customer disabled, and which Kubernetes platforms it hosts. The backing
// database belongs to the management plane; this package only reads it.
package tenantconfig

import (
	"context"
	"errors"

	"github.com/epam/syndicate-rule-engine-sub000/internal/model"
)

// ErrNotFound is returned when a tenant or platform does not exist.
var ErrNotFound = errors.New("tenantconfig: not found")

// Store resolves scan targets by name. Tenant returns the tenant with its
// configured regions and the merged tenant+customer disabled-rules set
// already folded into model.Tenant.DisabledRules.
type Store interface {
	Tenant(ctx context.Context, name string) (model.Tenant, error)
	Platform(ctx context.Context, id string) (*model.Platform, error)
}

// StaticStore is an in-memory Store for tests and single-tenant one-shot
// runs where the scan target arrives fully described via flags/env instead
// of a shared database.
type StaticStore struct {
	Tenants   map[string]model.Tenant
	Platforms map[string]model.Platform
}

func (s *StaticStore) Tenant(_ context.Context, name string) (model.Tenant, error) {
	t, ok := s.Tenants[name]
	if !ok {
		return model.Tenant{}, ErrNotFound
	}
	return t, nil
}

func (s *StaticStore) Platform(_ context.Context, id string) (*model.Platform, error) {
	p, ok := s.Platforms[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}
