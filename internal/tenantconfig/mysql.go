package tenantconfig

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "github.com/go-sql-driver/mysql"

	"github.com/epam/syndicate-rule-engine-sub000/internal/model"
)

// MySQLStore reads the management plane's configuration database. The
// schema is owned by that service; the queries here touch only the columns
// the pipeline needs and tolerate rows it doesn't understand.
type MySQLStore struct {
	db *sql.DB
}

func NewMySQLStore(dsn string) (*MySQLStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("tenantconfig: open mysql: %w", err)
	}
	return &MySQLStore{db: db}, nil
}

func (s *MySQLStore) Close() error {
	return s.db.Close()
}

func (s *MySQLStore) Tenant(ctx context.Context, name string) (model.Tenant, error) {
	var t model.Tenant
	var regionsCSV sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT name, cloud, project_id, active, customer_name, regions
		   FROM tenants WHERE name = ?`, name).
		Scan(&t.Name, &t.Cloud, &t.ProjectID, &t.Active, &t.CustomerName, &regionsCSV)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Tenant{}, ErrNotFound
	}
	if err != nil {
		return model.Tenant{}, fmt.Errorf("tenantconfig: tenant %s: %w", name, err)
	}
	t.ConfiguredRegions = splitCSV(regionsCSV.String)

	disabled, err := s.disabledRules(ctx, t.Name, t.CustomerName)
	if err != nil {
		return model.Tenant{}, err
	}
	t.DisabledRules = disabled
	return t, nil
}

// disabledRules merges the tenant-scoped and customer-scoped exclude sets
// into one deduplicated list.
func (s *MySQLStore) disabledRules(ctx context.Context, tenantName, customerName string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT rule_name FROM disabled_rules
		  WHERE (scope = 'tenant' AND scope_name = ?)
		     OR (scope = 'customer' AND scope_name = ?)`, tenantName, customerName)
	if err != nil {
		return nil, fmt.Errorf("tenantconfig: disabled rules for %s: %w", tenantName, err)
	}
	defer rows.Close()

	seen := map[string]bool{}
	var out []string
	for rows.Next() {
		var rule string
		if err := rows.Scan(&rule); err != nil {
			return nil, fmt.Errorf("tenantconfig: disabled rules for %s: %w", tenantName, err)
		}
		if rule == "" || seen[rule] {
			continue
		}
		seen[rule] = true
		out = append(out, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("tenantconfig: disabled rules for %s: %w", tenantName, err)
	}
	return out, nil
}

func (s *MySQLStore) Platform(ctx context.Context, id string) (*model.Platform, error) {
	var p model.Platform
	var secretRef sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, tenant_name, type, name, region, secret_ref
		   FROM platforms WHERE id = ?`, id).
		Scan(&p.ID, &p.TenantName, &p.Type, &p.Name, &p.Region, &secretRef)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("tenantconfig: platform %s: %w", id, err)
	}
	p.SecretRef = secretRef.String
	return &p, nil
}

func splitCSV(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
