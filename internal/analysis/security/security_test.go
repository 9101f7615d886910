package security

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koustreak/pgscope/internal/analysis/model"
	"github.com/koustreak/pgscope/internal/database/databasetest"
	"github.com/koustreak/pgscope/internal/errs"
	"github.com/koustreak/pgscope/internal/logger"
)

func testLogger() *logger.Logger {
	return logger.New(&logger.Config{Level: "error", Format: "json", Output: io.Discard})
}

func table(name string, rows int64, rls bool) model.TableProfile {
	return model.TableProfile{Schema: "public", Name: name, RowCount: rows, HasRowLevelSecurity: rls}
}

func TestDeriveVulnerabilities_RLSRules(t *testing.T) {
	tables := []model.TableProfile{
		table("customers", 200, false),  // data, no RLS → critical
		table("orders", 500, true),      // RLS + policy → fine
		table("invoices", 50, true),     // RLS, data, no policy → high
		table("temp_scratch", 0, false), // empty, no RLS → nothing
	}
	policies := []model.AccessPolicy{
		{Name: "orders_tenant", Table: "orders", Command: "ALL", UsingExpr: "(tenant_id = current_tenant())"},
	}

	vulns := deriveVulnerabilities(tables, policies, nil, nil)

	kinds := make(map[string][]model.VulnKind)
	for _, v := range vulns {
		kinds[v.Table] = append(kinds[v.Table], v.Kind)
	}

	assert.Equal(t, []model.VulnKind{model.VulnNoRowSecurity}, kinds["customers"])
	assert.Equal(t, []model.VulnKind{model.VulnRLSNoPolicy}, kinds["invoices"])
	assert.Empty(t, kinds["orders"])
	assert.Empty(t, kinds["temp_scratch"], "empty tables without RLS are not findings")

	// An RLS-without-policy table gets exactly one high finding and never
	// a no-row-security finding.
	for _, v := range vulns {
		if v.Table == "invoices" {
			assert.Equal(t, model.SeverityHigh, v.Severity)
			assert.NotEqual(t, model.VulnNoRowSecurity, v.Kind)
		}
		if v.Table == "customers" {
			assert.Equal(t, model.SeverityCritical, v.Severity)
		}
	}
}

func TestDeriveVulnerabilities_PermissivePolicy(t *testing.T) {
	policies := []model.AccessPolicy{
		{Name: "open_door", Table: "orders", UsingExpr: "true"},
		{Name: "open_door_parens", Table: "orders", UsingExpr: "(true)"},
		{Name: "real_guard", Table: "orders", UsingExpr: "(owner_id = auth_uid())"},
	}

	vulns := deriveVulnerabilities(nil, policies, nil, nil)

	require.Len(t, vulns, 2)
	for _, v := range vulns {
		assert.Equal(t, model.VulnPermissivePolicy, v.Kind)
		assert.Equal(t, model.SeverityHigh, v.Severity)
	}
}

func TestDeriveVulnerabilities_PublicGrantsAndSuperusers(t *testing.T) {
	grants := []model.GrantInfo{
		{Grantee: "PUBLIC", Table: "orders", Privilege: "SELECT", IsPublic: true},
		{Grantee: "app_rw", Table: "orders", Privilege: "SELECT"},
	}
	roles := []model.RoleInfo{
		{Name: "root_a", IsSuperuser: true, CanLogin: true},
		{Name: "root_b", IsSuperuser: true, CanLogin: true},
		{Name: "root_c", IsSuperuser: true, CanLogin: true},
		{Name: "app", CanLogin: true},
	}

	vulns := deriveVulnerabilities(nil, nil, roles, grants)

	require.Len(t, vulns, 2)
	assert.Equal(t, model.VulnPublicGrant, vulns[0].Kind)
	assert.Equal(t, model.SeverityMedium, vulns[0].Severity)
	assert.Equal(t, model.VulnExcessSuperusers, vulns[1].Kind)
}

func TestDeriveVulnerabilities_TwoSuperusersIsFine(t *testing.T) {
	roles := []model.RoleInfo{
		{Name: "root_a", IsSuperuser: true, CanLogin: true},
		{Name: "root_b", IsSuperuser: true, CanLogin: true},
		{Name: "replicator", IsSuperuser: true, CanLogin: false},
	}

	vulns := deriveVulnerabilities(nil, nil, roles, nil)
	assert.Empty(t, vulns)
}

func TestInspect_SortedBySeverityAndSummarized(t *testing.T) {
	db := databasetest.New()
	db.Register("pg_policy", []string{"polname", "table_name", "polcmd", "polpermissive", "roles", "using_expr", "check_expr"},
		[][]any{
			{"wide_open", "orders", "r", true, []string{"authenticated"}, "true", ""},
		})
	db.Register("pg_auth_members", []string{"rolname", "rolsuper", "rolcanlogin", "rolcreaterole", "member_of"},
		[][]any{
			{"app", false, true, false, []string{}},
		})
	db.Register("role_table_grants", []string{"grantee", "table_name", "privilege_type"},
		[][]any{
			{"PUBLIC", "orders", "SELECT"},
		})

	tables := []model.TableProfile{table("customers", 200, false)}

	insp := New(db, "public", testLogger())
	report, warns := insp.Inspect(context.Background(), tables)

	assert.Empty(t, warns)
	require.Len(t, report.Vulnerabilities, 3)
	for i := 1; i < len(report.Vulnerabilities); i++ {
		assert.LessOrEqual(t,
			report.Vulnerabilities[i-1].Severity.Rank(),
			report.Vulnerabilities[i].Severity.Rank())
	}
	assert.Equal(t, model.SeverityCritical, report.Vulnerabilities[0].Severity)
	assert.Equal(t, 1, report.Summary.Critical)
	assert.Equal(t, 1, report.Summary.High)
	assert.Equal(t, 1, report.Summary.Medium)
	assert.Equal(t, 3, report.Summary.Total)
	assert.Equal(t, "SELECT", report.Policies[0].Command)
}

func TestInspect_DegradesOnPermissionDenied(t *testing.T) {
	db := databasetest.New()
	db.RegisterErr("pg_policy", errs.New(errs.ErrKindPermissionDenied, "denied"))
	db.RegisterErr("pg_auth_members", errs.New(errs.ErrKindPermissionDenied, "denied"))
	db.RegisterErr("role_table_grants", errs.New(errs.ErrKindPermissionDenied, "denied"))

	tables := []model.TableProfile{table("customers", 200, false)}

	insp := New(db, "public", testLogger())
	report, warns := insp.Inspect(context.Background(), tables)

	assert.Len(t, warns, 3)
	// Table-level rules still run on the profiles we already have.
	require.Len(t, report.Vulnerabilities, 1)
	assert.Equal(t, model.VulnNoRowSecurity, report.Vulnerabilities[0].Kind)
}
