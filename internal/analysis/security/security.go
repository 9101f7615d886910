// Package security retrieves row-level security policies, roles, and
// privilege grants, and derives the vulnerability list.
package security

import (
	"context"
	"fmt"
	"strings"

	"github.com/koustreak/pgscope/internal/analysis/model"
	"github.com/koustreak/pgscope/internal/database"
	"github.com/koustreak/pgscope/internal/logger"
)

// maxLoginSuperusers is the threshold above which login-capable superuser
// count becomes a finding.
const maxLoginSuperusers = 2

// Inspector runs the security analysis.
type Inspector struct {
	db     database.DB
	schema string
	log    *logger.Logger
}

// New builds a security Inspector.
func New(db database.DB, schema string, log *logger.Logger) *Inspector {
	return &Inspector{db: db, schema: schema, log: log}
}

// Inspect fetches policies, roles, and grants, then derives vulnerabilities
// from them and the given table profiles. Fetch failures degrade that
// category to empty and are returned as warnings; derivation still runs on
// whatever was retrieved.
func (i *Inspector) Inspect(ctx context.Context, tables []model.TableProfile) (model.SecurityReport, []string) {
	var report model.SecurityReport
	var warns []string

	policies, err := i.fetchPolicies(ctx)
	if err != nil {
		warns = append(warns, fmt.Sprintf("security: policies unavailable: %v", err))
	}
	report.Policies = policies

	roles, err := i.fetchRoles(ctx)
	if err != nil {
		warns = append(warns, fmt.Sprintf("security: roles unavailable: %v", err))
	}
	report.Roles = roles

	grants, err := i.fetchGrants(ctx)
	if err != nil {
		warns = append(warns, fmt.Sprintf("security: grants unavailable: %v", err))
	}
	report.Grants = grants

	report.Vulnerabilities = deriveVulnerabilities(tables, policies, roles, grants)
	model.SortVulnerabilities(report.Vulnerabilities)
	report.Summary = summarize(report.Vulnerabilities)

	i.log.Debugf("security inspection: %d policies, %d roles, %d vulnerabilities",
		len(report.Policies), len(report.Roles), len(report.Vulnerabilities))

	return report, warns
}

// fetchPolicies reads every RLS policy in the target schema from pg_policy.
func (i *Inspector) fetchPolicies(ctx context.Context) ([]model.AccessPolicy, error) {
	const q = `
		SELECT p.polname,
		       c.relname AS table_name,
		       p.polcmd,
		       p.polpermissive,
		       COALESCE(array_agg(r.rolname) FILTER (WHERE r.rolname IS NOT NULL), '{}') AS roles,
		       COALESCE(pg_get_expr(p.polqual, p.polrelid), '')      AS using_expr,
		       COALESCE(pg_get_expr(p.polwithcheck, p.polrelid), '') AS check_expr
		FROM pg_policy p
		JOIN pg_class c ON p.polrelid = c.oid
		JOIN pg_namespace n ON c.relnamespace = n.oid
		WHERE n.nspname = $1
		GROUP BY p.polname, c.relname, p.polcmd, p.polpermissive, p.polqual, p.polwithcheck, p.polrelid
		ORDER BY c.relname, p.polname`

	rows, err := i.db.Query(ctx, q, i.schema)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var policies []model.AccessPolicy
	for rows.Next() {
		var (
			pol model.AccessPolicy
			cmd string
		)
		if err := rows.Scan(&pol.Name, &pol.Table, &cmd, &pol.Permissive, &pol.Roles, &pol.UsingExpr, &pol.CheckExpr); err != nil {
			return nil, err
		}
		pol.Command = commandName(cmd)
		policies = append(policies, pol)
	}
	return policies, rows.Err()
}

// commandName expands pg_policy.polcmd single-letter codes.
func commandName(cmd string) string {
	switch cmd {
	case "r":
		return "SELECT"
	case "a":
		return "INSERT"
	case "w":
		return "UPDATE"
	case "d":
		return "DELETE"
	default:
		return "ALL"
	}
}

// fetchRoles reads the role list with superuser/login/create-role flags and
// the membership graph.
func (i *Inspector) fetchRoles(ctx context.Context) ([]model.RoleInfo, error) {
	const q = `
		SELECT r.rolname,
		       r.rolsuper,
		       r.rolcanlogin,
		       r.rolcreaterole,
		       ARRAY(
		           SELECT m.rolname
		           FROM pg_auth_members am
		           JOIN pg_roles m ON m.oid = am.roleid
		           WHERE am.member = r.oid
		       ) AS member_of
		FROM pg_roles r
		WHERE r.rolname NOT LIKE 'pg\_%'
		ORDER BY r.rolname`

	rows, err := i.db.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []model.RoleInfo
	for rows.Next() {
		var role model.RoleInfo
		if err := rows.Scan(&role.Name, &role.IsSuperuser, &role.CanLogin, &role.CanCreateRole, &role.MemberOf); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

// fetchGrants reads table-level privilege grants for user tables, flagging
// grants to the wildcard "public" pseudo-role.
func (i *Inspector) fetchGrants(ctx context.Context) ([]model.GrantInfo, error) {
	const q = `
		SELECT grantee, table_name, privilege_type
		FROM information_schema.role_table_grants
		WHERE table_schema = $1
		  AND grantee NOT IN ('postgres')
		ORDER BY table_name, grantee, privilege_type`

	rows, err := i.db.Query(ctx, q, i.schema)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var grants []model.GrantInfo
	for rows.Next() {
		var g model.GrantInfo
		if err := rows.Scan(&g.Grantee, &g.Table, &g.Privilege); err != nil {
			return nil, err
		}
		g.IsPublic = strings.EqualFold(g.Grantee, "public")
		grants = append(grants, g)
	}
	return grants, rows.Err()
}

// deriveVulnerabilities applies the detection rules in priority order:
//
//  1. table has data and RLS disabled → critical
//  2. RLS enabled, has data, zero policies → high
//  3. policy whose read guard is the literal constant true → high
//  4. any grant to the public pseudo-role → medium
//  5. more than two login-capable superusers → medium
func deriveVulnerabilities(tables []model.TableProfile, policies []model.AccessPolicy, roles []model.RoleInfo, grants []model.GrantInfo) []model.Vulnerability {
	var vulns []model.Vulnerability

	policyCount := make(map[string]int)
	for _, pol := range policies {
		policyCount[pol.Table]++
	}

	for _, t := range tables {
		switch {
		case t.RowCount > 0 && !t.HasRowLevelSecurity:
			vulns = append(vulns, model.Vulnerability{
				Kind:        model.VulnNoRowSecurity,
				Severity:    model.SeverityCritical,
				Table:       t.Name,
				Description: fmt.Sprintf("table %q holds %d rows with row level security disabled", t.Name, t.RowCount),
				Risk:        "any role with table access can read or modify every row",
				Remediation: fmt.Sprintf("ALTER TABLE %q ENABLE ROW LEVEL SECURITY; then add policies", t.Name),
			})
		case t.HasRowLevelSecurity && t.RowCount > 0 && policyCount[t.Name] == 0:
			// RLS on with no policies locks non-superusers out entirely.
			// A functional bug rather than an exposure, but still high.
			vulns = append(vulns, model.Vulnerability{
				Kind:        model.VulnRLSNoPolicy,
				Severity:    model.SeverityHigh,
				Table:       t.Name,
				Description: fmt.Sprintf("table %q has row level security enabled but no policies attached", t.Name),
				Risk:        "the table is inaccessible to non-superuser roles",
				Remediation: fmt.Sprintf("CREATE POLICY ... ON %q for the intended access patterns", t.Name),
			})
		}
	}

	for _, pol := range policies {
		if isConstantTrue(pol.UsingExpr) {
			vulns = append(vulns, model.Vulnerability{
				Kind:        model.VulnPermissivePolicy,
				Severity:    model.SeverityHigh,
				Table:       pol.Table,
				Description: fmt.Sprintf("policy %q on %q uses the constant true as its guard", pol.Name, pol.Table),
				Risk:        "the policy provides no real row restriction",
				Remediation: "replace the guard with a tenant or owner predicate",
			})
		}
	}

	for _, g := range grants {
		if g.IsPublic {
			vulns = append(vulns, model.Vulnerability{
				Kind:        model.VulnPublicGrant,
				Severity:    model.SeverityMedium,
				Table:       g.Table,
				Role:        g.Grantee,
				Description: fmt.Sprintf("%s on %q is granted to the public pseudo-role", g.Privilege, g.Table),
				Risk:        "every present and future role inherits this privilege",
				Remediation: fmt.Sprintf("REVOKE %s ON %q FROM PUBLIC", g.Privilege, g.Table),
			})
		}
	}

	loginSuperusers := 0
	for _, role := range roles {
		if role.IsSuperuser && role.CanLogin {
			loginSuperusers++
		}
	}
	if loginSuperusers > maxLoginSuperusers {
		vulns = append(vulns, model.Vulnerability{
			Kind:        model.VulnExcessSuperusers,
			Severity:    model.SeverityMedium,
			Description: fmt.Sprintf("%d login-capable superuser roles exist", loginSuperusers),
			Risk:        "a wide superuser surface multiplies the impact of a leaked credential",
			Remediation: "demote superusers that only need specific privileges",
		})
	}

	return vulns
}

// isConstantTrue reports whether a policy guard expression is the literal
// constant true (in the forms the server renders it).
func isConstantTrue(expr string) bool {
	switch strings.ToLower(strings.TrimSpace(expr)) {
	case "true", "(true)":
		return true
	}
	return false
}

func summarize(vulns []model.Vulnerability) model.SecuritySummary {
	var s model.SecuritySummary
	for _, v := range vulns {
		switch v.Severity {
		case model.SeverityCritical:
			s.Critical++
		case model.SeverityHigh:
			s.High++
		case model.SeverityMedium:
			s.Medium++
		case model.SeverityLow:
			s.Low++
		}
	}
	s.Total = len(vulns)
	return s
}
