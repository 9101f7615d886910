package discover

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// CandidateSource supplies the table names the probe fallback checks.
// It is a port so deployments can swap in a domain-specific list without
// touching discovery logic.
type CandidateSource interface {
	Candidates() []string
}

// StaticCandidates is a fixed candidate list.
type StaticCandidates []string

func (s StaticCandidates) Candidates() []string { return s }

// CandidatesFromFile loads one candidate name per line. Blank lines and
// lines starting with '#' are skipped.
func CandidatesFromFile(path string) (StaticCandidates, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open candidates file: %w", err)
	}
	defer f.Close()

	var names []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		names = append(names, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read candidates file: %w", err)
	}
	return names, nil
}

// DefaultCandidates returns the built-in probe list: plausible table names
// grouped by business area. Probing only ever discovers names someone
// anticipated, which is why probe results are labeled inferred.
func DefaultCandidates() StaticCandidates {
	return StaticCandidates{
		// identity & access
		"users", "profiles", "accounts", "sessions", "user_sessions",
		"roles", "user_roles", "permissions", "role_permissions",
		"teams", "team_members", "organizations", "organization_members",
		"tenants", "tenant_users", "invitations", "api_keys", "tokens",
		"refresh_tokens", "password_resets", "user_preferences", "user_settings",

		// field service & operations
		"jobs", "job_assignments", "job_notes", "job_photos", "job_statuses",
		"work_orders", "work_order_items", "tasks", "task_assignments",
		"crews", "crew_members", "supervisors", "technicians", "dispatchers",
		"schedules", "shifts", "timesheets", "time_entries", "routes",
		"locations", "sites", "site_visits", "checklists", "checklist_items",
		"inspections", "inspection_results", "equipment", "equipment_logs",
		"assets", "asset_assignments", "maintenance_records", "service_requests",

		// commerce & billing
		"customers", "customer_contacts", "orders", "order_items",
		"invoices", "invoice_items", "payments", "payment_methods",
		"transactions", "subscriptions", "plans", "prices", "products",
		"product_variants", "inventory", "inventory_items", "quotes",
		"quote_items", "estimates", "contracts", "discounts", "coupons",
		"refunds", "taxes", "carts", "cart_items",

		// content & messaging
		"posts", "articles", "pages", "comments", "reviews", "ratings",
		"messages", "chats", "chat_messages", "conversations",
		"conversation_members", "threads", "attachments", "media",
		"photos", "images", "videos", "documents", "files", "uploads",
		"voice_notes", "recordings", "templates", "drafts",

		// notifications & activity
		"notifications", "notification_settings", "alerts", "events",
		"event_logs", "activity_logs", "audit_logs", "logs", "webhooks",
		"webhook_deliveries", "email_logs", "sms_logs", "push_tokens",
		"device_tokens", "announcements", "reminders",

		// misc operational
		"settings", "configurations", "feature_flags", "tags", "taggings",
		"categories", "statuses", "priorities", "addresses", "contacts",
		"countries", "regions", "cities", "currencies", "languages",
		"translations", "imports", "exports", "reports", "report_runs",
		"migrations", "jobs_queue", "queued_jobs", "failed_jobs", "metrics",
	}
}
