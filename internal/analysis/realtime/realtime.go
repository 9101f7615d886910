// Package realtime analyzes change-data-capture fan-out: which tables are
// published, the estimated message volume that implies, and a heuristic
// channel grouping of the published set.
package realtime

import (
	"context"
	"fmt"
	"regexp"

	"github.com/koustreak/pgscope/internal/analysis/model"
	"github.com/koustreak/pgscope/internal/database"
	"github.com/koustreak/pgscope/internal/logger"
)

const (
	// highRateThreshold in estimated messages/second.
	highRateThreshold = 100
	// widePayloadColumns flags tables whose full-row payloads are large.
	widePayloadColumns = 20
)

// channelPatterns maps table-name regexes to channel labels. The grouping is
// a naming heuristic for operators, not derived from subscription data.
var channelPatterns = []struct {
	name string
	re   *regexp.Regexp
}{
	{"user-activity", regexp.MustCompile(`user|profile|session|account`)},
	{"chat-messages", regexp.MustCompile(`message|chat|conversation|comment`)},
	{"commerce", regexp.MustCompile(`order|cart|payment|invoice|transaction`)},
	{"notifications", regexp.MustCompile(`notification|alert|event`)},
	{"content", regexp.MustCompile(`post|article|document|media`)},
}

const fallbackChannel = "general"

// Inspector runs the realtime fan-out analysis.
type Inspector struct {
	db     database.DB
	schema string
	log    *logger.Logger
}

// New builds a realtime Inspector.
func New(db database.DB, schema string, log *logger.Logger) *Inspector {
	return &Inspector{db: db, schema: schema, log: log}
}

// Inspect reads publication membership for the profiled tables. When the
// publication catalog is unreadable it falls back to replica-identity
// inference, labeling every resulting entry as inferred.
func (i *Inspector) Inspect(ctx context.Context, tables []model.TableProfile) (model.RealtimeReport, []string) {
	var report model.RealtimeReport
	var warns []string

	entries, err := i.fetchPublications(ctx, tables)
	if err != nil {
		warns = append(warns, fmt.Sprintf("realtime: publication catalog unavailable, inferring from replica identity: %v", err))
		entries, err = i.inferFromReplicaIdentity(ctx, tables)
		if err != nil {
			warns = append(warns, fmt.Sprintf("realtime: replica identity unavailable: %v", err))
			entries = nil
		}
	}
	report.Publications = entries

	report.PotentialChannels = groupChannels(entries)
	report.Issues = deriveIssues(entries, tables)
	model.SortIssues(report.Issues)
	report.Statistics = summarize(report)

	i.log.Debugf("realtime inspection: %d published tables, %d issues",
		len(report.Publications), len(report.Issues))

	return report, warns
}

func (i *Inspector) fetchPublications(ctx context.Context, tables []model.TableProfile) ([]model.RealtimePublicationEntry, error) {
	const q = `
		SELECT pt.tablename, p.pubinsert, p.pubupdate, p.pubdelete
		FROM pg_publication_tables pt
		JOIN pg_publication p ON p.pubname = pt.pubname
		WHERE pt.schemaname = $1
		ORDER BY pt.tablename`

	rows, err := i.db.Query(ctx, q, i.schema)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := rowCountsByTable(tables)

	var entries []model.RealtimePublicationEntry
	for rows.Next() {
		e := model.RealtimePublicationEntry{Source: model.ProvenanceCatalog}
		if err := rows.Scan(&e.Table, &e.Inserts, &e.Updates, &e.Deletes); err != nil {
			return nil, err
		}
		e.RowCount = counts[e.Table]
		e.EstimatedMessageRate = model.EstimateMessageRate(e.RowCount)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// inferFromReplicaIdentity treats any table whose replica identity is not
// "nothing" as publish-eligible. Full identity implies all three operations;
// default or index identity implies inserts and updates only, since delete
// payloads need the old row.
func (i *Inspector) inferFromReplicaIdentity(ctx context.Context, tables []model.TableProfile) ([]model.RealtimePublicationEntry, error) {
	const q = `
		SELECT c.relname, c.relreplident
		FROM pg_class c
		JOIN pg_namespace n ON n.oid = c.relnamespace
		WHERE n.nspname = $1 AND c.relkind = 'r'
		ORDER BY c.relname`

	rows, err := i.db.Query(ctx, q, i.schema)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := rowCountsByTable(tables)

	var entries []model.RealtimePublicationEntry
	for rows.Next() {
		var name, identity string
		if err := rows.Scan(&name, &identity); err != nil {
			return nil, err
		}
		if identity == "n" {
			continue
		}
		e := model.RealtimePublicationEntry{
			Table:   name,
			Inserts: true,
			Updates: true,
			Deletes: identity == "f",
			Source:  model.ProvenanceInferred,
		}
		e.RowCount = counts[name]
		e.EstimatedMessageRate = model.EstimateMessageRate(e.RowCount)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func rowCountsByTable(tables []model.TableProfile) map[string]int64 {
	counts := make(map[string]int64, len(tables))
	for _, t := range tables {
		counts[t.Name] = t.RowCount
	}
	return counts
}

// groupChannels buckets published tables into named channels by the first
// matching name pattern, with an explicit catch-all.
func groupChannels(entries []model.RealtimePublicationEntry) []model.ChannelGroup {
	grouped := make(map[string][]string)
	var order []string

	add := func(channel, table string) {
		if _, seen := grouped[channel]; !seen {
			order = append(order, channel)
		}
		grouped[channel] = append(grouped[channel], table)
	}

	for _, e := range entries {
		channel := fallbackChannel
		for _, p := range channelPatterns {
			if p.re.MatchString(e.Table) {
				channel = p.name
				break
			}
		}
		add(channel, e.Table)
	}

	groups := make([]model.ChannelGroup, 0, len(order))
	for _, name := range order {
		groups = append(groups, model.ChannelGroup{Name: name, Tables: grouped[name]})
	}
	return groups
}

// deriveIssues applies the derivation rules:
//
//   - estimated rate above 100/s → high
//   - all three operation types published → medium
//   - more than 20 columns in the payload → medium
//   - zero rows with fan-out enabled → low
func deriveIssues(entries []model.RealtimePublicationEntry, tables []model.TableProfile) []model.Issue {
	columns := make(map[string]int, len(tables))
	for _, t := range tables {
		columns[t.Name] = len(t.Columns)
	}

	var issues []model.Issue
	for _, e := range entries {
		if e.EstimatedMessageRate > highRateThreshold {
			issues = append(issues, model.Issue{
				Kind:        "high_message_rate",
				Severity:    model.SeverityHigh,
				Subject:     e.Table,
				Description: fmt.Sprintf("table %q may fan out around %d messages/second", e.Table, e.EstimatedMessageRate),
				Remediation: "narrow the publication to the operations subscribers need, or shard the channel",
			})
		}
		if e.Inserts && e.Updates && e.Deletes {
			issues = append(issues, model.Issue{
				Kind:        "all_operations_published",
				Severity:    model.SeverityMedium,
				Subject:     e.Table,
				Description: fmt.Sprintf("table %q broadcasts inserts, updates, and deletes", e.Table),
				Remediation: "publish only the operations subscribers consume",
			})
		}
		if columns[e.Table] > widePayloadColumns {
			issues = append(issues, model.Issue{
				Kind:        "wide_payload",
				Severity:    model.SeverityMedium,
				Subject:     e.Table,
				Description: fmt.Sprintf("table %q ships %d columns per change event", e.Table, columns[e.Table]),
				Remediation: "publish a narrower projection or split the table",
			})
		}
		if e.RowCount == 0 {
			issues = append(issues, model.Issue{
				Kind:        "empty_published_table",
				Severity:    model.SeverityLow,
				Subject:     e.Table,
				Description: fmt.Sprintf("table %q is published but holds no rows", e.Table),
				Remediation: "drop the publication entry if the table is unused",
			})
		}
	}
	return issues
}

func summarize(report model.RealtimeReport) model.RealtimeStatistics {
	stats := model.RealtimeStatistics{
		PublishedTables: len(report.Publications),
		Channels:        len(report.PotentialChannels),
	}
	for _, e := range report.Publications {
		stats.TotalEstimatedRate += e.EstimatedMessageRate
	}
	return stats
}
