// Package blast computes blast-radius reports: which queries and users
// were exposed to a document during a time window, graded by severity.
package blast

import (
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/ragshield/ragshield/pkg/lineage"
	"github.com/ragshield/ragshield/pkg/models"
)

// Analyzer scans the lineage log on demand. It keeps no state of its own.
type Analyzer struct {
	lineage *lineage.Store
}

// NewAnalyzer builds the analyzer over the lineage store.
func NewAnalyzer(store *lineage.Store) *Analyzer {
	return &Analyzer{lineage: store}
}

// Analyze builds the blast-radius report for docID over the last window.
func (a *Analyzer) Analyze(docID string, window time.Duration) (*models.BlastRadiusReport, error) {
	end := time.Now().UTC()
	start := end.Add(-window)

	records, err := a.lineage.Scan(func(rec models.LineageRecord) bool {
		for _, id := range rec.RetrievedDocIDs {
			if id == docID {
				return true
			}
		}
		return false
	}, start, end)
	if err != nil {
		return nil, fmt.Errorf("scan lineage for %s: %w", docID, err)
	}

	users := make(map[string]bool)
	details := make([]models.QueryDetail, 0, len(records))
	for _, rec := range records {
		users[rec.UserID] = true
		details = append(details, models.QueryDetail{
			QueryID:   rec.QueryID,
			QueryText: rec.QueryText,
			UserID:    rec.UserID,
			Timestamp: rec.Timestamp,
			Action:    rec.Action,
		})
	}

	affectedUsers := make([]string, 0, len(users))
	for u := range users {
		affectedUsers = append(affectedUsers, u)
	}
	sort.Strings(affectedUsers)

	severity := gradeSeverity(len(records), len(affectedUsers))

	report := &models.BlastRadiusReport{
		DocID:              docID,
		AffectedQueryCount: len(records),
		AffectedUsers:      affectedUsers,
		QueryDetails:       details,
		TimeWindowStart:    start,
		TimeWindowEnd:      end,
		Severity:           severity,
		RecommendedActions: recommendedActions(severity),
	}

	slog.Info("Blast radius analyzed",
		"doc_id", docID, "queries", report.AffectedQueryCount,
		"users", len(affectedUsers), "severity", severity)
	return report, nil
}

// gradeSeverity maps query and user counts to a severity and takes the
// higher of the two rows. User reach escalates faster than query volume:
// three distinct users seeing tainted material is already HIGH even at
// low query counts.
//
//	queries: 1-2 LOW, 3-5 MEDIUM, 6-10 HIGH, >=11 CRITICAL
//	users:   1 LOW, 2 MEDIUM, 3-6 HIGH, >=7 CRITICAL
func gradeSeverity(queries, users int) models.Severity {
	var byQueries models.Severity
	switch {
	case queries >= 11:
		byQueries = models.SeverityCritical
	case queries >= 6:
		byQueries = models.SeverityHigh
	case queries >= 3:
		byQueries = models.SeverityMedium
	default:
		byQueries = models.SeverityLow
	}

	var byUsers models.Severity
	switch {
	case users >= 7:
		byUsers = models.SeverityCritical
	case users >= 3:
		byUsers = models.SeverityHigh
	case users >= 2:
		byUsers = models.SeverityMedium
	default:
		byUsers = models.SeverityLow
	}

	if byUsers.Rank() > byQueries.Rank() {
		return byUsers
	}
	return byQueries
}

func recommendedActions(severity models.Severity) []string {
	switch severity {
	case models.SeverityCritical:
		return []string{
			"Notify all affected users immediately",
			"Invalidate answers derived from the document",
			"Escalate to the security incident process",
			"Audit related documents from the same source",
		}
	case models.SeverityHigh:
		return []string{
			"Notify affected users",
			"Review answers generated from the document",
			"Audit related documents from the same source",
		}
	case models.SeverityMedium:
		return []string{
			"Review the affected queries",
			"Monitor for further retrievals of the document",
		}
	default:
		return []string{
			"Monitor for further retrievals of the document",
		}
	}
}
